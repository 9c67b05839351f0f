package fault

import (
	"errors"
	"maps"
	"time"
)

// Error is a classified failure. It wraps the underlying error, if any.
type Error struct {
	Kind         Kind
	Severity     Severity
	Message      string
	Context      map[string]any
	RecoveryHint string
	Timestamp    time.Time
	Err          error
}

// Record is the reportable form of an Error.
type Record struct {
	Kind         Kind           `json:"kind"`
	Severity     Severity       `json:"severity"`
	Message      string         `json:"message"`
	Context      map[string]any `json:"context,omitempty"`
	RecoveryHint string         `json:"recovery_hint,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Option customises an Error built by New or Wrap.
type Option func(*Error)

// WithSeverity overrides the kind's default severity.
func WithSeverity(s Severity) Option {
	return func(e *Error) { e.Severity = s }
}

// WithContext merges key/values into the error context.
func WithContext(ctx map[string]any) Option {
	return func(e *Error) {
		if e.Context == nil {
			e.Context = make(map[string]any, len(ctx))
		}
		maps.Copy(e.Context, ctx)
	}
}

// WithHint overrides the kind's default recovery hint.
func WithHint(hint string) Option {
	return func(e *Error) { e.RecoveryHint = hint }
}

// WithMessage sets the message of a wrapped error.
func WithMessage(msg string) Option {
	return func(e *Error) { e.Message = msg }
}

// New creates a classified error with no cause.
func New(kind Kind, message string, opts ...Option) *Error {
	return build(kind, message, nil, opts)
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return build(kind, "", err, opts)
}

func build(kind Kind, message string, err error, opts []Option) *Error {
	e := &Error{
		Kind:         kind,
		Severity:     kind.DefaultSeverity(),
		Message:      message,
		RecoveryHint: kind.DefaultHint(),
		Timestamp:    time.Now(),
		Err:          err,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Record returns the reportable form of e.
func (e *Error) Record() Record {
	return Record{
		Kind:         e.Kind,
		Severity:     e.Severity,
		Message:      e.Error(),
		Context:      maps.Clone(e.Context),
		RecoveryHint: e.RecoveryHint,
		Timestamp:    e.Timestamp,
	}
}

// As returns err as a classified *Error, classifying it when it is not one
// already. A nil err yields nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	o := Classify(err)
	return &Error{
		Kind:         o.Kind,
		Severity:     o.Severity,
		RecoveryHint: o.Kind.DefaultHint(),
		Timestamp:    time.Now(),
		Err:          err,
	}
}

// KindOf is shorthand for Classify(err).Kind.
func KindOf(err error) Kind {
	return Classify(err).Kind
}
