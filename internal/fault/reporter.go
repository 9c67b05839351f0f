package fault

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/docsmith/internal/events"
	"github.com/phrazzld/docsmith/internal/redact"
)

// Source is the event source of error.occurred events built by a Reporter.
const Source = "error_handler"

// Reporter counts, logs and publishes classified failures.
type Reporter struct {
	publisher events.Publisher
	tracker   *Tracker
	logger    *slog.Logger
}

// NewReporter builds a Reporter. publisher may be nil, in which case
// failures are only counted and logged.
func NewReporter(publisher events.Publisher, tracker *Tracker, logger *slog.Logger) *Reporter {
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Reporter{
		publisher: publisher,
		tracker:   tracker,
		logger:    logger.With("component", "error_reporter"),
	}
}

// Tracker exposes the per-kind counters.
func (r *Reporter) Tracker() *Tracker {
	return r.tracker
}

// Report records err and publishes error.occurred for it. Message and
// context are redacted before publication. The returned error is the
// publication failure, if any; err itself is never swallowed by Report.
func (r *Reporter) Report(ctx context.Context, err error) error {
	fe := As(err)
	if fe == nil {
		return nil
	}
	if fe.Kind == "" || fe.Severity == "" {
		cp := *fe
		if cp.Kind == "" {
			cp.Kind = KindUnknown
		}
		if cp.Severity == "" {
			cp.Severity = cp.Kind.DefaultSeverity()
		}
		fe = &cp
	}

	r.tracker.Track(fe.Kind, fe.Severity)
	r.log(ctx, fe)

	if r.publisher == nil {
		return nil
	}

	ts := fe.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, pubErr := events.Emit(ctx, r.publisher, Source, events.ErrorOccurred{
		Message:      Describe(fe, fe.Kind),
		Category:     string(fe.Kind),
		Severity:     string(fe.Severity),
		Context:      redact.Map(fe.Context),
		RecoveryHint: fe.RecoveryHint,
		Timestamp:    ts,
	})
	if pubErr != nil {
		r.logger.Error("failed to publish error event", "error", pubErr, "kind", fe.Kind)
	}
	return pubErr
}

// Describe returns the redacted text of err, or "<kind> error" when that
// text is empty, so published events always carry a message.
func Describe(err error, kind Kind) string {
	if msg := redact.Error(err); msg != "" {
		return msg
	}
	if kind == "" {
		kind = KindUnknown
	}
	return string(kind) + " error"
}

func (r *Reporter) log(ctx context.Context, fe *Error) {
	level := slog.LevelWarn
	switch fe.Severity {
	case SeverityCritical, SeverityHigh:
		level = slog.LevelError
	case SeverityLow:
		level = slog.LevelInfo
	}

	attrs := []any{
		"error", redact.Error(fe),
		"kind", fe.Kind,
		"severity", fe.Severity,
	}
	if fe.RecoveryHint != "" {
		attrs = append(attrs, "recovery_hint", fe.RecoveryHint)
	}
	r.logger.Log(ctx, level, "classified failure", attrs...)
}
