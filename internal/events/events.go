package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrInvalidPayload is returned when an event is built or published with a
// missing or invalid payload.
var ErrInvalidPayload = errors.New("invalid event payload")

var validate = validator.New()

// Payload is the typed body of an event. Each event name has exactly one
// payload type; EventType reports that name.
type Payload interface {
	EventType() string
}

// Event is an immutable notification. Handlers receive the same *Event the
// producer published, so payload identity is preserved through the bus.
type Event struct {
	id        uuid.UUID
	eventType string
	source    string
	payload   Payload
	timestamp time.Time
}

// NewEvent validates the payload and wraps it in an Event stamped with a new
// id and the current time.
func NewEvent(source string, payload Payload) (*Event, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload is nil", ErrInvalidPayload)
	}
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	return &Event{
		id:        uuid.New(),
		eventType: payload.EventType(),
		source:    source,
		payload:   payload,
		timestamp: time.Now(),
	}, nil
}

func validatePayload(p Payload) error {
	if g, ok := p.(Generic); ok && IsReserved(g.Name) {
		return fmt.Errorf("%w: %q is reserved for a typed payload", ErrInvalidPayload, g.Name)
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, p.EventType(), err)
	}
	return nil
}

// ID returns the unique identifier of the event.
func (e *Event) ID() uuid.UUID { return e.id }

// Type returns the event name used for subscription matching.
func (e *Event) Type() string { return e.eventType }

// Source names the component that published the event.
func (e *Event) Source() string { return e.source }

// Payload returns the typed body.
func (e *Event) Payload() Payload { return e.payload }

// Timestamp is the construction time of the event.
func (e *Event) Timestamp() time.Time { return e.timestamp }

type eventJSON struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// MarshalJSON renders the event for the HTTP surface and the relay.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:        e.id,
		Type:      e.eventType,
		Source:    e.source,
		Timestamp: e.timestamp,
		Payload:   e.payload,
	})
}

// Handler defines an interface for components that can handle events.
type Handler interface {
	// HandleEvent processes the given event. A returned error is logged and
	// republished as error.occurred; it never affects other handlers.
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Publisher is what producers depend on. *Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Emit builds an event from payload and publishes it.
func Emit(ctx context.Context, p Publisher, source string, payload Payload) (*Event, error) {
	ev, err := NewEvent(source, payload)
	if err != nil {
		return nil, err
	}
	if err := p.Publish(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
