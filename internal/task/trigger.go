package task

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/phrazzld/docsmith/internal/events"
)

// Enqueuer accepts new tasks. *Manager satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload map[string]any, opts ...EnqueueOption) (string, error)
}

// Data keys read by EventTrigger from the event payload.
const (
	keyCorrelationID = "correlation_id"
	keyPriority      = "priority"
)

// EventTrigger enqueues a task whenever an application event with a given
// name is published. The event data becomes the task payload; its
// correlation_id and priority entries, when present, steer the task.
type EventTrigger struct {
	eventName string
	taskType  string
	enqueuer  Enqueuer
	opts      []EnqueueOption
	logger    *slog.Logger
}

// NewEventTrigger creates a trigger mapping eventName to taskType. opts are
// applied to every task before the values read from the event.
func NewEventTrigger(eventName, taskType string, enqueuer Enqueuer, logger *slog.Logger, opts ...EnqueueOption) *EventTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventTrigger{
		eventName: eventName,
		taskType:  taskType,
		enqueuer:  enqueuer,
		opts:      opts,
		logger: logger.With(
			"component", "event_trigger",
			"event_name", eventName,
			"task_type", taskType,
		),
	}
}

// EventName is the application event the trigger reacts to.
func (h *EventTrigger) EventName() string {
	return h.eventName
}

// HandleEvent implements events.Handler.
func (h *EventTrigger) HandleEvent(ctx context.Context, ev *events.Event) error {
	g, ok := ev.Payload().(events.Generic)
	if !ok || g.Name != h.eventName {
		h.logger.DebugContext(ctx, "ignoring unsupported event", "event_type", ev.Type())
		return nil
	}

	opts := append([]EnqueueOption(nil), h.opts...)

	correlationID := ev.ID().String()
	if v, ok := g.Data[keyCorrelationID].(string); ok && v != "" {
		correlationID = v
	}
	opts = append(opts, WithCorrelationID(correlationID))

	if raw, ok := g.Data[keyPriority]; ok {
		p, err := priorityFromData(raw)
		if err != nil {
			return fmt.Errorf("event %s: %w", ev.ID(), err)
		}
		opts = append(opts, WithPriority(p))
	}

	taskID, err := h.enqueuer.Enqueue(ctx, h.taskType, maps.Clone(g.Data), opts...)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to enqueue task from event",
			"event_id", ev.ID().String(),
			"error", err)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	h.logger.InfoContext(ctx, "task enqueued from event",
		"event_id", ev.ID().String(),
		"task_id", taskID,
		"correlation_id", correlationID)
	return nil
}

func priorityFromData(v any) (Priority, error) {
	switch p := v.(type) {
	case string:
		return ParsePriority(p)
	case int:
		if Priority(p).Valid() {
			return Priority(p), nil
		}
	case float64:
		if Priority(p).Valid() && float64(int(p)) == p {
			return Priority(p), nil
		}
	case Priority:
		if p.Valid() {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unusable priority %v", ErrInvalidTask, v)
}

var _ events.Handler = (*EventTrigger)(nil)
var _ Enqueuer = (*Manager)(nil)
