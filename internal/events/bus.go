package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/docsmith/internal/metrics"
	"github.com/phrazzld/docsmith/internal/redact"
)

// AllTypes subscribes a handler to every event. Wildcard handlers run after
// the handlers registered for the specific type.
const AllTypes = "*"

// DefaultHistorySize bounds the number of events kept for History.
const DefaultHistorySize = 1000

// ErrBusStopped is returned by Publish once Stop has been called.
var ErrBusStopped = errors.New("event bus is stopped")

// SubscriptionID identifies a handler registration for Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// BusStats is a point-in-time view of bus activity.
type BusStats struct {
	Published     uint64 `json:"published"`
	Delivered     uint64 `json:"delivered"`
	HandlerErrors uint64 `json:"handler_errors"`
	Queued        int    `json:"queued"`
	Subscribers   int    `json:"subscribers"`
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithHistorySize sets how many published events History retains. Zero
// disables history.
func WithHistorySize(n int) BusOption {
	return func(b *Bus) {
		if n >= 0 {
			b.historySize = n
		}
	}
}

// Bus is an in-process FIFO event dispatcher with a single consumer.
type Bus struct {
	logger *slog.Logger

	subMu  sync.RWMutex
	subs   map[string][]subscription
	nextID SubscriptionID

	qMu     sync.Mutex
	queue   []*Event
	signal  chan struct{}
	started bool
	stopped bool
	done    chan struct{}

	histMu      sync.Mutex
	history     []*Event
	historySize int

	published     atomic.Uint64
	delivered     atomic.Uint64
	handlerErrors atomic.Uint64
}

// NewBus creates a bus. Events published before Start are held and
// delivered once the consumer runs.
func NewBus(logger *slog.Logger, opts ...BusOption) *Bus {
	b := &Bus{
		logger:      logger.With("component", "event_bus"),
		subs:        make(map[string][]subscription),
		signal:      make(chan struct{}, 1),
		done:        make(chan struct{}),
		historySize: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the consumer goroutine. Calling Start on a running or
// stopped bus has no effect.
func (b *Bus) Start() {
	b.qMu.Lock()
	defer b.qMu.Unlock()

	if b.started || b.stopped {
		return
	}
	b.started = true
	go b.loop()
	b.logger.Info("event bus started")
}

// Stop rejects further publishes, delivers everything already queued and
// blocks until the consumer has exited. It is safe to call more than once.
func (b *Bus) Stop() {
	b.qMu.Lock()
	if !b.stopped {
		b.stopped = true
		if !b.started {
			// drain events published before Start
			b.started = true
			go b.loop()
		}
		b.notify()
	}
	b.qMu.Unlock()

	<-b.done
	b.logger.Info("event bus stopped",
		"published", b.published.Load(),
		"delivered", b.delivered.Load())
}

// Publish queues an event for delivery. It never waits for handlers.
func (b *Bus) Publish(_ context.Context, event *Event) error {
	if event == nil || event.payload == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidPayload)
	}

	b.qMu.Lock()
	if b.stopped {
		b.qMu.Unlock()
		return ErrBusStopped
	}
	b.enqueueLocked(event)
	b.qMu.Unlock()

	b.logger.Debug("event published",
		"event_id", event.id,
		"event_type", event.eventType,
		"source", event.source)
	return nil
}

// enqueueLocked must be called with qMu held.
func (b *Bus) enqueueLocked(event *Event) {
	b.queue = append(b.queue, event)
	b.notify()

	b.published.Add(1)
	metrics.RecordEventPublished(event.eventType)
	b.record(event)
}

func (b *Bus) notify() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Subscribe registers handler for eventType and returns its registration
// id. Registering the same comparable handler value twice for one type
// returns the original id.
func (b *Bus) Subscribe(eventType string, handler Handler) SubscriptionID {
	if handler == nil {
		return 0
	}

	b.subMu.Lock()
	defer b.subMu.Unlock()

	for _, s := range b.subs[eventType] {
		if sameHandler(s.handler, handler) {
			return s.id
		}
	}

	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	b.logger.Debug("handler subscribed",
		"event_type", eventType,
		"subscription_id", id,
		"handler_count", len(b.subs[eventType]))
	return id
}

// sameHandler compares two handlers without panicking. A comparable type
// can still hold an uncomparable value in an interface field; such values
// are never equal.
func sameHandler(a, b Handler) (same bool) {
	if !reflect.TypeOf(b).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// Unsubscribe removes a registration. Unknown ids are ignored.
func (b *Bus) Unsubscribe(eventType string, id SubscriptionID) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	subs := b.subs[eventType]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		kept := make([]subscription, 0, len(subs)-1)
		kept = append(kept, subs[:i]...)
		kept = append(kept, subs[i+1:]...)
		if len(kept) == 0 {
			delete(b.subs, eventType)
		} else {
			b.subs[eventType] = kept
		}
		return
	}
}

func (b *Bus) handlersFor(eventType string) []subscription {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	specific := b.subs[eventType]
	wildcard := b.subs[AllTypes]
	out := make([]subscription, 0, len(specific)+len(wildcard))
	out = append(out, specific...)
	return append(out, wildcard...)
}

func (b *Bus) loop() {
	defer close(b.done)

	for {
		b.qMu.Lock()
		for len(b.queue) == 0 && !b.stopped {
			b.qMu.Unlock()
			<-b.signal
			b.qMu.Lock()
		}
		if len(b.queue) == 0 {
			b.qMu.Unlock()
			return
		}
		event := b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
		b.qMu.Unlock()

		b.dispatch(event)
	}
}

func (b *Bus) dispatch(event *Event) {
	subs := b.handlersFor(event.eventType)
	ctx := context.Background()

	for _, s := range subs {
		err := invoke(ctx, s.handler, event)
		b.delivered.Add(1)
		if err == nil {
			continue
		}

		b.handlerErrors.Add(1)
		metrics.RecordHandlerError(event.eventType)
		b.logger.Error("handler failed to process event",
			"error", err,
			"subscription_id", s.id,
			"event_id", event.id,
			"event_type", event.eventType)

		if event.eventType == TypeErrorOccurred {
			continue
		}
		b.reportHandlerError(event, s.id, err)
	}
}

func invoke(ctx context.Context, h Handler, event *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.HandleEvent(ctx, event)
}

func (b *Bus) reportHandlerError(event *Event, id SubscriptionID, err error) {
	payload := ErrorOccurred{
		Message:  redact.String(fmt.Sprintf("event handler failed for %s: %v", event.eventType, err)),
		Category: "event_bus",
		Severity: "medium",
		Context: map[string]any{
			"event_id":        event.id.String(),
			"event_type":      event.eventType,
			"subscription_id": uint64(id),
		},
		Timestamp: time.Now(),
	}
	errEvent, buildErr := NewEvent("event_bus", payload)
	if buildErr != nil {
		b.logger.Error("failed to build error event", "error", buildErr)
		return
	}

	// Bypasses the stopped check so failures during the final drain are
	// still delivered.
	b.qMu.Lock()
	b.enqueueLocked(errEvent)
	b.qMu.Unlock()
}

func (b *Bus) record(event *Event) {
	if b.historySize == 0 {
		return
	}
	b.histMu.Lock()
	defer b.histMu.Unlock()

	b.history = append(b.history, event)
	if over := len(b.history) - b.historySize; over > 0 {
		n := copy(b.history, b.history[over:])
		clear(b.history[n:])
		b.history = b.history[:n]
	}
}

// History returns up to limit of the most recently published events, oldest
// first. An empty eventType matches every event; limit <= 0 means no limit.
func (b *Bus) History(eventType string, limit int) []*Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	out := make([]*Event, 0, len(b.history))
	for _, ev := range b.history {
		if eventType == "" || ev.eventType == eventType {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// ClearHistory drops every retained event.
func (b *Bus) ClearHistory() {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history = nil
}

// Stats reports counters and current queue length.
func (b *Bus) Stats() BusStats {
	b.qMu.Lock()
	queued := len(b.queue)
	b.qMu.Unlock()

	b.subMu.RLock()
	subscribers := 0
	for _, s := range b.subs {
		subscribers += len(s)
	}
	b.subMu.RUnlock()

	return BusStats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		HandlerErrors: b.handlerErrors.Load(),
		Queued:        queued,
		Subscribers:   subscribers,
	}
}
