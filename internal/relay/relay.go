// Package relay forwards selected bus events to an NSQ topic as JSON
// envelopes so that processes outside docsmith can follow task progress.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
	"github.com/phrazzld/docsmith/internal/config"
	"github.com/phrazzld/docsmith/internal/events"
	"github.com/phrazzld/docsmith/internal/metrics"
	"github.com/phrazzld/docsmith/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// EnvelopeVersion is stamped on every forwarded message.
const EnvelopeVersion = "v1"

const defaultBufferSize = 256

// Producer is the subset of *nsq.Producer the relay uses.
type Producer interface {
	Publish(topic string, body []byte) error
	Stop()
}

// Subscriber is the subset of *events.Bus the relay uses.
type Subscriber interface {
	Subscribe(eventType string, handler events.Handler) events.SubscriptionID
	Unsubscribe(eventType string, id events.SubscriptionID)
}

// Envelope is the wire format written to NSQ.
type Envelope struct {
	Type    string         `json:"type"`
	Version string         `json:"version"`
	ID      uuid.UUID      `json:"id"`
	Source  string         `json:"source"`
	At      time.Time      `json:"at"`
	Payload events.Payload `json:"payload"`
}

// NewEnvelope wraps ev for the wire.
func NewEnvelope(ev *events.Event) Envelope {
	return Envelope{
		Type:    ev.Type(),
		Version: EnvelopeVersion,
		ID:      ev.ID(),
		Source:  ev.Source(),
		At:      ev.Timestamp().UTC(),
		Payload: ev.Payload(),
	}
}

// Relay subscribes to the bus and publishes matching events from a single
// goroutine. Bus delivery never blocks on NSQ: when the buffer is full the
// event is dropped and counted.
type Relay struct {
	producer Producer
	topic    string
	types    []string
	logger   *slog.Logger

	ch   chan *events.Event
	subs map[string]events.SubscriptionID
	bus  Subscriber

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	finished  chan struct{}
}

// New creates a Relay. An empty eventTypes forwards every event.
func New(producer Producer, topic string, eventTypes []string, bufferSize int, logger *slog.Logger) *Relay {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		producer: producer,
		topic:    topic,
		types:    slices.Clone(eventTypes),
		logger:   logger.With("component", "relay", "topic", topic),
		ch:       make(chan *events.Event, bufferSize),
		subs:     make(map[string]events.SubscriptionID),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// NewFromConfig connects an NSQ producer to cfg.NSQDAddr and builds a
// Relay around it.
func NewFromConfig(cfg config.RelayConfig, logger *slog.Logger) (*Relay, error) {
	prod, err := nsq.NewProducer(cfg.NSQDAddr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create nsq producer: %w", err)
	}
	return New(prod, cfg.Topic, cfg.EventTypes, cfg.BufferSize, logger), nil
}

// Start subscribes to bus and begins forwarding.
func (r *Relay) Start(bus Subscriber) {
	r.startOnce.Do(func() {
		r.bus = bus
		if len(r.types) == 0 {
			r.subs[events.AllTypes] = bus.Subscribe(events.AllTypes, r)
		} else {
			for _, t := range r.types {
				r.subs[t] = bus.Subscribe(t, r)
			}
		}
		go r.loop()
		r.logger.Info("event relay started", "event_types", r.types)
	})
}

// HandleEvent buffers ev for publishing.
func (r *Relay) HandleEvent(_ context.Context, ev *events.Event) error {
	select {
	case <-r.done:
		return nil
	default:
	}
	select {
	case r.ch <- ev:
	default:
		metrics.RecordRelay("dropped")
		r.logger.Warn("relay buffer full, dropping event",
			"event_type", ev.Type(), "event_id", ev.ID())
	}
	return nil
}

// Stop unsubscribes, publishes whatever is still buffered and stops the
// producer.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		if r.bus != nil {
			for t, id := range r.subs {
				r.bus.Unsubscribe(t, id)
			}
		}
		close(r.done)
		if r.bus != nil {
			<-r.finished
		}
		r.producer.Stop()
		r.logger.Info("event relay stopped")
	})
}

func (r *Relay) loop() {
	defer close(r.finished)
	for {
		select {
		case ev := <-r.ch:
			r.forward(ev)
		case <-r.done:
			for {
				select {
				case ev := <-r.ch:
					r.forward(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Relay) forward(ev *events.Event) {
	ctx, span := tracing.StartSpan(context.Background(), "relay.publish",
		attribute.String("event.type", ev.Type()),
		attribute.String("nsq.topic", r.topic),
	)
	defer span.End()

	body, err := json.Marshal(NewEnvelope(ev))
	if err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.RecordRelay("failed")
		r.logger.Error("failed to encode relay envelope", "event_type", ev.Type(), "error", err)
		return
	}
	if err := r.producer.Publish(r.topic, body); err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.RecordRelay("failed")
		r.logger.Error("nsq publish failed", "event_type", ev.Type(), "event_id", ev.ID(), "error", err)
		return
	}
	metrics.RecordRelay("published")
}
