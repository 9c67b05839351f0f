package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/docsmith/internal/config"
	"github.com/phrazzld/docsmith/internal/events"
	"github.com/phrazzld/docsmith/internal/fault"
	"github.com/phrazzld/docsmith/internal/metrics"
	"github.com/phrazzld/docsmith/internal/ratelimit"
	"github.com/phrazzld/docsmith/internal/relay"
	"github.com/phrazzld/docsmith/internal/task"
	"github.com/phrazzld/docsmith/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
)

// DocumentationRequested is the application event that the server turns
// into a documentation task.
const DocumentationRequested = "documentation.requested"

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	metrics *prometheus.Registry

	bus      *events.Bus
	limiter  ratelimit.Limiter
	tracker  *fault.Tracker
	registry *task.Registry
	manager  *task.Manager
	relay    *relay.Relay

	shutdownTracing func(context.Context) error
}

// newApplication creates the application with every component constructed
// but nothing started.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: prometheus.NewRegistry(),
	}
	metrics.MustRegister(app.metrics)

	var err error
	app.shutdownTracing, err = tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	app.bus = events.NewBus(logger, events.WithHistorySize(cfg.Events.HistorySize))

	app.limiter, err = ratelimit.New(cfg.RateLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	logger.Info("rate limiter initialized",
		"strategy", cfg.RateLimit.Strategy,
		"requests", cfg.RateLimit.Requests,
		"period", cfg.RateLimit.Period)

	app.registry = task.NewRegistry()
	if err := registerHandlers(app.registry); err != nil {
		return nil, fmt.Errorf("failed to register task handlers: %w", err)
	}

	app.tracker = fault.NewTracker()
	reporter := fault.NewReporter(app.bus, app.tracker, logger)
	opts := append(task.OptionsFromConfig(cfg.Queue), task.WithReporter(reporter))
	app.manager = task.NewManager(
		app.registry,
		app.bus,
		app.limiter,
		fault.PolicyFromConfig(cfg.Queue),
		logger,
		opts...,
	)

	trigger := task.NewEventTrigger(DocumentationRequested, TaskTypeEcho, app.manager, logger)
	app.bus.Subscribe(trigger.EventName(), trigger)

	if cfg.Relay.Enabled {
		app.relay, err = relay.NewFromConfig(cfg.Relay, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize event relay: %w", err)
		}
		logger.Info("event relay configured", "nsqd_addr", cfg.Relay.NSQDAddr, "topic", cfg.Relay.Topic)
	}

	return app, nil
}

// start launches the bus, the relay and the queue workers.
func (app *application) start() error {
	app.bus.Start()
	if app.relay != nil {
		app.relay.Start(app.bus)
	}
	if err := app.manager.Start(app.config.Queue.Workers); err != nil {
		return fmt.Errorf("failed to start queue manager: %w", err)
	}
	return nil
}

// cleanup stops components in reverse dependency order: the queue drains
// into the bus, the relay flushes what the bus delivered, then the bus
// itself stops.
func (app *application) cleanup(ctx context.Context) error {
	app.logger.Info("cleaning up application resources")

	var errs []error
	if err := app.manager.Stop(ctx); err != nil {
		app.logger.Error("queue manager did not stop cleanly", "error", err)
		errs = append(errs, err)
	}
	app.bus.Stop()
	if app.relay != nil {
		app.relay.Stop()
	}
	if err := app.shutdownTracing(ctx); err != nil {
		app.logger.Error("tracing shutdown failed", "error", err)
		errs = append(errs, err)
	}

	app.logger.Info("application cleanup completed")
	return errors.Join(errs...)
}
