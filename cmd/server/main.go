// Package main implements the docsmith server: the task queue, event bus
// and rate limiter behind an HTTP introspection API.
package main

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/phrazzld/docsmith/internal/config"
	"github.com/phrazzld/docsmith/internal/platform/logger"
)

func main() {
	if err := runServer(context.Background()); err != nil {
		log.Fatalf("docsmith: %v", err)
	}
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"workers", cfg.Queue.Workers,
		"relay_enabled", cfg.Relay.Enabled,
		"tracing_enabled", cfg.Tracing.Enabled)

	app, err := newApplication(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", cfg.Server.Port, err)
	}
	return app.run(ctx, ln)
}
