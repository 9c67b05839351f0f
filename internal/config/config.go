package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Queue     QueueConfig     `mapstructure:"queue" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" validate:"required"`
	Events    EventsConfig    `mapstructure:"events" validate:"required"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// QueueConfig controls the task queue manager: worker count, retry budget,
// backoff and retention of finished tasks.
type QueueConfig struct {
	Workers           int           `mapstructure:"workers" validate:"required,gt=0"`
	DefaultMaxRetries int           `mapstructure:"default_max_retries" validate:"gte=0"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout" validate:"gte=0"`
	RetryDelayBase    time.Duration `mapstructure:"retry_delay_base" validate:"gt=0"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" validate:"gte=1"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff" validate:"gtefield=RetryDelayBase"`
	// Retention of zero keeps finished tasks until the process exits.
	Retention     time.Duration `mapstructure:"retention" validate:"gte=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
}

// RateLimitConfig describes the per-resource budget applied before a task
// handler runs.
type RateLimitConfig struct {
	Strategy string        `mapstructure:"strategy" validate:"required,oneof=window token_bucket"`
	Requests int           `mapstructure:"requests" validate:"required,gt=0"`
	Cost     int           `mapstructure:"cost" validate:"required,gt=0"`
	Period   time.Duration `mapstructure:"period" validate:"required,gt=0"`
	Jitter   float64       `mapstructure:"jitter" validate:"gte=0,lte=1"`
}

// EventsConfig contains event bus settings.
type EventsConfig struct {
	HistorySize int `mapstructure:"history_size" validate:"gte=0"`
}

// RelayConfig controls forwarding of bus events to NSQ.
type RelayConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	NSQDAddr   string   `mapstructure:"nsqd_addr" validate:"required_if=Enabled true"`
	Topic      string   `mapstructure:"topic" validate:"required_if=Enabled true"`
	EventTypes []string `mapstructure:"event_types"`
	BufferSize int      `mapstructure:"buffer_size" validate:"gte=0"`
}

// TracingConfig contains OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	ServiceName string `mapstructure:"service_name"`
}
