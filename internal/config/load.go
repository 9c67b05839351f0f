package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable Load consults,
// e.g. DOCSMITH_QUEUE_WORKERS.
const EnvPrefix = "DOCSMITH"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.default_max_retries", 3)
	v.SetDefault("queue.default_timeout", "5m")
	v.SetDefault("queue.retry_delay_base", "1s")
	v.SetDefault("queue.backoff_multiplier", 2.0)
	v.SetDefault("queue.max_backoff", "5m")
	v.SetDefault("queue.retention", "1h")
	v.SetDefault("queue.sweep_interval", "1m")

	v.SetDefault("ratelimit.strategy", "window")
	v.SetDefault("ratelimit.requests", 60)
	v.SetDefault("ratelimit.cost", 90000)
	v.SetDefault("ratelimit.period", "1m")
	v.SetDefault("ratelimit.jitter", 0.0)

	v.SetDefault("events.history_size", 1000)

	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.nsqd_addr", "")
	v.SetDefault("relay.topic", "docsmith.events")
	v.SetDefault("relay.event_types", []string{})
	v.SetDefault("relay.buffer_size", 256)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "docsmith")
}

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files, which
// take precedence over defaults.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tag constraints on a Config.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
