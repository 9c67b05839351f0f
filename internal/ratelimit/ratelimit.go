// Package ratelimit gates calls to shared resources (provider models, APIs)
// behind per-key request and cost budgets.
//
// Two strategies implement Limiter:
//   - WindowLimiter: fixed windows that reset wholesale when they expire.
//     A caller that would exceed the budget sleeps until the window resets.
//   - TokenBucketLimiter: continuously refilling buckets backed by
//     golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/docsmith/internal/config"
)

var (
	// ErrCostExceedsBudget is returned when a single acquisition asks for more
	// cost than the whole window allows; waiting would never help.
	ErrCostExceedsBudget = errors.New("cost exceeds rate limit budget")

	// ErrInvalidCost is returned for negative costs.
	ErrInvalidCost = errors.New("rate limit cost must not be negative")
)

// Limiter grants permission to consume one request and cost units of a
// resource. Acquire blocks until the budget allows it or ctx is done.
type Limiter interface {
	Acquire(ctx context.Context, key string, cost int) error
}

// Budget is the allowance of one resource per period.
type Budget struct {
	Requests int
	Cost     int
}

// Config describes limiter budgets.
type Config struct {
	Requests int
	Cost     int
	Period   time.Duration
	// Jitter adds up to Jitter*wait of random delay to spread waiters that
	// would otherwise wake together.
	Jitter float64
	// Overrides replaces the default budget for specific keys.
	Overrides map[string]Budget
}

// DefaultConfig returns 60 requests and 90000 cost units per minute.
func DefaultConfig() Config {
	return Config{
		Requests: 60,
		Cost:     90000,
		Period:   time.Minute,
	}
}

func (c Config) budget(key string) Budget {
	if b, ok := c.Overrides[key]; ok {
		return b
	}
	return Budget{Requests: c.Requests, Cost: c.Cost}
}

func (c Config) validate() error {
	if c.Requests <= 0 || c.Cost <= 0 || c.Period <= 0 {
		return fmt.Errorf("invalid rate limit config: requests=%d cost=%d period=%s", c.Requests, c.Cost, c.Period)
	}
	for key, b := range c.Overrides {
		if b.Requests <= 0 || b.Cost <= 0 {
			return fmt.Errorf("invalid rate limit override for %q: requests=%d cost=%d", key, b.Requests, b.Cost)
		}
	}
	return nil
}

// FromConfig converts application settings into a limiter Config.
func FromConfig(cfg config.RateLimitConfig) Config {
	return Config{
		Requests: cfg.Requests,
		Cost:     cfg.Cost,
		Period:   cfg.Period,
		Jitter:   cfg.Jitter,
	}
}

// New builds the limiter named by cfg.Strategy.
func New(cfg config.RateLimitConfig, logger *slog.Logger) (Limiter, error) {
	switch cfg.Strategy {
	case "", "window":
		return NewWindowLimiter(FromConfig(cfg), logger)
	case "token_bucket":
		return NewTokenBucketLimiter(FromConfig(cfg), logger)
	default:
		return nil, fmt.Errorf("unknown rate limit strategy %q", cfg.Strategy)
	}
}

// Unlimited grants every acquisition immediately.
type Unlimited struct{}

func (Unlimited) Acquire(ctx context.Context, _ string, _ int) error {
	return ctx.Err()
}
