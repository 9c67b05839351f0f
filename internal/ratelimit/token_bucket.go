package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/docsmith/internal/metrics"
	"golang.org/x/time/rate"
)

// waitThreshold is the wait below which an acquisition is not reported as
// throttled.
const waitThreshold = time.Millisecond

type buckets struct {
	requests *rate.Limiter
	cost     *rate.Limiter
}

// TokenBucketLimiter refills request and cost budgets continuously instead
// of resetting them at window boundaries. Bursts up to the full budget are
// allowed.
type TokenBucketLimiter struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	keys map[string]*buckets
}

// NewTokenBucketLimiter validates cfg and returns an empty limiter.
func NewTokenBucketLimiter(cfg Config, logger *slog.Logger) (*TokenBucketLimiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &TokenBucketLimiter{
		cfg:    cfg,
		logger: logger.With("component", "token_bucket_rate_limiter"),
		keys:   make(map[string]*buckets),
	}, nil
}

func (l *TokenBucketLimiter) bucketsFor(key string) *buckets {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.keys[key]
	if !ok {
		budget := l.cfg.budget(key)
		periodSeconds := l.cfg.Period.Seconds()
		b = &buckets{
			requests: rate.NewLimiter(rate.Limit(float64(budget.Requests)/periodSeconds), budget.Requests),
			cost:     rate.NewLimiter(rate.Limit(float64(budget.Cost)/periodSeconds), budget.Cost),
		}
		l.keys[key] = b
	}
	return b
}

// Acquire waits for one request token and cost cost tokens.
func (l *TokenBucketLimiter) Acquire(ctx context.Context, key string, cost int) error {
	if cost < 0 {
		return ErrInvalidCost
	}
	if cost > l.cfg.budget(key).Cost {
		return ErrCostExceedsBudget
	}

	b := l.bucketsFor(key)
	start := time.Now()

	if err := b.requests.Wait(ctx); err != nil {
		return err
	}
	if cost > 0 {
		if err := b.cost.WaitN(ctx, cost); err != nil {
			return err
		}
	}

	if waited := time.Since(start); waited > waitThreshold {
		metrics.RecordRateLimitWait(key, waited)
		l.logger.Debug("rate limit throttled acquisition", "resource", key, "wait", waited)
	}
	return nil
}
