package ratelimit

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/phrazzld/docsmith/internal/metrics"
)

// Window is the accounting state of one resource key.
type Window struct {
	ResourceKey  string
	RequestCount int
	CostCount    int
	WindowStart  time.Time
}

// WindowLimiter enforces fixed-window budgets per key. Windows are
// independent; exhausting one key never delays another.
type WindowLimiter struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	windows map[string]*Window
}

// NewWindowLimiter validates cfg and returns a limiter with no windows yet.
func NewWindowLimiter(cfg Config, logger *slog.Logger) (*WindowLimiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &WindowLimiter{
		cfg:     cfg,
		logger:  logger.With("component", "window_rate_limiter"),
		windows: make(map[string]*Window),
	}, nil
}

// Acquire consumes one request and cost units from key's window. When the
// window cannot cover them, it sleeps until the window resets and tries
// again. Every waiter on a key wakes at the reset; whoever re-locks first
// is served first.
func (l *WindowLimiter) Acquire(ctx context.Context, key string, cost int) error {
	if cost < 0 {
		return ErrInvalidCost
	}
	budget := l.cfg.budget(key)
	if cost > budget.Cost {
		return ErrCostExceedsBudget
	}

	var waited time.Duration
	for {
		l.mu.Lock()
		now := time.Now()
		w := l.windowLocked(key, now)
		if w.RequestCount+1 <= budget.Requests && w.CostCount+cost <= budget.Cost {
			w.RequestCount++
			w.CostCount += cost
			l.mu.Unlock()

			if waited > 0 {
				metrics.RecordRateLimitWait(key, waited)
			}
			return nil
		}
		wait := l.cfg.Period - now.Sub(w.WindowStart)
		requests, spent := w.RequestCount, w.CostCount
		l.mu.Unlock()

		wait += l.jitter(wait)
		l.logger.Warn("rate limit reached, waiting for window reset",
			"resource", key,
			"requests", requests,
			"cost", spent,
			"wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		waited += wait
	}
}

// windowLocked returns key's window, creating it or resetting it once the
// period has elapsed.
func (l *WindowLimiter) windowLocked(key string, now time.Time) *Window {
	w, ok := l.windows[key]
	if !ok {
		w = &Window{ResourceKey: key, WindowStart: now}
		l.windows[key] = w
		return w
	}
	if now.Sub(w.WindowStart) >= l.cfg.Period {
		w.RequestCount = 0
		w.CostCount = 0
		w.WindowStart = now
	}
	return w
}

func (l *WindowLimiter) jitter(wait time.Duration) time.Duration {
	if l.cfg.Jitter <= 0 || wait <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * l.cfg.Jitter * float64(wait))
}

// Window returns a copy of key's current window.
func (l *WindowLimiter) Window(key string) (Window, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		return Window{}, false
	}
	return *w, true
}
