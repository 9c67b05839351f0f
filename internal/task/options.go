package task

import (
	"time"

	"github.com/phrazzld/docsmith/internal/config"
	"github.com/phrazzld/docsmith/internal/fault"
)

// DefaultTimeout bounds a single handler attempt when no other timeout is
// configured.
const DefaultTimeout = 5 * time.Minute

// Option configures a Manager.
type Option func(*Manager)

// WithReporter sets the reporter used for terminal failures.
func WithReporter(r *fault.Reporter) Option {
	return func(m *Manager) {
		if r != nil {
			m.reporter = r
		}
	}
}

// WithRetention enables the background sweeper. Terminal tasks older than
// ttl are evicted every interval.
func WithRetention(ttl, interval time.Duration) Option {
	return func(m *Manager) {
		m.retention = ttl
		m.sweepInterval = interval
	}
}

// WithDefaults sets the per-task values used when Enqueue is not given
// explicit ones. A zero timeout disables the per-attempt deadline.
func WithDefaults(timeout time.Duration, maxRetries int, retryDelayBase time.Duration) Option {
	return func(m *Manager) {
		m.defaultTimeout = timeout
		if maxRetries >= 0 {
			m.defaultMaxRetries = maxRetries
		}
		if retryDelayBase > 0 {
			m.defaultRetryBase = retryDelayBase
		}
	}
}

// OptionsFromConfig translates queue settings into manager options.
func OptionsFromConfig(cfg config.QueueConfig) []Option {
	opts := []Option{WithDefaults(cfg.DefaultTimeout, cfg.DefaultMaxRetries, cfg.RetryDelayBase)}
	if cfg.Retention > 0 {
		opts = append(opts, WithRetention(cfg.Retention, cfg.SweepInterval))
	}
	return opts
}

type enqueueOptions struct {
	priority       Priority
	correlationID  string
	timeout        time.Duration
	maxRetries     int
	retryDelayBase time.Duration
	cost           int
}

// EnqueueOption adjusts a single task.
type EnqueueOption func(*enqueueOptions)

// WithPriority sets the priority tier. The default is PriorityNormal.
func WithPriority(p Priority) EnqueueOption {
	return func(o *enqueueOptions) { o.priority = p }
}

// WithCorrelationID groups the task with others sharing id.
func WithCorrelationID(id string) EnqueueOption {
	return func(o *enqueueOptions) { o.correlationID = id }
}

// WithTimeout bounds each handler attempt.
func WithTimeout(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.timeout = d }
}

// WithMaxRetries sets the retry budget.
func WithMaxRetries(n int) EnqueueOption {
	return func(o *enqueueOptions) { o.maxRetries = n }
}

// WithRetryDelayBase sets the base of the exponential backoff.
func WithRetryDelayBase(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.retryDelayBase = d }
}

// WithCost sets the rate-limit cost charged per attempt. The default is 1.
func WithCost(cost int) EnqueueOption {
	return func(o *enqueueOptions) { o.cost = cost }
}
