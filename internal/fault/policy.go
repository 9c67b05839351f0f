package fault

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/phrazzld/docsmith/internal/config"
)

// Policy decides whether and when a failed attempt is retried.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	// MaxDelay caps a single backoff; zero means uncapped.
	MaxDelay time.Duration
	// Jitter in [0,1] randomly shortens each delay by up to that fraction.
	Jitter float64
	// RetryOn is the allow-list of retryable kinds. Nil means the default
	// list.
	RetryOn map[Kind]bool
}

// DefaultRetryOn is the default allow-list.
var DefaultRetryOn = map[Kind]bool{
	KindRateLimit: true,
	KindProvider:  true,
	KindNetwork:   true,
}

// DefaultPolicy retries transient failures three times starting at one
// second and doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 2,
		MaxDelay:   5 * time.Minute,
	}
}

// PolicyFromConfig builds a Policy from queue settings.
func PolicyFromConfig(cfg config.QueueConfig) Policy {
	return Policy{
		MaxRetries: cfg.DefaultMaxRetries,
		BaseDelay:  cfg.RetryDelayBase,
		Multiplier: cfg.BackoffMultiplier,
		MaxDelay:   cfg.MaxBackoff,
	}
}

// Retryable reports whether kind is on the allow-list.
func (p Policy) Retryable(kind Kind) bool {
	if p.RetryOn == nil {
		return DefaultRetryOn[kind]
	}
	return p.RetryOn[kind]
}

// Delay returns base * Multiplier^retryCount, capped at MaxDelay.
func (p Policy) Delay(base time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		base = p.BaseDelay
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(base) * math.Pow(mult, float64(retryCount))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d -= rand.Float64() * p.Jitter * d
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Decision is the verdict for one failed attempt.
type Decision struct {
	Retry bool
	// RetryCount is the count after this decision; it only advances when
	// Retry is true.
	RetryCount int
	Delay      time.Duration
	// Exhausted is set when the kind was retryable but the budget ran out.
	Exhausted bool
}

// Decide is the retry rule: only failed outcomes of an allow-listed kind
// with retry budget left are retried, after Delay(base, retryCount+1).
func (p Policy) Decide(o Outcome, retryCount, maxRetries int, base time.Duration) Decision {
	if o.Success || !p.Retryable(o.Kind) {
		return Decision{RetryCount: retryCount}
	}
	if retryCount >= maxRetries {
		return Decision{RetryCount: retryCount, Exhausted: true}
	}
	next := retryCount + 1
	return Decision{Retry: true, RetryCount: next, Delay: p.Delay(base, next)}
}
