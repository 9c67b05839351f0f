package fault

import (
	"context"
	"fmt"
	"time"
)

// Do runs op until it succeeds, fails with a kind outside the allow-list,
// or exhausts p.MaxRetries. Every failure is reported through r (which may
// be nil). The last error is returned; budget exhaustion is wrapped with the
// attempt count.
func Do(ctx context.Context, p Policy, r *Reporter, op func(ctx context.Context) error) error {
	retryCount := 0
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}

		if r != nil {
			_ = r.Report(ctx, err)
		}

		d := p.Decide(Classify(err), retryCount, p.MaxRetries, p.BaseDelay)
		if !d.Retry {
			if d.Exhausted {
				return fmt.Errorf("%w: exceeded maximum retry attempts (%d)", err, p.MaxRetries)
			}
			return err
		}

		timer := time.NewTimer(d.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w: %w", ctx.Err(), err)
		case <-timer.C:
		}
		retryCount = d.RetryCount
	}
}

// Call is Do for operations that produce a value.
func Call[T any](ctx context.Context, p Policy, r *Reporter, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, r, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
