// Package retrypolicy gives every retrying call site an explicit policy: how
// many attempts, which errors are worth another attempt, how long to pause,
// and what has to happen before the next attempt (rotate a key, refresh a
// token, ask for a repair). Attempt state lives in the call, never in the
// policy, so independent calls always start from attempt zero.
package retrypolicy

import (
	"context"
	"log"
	"time"

	"github.com/avast/retry-go/v4"
)

type Policy struct {
	Name        string
	MaxAttempts uint
	// Retryable decides whether err earns another attempt. Nil retries everything.
	Retryable func(err error) bool
	// Delay is the pause before attempt n (n >= 1). Nil means no pause.
	Delay func(n uint, err error) time.Duration
	// Prepare runs before attempt n (n >= 1) with the error that ended the
	// previous attempt. An error from Prepare ends the call with that error.
	Prepare func(ctx context.Context, n uint, lastErr error) error
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. The returned error is the last one observed.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt uint) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	var n uint
	var lastErr error
	call := func() (T, error) {
		attempt := n
		n++
		if attempt > 0 && p.Prepare != nil {
			if err := p.Prepare(ctx, attempt, lastErr); err != nil {
				var zero T
				return zero, retry.Unrecoverable(err)
			}
		}
		result, err := fn(ctx, attempt)
		if err != nil {
			lastErr = err
		}
		return result, err
	}

	return retry.DoWithData(call,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if !retry.IsRecoverable(err) {
				return false
			}
			return p.Retryable == nil || p.Retryable(err)
		}),
		retry.DelayType(func(next uint, err error, _ *retry.Config) time.Duration {
			if p.Delay == nil {
				return 0
			}
			return p.Delay(next, err)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			if attempt+1 < attempts && p.Name != "" {
				log.Printf("[Retry] %s attempt %d/%d failed: %v", p.Name, attempt+1, attempts, err)
			}
		}),
	)
}
