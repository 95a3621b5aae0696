package errors

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts (initial call included).
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// JitterRatioPct is the percentage of the delay randomized away
	// (full jitter). 100 means the wait is uniform in [0, delay].
	JitterRatioPct int

	// OnRetry, when set, is called before each retry attempt.
	OnRetry func(attempt int, err error)

	// OnExhausted, when set, is called when the final attempt fails.
	OnExhausted func(attempts int, err error)
}

// DefaultRetryPolicy returns sensible defaults for network operations.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       8 * time.Second,
		JitterRatioPct: 100,
	}
}

// normalized applies floor values so a zero policy still makes progress.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.JitterRatioPct < 0 {
		p.JitterRatioPct = 0
	}
	if p.JitterRatioPct > 100 {
		p.JitterRatioPct = 100
	}
	return p
}

// nextDelay computes the wait before the given retry (1-based), applying
// exponential backoff and full jitter.
func (p RetryPolicy) nextDelay(retry int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.JitterRatioPct > 0 {
		jittered := float64(delay) * float64(p.JitterRatioPct) / 100
		fixed := float64(delay) - jittered
		delay = time.Duration(fixed + rand.Float64()*jittered)
	}
	return delay
}

// Retry executes fn with exponential backoff. Only errors whose Class is
// Retriable are retried; everything else is returned immediately.
// Context cancellation is surfaced as core:cancelled.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	_, err := RetryWithResult(ctx, policy, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes fn with exponential backoff, returning its
// result. Only Retriable errors are retried.
func RetryWithResult[T any](ctx context.Context, policy RetryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	policy = policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, Cancelled("retry").WithCause(ctx.Err())
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetriable(err) || attempt == policy.MaxAttempts {
			break
		}

		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err)
		}

		select {
		case <-ctx.Done():
			return zero, Cancelled("retry").WithCause(ctx.Err())
		case <-time.After(policy.nextDelay(attempt)):
		}
	}

	if policy.OnExhausted != nil && IsRetriable(lastErr) {
		policy.OnExhausted(policy.MaxAttempts, lastErr)
	}
	return zero, lastErr
}
