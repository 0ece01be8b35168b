package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how often a caller redispatches an event whose chain
// failed with a retryable error, typically an optimistic-lock conflict.
type RetryPolicy struct {
	// Attempts includes the first dispatch. Values below 1 mean one attempt.
	Attempts int

	// Backoff is the wait before the second attempt. It doubles after each
	// retry, up to MaxBackoff when that is set.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// Retryable overrides IsRetryable.
	Retryable func(error) bool
}

// DefaultRetry suits optimistic-lock conflicts on entity writes.
var DefaultRetry = RetryPolicy{
	Attempts:   3,
	Backoff:    50 * time.Millisecond,
	MaxBackoff: 2 * time.Second,
}

// RetryResult is the outcome of WithRetryContext.
type RetryResult[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// WithRetryContext calls fn until it succeeds, returns an error the policy
// does not retry, runs out of attempts or ctx is done. Errors are returned
// as *CategorizedError.
//
// Each attempt must build a fresh event: processors mutate events in place,
// so redispatching an event from a failed attempt replays stale state.
func WithRetryContext[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) RetryResult[T] {
	attempts := max(p.Attempts, 1)
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var res RetryResult[T]
	wait := p.Backoff
	for res.Attempts < attempts {
		if err := ctx.Err(); err != nil {
			res.Err = &CategorizedError{Err: err, Category: CategoryPermanent, Context: "context cancelled", Retries: res.Attempts}
			return res
		}

		res.Attempts++
		value, err := fn(ctx)
		if err == nil {
			res.Value, res.Err = value, nil
			return res
		}
		res.Value = value
		res.Err = &CategorizedError{Err: err, Category: Categorize(err), Retries: res.Attempts}
		if !retryable(err) {
			return res
		}
		if res.Attempts == attempts {
			break
		}

		select {
		case <-ctx.Done():
			res.Err = &CategorizedError{Err: ctx.Err(), Category: CategoryPermanent, Context: "context cancelled during backoff", Retries: res.Attempts}
			return res
		case <-time.After(jittered(wait)):
		}
		wait *= 2
		if p.MaxBackoff > 0 && wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}
	}

	res.Err.(*CategorizedError).Context = "max retries exceeded"
	return res
}

// jittered spreads d by up to 10% in either direction.
func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(float64(d)*0.1*(rand.Float64()*2-1))
}
