package util

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures RetryWithBackoff. The n-th retry waits
// InitialInterval * Multiplier^(n-1), without jitter.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy retries three times after 1s, 2s and 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: time.Second,
		Multiplier:      2,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	initial := p.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	retries := max(p.MaxRetries, 0)

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMultiplier(multiplier),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(initial*time.Duration(1<<min(retries, 16))),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// RetryWithBackoff calls fn once and then up to policy.MaxRetries more times
// while it fails, sleeping between attempts. notify, if set, is called after
// every failed attempt that will be retried.
//
// Context cancellation stops retrying and returns ctx.Err(). Errors wrapped
// with backoff.Permanent are returned at once. Otherwise the last error of fn
// is returned after the budget is spent.
func RetryWithBackoff[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn func(context.Context) (T, error),
	notify func(err error, wait time.Duration),
) (T, error) {
	op := func() (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}
		result, err := fn(ctx)
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && ctx.Err() != nil {
			return zero, backoff.Permanent(err)
		}
		return result, err
	}

	return backoff.RetryNotifyWithData(op, policy.backOff(ctx), notify)
}
