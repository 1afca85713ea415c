package retry

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ally/pkg/errors"
)

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  2 * time.Minute,
	}
}

// Retry runs fn under the policy. Errors whose kind is deterministic
// (validation, invalid config, duplicate key) abort immediately; everything
// else is retried with exponential backoff until attempts or elapsed time
// run out.
func Retry(ctx context.Context, policy Policy, fn func() error) error {
	return RetryNotify(ctx, policy, fn, nil)
}

func RetryNotify(ctx context.Context, policy Policy, fn func() error, notify func(err error, next time.Duration)) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}

	exp := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		exp.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		exp.MaxInterval = policy.MaxInterval
	}
	if policy.Multiplier > 0 {
		exp.Multiplier = policy.Multiplier
	}
	exp.MaxElapsedTime = policy.MaxElapsedTime

	var b backoff.BackOff = exp
	b = backoff.WithContext(b, ctx)
	b = backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}

		var fatalErr errors.FatalError
		if stderrors.As(err, &fatalErr) && fatalErr.IsFatal() {
			return backoff.Permanent(err)
		}

		var retryableErr errors.RetryableError
		if stderrors.As(err, &retryableErr) && !retryableErr.IsRetryable() {
			return backoff.Permanent(err)
		}

		return err
	}

	if notify == nil {
		return backoff.Retry(operation, b)
	}
	return backoff.RetryNotify(operation, b, notify)
}
