package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is an explicit retry-policy value: the total number of
// attempts and a factory for the backoff schedule between them. Policies are
// threaded through fetch calls so the schedule stays testable with a zero
// pause.
type RetryPolicy struct {
	MaxAttempts uint64
	NewBackOff  func() backoff.BackOff
}

// ConstantRetry returns a policy allowing maxAttempts total attempts with a
// fixed pause between them.
func ConstantRetry(maxAttempts uint64, pause time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		NewBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(pause)
		},
	}
}

// ExponentialRetry returns a policy allowing maxAttempts total attempts with
// exponential backoff starting at baseDelay.
func ExponentialRetry(maxAttempts uint64, baseDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = baseDelay
			return b
		},
	}
}

// Do calls fn under the policy. It returns nil on the first successful call,
// or the last error once the attempts are exhausted. Context cancellation
// stops further attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(p.NewBackOff(), attempts-1), ctx)
	return backoff.Retry(fn, b)
}
