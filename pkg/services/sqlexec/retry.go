/*
2021 © Postgres.ai
*/

package sqlexec

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Retry policy defaults.
const (
	DefaultMaxAttempts = 4
	DefaultRetryDelay  = time.Second
)

// Policy describes how failed attempts are repeated.
type Policy struct {
	// MaxAttempts counts the initial attempt.
	MaxAttempts uint
	// BaseDelay is multiplied by the retry number: 1x before the second attempt, 2x before the third, and so on.
	BaseDelay   time.Duration
	IsRetryable func(error) bool
}

// DefaultPolicy returns the policy with 4 attempts and a linear 1s backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultRetryDelay,
		IsRetryable: IsRetryable,
	}
}

// Delay returns the pause after the given failed attempt.
func (p Policy) Delay(attempt uint) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

// Attempt describes a failed attempt that is going to be repeated.
type Attempt struct {
	Index uint
	Delay time.Duration
	Err   error
}

// linearBackOff implements backoff.BackOff on top of the policy delays.
type linearBackOff struct {
	policy  Policy
	retries uint
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.retries++
	return b.policy.Delay(b.retries)
}

func (b *linearBackOff) Reset() {
	b.retries = 0
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	if p.MaxAttempts <= 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	return backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{policy: p}, uint64(p.MaxAttempts-1)), ctx)
}

// Retry runs op until it succeeds, fails with a non-retryable error, or the attempts are exhausted.
// onRetry is called before each pause. The number of performed attempts is returned along with
// the result; exhaustion is reported as a DatabaseError wrapping the last error.
func Retry(ctx context.Context, p Policy, op func(ctx context.Context) error, onRetry func(Attempt)) (uint, error) {
	isRetryable := p.IsRetryable
	if isRetryable == nil {
		isRetryable = IsRetryable
	}

	var (
		attempts  uint
		permanent bool
	)

	operation := func() error {
		attempts++

		err := op(ctx)
		if err != nil && !isRetryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, delay time.Duration) {
		if onRetry != nil {
			onRetry(Attempt{Index: attempts, Delay: delay, Err: err})
		}
	}

	err := backoff.RetryNotify(operation, p.backOff(ctx), notify)
	if err == nil {
		return attempts, nil
	}

	if ctx.Err() != nil {
		return attempts, ctx.Err()
	}

	if permanent {
		return attempts, err
	}

	return attempts, &DatabaseError{Attempts: attempts, Err: err}
}
