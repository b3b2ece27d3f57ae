package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"

	"bottle/internal/models"
)

// Policy bounds every network call: each attempt runs under Timeout, and
// retryable failures are retried every Interval up to MaxAttempts tries.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	Timeout     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Interval: time.Second, Timeout: 30 * time.Second}
}

// Once is p without retries. The Timeout still applies.
func (p Policy) Once() Policy {
	p.MaxAttempts = 1
	return p
}

// Do runs op under the policy.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Call(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Call runs op under p and returns its value. Errors that models.Retryable
// rejects are returned after the first attempt.
func Call[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := withTimeout(ctx, p.Timeout, op)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !models.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Interval)),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.WithError(err).Warnf("Attempt %d/%d failed, retrying in %s", attempt, attempts, next)
		}),
	)
}

// withTimeout turns a call that outlives d into models.ErrTimeout, even if
// op ignores its context.
func withTimeout[T any](ctx context.Context, d time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return op(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(callCtx)
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return res.v, fmt.Errorf("%w after %s: %v", models.ErrTimeout, d, res.err)
		}
		return res.v, res.err
	case <-callCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %s", models.ErrTimeout, d)
	}
}
