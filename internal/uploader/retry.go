package uploader

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy is the one retry strategy shared by file PUTs, part PUTs and
// completion notification: exponential backoff (base delay doubling per
// attempt) up to a fixed attempt budget, gated by a retryability predicate.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, first try included.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt.
	BaseDelay time.Duration

	// Retryable decides whether a failure is worth another attempt. A nil
	// predicate retries everything.
	Retryable func(error) bool
}

// Do runs op under the policy. Non-retryable errors abort immediately;
// retryable ones are returned once the budget is exhausted.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(p.MaxAttempts-1), retry.NewExponential(p.BaseDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || p.Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
