package tx

import (
	"context"

	"larder/internal/core/apperror"
	"larder/pkg/logger"
)

// DefaultMaxAttempts bounds whole-operation retries on optimistic-lock conflicts.
const DefaultMaxAttempts = 3

// WithRetry runs fn in a transaction, re-running the whole transaction when it fails
// with a concurrent modification. Any other error is returned as is. After maxAttempts
// conflicting attempts a ConcurrencyConflict error wrapping the last conflict is returned.
//
// fn must recompute everything it writes from what it reads inside the transaction.
func WithRetry(ctx context.Context, m Manager, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := m.RunInTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !apperror.IsConcurrentModification(err) {
			return err
		}

		lastErr = err
		logger.Debug(ctx, "transaction conflict, retrying", "attempt", attempt, "max_attempts", maxAttempts, "error", err)
	}

	return apperror.NewConcurrencyConflict(maxAttempts).WithCause(lastErr)
}
