/*
retry.go - Bounded conflict retry around store transactions

PURPOSE:
  Wraps a transactional closure so that losing a unique-constraint race
  (two writers computing the same certificate or member number from a
  stale scan) is retried transparently instead of surfacing to the
  caller. Each attempt re-runs the whole closure against a fresh
  transaction, so every retry re-scans before it re-inserts.

POLICY:
  - At most 10 attempts
  - Exponential backoff from 10ms, capped at 500ms
  - Full jitter: each wait is uniform in [0, backoff)
  - Context cancellation aborts between attempts
  - Exhaustion returns ErrRetryExhausted; never a silently wrong number

Only unique-violation errors are retried. Validation, not-found, and
transition failures pass straight through; retrying them cannot help.

SEE ALSO:
  - numbering.go: The stale-scan race this loop resolves
  - store.go: TxStore.WithTx / IsUniqueViolation
*/
package ledger

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

const (
	conflictMaxAttempts = 10
	conflictBackoffBase = 10 * time.Millisecond
	conflictBackoffCap  = 500 * time.Millisecond
)

// RetryHook is notified after each lost race, before the next attempt.
// attempt counts from 1. Optional; pass nil for no observation.
type RetryHook func(attempt int, err error)

// WithConflictRetry executes fn inside store.WithTx, retrying the whole
// transaction while it fails with a unique-constraint violation. Any
// other error, a cancelled context, or a clean commit ends the loop
// immediately.
func WithConflictRetry(ctx context.Context, store TxStore, hook RetryHook, fn func(Store) error) error {
	var lastErr error

	for attempt := 1; attempt <= conflictMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !store.IsUniqueViolation(err) {
			return err
		}

		lastErr = err
		if hook != nil {
			hook(attempt, err)
		}
		if attempt == conflictMaxAttempts {
			break
		}

		wait := fullJitter(backoffFor(attempt))
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, conflictMaxAttempts, lastErr)
}

// backoffFor doubles the base per attempt, capped. attempt counts from 1.
func backoffFor(attempt int) time.Duration {
	d := conflictBackoffBase * time.Duration(1<<(attempt-1))
	if d > conflictBackoffCap || d <= 0 {
		return conflictBackoffCap
	}
	return d
}

// fullJitter returns a uniform duration in [0, d).
func fullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d)))
}
