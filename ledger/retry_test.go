package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/coopware/share-engine/ledger"
	"github.com/coopware/share-engine/ledger/store"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// contendedStore simulates losing the unique-constraint race: the first
// `losses` transactions fail as duplicates before writes go through.
type contendedStore struct {
	*store.TxMemory
	losses int

	mu    sync.Mutex
	calls int
}

func (c *contendedStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	c.mu.Lock()
	c.calls++
	lose := c.calls <= c.losses
	c.mu.Unlock()

	if lose {
		return fmt.Errorf("%w: duplicate certificate number \"CERT002\"", ledger.ErrConflict)
	}
	return c.TxMemory.WithTx(ctx, fn)
}

func (c *contendedStore) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// =============================================================================
// RETRY BEHAVIOR
// =============================================================================

func TestWithConflictRetry_RecoversAfterLostRaces(t *testing.T) {
	// GIVEN: A store that refuses the first three transactions as duplicates
	// WHEN: Running a closure under conflict retry
	// THEN: The fourth attempt commits and the caller sees no error

	ctx := context.Background()
	cs := &contendedStore{TxMemory: store.NewTxMemory(), losses: 3}

	var retries []int
	hook := func(attempt int, err error) {
		retries = append(retries, attempt)
		assert.True(t, ledger.IsConflict(err))
	}

	ran := 0
	err := ledger.WithConflictRetry(ctx, cs, hook, func(st ledger.Store) error {
		ran++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, cs.callCount(), "three losses plus one success")
	assert.Equal(t, 1, ran, "closure runs only in the transaction that goes through")
	assert.Equal(t, []int{1, 2, 3}, retries)
}

func TestWithConflictRetry_NonConflictFailsImmediately(t *testing.T) {
	// GIVEN: A closure failing a business rule
	// WHEN: Running it under conflict retry
	// THEN: The failure surfaces on the first attempt, untouched

	ctx := context.Background()
	cs := &contendedStore{TxMemory: store.NewTxMemory()}

	wantErr := ledger.Invalid("approval.create", "member is not active")
	err := ledger.WithConflictRetry(ctx, cs, nil, func(st ledger.Store) error {
		return wantErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.Equal(t, 1, cs.callCount())
}

func TestWithConflictRetry_ExhaustionIsFatal(t *testing.T) {
	// GIVEN: A store that never stops returning duplicates
	// WHEN: Running under conflict retry
	// THEN: After the bounded attempts the caller gets ErrRetryExhausted

	ctx := context.Background()
	cs := &contendedStore{TxMemory: store.NewTxMemory(), losses: 1 << 30}

	err := ledger.WithConflictRetry(ctx, cs, nil, func(st ledger.Store) error {
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrRetryExhausted)
	assert.Equal(t, 10, cs.callCount(), "attempts are capped")
}

func TestWithConflictRetry_ContextCancellation(t *testing.T) {
	// GIVEN: A deadline shorter than the backoff schedule
	// WHEN: Every attempt keeps losing the race
	// THEN: The loop stops at the deadline instead of burning attempts

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	cs := &contendedStore{TxMemory: store.NewTxMemory(), losses: 1 << 30}
	err := ledger.WithConflictRetry(ctx, cs, nil, func(st ledger.Store) error {
		return nil
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ledger.ErrRetryExhausted))

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	err = ledger.WithConflictRetry(cancelled, cs, nil, func(st ledger.Store) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// NUMBERING UNIQUENESS UNDER CONCURRENT CALLERS
// =============================================================================

func TestWithConflictRetry_ConcurrentIssuance_DistinctNumbers(t *testing.T) {
	// GIVEN: CERT005 is the highest existing certificate
	// WHEN: 25 goroutines each generate-and-insert a certificate
	// THEN: All 25 numbers are distinct and above the starting maximum

	ctx := context.Background()
	mem := store.NewTxMemory()

	seed := ledger.Share{
		ID:                ledger.NewShareID(),
		CertificateNumber: "CERT005",
		MemberID:          "m-1",
		Quantity:          1,
		NominalValue:      ledger.DefaultShareDenomination,
		Value:             ledger.DefaultShareDenomination,
		Status:            ledger.ShareActive,
		IssueDate:         time.Now(),
	}
	require.NoError(t, mem.CreateShare(ctx, seed))

	const writers = 25
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			return ledger.WithConflictRetry(ctx, mem, nil, func(st ledger.Store) error {
				number, err := ledger.NextCertificateNumber(ctx, st)
				if err != nil {
					return err
				}
				return st.CreateShare(ctx, ledger.Share{
					ID:                ledger.NewShareID(),
					CertificateNumber: number,
					MemberID:          "m-1",
					Quantity:          1,
					NominalValue:      ledger.DefaultShareDenomination,
					Value:             ledger.DefaultShareDenomination,
					Status:            ledger.ShareActive,
					IssueDate:         time.Now(),
				})
			})
		})
	}
	require.NoError(t, g.Wait())

	numbers, err := mem.CertificateNumbers(ctx)
	require.NoError(t, err)
	assert.Len(t, numbers, writers+1)

	seen := map[string]bool{}
	for _, n := range numbers {
		assert.False(t, seen[n], "certificate number %s assigned twice", n)
		seen[n] = true
		suffix, ok := ledger.ParseNumber(n, ledger.CertificatePrefix)
		require.True(t, ok, "generated number %s must match the scheme", n)
		assert.GreaterOrEqual(t, suffix, 5)
	}
}
