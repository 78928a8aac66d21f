/*
Package shares implements the certificate workflows of the cooperative
share ledger: issuance, the approval workflow for additional shares, the
transfer workflow, and certificate consolidation.

PURPOSE (this file, issuance.go):
  Materializing certificates. Every certificate in the system is born
  here: the initial share issued with a new membership, the certificate
  an approved request turns into, the recipient certificate of a
  completed transfer, and the merged certificate of a consolidation.

INVARIANTS:
  - Certificate numbers are assigned inside the inserting transaction
    from a fresh scan; uniqueness is the store's unique index plus the
    caller's conflict retry, never an in-process counter.
  - NominalValue and Value are equal at issuance.
  - The quantity cap applies where the workflow demands it (initial
    issuance, transfer recipients), not here: Issue is the mechanism,
    the workflows are the policy.

WHO CALLS THIS:
  - members.Service.CreateMember: initial share, same transaction as
    the member row
  - ApprovalService.Complete: certificate for the approved quantity
  - TransferService.Complete: recipient certificate
  - ConsolidationService.Consolidate: merged certificate

SEE ALSO:
  - approval.go: Additional-share approval workflow
  - transfer.go: Transfer workflow and the member-locking side effect
  - consolidation.go: Certificate merging
*/
package shares

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/coopware/share-engine/ledger"
	"github.com/coopware/share-engine/metrics"
)

// =============================================================================
// ISSUER - Materializes certificates inside caller transactions
// =============================================================================

// Issuer creates certificates. It holds no store: every method runs
// against the Store handle of the transaction the caller already opened,
// so issuance commits or rolls back with the rest of the operation.
type Issuer struct {
	Settings ledger.CooperativeSettings
	Now      func() time.Time // nil means time.Now
}

// IssueInput describes one certificate to materialize.
type IssueInput struct {
	MemberID     ledger.MemberID
	Quantity     int
	NominalValue decimal.Decimal
	Value        decimal.Decimal
	Notes        string
}

// Issue assigns the next certificate number from a fresh scan and inserts
// the certificate as Active, issued now. Run inside the transaction that
// owns the surrounding operation; pair with ledger.WithConflictRetry when
// the insert can race.
func (i Issuer) Issue(ctx context.Context, st ledger.Store, in IssueInput) (*ledger.Share, error) {
	number, err := ledger.NextCertificateNumber(ctx, st)
	if err != nil {
		return nil, err
	}

	now := i.now()
	share := ledger.Share{
		ID:                ledger.NewShareID(),
		CertificateNumber: number,
		MemberID:          in.MemberID,
		Quantity:          in.Quantity,
		NominalValue:      in.NominalValue,
		Value:             in.Value,
		Status:            ledger.ShareActive,
		IssueDate:         now,
		Notes:             in.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := st.CreateShare(ctx, share); err != nil {
		return nil, err
	}
	return &share, nil
}

// IssueInitialShare materializes a new member's first certificate at the
// configured denomination. Runs inside the member-creation transaction:
// member row and certificate commit together or not at all. The quantity
// cap is enforced here; a breach fails the whole creation.
func (i Issuer) IssueInitialShare(ctx context.Context, st ledger.Store, memberID ledger.MemberID, quantity int) (*ledger.Share, error) {
	if err := i.EnsureCapacity(ctx, st, memberID, quantity); err != nil {
		return nil, err
	}
	denomination := i.Settings.Denomination()
	return i.Issue(ctx, st, IssueInput{
		MemberID:     memberID,
		Quantity:     quantity,
		NominalValue: denomination,
		Value:        denomination,
		Notes:        "Initial share issuance",
	})
}

// EnsureCapacity verifies that adding quantity units keeps the member at
// or under the configured per-member cap.
func (i Issuer) EnsureCapacity(ctx context.Context, st ledger.Store, memberID ledger.MemberID, quantity int) error {
	held, err := st.ActiveQuantity(ctx, memberID)
	if err != nil {
		return err
	}
	limit := i.Settings.MaxShares()
	if held+quantity > limit {
		return ledger.Invalid("share.issue",
			"member would hold %d shares, exceeding the cap of %d", held+quantity, limit)
	}
	return nil
}

func (i Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

// =============================================================================
// INITIAL SHARE / PAYMENT QUERIES
// =============================================================================

// InitialShare returns the member's earliest-issued certificate (by issue
// date, certificate number as tiebreak), or nil when the member holds no
// certificates at all.
func InitialShare(ctx context.Context, st ledger.ShareStore, memberID ledger.MemberID) (*ledger.Share, error) {
	shares, err := st.ListSharesByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if len(shares) == 0 {
		return nil, nil
	}
	return &shares[0], nil
}

// IsFullyPaid reports whether the certificate's completed payments cover
// its total value.
func IsFullyPaid(ctx context.Context, st ledger.PaymentStore, share *ledger.Share) (bool, error) {
	paid, err := st.PaidAmount(ctx, share.ID)
	if err != nil {
		return false, err
	}
	return share.IsFullyPaid(paid), nil
}

// =============================================================================
// UTILITY FUNCTIONS - Shared service plumbing
// =============================================================================

// clockNow resolves an optional clock override.
func clockNow(clock func() time.Time) time.Time {
	if clock != nil {
		return clock()
	}
	return time.Now()
}

// ConflictHook builds a retry observer that counts lost number races in
// metrics and logs them. Passed to ledger.WithConflictRetry by every
// workflow that assigns a certificate or member number.
func ConflictHook(log zerolog.Logger, m *metrics.Metrics, operation string) ledger.RetryHook {
	return func(attempt int, err error) {
		m.IncrementNumberConflict(operation)
		log.Debug().Err(err).
			Int("attempt", attempt).
			Str("operation", operation).
			Msg("number conflict, retrying with fresh scan")
	}
}

// appendNote joins an addition onto possibly-empty existing notes.
func appendNote(existing, addition string) string {
	if existing == "" {
		return addition
	}
	return existing + "; " + addition
}
