package shares

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/coopware/share-engine/audit"
	"github.com/coopware/share-engine/ledger"
	"github.com/coopware/share-engine/metrics"
)

// =============================================================================
// CONSOLIDATION SERVICE - Merge certificates into one
// =============================================================================

// ConsolidationService merges two or more of a member's certificates into
// a single new certificate. Money history follows the merge: every
// payment and dividend on a source is re-parented to the new certificate,
// never copied. Sources become Transferred with quantities untouched.
type ConsolidationService struct {
	Store    ledger.TxStore
	Settings ledger.CooperativeSettings
	Audit    *audit.Recorder
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	Now      func() time.Time // nil means time.Now
}

// =============================================================================
// VALIDATION
// =============================================================================

// validateConsolidation checks every consolidation precondition and
// returns the source certificates ordered oldest-first (issue date,
// certificate number as tiebreak). Checks run category by category so the
// reported violation is the first rule broken, not the first certificate
// inspected.
func validateConsolidation(ctx context.Context, st ledger.Store, memberID ledger.MemberID, shareIDs []ledger.ShareID) ([]ledger.Share, error) {
	const op = "consolidation.validate"

	if len(shareIDs) < 2 {
		return nil, ledger.Invalid(op, "consolidation requires at least two certificates, got %d", len(shareIDs))
	}
	seen := make(map[ledger.ShareID]bool, len(shareIDs))
	for _, id := range shareIDs {
		if seen[id] {
			return nil, ledger.Invalid(op, "duplicate certificate in the consolidation request")
		}
		seen[id] = true
	}

	member, err := st.GetMember(ctx, memberID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, ledger.Invalid(op, "member not found")
		}
		return nil, err
	}

	sources := make([]ledger.Share, 0, len(shareIDs))
	for _, id := range shareIDs {
		share, err := st.GetShare(ctx, id)
		if err != nil {
			if ledger.IsNotFound(err) {
				return nil, ledger.Invalid(op, "certificate %s not found", id)
			}
			return nil, err
		}
		sources = append(sources, *share)
	}

	for _, share := range sources {
		if share.MemberID != memberID {
			return nil, ledger.Invalid(op, "certificate %s is not owned by member %s", share.CertificateNumber, member.MemberNumber)
		}
	}
	for _, share := range sources {
		if share.Status != ledger.ShareActive {
			return nil, ledger.Invalid(op, "certificate %s is %s, not active", share.CertificateNumber, share.Status)
		}
	}
	for _, share := range sources {
		if share.ScheduledForCancellation {
			return nil, ledger.Invalid(op, "certificate %s is scheduled for cancellation", share.CertificateNumber)
		}
	}

	first := sources[0]
	for _, share := range sources[1:] {
		if !share.NominalValue.Equal(first.NominalValue) || !share.Value.Equal(first.Value) {
			return nil, ledger.Invalid(op, "certificates %s and %s have different unit values",
				first.CertificateNumber, share.CertificateNumber)
		}
	}

	for _, share := range sources {
		paid, err := IsFullyPaid(ctx, st, &share)
		if err != nil {
			return nil, err
		}
		if !paid {
			return nil, ledger.Invalid(op, "certificate %s is not fully paid", share.CertificateNumber)
		}
	}

	for _, share := range sources {
		pending, err := st.HasPendingTransferForShare(ctx, share.ID)
		if err != nil {
			return nil, err
		}
		if pending {
			return nil, ledger.Invalid(op, "certificate %s has a pending transfer", share.CertificateNumber)
		}
	}

	sort.Slice(sources, func(i, j int) bool {
		if !sources[i].IssueDate.Equal(sources[j].IssueDate) {
			return sources[i].IssueDate.Before(sources[j].IssueDate)
		}
		return sources[i].CertificateNumber < sources[j].CertificateNumber
	})
	return sources, nil
}

// ValidateConsolidation checks whether the certificates could be merged
// right now, without modifying anything.
func (s *ConsolidationService) ValidateConsolidation(ctx context.Context, memberID ledger.MemberID, shareIDs []ledger.ShareID) error {
	_, err := validateConsolidation(ctx, s.Store, memberID, shareIDs)
	return err
}

// =============================================================================
// CONSOLIDATE
// =============================================================================

// Consolidate merges the certificates in one transaction:
//  1. Validate (any violation aborts with nothing written)
//  2. Issue the merged certificate: quantity = sum of sources, per-unit
//     values from the oldest source, issued now
//  3. Re-parent every payment and dividend onto the new certificate
//  4. Mark each source Transferred with a note pointing at the merge
//
// Runs under conflict retry for the certificate number assignment.
func (s *ConsolidationService) Consolidate(ctx context.Context, actor ledger.Actor, memberID ledger.MemberID, shareIDs []ledger.ShareID, notes string) (*ledger.Share, error) {
	start := time.Now()
	issuer := Issuer{Settings: s.Settings, Now: s.Now}
	var (
		merged  *ledger.Share
		entries []ledger.AuditEntry
	)

	err := ledger.WithConflictRetry(ctx, s.Store, ConflictHook(s.Log, s.Metrics, "consolidation.execute"), func(st ledger.Store) error {
		entries = entries[:0]

		sources, err := validateConsolidation(ctx, st, memberID, shareIDs)
		if err != nil {
			return err
		}

		oldest := sources[0]
		totalQuantity := 0
		numbers := make([]string, 0, len(sources))
		ids := make([]ledger.ShareID, 0, len(sources))
		for _, share := range sources {
			totalQuantity += share.Quantity
			numbers = append(numbers, share.CertificateNumber)
			ids = append(ids, share.ID)
		}

		note := "Consolidated from " + strings.Join(numbers, ", ")
		if notes != "" {
			note = notes + " (" + note + ")"
		}
		share, err := issuer.Issue(ctx, st, IssueInput{
			MemberID:     memberID,
			Quantity:     totalQuantity,
			NominalValue: oldest.NominalValue,
			Value:        oldest.Value,
			Notes:        note,
		})
		if err != nil {
			return err
		}
		merged = share

		if err := st.ReparentPayments(ctx, ids, share.ID); err != nil {
			return err
		}
		if err := st.ReparentDividends(ctx, ids, share.ID); err != nil {
			return err
		}

		now := clockNow(s.Now)
		createEntry := audit.NewEntry(actor, ledger.AuditCreate, ledger.EntityShare, string(share.ID),
			fmt.Sprintf("certificate %s, %d shares, consolidated from %s",
				share.CertificateNumber, share.Quantity, strings.Join(numbers, ", ")))
		createEntry.Changes = ledger.ChangeSet{}.
			Change("certificate_number", "", share.CertificateNumber).
			Change("quantity", "", fmt.Sprintf("%d", totalQuantity))
		entries = append(entries, createEntry)

		for i := range sources {
			source := sources[i]
			previous := source.Status
			source.Status = ledger.ShareTransferred
			source.Notes = appendNote(source.Notes, "Consolidated into certificate "+share.CertificateNumber)
			source.UpdatedAt = now
			if err := st.UpdateShare(ctx, source); err != nil {
				return err
			}

			entry := audit.NewEntry(actor, ledger.AuditTransfer, ledger.EntityShare, string(source.ID),
				fmt.Sprintf("certificate %s consolidated into %s", source.CertificateNumber, share.CertificateNumber))
			entry.Changes = ledger.ChangeSet{}.Change("status", string(previous), string(ledger.ShareTransferred))
			entries = append(entries, entry)
		}
		return nil
	})

	s.Metrics.ObserveOperation("consolidation.execute", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return merged, nil
}
