/*
transfer.go - Share transfer workflow

PURPOSE:
  Moves units of one certificate between members through an explicit
  request lifecycle: Pending -> {Approved, Rejected};
  Approved -> {Completed, Cancelled}; Cancel additionally reachable from
  any non-Completed state.

COMPLETION SEMANTICS:
  Completing a transfer never edits ownership in place. The recipient
  gets a brand-new certificate (new number, the source's per-unit
  values, issued now). The source certificate then records what
  happened to it:
    - full quantity moved: status Transferred, quantity untouched, so
      the historical record still shows what the certificate carried
    - partial: quantity decremented, certificate stays Active

LOCKING SIDE EFFECT:
  After completion, if the source member's Active certificates sum to
  exactly zero quantity and the member is currently Active, the member
  becomes Locked. Automatic, never user-initiated, and nothing in this
  workflow reverses it.

REVALIDATION:
  Approve and Complete re-run the full validation because time has
  passed since the request was created: members get suspended,
  certificates get consolidated away, quantities shrink.

SEE ALSO:
  - issuance.go: Recipient certificate materialization
  - consolidation.go: The other path that marks certificates Transferred
*/
package shares

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/coopware/share-engine/audit"
	"github.com/coopware/share-engine/ledger"
	"github.com/coopware/share-engine/metrics"
)

// =============================================================================
// TRANSFER SERVICE
// =============================================================================

// TransferService runs the certificate transfer workflow.
type TransferService struct {
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

// validateTransfer checks every transfer precondition and returns the
// source certificate on success. Order matters for error messages: the
// cheapest structural checks run before any store read.
func validateTransfer(ctx context.Context, st ledger.Store, fromID, toID ledger.MemberID, shareID ledger.ShareID, quantity int) (*ledger.Share, error) {
	const op = "transfer.validate"

	if fromID == toID {
		return nil, ledger.Invalid(op, "cannot transfer shares to the same member")
	}
	if quantity <= 0 {
		return nil, ledger.Invalid(op, "transfer quantity must be positive")
	}

	from, err := st.GetMember(ctx, fromID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, ledger.Invalid(op, "source member not found")
		}
		return nil, err
	}
	if !from.IsActive() {
		return nil, ledger.Invalid(op, "source member is %s, not active", from.Status)
	}

	to, err := st.GetMember(ctx, toID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, ledger.Invalid(op, "recipient member not found")
		}
		return nil, err
	}
	if !to.IsActive() {
		return nil, ledger.Invalid(op, "recipient member is %s, not active", to.Status)
	}

	share, err := st.GetShare(ctx, shareID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, ledger.Invalid(op, "certificate not found")
		}
		return nil, err
	}
	if share.MemberID != fromID {
		return nil, ledger.Invalid(op, "certificate %s is not owned by the source member", share.CertificateNumber)
	}
	if share.Status != ledger.ShareActive {
		return nil, ledger.Invalid(op, "certificate %s is %s, not active", share.CertificateNumber, share.Status)
	}
	if quantity > share.Quantity {
		return nil, ledger.Invalid(op, "transfer quantity %d exceeds certificate quantity %d", quantity, share.Quantity)
	}

	return share, nil
}

// ValidateTransfer checks whether the transfer could proceed right now,
// without creating or modifying anything.
func (s *TransferService) ValidateTransfer(ctx context.Context, fromID, toID ledger.MemberID, shareID ledger.ShareID, quantity int) error {
	_, err := validateTransfer(ctx, s.Store, fromID, toID, shareID, quantity)
	return err
}

// =============================================================================
// CREATE REQUEST
// =============================================================================

// CreateRequest opens a Pending transfer. TotalValue freezes at
// quantity x the source certificate's nominal per-unit value.
func (s *TransferService) CreateRequest(ctx context.Context, actor ledger.Actor, fromID, toID ledger.MemberID, shareID ledger.ShareID, quantity int) (*ledger.Transfer, error) {
	start := time.Now()
	var (
		created *ledger.Transfer
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		share, err := validateTransfer(ctx, st, fromID, toID, shareID, quantity)
		if err != nil {
			return err
		}

		now := clockNow(s.Now)
		transfer := ledger.Transfer{
			ID:           ledger.NewTransferID(),
			FromMemberID: fromID,
			ToMemberID:   toID,
			ShareID:      shareID,
			Quantity:     quantity,
			TotalValue:   share.NominalValue.Mul(decimal.NewFromInt(int64(quantity))),
			Status:       ledger.TransferPending,
			RequestedAt:  now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := st.CreateTransfer(ctx, transfer); err != nil {
			return err
		}
		created = &transfer

		entry := audit.NewEntry(actor, ledger.AuditCreate, ledger.EntityTransfer, string(transfer.ID),
			fmt.Sprintf("transfer of %d shares from certificate %s", quantity, share.CertificateNumber))
		entry.Changes = ledger.ChangeSet{}.
			Change("status", "", string(ledger.TransferPending)).
			Change("total_value", "", transfer.TotalValue.StringFixed(2))
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation("transfer.create", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return created, nil
}

// =============================================================================
// DECIDE - Approve / Reject
// =============================================================================

// Approve moves a Pending transfer to Approved after re-running the full
// validation against current state.
func (s *TransferService) Approve(ctx context.Context, actor ledger.Actor, transferID ledger.TransferID) (*ledger.Transfer, error) {
	start := time.Now()
	var (
		updated *ledger.Transfer
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		transfer, err := st.GetTransfer(ctx, transferID)
		if err != nil {
			return err
		}
		if !transfer.Status.CanTransitionTo(ledger.TransferApproved) {
			return &ledger.TransitionError{
				Entity: ledger.EntityTransfer, ID: string(transferID),
				From: string(transfer.Status), To: string(ledger.TransferApproved),
			}
		}

		if _, err := validateTransfer(ctx, st, transfer.FromMemberID, transfer.ToMemberID, transfer.ShareID, transfer.Quantity); err != nil {
			return err
		}

		now := clockNow(s.Now)
		previous := transfer.Status
		transfer.Status = ledger.TransferApproved
		transfer.DecidedBy = actor.UserName()
		transfer.DecidedAt = &now
		transfer.UpdatedAt = now
		if err := st.UpdateTransfer(ctx, *transfer); err != nil {
			return err
		}
		updated = transfer

		entry := audit.NewEntry(actor, ledger.AuditApprove, ledger.EntityTransfer, string(transfer.ID),
			fmt.Sprintf("approved transfer of %d shares", transfer.Quantity))
		entry.Changes = ledger.ChangeSet{}.Change("status", string(previous), string(transfer.Status))
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation("transfer.approve", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return updated, nil
}

// Reject moves a Pending transfer to Rejected, recording who and why.
func (s *TransferService) Reject(ctx context.Context, actor ledger.Actor, transferID ledger.TransferID, reason string) (*ledger.Transfer, error) {
	start := time.Now()
	var (
		updated *ledger.Transfer
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		transfer, err := st.GetTransfer(ctx, transferID)
		if err != nil {
			return err
		}
		if !transfer.Status.CanTransitionTo(ledger.TransferRejected) {
			return &ledger.TransitionError{
				Entity: ledger.EntityTransfer, ID: string(transferID),
				From: string(transfer.Status), To: string(ledger.TransferRejected),
			}
		}

		now := clockNow(s.Now)
		previous := transfer.Status
		transfer.Status = ledger.TransferRejected
		transfer.DecidedBy = actor.UserName()
		transfer.DecidedAt = &now
		transfer.RejectionReason = reason
		transfer.UpdatedAt = now
		if err := st.UpdateTransfer(ctx, *transfer); err != nil {
			return err
		}
		updated = transfer

		entry := audit.NewEntry(actor, ledger.AuditReject, ledger.EntityTransfer, string(transfer.ID),
			fmt.Sprintf("rejected transfer of %d shares", transfer.Quantity))
		entry.Changes = ledger.ChangeSet{}.Change("status", string(previous), string(transfer.Status))
		if reason != "" {
			entry.Changes = entry.Changes.Change("rejection_reason", "", reason)
		}
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation("transfer.reject", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return updated, nil
}

// =============================================================================
// COMPLETE - Move the units, mutate the source, maybe lock the member
// =============================================================================

// Complete executes an Approved transfer in one transaction:
//  1. Re-validate (state may have drifted since approval)
//  2. Re-check the recipient's quantity cap
//  3. Issue the recipient certificate (new number, source's values)
//  4. Mutate the source: full quantity -> Transferred, quantity kept;
//     partial -> decrement, stays Active
//  5. Lock the source member if their active quantity hit exactly zero
//
// Runs under conflict retry for the certificate number assignment.
func (s *TransferService) Complete(ctx context.Context, actor ledger.Actor, transferID ledger.TransferID) (*ledger.Transfer, error) {
	start := time.Now()
	issuer := Issuer{Settings: s.Settings, Now: s.Now}
	var (
		updated *ledger.Transfer
		entries []ledger.AuditEntry
	)

	err := ledger.WithConflictRetry(ctx, s.Store, ConflictHook(s.Log, s.Metrics, "transfer.complete"), func(st ledger.Store) error {
		entries = entries[:0]

		transfer, err := st.GetTransfer(ctx, transferID)
		if err != nil {
			return err
		}
		if !transfer.Status.CanTransitionTo(ledger.TransferCompleted) {
			return &ledger.TransitionError{
				Entity: ledger.EntityTransfer, ID: string(transferID),
				From: string(transfer.Status), To: string(ledger.TransferCompleted),
			}
		}

		source, err := validateTransfer(ctx, st, transfer.FromMemberID, transfer.ToMemberID, transfer.ShareID, transfer.Quantity)
		if err != nil {
			return err
		}
		if err := issuer.EnsureCapacity(ctx, st, transfer.ToMemberID, transfer.Quantity); err != nil {
			return err
		}

		recipient, err := issuer.Issue(ctx, st, IssueInput{
			MemberID:     transfer.ToMemberID,
			Quantity:     transfer.Quantity,
			NominalValue: source.NominalValue,
			Value:        source.Value,
			Notes:        fmt.Sprintf("Transferred from certificate %s", source.CertificateNumber),
		})
		if err != nil {
			return err
		}

		now := clockNow(s.Now)
		sourceChanges := ledger.ChangeSet{}
		if transfer.Quantity == source.Quantity {
			// Full transfer: quantity stays on the record for history.
			sourceChanges = sourceChanges.Change("status", string(source.Status), string(ledger.ShareTransferred))
			source.Status = ledger.ShareTransferred
		} else {
			remaining := source.Quantity - transfer.Quantity
			sourceChanges = sourceChanges.Change("quantity",
				fmt.Sprintf("%d", source.Quantity), fmt.Sprintf("%d", remaining))
			source.Quantity = remaining
		}
		source.UpdatedAt = now
		if err := st.UpdateShare(ctx, *source); err != nil {
			return err
		}

		previous := transfer.Status
		transfer.Status = ledger.TransferCompleted
		transfer.CompletedAt = &now
		transfer.NewShareID = &recipient.ID
		transfer.UpdatedAt = now
		if err := st.UpdateTransfer(ctx, *transfer); err != nil {
			return err
		}
		updated = transfer

		recipientEntry := audit.NewEntry(actor, ledger.AuditCreate, ledger.EntityShare, string(recipient.ID),
			fmt.Sprintf("certificate %s, %d shares", recipient.CertificateNumber, recipient.Quantity))
		recipientEntry.Changes = ledger.ChangeSet{}.
			Change("certificate_number", "", recipient.CertificateNumber).
			Change("quantity", "", fmt.Sprintf("%d", recipient.Quantity))

		sourceEntry := audit.NewEntry(actor, ledger.AuditTransfer, ledger.EntityShare, string(source.ID),
			fmt.Sprintf("certificate %s: %d shares moved to certificate %s",
				source.CertificateNumber, transfer.Quantity, recipient.CertificateNumber))
		sourceEntry.Changes = sourceChanges

		transferEntry := audit.NewEntry(actor, ledger.AuditUpdate, ledger.EntityTransfer, string(transfer.ID),
			fmt.Sprintf("completed transfer of %d shares", transfer.Quantity))
		transferEntry.Changes = ledger.ChangeSet{}.Change("status", string(previous), string(transfer.Status))

		entries = append(entries, recipientEntry, sourceEntry, transferEntry)

		// Locking side effect: a member whose active quantity drops to
		// exactly zero is locked automatically.
		remaining, err := st.ActiveQuantity(ctx, transfer.FromMemberID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			member, err := st.GetMember(ctx, transfer.FromMemberID)
			if err != nil {
				return err
			}
			if member.Status == ledger.MemberActive {
				member.Status = ledger.MemberLocked
				member.UpdatedAt = now
				if err := st.UpdateMember(ctx, *member); err != nil {
					return err
				}
				lockEntry := audit.NewEntry(actor, ledger.AuditLock, ledger.EntityMember, string(member.ID),
					fmt.Sprintf("member %s locked: active share quantity reached zero", member.MemberNumber))
				lockEntry.Changes = ledger.ChangeSet{}.
					Change("status", string(ledger.MemberActive), string(ledger.MemberLocked))
				entries = append(entries, lockEntry)
			}
		}
		return nil
	})

	s.Metrics.ObserveOperation("transfer.complete", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return updated, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel aborts a transfer from any state short of Completed. Cancelling
// an already-Cancelled transfer is a no-op success.
func (s *TransferService) Cancel(ctx context.Context, actor ledger.Actor, transferID ledger.TransferID) (*ledger.Transfer, error) {
	start := time.Now()
	var (
		updated *ledger.Transfer
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		transfer, err := st.GetTransfer(ctx, transferID)
		if err != nil {
			return err
		}
		if transfer.Status == ledger.TransferCancelled {
			updated = transfer
			return nil
		}
		if !transfer.Status.CanCancel() {
			return &ledger.TransitionError{
				Entity: ledger.EntityTransfer, ID: string(transferID),
				From: string(transfer.Status), To: string(ledger.TransferCancelled),
			}
		}

		now := clockNow(s.Now)
		previous := transfer.Status
		transfer.Status = ledger.TransferCancelled
		transfer.UpdatedAt = now
		if err := st.UpdateTransfer(ctx, *transfer); err != nil {
			return err
		}
		updated = transfer

		entry := audit.NewEntry(actor, ledger.AuditUpdate, ledger.EntityTransfer, string(transfer.ID),
			fmt.Sprintf("cancelled transfer of %d shares", transfer.Quantity))
		entry.Changes = ledger.ChangeSet{}.Change("status", string(previous), string(transfer.Status))
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation("transfer.cancel", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return updated, nil
}
