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
// APPROVAL SERVICE - Additional shares beyond the initial certificate
// =============================================================================

// ApprovalService runs the approval workflow for additional-share
// requests: Pending -> {Approved, Rejected}; Approved -> Completed.
// Completion is the only step that touches the ledger; everything before
// it is reversible bookkeeping.
type ApprovalService struct {
	Store    ledger.TxStore
	Settings ledger.CooperativeSettings
	Audit    *audit.Recorder
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	Now      func() time.Time // nil means time.Now
}

// Eligibility is the answer to "may this member request more shares?".
// Reason explains a false Eligible.
type Eligibility struct {
	Eligible bool
	Reason   string
}

// checkEligibility evaluates the additional-share rules: positive
// quantity, Active member, fully paid initial share, and no other
// Pending request (exclude skips the request being re-validated).
func checkEligibility(ctx context.Context, st ledger.Store, memberID ledger.MemberID, quantity int, exclude ledger.ApprovalID) (Eligibility, error) {
	if quantity <= 0 {
		return Eligibility{Reason: "requested quantity must be positive"}, nil
	}

	member, err := st.GetMember(ctx, memberID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return Eligibility{Reason: "member not found"}, nil
		}
		return Eligibility{}, err
	}
	if !member.IsActive() {
		return Eligibility{Reason: fmt.Sprintf("member is %s, not active", member.Status)}, nil
	}

	initial, err := InitialShare(ctx, st, memberID)
	if err != nil {
		return Eligibility{}, err
	}
	if initial == nil {
		return Eligibility{Reason: "member holds no certificates"}, nil
	}
	paid, err := IsFullyPaid(ctx, st, initial)
	if err != nil {
		return Eligibility{}, err
	}
	if !paid {
		return Eligibility{Reason: fmt.Sprintf("initial share %s is not fully paid", initial.CertificateNumber)}, nil
	}

	pending, err := st.HasPendingApproval(ctx, memberID, exclude)
	if err != nil {
		return Eligibility{}, err
	}
	if pending {
		return Eligibility{Reason: "member already has a pending share request"}, nil
	}

	return Eligibility{Eligible: true}, nil
}

// CanRequestAdditionalShares answers the eligibility question without
// side effects, for UI pre-checks and the eligibility endpoint.
func (s *ApprovalService) CanRequestAdditionalShares(ctx context.Context, memberID ledger.MemberID, quantity int) (Eligibility, error) {
	return checkEligibility(ctx, s.Store, memberID, quantity, "")
}

// =============================================================================
// CREATE REQUEST
// =============================================================================

// CreateRequest opens a Pending approval for additional shares. The
// request freezes TotalValue at quantity x the configured denomination.
func (s *ApprovalService) CreateRequest(ctx context.Context, actor ledger.Actor, memberID ledger.MemberID, quantity int) (*ledger.Approval, error) {
	start := time.Now()
	var (
		created *ledger.Approval
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		elig, err := checkEligibility(ctx, st, memberID, quantity, "")
		if err != nil {
			return err
		}
		if !elig.Eligible {
			return ledger.Invalid("approval.create", "%s", elig.Reason)
		}

		now := clockNow(s.Now)
		approval := ledger.Approval{
			ID:                ledger.NewApprovalID(),
			MemberID:          memberID,
			RequestedQuantity: quantity,
			TotalValue:        s.Settings.Denomination().Mul(decimal.NewFromInt(int64(quantity))),
			Status:            ledger.ApprovalPending,
			RequestedAt:       now,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := st.CreateApproval(ctx, approval); err != nil {
			return err
		}
		created = &approval

		entry := audit.NewEntry(actor, ledger.AuditCreate, ledger.EntityApproval, string(approval.ID),
			fmt.Sprintf("request for %d additional shares", quantity))
		entry.Changes = ledger.ChangeSet{}.
			Change("status", "", string(ledger.ApprovalPending)).
			Change("total_value", "", approval.TotalValue.StringFixed(2))
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation("approval.create", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return created, nil
}

// =============================================================================
// DECIDE - Approve / Reject
// =============================================================================

// Approve moves a Pending request to Approved. Eligibility is
// re-validated (excluding this request) because state may have drifted
// since creation: the member may have been suspended, or another request
// may have slipped in.
func (s *ApprovalService) Approve(ctx context.Context, actor ledger.Actor, approvalID ledger.ApprovalID) (*ledger.Approval, error) {
	start := time.Now()
	var (
		updated *ledger.Approval
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		approval, err := st.GetApproval(ctx, approvalID)
		if err != nil {
			return err
		}
		if !approval.Status.CanTransitionTo(ledger.ApprovalApproved) {
			return &ledger.TransitionError{
				Entity: ledger.EntityApproval, ID: string(approvalID),
				From: string(approval.Status), To: string(ledger.ApprovalApproved),
			}
		}

		elig, err := checkEligibility(ctx, st, approval.MemberID, approval.RequestedQuantity, approval.ID)
		if err != nil {
			return err
		}
		if !elig.Eligible {
			return ledger.Invalid("approval.approve", "%s", elig.Reason)
		}

		now := clockNow(s.Now)
		previous := approval.Status
		approval.Status = ledger.ApprovalApproved
		approval.DecidedBy = actor.UserName()
		approval.DecidedAt = &now
		approval.UpdatedAt = now
		if err := st.UpdateApproval(ctx, *approval); err != nil {
			return err
		}
		updated = approval

		entry := audit.NewEntry(actor, ledger.AuditApprove, ledger.EntityApproval, string(approval.ID),
			fmt.Sprintf("approved request for %d additional shares", approval.RequestedQuantity))
		entry.Changes = ledger.ChangeSet{}.Change("status", string(previous), string(approval.Status))
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation("approval.approve", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return updated, nil
}

// Reject moves a Pending request to Rejected, recording who and why.
func (s *ApprovalService) Reject(ctx context.Context, actor ledger.Actor, approvalID ledger.ApprovalID, reason string) (*ledger.Approval, error) {
	start := time.Now()
	var (
		updated *ledger.Approval
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		approval, err := st.GetApproval(ctx, approvalID)
		if err != nil {
			return err
		}
		if !approval.Status.CanTransitionTo(ledger.ApprovalRejected) {
			return &ledger.TransitionError{
				Entity: ledger.EntityApproval, ID: string(approvalID),
				From: string(approval.Status), To: string(ledger.ApprovalRejected),
			}
		}

		now := clockNow(s.Now)
		previous := approval.Status
		approval.Status = ledger.ApprovalRejected
		approval.DecidedBy = actor.UserName()
		approval.DecidedAt = &now
		approval.RejectionReason = reason
		approval.UpdatedAt = now
		if err := st.UpdateApproval(ctx, *approval); err != nil {
			return err
		}
		updated = approval

		entry := audit.NewEntry(actor, ledger.AuditReject, ledger.EntityApproval, string(approval.ID),
			fmt.Sprintf("rejected request for %d additional shares", approval.RequestedQuantity))
		entry.Changes = ledger.ChangeSet{}.Change("status", string(previous), string(approval.Status))
		if reason != "" {
			entry.Changes = entry.Changes.Change("rejection_reason", "", reason)
		}
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation("approval.reject", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return updated, nil
}

// =============================================================================
// COMPLETE - Materialize the approved certificate
// =============================================================================

// Complete turns an Approved request into a brand-new Active certificate
// for the requested quantity, at the per-share value frozen into the
// request. The certificate number assignment runs under conflict retry:
// losing the unique-index race re-runs this whole transaction against a
// fresh scan.
func (s *ApprovalService) Complete(ctx context.Context, actor ledger.Actor, approvalID ledger.ApprovalID) (*ledger.Approval, error) {
	start := time.Now()
	issuer := Issuer{Settings: s.Settings, Now: s.Now}
	var (
		updated *ledger.Approval
		entries []ledger.AuditEntry
	)

	err := ledger.WithConflictRetry(ctx, s.Store, ConflictHook(s.Log, s.Metrics, "approval.complete"), func(st ledger.Store) error {
		entries = entries[:0]

		approval, err := st.GetApproval(ctx, approvalID)
		if err != nil {
			return err
		}
		if !approval.Status.CanTransitionTo(ledger.ApprovalCompleted) {
			return &ledger.TransitionError{
				Entity: ledger.EntityApproval, ID: string(approvalID),
				From: string(approval.Status), To: string(ledger.ApprovalCompleted),
			}
		}

		value := approval.ShareValue()
		share, err := issuer.Issue(ctx, st, IssueInput{
			MemberID:     approval.MemberID,
			Quantity:     approval.RequestedQuantity,
			NominalValue: value,
			Value:        value,
			Notes:        fmt.Sprintf("Issued for approved share request %s", approval.ID),
		})
		if err != nil {
			return err
		}

		now := clockNow(s.Now)
		previous := approval.Status
		approval.Status = ledger.ApprovalCompleted
		approval.CompletedAt = &now
		approval.IssuedShareID = &share.ID
		approval.UpdatedAt = now
		if err := st.UpdateApproval(ctx, *approval); err != nil {
			return err
		}
		updated = approval

		shareEntry := audit.NewEntry(actor, ledger.AuditCreate, ledger.EntityShare, string(share.ID),
			fmt.Sprintf("certificate %s, %d shares", share.CertificateNumber, share.Quantity))
		shareEntry.Changes = ledger.ChangeSet{}.
			Change("certificate_number", "", share.CertificateNumber).
			Change("quantity", "", fmt.Sprintf("%d", share.Quantity))

		approvalEntry := audit.NewEntry(actor, ledger.AuditUpdate, ledger.EntityApproval, string(approval.ID),
			fmt.Sprintf("completed with certificate %s", share.CertificateNumber))
		approvalEntry.Changes = ledger.ChangeSet{}.Change("status", string(previous), string(approval.Status))

		entries = append(entries, shareEntry, approvalEntry)
		return nil
	})

	s.Metrics.ObserveOperation("approval.complete", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return updated, nil
}
