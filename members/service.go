/*
Package members implements the membership lifecycle of the cooperative:
creation with the initial share, suspension and reinstatement,
offboarding with its notice period, termination, and the money rows
(payments, dividends) recorded against a member's certificates.

LIFECYCLE:
  Active <-> Suspended         user-initiated, reversible
  Active -> Offboarding        notice period starts, shares flagged
  Offboarding -> Active        offboarding cancelled, flags cleared
  Offboarding -> Terminated    flagged shares cancelled for good
  Active -> Locked             transfer side effect only (shares pkg);
                               no operation here sets or clears it

ATOMICITY:
  CreateMember assigns the member number, inserts the member row, and
  issues the initial certificate in ONE transaction under conflict
  retry. A cap breach, a lost number race past the retry budget, or any
  insert failure leaves no member behind.

SEE ALSO:
  - shares/issuance.go: Certificate materialization used by CreateMember
  - api/sweep.go: Background job finalizing expired offboardings
*/
package members

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/coopware/share-engine/audit"
	"github.com/coopware/share-engine/ledger"
	"github.com/coopware/share-engine/metrics"
	"github.com/coopware/share-engine/shares"
)

// =============================================================================
// MEMBER SERVICE
// =============================================================================

// Service runs membership lifecycle operations.
type Service struct {
	Store    ledger.TxStore
	Settings ledger.CooperativeSettings
	Audit    *audit.Recorder
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	Now      func() time.Time // nil means time.Now
}

// CreateInput describes a new membership.
type CreateInput struct {
	Name     string
	Email    string
	Quantity int // initial share quantity
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// =============================================================================
// CREATE - Member row + initial certificate, one transaction
// =============================================================================

// CreateMember creates the member and issues their initial certificate
// atomically: the next MEM number, the member row, and the initial share
// all commit together or not at all. Runs under conflict retry because
// both the member number and the certificate number can lose races.
func (s *Service) CreateMember(ctx context.Context, actor ledger.Actor, input CreateInput) (*ledger.Member, *ledger.Share, error) {
	start := time.Now()
	issuer := shares.Issuer{Settings: s.Settings, Now: s.Now}
	var (
		created *ledger.Member
		initial *ledger.Share
		entries []ledger.AuditEntry
	)

	err := func() error {
		if input.Name == "" {
			return ledger.Invalid("member.create", "member name is required")
		}
		return ledger.WithConflictRetry(ctx, s.Store, shares.ConflictHook(s.Log, s.Metrics, "member.create"), func(st ledger.Store) error {
			entries = entries[:0]

			number, err := ledger.NextMemberNumber(ctx, st)
			if err != nil {
				return err
			}

			now := s.now()
			member := ledger.Member{
				ID:           ledger.NewMemberID(),
				MemberNumber: number,
				Name:         input.Name,
				Email:        input.Email,
				Status:       ledger.MemberActive,
				JoinedAt:     now,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := st.CreateMember(ctx, member); err != nil {
				return err
			}

			share, err := issuer.IssueInitialShare(ctx, st, member.ID, input.Quantity)
			if err != nil {
				return err
			}
			created = &member
			initial = share

			memberEntry := audit.NewEntry(actor, ledger.AuditCreate, ledger.EntityMember, string(member.ID),
				fmt.Sprintf("member %s (%s)", member.MemberNumber, member.Name))
			memberEntry.Changes = ledger.ChangeSet{}.
				Change("member_number", "", member.MemberNumber).
				Change("status", "", string(ledger.MemberActive))

			shareEntry := audit.NewEntry(actor, ledger.AuditCreate, ledger.EntityShare, string(share.ID),
				fmt.Sprintf("initial certificate %s, %d shares", share.CertificateNumber, share.Quantity))
			shareEntry.Changes = ledger.ChangeSet{}.
				Change("certificate_number", "", share.CertificateNumber).
				Change("quantity", "", fmt.Sprintf("%d", share.Quantity))

			entries = append(entries, memberEntry, shareEntry)
			return nil
		})
	}()

	s.Metrics.ObserveOperation("member.create", start, err)
	if err != nil {
		return nil, nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return created, initial, nil
}

// =============================================================================
// SUSPEND / REINSTATE
// =============================================================================

// Suspend moves an Active member to Suspended.
func (s *Service) Suspend(ctx context.Context, actor ledger.Actor, memberID ledger.MemberID, reason string) (*ledger.Member, error) {
	return s.transition(ctx, actor, memberID, "member.suspend",
		ledger.MemberActive, ledger.MemberSuspended,
		func(m *ledger.Member, now time.Time) string {
			if reason != "" {
				return fmt.Sprintf("member %s suspended: %s", m.MemberNumber, reason)
			}
			return fmt.Sprintf("member %s suspended", m.MemberNumber)
		})
}

// Reinstate moves a Suspended member back to Active.
func (s *Service) Reinstate(ctx context.Context, actor ledger.Actor, memberID ledger.MemberID) (*ledger.Member, error) {
	return s.transition(ctx, actor, memberID, "member.reinstate",
		ledger.MemberSuspended, ledger.MemberActive,
		func(m *ledger.Member, now time.Time) string {
			return fmt.Sprintf("member %s reinstated", m.MemberNumber)
		})
}

// transition performs a simple guarded status move with an audit entry.
func (s *Service) transition(ctx context.Context, actor ledger.Actor, memberID ledger.MemberID, operation string, from, to ledger.MemberStatus, describe func(*ledger.Member, time.Time) string) (*ledger.Member, error) {
	start := time.Now()
	var (
		updated *ledger.Member
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		member, err := st.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member.Status != from {
			return &ledger.TransitionError{
				Entity: ledger.EntityMember, ID: string(memberID),
				From: string(member.Status), To: string(to),
			}
		}

		now := s.now()
		member.Status = to
		member.UpdatedAt = now
		if err := st.UpdateMember(ctx, *member); err != nil {
			return err
		}
		updated = member

		entry := audit.NewEntry(actor, ledger.AuditUpdate, ledger.EntityMember, string(member.ID),
			describe(member, now))
		entry.Changes = ledger.ChangeSet{}.Change("status", string(from), string(to))
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation(operation, start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return updated, nil
}

// =============================================================================
// OFFBOARDING - Start, cancel, terminate
// =============================================================================

// StartOffboarding moves an Active member to Offboarding: stamps the
// offboarding start and flags every Active certificate for cancellation.
// Flagged certificates refuse consolidation until the flag clears.
func (s *Service) StartOffboarding(ctx context.Context, actor ledger.Actor, memberID ledger.MemberID) (*ledger.Member, error) {
	start := time.Now()
	var (
		updated *ledger.Member
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		member, err := st.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member.Status != ledger.MemberActive {
			return &ledger.TransitionError{
				Entity: ledger.EntityMember, ID: string(memberID),
				From: string(member.Status), To: string(ledger.MemberOffboarding),
			}
		}

		now := s.now()
		member.Status = ledger.MemberOffboarding
		member.OffboardingAt = &now
		member.UpdatedAt = now
		if err := st.UpdateMember(ctx, *member); err != nil {
			return err
		}
		updated = member

		flagged, err := s.setCancellationFlags(ctx, st, memberID, true, now)
		if err != nil {
			return err
		}

		entry := audit.NewEntry(actor, ledger.AuditUpdate, ledger.EntityMember, string(member.ID),
			fmt.Sprintf("member %s offboarding started, %d certificates scheduled for cancellation",
				member.MemberNumber, flagged))
		entry.Changes = ledger.ChangeSet{}.
			Change("status", string(ledger.MemberActive), string(ledger.MemberOffboarding))
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation("member.offboarding.start", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return updated, nil
}

// CancelOffboarding moves an Offboarding member back to Active, clearing
// the offboarding stamp and every cancellation flag.
func (s *Service) CancelOffboarding(ctx context.Context, actor ledger.Actor, memberID ledger.MemberID) (*ledger.Member, error) {
	start := time.Now()
	var (
		updated *ledger.Member
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		member, err := st.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member.Status != ledger.MemberOffboarding {
			return &ledger.TransitionError{
				Entity: ledger.EntityMember, ID: string(memberID),
				From: string(member.Status), To: string(ledger.MemberActive),
			}
		}

		now := s.now()
		member.Status = ledger.MemberActive
		member.OffboardingAt = nil
		member.UpdatedAt = now
		if err := st.UpdateMember(ctx, *member); err != nil {
			return err
		}
		updated = member

		if _, err := s.setCancellationFlags(ctx, st, memberID, false, now); err != nil {
			return err
		}

		entry := audit.NewEntry(actor, ledger.AuditUpdate, ledger.EntityMember, string(member.ID),
			fmt.Sprintf("member %s offboarding cancelled", member.MemberNumber))
		entry.Changes = ledger.ChangeSet{}.
			Change("status", string(ledger.MemberOffboarding), string(ledger.MemberActive))
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation("member.offboarding.cancel", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return updated, nil
}

// Terminate moves an Offboarding member to Terminated and cancels every
// certificate scheduled for cancellation.
func (s *Service) Terminate(ctx context.Context, actor ledger.Actor, memberID ledger.MemberID) (*ledger.Member, error) {
	start := time.Now()
	var (
		updated *ledger.Member
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		member, err := st.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member.Status != ledger.MemberOffboarding {
			return &ledger.TransitionError{
				Entity: ledger.EntityMember, ID: string(memberID),
				From: string(member.Status), To: string(ledger.MemberTerminated),
			}
		}

		now := s.now()
		member.Status = ledger.MemberTerminated
		member.UpdatedAt = now
		if err := st.UpdateMember(ctx, *member); err != nil {
			return err
		}
		updated = member

		memberShares, err := st.ListSharesByMember(ctx, memberID)
		if err != nil {
			return err
		}
		cancelled := 0
		for i := range memberShares {
			share := memberShares[i]
			if !share.ScheduledForCancellation || share.Status != ledger.ShareActive {
				continue
			}
			previous := share.Status
			share.Status = ledger.ShareCancelled
			share.UpdatedAt = now
			if err := st.UpdateShare(ctx, share); err != nil {
				return err
			}
			cancelled++

			shareEntry := audit.NewEntry(actor, ledger.AuditUpdate, ledger.EntityShare, string(share.ID),
				fmt.Sprintf("certificate %s cancelled on termination", share.CertificateNumber))
			shareEntry.Changes = ledger.ChangeSet{}.Change("status", string(previous), string(ledger.ShareCancelled))
			entries = append(entries, shareEntry)
		}

		entry := audit.NewEntry(actor, ledger.AuditUpdate, ledger.EntityMember, string(member.ID),
			fmt.Sprintf("member %s terminated, %d certificates cancelled", member.MemberNumber, cancelled))
		entry.Changes = ledger.ChangeSet{}.
			Change("status", string(ledger.MemberOffboarding), string(ledger.MemberTerminated))
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation("member.terminate", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return updated, nil
}

// setCancellationFlags sets or clears ScheduledForCancellation on the
// member's Active certificates, returning how many changed.
func (s *Service) setCancellationFlags(ctx context.Context, st ledger.Store, memberID ledger.MemberID, flag bool, now time.Time) (int, error) {
	memberShares, err := st.ListSharesByMember(ctx, memberID)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i := range memberShares {
		share := memberShares[i]
		if share.Status != ledger.ShareActive || share.ScheduledForCancellation == flag {
			continue
		}
		share.ScheduledForCancellation = flag
		share.UpdatedAt = now
		if err := st.UpdateShare(ctx, share); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// =============================================================================
// PAYMENTS / DIVIDENDS
// =============================================================================

// RecordPayment appends a Completed payment against a certificate. The
// certificate must exist and not be Cancelled.
func (s *Service) RecordPayment(ctx context.Context, actor ledger.Actor, shareID ledger.ShareID, amount decimal.Decimal, method, reference string) (*ledger.Payment, error) {
	start := time.Now()
	var (
		created *ledger.Payment
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		if amount.LessThanOrEqual(decimal.Zero) {
			return ledger.Invalid("payment.record", "payment amount must be positive")
		}
		share, err := st.GetShare(ctx, shareID)
		if err != nil {
			return err
		}
		if share.Status == ledger.ShareCancelled {
			return ledger.Invalid("payment.record", "certificate %s is cancelled", share.CertificateNumber)
		}

		now := s.now()
		payment := ledger.Payment{
			ID:        ledger.NewPaymentID(),
			ShareID:   shareID,
			MemberID:  share.MemberID,
			Amount:    amount,
			Status:    ledger.PaymentCompleted,
			Method:    method,
			Reference: reference,
			PaidAt:    now,
			CreatedAt: now,
		}
		if err := st.CreatePayment(ctx, payment); err != nil {
			return err
		}
		created = &payment

		entry := audit.NewEntry(actor, ledger.AuditCreate, ledger.EntityPayment, string(payment.ID),
			fmt.Sprintf("payment of %s against certificate %s", amount.StringFixed(2), share.CertificateNumber))
		entry.Changes = ledger.ChangeSet{}.Change("amount", "", amount.StringFixed(2))
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation("payment.record", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return created, nil
}

// DeclareDividend appends a dividend row for a certificate and year.
func (s *Service) DeclareDividend(ctx context.Context, actor ledger.Actor, shareID ledger.ShareID, year int, amount decimal.Decimal) (*ledger.Dividend, error) {
	start := time.Now()
	var (
		created *ledger.Dividend
		entries []ledger.AuditEntry
	)

	err := s.Store.WithTx(ctx, func(st ledger.Store) error {
		entries = entries[:0]

		if amount.LessThanOrEqual(decimal.Zero) {
			return ledger.Invalid("dividend.declare", "dividend amount must be positive")
		}
		share, err := st.GetShare(ctx, shareID)
		if err != nil {
			return err
		}

		now := s.now()
		dividend := ledger.Dividend{
			ID:         ledger.NewDividendID(),
			ShareID:    shareID,
			MemberID:   share.MemberID,
			Year:       year,
			Amount:     amount,
			DeclaredAt: now,
			CreatedAt:  now,
		}
		if err := st.CreateDividend(ctx, dividend); err != nil {
			return err
		}
		created = &dividend

		entry := audit.NewEntry(actor, ledger.AuditCreate, ledger.EntityDividend, string(dividend.ID),
			fmt.Sprintf("dividend of %s for %d against certificate %s",
				amount.StringFixed(2), year, share.CertificateNumber))
		entry.Changes = ledger.ChangeSet{}.Change("amount", "", amount.StringFixed(2))
		entries = append(entries, entry)
		return nil
	})

	s.Metrics.ObserveOperation("dividend.declare", start, err)
	if err != nil {
		return nil, err
	}
	s.Audit.RecordAll(ctx, entries)
	return created, nil
}
