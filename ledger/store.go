/*
store.go - Persistence interfaces for the share ledger

PURPOSE:
  Defines the boundary between the engine and the database. Narrow
  per-record interfaces compose into Store; TxStore adds atomic multi-row
  transactions and backend-specific conflict detection.

KEY INTERFACES:
  MemberStore / ShareStore / ApprovalStore / TransferStore /
  PaymentStore / DividendStore: CRUD per record kind
  AuditStore: append-only audit trail
  Store:     everything above, the unit handed to transactional closures
  TxStore:   Store + WithTx + IsUniqueViolation

TRANSACTION CONTRACT:
  WithTx executes fn against a Store view scoped to one database
  transaction. fn returning error rolls everything back. Business
  operations run validate -> mutate -> commit inside exactly one WithTx.

CONFLICT CONTRACT:
  Certificate and member numbers are guarded by unique indexes, never by
  advisory locks. IsUniqueViolation answers "was that error the store
  refusing a duplicate?" per backend (SQLite message, Postgres 23505,
  memory sentinel), so the retry loop stays driver-agnostic.

MISSING ROWS:
  Get* methods return a NotFoundError wrapping ErrNotFound; callers treat
  it as a rejected operation, not a crash.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for tests and demos
  - store/sqlite:           Embedded production store
  - store/postgres:         Server production store

SEE ALSO:
  - retry.go: WithConflictRetry building on WithTx + IsUniqueViolation
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PER-RECORD STORES
// =============================================================================

// MemberFilter narrows member listings. Zero values match everything.
type MemberFilter struct {
	Status MemberStatus
}

type MemberStore interface {
	CreateMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, id MemberID) (*Member, error)
	GetMemberByNumber(ctx context.Context, number string) (*Member, error)
	UpdateMember(ctx context.Context, m Member) error
	ListMembers(ctx context.Context, f MemberFilter) ([]Member, error)

	// MemberNumbers returns every assigned member number, any status.
	// Input to next-number generation; always a fresh scan.
	MemberNumbers(ctx context.Context) ([]string, error)
}

type ShareStore interface {
	CreateShare(ctx context.Context, s Share) error
	GetShare(ctx context.Context, id ShareID) (*Share, error)
	UpdateShare(ctx context.Context, s Share) error

	// ListSharesByMember returns the member's certificates ordered by
	// IssueDate ascending, certificate number as tiebreak.
	ListSharesByMember(ctx context.Context, memberID MemberID) ([]Share, error)

	// CertificateNumbers returns every assigned certificate number, any
	// status. Input to next-number generation; always a fresh scan.
	CertificateNumbers(ctx context.Context) ([]string, error)

	// ActiveQuantity sums the quantities of the member's Active
	// certificates. Drives the member-locking side effect.
	ActiveQuantity(ctx context.Context, memberID MemberID) (int, error)
}

// ApprovalFilter narrows approval listings. Zero values match everything.
type ApprovalFilter struct {
	MemberID MemberID
	Status   ApprovalStatus
}

type ApprovalStore interface {
	CreateApproval(ctx context.Context, a Approval) error
	GetApproval(ctx context.Context, id ApprovalID) (*Approval, error)
	UpdateApproval(ctx context.Context, a Approval) error
	ListApprovals(ctx context.Context, f ApprovalFilter) ([]Approval, error)

	// HasPendingApproval reports whether the member has a Pending approval
	// other than excludeID (pass "" to exclude nothing).
	HasPendingApproval(ctx context.Context, memberID MemberID, excludeID ApprovalID) (bool, error)
}

// TransferFilter narrows transfer listings. MemberID matches either side.
type TransferFilter struct {
	MemberID MemberID
	ShareID  ShareID
	Status   TransferStatus
}

type TransferStore interface {
	CreateTransfer(ctx context.Context, t Transfer) error
	GetTransfer(ctx context.Context, id TransferID) (*Transfer, error)
	UpdateTransfer(ctx context.Context, t Transfer) error
	ListTransfers(ctx context.Context, f TransferFilter) ([]Transfer, error)

	// HasPendingTransferForShare reports whether any Pending transfer
	// references the certificate. Blocks consolidation.
	HasPendingTransferForShare(ctx context.Context, shareID ShareID) (bool, error)
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, p Payment) error
	ListPaymentsByShare(ctx context.Context, shareID ShareID) ([]Payment, error)

	// PaidAmount sums the share's Completed payments.
	PaidAmount(ctx context.Context, shareID ShareID) (decimal.Decimal, error)

	// ReparentPayments repoints every payment on the from certificates to
	// the to certificate. A foreign-key repoint, never a copy.
	ReparentPayments(ctx context.Context, from []ShareID, to ShareID) error
}

type DividendStore interface {
	CreateDividend(ctx context.Context, d Dividend) error
	ListDividendsByShare(ctx context.Context, shareID ShareID) ([]Dividend, error)

	// ReparentDividends repoints every dividend on the from certificates
	// to the to certificate.
	ReparentDividends(ctx context.Context, from []ShareID, to ShareID) error
}

// =============================================================================
// AUDIT STORE - Append-only
// =============================================================================

// AuditStore persists audit entries. Append-only: no update, no delete.
type AuditStore interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// =============================================================================
// COMBINED STORE + TRANSACTIONS
// =============================================================================

// Store is the full persistence surface handed to transactional closures.
type Store interface {
	MemberStore
	ShareStore
	ApprovalStore
	TransferStore
	PaymentStore
	DividendStore
	AuditStore
}

// TxStore wraps Store with transaction support and backend conflict
// detection.
type TxStore interface {
	Store

	// WithTx executes fn within one transaction. fn returning error rolls
	// the transaction back; nil commits it.
	WithTx(ctx context.Context, fn func(Store) error) error

	// IsUniqueViolation reports whether err is this backend refusing a
	// duplicate unique-indexed value (certificate or member number).
	IsUniqueViolation(err error) bool
}
