/*
Package ledger provides the core cooperative share ledger engine.

PURPOSE:
  This package contains the domain types and algorithms for managing
  cooperative membership shares: certificate records, the members who own
  them, and the workflow objects (approvals, transfers) that gate every
  change of ownership.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member: A cooperative member, owner of zero or more share certificates
  - Share: One certificate, the unit of tradable ownership
  - Approval/Transfer: Workflow requests that must pass explicit state
    transitions before they materialize a ledger change
  - Payment/Dividend: Money rows attached to a certificate
  - Actor: Caller-supplied identity, passed through to the audit trail
  - CooperativeSettings: Explicit configuration, never ambient

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all money, never float
  2. Type Safety: Strong ID types prevent mixing member/share/request ids
  3. Explicitness: Every mutating operation takes an Actor and Settings;
     nothing is read from global state
  4. Auditability: Status moves are restricted to declared transitions

USAGE:
  m := ledger.Member{ID: ledger.NewMemberID(), Status: ledger.MemberActive}
  s := ledger.Share{Quantity: 4, Value: decimal.NewFromInt(250)}
  total := s.TotalValue() // 1000

SEE ALSO:
  - numbering.go: Certificate/member number generation
  - store.go: Persistence interfaces
  - audit.go: Audit trail types
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type ShareID string
type ApprovalID string
type TransferID string
type PaymentID string
type DividendID string

func NewMemberID() MemberID     { return MemberID(uuid.NewString()) }
func NewShareID() ShareID       { return ShareID(uuid.NewString()) }
func NewApprovalID() ApprovalID { return ApprovalID(uuid.NewString()) }
func NewTransferID() TransferID { return TransferID(uuid.NewString()) }
func NewPaymentID() PaymentID   { return PaymentID(uuid.NewString()) }
func NewDividendID() DividendID { return DividendID(uuid.NewString()) }

// MustDecimal parses s as a decimal, returning zero on malformed input.
// Intended for literals in tests and seed profiles.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// MEMBER
// =============================================================================

type MemberStatus string

const (
	MemberActive      MemberStatus = "active"
	MemberInactive    MemberStatus = "inactive"
	MemberSuspended   MemberStatus = "suspended"
	MemberOffboarding MemberStatus = "offboarding"
	MemberTerminated  MemberStatus = "terminated"

	// MemberLocked is entered automatically when a member's active share
	// quantity drops to zero as a side effect of a completed transfer.
	// It is never set by a direct user action.
	MemberLocked MemberStatus = "locked"
)

type Member struct {
	ID           MemberID
	MemberNumber string // unique, "MEM" + digits, immutable once assigned
	Name         string
	Email        string
	Status       MemberStatus

	JoinedAt      time.Time
	OffboardingAt *time.Time // set when offboarding starts, cleared on cancel

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m *Member) IsActive() bool { return m.Status == MemberActive }

// =============================================================================
// SHARE - One certificate
// =============================================================================

type ShareStatus string

const (
	ShareActive      ShareStatus = "active"
	ShareCancelled   ShareStatus = "cancelled"
	ShareTransferred ShareStatus = "transferred"
	ShareSuspended   ShareStatus = "suspended"
)

// Share is one certificate. CertificateNumber is globally unique and
// immutable once assigned. Quantity is deliberately not floor-checked at
// this level: a zero-quantity certificate is representable (see the
// workflow validations for where positive quantity is required).
type Share struct {
	ID                ShareID
	CertificateNumber string // unique, "CERT" + 3-or-more digits
	MemberID          MemberID
	Quantity          int
	NominalValue      decimal.Decimal // per-unit value at issuance
	Value             decimal.Decimal // per-unit current value, equal to NominalValue at issuance
	Status            ShareStatus
	IssueDate         time.Time

	// ScheduledForCancellation marks certificates queued for retirement by
	// member offboarding. Consolidation refuses such certificates.
	ScheduledForCancellation bool

	Notes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalValue returns Quantity x Value.
func (s *Share) TotalValue() decimal.Decimal {
	return s.Value.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

// IsFullyPaid reports whether paid covers the certificate's total value.
func (s *Share) IsFullyPaid(paid decimal.Decimal) bool {
	return paid.GreaterThanOrEqual(s.TotalValue())
}

// =============================================================================
// APPROVAL - Request for shares beyond the initial certificate
// =============================================================================

type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalCompleted ApprovalStatus = "completed"
)

// approvalTransitions declares the legal state machine:
// Pending -> {Approved, Rejected}; Approved -> Completed.
var approvalTransitions = map[ApprovalStatus][]ApprovalStatus{
	ApprovalPending:  {ApprovalApproved, ApprovalRejected},
	ApprovalApproved: {ApprovalCompleted},
}

// CanTransitionTo reports whether the status move is declared legal.
func (s ApprovalStatus) CanTransitionTo(to ApprovalStatus) bool {
	for _, next := range approvalTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Approval struct {
	ID                ApprovalID
	MemberID          MemberID
	RequestedQuantity int
	TotalValue        decimal.Decimal // quantity x denomination, frozen at request time
	Status            ApprovalStatus

	RequestedAt     time.Time
	DecidedBy       string
	DecidedAt       *time.Time
	RejectionReason string
	CompletedAt     *time.Time
	IssuedShareID   *ShareID // set when the approval materializes a certificate

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShareValue returns the per-unit value frozen into this request
// (TotalValue divided by quantity). Zero if the quantity is zero.
func (a *Approval) ShareValue() decimal.Decimal {
	if a.RequestedQuantity == 0 {
		return decimal.Zero
	}
	return a.TotalValue.Div(decimal.NewFromInt(int64(a.RequestedQuantity)))
}

// =============================================================================
// TRANSFER - Request to move units of one certificate between members
// =============================================================================

type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferApproved  TransferStatus = "approved"
	TransferRejected  TransferStatus = "rejected"
	TransferCompleted TransferStatus = "completed"
	TransferCancelled TransferStatus = "cancelled"
)

// transferTransitions declares the legal state machine:
// Pending -> {Approved, Rejected}; Approved -> {Completed, Cancelled}.
// Cancel is additionally allowed from any non-Completed state, which
// CanCancel covers separately.
var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferPending:  {TransferApproved, TransferRejected},
	TransferApproved: {TransferCompleted, TransferCancelled},
}

func (s TransferStatus) CanTransitionTo(to TransferStatus) bool {
	for _, next := range transferTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CanCancel reports whether a transfer in this status may still be
// cancelled. Anything short of Completed can.
func (s TransferStatus) CanCancel() bool { return s != TransferCompleted }

type Transfer struct {
	ID           TransferID
	FromMemberID MemberID
	ToMemberID   MemberID
	ShareID      ShareID
	Quantity     int
	TotalValue   decimal.Decimal // quantity x source NominalValue at request time
	Status       TransferStatus

	RequestedAt     time.Time
	DecidedBy       string
	DecidedAt       *time.Time
	RejectionReason string
	CompletedAt     *time.Time
	NewShareID      *ShareID // recipient certificate created on completion
	Notes           string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// PAYMENT / DIVIDEND - Money rows attached to a certificate
// =============================================================================

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment records money received toward a certificate. Only Completed
// payments count toward the certificate's paid amount.
type Payment struct {
	ID        PaymentID
	ShareID   ShareID
	MemberID  MemberID
	Amount    decimal.Decimal
	Status    PaymentStatus
	Method    string
	Reference string
	PaidAt    time.Time
	CreatedAt time.Time
}

// Dividend records a per-certificate distribution for a given year.
type Dividend struct {
	ID         DividendID
	ShareID    ShareID
	MemberID   MemberID
	Year       int
	Amount     decimal.Decimal
	DeclaredAt time.Time
	CreatedAt  time.Time
}

// =============================================================================
// ACTOR - Caller-supplied identity context
// =============================================================================

// SystemActorName is recorded when no authenticated user is supplied.
const SystemActorName = "System"

// Actor carries the acting user's identity into the audit trail. It is
// never consulted for authorization inside this engine.
type Actor struct {
	Name      string
	IPAddress string
	UserAgent string
}

// UserName returns the acting user's name, defaulting to "System".
func (a Actor) UserName() string {
	if a.Name == "" {
		return SystemActorName
	}
	return a.Name
}

// SystemActor is the identity used by background jobs and seeds.
func SystemActor() Actor { return Actor{Name: SystemActorName} }

// =============================================================================
// COOPERATIVE SETTINGS - Explicit configuration value object
// =============================================================================

const (
	DefaultMaxSharesPerMember    = 100
	DefaultOffboardingNoticeDays = 90
)

// DefaultShareDenomination is the fallback per-share value: 250.00.
var DefaultShareDenomination = decimal.NewFromInt(250)

// CooperativeSettings is supplied by the caller on every operation that
// needs it. Zero or negative fields mean "use the default"; read values
// through the accessors, which normalize.
type CooperativeSettings struct {
	ShareDenomination     decimal.Decimal
	MaxSharesPerMember    int
	OffboardingNoticeDays int
}

func DefaultSettings() CooperativeSettings {
	return CooperativeSettings{
		ShareDenomination:     DefaultShareDenomination,
		MaxSharesPerMember:    DefaultMaxSharesPerMember,
		OffboardingNoticeDays: DefaultOffboardingNoticeDays,
	}
}

// Denomination returns the configured per-share value, or 250.00 when the
// configured value is unset, zero, or negative.
func (s CooperativeSettings) Denomination() decimal.Decimal {
	if s.ShareDenomination.LessThanOrEqual(decimal.Zero) {
		return DefaultShareDenomination
	}
	return s.ShareDenomination
}

// MaxShares returns the configured per-member quantity cap, or 100 when
// the configured value is zero or negative.
func (s CooperativeSettings) MaxShares() int {
	if s.MaxSharesPerMember <= 0 {
		return DefaultMaxSharesPerMember
	}
	return s.MaxSharesPerMember
}

// NoticeDays returns the offboarding notice period in days, or 90 when
// the configured value is zero or negative.
func (s CooperativeSettings) NoticeDays() int {
	if s.OffboardingNoticeDays <= 0 {
		return DefaultOffboardingNoticeDays
	}
	return s.OffboardingNoticeDays
}
