/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Every monetary field is a decimal string with two fraction digits
  ("750.00"), never a float. Clients that need arithmetic parse the
  string with a decimal library.

TIMES:
  Timestamps are RFC3339. Pure dates (join date, issue date) are
  YYYY-MM-DD.

VALIDATION:
  Validation is done in the domain services, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain model these project
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopware/share-engine/ledger"
)

// =============================================================================
// MEMBER TYPES
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID            string `json:"id"`
	MemberNumber  string `json:"member_number"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Status        string `json:"status"`
	JoinedAt      string `json:"joined_at"`
	OffboardingAt string `json:"offboarding_at,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// MemberDetailDTO is a member plus their certificates and holdings summary.
type MemberDetailDTO struct {
	MemberDTO
	Shares         []ShareDTO `json:"shares"`
	ActiveQuantity int        `json:"active_quantity"`
	ActiveValue    string     `json:"active_value"`
}

// CreateMemberRequest is the request to create a member. The member
// number is allocated by the engine, never supplied.
type CreateMemberRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Quantity int    `json:"quantity"`
}

// SuspendMemberRequest carries the optional suspension reason.
type SuspendMemberRequest struct {
	Reason string `json:"reason,omitempty"`
}

// EligibilityDTO answers "may this member request more shares?".
type EligibilityDTO struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// =============================================================================
// SHARE TYPES
// =============================================================================

// ShareDTO represents one certificate in API responses.
type ShareDTO struct {
	ID                       string `json:"id"`
	CertificateNumber        string `json:"certificate_number"`
	MemberID                 string `json:"member_id"`
	Quantity                 int    `json:"quantity"`
	NominalValue             string `json:"nominal_value"`
	Value                    string `json:"value"`
	TotalValue               string `json:"total_value"`
	Status                   string `json:"status"`
	IssueDate                string `json:"issue_date"`
	ScheduledForCancellation bool   `json:"scheduled_for_cancellation,omitempty"`
	Notes                    string `json:"notes,omitempty"`
}

// ShareDetailDTO is a certificate plus its payment standing.
type ShareDetailDTO struct {
	ShareDTO
	PaidAmount string `json:"paid_amount"`
	FullyPaid  bool   `json:"fully_paid"`
}

// =============================================================================
// APPROVAL / TRANSFER TYPES
// =============================================================================

// ApprovalDTO represents an additional-share request.
type ApprovalDTO struct {
	ID                string `json:"id"`
	MemberID          string `json:"member_id"`
	RequestedQuantity int    `json:"requested_quantity"`
	TotalValue        string `json:"total_value"`
	Status            string `json:"status"`
	RequestedAt       string `json:"requested_at"`
	DecidedBy         string `json:"decided_by,omitempty"`
	DecidedAt         string `json:"decided_at,omitempty"`
	RejectionReason   string `json:"rejection_reason,omitempty"`
	CompletedAt       string `json:"completed_at,omitempty"`
	IssuedShareID     string `json:"issued_share_id,omitempty"`
}

// CreateApprovalRequest is the request to open an additional-share request.
type CreateApprovalRequest struct {
	MemberID string `json:"member_id"`
	Quantity int    `json:"quantity"`
}

// TransferDTO represents a certificate transfer request.
type TransferDTO struct {
	ID              string `json:"id"`
	FromMemberID    string `json:"from_member_id"`
	ToMemberID      string `json:"to_member_id"`
	ShareID         string `json:"share_id"`
	Quantity        int    `json:"quantity"`
	TotalValue      string `json:"total_value"`
	Status          string `json:"status"`
	RequestedAt     string `json:"requested_at"`
	DecidedBy       string `json:"decided_by,omitempty"`
	DecidedAt       string `json:"decided_at,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	CompletedAt     string `json:"completed_at,omitempty"`
	NewShareID      string `json:"new_share_id,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// CreateTransferRequest is the request to open a transfer.
type CreateTransferRequest struct {
	FromMemberID string `json:"from_member_id"`
	ToMemberID   string `json:"to_member_id"`
	ShareID      string `json:"share_id"`
	Quantity     int    `json:"quantity"`
}

// RejectRequest carries the mandatory rejection reason for approvals and
// transfers.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// =============================================================================
// CONSOLIDATION TYPES
// =============================================================================

// ConsolidateRequest is the request to merge certificates.
type ConsolidateRequest struct {
	MemberID string   `json:"member_id"`
	ShareIDs []string `json:"share_ids"`
	Notes    string   `json:"notes,omitempty"`
}

// =============================================================================
// MONEY TYPES
// =============================================================================

// PaymentDTO represents money received toward a certificate.
type PaymentDTO struct {
	ID        string `json:"id"`
	ShareID   string `json:"share_id"`
	MemberID  string `json:"member_id"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	Method    string `json:"method,omitempty"`
	Reference string `json:"reference,omitempty"`
	PaidAt    string `json:"paid_at"`
}

// RecordPaymentRequest is the request to record a payment.
type RecordPaymentRequest struct {
	Amount    string `json:"amount"`
	Method    string `json:"method,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// DividendDTO represents a per-certificate distribution.
type DividendDTO struct {
	ID         string `json:"id"`
	ShareID    string `json:"share_id"`
	MemberID   string `json:"member_id"`
	Year       int    `json:"year"`
	Amount     string `json:"amount"`
	DeclaredAt string `json:"declared_at"`
}

// DeclareDividendRequest is the request to declare a dividend.
type DeclareDividendRequest struct {
	Year   int    `json:"year"`
	Amount string `json:"amount"`
}

// =============================================================================
// AUDIT / SCENARIO TYPES
// =============================================================================

// FieldChangeDTO is one field's before/after pair.
type FieldChangeDTO struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// AuditEntryDTO represents one audit record.
type AuditEntryDTO struct {
	ID          string                    `json:"id"`
	UserName    string                    `json:"user_name"`
	Action      string                    `json:"action"`
	EntityType  string                    `json:"entity_type"`
	EntityID    string                    `json:"entity_id"`
	Description string                    `json:"description,omitempty"`
	Changes     map[string]FieldChangeDTO `json:"changes,omitempty"`
	Timestamp   string                    `json:"timestamp"`
	IPAddress   string                    `json:"ip_address,omitempty"`
	UserAgent   string                    `json:"user_agent,omitempty"`
}

// ScenarioDTO represents a loadable demo profile.
type ScenarioDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func dateString(t time.Time) string { return t.Format("2006-01-02") }

func timePtrString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func toMemberDTO(m ledger.Member) MemberDTO {
	return MemberDTO{
		ID:            string(m.ID),
		MemberNumber:  m.MemberNumber,
		Name:          m.Name,
		Email:         m.Email,
		Status:        string(m.Status),
		JoinedAt:      dateString(m.JoinedAt),
		OffboardingAt: timePtrString(m.OffboardingAt),
		CreatedAt:     m.CreatedAt.Format(time.RFC3339),
	}
}

func toMemberDTOs(members []ledger.Member) []MemberDTO {
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	return dtos
}

func toShareDTO(s ledger.Share) ShareDTO {
	return ShareDTO{
		ID:                       string(s.ID),
		CertificateNumber:        s.CertificateNumber,
		MemberID:                 string(s.MemberID),
		Quantity:                 s.Quantity,
		NominalValue:             money(s.NominalValue),
		Value:                    money(s.Value),
		TotalValue:               money(s.TotalValue()),
		Status:                   string(s.Status),
		IssueDate:                dateString(s.IssueDate),
		ScheduledForCancellation: s.ScheduledForCancellation,
		Notes:                    s.Notes,
	}
}

func toShareDTOs(shares []ledger.Share) []ShareDTO {
	dtos := make([]ShareDTO, len(shares))
	for i, s := range shares {
		dtos[i] = toShareDTO(s)
	}
	return dtos
}

func toApprovalDTO(a ledger.Approval) ApprovalDTO {
	dto := ApprovalDTO{
		ID:                string(a.ID),
		MemberID:          string(a.MemberID),
		RequestedQuantity: a.RequestedQuantity,
		TotalValue:        money(a.TotalValue),
		Status:            string(a.Status),
		RequestedAt:       a.RequestedAt.Format(time.RFC3339),
		DecidedBy:         a.DecidedBy,
		DecidedAt:         timePtrString(a.DecidedAt),
		RejectionReason:   a.RejectionReason,
		CompletedAt:       timePtrString(a.CompletedAt),
	}
	if a.IssuedShareID != nil {
		dto.IssuedShareID = string(*a.IssuedShareID)
	}
	return dto
}

func toApprovalDTOs(approvals []ledger.Approval) []ApprovalDTO {
	dtos := make([]ApprovalDTO, len(approvals))
	for i, a := range approvals {
		dtos[i] = toApprovalDTO(a)
	}
	return dtos
}

func toTransferDTO(t ledger.Transfer) TransferDTO {
	dto := TransferDTO{
		ID:              string(t.ID),
		FromMemberID:    string(t.FromMemberID),
		ToMemberID:      string(t.ToMemberID),
		ShareID:         string(t.ShareID),
		Quantity:        t.Quantity,
		TotalValue:      money(t.TotalValue),
		Status:          string(t.Status),
		RequestedAt:     t.RequestedAt.Format(time.RFC3339),
		DecidedBy:       t.DecidedBy,
		DecidedAt:       timePtrString(t.DecidedAt),
		RejectionReason: t.RejectionReason,
		CompletedAt:     timePtrString(t.CompletedAt),
		Notes:           t.Notes,
	}
	if t.NewShareID != nil {
		dto.NewShareID = string(*t.NewShareID)
	}
	return dto
}

func toTransferDTOs(transfers []ledger.Transfer) []TransferDTO {
	dtos := make([]TransferDTO, len(transfers))
	for i, t := range transfers {
		dtos[i] = toTransferDTO(t)
	}
	return dtos
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:        string(p.ID),
		ShareID:   string(p.ShareID),
		MemberID:  string(p.MemberID),
		Amount:    money(p.Amount),
		Status:    string(p.Status),
		Method:    p.Method,
		Reference: p.Reference,
		PaidAt:    p.PaidAt.Format(time.RFC3339),
	}
}

func toPaymentDTOs(payments []ledger.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

func toDividendDTO(d ledger.Dividend) DividendDTO {
	return DividendDTO{
		ID:         string(d.ID),
		ShareID:    string(d.ShareID),
		MemberID:   string(d.MemberID),
		Year:       d.Year,
		Amount:     money(d.Amount),
		DeclaredAt: d.DeclaredAt.Format(time.RFC3339),
	}
}

func toDividendDTOs(dividends []ledger.Dividend) []DividendDTO {
	dtos := make([]DividendDTO, len(dividends))
	for i, d := range dividends {
		dtos[i] = toDividendDTO(d)
	}
	return dtos
}

func toAuditEntryDTO(e ledger.AuditEntry) AuditEntryDTO {
	dto := AuditEntryDTO{
		ID:          e.ID,
		UserName:    e.UserName,
		Action:      string(e.Action),
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Description: e.EntityDescription,
		Timestamp:   e.Timestamp.Format(time.RFC3339),
		IPAddress:   e.IPAddress,
		UserAgent:   e.UserAgent,
	}
	if len(e.Changes) > 0 {
		dto.Changes = make(map[string]FieldChangeDTO, len(e.Changes))
		for field, change := range e.Changes {
			dto.Changes[field] = FieldChangeDTO{From: change.From, To: change.To}
		}
	}
	return dto
}

func toAuditEntryDTOs(entries []ledger.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	return dtos
}
