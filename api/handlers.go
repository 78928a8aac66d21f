/*
handlers.go - HTTP API handlers for the share ledger engine

PURPOSE:
  Exposes the cooperative share ledger via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the workflow
  services. No business rule lives here.

ENDPOINTS:
  Members:
    GET    /api/members                     List members (?status=)
    POST   /api/members                     Create member + initial certificate
    GET    /api/members/{id}                Member detail with holdings
    GET    /api/members/{id}/shares         The member's certificates
    GET    /api/members/{id}/eligibility    Additional-share eligibility
    POST   /api/members/{id}/suspend        Active -> Suspended
    POST   /api/members/{id}/reinstate      Suspended -> Active
    POST   /api/members/{id}/offboarding    Start offboarding
    DELETE /api/members/{id}/offboarding    Cancel offboarding
    POST   /api/members/{id}/terminate      Offboarding -> Terminated

  Shares:
    GET    /api/shares/{id}                 Certificate detail + paid amount
    POST   /api/shares/{id}/payments        Record a payment
    GET    /api/shares/{id}/payments        Payment history
    POST   /api/shares/{id}/dividends       Declare a dividend
    GET    /api/shares/{id}/dividends       Dividend history

  Approvals:
    POST   /api/approvals                   Open an additional-share request
    GET    /api/approvals                   List (?member_id= &status=)
    POST   /api/approvals/{id}/approve
    POST   /api/approvals/{id}/reject
    POST   /api/approvals/{id}/complete     Materializes the certificate

  Transfers:
    POST   /api/transfers                   Open a transfer request
    GET    /api/transfers                   List (?member_id= &status=)
    POST   /api/transfers/{id}/approve|reject|complete|cancel

  Consolidations:
    POST   /api/consolidations              Merge certificates

  Audit:
    GET    /api/audit                       Query the trail

ERROR HANDLING:
  Engine errors map onto HTTP status by category:
  - 400: Malformed payload or parameters
  - 404: Referenced row missing
  - 409: Illegal workflow transition, duplicate-value conflict
  - 422: Business rule rejected the operation
  - 500: Retry exhaustion and everything else

ACTOR:
  The audit identity is taken from the X-Acting-User header plus the
  request's RemoteAddr and User-Agent. Caller-asserted: the engine
  records it, never authorizes with it.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo profile loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/coopware/share-engine/audit"
	"github.com/coopware/share-engine/ledger"
	"github.com/coopware/share-engine/members"
	"github.com/coopware/share-engine/metrics"
	"github.com/coopware/share-engine/shares"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    ledger.TxStore
	Settings ledger.CooperativeSettings

	Members        *members.Service
	Approvals      *shares.ApprovalService
	Transfers      *shares.TransferService
	Consolidations *shares.ConsolidationService

	Audit *audit.Recorder
	Log   zerolog.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires the workflow services onto one store and shared
// observability. metrics may be nil (tests run without a registry).
func NewHandler(store ledger.TxStore, settings ledger.CooperativeSettings, rec *audit.Recorder, m *metrics.Metrics, log zerolog.Logger) *Handler {
	return &Handler{
		Store:    store,
		Settings: settings,
		Members: &members.Service{
			Store: store, Settings: settings, Audit: rec, Metrics: m, Log: log,
		},
		Approvals: &shares.ApprovalService{
			Store: store, Settings: settings, Audit: rec, Metrics: m, Log: log,
		},
		Transfers: &shares.TransferService{
			Store: store, Settings: settings, Audit: rec, Metrics: m, Log: log,
		},
		Consolidations: &shares.ConsolidationService{
			Store: store, Settings: settings, Audit: rec, Metrics: m, Log: log,
		},
		Audit: rec,
		Log:   log,
	}
}

// applySettings swaps the cooperative configuration on the handler and
// every service. Scenario loads use this so a profile's settings govern
// the operations that follow.
func (h *Handler) applySettings(s ledger.CooperativeSettings) {
	h.Settings = s
	h.Members.Settings = s
	h.Approvals.Settings = s
	h.Transfers.Settings = s
	h.Consolidations.Settings = s
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns members, optionally filtered by status.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	filter := ledger.MemberFilter{
		Status: ledger.MemberStatus(r.URL.Query().Get("status")),
	}

	list, err := h.Store.ListMembers(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberDTOs(list))
}

// GetMember returns a member with their certificates and holdings summary.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.MemberID(chi.URLParam(r, "id"))

	member, err := h.Store.GetMember(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	memberShares, err := h.Store.ListSharesByMember(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list certificates", err)
		return
	}

	activeQuantity := 0
	activeValue := decimal.Zero
	for i := range memberShares {
		if memberShares[i].Status == ledger.ShareActive {
			activeQuantity += memberShares[i].Quantity
			activeValue = activeValue.Add(memberShares[i].TotalValue())
		}
	}

	writeJSON(w, http.StatusOK, MemberDetailDTO{
		MemberDTO:      toMemberDTO(*member),
		Shares:         toShareDTOs(memberShares),
		ActiveQuantity: activeQuantity,
		ActiveValue:    money(activeValue),
	})
}

// CreateMember creates a member and their initial certificate.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	member, share, err := h.Members.CreateMember(r.Context(), actorFrom(r), members.CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, MemberDetailDTO{
		MemberDTO:      toMemberDTO(*member),
		Shares:         []ShareDTO{toShareDTO(*share)},
		ActiveQuantity: share.Quantity,
		ActiveValue:    money(share.TotalValue()),
	})
}

// ListMemberShares returns the member's certificates, oldest first.
func (h *Handler) ListMemberShares(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.MemberID(chi.URLParam(r, "id"))

	// Verify the member exists so an unknown id is 404, not an empty list
	if _, err := h.Store.GetMember(ctx, id); err != nil {
		writeDomainError(w, err)
		return
	}

	memberShares, err := h.Store.ListSharesByMember(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list certificates", err)
		return
	}

	writeJSON(w, http.StatusOK, toShareDTOs(memberShares))
}

// GetEligibility answers whether the member may request more shares.
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	quantity := 1
	if q := r.URL.Query().Get("quantity"); q != "" {
		parsed, err := strconv.Atoi(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid quantity parameter", err)
			return
		}
		quantity = parsed
	}

	eligibility, err := h.Approvals.CanRequestAdditionalShares(r.Context(), id, quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EligibilityDTO{
		Eligible: eligibility.Eligible,
		Reason:   eligibility.Reason,
	})
}

// SuspendMember moves an Active member to Suspended.
func (h *Handler) SuspendMember(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	var req SuspendMemberRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // body is optional
	}

	member, err := h.Members.Suspend(r.Context(), actorFrom(r), id, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberDTO(*member))
}

// ReinstateMember moves a Suspended member back to Active.
func (h *Handler) ReinstateMember(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	member, err := h.Members.Reinstate(r.Context(), actorFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberDTO(*member))
}

// StartOffboarding begins the notice period and flags the member's
// certificates for cancellation.
func (h *Handler) StartOffboarding(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	member, err := h.Members.StartOffboarding(r.Context(), actorFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberDTO(*member))
}

// CancelOffboarding returns an Offboarding member to Active.
func (h *Handler) CancelOffboarding(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	member, err := h.Members.CancelOffboarding(r.Context(), actorFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberDTO(*member))
}

// TerminateMember finalizes offboarding, cancelling flagged certificates.
func (h *Handler) TerminateMember(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	member, err := h.Members.Terminate(r.Context(), actorFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberDTO(*member))
}

// =============================================================================
// SHARE HANDLERS
// =============================================================================

// GetShare returns a certificate with its payment standing.
func (h *Handler) GetShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.ShareID(chi.URLParam(r, "id"))

	share, err := h.Store.GetShare(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	paid, err := h.Store.PaidAmount(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to sum payments", err)
		return
	}

	writeJSON(w, http.StatusOK, ShareDetailDTO{
		ShareDTO:   toShareDTO(*share),
		PaidAmount: money(paid),
		FullyPaid:  share.IsFullyPaid(paid),
	})
}

// RecordPayment records money received toward a certificate.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := ledger.ShareID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	payment, err := h.Members.RecordPayment(r.Context(), actorFrom(r), id, amount, req.Method, req.Reference)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentDTO(*payment))
}

// ListPayments returns a certificate's payment history.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.ShareID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetShare(ctx, id); err != nil {
		writeDomainError(w, err)
		return
	}

	payments, err := h.Store.ListPaymentsByShare(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// DeclareDividend records a distribution for a certificate and year.
func (h *Handler) DeclareDividend(w http.ResponseWriter, r *http.Request) {
	id := ledger.ShareID(chi.URLParam(r, "id"))

	var req DeclareDividendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	dividend, err := h.Members.DeclareDividend(r.Context(), actorFrom(r), id, req.Year, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDividendDTO(*dividend))
}

// ListDividends returns a certificate's dividend history.
func (h *Handler) ListDividends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.ShareID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetShare(ctx, id); err != nil {
		writeDomainError(w, err)
		return
	}

	dividends, err := h.Store.ListDividendsByShare(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list dividends", err)
		return
	}

	writeJSON(w, http.StatusOK, toDividendDTOs(dividends))
}

// =============================================================================
// APPROVAL HANDLERS
// =============================================================================

// CreateApproval opens an additional-share request.
func (h *Handler) CreateApproval(w http.ResponseWriter, r *http.Request) {
	var req CreateApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	approval, err := h.Approvals.CreateRequest(r.Context(), actorFrom(r), ledger.MemberID(req.MemberID), req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toApprovalDTO(*approval))
}

// ListApprovals returns approval requests, optionally filtered.
func (h *Handler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	filter := ledger.ApprovalFilter{
		MemberID: ledger.MemberID(r.URL.Query().Get("member_id")),
		Status:   ledger.ApprovalStatus(r.URL.Query().Get("status")),
	}

	approvals, err := h.Store.ListApprovals(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list approvals", err)
		return
	}

	writeJSON(w, http.StatusOK, toApprovalDTOs(approvals))
}

// ApproveApproval moves a Pending request to Approved.
func (h *Handler) ApproveApproval(w http.ResponseWriter, r *http.Request) {
	id := ledger.ApprovalID(chi.URLParam(r, "id"))

	approval, err := h.Approvals.Approve(r.Context(), actorFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApprovalDTO(*approval))
}

// RejectApproval moves a Pending request to Rejected.
func (h *Handler) RejectApproval(w http.ResponseWriter, r *http.Request) {
	id := ledger.ApprovalID(chi.URLParam(r, "id"))

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	approval, err := h.Approvals.Reject(r.Context(), actorFrom(r), id, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApprovalDTO(*approval))
}

// CompleteApproval materializes an Approved request into a certificate.
func (h *Handler) CompleteApproval(w http.ResponseWriter, r *http.Request) {
	id := ledger.ApprovalID(chi.URLParam(r, "id"))

	approval, err := h.Approvals.Complete(r.Context(), actorFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApprovalDTO(*approval))
}

// =============================================================================
// TRANSFER HANDLERS
// =============================================================================

// CreateTransfer opens a certificate transfer request.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	transfer, err := h.Transfers.CreateRequest(r.Context(), actorFrom(r),
		ledger.MemberID(req.FromMemberID), ledger.MemberID(req.ToMemberID),
		ledger.ShareID(req.ShareID), req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransferDTO(*transfer))
}

// ListTransfers returns transfer requests, optionally filtered. member_id
// matches either side of the transfer.
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	filter := ledger.TransferFilter{
		MemberID: ledger.MemberID(r.URL.Query().Get("member_id")),
		ShareID:  ledger.ShareID(r.URL.Query().Get("share_id")),
		Status:   ledger.TransferStatus(r.URL.Query().Get("status")),
	}

	transfers, err := h.Store.ListTransfers(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transfers", err)
		return
	}

	writeJSON(w, http.StatusOK, toTransferDTOs(transfers))
}

// ApproveTransfer moves a Pending transfer to Approved.
func (h *Handler) ApproveTransfer(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransferID(chi.URLParam(r, "id"))

	transfer, err := h.Transfers.Approve(r.Context(), actorFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransferDTO(*transfer))
}

// RejectTransfer moves a Pending transfer to Rejected.
func (h *Handler) RejectTransfer(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransferID(chi.URLParam(r, "id"))

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	transfer, err := h.Transfers.Reject(r.Context(), actorFrom(r), id, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransferDTO(*transfer))
}

// CompleteTransfer executes an Approved transfer: splits or retires the
// source certificate, issues the recipient's, and locks the source member
// when their last active unit moves away.
func (h *Handler) CompleteTransfer(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransferID(chi.URLParam(r, "id"))

	transfer, err := h.Transfers.Complete(r.Context(), actorFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransferDTO(*transfer))
}

// CancelTransfer cancels a not-yet-completed transfer.
func (h *Handler) CancelTransfer(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransferID(chi.URLParam(r, "id"))

	transfer, err := h.Transfers.Cancel(r.Context(), actorFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransferDTO(*transfer))
}

// =============================================================================
// CONSOLIDATION HANDLER
// =============================================================================

// CreateConsolidation merges two or more certificates into one, carrying
// payment and dividend history over to the merged certificate.
func (h *Handler) CreateConsolidation(w http.ResponseWriter, r *http.Request) {
	var req ConsolidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	shareIDs := make([]ledger.ShareID, len(req.ShareIDs))
	for i, id := range req.ShareIDs {
		shareIDs[i] = ledger.ShareID(id)
	}

	merged, err := h.Consolidations.Consolidate(r.Context(), actorFrom(r),
		ledger.MemberID(req.MemberID), shareIDs, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toShareDTO(*merged))
}

// =============================================================================
// AUDIT HANDLER
// =============================================================================

// auditQueryLimit caps one audit page.
const auditQueryLimit = 500

// ListAudit queries the audit trail, newest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := ledger.AuditFilter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserName:   q.Get("user"),
		Limit:      100,
	}
	for _, action := range q["action"] {
		filter.Actions = append(filter.Actions, ledger.AuditAction(action))
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit parameter", err)
			return
		}
		if limit > auditQueryLimit {
			limit = auditQueryLimit
		}
		filter.Limit = limit
	}

	entries, err := h.Store.ListAudit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit trail", err)
		return
	}

	writeJSON(w, http.StatusOK, toAuditEntryDTOs(entries))
}

// =============================================================================
// HEALTH
// =============================================================================

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses. Check order
// matters: retry exhaustion is a server fault even though conflicts
// caused it.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrRetryExhausted):
		writeError(w, http.StatusInternalServerError, "Operation could not be completed", err)
	case ledger.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, "Validation failed", err)
	case errors.Is(err, ledger.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Invalid state transition", err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// actorFrom builds the audit identity for a request.
func actorFrom(r *http.Request) ledger.Actor {
	return ledger.Actor{
		Name:      r.Header.Get("X-Acting-User"),
		IPAddress: r.RemoteAddr,
		UserAgent: r.Header.Get("User-Agent"),
	}
}
