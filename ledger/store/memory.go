// Package store provides the in-memory ledger.TxStore implementation.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/coopware/share-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every record in mutex-guarded maps. Uniqueness on
// certificate and member numbers is enforced at insert, mirroring the
// unique indexes of the SQL stores.
type Memory struct {
	mu sync.RWMutex

	members       map[ledger.MemberID]ledger.Member
	memberNumbers map[string]ledger.MemberID

	shares      map[ledger.ShareID]ledger.Share
	certNumbers map[string]ledger.ShareID

	approvals map[ledger.ApprovalID]ledger.Approval
	transfers map[ledger.TransferID]ledger.Transfer
	payments  map[ledger.PaymentID]ledger.Payment
	dividends map[ledger.DividendID]ledger.Dividend

	audits []ledger.AuditEntry
}

func NewMemory() *Memory {
	m := &Memory{}
	m.resetLocked()
	return m
}

// Reset drops every record. Used by scenario reloads. The signature
// matches the SQL stores so callers can treat reset as one capability.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

func (m *Memory) resetLocked() {
	m.members = make(map[ledger.MemberID]ledger.Member)
	m.memberNumbers = make(map[string]ledger.MemberID)
	m.shares = make(map[ledger.ShareID]ledger.Share)
	m.certNumbers = make(map[string]ledger.ShareID)
	m.approvals = make(map[ledger.ApprovalID]ledger.Approval)
	m.transfers = make(map[ledger.TransferID]ledger.Transfer)
	m.payments = make(map[ledger.PaymentID]ledger.Payment)
	m.dividends = make(map[ledger.DividendID]ledger.Dividend)
	m.audits = nil
}

// duplicateError wraps ledger.ErrConflict so IsUniqueViolation and the
// retry loop recognize it, the same way the SQL stores surface their
// drivers' unique-index errors.
func duplicateError(what, value string) error {
	return fmt.Errorf("%w: duplicate %s %q", ledger.ErrConflict, what, value)
}

// =============================================================================
// MEMBERS
// =============================================================================

func (m *Memory) CreateMember(_ context.Context, mem ledger.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createMemberLocked(mem)
}

func (m *Memory) createMemberLocked(mem ledger.Member) error {
	if _, exists := m.members[mem.ID]; exists {
		return duplicateError("member id", string(mem.ID))
	}
	if _, exists := m.memberNumbers[mem.MemberNumber]; exists {
		return duplicateError("member number", mem.MemberNumber)
	}
	m.members[mem.ID] = mem
	m.memberNumbers[mem.MemberNumber] = mem.ID
	return nil
}

func (m *Memory) GetMember(_ context.Context, id ledger.MemberID) (*ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMemberLocked(id)
}

func (m *Memory) getMemberLocked(id ledger.MemberID) (*ledger.Member, error) {
	mem, ok := m.members[id]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityMember, ID: string(id)}
	}
	return &mem, nil
}

func (m *Memory) GetMemberByNumber(_ context.Context, number string) (*ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMemberByNumberLocked(number)
}

func (m *Memory) getMemberByNumberLocked(number string) (*ledger.Member, error) {
	id, ok := m.memberNumbers[number]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityMember, ID: number}
	}
	return m.getMemberLocked(id)
}

func (m *Memory) UpdateMember(_ context.Context, mem ledger.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateMemberLocked(mem)
}

func (m *Memory) updateMemberLocked(mem ledger.Member) error {
	if _, ok := m.members[mem.ID]; !ok {
		return &ledger.NotFoundError{Entity: ledger.EntityMember, ID: string(mem.ID)}
	}
	m.members[mem.ID] = mem
	return nil
}

func (m *Memory) ListMembers(_ context.Context, f ledger.MemberFilter) ([]ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listMembersLocked(f)
}

func (m *Memory) listMembersLocked(f ledger.MemberFilter) ([]ledger.Member, error) {
	var result []ledger.Member
	for _, mem := range m.members {
		if f.Status != "" && mem.Status != f.Status {
			continue
		}
		result = append(result, mem)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MemberNumber < result[j].MemberNumber
	})
	return result, nil
}

func (m *Memory) MemberNumbers(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.memberNumbersLocked()
}

func (m *Memory) memberNumbersLocked() ([]string, error) {
	numbers := make([]string, 0, len(m.memberNumbers))
	for n := range m.memberNumbers {
		numbers = append(numbers, n)
	}
	return numbers, nil
}

// =============================================================================
// SHARES
// =============================================================================

func (m *Memory) CreateShare(_ context.Context, s ledger.Share) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createShareLocked(s)
}

func (m *Memory) createShareLocked(s ledger.Share) error {
	if _, exists := m.shares[s.ID]; exists {
		return duplicateError("share id", string(s.ID))
	}
	if _, exists := m.certNumbers[s.CertificateNumber]; exists {
		return duplicateError("certificate number", s.CertificateNumber)
	}
	m.shares[s.ID] = s
	m.certNumbers[s.CertificateNumber] = s.ID
	return nil
}

func (m *Memory) GetShare(_ context.Context, id ledger.ShareID) (*ledger.Share, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getShareLocked(id)
}

func (m *Memory) getShareLocked(id ledger.ShareID) (*ledger.Share, error) {
	s, ok := m.shares[id]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityShare, ID: string(id)}
	}
	return &s, nil
}

func (m *Memory) UpdateShare(_ context.Context, s ledger.Share) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateShareLocked(s)
}

func (m *Memory) updateShareLocked(s ledger.Share) error {
	if _, ok := m.shares[s.ID]; !ok {
		return &ledger.NotFoundError{Entity: ledger.EntityShare, ID: string(s.ID)}
	}
	m.shares[s.ID] = s
	return nil
}

func (m *Memory) ListSharesByMember(_ context.Context, memberID ledger.MemberID) ([]ledger.Share, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSharesByMemberLocked(memberID)
}

func (m *Memory) listSharesByMemberLocked(memberID ledger.MemberID) ([]ledger.Share, error) {
	var result []ledger.Share
	for _, s := range m.shares {
		if s.MemberID == memberID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].IssueDate.Equal(result[j].IssueDate) {
			return result[i].IssueDate.Before(result[j].IssueDate)
		}
		return result[i].CertificateNumber < result[j].CertificateNumber
	})
	return result, nil
}

func (m *Memory) CertificateNumbers(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.certificateNumbersLocked()
}

func (m *Memory) certificateNumbersLocked() ([]string, error) {
	numbers := make([]string, 0, len(m.certNumbers))
	for n := range m.certNumbers {
		numbers = append(numbers, n)
	}
	return numbers, nil
}

func (m *Memory) ActiveQuantity(_ context.Context, memberID ledger.MemberID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeQuantityLocked(memberID)
}

func (m *Memory) activeQuantityLocked(memberID ledger.MemberID) (int, error) {
	total := 0
	for _, s := range m.shares {
		if s.MemberID == memberID && s.Status == ledger.ShareActive {
			total += s.Quantity
		}
	}
	return total, nil
}

// =============================================================================
// APPROVALS
// =============================================================================

func (m *Memory) CreateApproval(_ context.Context, a ledger.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createApprovalLocked(a)
}

func (m *Memory) createApprovalLocked(a ledger.Approval) error {
	if _, exists := m.approvals[a.ID]; exists {
		return duplicateError("approval id", string(a.ID))
	}
	m.approvals[a.ID] = a
	return nil
}

func (m *Memory) GetApproval(_ context.Context, id ledger.ApprovalID) (*ledger.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getApprovalLocked(id)
}

func (m *Memory) getApprovalLocked(id ledger.ApprovalID) (*ledger.Approval, error) {
	a, ok := m.approvals[id]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityApproval, ID: string(id)}
	}
	return &a, nil
}

func (m *Memory) UpdateApproval(_ context.Context, a ledger.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateApprovalLocked(a)
}

func (m *Memory) updateApprovalLocked(a ledger.Approval) error {
	if _, ok := m.approvals[a.ID]; !ok {
		return &ledger.NotFoundError{Entity: ledger.EntityApproval, ID: string(a.ID)}
	}
	m.approvals[a.ID] = a
	return nil
}

func (m *Memory) ListApprovals(_ context.Context, f ledger.ApprovalFilter) ([]ledger.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listApprovalsLocked(f)
}

func (m *Memory) listApprovalsLocked(f ledger.ApprovalFilter) ([]ledger.Approval, error) {
	var result []ledger.Approval
	for _, a := range m.approvals {
		if f.MemberID != "" && a.MemberID != f.MemberID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].RequestedAt.Equal(result[j].RequestedAt) {
			return result[i].RequestedAt.Before(result[j].RequestedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) HasPendingApproval(_ context.Context, memberID ledger.MemberID, excludeID ledger.ApprovalID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasPendingApprovalLocked(memberID, excludeID)
}

func (m *Memory) hasPendingApprovalLocked(memberID ledger.MemberID, excludeID ledger.ApprovalID) (bool, error) {
	for _, a := range m.approvals {
		if a.MemberID == memberID && a.Status == ledger.ApprovalPending && a.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// TRANSFERS
// =============================================================================

func (m *Memory) CreateTransfer(_ context.Context, t ledger.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createTransferLocked(t)
}

func (m *Memory) createTransferLocked(t ledger.Transfer) error {
	if _, exists := m.transfers[t.ID]; exists {
		return duplicateError("transfer id", string(t.ID))
	}
	m.transfers[t.ID] = t
	return nil
}

func (m *Memory) GetTransfer(_ context.Context, id ledger.TransferID) (*ledger.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransferLocked(id)
}

func (m *Memory) getTransferLocked(id ledger.TransferID) (*ledger.Transfer, error) {
	t, ok := m.transfers[id]
	if !ok {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityTransfer, ID: string(id)}
	}
	return &t, nil
}

func (m *Memory) UpdateTransfer(_ context.Context, t ledger.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateTransferLocked(t)
}

func (m *Memory) updateTransferLocked(t ledger.Transfer) error {
	if _, ok := m.transfers[t.ID]; !ok {
		return &ledger.NotFoundError{Entity: ledger.EntityTransfer, ID: string(t.ID)}
	}
	m.transfers[t.ID] = t
	return nil
}

func (m *Memory) ListTransfers(_ context.Context, f ledger.TransferFilter) ([]ledger.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTransfersLocked(f)
}

func (m *Memory) listTransfersLocked(f ledger.TransferFilter) ([]ledger.Transfer, error) {
	var result []ledger.Transfer
	for _, t := range m.transfers {
		if f.MemberID != "" && t.FromMemberID != f.MemberID && t.ToMemberID != f.MemberID {
			continue
		}
		if f.ShareID != "" && t.ShareID != f.ShareID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].RequestedAt.Equal(result[j].RequestedAt) {
			return result[i].RequestedAt.Before(result[j].RequestedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) HasPendingTransferForShare(_ context.Context, shareID ledger.ShareID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasPendingTransferForShareLocked(shareID)
}

func (m *Memory) hasPendingTransferForShareLocked(shareID ledger.ShareID) (bool, error) {
	for _, t := range m.transfers {
		if t.ShareID == shareID && t.Status == ledger.TransferPending {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (m *Memory) CreatePayment(_ context.Context, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPaymentLocked(p)
}

func (m *Memory) createPaymentLocked(p ledger.Payment) error {
	if _, exists := m.payments[p.ID]; exists {
		return duplicateError("payment id", string(p.ID))
	}
	m.payments[p.ID] = p
	return nil
}

func (m *Memory) ListPaymentsByShare(_ context.Context, shareID ledger.ShareID) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPaymentsByShareLocked(shareID)
}

func (m *Memory) listPaymentsByShareLocked(shareID ledger.ShareID) ([]ledger.Payment, error) {
	var result []ledger.Payment
	for _, p := range m.payments {
		if p.ShareID == shareID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PaidAt.Equal(result[j].PaidAt) {
			return result[i].PaidAt.Before(result[j].PaidAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) PaidAmount(_ context.Context, shareID ledger.ShareID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paidAmountLocked(shareID)
}

func (m *Memory) paidAmountLocked(shareID ledger.ShareID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range m.payments {
		if p.ShareID == shareID && p.Status == ledger.PaymentCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (m *Memory) ReparentPayments(_ context.Context, from []ledger.ShareID, to ledger.ShareID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reparentPaymentsLocked(from, to)
}

func (m *Memory) reparentPaymentsLocked(from []ledger.ShareID, to ledger.ShareID) error {
	sources := make(map[ledger.ShareID]bool, len(from))
	for _, id := range from {
		sources[id] = true
	}
	for id, p := range m.payments {
		if sources[p.ShareID] {
			p.ShareID = to
			m.payments[id] = p
		}
	}
	return nil
}

// =============================================================================
// DIVIDENDS
// =============================================================================

func (m *Memory) CreateDividend(_ context.Context, d ledger.Dividend) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createDividendLocked(d)
}

func (m *Memory) createDividendLocked(d ledger.Dividend) error {
	if _, exists := m.dividends[d.ID]; exists {
		return duplicateError("dividend id", string(d.ID))
	}
	m.dividends[d.ID] = d
	return nil
}

func (m *Memory) ListDividendsByShare(_ context.Context, shareID ledger.ShareID) ([]ledger.Dividend, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listDividendsByShareLocked(shareID)
}

func (m *Memory) listDividendsByShareLocked(shareID ledger.ShareID) ([]ledger.Dividend, error) {
	var result []ledger.Dividend
	for _, d := range m.dividends {
		if d.ShareID == shareID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) ReparentDividends(_ context.Context, from []ledger.ShareID, to ledger.ShareID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reparentDividendsLocked(from, to)
}

func (m *Memory) reparentDividendsLocked(from []ledger.ShareID, to ledger.ShareID) error {
	sources := make(map[ledger.ShareID]bool, len(from))
	for _, id := range from {
		sources[id] = true
	}
	for id, d := range m.dividends {
		if sources[d.ShareID] {
			d.ShareID = to
			m.dividends[id] = d
		}
	}
	return nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, e ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAuditLocked(e)
}

func (m *Memory) appendAuditLocked(e ledger.AuditEntry) error {
	m.audits = append(m.audits, e)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAuditLocked(f)
}

func (m *Memory) listAuditLocked(f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	var result []ledger.AuditEntry
	for _, e := range m.audits {
		if !matchAudit(e, f) {
			continue
		}
		result = append(result, e)
	}
	// Newest first, matching the SQL stores.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func matchAudit(e ledger.AuditEntry, f ledger.AuditFilter) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.UserName != "" && e.UserName != f.UserName {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support. Transactions are
// simulated with a full snapshot and restore on error; the mutex is held
// for the whole closure, so the simplified path is race-free by
// construction.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn against a view writing directly into the parent
// maps. fn returning error restores the pre-transaction snapshot.
func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

// IsUniqueViolation reports whether err came from this store refusing a
// duplicate unique value.
func (tm *TxMemory) IsUniqueViolation(err error) bool {
	return ledger.IsConflict(err)
}

type memorySnapshot struct {
	members       map[ledger.MemberID]ledger.Member
	memberNumbers map[string]ledger.MemberID
	shares        map[ledger.ShareID]ledger.Share
	certNumbers   map[string]ledger.ShareID
	approvals     map[ledger.ApprovalID]ledger.Approval
	transfers     map[ledger.TransferID]ledger.Transfer
	payments      map[ledger.PaymentID]ledger.Payment
	dividends     map[ledger.DividendID]ledger.Dividend
	audits        []ledger.AuditEntry
	auditsLen     int
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		members:       make(map[ledger.MemberID]ledger.Member, len(tm.members)),
		memberNumbers: make(map[string]ledger.MemberID, len(tm.memberNumbers)),
		shares:        make(map[ledger.ShareID]ledger.Share, len(tm.shares)),
		certNumbers:   make(map[string]ledger.ShareID, len(tm.certNumbers)),
		approvals:     make(map[ledger.ApprovalID]ledger.Approval, len(tm.approvals)),
		transfers:     make(map[ledger.TransferID]ledger.Transfer, len(tm.transfers)),
		payments:      make(map[ledger.PaymentID]ledger.Payment, len(tm.payments)),
		dividends:     make(map[ledger.DividendID]ledger.Dividend, len(tm.dividends)),
		auditsLen:     len(tm.audits),
	}
	for k, v := range tm.members {
		s.members[k] = v
	}
	for k, v := range tm.memberNumbers {
		s.memberNumbers[k] = v
	}
	for k, v := range tm.shares {
		s.shares[k] = v
	}
	for k, v := range tm.certNumbers {
		s.certNumbers[k] = v
	}
	for k, v := range tm.approvals {
		s.approvals[k] = v
	}
	for k, v := range tm.transfers {
		s.transfers[k] = v
	}
	for k, v := range tm.payments {
		s.payments[k] = v
	}
	for k, v := range tm.dividends {
		s.dividends[k] = v
	}
	s.audits = append([]ledger.AuditEntry(nil), tm.audits...)
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.members = s.members
	tm.memberNumbers = s.memberNumbers
	tm.shares = s.shares
	tm.certNumbers = s.certNumbers
	tm.approvals = s.approvals
	tm.transfers = s.transfers
	tm.payments = s.payments
	tm.dividends = s.dividends
	tm.audits = s.audits[:s.auditsLen]
}

// txMemoryView is the Store handed to WithTx closures. The parent mutex
// is already held, so it calls the locked internals directly.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) CreateMember(_ context.Context, m ledger.Member) error {
	return tv.parent.createMemberLocked(m)
}

func (tv *txMemoryView) GetMember(_ context.Context, id ledger.MemberID) (*ledger.Member, error) {
	return tv.parent.getMemberLocked(id)
}

func (tv *txMemoryView) GetMemberByNumber(_ context.Context, number string) (*ledger.Member, error) {
	return tv.parent.getMemberByNumberLocked(number)
}

func (tv *txMemoryView) UpdateMember(_ context.Context, m ledger.Member) error {
	return tv.parent.updateMemberLocked(m)
}

func (tv *txMemoryView) ListMembers(_ context.Context, f ledger.MemberFilter) ([]ledger.Member, error) {
	return tv.parent.listMembersLocked(f)
}

func (tv *txMemoryView) MemberNumbers(_ context.Context) ([]string, error) {
	return tv.parent.memberNumbersLocked()
}

func (tv *txMemoryView) CreateShare(_ context.Context, s ledger.Share) error {
	return tv.parent.createShareLocked(s)
}

func (tv *txMemoryView) GetShare(_ context.Context, id ledger.ShareID) (*ledger.Share, error) {
	return tv.parent.getShareLocked(id)
}

func (tv *txMemoryView) UpdateShare(_ context.Context, s ledger.Share) error {
	return tv.parent.updateShareLocked(s)
}

func (tv *txMemoryView) ListSharesByMember(_ context.Context, memberID ledger.MemberID) ([]ledger.Share, error) {
	return tv.parent.listSharesByMemberLocked(memberID)
}

func (tv *txMemoryView) CertificateNumbers(_ context.Context) ([]string, error) {
	return tv.parent.certificateNumbersLocked()
}

func (tv *txMemoryView) ActiveQuantity(_ context.Context, memberID ledger.MemberID) (int, error) {
	return tv.parent.activeQuantityLocked(memberID)
}

func (tv *txMemoryView) CreateApproval(_ context.Context, a ledger.Approval) error {
	return tv.parent.createApprovalLocked(a)
}

func (tv *txMemoryView) GetApproval(_ context.Context, id ledger.ApprovalID) (*ledger.Approval, error) {
	return tv.parent.getApprovalLocked(id)
}

func (tv *txMemoryView) UpdateApproval(_ context.Context, a ledger.Approval) error {
	return tv.parent.updateApprovalLocked(a)
}

func (tv *txMemoryView) ListApprovals(_ context.Context, f ledger.ApprovalFilter) ([]ledger.Approval, error) {
	return tv.parent.listApprovalsLocked(f)
}

func (tv *txMemoryView) HasPendingApproval(_ context.Context, memberID ledger.MemberID, excludeID ledger.ApprovalID) (bool, error) {
	return tv.parent.hasPendingApprovalLocked(memberID, excludeID)
}

func (tv *txMemoryView) CreateTransfer(_ context.Context, t ledger.Transfer) error {
	return tv.parent.createTransferLocked(t)
}

func (tv *txMemoryView) GetTransfer(_ context.Context, id ledger.TransferID) (*ledger.Transfer, error) {
	return tv.parent.getTransferLocked(id)
}

func (tv *txMemoryView) UpdateTransfer(_ context.Context, t ledger.Transfer) error {
	return tv.parent.updateTransferLocked(t)
}

func (tv *txMemoryView) ListTransfers(_ context.Context, f ledger.TransferFilter) ([]ledger.Transfer, error) {
	return tv.parent.listTransfersLocked(f)
}

func (tv *txMemoryView) HasPendingTransferForShare(_ context.Context, shareID ledger.ShareID) (bool, error) {
	return tv.parent.hasPendingTransferForShareLocked(shareID)
}

func (tv *txMemoryView) CreatePayment(_ context.Context, p ledger.Payment) error {
	return tv.parent.createPaymentLocked(p)
}

func (tv *txMemoryView) ListPaymentsByShare(_ context.Context, shareID ledger.ShareID) ([]ledger.Payment, error) {
	return tv.parent.listPaymentsByShareLocked(shareID)
}

func (tv *txMemoryView) PaidAmount(_ context.Context, shareID ledger.ShareID) (decimal.Decimal, error) {
	return tv.parent.paidAmountLocked(shareID)
}

func (tv *txMemoryView) ReparentPayments(_ context.Context, from []ledger.ShareID, to ledger.ShareID) error {
	return tv.parent.reparentPaymentsLocked(from, to)
}

func (tv *txMemoryView) CreateDividend(_ context.Context, d ledger.Dividend) error {
	return tv.parent.createDividendLocked(d)
}

func (tv *txMemoryView) ListDividendsByShare(_ context.Context, shareID ledger.ShareID) ([]ledger.Dividend, error) {
	return tv.parent.listDividendsByShareLocked(shareID)
}

func (tv *txMemoryView) ReparentDividends(_ context.Context, from []ledger.ShareID, to ledger.ShareID) error {
	return tv.parent.reparentDividendsLocked(from, to)
}

func (tv *txMemoryView) AppendAudit(_ context.Context, e ledger.AuditEntry) error {
	return tv.parent.appendAuditLocked(e)
}

func (tv *txMemoryView) ListAudit(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	return tv.parent.listAuditLocked(f)
}

var _ ledger.TxStore = (*TxMemory)(nil)
var _ ledger.Store = (*txMemoryView)(nil)
