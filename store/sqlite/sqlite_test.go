package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/coopware/share-engine/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedMember(t *testing.T, store *Store, number string) ledger.Member {
	t.Helper()
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	m := ledger.Member{
		ID:           ledger.NewMemberID(),
		MemberNumber: number,
		Name:         "Member " + number,
		Email:        number + "@coop.example",
		Status:       ledger.MemberActive,
		JoinedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.CreateMember(context.Background(), m))
	return m
}

func seedShare(t *testing.T, store *Store, memberID ledger.MemberID, cert string, qty int, issued time.Time) ledger.Share {
	t.Helper()
	share := ledger.Share{
		ID:                ledger.NewShareID(),
		CertificateNumber: cert,
		MemberID:          memberID,
		Quantity:          qty,
		NominalValue:      ledger.MustDecimal("250"),
		Value:             ledger.MustDecimal("250"),
		Status:            ledger.ShareActive,
		IssueDate:         issued,
		CreatedAt:         issued,
		UpdatedAt:         issued,
	}
	require.NoError(t, store.CreateShare(context.Background(), share))
	return share
}

// =============================================================================
// MEMBERS
// =============================================================================

func TestSQLite_MemberRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := seedMember(t, store, "MEM001")

	got, err := store.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.MemberNumber, got.MemberNumber)
	assert.Equal(t, m.Email, got.Email)
	assert.Equal(t, ledger.MemberActive, got.Status)
	assert.True(t, got.JoinedAt.Equal(m.JoinedAt))
	assert.Nil(t, got.OffboardingAt)

	byNumber, err := store.GetMemberByNumber(ctx, "MEM001")
	require.NoError(t, err)
	assert.Equal(t, m.ID, byNumber.ID)

	// Offboarding timestamp survives the NULL column both ways.
	offboarding := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	got.Status = ledger.MemberOffboarding
	got.OffboardingAt = &offboarding
	require.NoError(t, store.UpdateMember(ctx, *got))

	updated, err := store.GetMember(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.OffboardingAt)
	assert.True(t, updated.OffboardingAt.Equal(offboarding))

	updated.Status = ledger.MemberActive
	updated.OffboardingAt = nil
	require.NoError(t, store.UpdateMember(ctx, *updated))

	cleared, err := store.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, cleared.OffboardingAt)
}

func TestSQLite_MemberNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetMember(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = store.GetMemberByNumber(ctx, "MEM999")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	phantom := ledger.Member{ID: ledger.NewMemberID(), MemberNumber: "MEM050", Status: ledger.MemberActive}
	err = store.UpdateMember(ctx, phantom)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSQLite_DuplicateMemberNumberIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seedMember(t, store, "MEM001")

	dup := ledger.Member{
		ID:           ledger.NewMemberID(),
		MemberNumber: "MEM001",
		Name:         "Impostor",
		Status:       ledger.MemberActive,
		JoinedAt:     time.Now(),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	err := store.CreateMember(ctx, dup)

	require.Error(t, err)
	assert.True(t, store.IsUniqueViolation(err))
	assert.True(t, ledger.IsConflict(err))
}

func TestSQLite_ListMembersFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seedMember(t, store, "MEM002")
	seedMember(t, store, "MEM001")
	suspended := seedMember(t, store, "MEM003")
	suspended.Status = ledger.MemberSuspended
	require.NoError(t, store.UpdateMember(ctx, suspended))

	all, err := store.ListMembers(ctx, ledger.MemberFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "MEM001", all[0].MemberNumber)
	assert.Equal(t, "MEM003", all[2].MemberNumber)

	active, err := store.ListMembers(ctx, ledger.MemberFilter{Status: ledger.MemberActive})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	numbers, err := store.MemberNumbers(ctx)
	require.NoError(t, err)
	assert.Len(t, numbers, 3)
}

// =============================================================================
// SHARES
// =============================================================================

func TestSQLite_ShareRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := seedMember(t, store, "MEM001")
	issued := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)

	share := ledger.Share{
		ID:                ledger.NewShareID(),
		CertificateNumber: "CERT001",
		MemberID:          m.ID,
		Quantity:          3,
		NominalValue:      ledger.MustDecimal("250"),
		Value:             ledger.MustDecimal("262.50"),
		Status:            ledger.ShareActive,
		IssueDate:         issued,
		Notes:             "Initial share issuance",
		CreatedAt:         issued,
		UpdatedAt:         issued,
	}
	require.NoError(t, store.CreateShare(ctx, share))

	got, err := store.GetShare(ctx, share.ID)
	require.NoError(t, err)
	assert.Equal(t, "CERT001", got.CertificateNumber)
	assert.Equal(t, 3, got.Quantity)
	assert.True(t, got.Value.Equal(ledger.MustDecimal("262.50")), "got %s", got.Value)
	assert.True(t, got.NominalValue.Equal(ledger.MustDecimal("250")))
	assert.False(t, got.ScheduledForCancellation)
	assert.Equal(t, "Initial share issuance", got.Notes)
	assert.True(t, got.IssueDate.Equal(issued))

	got.ScheduledForCancellation = true
	got.Status = ledger.ShareCancelled
	require.NoError(t, store.UpdateShare(ctx, *got))

	updated, err := store.GetShare(ctx, share.ID)
	require.NoError(t, err)
	assert.True(t, updated.ScheduledForCancellation)
	assert.Equal(t, ledger.ShareCancelled, updated.Status)
}

func TestSQLite_DuplicateCertificateNumberIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := seedMember(t, store, "MEM001")
	seedShare(t, store, m.ID, "CERT001", 1, time.Now())

	dup := ledger.Share{
		ID:                ledger.NewShareID(),
		CertificateNumber: "CERT001",
		MemberID:          m.ID,
		Quantity:          2,
		NominalValue:      ledger.MustDecimal("250"),
		Value:             ledger.MustDecimal("250"),
		Status:            ledger.ShareActive,
		IssueDate:         time.Now(),
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	err := store.CreateShare(ctx, dup)

	require.Error(t, err)
	assert.True(t, store.IsUniqueViolation(err))
	assert.True(t, ledger.IsConflict(err))
}

func TestSQLite_ListSharesByMemberOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := seedMember(t, store, "MEM001")
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	seedShare(t, store, m.ID, "CERT003", 1, day(2))
	seedShare(t, store, m.ID, "CERT002", 1, day(2))
	seedShare(t, store, m.ID, "CERT001", 1, day(5))

	other := seedMember(t, store, "MEM002")
	seedShare(t, store, other.ID, "CERT004", 1, day(1))

	shares, err := store.ListSharesByMember(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, shares, 3)
	assert.Equal(t, "CERT002", shares[0].CertificateNumber)
	assert.Equal(t, "CERT003", shares[1].CertificateNumber)
	assert.Equal(t, "CERT001", shares[2].CertificateNumber)
}

func TestSQLite_ActiveQuantityCountsOnlyActiveCertificates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := seedMember(t, store, "MEM001")
	seedShare(t, store, m.ID, "CERT001", 4, time.Now())

	transferred := seedShare(t, store, m.ID, "CERT002", 10, time.Now())
	transferred.Status = ledger.ShareTransferred
	require.NoError(t, store.UpdateShare(ctx, transferred))

	qty, err := store.ActiveQuantity(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, qty)
}

// =============================================================================
// APPROVALS / TRANSFERS
// =============================================================================

func TestSQLite_ApprovalRoundTripWithDecision(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := seedMember(t, store, "MEM001")
	requested := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	a := ledger.Approval{
		ID:                ledger.NewApprovalID(),
		MemberID:          m.ID,
		RequestedQuantity: 2,
		TotalValue:        ledger.MustDecimal("500"),
		Status:            ledger.ApprovalPending,
		RequestedAt:       requested,
		CreatedAt:         requested,
		UpdatedAt:         requested,
	}
	require.NoError(t, store.CreateApproval(ctx, a))

	got, err := store.GetApproval(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ApprovalPending, got.Status)
	assert.Nil(t, got.DecidedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.IssuedShareID)
	assert.True(t, got.TotalValue.Equal(ledger.MustDecimal("500")))

	decided := requested.Add(time.Hour)
	completed := requested.Add(2 * time.Hour)
	shareID := ledger.NewShareID()
	got.Status = ledger.ApprovalCompleted
	got.DecidedBy = "board"
	got.DecidedAt = &decided
	got.CompletedAt = &completed
	got.IssuedShareID = &shareID
	require.NoError(t, store.UpdateApproval(ctx, *got))

	final, err := store.GetApproval(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "board", final.DecidedBy)
	require.NotNil(t, final.DecidedAt)
	assert.True(t, final.DecidedAt.Equal(decided))
	require.NotNil(t, final.IssuedShareID)
	assert.Equal(t, shareID, *final.IssuedShareID)
}

func TestSQLite_HasPendingApprovalExcludesGivenID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := seedMember(t, store, "MEM001")
	a := ledger.Approval{
		ID:                ledger.NewApprovalID(),
		MemberID:          m.ID,
		RequestedQuantity: 1,
		TotalValue:        ledger.MustDecimal("250"),
		Status:            ledger.ApprovalPending,
		RequestedAt:       time.Now(),
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	require.NoError(t, store.CreateApproval(ctx, a))

	pending, err := store.HasPendingApproval(ctx, m.ID, "")
	require.NoError(t, err)
	assert.True(t, pending)

	pending, err = store.HasPendingApproval(ctx, m.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestSQLite_TransferFiltersAndPendingCheck(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	from := seedMember(t, store, "MEM001")
	to := seedMember(t, store, "MEM002")
	share := seedShare(t, store, from.ID, "CERT001", 2, time.Now())

	tr := ledger.Transfer{
		ID:           ledger.NewTransferID(),
		FromMemberID: from.ID,
		ToMemberID:   to.ID,
		ShareID:      share.ID,
		Quantity:     1,
		TotalValue:   ledger.MustDecimal("250"),
		Status:       ledger.TransferPending,
		RequestedAt:  time.Now(),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, store.CreateTransfer(ctx, tr))

	for _, id := range []ledger.MemberID{from.ID, to.ID} {
		got, err := store.ListTransfers(ctx, ledger.TransferFilter{MemberID: id})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}

	pending, err := store.HasPendingTransferForShare(ctx, share.ID)
	require.NoError(t, err)
	assert.True(t, pending)

	// Approved is no longer pending.
	decided := time.Now()
	tr.Status = ledger.TransferApproved
	tr.DecidedBy = "board"
	tr.DecidedAt = &decided
	require.NoError(t, store.UpdateTransfer(ctx, tr))

	pending, err = store.HasPendingTransferForShare(ctx, share.ID)
	require.NoError(t, err)
	assert.False(t, pending)

	byStatus, err := store.ListTransfers(ctx, ledger.TransferFilter{Status: ledger.TransferApproved})
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)
}

// =============================================================================
// PAYMENTS / DIVIDENDS
// =============================================================================

func TestSQLite_PaidAmountSumsCompletedExactly(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := seedMember(t, store, "MEM001")
	share := seedShare(t, store, m.ID, "CERT001", 1, time.Now())

	add := func(amount string, status ledger.PaymentStatus) {
		t.Helper()
		require.NoError(t, store.CreatePayment(ctx, ledger.Payment{
			ID:        ledger.NewPaymentID(),
			ShareID:   share.ID,
			MemberID:  m.ID,
			Amount:    ledger.MustDecimal(amount),
			Status:    status,
			PaidAt:    time.Now(),
			CreatedAt: time.Now(),
		}))
	}
	// Classic float trap; the sum must stay exact.
	add("0.10", ledger.PaymentCompleted)
	add("0.20", ledger.PaymentCompleted)
	add("100.00", ledger.PaymentCompleted)
	add("999.99", ledger.PaymentPending)

	paid, err := store.PaidAmount(ctx, share.ID)
	require.NoError(t, err)
	assert.True(t, paid.Equal(ledger.MustDecimal("100.30")), "got %s", paid)
}

func TestSQLite_ReparentMovesMoneyRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := seedMember(t, store, "MEM001")
	src1 := seedShare(t, store, m.ID, "CERT001", 1, time.Now())
	src2 := seedShare(t, store, m.ID, "CERT002", 1, time.Now())
	target := seedShare(t, store, m.ID, "CERT003", 2, time.Now())

	for i, sid := range []ledger.ShareID{src1.ID, src2.ID} {
		require.NoError(t, store.CreatePayment(ctx, ledger.Payment{
			ID:        ledger.NewPaymentID(),
			ShareID:   sid,
			MemberID:  m.ID,
			Amount:    ledger.MustDecimal("250"),
			Status:    ledger.PaymentCompleted,
			PaidAt:    time.Now(),
			CreatedAt: time.Now(),
		}))
		require.NoError(t, store.CreateDividend(ctx, ledger.Dividend{
			ID:         ledger.NewDividendID(),
			ShareID:    sid,
			MemberID:   m.ID,
			Year:       2023 + i,
			Amount:     ledger.MustDecimal("12.50"),
			DeclaredAt: time.Now(),
			CreatedAt:  time.Now(),
		}))
	}

	require.NoError(t, store.ReparentPayments(ctx, []ledger.ShareID{src1.ID, src2.ID}, target.ID))
	require.NoError(t, store.ReparentDividends(ctx, []ledger.ShareID{src1.ID, src2.ID}, target.ID))

	payments, err := store.ListPaymentsByShare(ctx, target.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	left, err := store.ListPaymentsByShare(ctx, src1.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	dividends, err := store.ListDividendsByShare(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, dividends, 2)
	assert.Equal(t, 2023, dividends[0].Year)
}

// =============================================================================
// AUDIT
// =============================================================================

func TestSQLite_AuditChangesSurviveTheRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	entry := ledger.AuditEntry{
		ID:                "audit-1",
		UserName:          "alice",
		Action:            ledger.AuditUpdate,
		EntityType:        ledger.EntityMember,
		EntityID:          "member-1",
		EntityDescription: "member MEM001 suspended",
		Changes: ledger.ChangeSet{}.
			Change("status", "active", "suspended").
			Change("reason", "", "unpaid fees"),
		Timestamp: ts,
		IPAddress: "10.0.0.1",
		UserAgent: "test",
	}
	require.NoError(t, store.AppendAudit(ctx, entry))

	got, err := store.ListAudit(ctx, ledger.AuditFilter{EntityID: "member-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].UserName)
	assert.Equal(t, ledger.AuditUpdate, got[0].Action)
	require.Len(t, got[0].Changes, 2)
	assert.Equal(t, "suspended", got[0].Changes["status"].To)
	assert.True(t, got[0].Timestamp.Equal(ts))
}

func TestSQLite_ListAuditFiltersAndLimits(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := ledger.AuditEntry{
			ID:         fmt.Sprintf("audit-%d", i),
			UserName:   "alice",
			Action:     ledger.AuditCreate,
			EntityType: ledger.EntityShare,
			EntityID:   fmt.Sprintf("share-%d", i),
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}
		if i == 4 {
			entry.UserName = "bob"
			entry.Action = ledger.AuditTransfer
		}
		require.NoError(t, store.AppendAudit(ctx, entry))
	}

	all, err := store.ListAudit(ctx, ledger.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "audit-4", all[0].ID)

	limited, err := store.ListAudit(ctx, ledger.AuditFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "audit-4", limited[0].ID)

	byAction, err := store.ListAudit(ctx, ledger.AuditFilter{Actions: []ledger.AuditAction{ledger.AuditTransfer}})
	require.NoError(t, err)
	assert.Len(t, byAction, 1)

	cutoff := base.Add(2 * time.Minute)
	upTo, err := store.ListAudit(ctx, ledger.AuditFilter{To: &cutoff})
	require.NoError(t, err)
	assert.Len(t, upTo, 3)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := seedMember(t, store, "MEM001")

	boom := fmt.Errorf("validation failed mid-flight")
	err := store.WithTx(ctx, func(st ledger.Store) error {
		share := ledger.Share{
			ID:                ledger.NewShareID(),
			CertificateNumber: "CERT001",
			MemberID:          m.ID,
			Quantity:          1,
			NominalValue:      ledger.MustDecimal("250"),
			Value:             ledger.MustDecimal("250"),
			Status:            ledger.ShareActive,
			IssueDate:         time.Now(),
			CreatedAt:         time.Now(),
			UpdatedAt:         time.Now(),
		}
		if err := st.CreateShare(ctx, share); err != nil {
			return err
		}

		// Uncommitted writes are visible inside the transaction.
		inside, err := st.ListSharesByMember(ctx, m.ID)
		if err != nil {
			return err
		}
		if len(inside) != 1 {
			return fmt.Errorf("expected uncommitted share to be visible, saw %d", len(inside))
		}

		existing, err := st.GetMember(ctx, m.ID)
		if err != nil {
			return err
		}
		existing.Status = ledger.MemberTerminated
		if err := st.UpdateMember(ctx, *existing); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	shares, err := store.ListSharesByMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, shares)

	member, err := store.GetMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.MemberActive, member.Status)
}

func TestSQLite_WithTxCommitKeepsWrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.WithTx(ctx, func(st ledger.Store) error {
		m := ledger.Member{
			ID:           ledger.NewMemberID(),
			MemberNumber: "MEM001",
			Name:         "Ada",
			Status:       ledger.MemberActive,
			JoinedAt:     time.Now(),
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		return st.CreateMember(ctx, m)
	})
	require.NoError(t, err)

	members, err := store.ListMembers(ctx, ledger.MemberFilter{})
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestSQLite_ResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := seedMember(t, store, "MEM001")
	seedShare(t, store, m.ID, "CERT001", 1, time.Now())

	require.NoError(t, store.Reset(ctx))

	members, err := store.ListMembers(ctx, ledger.MemberFilter{})
	require.NoError(t, err)
	assert.Empty(t, members)

	numbers, err := store.CertificateNumbers(ctx)
	require.NoError(t, err)
	assert.Empty(t, numbers)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

// Eight writers race to allocate certificate numbers from stale scans.
// The unique index plus the conflict retry must hand every writer a
// distinct number.
func TestSQLite_ConcurrentIssuanceAllocatesDistinctNumbers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := seedMember(t, store, "MEM001")

	const writers = 8
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			return ledger.WithConflictRetry(ctx, store, nil, func(st ledger.Store) error {
				cert, err := ledger.NextCertificateNumber(ctx, st)
				if err != nil {
					return err
				}
				now := time.Now()
				return st.CreateShare(ctx, ledger.Share{
					ID:                ledger.NewShareID(),
					CertificateNumber: cert,
					MemberID:          m.ID,
					Quantity:          1,
					NominalValue:      ledger.MustDecimal("250"),
					Value:             ledger.MustDecimal("250"),
					Status:            ledger.ShareActive,
					IssueDate:         now,
					CreatedAt:         now,
					UpdatedAt:         now,
				})
			})
		})
	}
	require.NoError(t, g.Wait())

	numbers, err := store.CertificateNumbers(ctx)
	require.NoError(t, err)
	require.Len(t, numbers, writers)

	seen := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		assert.False(t, seen[n], "certificate number %s allocated twice", n)
		seen[n] = true
	}
}
