package shares

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopware/share-engine/audit"
	"github.com/coopware/share-engine/ledger"
	"github.com/coopware/share-engine/ledger/store"
)

func newTransferService(st *store.TxMemory) *TransferService {
	return &TransferService{
		Store:    st,
		Settings: ledger.DefaultSettings(),
		Audit:    audit.NewRecorder(st, zerolog.Nop(), nil),
		Now:      fixedClock,
	}
}

// completeTransfer drives a request through approval to completion.
func completeTransfer(t *testing.T, svc *TransferService, fromID, toID ledger.MemberID, shareID ledger.ShareID, quantity int) *ledger.Transfer {
	t.Helper()
	ctx := context.Background()
	transfer, err := svc.CreateRequest(ctx, workflowActor(), fromID, toID, shareID, quantity)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, workflowActor(), transfer.ID)
	require.NoError(t, err)
	completed, err := svc.Complete(ctx, workflowActor(), transfer.ID)
	require.NoError(t, err)
	return completed
}

// =============================================================================
// PARTIAL TRANSFER - Source stays active with the remainder
// =============================================================================

func TestTransfer_PartialQuantity(t *testing.T) {
	st := store.NewTxMemory()
	svc := newTransferService(st)
	ctx := context.Background()

	from, source := seedPaidMember(t, st, "MEM001", "CERT001", 5)
	to, _ := seedPaidMember(t, st, "MEM002", "CERT002", 1)

	completed := completeTransfer(t, svc, from.ID, to.ID, source.ID, 3)

	require.Equal(t, ledger.TransferCompleted, completed.Status)
	require.NotNil(t, completed.NewShareID)
	require.NotNil(t, completed.CompletedAt)

	// Source keeps the remainder and stays active.
	remaining, err := st.GetShare(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ShareActive, remaining.Status)
	assert.Equal(t, 2, remaining.Quantity)

	// Recipient certificate carries the moved units at the source's values.
	issued, err := st.GetShare(ctx, *completed.NewShareID)
	require.NoError(t, err)
	assert.Equal(t, to.ID, issued.MemberID)
	assert.Equal(t, 3, issued.Quantity)
	assert.Equal(t, ledger.ShareActive, issued.Status)
	assert.True(t, issued.NominalValue.Equal(source.NominalValue))
	assert.Contains(t, issued.Notes, "Transferred from certificate CERT001")

	// Not a unit created or destroyed, only moved.
	fromQuantity, err := st.ActiveQuantity(ctx, from.ID)
	require.NoError(t, err)
	toQuantity, err := st.ActiveQuantity(ctx, to.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fromQuantity)
	assert.Equal(t, 4, toQuantity)

	// The source member still holds shares, so no lock.
	fromMember, err := st.GetMember(ctx, from.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.MemberActive, fromMember.Status)
}

// =============================================================================
// FULL TRANSFER - Source marked transferred, member locked at zero
// =============================================================================

func TestTransfer_FullQuantityLocksEmptiedMember(t *testing.T) {
	st := store.NewTxMemory()
	svc := newTransferService(st)
	ctx := context.Background()

	from, source := seedPaidMember(t, st, "MEM001", "CERT001", 5)
	to, _ := seedPaidMember(t, st, "MEM002", "CERT002", 1)

	completed := completeTransfer(t, svc, from.ID, to.ID, source.ID, 5)

	// The source record keeps its quantity for history.
	moved, err := st.GetShare(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ShareTransferred, moved.Status)
	assert.Equal(t, 5, moved.Quantity)

	// The emptied member is locked automatically.
	fromMember, err := st.GetMember(ctx, from.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.MemberLocked, fromMember.Status)

	// The lock is on the audit trail.
	lockEntries, err := st.ListAudit(ctx, ledger.AuditFilter{Actions: []ledger.AuditAction{ledger.AuditLock}})
	require.NoError(t, err)
	require.Len(t, lockEntries, 1)
	assert.Equal(t, string(from.ID), lockEntries[0].EntityID)

	// The recipient holds everything that moved.
	issued, err := st.GetShare(ctx, *completed.NewShareID)
	require.NoError(t, err)
	assert.Equal(t, 5, issued.Quantity)
	toQuantity, err := st.ActiveQuantity(ctx, to.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, toQuantity)
}

func TestTransfer_RemainderLeavesMemberUnlocked(t *testing.T) {
	st := store.NewTxMemory()
	svc := newTransferService(st)
	ctx := context.Background()

	// Two certificates; transferring one fully still leaves quantity.
	from, first := seedPaidMember(t, st, "MEM001", "CERT001", 2)
	second := seedShare(t, st, from.ID, "CERT003", 3, workflowClock.AddDate(0, -1, 0))
	payInFull(t, st, second)
	to, _ := seedPaidMember(t, st, "MEM002", "CERT002", 1)

	completeTransfer(t, svc, from.ID, to.ID, first.ID, 2)

	fromMember, err := st.GetMember(ctx, from.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.MemberActive, fromMember.Status)

	quantity, err := st.ActiveQuantity(ctx, from.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, quantity)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestCreateTransferRequest_Rejections(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name     string
		request  func(t *testing.T, st *store.TxMemory, svc *TransferService) error
		fragment string
	}{
		{
			name: "same member on both sides",
			request: func(t *testing.T, st *store.TxMemory, svc *TransferService) error {
				member, share := seedPaidMember(t, st, "MEM001", "CERT001", 5)
				_, err := svc.CreateRequest(ctx, workflowActor(), member.ID, member.ID, share.ID, 1)
				return err
			},
			fragment: "same member",
		},
		{
			name: "non-positive quantity",
			request: func(t *testing.T, st *store.TxMemory, svc *TransferService) error {
				from, share := seedPaidMember(t, st, "MEM001", "CERT001", 5)
				to, _ := seedPaidMember(t, st, "MEM002", "CERT002", 1)
				_, err := svc.CreateRequest(ctx, workflowActor(), from.ID, to.ID, share.ID, 0)
				return err
			},
			fragment: "must be positive",
		},
		{
			name: "suspended source member",
			request: func(t *testing.T, st *store.TxMemory, svc *TransferService) error {
				from := seedMember(t, st, "MEM001", ledger.MemberSuspended)
				share := seedShare(t, st, from.ID, "CERT001", 5, workflowClock)
				to, _ := seedPaidMember(t, st, "MEM002", "CERT002", 1)
				_, err := svc.CreateRequest(ctx, workflowActor(), from.ID, to.ID, share.ID, 1)
				return err
			},
			fragment: "source member is suspended",
		},
		{
			name: "unknown recipient",
			request: func(t *testing.T, st *store.TxMemory, svc *TransferService) error {
				from, share := seedPaidMember(t, st, "MEM001", "CERT001", 5)
				_, err := svc.CreateRequest(ctx, workflowActor(), from.ID, ledger.NewMemberID(), share.ID, 1)
				return err
			},
			fragment: "recipient member not found",
		},
		{
			name: "certificate owned by someone else",
			request: func(t *testing.T, st *store.TxMemory, svc *TransferService) error {
				from, _ := seedPaidMember(t, st, "MEM001", "CERT001", 5)
				to, theirs := seedPaidMember(t, st, "MEM002", "CERT002", 1)
				_, err := svc.CreateRequest(ctx, workflowActor(), from.ID, to.ID, theirs.ID, 1)
				return err
			},
			fragment: "not owned by the source member",
		},
		{
			name: "certificate no longer active",
			request: func(t *testing.T, st *store.TxMemory, svc *TransferService) error {
				from, share := seedPaidMember(t, st, "MEM001", "CERT001", 5)
				to, _ := seedPaidMember(t, st, "MEM002", "CERT002", 1)
				share.Status = ledger.ShareTransferred
				if err := st.UpdateShare(ctx, share); err != nil {
					return err
				}
				_, err := svc.CreateRequest(ctx, workflowActor(), from.ID, to.ID, share.ID, 1)
				return err
			},
			fragment: "not active",
		},
		{
			name: "quantity exceeds the certificate",
			request: func(t *testing.T, st *store.TxMemory, svc *TransferService) error {
				from, share := seedPaidMember(t, st, "MEM001", "CERT001", 5)
				to, _ := seedPaidMember(t, st, "MEM002", "CERT002", 1)
				_, err := svc.CreateRequest(ctx, workflowActor(), from.ID, to.ID, share.ID, 6)
				return err
			},
			fragment: "exceeds certificate quantity",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := store.NewTxMemory()
			svc := newTransferService(st)

			err := tc.request(t, st, svc)

			require.True(t, ledger.IsValidation(err), "err = %v", err)
			assert.Contains(t, err.Error(), tc.fragment)

			transfers, listErr := st.ListTransfers(ctx, ledger.TransferFilter{})
			require.NoError(t, listErr)
			assert.Empty(t, transfers)
		})
	}
}

func TestApproveTransfer_RevalidatesDriftedState(t *testing.T) {
	st := store.NewTxMemory()
	svc := newTransferService(st)
	ctx := context.Background()

	from, source := seedPaidMember(t, st, "MEM001", "CERT001", 5)
	to, _ := seedPaidMember(t, st, "MEM002", "CERT002", 1)

	transfer, err := svc.CreateRequest(ctx, workflowActor(), from.ID, to.ID, source.ID, 4)
	require.NoError(t, err)

	// The certificate shrinks under the request before the decision.
	source.Quantity = 2
	require.NoError(t, st.UpdateShare(ctx, source))

	_, err = svc.Approve(ctx, workflowActor(), transfer.ID)
	require.True(t, ledger.IsValidation(err), "err = %v", err)
	assert.Contains(t, err.Error(), "exceeds certificate quantity")

	// The request is still pending, not silently rejected.
	current, err := st.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TransferPending, current.Status)
}

func TestCompleteTransfer_EnforcesRecipientCap(t *testing.T) {
	st := store.NewTxMemory()
	svc := newTransferService(st)
	svc.Settings = ledger.CooperativeSettings{MaxSharesPerMember: 5}
	ctx := context.Background()

	from, source := seedPaidMember(t, st, "MEM001", "CERT001", 5)
	to, _ := seedPaidMember(t, st, "MEM002", "CERT002", 3)

	transfer, err := svc.CreateRequest(ctx, workflowActor(), from.ID, to.ID, source.ID, 3)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, workflowActor(), transfer.ID)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, workflowActor(), transfer.ID)
	require.True(t, ledger.IsValidation(err), "err = %v", err)
	assert.Contains(t, err.Error(), "exceeding the cap")

	// The failed completion changed nothing.
	current, err := st.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TransferApproved, current.Status)
	unchanged, err := st.GetShare(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, unchanged.Quantity)
	assert.Equal(t, ledger.ShareActive, unchanged.Status)
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancelTransfer(t *testing.T) {
	st := store.NewTxMemory()
	svc := newTransferService(st)
	ctx := context.Background()

	from, source := seedPaidMember(t, st, "MEM001", "CERT001", 5)
	to, _ := seedPaidMember(t, st, "MEM002", "CERT002", 1)

	transfer, err := svc.CreateRequest(ctx, workflowActor(), from.ID, to.ID, source.ID, 2)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, workflowActor(), transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TransferCancelled, cancelled.Status)

	// Cancelling again succeeds without writing anything new.
	again, err := svc.Cancel(ctx, workflowActor(), transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TransferCancelled, again.Status)

	cancelEntries, err := st.ListAudit(ctx, ledger.AuditFilter{
		EntityType: ledger.EntityTransfer,
		Actions:    []ledger.AuditAction{ledger.AuditUpdate},
	})
	require.NoError(t, err)
	require.Len(t, cancelEntries, 1, "idempotent cancel must not audit twice")
}

func TestCancelTransfer_RefusedAfterCompletion(t *testing.T) {
	st := store.NewTxMemory()
	svc := newTransferService(st)
	ctx := context.Background()

	from, source := seedPaidMember(t, st, "MEM001", "CERT001", 5)
	to, _ := seedPaidMember(t, st, "MEM002", "CERT002", 1)

	completed := completeTransfer(t, svc, from.ID, to.ID, source.ID, 2)

	_, err := svc.Cancel(ctx, workflowActor(), completed.ID)
	var transition *ledger.TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, ledger.EntityTransfer, transition.Entity)
}

// =============================================================================
// VALUE FREEZING
// =============================================================================

func TestCreateTransferRequest_FreezesTotalValue(t *testing.T) {
	st := store.NewTxMemory()
	svc := newTransferService(st)
	ctx := context.Background()

	from, source := seedPaidMember(t, st, "MEM001", "CERT001", 5)
	to, _ := seedPaidMember(t, st, "MEM002", "CERT002", 1)

	transfer, err := svc.CreateRequest(ctx, workflowActor(), from.ID, to.ID, source.ID, 3)
	require.NoError(t, err)

	assert.True(t, transfer.TotalValue.Equal(decimal.NewFromInt(750)),
		"total value = %s, want 750", transfer.TotalValue)
}
