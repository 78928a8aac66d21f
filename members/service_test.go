package members

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/coopware/share-engine/audit"
	"github.com/coopware/share-engine/ledger"
	"github.com/coopware/share-engine/ledger/store"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

var testClock = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *store.TxMemory) {
	t.Helper()
	st := store.NewTxMemory()
	svc := &Service{
		Store:    st,
		Settings: ledger.DefaultSettings(),
		Audit:    audit.NewRecorder(st, zerolog.Nop(), nil),
		Now:      func() time.Time { return testClock },
	}
	return svc, st
}

func testActor() ledger.Actor {
	return ledger.Actor{Name: "board", IPAddress: "10.0.0.1", UserAgent: "test"}
}

func mustCreateMember(t *testing.T, svc *Service, name string, quantity int) (*ledger.Member, *ledger.Share) {
	t.Helper()
	member, share, err := svc.CreateMember(context.Background(), testActor(), CreateInput{
		Name:     name,
		Email:    name + "@coop.example",
		Quantity: quantity,
	})
	if err != nil {
		t.Fatalf("CreateMember(%s): %v", name, err)
	}
	return member, share
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateMember_IssuesInitialCertificate(t *testing.T) {
	// GIVEN an empty ledger
	svc, st := newTestService(t)
	ctx := context.Background()

	// WHEN a member joins with three shares
	member, share, err := svc.CreateMember(ctx, testActor(), CreateInput{
		Name:     "Ada Lovelace",
		Email:    "ada@coop.example",
		Quantity: 3,
	})
	if err != nil {
		t.Fatalf("CreateMember: %v", err)
	}

	// THEN the member row is active with the first number
	if member.MemberNumber != "MEM001" {
		t.Errorf("member number = %s, want MEM001", member.MemberNumber)
	}
	if member.Status != ledger.MemberActive {
		t.Errorf("status = %s, want active", member.Status)
	}
	if !member.JoinedAt.Equal(testClock) {
		t.Errorf("joined at = %v, want %v", member.JoinedAt, testClock)
	}

	// AND the initial certificate is active at the denomination
	if share.CertificateNumber != "CERT001" {
		t.Errorf("certificate = %s, want CERT001", share.CertificateNumber)
	}
	if share.Quantity != 3 {
		t.Errorf("quantity = %d, want 3", share.Quantity)
	}
	if !share.NominalValue.Equal(decimal.NewFromInt(250)) || !share.Value.Equal(decimal.NewFromInt(250)) {
		t.Errorf("values = %s/%s, want 250/250", share.NominalValue, share.Value)
	}
	if share.MemberID != member.ID {
		t.Errorf("share member = %s, want %s", share.MemberID, member.ID)
	}

	// AND both rows carry audit entries
	entries, err := st.ListAudit(ctx, ledger.AuditFilter{})
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.UserName != "board" {
			t.Errorf("audit user = %s, want board", e.UserName)
		}
	}
}

func TestCreateMember_RequiresName(t *testing.T) {
	// GIVEN an empty ledger
	svc, st := newTestService(t)
	ctx := context.Background()

	// WHEN a member is created without a name
	_, _, err := svc.CreateMember(ctx, testActor(), CreateInput{Quantity: 1})

	// THEN the request is rejected and nothing is written
	if !ledger.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
	all, err := st.ListMembers(ctx, ledger.MemberFilter{})
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("members = %d, want 0", len(all))
	}
}

func TestCreateMember_CapBreachLeavesNothing(t *testing.T) {
	// GIVEN a cooperative with a cap of five shares per member
	svc, st := newTestService(t)
	svc.Settings = ledger.CooperativeSettings{MaxSharesPerMember: 5}
	ctx := context.Background()

	// WHEN a member would join over the cap
	_, _, err := svc.CreateMember(ctx, testActor(), CreateInput{Name: "Greedy", Quantity: 6})

	// THEN the whole operation fails: no member, no certificate, no audit
	if !ledger.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
	allMembers, _ := st.ListMembers(ctx, ledger.MemberFilter{})
	if len(allMembers) != 0 {
		t.Errorf("members = %d, want 0", len(allMembers))
	}
	entries, _ := st.ListAudit(ctx, ledger.AuditFilter{})
	if len(entries) != 0 {
		t.Errorf("audit entries = %d, want 0", len(entries))
	}
}

func TestCreateMember_NumbersAreSequential(t *testing.T) {
	svc, _ := newTestService(t)

	first, firstShare := mustCreateMember(t, svc, "First", 1)
	second, secondShare := mustCreateMember(t, svc, "Second", 2)

	if first.MemberNumber != "MEM001" || second.MemberNumber != "MEM002" {
		t.Errorf("member numbers = %s, %s, want MEM001, MEM002", first.MemberNumber, second.MemberNumber)
	}
	if firstShare.CertificateNumber != "CERT001" || secondShare.CertificateNumber != "CERT002" {
		t.Errorf("certificates = %s, %s, want CERT001, CERT002", firstShare.CertificateNumber, secondShare.CertificateNumber)
	}
}

// =============================================================================
// SUSPEND / REINSTATE
// =============================================================================

func TestSuspendAndReinstate(t *testing.T) {
	// GIVEN an active member
	svc, _ := newTestService(t)
	ctx := context.Background()
	member, _ := mustCreateMember(t, svc, "Ada", 1)

	// WHEN suspended
	suspended, err := svc.Suspend(ctx, testActor(), member.ID, "dues unpaid")
	if err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	// THEN the status moves
	if suspended.Status != ledger.MemberSuspended {
		t.Errorf("status = %s, want suspended", suspended.Status)
	}

	// WHEN suspended again
	_, err = svc.Suspend(ctx, testActor(), member.ID, "")
	// THEN the move is refused
	var transition *ledger.TransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("second suspend err = %v, want transition error", err)
	}

	// WHEN reinstated
	reinstated, err := svc.Reinstate(ctx, testActor(), member.ID)
	if err != nil {
		t.Fatalf("Reinstate: %v", err)
	}
	// THEN the member is active again
	if reinstated.Status != ledger.MemberActive {
		t.Errorf("status = %s, want active", reinstated.Status)
	}
}

func TestSuspend_UnknownMember(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Suspend(context.Background(), testActor(), ledger.NewMemberID(), "")
	if !ledger.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

// =============================================================================
// OFFBOARDING
// =============================================================================

func TestStartOffboarding_FlagsActiveCertificates(t *testing.T) {
	// GIVEN a member with one active and one transferred certificate
	svc, st := newTestService(t)
	ctx := context.Background()
	member, initial := mustCreateMember(t, svc, "Ada", 2)

	transferred := ledger.Share{
		ID:                ledger.NewShareID(),
		CertificateNumber: "CERT900",
		MemberID:          member.ID,
		Quantity:          1,
		NominalValue:      decimal.NewFromInt(250),
		Value:             decimal.NewFromInt(250),
		Status:            ledger.ShareTransferred,
		IssueDate:         testClock,
		CreatedAt:         testClock,
		UpdatedAt:         testClock,
	}
	if err := st.CreateShare(ctx, transferred); err != nil {
		t.Fatalf("CreateShare: %v", err)
	}

	// WHEN offboarding starts
	updated, err := svc.StartOffboarding(ctx, testActor(), member.ID)
	if err != nil {
		t.Fatalf("StartOffboarding: %v", err)
	}

	// THEN the member carries the offboarding stamp
	if updated.Status != ledger.MemberOffboarding {
		t.Errorf("status = %s, want offboarding", updated.Status)
	}
	if updated.OffboardingAt == nil || !updated.OffboardingAt.Equal(testClock) {
		t.Errorf("offboarding at = %v, want %v", updated.OffboardingAt, testClock)
	}

	// AND only the active certificate is scheduled for cancellation
	active, err := st.GetShare(ctx, initial.ID)
	if err != nil {
		t.Fatalf("GetShare: %v", err)
	}
	if !active.ScheduledForCancellation {
		t.Error("active certificate not scheduled for cancellation")
	}
	old, err := st.GetShare(ctx, transferred.ID)
	if err != nil {
		t.Fatalf("GetShare: %v", err)
	}
	if old.ScheduledForCancellation {
		t.Error("transferred certificate must not be scheduled")
	}
}

func TestCancelOffboarding_RestoresMember(t *testing.T) {
	// GIVEN a member mid-offboarding
	svc, st := newTestService(t)
	ctx := context.Background()
	member, initial := mustCreateMember(t, svc, "Ada", 2)
	if _, err := svc.StartOffboarding(ctx, testActor(), member.ID); err != nil {
		t.Fatalf("StartOffboarding: %v", err)
	}

	// WHEN the offboarding is cancelled
	updated, err := svc.CancelOffboarding(ctx, testActor(), member.ID)
	if err != nil {
		t.Fatalf("CancelOffboarding: %v", err)
	}

	// THEN the member is active again with no stamp
	if updated.Status != ledger.MemberActive {
		t.Errorf("status = %s, want active", updated.Status)
	}
	if updated.OffboardingAt != nil {
		t.Errorf("offboarding at = %v, want nil", updated.OffboardingAt)
	}

	// AND the cancellation flag is cleared
	share, err := st.GetShare(ctx, initial.ID)
	if err != nil {
		t.Fatalf("GetShare: %v", err)
	}
	if share.ScheduledForCancellation {
		t.Error("certificate still scheduled for cancellation")
	}
}

func TestTerminate_CancelsScheduledCertificates(t *testing.T) {
	// GIVEN a member mid-offboarding with a flagged certificate
	svc, st := newTestService(t)
	ctx := context.Background()
	member, initial := mustCreateMember(t, svc, "Ada", 2)
	if _, err := svc.StartOffboarding(ctx, testActor(), member.ID); err != nil {
		t.Fatalf("StartOffboarding: %v", err)
	}

	// WHEN the member is terminated
	updated, err := svc.Terminate(ctx, testActor(), member.ID)
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	// THEN the member and the flagged certificate are finished
	if updated.Status != ledger.MemberTerminated {
		t.Errorf("status = %s, want terminated", updated.Status)
	}
	share, err := st.GetShare(ctx, initial.ID)
	if err != nil {
		t.Fatalf("GetShare: %v", err)
	}
	if share.Status != ledger.ShareCancelled {
		t.Errorf("certificate status = %s, want cancelled", share.Status)
	}

	// AND the member no longer counts any active quantity
	quantity, err := st.ActiveQuantity(ctx, member.ID)
	if err != nil {
		t.Fatalf("ActiveQuantity: %v", err)
	}
	if quantity != 0 {
		t.Errorf("active quantity = %d, want 0", quantity)
	}
}

func TestTerminate_RequiresOffboarding(t *testing.T) {
	svc, _ := newTestService(t)
	member, _ := mustCreateMember(t, svc, "Ada", 1)

	_, err := svc.Terminate(context.Background(), testActor(), member.ID)
	var transition *ledger.TransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("err = %v, want transition error", err)
	}
	if transition.Entity != ledger.EntityMember {
		t.Errorf("entity = %s, want member", transition.Entity)
	}
}

// =============================================================================
// PAYMENTS / DIVIDENDS
// =============================================================================

func TestRecordPayment(t *testing.T) {
	// GIVEN a member with an unpaid initial certificate
	svc, st := newTestService(t)
	ctx := context.Background()
	_, share := mustCreateMember(t, svc, "Ada", 2)

	// WHEN a payment covering the full subscription lands
	payment, err := svc.RecordPayment(ctx, testActor(), share.ID, decimal.NewFromInt(500), "bank_transfer", "TX-1001")
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	// THEN the payment is completed and counted toward the certificate
	if payment.Status != ledger.PaymentCompleted {
		t.Errorf("status = %s, want completed", payment.Status)
	}
	paid, err := st.PaidAmount(ctx, share.ID)
	if err != nil {
		t.Fatalf("PaidAmount: %v", err)
	}
	if !paid.Equal(decimal.NewFromInt(500)) {
		t.Errorf("paid = %s, want 500", paid)
	}
	if !share.IsFullyPaid(paid) {
		t.Error("certificate should now be fully paid")
	}
}

func TestRecordPayment_Rejections(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	member, share := mustCreateMember(t, svc, "Ada", 1)

	// Non-positive amounts are rejected.
	if _, err := svc.RecordPayment(ctx, testActor(), share.ID, decimal.Zero, "cash", ""); !ledger.IsValidation(err) {
		t.Errorf("zero amount err = %v, want validation", err)
	}

	// Unknown certificates are reported missing.
	if _, err := svc.RecordPayment(ctx, testActor(), ledger.NewShareID(), decimal.NewFromInt(10), "cash", ""); !ledger.IsNotFound(err) {
		t.Errorf("unknown share err = %v, want not found", err)
	}

	// Cancelled certificates take no further money.
	cancelled := ledger.Share{
		ID:                ledger.NewShareID(),
		CertificateNumber: "CERT901",
		MemberID:          member.ID,
		Quantity:          1,
		NominalValue:      decimal.NewFromInt(250),
		Value:             decimal.NewFromInt(250),
		Status:            ledger.ShareCancelled,
		IssueDate:         testClock,
		CreatedAt:         testClock,
		UpdatedAt:         testClock,
	}
	if err := st.CreateShare(ctx, cancelled); err != nil {
		t.Fatalf("CreateShare: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, testActor(), cancelled.ID, decimal.NewFromInt(10), "cash", ""); !ledger.IsValidation(err) {
		t.Errorf("cancelled share err = %v, want validation", err)
	}
}

func TestDeclareDividend(t *testing.T) {
	// GIVEN a member holding a certificate
	svc, st := newTestService(t)
	ctx := context.Background()
	member, share := mustCreateMember(t, svc, "Ada", 2)

	// WHEN a dividend is declared for the year
	dividend, err := svc.DeclareDividend(ctx, testActor(), share.ID, 2023, decimal.NewFromFloat(12.50))
	if err != nil {
		t.Fatalf("DeclareDividend: %v", err)
	}

	// THEN the row lands against the certificate and its holder
	if dividend.Year != 2023 {
		t.Errorf("year = %d, want 2023", dividend.Year)
	}
	if dividend.MemberID != member.ID {
		t.Errorf("member = %s, want %s", dividend.MemberID, member.ID)
	}
	rows, err := st.ListDividendsByShare(ctx, share.ID)
	if err != nil {
		t.Fatalf("ListDividendsByShare: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("dividends = %d, want 1", len(rows))
	}

	// AND non-positive amounts are rejected
	if _, err := svc.DeclareDividend(ctx, testActor(), share.ID, 2023, decimal.Zero); !ledger.IsValidation(err) {
		t.Errorf("zero dividend err = %v, want validation", err)
	}
}
