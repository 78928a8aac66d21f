/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.TxStore using SQLite. The embedded production store:
  one file, zero operational surface, the same transactional semantics
  the workflows get from PostgreSQL.

INTERFACES IMPLEMENTED:
  ledger.Store:   Members, shares, approvals, transfers, payments,
                  dividends, audit trail
  ledger.TxStore: WithTx over BEGIN IMMEDIATE, unique-violation
                  detection by error message

UNIQUE INDEXES:
  Certificate and member number allocation is settled by unique indexes,
  never by locks:
  - idx_shares_certificate: one certificate number, ever
  - idx_members_number:     one member number, ever
  A transaction that loses the number race fails its INSERT; the conflict
  retry loop re-runs it against a fresh scan.

WAL MODE:
  Opened with WAL (Write-Ahead Logging) plus a 5s busy timeout and
  immediate transactions, so readers never block and concurrent writers
  queue instead of failing fast. In-memory databases are pinned to a
  single connection, otherwise every pool connection would see its own
  empty database.

MONEY:
  Decimal values are stored as TEXT and summed in Go. SQLite SUM() would
  coerce to float; money never touches float here.

USAGE:
  store, err := sqlite.New("./data/coop.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for tests
  - store/postgres: Server-grade implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/coopware/share-engine/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	queries
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an ephemeral database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dbPath, ":memory:") {
		// Every pool connection gets its own in-memory database; pin to one.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, queries: queries{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Members
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		member_number TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		offboarding_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: member numbers are allocated optimistically; this index is
	-- what makes two racing allocations resolve to one winner.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_members_number
		ON members(member_number);
	CREATE INDEX IF NOT EXISTS idx_members_status
		ON members(status);

	-- Shares (certificates)
	CREATE TABLE IF NOT EXISTS shares (
		id TEXT PRIMARY KEY,
		certificate_number TEXT NOT NULL,
		member_id TEXT NOT NULL REFERENCES members(id),
		quantity INTEGER NOT NULL,
		nominal_value TEXT NOT NULL,
		value TEXT NOT NULL,
		status TEXT NOT NULL,
		issue_date TEXT NOT NULL,
		scheduled_for_cancellation INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: same story as member numbers.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_shares_certificate
		ON shares(certificate_number);
	CREATE INDEX IF NOT EXISTS idx_shares_member
		ON shares(member_id, issue_date);

	-- Active-quantity sums and the locking side effect (hot path)
	CREATE INDEX IF NOT EXISTS idx_shares_member_status
		ON shares(member_id, status);

	-- Approval requests
	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		requested_quantity INTEGER NOT NULL,
		total_value TEXT NOT NULL,
		status TEXT NOT NULL,
		requested_at TEXT NOT NULL,
		decided_by TEXT NOT NULL DEFAULT '',
		decided_at TEXT,
		rejection_reason TEXT NOT NULL DEFAULT '',
		completed_at TEXT,
		issued_share_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_member_status
		ON approvals(member_id, status);

	-- Transfer requests
	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		from_member_id TEXT NOT NULL REFERENCES members(id),
		to_member_id TEXT NOT NULL REFERENCES members(id),
		share_id TEXT NOT NULL REFERENCES shares(id),
		quantity INTEGER NOT NULL,
		total_value TEXT NOT NULL,
		status TEXT NOT NULL,
		requested_at TEXT NOT NULL,
		decided_by TEXT NOT NULL DEFAULT '',
		decided_at TEXT,
		rejection_reason TEXT NOT NULL DEFAULT '',
		completed_at TEXT,
		new_share_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_from
		ON transfers(from_member_id);
	CREATE INDEX IF NOT EXISTS idx_transfers_to
		ON transfers(to_member_id);

	-- Pending-transfer checks during consolidation
	CREATE INDEX IF NOT EXISTS idx_transfers_share_status
		ON transfers(share_id, status);

	-- Payments
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		share_id TEXT NOT NULL REFERENCES shares(id),
		member_id TEXT NOT NULL REFERENCES members(id),
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL DEFAULT '',
		paid_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_share
		ON payments(share_id);

	-- Dividends
	CREATE TABLE IF NOT EXISTS dividends (
		id TEXT PRIMARY KEY,
		share_id TEXT NOT NULL REFERENCES shares(id),
		member_id TEXT NOT NULL REFERENCES members(id),
		year INTEGER NOT NULL,
		amount TEXT NOT NULL,
		declared_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dividends_share
		ON dividends(share_id);

	-- Audit trail (append-only: no UPDATE or DELETE statements exist
	-- for this table anywhere in the package)
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		user_name TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		entity_description TEXT NOT NULL DEFAULT '',
		permission TEXT NOT NULL DEFAULT '',
		changes_json TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_entries(entity_type, entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp
		ON audit_entries(timestamp DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within one database transaction. fn returning error
// rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// IsUniqueViolation reports whether err is SQLite refusing a duplicate
// unique-indexed value. Create paths normalize driver errors into
// ledger.ErrConflict; raw driver errors are recognized too.
func (s *Store) IsUniqueViolation(err error) bool {
	return ledger.IsConflict(err) || isUniqueConstraintError(err)
}

// Reset clears all data (for scenario reloads and tests). Children first,
// the schema carries foreign keys.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{"audit_entries", "payments", "dividends", "transfers", "approvals", "shares", "members"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// queries implements every ledger.Store method against either the pool
// or one transaction, so reads and writes inside WithTx see uncommitted
// state.
type queries struct {
	q dbtx
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// MEMBER STORE
// =============================================================================

const memberColumns = `id, member_number, name, email, status, joined_at, offboarding_at, created_at, updated_at`

func (s queries) CreateMember(ctx context.Context, m ledger.Member) error {
	query := `
		INSERT INTO members (` + memberColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(m.ID), m.MemberNumber, m.Name, m.Email, string(m.Status),
		timeText(m.JoinedAt), timePtrText(m.OffboardingAt),
		timeText(m.CreatedAt), timeText(m.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return duplicateError("member number", m.MemberNumber)
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func (s queries) GetMember(ctx context.Context, id ledger.MemberID) (*ledger.Member, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, string(id))
	member, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityMember, ID: string(id)}
	}
	return member, err
}

func (s queries) GetMemberByNumber(ctx context.Context, number string) (*ledger.Member, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE member_number = ?`, number)
	member, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityMember, ID: number}
	}
	return member, err
}

func (s queries) UpdateMember(ctx context.Context, m ledger.Member) error {
	query := `
		UPDATE members
		SET member_number = ?, name = ?, email = ?, status = ?,
		    joined_at = ?, offboarding_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.q.ExecContext(ctx, query,
		m.MemberNumber, m.Name, m.Email, string(m.Status),
		timeText(m.JoinedAt), timePtrText(m.OffboardingAt), timeText(m.UpdatedAt),
		string(m.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return requireRow(result, &ledger.NotFoundError{Entity: ledger.EntityMember, ID: string(m.ID)})
}

func (s queries) ListMembers(ctx context.Context, f ledger.MemberFilter) ([]ledger.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY member_number ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []ledger.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *member)
	}
	return members, rows.Err()
}

func (s queries) MemberNumbers(ctx context.Context) ([]string, error) {
	return s.stringColumn(ctx, `SELECT member_number FROM members`)
}

func scanMember(row scanner) (*ledger.Member, error) {
	var (
		m             ledger.Member
		id, status    string
		joinedAt      string
		offboardingAt sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(&id, &m.MemberNumber, &m.Name, &m.Email, &status,
		&joinedAt, &offboardingAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	m.ID = ledger.MemberID(id)
	m.Status = ledger.MemberStatus(status)
	m.JoinedAt = parseTimeText(joinedAt)
	m.OffboardingAt = parseTimePtr(offboardingAt)
	m.CreatedAt = parseTimeText(createdAt)
	m.UpdatedAt = parseTimeText(updatedAt)
	return &m, nil
}

// =============================================================================
// SHARE STORE
// =============================================================================

const shareColumns = `id, certificate_number, member_id, quantity, nominal_value, value, status, issue_date, scheduled_for_cancellation, notes, created_at, updated_at`

func (s queries) CreateShare(ctx context.Context, share ledger.Share) error {
	query := `
		INSERT INTO shares (` + shareColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(share.ID), share.CertificateNumber, string(share.MemberID),
		share.Quantity, share.NominalValue.String(), share.Value.String(),
		string(share.Status), timeText(share.IssueDate),
		boolInt(share.ScheduledForCancellation), share.Notes,
		timeText(share.CreatedAt), timeText(share.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return duplicateError("certificate number", share.CertificateNumber)
		}
		return fmt.Errorf("failed to insert share: %w", err)
	}
	return nil
}

func (s queries) GetShare(ctx context.Context, id ledger.ShareID) (*ledger.Share, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE id = ?`, string(id))
	share, err := scanShare(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityShare, ID: string(id)}
	}
	return share, err
}

func (s queries) UpdateShare(ctx context.Context, share ledger.Share) error {
	query := `
		UPDATE shares
		SET certificate_number = ?, member_id = ?, quantity = ?,
		    nominal_value = ?, value = ?, status = ?, issue_date = ?,
		    scheduled_for_cancellation = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.q.ExecContext(ctx, query,
		share.CertificateNumber, string(share.MemberID), share.Quantity,
		share.NominalValue.String(), share.Value.String(), string(share.Status),
		timeText(share.IssueDate), boolInt(share.ScheduledForCancellation),
		share.Notes, timeText(share.UpdatedAt),
		string(share.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update share: %w", err)
	}
	return requireRow(result, &ledger.NotFoundError{Entity: ledger.EntityShare, ID: string(share.ID)})
}

func (s queries) ListSharesByMember(ctx context.Context, memberID ledger.MemberID) ([]ledger.Share, error) {
	query := `
		SELECT ` + shareColumns + ` FROM shares
		WHERE member_id = ?
		ORDER BY issue_date ASC, certificate_number ASC
	`
	rows, err := s.q.QueryContext(ctx, query, string(memberID))
	if err != nil {
		return nil, fmt.Errorf("failed to query shares: %w", err)
	}
	defer rows.Close()

	var shares []ledger.Share
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, *share)
	}
	return shares, rows.Err()
}

func (s queries) CertificateNumbers(ctx context.Context) ([]string, error) {
	return s.stringColumn(ctx, `SELECT certificate_number FROM shares`)
}

func (s queries) ActiveQuantity(ctx context.Context, memberID ledger.MemberID) (int, error) {
	var quantity int
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM shares WHERE member_id = ? AND status = ?`,
		string(memberID), string(ledger.ShareActive),
	).Scan(&quantity)
	return quantity, err
}

func scanShare(row scanner) (*ledger.Share, error) {
	var (
		share                ledger.Share
		id, memberID, status string
		nominalValue, value  string
		issueDate            string
		scheduled            int
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &share.CertificateNumber, &memberID, &share.Quantity,
		&nominalValue, &value, &status, &issueDate, &scheduled, &share.Notes,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	share.ID = ledger.ShareID(id)
	share.MemberID = ledger.MemberID(memberID)
	share.NominalValue = ledger.MustDecimal(nominalValue)
	share.Value = ledger.MustDecimal(value)
	share.Status = ledger.ShareStatus(status)
	share.IssueDate = parseTimeText(issueDate)
	share.ScheduledForCancellation = scheduled != 0
	share.CreatedAt = parseTimeText(createdAt)
	share.UpdatedAt = parseTimeText(updatedAt)
	return &share, nil
}

// =============================================================================
// APPROVAL STORE
// =============================================================================

const approvalColumns = `id, member_id, requested_quantity, total_value, status, requested_at, decided_by, decided_at, rejection_reason, completed_at, issued_share_id, created_at, updated_at`

func (s queries) CreateApproval(ctx context.Context, a ledger.Approval) error {
	query := `
		INSERT INTO approvals (` + approvalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(a.ID), string(a.MemberID), a.RequestedQuantity,
		a.TotalValue.String(), string(a.Status), timeText(a.RequestedAt),
		a.DecidedBy, timePtrText(a.DecidedAt), a.RejectionReason,
		timePtrText(a.CompletedAt), shareIDPtrText(a.IssuedShareID),
		timeText(a.CreatedAt), timeText(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", err)
	}
	return nil
}

func (s queries) GetApproval(ctx context.Context, id ledger.ApprovalID) (*ledger.Approval, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE id = ?`, string(id))
	approval, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityApproval, ID: string(id)}
	}
	return approval, err
}

func (s queries) UpdateApproval(ctx context.Context, a ledger.Approval) error {
	query := `
		UPDATE approvals
		SET status = ?, decided_by = ?, decided_at = ?, rejection_reason = ?,
		    completed_at = ?, issued_share_id = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.q.ExecContext(ctx, query,
		string(a.Status), a.DecidedBy, timePtrText(a.DecidedAt), a.RejectionReason,
		timePtrText(a.CompletedAt), shareIDPtrText(a.IssuedShareID), timeText(a.UpdatedAt),
		string(a.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update approval: %w", err)
	}
	return requireRow(result, &ledger.NotFoundError{Entity: ledger.EntityApproval, ID: string(a.ID)})
}

func (s queries) ListApprovals(ctx context.Context, f ledger.ApprovalFilter) ([]ledger.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals`
	var conditions []string
	var args []any
	if f.MemberID != "" {
		conditions = append(conditions, `member_id = ?`)
		args = append(args, string(f.MemberID))
	}
	if f.Status != "" {
		conditions = append(conditions, `status = ?`)
		args = append(args, string(f.Status))
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY requested_at DESC, id ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []ledger.Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, *approval)
	}
	return approvals, rows.Err()
}

func (s queries) HasPendingApproval(ctx context.Context, memberID ledger.MemberID, excludeID ledger.ApprovalID) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM approvals WHERE member_id = ? AND status = ? AND id != ?`,
		string(memberID), string(ledger.ApprovalPending), string(excludeID),
	).Scan(&count)
	return count > 0, err
}

func scanApproval(row scanner) (*ledger.Approval, error) {
	var (
		a                      ledger.Approval
		id, memberID, status   string
		totalValue             string
		requestedAt            string
		decidedAt, completedAt sql.NullString
		issuedShareID          sql.NullString
		createdAt, updatedAt   string
	)
	err := row.Scan(&id, &memberID, &a.RequestedQuantity, &totalValue, &status,
		&requestedAt, &a.DecidedBy, &decidedAt, &a.RejectionReason,
		&completedAt, &issuedShareID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.ID = ledger.ApprovalID(id)
	a.MemberID = ledger.MemberID(memberID)
	a.TotalValue = ledger.MustDecimal(totalValue)
	a.Status = ledger.ApprovalStatus(status)
	a.RequestedAt = parseTimeText(requestedAt)
	a.DecidedAt = parseTimePtr(decidedAt)
	a.CompletedAt = parseTimePtr(completedAt)
	if issuedShareID.Valid && issuedShareID.String != "" {
		shareID := ledger.ShareID(issuedShareID.String)
		a.IssuedShareID = &shareID
	}
	a.CreatedAt = parseTimeText(createdAt)
	a.UpdatedAt = parseTimeText(updatedAt)
	return &a, nil
}

// =============================================================================
// TRANSFER STORE
// =============================================================================

const transferColumns = `id, from_member_id, to_member_id, share_id, quantity, total_value, status, requested_at, decided_by, decided_at, rejection_reason, completed_at, new_share_id, created_at, updated_at`

func (s queries) CreateTransfer(ctx context.Context, t ledger.Transfer) error {
	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(t.ID), string(t.FromMemberID), string(t.ToMemberID), string(t.ShareID),
		t.Quantity, t.TotalValue.String(), string(t.Status), timeText(t.RequestedAt),
		t.DecidedBy, timePtrText(t.DecidedAt), t.RejectionReason,
		timePtrText(t.CompletedAt), shareIDPtrText(t.NewShareID),
		timeText(t.CreatedAt), timeText(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

func (s queries) GetTransfer(ctx context.Context, id ledger.TransferID) (*ledger.Transfer, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = ?`, string(id))
	transfer, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityTransfer, ID: string(id)}
	}
	return transfer, err
}

func (s queries) UpdateTransfer(ctx context.Context, t ledger.Transfer) error {
	query := `
		UPDATE transfers
		SET status = ?, decided_by = ?, decided_at = ?, rejection_reason = ?,
		    completed_at = ?, new_share_id = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.q.ExecContext(ctx, query,
		string(t.Status), t.DecidedBy, timePtrText(t.DecidedAt), t.RejectionReason,
		timePtrText(t.CompletedAt), shareIDPtrText(t.NewShareID), timeText(t.UpdatedAt),
		string(t.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update transfer: %w", err)
	}
	return requireRow(result, &ledger.NotFoundError{Entity: ledger.EntityTransfer, ID: string(t.ID)})
}

func (s queries) ListTransfers(ctx context.Context, f ledger.TransferFilter) ([]ledger.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers`
	var conditions []string
	var args []any
	if f.MemberID != "" {
		conditions = append(conditions, `(from_member_id = ? OR to_member_id = ?)`)
		args = append(args, string(f.MemberID), string(f.MemberID))
	}
	if f.ShareID != "" {
		conditions = append(conditions, `share_id = ?`)
		args = append(args, string(f.ShareID))
	}
	if f.Status != "" {
		conditions = append(conditions, `status = ?`)
		args = append(args, string(f.Status))
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY requested_at DESC, id ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var transfers []ledger.Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *transfer)
	}
	return transfers, rows.Err()
}

func (s queries) HasPendingTransferForShare(ctx context.Context, shareID ledger.ShareID) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transfers WHERE share_id = ? AND status = ?`,
		string(shareID), string(ledger.TransferPending),
	).Scan(&count)
	return count > 0, err
}

func scanTransfer(row scanner) (*ledger.Transfer, error) {
	var (
		t                      ledger.Transfer
		id, fromID, toID       string
		shareID, status        string
		totalValue             string
		requestedAt            string
		decidedAt, completedAt sql.NullString
		newShareID             sql.NullString
		createdAt, updatedAt   string
	)
	err := row.Scan(&id, &fromID, &toID, &shareID, &t.Quantity, &totalValue,
		&status, &requestedAt, &t.DecidedBy, &decidedAt, &t.RejectionReason,
		&completedAt, &newShareID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.ID = ledger.TransferID(id)
	t.FromMemberID = ledger.MemberID(fromID)
	t.ToMemberID = ledger.MemberID(toID)
	t.ShareID = ledger.ShareID(shareID)
	t.TotalValue = ledger.MustDecimal(totalValue)
	t.Status = ledger.TransferStatus(status)
	t.RequestedAt = parseTimeText(requestedAt)
	t.DecidedAt = parseTimePtr(decidedAt)
	t.CompletedAt = parseTimePtr(completedAt)
	if newShareID.Valid && newShareID.String != "" {
		share := ledger.ShareID(newShareID.String)
		t.NewShareID = &share
	}
	t.CreatedAt = parseTimeText(createdAt)
	t.UpdatedAt = parseTimeText(updatedAt)
	return &t, nil
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (s queries) CreatePayment(ctx context.Context, p ledger.Payment) error {
	query := `
		INSERT INTO payments (id, share_id, member_id, amount, status, method, reference, paid_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(p.ID), string(p.ShareID), string(p.MemberID),
		p.Amount.String(), string(p.Status), p.Method, p.Reference,
		timeText(p.PaidAt), timeText(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s queries) ListPaymentsByShare(ctx context.Context, shareID ledger.ShareID) ([]ledger.Payment, error) {
	query := `
		SELECT id, share_id, member_id, amount, status, method, reference, paid_at, created_at
		FROM payments
		WHERE share_id = ?
		ORDER BY paid_at ASC, id ASC
	`
	rows, err := s.q.QueryContext(ctx, query, string(shareID))
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		var (
			p                 ledger.Payment
			id, share, member string
			amount, status    string
			paidAt, createdAt string
		)
		if err := rows.Scan(&id, &share, &member, &amount, &status,
			&p.Method, &p.Reference, &paidAt, &createdAt); err != nil {
			return nil, err
		}
		p.ID = ledger.PaymentID(id)
		p.ShareID = ledger.ShareID(share)
		p.MemberID = ledger.MemberID(member)
		p.Amount = ledger.MustDecimal(amount)
		p.Status = ledger.PaymentStatus(status)
		p.PaidAt = parseTimeText(paidAt)
		p.CreatedAt = parseTimeText(createdAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// PaidAmount sums Completed payments in Go. SQLite SUM() over the TEXT
// amounts would go through float.
func (s queries) PaidAmount(ctx context.Context, shareID ledger.ShareID) (decimal.Decimal, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT amount FROM payments WHERE share_id = ? AND status = ?`,
		string(shareID), string(ledger.PaymentCompleted))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(ledger.MustDecimal(amount))
	}
	return total, rows.Err()
}

func (s queries) ReparentPayments(ctx context.Context, from []ledger.ShareID, to ledger.ShareID) error {
	return s.reparent(ctx, "payments", from, to)
}

// =============================================================================
// DIVIDEND STORE
// =============================================================================

func (s queries) CreateDividend(ctx context.Context, d ledger.Dividend) error {
	query := `
		INSERT INTO dividends (id, share_id, member_id, year, amount, declared_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(d.ID), string(d.ShareID), string(d.MemberID),
		d.Year, d.Amount.String(), timeText(d.DeclaredAt), timeText(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert dividend: %w", err)
	}
	return nil
}

func (s queries) ListDividendsByShare(ctx context.Context, shareID ledger.ShareID) ([]ledger.Dividend, error) {
	query := `
		SELECT id, share_id, member_id, year, amount, declared_at, created_at
		FROM dividends
		WHERE share_id = ?
		ORDER BY year ASC, declared_at ASC
	`
	rows, err := s.q.QueryContext(ctx, query, string(shareID))
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	var dividends []ledger.Dividend
	for rows.Next() {
		var (
			d                     ledger.Dividend
			id, share, member     string
			amount                string
			declaredAt, createdAt string
		)
		if err := rows.Scan(&id, &share, &member, &d.Year, &amount,
			&declaredAt, &createdAt); err != nil {
			return nil, err
		}
		d.ID = ledger.DividendID(id)
		d.ShareID = ledger.ShareID(share)
		d.MemberID = ledger.MemberID(member)
		d.Amount = ledger.MustDecimal(amount)
		d.DeclaredAt = parseTimeText(declaredAt)
		d.CreatedAt = parseTimeText(createdAt)
		dividends = append(dividends, d)
	}
	return dividends, rows.Err()
}

func (s queries) ReparentDividends(ctx context.Context, from []ledger.ShareID, to ledger.ShareID) error {
	return s.reparent(ctx, "dividends", from, to)
}

// reparent repoints the share_id column of every row on the from
// certificates to the to certificate.
func (s queries) reparent(ctx context.Context, table string, from []ledger.ShareID, to ledger.ShareID) error {
	if len(from) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := make([]any, 0, len(from)+1)
	args = append(args, string(to))
	for _, id := range from {
		args = append(args, string(id))
	}
	query := `UPDATE ` + table + ` SET share_id = ? WHERE share_id IN (` + placeholders + `)`
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to reparent %s: %w", table, err)
	}
	return nil
}

// =============================================================================
// AUDIT STORE
// =============================================================================

func (s queries) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	changesJSON := ""
	if len(e.Changes) > 0 {
		raw, err := json.Marshal(e.Changes)
		if err != nil {
			return fmt.Errorf("failed to encode audit changes: %w", err)
		}
		changesJSON = string(raw)
	}

	query := `
		INSERT INTO audit_entries
		(id, user_name, action, entity_type, entity_id, entity_description,
		 permission, changes_json, timestamp, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		e.ID, e.UserName, string(e.Action), e.EntityType, e.EntityID,
		e.EntityDescription, e.Permission, changesJSON,
		timeText(e.Timestamp), e.IPAddress, e.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s queries) ListAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	query := `
		SELECT id, user_name, action, entity_type, entity_id, entity_description,
		       permission, changes_json, timestamp, ip_address, user_agent
		FROM audit_entries
	`
	var conditions []string
	var args []any
	if f.EntityType != "" {
		conditions = append(conditions, `entity_type = ?`)
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		conditions = append(conditions, `entity_id = ?`)
		args = append(args, f.EntityID)
	}
	if f.UserName != "" {
		conditions = append(conditions, `user_name = ?`)
		args = append(args, f.UserName)
	}
	if len(f.Actions) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Actions)), ", ")
		conditions = append(conditions, `action IN (`+placeholders+`)`)
		for _, action := range f.Actions {
			args = append(args, string(action))
		}
	}
	if f.From != nil {
		conditions = append(conditions, `timestamp >= ?`)
		args = append(args, timeText(*f.From))
	}
	if f.To != nil {
		conditions = append(conditions, `timestamp <= ?`)
		args = append(args, timeText(*f.To))
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY timestamp DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			e           ledger.AuditEntry
			action      string
			changesJSON string
			timestamp   string
		)
		if err := rows.Scan(&e.ID, &e.UserName, &action, &e.EntityType, &e.EntityID,
			&e.EntityDescription, &e.Permission, &changesJSON, &timestamp,
			&e.IPAddress, &e.UserAgent); err != nil {
			return nil, err
		}
		e.Action = ledger.AuditAction(action)
		e.Timestamp = parseTimeText(timestamp)
		if changesJSON != "" {
			if err := json.Unmarshal([]byte(changesJSON), &e.Changes); err != nil {
				return nil, fmt.Errorf("failed to decode audit changes: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s queries) stringColumn(ctx context.Context, query string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

// requireRow returns missing when the statement matched no rows.
func requireRow(result sql.Result, missing error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return missing
	}
	return nil
}

func duplicateError(what, value string) error {
	return fmt.Errorf("%w: duplicate %s %q", ledger.ErrConflict, what, value)
}

func timeText(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeText(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func timePtrText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeText(*t)
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTimeText(ns.String)
	return &t
}

func shareIDPtrText(id *ledger.ShareID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
