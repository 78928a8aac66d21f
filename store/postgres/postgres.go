/*
Package postgres provides a PostgreSQL-backed implementation of the
storage interfaces.

PURPOSE:
  Implements ledger.TxStore on lib/pq for multi-instance deployments.
  Same schema shape and semantics as the SQLite store; the differences
  are the ones PostgreSQL earns:
  - NUMERIC columns with exact SQL arithmetic (SUM stays decimal)
  - Native TIMESTAMPTZ and BOOLEAN columns
  - Unique violations detected by SQLSTATE 23505, not message text
  - Reset via TRUNCATE

  Number allocation works exactly as in SQLite: optimistic scans backed
  by unique indexes, losers retried by the conflict loop. At READ
  COMMITTED two racing allocators can both pass the scan; the second
  INSERT fails on the index and the transaction is retried.

SEE ALSO:
  - store/sqlite: Embedded twin of this store
  - ledger/retry.go: The retry loop on top of IsUniqueViolation
*/
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/coopware/share-engine/ledger"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique-constraint
// failures.
const uniqueViolation = "23505"

// Store implements ledger.TxStore using PostgreSQL.
type Store struct {
	db *sql.DB
	queries
}

// New connects to the database at dsn, verifies the connection and
// migrates the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &Store{db: db, queries: queries{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		member_number TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL,
		offboarding_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_members_number
		ON members(member_number);
	CREATE INDEX IF NOT EXISTS idx_members_status
		ON members(status);

	CREATE TABLE IF NOT EXISTS shares (
		id TEXT PRIMARY KEY,
		certificate_number TEXT NOT NULL,
		member_id TEXT NOT NULL REFERENCES members(id),
		quantity INTEGER NOT NULL,
		nominal_value NUMERIC NOT NULL,
		value NUMERIC NOT NULL,
		status TEXT NOT NULL,
		issue_date TIMESTAMPTZ NOT NULL,
		scheduled_for_cancellation BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_shares_certificate
		ON shares(certificate_number);
	CREATE INDEX IF NOT EXISTS idx_shares_member
		ON shares(member_id, issue_date);
	CREATE INDEX IF NOT EXISTS idx_shares_member_status
		ON shares(member_id, status);

	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		requested_quantity INTEGER NOT NULL,
		total_value NUMERIC NOT NULL,
		status TEXT NOT NULL,
		requested_at TIMESTAMPTZ NOT NULL,
		decided_by TEXT NOT NULL DEFAULT '',
		decided_at TIMESTAMPTZ,
		rejection_reason TEXT NOT NULL DEFAULT '',
		completed_at TIMESTAMPTZ,
		issued_share_id TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_member_status
		ON approvals(member_id, status);

	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		from_member_id TEXT NOT NULL REFERENCES members(id),
		to_member_id TEXT NOT NULL REFERENCES members(id),
		share_id TEXT NOT NULL REFERENCES shares(id),
		quantity INTEGER NOT NULL,
		total_value NUMERIC NOT NULL,
		status TEXT NOT NULL,
		requested_at TIMESTAMPTZ NOT NULL,
		decided_by TEXT NOT NULL DEFAULT '',
		decided_at TIMESTAMPTZ,
		rejection_reason TEXT NOT NULL DEFAULT '',
		completed_at TIMESTAMPTZ,
		new_share_id TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_from
		ON transfers(from_member_id);
	CREATE INDEX IF NOT EXISTS idx_transfers_to
		ON transfers(to_member_id);
	CREATE INDEX IF NOT EXISTS idx_transfers_share_status
		ON transfers(share_id, status);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		share_id TEXT NOT NULL REFERENCES shares(id),
		member_id TEXT NOT NULL REFERENCES members(id),
		amount NUMERIC NOT NULL,
		status TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL DEFAULT '',
		paid_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_share
		ON payments(share_id);

	CREATE TABLE IF NOT EXISTS dividends (
		id TEXT PRIMARY KEY,
		share_id TEXT NOT NULL REFERENCES shares(id),
		member_id TEXT NOT NULL REFERENCES members(id),
		year INTEGER NOT NULL,
		amount NUMERIC NOT NULL,
		declared_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dividends_share
		ON dividends(share_id);

	CREATE TABLE IF NOT EXISTS audit_entries (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		user_name TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		entity_description TEXT NOT NULL DEFAULT '',
		permission TEXT NOT NULL DEFAULT '',
		changes JSONB,
		timestamp TIMESTAMPTZ NOT NULL,
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

// WithTx executes fn within one database transaction.
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

// IsUniqueViolation reports whether err is PostgreSQL refusing a
// duplicate unique-indexed value.
func (s *Store) IsUniqueViolation(err error) bool {
	return ledger.IsConflict(err) || isUniqueViolation(err)
}

// Reset clears all data. Integration tests and scenario reloads only.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`TRUNCATE TABLE audit_entries, payments, dividends, transfers, approvals, shares, members`)
	return err
}

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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(m.ID), m.MemberNumber, m.Name, m.Email, string(m.Status),
		m.JoinedAt.UTC(), nullTime(m.OffboardingAt),
		m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicateError("member number", m.MemberNumber)
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func (s queries) GetMember(ctx context.Context, id ledger.MemberID) (*ledger.Member, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, string(id))
	member, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityMember, ID: string(id)}
	}
	return member, err
}

func (s queries) GetMemberByNumber(ctx context.Context, number string) (*ledger.Member, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE member_number = $1`, number)
	member, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityMember, ID: number}
	}
	return member, err
}

func (s queries) UpdateMember(ctx context.Context, m ledger.Member) error {
	query := `
		UPDATE members
		SET member_number = $1, name = $2, email = $3, status = $4,
		    joined_at = $5, offboarding_at = $6, updated_at = $7
		WHERE id = $8
	`
	result, err := s.q.ExecContext(ctx, query,
		m.MemberNumber, m.Name, m.Email, string(m.Status),
		m.JoinedAt.UTC(), nullTime(m.OffboardingAt), m.UpdatedAt.UTC(),
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
		query += ` WHERE status = $1`
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
		offboardingAt sql.NullTime
	)
	err := row.Scan(&id, &m.MemberNumber, &m.Name, &m.Email, &status,
		&m.JoinedAt, &offboardingAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.ID = ledger.MemberID(id)
	m.Status = ledger.MemberStatus(status)
	if offboardingAt.Valid {
		t := offboardingAt.Time
		m.OffboardingAt = &t
	}
	return &m, nil
}

// =============================================================================
// SHARE STORE
// =============================================================================

const shareColumns = `id, certificate_number, member_id, quantity, nominal_value, value, status, issue_date, scheduled_for_cancellation, notes, created_at, updated_at`

func (s queries) CreateShare(ctx context.Context, share ledger.Share) error {
	query := `
		INSERT INTO shares (` + shareColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(share.ID), share.CertificateNumber, string(share.MemberID),
		share.Quantity, share.NominalValue, share.Value,
		string(share.Status), share.IssueDate.UTC(),
		share.ScheduledForCancellation, share.Notes,
		share.CreatedAt.UTC(), share.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return duplicateError("certificate number", share.CertificateNumber)
		}
		return fmt.Errorf("failed to insert share: %w", err)
	}
	return nil
}

func (s queries) GetShare(ctx context.Context, id ledger.ShareID) (*ledger.Share, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE id = $1`, string(id))
	share, err := scanShare(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityShare, ID: string(id)}
	}
	return share, err
}

func (s queries) UpdateShare(ctx context.Context, share ledger.Share) error {
	query := `
		UPDATE shares
		SET certificate_number = $1, member_id = $2, quantity = $3,
		    nominal_value = $4, value = $5, status = $6, issue_date = $7,
		    scheduled_for_cancellation = $8, notes = $9, updated_at = $10
		WHERE id = $11
	`
	result, err := s.q.ExecContext(ctx, query,
		share.CertificateNumber, string(share.MemberID), share.Quantity,
		share.NominalValue, share.Value, string(share.Status),
		share.IssueDate.UTC(), share.ScheduledForCancellation,
		share.Notes, share.UpdatedAt.UTC(),
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
		WHERE member_id = $1
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
		`SELECT COALESCE(SUM(quantity), 0) FROM shares WHERE member_id = $1 AND status = $2`,
		string(memberID), string(ledger.ShareActive),
	).Scan(&quantity)
	return quantity, err
}

func scanShare(row scanner) (*ledger.Share, error) {
	var (
		share                ledger.Share
		id, memberID, status string
	)
	err := row.Scan(&id, &share.CertificateNumber, &memberID, &share.Quantity,
		&share.NominalValue, &share.Value, &status, &share.IssueDate,
		&share.ScheduledForCancellation, &share.Notes,
		&share.CreatedAt, &share.UpdatedAt)
	if err != nil {
		return nil, err
	}
	share.ID = ledger.ShareID(id)
	share.MemberID = ledger.MemberID(memberID)
	share.Status = ledger.ShareStatus(status)
	return &share, nil
}

// =============================================================================
// APPROVAL STORE
// =============================================================================

const approvalColumns = `id, member_id, requested_quantity, total_value, status, requested_at, decided_by, decided_at, rejection_reason, completed_at, issued_share_id, created_at, updated_at`

func (s queries) CreateApproval(ctx context.Context, a ledger.Approval) error {
	query := `
		INSERT INTO approvals (` + approvalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(a.ID), string(a.MemberID), a.RequestedQuantity,
		a.TotalValue, string(a.Status), a.RequestedAt.UTC(),
		a.DecidedBy, nullTime(a.DecidedAt), a.RejectionReason,
		nullTime(a.CompletedAt), shareIDNull(a.IssuedShareID),
		a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", err)
	}
	return nil
}

func (s queries) GetApproval(ctx context.Context, id ledger.ApprovalID) (*ledger.Approval, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, string(id))
	approval, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityApproval, ID: string(id)}
	}
	return approval, err
}

func (s queries) UpdateApproval(ctx context.Context, a ledger.Approval) error {
	query := `
		UPDATE approvals
		SET status = $1, decided_by = $2, decided_at = $3, rejection_reason = $4,
		    completed_at = $5, issued_share_id = $6, updated_at = $7
		WHERE id = $8
	`
	result, err := s.q.ExecContext(ctx, query,
		string(a.Status), a.DecidedBy, nullTime(a.DecidedAt), a.RejectionReason,
		nullTime(a.CompletedAt), shareIDNull(a.IssuedShareID), a.UpdatedAt.UTC(),
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
		args = append(args, string(f.MemberID))
		conditions = append(conditions, fmt.Sprintf(`member_id = $%d`, len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conditions = append(conditions, fmt.Sprintf(`status = $%d`, len(args)))
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
		`SELECT COUNT(*) FROM approvals WHERE member_id = $1 AND status = $2 AND id != $3`,
		string(memberID), string(ledger.ApprovalPending), string(excludeID),
	).Scan(&count)
	return count > 0, err
}

func scanApproval(row scanner) (*ledger.Approval, error) {
	var (
		a                      ledger.Approval
		id, memberID, status   string
		decidedAt, completedAt sql.NullTime
		issuedShareID          sql.NullString
	)
	err := row.Scan(&id, &memberID, &a.RequestedQuantity, &a.TotalValue, &status,
		&a.RequestedAt, &a.DecidedBy, &decidedAt, &a.RejectionReason,
		&completedAt, &issuedShareID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ID = ledger.ApprovalID(id)
	a.MemberID = ledger.MemberID(memberID)
	a.Status = ledger.ApprovalStatus(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		a.DecidedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	if issuedShareID.Valid && issuedShareID.String != "" {
		shareID := ledger.ShareID(issuedShareID.String)
		a.IssuedShareID = &shareID
	}
	return &a, nil
}

// =============================================================================
// TRANSFER STORE
// =============================================================================

const transferColumns = `id, from_member_id, to_member_id, share_id, quantity, total_value, status, requested_at, decided_by, decided_at, rejection_reason, completed_at, new_share_id, created_at, updated_at`

func (s queries) CreateTransfer(ctx context.Context, t ledger.Transfer) error {
	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(t.ID), string(t.FromMemberID), string(t.ToMemberID), string(t.ShareID),
		t.Quantity, t.TotalValue, string(t.Status), t.RequestedAt.UTC(),
		t.DecidedBy, nullTime(t.DecidedAt), t.RejectionReason,
		nullTime(t.CompletedAt), shareIDNull(t.NewShareID),
		t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

func (s queries) GetTransfer(ctx context.Context, id ledger.TransferID) (*ledger.Transfer, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = $1`, string(id))
	transfer, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Entity: ledger.EntityTransfer, ID: string(id)}
	}
	return transfer, err
}

func (s queries) UpdateTransfer(ctx context.Context, t ledger.Transfer) error {
	query := `
		UPDATE transfers
		SET status = $1, decided_by = $2, decided_at = $3, rejection_reason = $4,
		    completed_at = $5, new_share_id = $6, updated_at = $7
		WHERE id = $8
	`
	result, err := s.q.ExecContext(ctx, query,
		string(t.Status), t.DecidedBy, nullTime(t.DecidedAt), t.RejectionReason,
		nullTime(t.CompletedAt), shareIDNull(t.NewShareID), t.UpdatedAt.UTC(),
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
		args = append(args, string(f.MemberID))
		conditions = append(conditions, fmt.Sprintf(`(from_member_id = $%d OR to_member_id = $%d)`, len(args), len(args)))
	}
	if f.ShareID != "" {
		args = append(args, string(f.ShareID))
		conditions = append(conditions, fmt.Sprintf(`share_id = $%d`, len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conditions = append(conditions, fmt.Sprintf(`status = $%d`, len(args)))
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
		`SELECT COUNT(*) FROM transfers WHERE share_id = $1 AND status = $2`,
		string(shareID), string(ledger.TransferPending),
	).Scan(&count)
	return count > 0, err
}

func scanTransfer(row scanner) (*ledger.Transfer, error) {
	var (
		t                      ledger.Transfer
		id, fromID, toID       string
		shareID, status        string
		decidedAt, completedAt sql.NullTime
		newShareID             sql.NullString
	)
	err := row.Scan(&id, &fromID, &toID, &shareID, &t.Quantity, &t.TotalValue,
		&status, &t.RequestedAt, &t.DecidedBy, &decidedAt, &t.RejectionReason,
		&completedAt, &newShareID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ID = ledger.TransferID(id)
	t.FromMemberID = ledger.MemberID(fromID)
	t.ToMemberID = ledger.MemberID(toID)
	t.ShareID = ledger.ShareID(shareID)
	t.Status = ledger.TransferStatus(status)
	if decidedAt.Valid {
		ts := decidedAt.Time
		t.DecidedAt = &ts
	}
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	if newShareID.Valid && newShareID.String != "" {
		share := ledger.ShareID(newShareID.String)
		t.NewShareID = &share
	}
	return &t, nil
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (s queries) CreatePayment(ctx context.Context, p ledger.Payment) error {
	query := `
		INSERT INTO payments (id, share_id, member_id, amount, status, method, reference, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(p.ID), string(p.ShareID), string(p.MemberID),
		p.Amount, string(p.Status), p.Method, p.Reference,
		p.PaidAt.UTC(), p.CreatedAt.UTC(),
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
		WHERE share_id = $1
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
			status            string
		)
		if err := rows.Scan(&id, &share, &member, &p.Amount, &status,
			&p.Method, &p.Reference, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.ID = ledger.PaymentID(id)
		p.ShareID = ledger.ShareID(share)
		p.MemberID = ledger.MemberID(member)
		p.Status = ledger.PaymentStatus(status)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// PaidAmount sums in SQL; NUMERIC arithmetic is exact in PostgreSQL.
func (s queries) PaidAmount(ctx context.Context, shareID ledger.ShareID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE share_id = $1 AND status = $2`,
		string(shareID), string(ledger.PaymentCompleted),
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments: %w", err)
	}
	return total, nil
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.q.ExecContext(ctx, query,
		string(d.ID), string(d.ShareID), string(d.MemberID),
		d.Year, d.Amount, d.DeclaredAt.UTC(), d.CreatedAt.UTC(),
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
		WHERE share_id = $1
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
			d                 ledger.Dividend
			id, share, member string
		)
		if err := rows.Scan(&id, &share, &member, &d.Year, &d.Amount,
			&d.DeclaredAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.ID = ledger.DividendID(id)
		d.ShareID = ledger.ShareID(share)
		d.MemberID = ledger.MemberID(member)
		dividends = append(dividends, d)
	}
	return dividends, rows.Err()
}

func (s queries) ReparentDividends(ctx context.Context, from []ledger.ShareID, to ledger.ShareID) error {
	return s.reparent(ctx, "dividends", from, to)
}

func (s queries) reparent(ctx context.Context, table string, from []ledger.ShareID, to ledger.ShareID) error {
	if len(from) == 0 {
		return nil
	}
	ids := make([]string, len(from))
	for i, id := range from {
		ids[i] = string(id)
	}
	query := `UPDATE ` + table + ` SET share_id = $1 WHERE share_id = ANY($2)`
	if _, err := s.q.ExecContext(ctx, query, string(to), pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to reparent %s: %w", table, err)
	}
	return nil
}

// =============================================================================
// AUDIT STORE
// =============================================================================

func (s queries) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	var changesJSON any
	if len(e.Changes) > 0 {
		raw, err := json.Marshal(e.Changes)
		if err != nil {
			return fmt.Errorf("failed to encode audit changes: %w", err)
		}
		changesJSON = raw
	}

	query := `
		INSERT INTO audit_entries
		(id, user_name, action, entity_type, entity_id, entity_description,
		 permission, changes, timestamp, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.q.ExecContext(ctx, query,
		e.ID, e.UserName, string(e.Action), e.EntityType, e.EntityID,
		e.EntityDescription, e.Permission, changesJSON,
		e.Timestamp.UTC(), e.IPAddress, e.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s queries) ListAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	query := `
		SELECT id, user_name, action, entity_type, entity_id, entity_description,
		       permission, changes, timestamp, ip_address, user_agent
		FROM audit_entries
	`
	var conditions []string
	var args []any
	if f.EntityType != "" {
		args = append(args, f.EntityType)
		conditions = append(conditions, fmt.Sprintf(`entity_type = $%d`, len(args)))
	}
	if f.EntityID != "" {
		args = append(args, f.EntityID)
		conditions = append(conditions, fmt.Sprintf(`entity_id = $%d`, len(args)))
	}
	if f.UserName != "" {
		args = append(args, f.UserName)
		conditions = append(conditions, fmt.Sprintf(`user_name = $%d`, len(args)))
	}
	if len(f.Actions) > 0 {
		actions := make([]string, len(f.Actions))
		for i, action := range f.Actions {
			actions[i] = string(action)
		}
		args = append(args, pq.Array(actions))
		conditions = append(conditions, fmt.Sprintf(`action = ANY($%d)`, len(args)))
	}
	if f.From != nil {
		args = append(args, f.From.UTC())
		conditions = append(conditions, fmt.Sprintf(`timestamp >= $%d`, len(args)))
	}
	if f.To != nil {
		args = append(args, f.To.UTC())
		conditions = append(conditions, fmt.Sprintf(`timestamp <= $%d`, len(args)))
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY timestamp DESC, seq DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
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
			changesJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.UserName, &action, &e.EntityType, &e.EntityID,
			&e.EntityDescription, &e.Permission, &changesJSON, &e.Timestamp,
			&e.IPAddress, &e.UserAgent); err != nil {
			return nil, err
		}
		e.Action = ledger.AuditAction(action)
		if len(changesJSON) > 0 {
			if err := json.Unmarshal(changesJSON, &e.Changes); err != nil {
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

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

func shareIDNull(id *ledger.ShareID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
