/*
audit.go - Audit trail types

PURPOSE:
  Defines the append-only audit record and its strongly typed change
  payload. Every mutating operation in the engine emits one or more of
  these; they are the system's only emitted events.

APPEND-ONLY CONTRACT:
  Audit entries are never mutated or deleted. Stores expose Append and
  Query, nothing else.

CHANGES PAYLOAD:
  Changes is a typed field -> (from, to) map rather than a free-form
  blob. Stores serialize it to JSON at the boundary; the domain only ever
  sees the typed form.

SEE ALSO:
  - audit/recorder.go: Best-effort recorder consuming these types
  - store.go: AuditStore interface
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// AUDIT ACTIONS
// =============================================================================

type AuditAction string

const (
	AuditCreate   AuditAction = "create"
	AuditUpdate   AuditAction = "update"
	AuditDelete   AuditAction = "delete"
	AuditApprove  AuditAction = "approve"
	AuditReject   AuditAction = "reject"
	AuditTransfer AuditAction = "transfer"
	AuditLock     AuditAction = "lock"
)

// Entity type labels recorded on audit entries.
const (
	EntityMember   = "member"
	EntityShare    = "share"
	EntityApproval = "approval"
	EntityTransfer = "transfer"
	EntityPayment  = "payment"
	EntityDividend = "dividend"
)

// =============================================================================
// CHANGE SET - Typed before/after values
// =============================================================================

// FieldChange is one field's before/after pair.
type FieldChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ChangeSet maps field names to their before/after values. Human-diffable
// once serialized; strongly typed until then.
type ChangeSet map[string]FieldChange

// Change appends a field change and returns the set, so call sites can
// chain without nil checks.
func (c ChangeSet) Change(field, from, to string) ChangeSet {
	if c == nil {
		c = ChangeSet{}
	}
	c[field] = FieldChange{From: from, To: to}
	return c
}

// =============================================================================
// AUDIT ENTRY
// =============================================================================

// NewAuditEntryID returns a fresh audit entry id.
func NewAuditEntryID() string { return uuid.NewString() }

// AuditEntry is one immutable audit record. Written best-effort: a failed
// append never rolls back or fails the business operation that produced it.
type AuditEntry struct {
	ID                string
	UserName          string // acting user, "System" when unauthenticated
	Action            AuditAction
	EntityType        string
	EntityID          string
	EntityDescription string
	Permission        string // permission the caller exercised, informational only
	Changes           ChangeSet
	Timestamp         time.Time
	IPAddress         string
	UserAgent         string
}

// AuditFilter narrows audit queries. Nil/zero fields match everything.
type AuditFilter struct {
	EntityType string
	EntityID   string
	UserName   string
	Actions    []AuditAction
	From       *time.Time
	To         *time.Time
	Limit      int
}
