/*
Package audit provides best-effort persistence of ledger audit entries.

PURPOSE:
  Business operations describe what happened (who, what, before/after);
  the Recorder writes those descriptions down. Recording is strictly
  non-fatal: a failed append is logged and counted, never propagated, so
  an audit outage can never fail or roll back a share operation.

ORDERING:
  Services collect entries while an operation runs and hand them to the
  Recorder only after the transaction commits. Entries therefore describe
  only state that actually exists.

SEE ALSO:
  - ledger/audit.go: Entry and change-set types
  - ledger/store.go: AuditStore interface
*/
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/coopware/share-engine/ledger"
	"github.com/coopware/share-engine/metrics"
)

// Recorder persists audit entries best-effort.
type Recorder struct {
	store   ledger.AuditStore
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRecorder creates a recorder writing to the given store. metrics may
// be nil.
func NewRecorder(store ledger.AuditStore, log zerolog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		store:   store,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// NewEntry builds an audit entry stamped with the actor's identity.
// Changes start empty; chain entry.Changes.Change(...) to fill them.
func NewEntry(actor ledger.Actor, action ledger.AuditAction, entityType, entityID, description string) ledger.AuditEntry {
	return ledger.AuditEntry{
		UserName:          actor.UserName(),
		Action:            action,
		EntityType:        entityType,
		EntityID:          entityID,
		EntityDescription: description,
		IPAddress:         actor.IPAddress,
		UserAgent:         actor.UserAgent,
	}
}

// Record appends one entry, filling in identity defaults, a fresh ID and
// the current timestamp where missing. Persistence failures are logged
// and counted; Record never returns an error.
func (r *Recorder) Record(ctx context.Context, entry ledger.AuditEntry) {
	if r == nil || r.store == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = ledger.NewAuditEntryID()
	}
	if entry.UserName == "" {
		entry.UserName = ledger.SystemActorName
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now()
	}

	if err := r.store.AppendAudit(ctx, entry); err != nil {
		r.metrics.IncrementAuditDropped()
		r.log.Warn().Err(err).
			Str("action", string(entry.Action)).
			Str("entity_type", entry.EntityType).
			Str("entity_id", entry.EntityID).
			Msg("audit: failed to append entry (non-fatal)")
		return
	}

	r.log.Debug().
		Str("user", entry.UserName).
		Str("action", string(entry.Action)).
		Str("entity_type", entry.EntityType).
		Str("entity_id", entry.EntityID).
		Msg("audit: entry recorded")
}

// RecordAll appends entries in order. Failures are independent: one entry
// failing never stops the rest.
func (r *Recorder) RecordAll(ctx context.Context, entries []ledger.AuditEntry) {
	for _, e := range entries {
		r.Record(ctx, e)
	}
}
