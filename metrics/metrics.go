package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/coopware/share-engine/ledger"
)

// Outcome labels recorded on the operations counter.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics provides observability for the share ledger engine. Tracks
// operation counts and durations, certificate-number races, dropped audit
// entries, and offboarding sweep activity.
//
// All methods tolerate a nil receiver, so tests can wire services without
// a registry.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	NumberConflicts   *prometheus.CounterVec
	AuditDropped      prometheus.Counter
	SweepRuns         prometheus.Counter
	SweepTerminations prometheus.Counter
}

// New creates a Metrics instance with all engine metrics registered on the
// default registry. Call once per process.
func New() *Metrics {
	return &Metrics{
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "coop_ledger_operations_total",
			Help: "Total ledger operations by operation name and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coop_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		NumberConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "coop_ledger_number_conflicts_total",
			Help: "Certificate/member number races lost and retried, by operation",
		}, []string{"operation"}),
		AuditDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coop_ledger_audit_entries_dropped_total",
			Help: "Audit entries that could not be persisted",
		}),
		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coop_ledger_offboarding_sweep_runs_total",
			Help: "Offboarding sweep executions",
		}),
		SweepTerminations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coop_ledger_offboarding_sweep_terminations_total",
			Help: "Memberships terminated by the offboarding sweep",
		}),
	}
}

// ObserveOperation records one finished operation: its duration plus an
// outcome derived from err (ok; rejected when the caller's request was at
// fault; error otherwise). Call with time.Now() captured at the start.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err == nil:
	case ledger.IsClientError(err):
		outcome = OutcomeRejected
	default:
		outcome = OutcomeError
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// IncrementNumberConflict records one lost number race during the given
// operation. Wired into the conflict-retry hook.
func (m *Metrics) IncrementNumberConflict(operation string) {
	if m == nil {
		return
	}
	m.NumberConflicts.WithLabelValues(operation).Inc()
}

// IncrementAuditDropped records an audit entry lost to a persistence
// failure.
func (m *Metrics) IncrementAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}

// IncrementSweepRun records one offboarding sweep execution.
func (m *Metrics) IncrementSweepRun() {
	if m == nil {
		return
	}
	m.SweepRuns.Inc()
}

// AddSweepTerminations records memberships terminated by one sweep run.
func (m *Metrics) AddSweepTerminations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweepTerminations.Add(float64(n))
}
