package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the audit trail service.
type Metrics struct {
	EntriesAppended       prometheus.Counter
	AppendDuration        prometheus.Histogram
	ChainVerifications    prometheus.Counter
	ChainBreaksDetected   prometheus.Counter
	AlertsEvaluated       prometheus.Counter
	AlertMatches          prometheus.Counter
	AlertEvaluationErrors prometheus.Counter
	AlertQueueDrops       prometheus.Counter
	IncidentsRaised       prometheus.Counter
	CheckpointsCreated    prometheus.Counter
	CheckpointsVerified   prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		EntriesAppended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_audit_entries_appended_total",
			Help: "Total number of audit entries appended across all tenants",
		}),
		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veritrail_audit_append_duration_seconds",
			Help:    "Duration of the append critical section including persistence",
			Buckets: prometheus.DefBuckets,
		}),
		ChainVerifications: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_chain_verifications_total",
			Help: "Total number of chain verification runs",
		}),
		ChainBreaksDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_chain_breaks_detected_total",
			Help: "Total number of verification runs that found a broken chain",
		}),
		AlertsEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_alert_entries_evaluated_total",
			Help: "Total number of entries submitted to the alert rule engine",
		}),
		AlertMatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_alert_rule_matches_total",
			Help: "Total number of rule matches across all tenants",
		}),
		AlertEvaluationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_alert_evaluation_errors_total",
			Help: "Total number of per-rule evaluation failures (non-fatal)",
		}),
		AlertQueueDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_alert_queue_drops_total",
			Help: "Total number of entries dropped because the evaluation queue was full",
		}),
		IncidentsRaised: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_incidents_raised_total",
			Help: "Total number of incidents created by rule matches",
		}),
		CheckpointsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_checkpoints_created_total",
			Help: "Total number of compliance checkpoints created",
		}),
		CheckpointsVerified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_checkpoints_verified_total",
			Help: "Total number of compliance checkpoints verified",
		}),
	}
}
