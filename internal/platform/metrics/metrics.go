package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the audit service.
type Metrics struct {
	EventsRecorded   prometheus.Counter
	Violations       *prometheus.CounterVec
	AppendRetries    prometheus.Counter
	RecordFailures   prometheus.Counter
	RuleEvalDuration prometheus.Histogram

	AlertsEnqueued   prometheus.Counter
	AlertsDelivered  prometheus.Counter
	AlertsDropped    prometheus.Counter
	AlertsSuppressed prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers metrics on a specific registerer so tests can isolate
// registries.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "phiguard_audit_events_recorded_total",
			Help: "Total number of audit events durably recorded",
		}),
		Violations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phiguard_violations_detected_total",
			Help: "Total number of violations detected, by severity",
		}, []string{"severity"}),
		AppendRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "phiguard_audit_append_retries_total",
			Help: "Total number of event store append retries",
		}),
		RecordFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "phiguard_audit_record_failures_total",
			Help: "Total number of audit events terminally failed to persist",
		}),
		RuleEvalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "phiguard_rule_evaluation_duration_seconds",
			Help:    "Wall time spent evaluating violation rules per event",
			Buckets: prometheus.DefBuckets,
		}),
		AlertsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "phiguard_alerts_enqueued_total",
			Help: "Total number of violation alerts enqueued for delivery",
		}),
		AlertsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "phiguard_alerts_delivered_total",
			Help: "Total number of violation alerts delivered to a sink",
		}),
		AlertsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "phiguard_alerts_dropped_total",
			Help: "Total number of violation alerts dropped after exhausting retries or on a full queue",
		}),
		AlertsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "phiguard_alerts_suppressed_total",
			Help: "Total number of violation alerts suppressed by the dedupe window",
		}),
	}
}

// ObserveRuleEval records one rule engine pass.
func (m *Metrics) ObserveRuleEval(d time.Duration) {
	if m == nil {
		return
	}
	m.RuleEvalDuration.Observe(d.Seconds())
}

// IncViolation counts one detected violation.
func (m *Metrics) IncViolation(severity string) {
	if m == nil {
		return
	}
	m.Violations.WithLabelValues(severity).Inc()
}
