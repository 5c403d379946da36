package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the engine exposes. All record methods
// are nil-safe so components can run without metrics wired.
//
// Metrics:
//   - atlasbridge_decisions_total: decisions by rule and action type
//   - atlasbridge_evaluation_duration_seconds: policy evaluation latency
//   - atlasbridge_trace_appends_total: decisions appended to the trace
//   - atlasbridge_trace_chain_valid: last integrity verification result
//   - atlasbridge_approvals_pending: approvals currently held open
//   - atlasbridge_approvals_resolved_total: approvals by terminal outcome
type Metrics struct {
	registry *prometheus.Registry

	decisionsTotal     *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	traceAppendsTotal  prometheus.Counter
	traceChainValid    prometheus.Gauge
	approvalsPending   prometheus.Gauge
	approvalsResolved  *prometheus.CounterVec
}

const namespace = "atlasbridge"

// New creates and registers all collectors on a fresh registry, including
// the standard Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Total number of policy decisions",
			},
			[]string{"rule_id", "action_type"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of policy evaluation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 18), // 1µs to ~130ms
			},
			[]string{"action_type"},
		),

		traceAppendsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trace_appends_total",
				Help:      "Total number of decisions appended to the trace",
			},
		),

		traceChainValid: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "trace_chain_valid",
				Help:      "Result of the last hash-chain verification (1 valid, 0 invalid)",
			},
		),

		approvalsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "approvals_pending",
				Help:      "Number of approval requests currently held open",
			},
		),

		approvalsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approvals_resolved_total",
				Help:      "Total number of approval requests by terminal outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decisionsTotal,
		m.evaluationDuration,
		m.traceAppendsTotal,
		m.traceChainValid,
		m.approvalsPending,
		m.approvalsResolved,
	)

	return m
}

// RecordDecision records one policy decision. ruleID is empty on the
// default path and reported as "none".
func (m *Metrics) RecordDecision(ruleID, actionType string, duration time.Duration) {
	if m == nil {
		return
	}
	if ruleID == "" {
		ruleID = "none"
	}
	m.decisionsTotal.WithLabelValues(ruleID, actionType).Inc()
	m.evaluationDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}

// RecordTraceAppend records one trace append.
func (m *Metrics) RecordTraceAppend() {
	if m == nil {
		return
	}
	m.traceAppendsTotal.Inc()
}

// RecordChainValid records the outcome of an integrity verification.
func (m *Metrics) RecordChainValid(valid bool) {
	if m == nil {
		return
	}
	if valid {
		m.traceChainValid.Set(1)
	} else {
		m.traceChainValid.Set(0)
	}
}

// ApprovalOpened records a newly held approval request.
func (m *Metrics) ApprovalOpened() {
	if m == nil {
		return
	}
	m.approvalsPending.Inc()
}

// ApprovalResolved records a terminal approval outcome ("allowed",
// "denied", or "timeout").
func (m *Metrics) ApprovalResolved(outcome string) {
	if m == nil {
		return
	}
	m.approvalsPending.Dec()
	m.approvalsResolved.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
