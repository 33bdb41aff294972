// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edge-lab/internal/domain"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Generation metrics
	CandidatesGenerated *prometheus.CounterVec

	// Validation metrics
	CandidatesValidated *prometheus.CounterVec
	GateFailures        *prometheus.CounterVec
	ValidationDuration  prometheus.Histogram

	// Promotion metrics
	EdgesApproved *prometheus.CounterVec

	// Storage metrics
	StorageErrors *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "edge_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CandidatesGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "candidates_total",
			Help:      "Total number of generated candidates by outcome",
		}, []string{"outcome"}),

		CandidatesValidated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "candidates_total",
			Help:      "Total number of candidates processed by validation, by status",
		}, []string{"status"}),
		GateFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "gate_failures_total",
			Help:      "Total number of failed validation gates by gate",
		}, []string{"gate"}),
		ValidationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "candidate_duration_seconds",
			Help:      "Per-candidate validation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),

		EdgesApproved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manifest",
			Name:      "approvals_total",
			Help:      "Total number of approved edges by confidence tier",
		}, []string{"tier"}),

		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total number of storage failures by operation",
		}, []string{"operation"}),
	}
}

// CandidateGenerated counts one generated candidate.
func (m *Metrics) CandidateGenerated(accepted bool) {
	outcome := "duplicate"
	if accepted {
		outcome = "accepted"
	}
	m.CandidatesGenerated.WithLabelValues(outcome).Inc()
}

// CandidateValidated records one validated candidate.
func (m *Metrics) CandidateValidated(status string, failedGates []string, seconds float64) {
	m.CandidatesValidated.WithLabelValues(status).Inc()
	for _, g := range failedGates {
		m.GateFailures.WithLabelValues(g).Inc()
	}
	m.ValidationDuration.Observe(seconds)
}

// EdgeApproved counts one approval.
func (m *Metrics) EdgeApproved(tier domain.ConfidenceTier) {
	m.EdgesApproved.WithLabelValues(string(tier)).Inc()
}

// StorageError counts one storage failure.
func (m *Metrics) StorageError(op string) {
	m.StorageErrors.WithLabelValues(op).Inc()
}

// HandlerFor returns an HTTP handler serving the metrics of g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
