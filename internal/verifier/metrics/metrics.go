package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for verification runs.
type Metrics struct {
	// Per-step latency by step code and outcome
	StepDuration *prometheus.HistogramVec

	// Final verdicts by status and proof type
	Verdicts *prometheus.CounterVec

	// Documents rejected before any step ran
	Rejected *prometheus.CounterVec

	// End-to-end run latency
	VerifyLatency prometheus.Histogram
}

// New registers the verifier metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certverify_step_duration_seconds",
			Help:    "Duration of tracked verification steps",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"step", "status"}),

		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certverify_verdicts_total",
			Help: "Final verification verdicts by status and proof type",
		}, []string{"status", "proof_type"}),

		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certverify_rejected_documents_total",
			Help: "Documents rejected before verification by reason",
		}, []string{"reason"}), // reason: "unsupported_proof_type", "malformed_document"

		VerifyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certverify_verify_duration_seconds",
			Help:    "Duration of a full verification run including network lookups",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// ObserveStep records the duration and outcome of a tracked step.
func (m *Metrics) ObserveStep(step, status string, d time.Duration) {
	if m != nil {
		m.StepDuration.WithLabelValues(step, status).Observe(d.Seconds())
	}
}

// IncrementVerdict records a final verdict.
func (m *Metrics) IncrementVerdict(status, proofType string) {
	if m != nil {
		m.Verdicts.WithLabelValues(status, proofType).Inc()
	}
}

// IncrementRejected records a document rejected before any step ran.
func (m *Metrics) IncrementRejected(reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}

// ObserveVerifyLatency records the total run duration.
func (m *Metrics) ObserveVerifyLatency(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}
