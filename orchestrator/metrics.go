package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for document issuance.
type Metrics struct {
	// Issue outcomes by document type; outcome is "success" or the failed stage
	Issuances *prometheus.CounterVec

	// Issue duration by document type
	IssueDuration *prometheus.HistogramVec

	// Issue calls currently running
	InFlight prometheus.Gauge

	// Batch sizes
	BatchItems prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Issuances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rehabdocs_orchestrator_issuances_total",
			Help: "Document issuances by document type and outcome",
		}, []string{"document_type", "outcome"}),
		IssueDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rehabdocs_orchestrator_issue_duration_seconds",
			Help:    "Duration of a single document issuance",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"document_type"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "rehabdocs_orchestrator_in_flight",
			Help: "Issuances currently in progress",
		}),
		BatchItems: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rehabdocs_orchestrator_batch_items",
			Help:    "Documents attempted per batch",
			Buckets: prometheus.LinearBuckets(0, 2, 10),
		}),
	}
}

func (m *Metrics) ObserveIssue(documentType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Issuances.WithLabelValues(documentType, outcome).Inc()
	m.IssueDuration.WithLabelValues(documentType).Observe(d.Seconds())
}

func (m *Metrics) trackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

func (m *Metrics) ObserveBatch(n int) {
	if m != nil {
		m.BatchItems.Observe(float64(n))
	}
}
