package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for issuance API calls.
type Metrics struct {
	// Call latency by document type and outcome
	CallLatency *prometheus.HistogramVec

	// Token endpoint fetches by result
	TokenFetches *prometheus.CounterVec
}

// NewMetrics registers the gateway metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		CallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rehabdocs_gateway_call_duration_seconds",
			Help:    "Duration of issuance API calls by document type and outcome",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"document_type", "outcome"}), // outcome: "success" or an error kind

		TokenFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rehabdocs_gateway_token_fetches_total",
			Help: "Access token endpoint requests by result",
		}, []string{"result"}),
	}
}

// ObserveCall records one Call.
func (m *Metrics) ObserveCall(documentType, outcome string, d time.Duration) {
	if m != nil {
		m.CallLatency.WithLabelValues(documentType, outcome).Observe(d.Seconds())
	}
}

// IncrementTokenFetch records a token endpoint request.
func (m *Metrics) IncrementTokenFetch(result string) {
	if m != nil {
		m.TokenFetches.WithLabelValues(result).Inc()
	}
}
