// Package metrics exposes Prometheus instrumentation for the search
// service. All methods are nil-safe so callers can run without a
// registry wired in.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors.
type Metrics struct {
	searches      *prometheus.CounterVec
	searchErrors  *prometheus.CounterVec
	searchSeconds *prometheus.HistogramVec
	indexedDocs   prometheus.Gauge
	initSeconds   prometheus.Histogram
}

// New registers the collectors on reg and returns the handle. A nil
// registerer builds unregistered collectors, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chordex",
			Name:      "searches_total",
			Help:      "Search calls served, by operation.",
		}, []string{"operation"}),
		searchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chordex",
			Name:      "search_errors_total",
			Help:      "Search calls that returned an error, by operation.",
		}, []string{"operation"}),
		searchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chordex",
			Name:      "search_duration_seconds",
			Help:      "Search latency, by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"operation"}),
		indexedDocs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chordex",
			Name:      "indexed_documents",
			Help:      "Documents currently indexed.",
		}),
		initSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chordex",
			Name:      "initialize_duration_seconds",
			Help:      "Service initialization duration.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.searches, m.searchErrors, m.searchSeconds, m.indexedDocs, m.initSeconds)
	}
	return m
}

// ObserveSearch records one search call.
func (m *Metrics) ObserveSearch(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(operation).Inc()
	m.searchSeconds.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		m.searchErrors.WithLabelValues(operation).Inc()
	}
}

// ObserveInitialize records service initialization.
func (m *Metrics) ObserveInitialize(docs int, d time.Duration) {
	if m == nil {
		return
	}
	m.indexedDocs.Set(float64(docs))
	m.initSeconds.Observe(d.Seconds())
}
