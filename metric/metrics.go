// Package metric defines the Prometheus metrics exposed by the logging
// pipeline.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all pipeline-level metrics.
type Metrics struct {
	// Write path
	WritesTotal    *prometheus.CounterVec // result: stored, rejected, degraded
	StoreOutcomes  *prometheus.CounterVec // per store: success, failure, skip
	WriteDuration  prometheus.Histogram
	SecretScanHits prometheus.Counter
	RateLimited    prometheus.Counter

	// Read path
	ReadsTotal      prometheus.Counter
	ReadDuration    prometheus.Histogram
	RetrievalStatus *prometheus.CounterVec // status: complete, partial, failed

	// Store availability (1 = available, 0 = missing)
	StoreAvailable *prometheus.GaugeVec
}

// New creates the pipeline metrics.
func New() *Metrics {
	return &Metrics{
		WritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aquilog",
				Subsystem: "writes",
				Name:      "total",
				Help:      "Total write requests by result (stored, rejected, degraded)",
			},
			[]string{"result"},
		),
		StoreOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aquilog",
				Subsystem: "store",
				Name:      "write_outcomes_total",
				Help:      "Per-store write outcomes",
			},
			[]string{"store", "outcome"},
		),
		WriteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "aquilog",
				Subsystem: "writes",
				Name:      "duration_seconds",
				Help:      "Fan-out write duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SecretScanHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "aquilog",
				Subsystem: "redact",
				Name:      "secret_scan_hits_total",
				Help:      "Payloads flagged by the heuristic secret scan (monitoring only)",
			},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "aquilog",
				Subsystem: "writes",
				Name:      "rate_limited_total",
				Help:      "Write requests refused by the rate limiter",
			},
		),
		ReadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "aquilog",
				Subsystem: "reads",
				Name:      "total",
				Help:      "Total retrieval aggregator invocations",
			},
		),
		ReadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "aquilog",
				Subsystem: "reads",
				Name:      "duration_seconds",
				Help:      "Aggregated read duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		RetrievalStatus: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aquilog",
				Subsystem: "reads",
				Name:      "retrieval_status_total",
				Help:      "Merged records by retrieval status",
			},
			[]string{"status"},
		),
		StoreAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "aquilog",
				Subsystem: "store",
				Name:      "available",
				Help:      "Store adapter availability (1 = available, 0 = missing)",
			},
			[]string{"store"},
		),
	}
}

// Registry bundles the pipeline metrics with their Prometheus registry.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
}

// NewRegistry creates a registry with the pipeline metrics and the Go
// runtime collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		prometheusRegistry: prometheus.NewRegistry(),
		Metrics:            New(),
	}

	r.prometheusRegistry.MustRegister(
		r.Metrics.WritesTotal,
		r.Metrics.StoreOutcomes,
		r.Metrics.WriteDuration,
		r.Metrics.SecretScanHits,
		r.Metrics.RateLimited,
		r.Metrics.ReadsTotal,
		r.Metrics.ReadDuration,
		r.Metrics.RetrievalStatus,
		r.Metrics.StoreAvailable,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}

// PrometheusRegistry exposes the underlying registry for tests.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}
