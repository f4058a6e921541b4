// Package observability provides Prometheus metrics for the ingestion
// pipeline and the HTTP API.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahmethakanbesel/market-ingest/internal/drift"
)

// Pipeline outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeAborted   = "aborted"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Per-source metrics
	SourceRuns       *prometheus.CounterVec
	SourceDuration   *prometheus.HistogramVec
	RecordsPersisted *prometheus.CounterVec
	RecordsDiscarded *prometheus.CounterVec
	DriftDetected    *prometheus.CounterVec
	LastSuccess      *prometheus.GaugeVec

	// Pipeline metrics
	PipelineRuns     *prometheus.CounterVec
	PipelineDuration prometheus.Histogram

	// HTTP metrics
	RateLimited prometheus.Counter
}

// NewMetrics registers all metrics with reg. When reg is nil the default
// registry is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "market_ingest"
	}
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	f := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		SourceRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "runs_total",
			Help:      "Total number of source runs by terminal status",
		}, []string{"source", "status"}),
		SourceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "run_duration_seconds",
			Help:      "Duration of source runs",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
		}, []string{"source"}),
		RecordsPersisted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "records_persisted_total",
			Help:      "Total number of normalized records committed",
		}, []string{"source"}),
		RecordsDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "records_discarded_total",
			Help:      "Total number of raw records rejected by validation",
		}, []string{"source"}),
		DriftDetected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "schema_drift_total",
			Help:      "Total number of payloads whose shape differed from the golden document",
		}, []string{"source"}),
		LastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}, []string{"source"}),

		PipelineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline triggers by outcome",
		}, []string{"outcome"}),
		PipelineDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of complete pipeline runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),

		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordSourceRun records the terminal state of one source run.
func (m *Metrics) RecordSourceRun(source, status string, d time.Duration, persisted, discarded int) {
	if m == nil {
		return
	}
	m.SourceRuns.WithLabelValues(source, status).Inc()
	m.SourceDuration.WithLabelValues(source).Observe(d.Seconds())
	m.RecordsPersisted.WithLabelValues(source).Add(float64(persisted))
	m.RecordsDiscarded.WithLabelValues(source).Add(float64(discarded))
	if status == "SUCCESS" {
		m.LastSuccess.WithLabelValues(source).SetToCurrentTime()
	}
}

// RecordDrift matches the drift notify hook signature.
func (m *Metrics) RecordDrift(source string, _ *drift.Report) {
	if m == nil {
		return
	}
	m.DriftDetected.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordPipeline(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCompleted {
		m.PipelineDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
