// Package metrics provides Prometheus metrics export for the summarization pipeline.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/spansum/ai/assembler"
	"github.com/hrygo/spansum/ai/document"
	"github.com/hrygo/spansum/ai/scheduler"
)

const (
	namespace = "spansum"
	subsystem = "summarizer"
)

// PrometheusExporter exports scheduler and request metrics in Prometheus format.
// It implements scheduler.Recorder and summarize.Recorder.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Scheduler metrics
	queueDepth        prometheus.Gauge
	admissionWait     prometheus.Histogram
	batchSize         prometheus.Histogram
	generationLatency *prometheus.HistogramVec
	batches           *prometheus.CounterVec
	expired           prometheus.Counter

	// Request metrics
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	targets        prometheus.Histogram
	targetOutcomes *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64

	// Buckets for batch size and targets per request
	SizeBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		SizeBuckets:    []float64{1, 2, 4, 8, 16, 32, 64, 128},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	if len(cfg.SizeBuckets) == 0 {
		cfg.SizeBuckets = DefaultConfig().SizeBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Entries waiting in the batch queue",
		},
	)

	e.admissionWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "admission_wait_seconds",
			Help:      "Time submissions spent blocked on a full queue",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.batchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_size",
			Help:      "Entries per generator call",
			Buckets:   cfg.SizeBuckets,
		},
	)

	e.generationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "generation_latency_seconds",
			Help:      "Generator call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"status"},
	)

	e.batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batches_total",
			Help:      "Total number of generator calls",
		},
		[]string{"status"},
	)

	e.expired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "expired_total",
			Help:      "Entries dropped because their request ended before dispatch",
		},
	)

	e.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Total number of summarization requests",
		},
		[]string{"status"},
	)

	e.requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_latency_seconds",
			Help:      "Summarization request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"status"},
	)

	e.targets = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "targets_per_request",
			Help:      "Targets per summarization request",
			Buckets:   cfg.SizeBuckets,
		},
	)

	e.targetOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "target_outcomes_total",
			Help:      "Final status of each target",
		},
		[]string{"status"},
	)

	// Register all metrics
	registry.MustRegister(
		e.queueDepth,
		e.admissionWait,
		e.batchSize,
		e.generationLatency,
		e.batches,
		e.expired,
		e.requests,
		e.requestLatency,
		e.targets,
		e.targetOutcomes,
	)

	return e
}

// RecordQueueDepth sets the current queue depth.
func (e *PrometheusExporter) RecordQueueDepth(depth int) {
	e.queueDepth.Set(float64(depth))
}

// RecordAdmissionWait records time spent waiting for queue space.
func (e *PrometheusExporter) RecordAdmissionWait(wait time.Duration) {
	e.admissionWait.Observe(wait.Seconds())
}

// RecordBatch records one generator call.
func (e *PrometheusExporter) RecordBatch(size int, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	e.batches.WithLabelValues(status).Inc()
	e.batchSize.Observe(float64(size))
	e.generationLatency.WithLabelValues(status).Observe(latency.Seconds())
}

// RecordExpired counts entries dropped before dispatch.
func (e *PrometheusExporter) RecordExpired(n int) {
	e.expired.Add(float64(n))
}

// RecordRequest records one summarization request.
func (e *PrometheusExporter) RecordRequest(latency time.Duration, targets int, err error) {
	status := requestStatus(err)
	e.requests.WithLabelValues(status).Inc()
	e.requestLatency.WithLabelValues(status).Observe(latency.Seconds())
	e.targets.Observe(float64(targets))
}

// RecordTargetOutcome counts the final status of one target.
func (e *PrometheusExporter) RecordTargetOutcome(status assembler.Status) {
	e.targetOutcomes.WithLabelValues(status.String()).Inc()
}

func requestStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, document.ErrMalformed):
		return "malformed"
	case errors.Is(err, scheduler.ErrQueueSaturated) && !errors.Is(err, assembler.ErrAllTargetsFailed):
		return "saturated"
	case errors.Is(err, scheduler.ErrClosed):
		return "unavailable"
	case errors.Is(err, assembler.ErrAllTargetsFailed):
		return "all_failed"
	default:
		return "error"
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	})
}

// ServeHTTP implements http.Handler for the metrics endpoint.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.Handler().ServeHTTP(w, r)
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
