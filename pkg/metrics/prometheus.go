// Package metrics provides Prometheus metrics for the Pulse scoring
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus instruments for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Pipeline metrics
	recomputesTotal  *prometheus.CounterVec // by trigger (batch/event)
	recomputeLatency prometheus.Histogram
	recomputeErrors  prometheus.Counter
	factorsSkipped   prometheus.Counter
	partialRecords   prometheus.Counter

	// Ingest metrics
	eventsAccepted   prometheus.Counter
	eventsDuplicate  prometheus.Counter
	eventsRejected   prometheus.Counter

	// Queue and worker metrics
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueRejected    prometheus.Counter
	workerCount      prometheus.Gauge

	// Bundler metrics
	bundlesOpened       prometheus.Counter
	bundleMembers       prometheus.Counter
	alertsSuppressed    prometheus.Counter
	bundlesByDelivery   *prometheus.CounterVec

	// Calibration metrics
	calibrationRuns     prometheus.Counter
	calibrationRejected prometheus.Counter
	feedbackRecorded    prometheus.Counter

	// Narrative client metrics
	narrativeRequests  prometheus.Counter
	narrativeFallbacks prometheus.Counter
	narrativeLatency   prometheus.Histogram

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Scale metrics
	trackedEntities prometheus.Gauge
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets custom buckets for latency histograms.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// Global manager backed by a custom registry so default Go collectors
// do not pollute the scrape.
var (
	customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton metrics registry
	globalManager  *Manager                   //nolint:gochecknoglobals // singleton metrics manager
)

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// GetRegistry returns the registry handlers scrape from.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pulse",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initialize()
	return m
}

func (m *Manager) initialize() {
	auto := promauto.With(m.registry)
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
	}
	gaugeOpts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
	}
	histOpts := func(name, help string) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets}
	}

	m.recomputesTotal = auto.NewCounterVec(opts("recomputes_total", "Score recomputes by trigger source"), []string{"trigger"})
	m.recomputeLatency = auto.NewHistogram(histOpts("recompute_latency_milliseconds", "End-to-end recompute latency per entity"))
	m.recomputeErrors = auto.NewCounter(opts("recompute_errors_total", "Recomputes that failed outright"))
	m.factorsSkipped = auto.NewCounter(opts("factors_skipped_total", "Factor evaluations skipped due to data gaps"))
	m.partialRecords = auto.NewCounter(opts("partial_records_total", "Score records flagged partial"))

	m.eventsAccepted = auto.NewCounter(opts("events_accepted_total", "Inbound signal events accepted"))
	m.eventsDuplicate = auto.NewCounter(opts("events_duplicate_total", "Inbound signal events dropped as duplicates"))
	m.eventsRejected = auto.NewCounter(opts("events_rejected_total", "Inbound signal events rejected on backpressure"))

	m.queueSize = auto.NewGauge(gaugeOpts("queue_size", "Recompute jobs currently queued"))
	m.queueCapacity = auto.NewGauge(gaugeOpts("queue_capacity", "Recompute queue capacity"))
	m.queueRejected = auto.NewCounter(opts("queue_rejected_total", "Recompute jobs rejected by a full queue"))
	m.workerCount = auto.NewGauge(gaugeOpts("worker_count", "Recompute workers running"))

	m.bundlesOpened = auto.NewCounter(opts("bundles_opened_total", "Alert bundles opened"))
	m.bundleMembers = auto.NewCounter(opts("bundle_members_total", "Alerts folded into bundles"))
	m.alertsSuppressed = auto.NewCounter(opts("alerts_suppressed_total", "Alerts suppressed as repeats"))
	m.bundlesByDelivery = auto.NewCounterVec(opts("bundle_delivery_total", "Bundle delivery decisions"), []string{"mode"})

	m.calibrationRuns = auto.NewCounter(opts("calibration_runs_total", "Calibration cycles that published a new model version"))
	m.calibrationRejected = auto.NewCounter(opts("calibration_rejected_total", "Calibration cycles rejected by divergence or missing data"))
	m.feedbackRecorded = auto.NewCounter(opts("feedback_recorded_total", "Feedback records accepted"))

	m.narrativeRequests = auto.NewCounter(opts("narrative_requests_total", "Narrative service calls attempted"))
	m.narrativeFallbacks = auto.NewCounter(opts("narrative_fallbacks_total", "Narrative calls degraded to template output"))
	m.narrativeLatency = auto.NewHistogram(histOpts("narrative_latency_milliseconds", "Narrative service call latency"))

	m.httpRequests = auto.NewCounterVec(opts("http_requests_total", "HTTP requests by endpoint, method, status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(histOpts("http_request_duration_milliseconds", "HTTP request duration"), []string{"endpoint", "method", "status_code"})

	m.trackedEntities = auto.NewGauge(gaugeOpts("tracked_entities", "Entities with at least one feature set"))
}
