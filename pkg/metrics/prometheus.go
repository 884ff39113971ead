// Package metrics provides Prometheus metrics for the besttime ranking service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes used as label values.
const (
	OutcomeAccepted  = "accepted"
	OutcomeImproved  = "improved"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
	OutcomeThrottled = "throttled"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Submissions
	submissions *prometheus.CounterVec

	// Score index
	indexSize          prometheus.Gauge
	indexUpdates       prometheus.Counter
	indexUpdateLatency prometheus.Histogram
	indexQueryLatency  prometheus.Histogram

	// Broadcast pipeline
	broadcastsPublished     prometheus.Counter
	broadcastsFailed        prometheus.Counter
	broadcastsDropped       prometheus.Counter
	broadcastsCoalesced     prometheus.Counter
	broadcastBuildLatency   prometheus.Histogram
	nameResolutionFallbacks prometheus.Counter
	liveClients             prometheus.Gauge

	// Outbound queue
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge

	// Rebuild
	rebuildDuration prometheus.Histogram
	rebuildPlayers  prometheus.Gauge
	rebuildLastUnix prometheus.Gauge
	rebuildFailures prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "besttime",
		subsystem:        "ranking",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: constLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: constLabels,
		})
	}
	histogram := func(name, help string, buckets []float64) prometheus.Histogram {
		return auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: constLabels, Buckets: buckets,
		})
	}

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("submissions_total"),
		Help:        "Submitted clear times by outcome",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	m.indexSize = gauge("index_players", "Number of players held by the score index")
	m.indexUpdates = counter("index_updates_total", "Score index inserts and improvements")
	m.indexUpdateLatency = histogram("index_update_latency_milliseconds", "Score index write latency in milliseconds", m.histogramBuckets)
	m.indexQueryLatency = histogram("index_query_latency_milliseconds", "Score index read latency in milliseconds", m.histogramBuckets)

	m.broadcastsPublished = counter("broadcasts_published_total", "Ranking snapshots handed to the transport")
	m.broadcastsFailed = counter("broadcasts_failed_total", "Ranking snapshots the transport rejected")
	m.broadcastsDropped = counter("broadcasts_dropped_total", "Broadcast jobs dropped because the outbound queue was full")
	m.broadcastsCoalesced = counter("broadcasts_coalesced_total", "Broadcast jobs merged into a later snapshot")
	m.broadcastBuildLatency = histogram("broadcast_build_latency_milliseconds", "Time to build a ranking snapshot in milliseconds", m.histogramBuckets)
	m.nameResolutionFallbacks = counter("name_resolution_fallbacks_total", "Snapshot rows rendered with a placeholder name")
	m.liveClients = gauge("live_clients", "Connected live ranking subscribers")

	m.queueSize = gauge("queue_size", "Current size of the outbound broadcast queue")
	m.queueCapacity = gauge("queue_capacity", "Capacity of the outbound broadcast queue")

	m.rebuildDuration = histogram("rebuild_duration_milliseconds", "Score index rebuild duration in milliseconds",
		[]float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000})
	m.rebuildPlayers = gauge("rebuild_players", "Players loaded by the last successful rebuild")
	m.rebuildLastUnix = gauge("rebuild_last_unix", "Unix time of the last successful rebuild")
	m.rebuildFailures = counter("rebuild_failures_total", "Failed score index rebuilds")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_requests_total"),
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		ConstLabels: constLabels,
		Buckets:     m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_component_total"),
		Help:        "Errors by component and type",
		ConstLabels: constLabels,
	}, []string{"component", "error_type"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_endpoint_total"),
		Help:        "HTTP errors by endpoint, method and type",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = gauge("system_goroutine_count", "Number of goroutines")
}

// RecordSubmission counts a submission by outcome.
func RecordSubmission(outcome string) {
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// UpdateIndexSize sets the number of players in the score index.
func UpdateIndexSize(n int) {
	globalManager.indexSize.Set(float64(n))
}

// RecordIndexUpdate counts an insert or improvement in the score index.
func RecordIndexUpdate() {
	globalManager.indexUpdates.Inc()
}

// RecordIndexUpdateLatency records score index write latency in milliseconds.
func RecordIndexUpdateLatency(ms float64) {
	globalManager.indexUpdateLatency.Observe(ms)
}

// RecordIndexQueryLatency records score index read latency in milliseconds.
func RecordIndexQueryLatency(ms float64) {
	globalManager.indexQueryLatency.Observe(ms)
}

// RecordBroadcastPublished counts a snapshot handed to the transport.
func RecordBroadcastPublished() {
	globalManager.broadcastsPublished.Inc()
}

// RecordBroadcastFailed counts a snapshot the transport rejected.
func RecordBroadcastFailed() {
	globalManager.broadcastsFailed.Inc()
}

// RecordBroadcastDropped counts a job dropped on a full queue.
func RecordBroadcastDropped() {
	globalManager.broadcastsDropped.Inc()
}

// RecordBroadcastCoalesced counts jobs merged into one snapshot.
func RecordBroadcastCoalesced(n int) {
	globalManager.broadcastsCoalesced.Add(float64(n))
}

// RecordBroadcastBuildLatency records snapshot build latency in milliseconds.
func RecordBroadcastBuildLatency(ms float64) {
	globalManager.broadcastBuildLatency.Observe(ms)
}

// RecordNameResolutionFallback counts a row rendered with a placeholder name.
func RecordNameResolutionFallback() {
	globalManager.nameResolutionFallbacks.Inc()
}

// UpdateLiveClients sets the number of connected live subscribers.
func UpdateLiveClients(n int) {
	globalManager.liveClients.Set(float64(n))
}

// UpdateQueueSize sets the outbound queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the outbound queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordRebuild records a successful rebuild.
func RecordRebuild(d time.Duration, players int) {
	globalManager.rebuildDuration.Observe(float64(d.Milliseconds()))
	globalManager.rebuildPlayers.Set(float64(players))
	globalManager.rebuildLastUnix.Set(float64(time.Now().Unix()))
}

// RecordRebuildFailure counts a failed rebuild.
func RecordRebuildFailure() {
	globalManager.rebuildFailures.Inc()
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent increments the error counter for a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint increments the error counter for an HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the current heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the current goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
