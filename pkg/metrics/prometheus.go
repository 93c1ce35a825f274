// Package metrics provides Prometheus metrics for the arcade service.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every metric family of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec

	// Ingestion
	eventsAccepted  prometheus.Counter
	eventsPersisted prometheus.Counter
	eventsDuplicate prometheus.Counter
	eventsPruned    prometheus.Counter
	eventsRetained  prometheus.Counter

	// Queue
	queueDepth       prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueue     prometheus.Counter
	queueEnqueueErrs prometheus.Counter
	queueDequeue     prometheus.Counter
	queueAck         prometheus.Counter
	queueNack        prometheus.Counter
	queueRedelivered prometheus.Counter
	queueDead        prometheus.Counter
	queueWait        prometheus.Histogram

	// Workers
	workerCount      prometheus.Gauge
	workerActive     prometheus.Gauge
	workerLatency    prometheus.Histogram
	workerErrors     prometheus.Counter
	workerDuplicates prometheus.Counter

	// Query cache
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheSets          *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	cacheBackendErrors *prometheus.CounterVec
	cacheEntries       prometheus.Gauge

	// Snapshot reader
	snapshotFetches  *prometheus.CounterVec
	snapshotFailures *prometheus.CounterVec
	snapshotDuration *prometheus.HistogramVec
	snapshotVersion  prometheus.Gauge

	// Rank store
	rankReorders *prometheus.CounterVec
	rankClicks   prometheus.Counter

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // process-wide metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry exposed on /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a manager and registers its families.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "arcade",
		histogramBuckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by route, method and status", "route", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "route", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Error responses by route and error kind", "route", "method", "error_kind")
	m.errorsByComponent = m.counterVec("errors_by_component_total", "Internal errors by component", "component", "error_type")

	m.eventsAccepted = m.counter("events_accepted_total", "Usage events accepted for asynchronous processing")
	m.eventsPersisted = m.counter("events_persisted_total", "Usage events written to the store")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Redelivered usage events that were already stored or pruned")
	m.eventsPruned = m.counter("events_pruned_total", "Finished game sessions deleted for being too short")
	m.eventsRetained = m.counter("events_retained_total", "Finished sessions kept after the pruning rule ran")

	m.queueDepth = m.gauge("queue_depth", "Jobs waiting or leased")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued jobs")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Jobs enqueued")
	m.queueEnqueueErrs = m.counter("queue_enqueue_errors_total", "Failed enqueues")
	m.queueDequeue = m.counter("queue_dequeue_total", "Jobs delivered to workers")
	m.queueAck = m.counter("queue_ack_total", "Jobs acknowledged")
	m.queueNack = m.counter("queue_nack_total", "Jobs returned for retry")
	m.queueRedelivered = m.counter("queue_redelivered_total", "Jobs delivered again after a nack or lease expiry")
	m.queueDead = m.counter("queue_dead_total", "Jobs moved aside after exhausting their attempts")
	m.queueWait = m.histogram("queue_wait_milliseconds", "Time between enqueue and first delivery", m.histogramBuckets)

	m.workerCount = m.gauge("worker_count", "Configured workers")
	m.workerActive = m.gauge("worker_active_count", "Workers currently processing a job")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Job processing latency", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Jobs whose processing failed")
	m.workerDuplicates = m.counter("worker_duplicates_total", "Deliveries skipped because the job was already in progress")

	m.cacheHits = m.counterVec("cache_hits_total", "Query cache hits", "namespace")
	m.cacheMisses = m.counterVec("cache_misses_total", "Query cache misses", "namespace")
	m.cacheSets = m.counterVec("cache_sets_total", "Query cache stores", "namespace")
	m.cacheInvalidations = m.counterVec("cache_invalidated_keys_total", "Keys removed by pattern invalidation", "namespace")
	m.cacheBackendErrors = m.counterVec("cache_backend_errors_total", "Cache backend failures absorbed as miss or no-op", "op")
	m.cacheEntries = m.gauge("cache_entries", "Entries held by the cache backend")

	m.snapshotFetches = m.counterVec("snapshot_fetch_total", "Catalog reads by the source that served them", "source")
	m.snapshotFailures = m.counterVec("snapshot_failures_total", "Snapshot reads that fell back to the origin", "reason")
	m.snapshotDuration = m.histogramVec("snapshot_fetch_duration_milliseconds", "Snapshot fetch duration", "source")
	m.snapshotVersion = m.gauge("snapshot_version", "Snapshot version currently used for cache busting")

	m.rankReorders = m.counterVec("rank_reorders_total", "Position changes by outcome", "outcome")
	m.rankClicks = m.counter("rank_clicks_total", "Clicks recorded against positions")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Most recent GC pause",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// HTTP

// RecordHTTPRequest records one request and its duration.
func RecordHTTPRequest(route, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(route, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(route, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint counts an error response.
func RecordErrorByEndpoint(route, method, kind string) {
	globalManager.errorsByEndpoint.WithLabelValues(route, method, kind).Inc()
}

// RecordErrorByComponent counts an internal failure.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// Ingestion

func RecordEventAccepted()  { globalManager.eventsAccepted.Inc() }
func RecordEventPersisted() { globalManager.eventsPersisted.Inc() }
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }
func RecordEventPruned()    { globalManager.eventsPruned.Inc() }
func RecordEventRetained()  { globalManager.eventsRetained.Inc() }

// Queue

// UpdateQueueDepth sets the number of pending and leased jobs.
func UpdateQueueDepth(n int) { globalManager.queueDepth.Set(float64(n)) }

// UpdateQueueCapacity sets the queue bound.
func UpdateQueueCapacity(n int) { globalManager.queueCapacity.Set(float64(n)) }

func RecordQueueEnqueue()      { globalManager.queueEnqueue.Inc() }
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrs.Inc() }
func RecordQueueDequeue()      { globalManager.queueDequeue.Inc() }
func RecordQueueAck()          { globalManager.queueAck.Inc() }
func RecordQueueNack()         { globalManager.queueNack.Inc() }
func RecordQueueRedelivery()   { globalManager.queueRedelivered.Inc() }
func RecordQueueDead()         { globalManager.queueDead.Inc() }

// RecordQueueWait records how long a job waited before its first delivery.
func RecordQueueWait(ms float64) { globalManager.queueWait.Observe(ms) }

// Workers

func UpdateWorkerCount(n int)       { globalManager.workerCount.Set(float64(n)) }
func AddWorkerActive(delta float64) { globalManager.workerActive.Add(delta) }

// RecordWorkerProcessingLatency records job processing latency.
func RecordWorkerProcessingLatency(ms float64) { globalManager.workerLatency.Observe(ms) }

func RecordWorkerError()     { globalManager.workerErrors.Inc() }
func RecordWorkerDuplicate() { globalManager.workerDuplicates.Inc() }

// Query cache

func RecordCacheHit(ns string)  { globalManager.cacheHits.WithLabelValues(ns).Inc() }
func RecordCacheMiss(ns string) { globalManager.cacheMisses.WithLabelValues(ns).Inc() }
func RecordCacheSet(ns string)  { globalManager.cacheSets.WithLabelValues(ns).Inc() }

// RecordCacheInvalidation counts keys removed from a namespace.
func RecordCacheInvalidation(ns string, keys int) {
	globalManager.cacheInvalidations.WithLabelValues(ns).Add(float64(keys))
}

// RecordCacheBackendError counts an absorbed backend failure for op.
func RecordCacheBackendError(op string) { globalManager.cacheBackendErrors.WithLabelValues(op).Inc() }

// UpdateCacheEntries sets the number of cached entries.
func UpdateCacheEntries(n int) { globalManager.cacheEntries.Set(float64(n)) }

// Snapshot reader

// RecordSnapshotFetch counts a read served by source and its duration.
func RecordSnapshotFetch(source string, durationMs float64) {
	globalManager.snapshotFetches.WithLabelValues(source).Inc()
	globalManager.snapshotDuration.WithLabelValues(source).Observe(durationMs)
}

// RecordSnapshotFailure counts a fallback by reason.
func RecordSnapshotFailure(reason string) {
	globalManager.snapshotFailures.WithLabelValues(reason).Inc()
}

// UpdateSnapshotVersion sets the version used for cache busting.
func UpdateSnapshotVersion(v int64) { globalManager.snapshotVersion.Set(float64(v)) }

// Rank store

// RecordReorder counts a position change; outcome is "swap", "move" or "noop".
func RecordReorder(outcome string) { globalManager.rankReorders.WithLabelValues(outcome).Inc() }

func RecordClick() { globalManager.rankClicks.Inc() }

// System

// UpdateSystemMetrics samples runtime memory, goroutines and the last GC pause.
func UpdateSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	globalManager.systemMemoryUsage.Set(float64(ms.HeapAlloc))
	globalManager.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
	if ms.NumGC > 0 {
		pause := ms.PauseNs[(ms.NumGC+255)%256]
		globalManager.systemGCPauseTime.Observe(float64(pause) / float64(time.Millisecond))
	}
}

// RunSystemSampler calls UpdateSystemMetrics every refresh interval until ctx is done.
func RunSystemSampler(ctx context.Context) {
	t := time.NewTicker(globalManager.refreshInterval)
	defer t.Stop()
	UpdateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			UpdateSystemMetrics()
		}
	}
}

// GetRegistry returns the registry served on /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
