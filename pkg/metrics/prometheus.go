// Package metrics provides Prometheus metrics for the pairup matchmaking service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace              = "pairup"
	subsystem              = "matchmaker"
	defaultRefreshInterval = 10 * time.Second
)

// latencyBuckets covers sub-millisecond pool operations up to slow store writes.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000} //nolint:gochecknoglobals // constant bucket layout

// Manager manages all Prometheus metrics for the matchmaking service.
type Manager struct {
	enabled         atomic.Bool
	refreshInterval atomic.Int64
	registry        prometheus.Registerer

	// Pool
	poolSize      prometheus.Gauge
	poolJoins     prometheus.Counter
	poolLeaves    *prometheus.CounterVec
	poolEvictions prometheus.Counter

	// Matching
	matchRounds      prometheus.Counter
	roundLatency     prometheus.Histogram
	candidatesPerRun prometheus.Histogram
	matchesCommitted *prometheus.CounterVec
	commitConflicts  prometheus.Counter
	commitLatency    prometheus.Histogram

	// Persistence
	sessionsPersisted   prometheus.Counter
	persistenceFailures prometheus.Counter

	// Transport
	connectedClients     prometheus.Gauge
	notificationsSent    *prometheus.CounterVec
	notificationsDropped *prometheus.CounterVec
	commandsReceived     *prometheus.CounterVec
	commandsDuplicate    prometheus.Counter
	commandQueueDepth    prometheus.Gauge
	commandQueueRejected prometheus.Counter
	commandLatency       prometheus.Histogram
	workerCount          prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

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
	m := &Manager{registry: prometheus.NewRegistry()}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		Buckets: latencyBuckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.poolSize = m.gauge("pool_size", "Number of participants currently queued")
	m.poolJoins = m.counter("pool_joins_total", "Total number of join or requeue operations")
	m.poolLeaves = m.counterVec("pool_leaves_total", "Total number of pool removals by reason", "reason")
	m.poolEvictions = m.counter("pool_evictions_total", "Total number of entries evicted by the queue TTL")

	m.matchRounds = m.counter("match_rounds_total", "Total number of scoring rounds")
	m.roundLatency = m.histogram("match_round_latency_milliseconds", "Latency of a scoring round in milliseconds")
	m.candidatesPerRun = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "match_round_candidates",
		Help:      "Number of candidates scored per round",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
	m.matchesCommitted = m.counterVec("matches_committed_total", "Total number of committed sessions by trigger", "trigger")
	m.commitConflicts = m.counter("commit_conflicts_total", "Total number of commits aborted because a partner was unavailable")
	m.commitLatency = m.histogram("commit_latency_milliseconds", "Latency of the pool removal step of a commit in milliseconds")

	m.sessionsPersisted = m.counter("sessions_persisted_total", "Total number of sessions written to the session store")
	m.persistenceFailures = m.counter("persistence_failures_total", "Total number of session store write failures")

	m.connectedClients = m.gauge("connected_clients", "Number of live realtime connections")
	m.notificationsSent = m.counterVec("notifications_sent_total", "Total number of delivered outbound messages by kind", "kind")
	m.notificationsDropped = m.counterVec("notifications_dropped_total", "Total number of dropped outbound messages by reason", "reason")
	m.commandsReceived = m.counterVec("commands_received_total", "Total number of inbound commands by kind", "kind")
	m.commandsDuplicate = m.counter("commands_duplicate_total", "Total number of inbound commands dropped as duplicates")
	m.commandQueueDepth = m.gauge("command_queue_depth", "Number of inbound commands waiting for a worker")
	m.commandQueueRejected = m.counter("command_queue_rejected_total", "Total number of inbound commands rejected by backpressure")
	m.commandLatency = m.histogram("command_latency_milliseconds", "Inbound command handling latency in milliseconds")
	m.workerCount = m.gauge("worker_count", "Number of dispatcher workers")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_total", "Total number of errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// Enabled reports whether observations are recorded.
func (m *Manager) Enabled() bool { return m.enabled.Load() }

// RefreshInterval returns the configured gauge refresh interval.
func (m *Manager) RefreshInterval() time.Duration {
	return time.Duration(m.refreshInterval.Load())
}

func enabled() bool { return globalManager != nil && globalManager.enabled.Load() }

// Pool metrics.

func UpdatePoolSize(n int) {
	if enabled() {
		globalManager.poolSize.Set(float64(n))
	}
}

func RecordJoin() {
	if enabled() {
		globalManager.poolJoins.Inc()
	}
}

func RecordLeave(reason string) {
	if enabled() {
		globalManager.poolLeaves.WithLabelValues(reason).Inc()
	}
}

func RecordEviction() {
	if enabled() {
		globalManager.poolEvictions.Inc()
	}
}

// Matching metrics.

func RecordMatchRound(latencyMs float64, candidates int) {
	if enabled() {
		globalManager.matchRounds.Inc()
		globalManager.roundLatency.Observe(latencyMs)
		globalManager.candidatesPerRun.Observe(float64(candidates))
	}
}

func RecordMatchCommitted(trigger string) {
	if enabled() {
		globalManager.matchesCommitted.WithLabelValues(trigger).Inc()
	}
}

func RecordCommitConflict() {
	if enabled() {
		globalManager.commitConflicts.Inc()
	}
}

func RecordCommitLatency(latencyMs float64) {
	if enabled() {
		globalManager.commitLatency.Observe(latencyMs)
	}
}

// Persistence metrics.

func RecordSessionPersisted() {
	if enabled() {
		globalManager.sessionsPersisted.Inc()
	}
}

func RecordPersistenceFailure() {
	if enabled() {
		globalManager.persistenceFailures.Inc()
	}
}

// Transport metrics.

func UpdateConnectedClients(n int) {
	if enabled() {
		globalManager.connectedClients.Set(float64(n))
	}
}

func RecordNotificationSent(kind string) {
	if enabled() {
		globalManager.notificationsSent.WithLabelValues(kind).Inc()
	}
}

func RecordNotificationDropped(reason string) {
	if enabled() {
		globalManager.notificationsDropped.WithLabelValues(reason).Inc()
	}
}

func RecordCommandReceived(kind string) {
	if enabled() {
		globalManager.commandsReceived.WithLabelValues(kind).Inc()
	}
}

func RecordCommandDuplicate() {
	if enabled() {
		globalManager.commandsDuplicate.Inc()
	}
}

func UpdateCommandQueueDepth(n int) {
	if enabled() {
		globalManager.commandQueueDepth.Set(float64(n))
	}
}

func RecordCommandRejected() {
	if enabled() {
		globalManager.commandQueueRejected.Inc()
	}
}

func RecordCommandLatency(latencyMs float64) {
	if enabled() {
		globalManager.commandLatency.Observe(latencyMs)
	}
}

func UpdateWorkerCount(n int) {
	if enabled() {
		globalManager.workerCount.Set(float64(n))
	}
}

// HTTP metrics.

func RecordHTTPRequest(endpoint, method, statusCode string) {
	if enabled() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if enabled() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	if enabled() {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// System metrics.

func UpdateSystemMemoryUsage(bytes uint64) {
	if enabled() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

func UpdateSystemGoroutineCount(count int) {
	if enabled() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// GetRegistry returns the registry the global manager reports to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
