package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Kernel metrics
	ProcessesByState *prometheus.GaugeVec
	SpawnsTotal      prometheus.Counter
	TerminationsTotal *prometheus.CounterVec
	ContextSwitches  prometheus.Gauge
	Preemptions      prometheus.Gauge
	TicksTotal       prometheus.Gauge

	// Memory metrics
	MemoryUsedKB prometheus.Gauge
	MemoryFreeKB prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Collectors live in a per-instance registry so independent
	// servers (and tests) never collide.
	registry *prometheus.Registry

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	TotalSpawns   int64   `json:"total_spawns"`
	LiveProcesses int64   `json:"live_processes"`
	MemoryUsedKB  int64   `json:"memory_used_kb"`
	TotalDuration float64 `json:"-"`
	RequestCount  int64   `json:"-"`
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		registry:  reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minimind_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "minimind_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		ProcessesByState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "minimind_processes",
				Help: "Number of processes per lifecycle state",
			},
			[]string{"state"},
		),
		SpawnsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "minimind_spawns_total",
				Help: "Total number of processes spawned",
			},
		),
		TerminationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minimind_terminations_total",
				Help: "Total number of process terminations by reason",
			},
			[]string{"reason"},
		),
		ContextSwitches: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "minimind_context_switches",
				Help: "Context switches performed by the scheduler",
			},
		),
		Preemptions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "minimind_preemptions",
				Help: "Quantum-expiry preemptions performed by the scheduler",
			},
		),
		TicksTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "minimind_ticks_total",
				Help: "Clock ticks processed",
			},
		),

		MemoryUsedKB: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "minimind_memory_used_kb",
				Help: "Simulated memory in use, including the reserved region",
			},
		),
		MemoryFreeKB: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "minimind_memory_free_kb",
				Help: "Simulated memory available in the user region",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "minimind_ws_connections",
				Help: "Number of active WebSocket viewer connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minimind_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "minimind_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordSpawn increments the spawn counter
func (m *Metrics) RecordSpawn() {
	m.SpawnsTotal.Inc()
	m.mu.Lock()
	m.snapshot.TotalSpawns++
	m.mu.Unlock()
}

// RecordTermination increments the termination counter for a reason
func (m *Metrics) RecordTermination(reason string) {
	m.TerminationsTotal.WithLabelValues(reason).Inc()
}

// SetProcessCount sets the per-state process gauge
func (m *Metrics) SetProcessCount(state string, count int) {
	m.ProcessesByState.WithLabelValues(state).Set(float64(count))
}

// SetLiveProcesses updates the JSON snapshot's live process count
func (m *Metrics) SetLiveProcesses(count int) {
	m.mu.Lock()
	m.snapshot.LiveProcesses = int64(count)
	m.mu.Unlock()
}

// SetSchedulerCounters mirrors scheduler counters into gauges
func (m *Metrics) SetSchedulerCounters(ticks, switches, preemptions uint64) {
	m.TicksTotal.Set(float64(ticks))
	m.ContextSwitches.Set(float64(switches))
	m.Preemptions.Set(float64(preemptions))
}

// SetMemoryUsage mirrors memory accounting into gauges
func (m *Metrics) SetMemoryUsage(usedKB, freeKB int) {
	m.MemoryUsedKB.Set(float64(usedKB))
	m.MemoryFreeKB.Set(float64(freeKB))
	m.mu.Lock()
	m.snapshot.MemoryUsedKB = int64(usedKB)
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// Snapshot returns current values for the JSON metrics API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// AverageRequestSeconds returns the mean HTTP request duration
func (m *Metrics) AverageRequestSeconds() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot.RequestCount == 0 {
		return 0
	}
	return m.snapshot.TotalDuration / float64(m.snapshot.RequestCount)
}

// Handler serves this instance's collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
