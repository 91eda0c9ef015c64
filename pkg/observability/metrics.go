package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every Record/Set method is safe on a
// nil receiver so components can run without instrumentation.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	LoginAttemptsTotal   *prometheus.CounterVec
	ThrottledTotal       *prometheus.CounterVec
	SessionsCreatedTotal prometheus.Counter
	SessionsEvictedTotal prometheus.Counter
	RememberReuseTotal   prometheus.Counter

	// Audit pipeline metrics
	AuditEventsTotal *prometheus.CounterVec
	AuditQueueDepth  prometheus.Gauge

	// Synchronization metrics
	SyncIdentitiesTotal    *prometheus.CounterVec
	SyncRunsTotal          *prometheus.CounterVec
	IntegrityDiscrepancies *prometheus.GaugeVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBConnectionsWait   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Authentication metrics
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_login_attempts_total",
				Help: "Login attempts by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		ThrottledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_throttled_total",
				Help: "Requests rejected by lockout or rate limiting",
			},
			[]string{"scope"},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsEvictedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_sessions_evicted_total",
				Help: "Sessions evicted by the per-identity cap",
			},
		),
		RememberReuseTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_remember_token_reuse_total",
				Help: "Presentations of already-rotated remember tokens",
			},
		),

		// Audit pipeline metrics
		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_audit_events_total",
				Help: "Audit events by pipeline result",
			},
			[]string{"result"},
		),
		AuditQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_audit_queue_depth",
				Help: "Audit events waiting to be written",
			},
		),

		// Synchronization metrics
		SyncIdentitiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_sync_identities_total",
				Help: "Identities processed by the synchronizer",
			},
			[]string{"result"},
		),
		SyncRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_sync_runs_total",
				Help: "Batch synchronization runs",
			},
			[]string{"result"},
		),
		IntegrityDiscrepancies: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "warden_integrity_discrepancies",
				Help: "Discrepancies found by the last integrity scan",
			},
			[]string{"kind"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWait: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginAttemptsTotal,
		m.ThrottledTotal,
		m.SessionsCreatedTotal,
		m.SessionsEvictedTotal,
		m.RememberReuseTotal,
		m.AuditEventsTotal,
		m.AuditQueueDepth,
		m.SyncIdentitiesTotal,
		m.SyncRunsTotal,
		m.IntegrityDiscrepancies,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWait,
	)

	return m
}

// RecordHTTPRequest records one served request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLogin records a login attempt; outcome is "success" or the failure reason
func (m *Metrics) RecordLogin(channel, outcome string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(channel, outcome).Inc()
}

// RecordThrottled records a rejection by scope ("email", "ip", "rate")
func (m *Metrics) RecordThrottled(scope string) {
	if m == nil {
		return
	}
	m.ThrottledTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreatedTotal.Inc()
}

func (m *Metrics) RecordSessionEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsEvictedTotal.Add(float64(n))
}

func (m *Metrics) RecordRememberReuse() {
	if m == nil {
		return
	}
	m.RememberReuseTotal.Inc()
}

// RecordAuditEvent counts an event by pipeline result: enqueued, dropped,
// written or failed
func (m *Metrics) RecordAuditEvent(result string) {
	if m == nil {
		return
	}
	m.AuditEventsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetAuditQueueDepth(n int) {
	if m == nil {
		return
	}
	m.AuditQueueDepth.Set(float64(n))
}

func (m *Metrics) RecordSyncIdentity(result string) {
	if m == nil {
		return
	}
	m.SyncIdentitiesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordSyncRun(result string) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetIntegrityDiscrepancies(kind string, n int) {
	if m == nil {
		return
	}
	m.IntegrityDiscrepancies.WithLabelValues(kind).Set(float64(n))
}

func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// UpdateDBStats copies connection pool statistics into the gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWait.Set(float64(stats.WaitCount))
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
