package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors / Contient tous les collecteurs de métriques Prometheus
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec   // Total HTTP requests by method, path, status
	HTTPRequestDuration *prometheus.HistogramVec // HTTP request latency in seconds
	ActiveConnections   prometheus.Gauge         // Current number of in-flight HTTP requests

	// Security metrics
	RateLimitHits *prometheus.CounterVec // Rate limit violations by endpoint
	InvalidTokens prometheus.Counter     // Invalid/expired JWT token attempts

	// Database metrics
	DatabaseConnections   *prometheus.GaugeVec     // Pool connections by state (open, in_use, idle)
	DBTransactions        *prometheus.CounterVec   // Transactions by outcome
	DBTransactionDuration *prometheus.HistogramVec // Transaction duration by outcome
	SchemaVersion         prometheus.Gauge         // Applied migration version
	SchemaDirty           prometheus.Gauge         // 1 when the last migration failed midway

	// System metrics
	BackgroundTasks *prometheus.GaugeVec   // Status of background tasks (running/stopped)
	Backups         *prometheus.CounterVec // Backup runs by status

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics initializes Metrics instance / Initialise une instance Metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP request latency in seconds",
				// 10ms to 10s
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_active_connections",
				Help: "Current number of in-flight HTTP requests",
			},
		),

		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "security_rate_limit_hits_total",
				Help: "Total number of rate limit violations by endpoint",
			},
			[]string{"endpoint"},
		),

		InvalidTokens: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "security_invalid_tokens_total",
				Help: "Total number of invalid or expired JWT token attempts",
			},
		),

		DatabaseConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "database_connections",
				Help: "Database pool connections by state",
			},
			[]string{"state"},
		),

		DBTransactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_transactions_total",
				Help: "Total number of database transactions by outcome",
			},
			[]string{"status"},
		),

		DBTransactionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_transaction_duration_seconds",
				Help:    "Database transaction duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"status"},
		),

		SchemaVersion: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_schema_version",
				Help: "Applied database schema migration version",
			},
		),

		SchemaDirty: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_schema_dirty",
				Help: "1 when the last schema migration did not complete",
			},
		),

		BackgroundTasks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "background_tasks_status",
				Help: "Status of background tasks (1=running, 0=stopped)",
			},
			[]string{"task_name"},
		),

		Backups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_backups_total",
				Help: "Total number of database backup runs by status",
			},
			[]string{"status"},
		),

		registerer: reg,
		gatherer:   prometheus.DefaultGatherer,
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RegisterDBStats exports the database/sql pool statistics of sqlDB.
func (m *Metrics) RegisterDBStats(sqlDB *sql.DB, dbName string) error {
	return m.registerer.Register(collectors.NewDBStatsCollector(sqlDB, dbName))
}

// RecordHTTPRequest records an HTTP request with method, path, and status code.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCodeToString(statusCode)).Inc()
}

// RecordHTTPDuration records the duration of an HTTP request.
func (m *Metrics) RecordHTTPDuration(method, path string, duration time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementActiveConnections increments the active connections gauge.
func (m *Metrics) IncrementActiveConnections() {
	m.ActiveConnections.Inc()
}

// DecrementActiveConnections decrements the active connections gauge.
func (m *Metrics) DecrementActiveConnections() {
	m.ActiveConnections.Dec()
}

// RecordRateLimitHit records a rate limit violation for a specific endpoint.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordInvalidToken increments the invalid token counter.
func (m *Metrics) RecordInvalidToken() {
	m.InvalidTokens.Inc()
}

// UpdateDatabaseStats copies the pool statistics into the connection gauges.
func (m *Metrics) UpdateDatabaseStats(stats sql.DBStats) {
	m.DatabaseConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
	m.DatabaseConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.DatabaseConnections.WithLabelValues("idle").Set(float64(stats.Idle))
}

// ObserveTransaction records a finished transaction.
func (m *Metrics) ObserveTransaction(status string, duration time.Duration) {
	m.DBTransactions.WithLabelValues(status).Inc()
	m.DBTransactionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetSchemaVersion records the applied migration version.
func (m *Metrics) SetSchemaVersion(version uint, dirty bool) {
	m.SchemaVersion.Set(float64(version))
	m.SchemaDirty.Set(boolToFloat(dirty))
}

// SetBackgroundTaskStatus sets the status of a background task.
// Status: 1 for running, 0 for stopped.
func (m *Metrics) SetBackgroundTaskStatus(taskName string, running bool) {
	m.BackgroundTasks.WithLabelValues(taskName).Set(boolToFloat(running))
}

// RecordBackup records a backup run, status is "success" or "failure".
func (m *Metrics) RecordBackup(status string) {
	m.Backups.WithLabelValues(status).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// statusCodeToString converts HTTP status code to string / Convertit le code de statut HTTP en chaîne
// Common codes stay exact, the rest are grouped by class to bound label cardinality.
func statusCodeToString(code int) string {
	switch code {
	case 200, 201, 204, 400, 401, 403, 404, 429, 500, 503:
		return strconv.Itoa(code)
	}

	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
