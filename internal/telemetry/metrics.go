// Package telemetry provides application-level observability for the fleet admin API.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and served by the
// side-channel HTTP server started in cmd/server:
//
//	GET http://<host>:<AMIGA_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not part of the Gin router, so it is neither rate
// limited nor audited.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Audit trail outcomes, persistence latency, shipping errors and classifier fallbacks
//   - Alert escalation counter
//   - Database connection pool gauge (polled every 30 s)
//
// HTTP and audit metrics use c.FullPath() (route template such as /api/vehicles/:id)
// rather than the raw request URL to keep label cardinality bounded.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Error rate (%):       sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency by route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Audit trail metrics.
//
// AuditRecordsTotal counts records by path ("exchange" for intercepted requests, "change"
// for explicit diffs) and outcome ("stored", "failed", or "skipped" for empty diffs).
// A non-zero failed rate means the trail is incomplete; request handling is unaffected.
//
// Example PromQL queries:
//   - Persistence failure ratio: sum(rate(audit_records_total{outcome="failed"}[5m])) / sum(rate(audit_records_total[5m]))
//   - Alert expression:          increase(audit_records_total{outcome="failed"}[15m]) > 0
//
// AuditClassificationFallbacksTotal counts exchanges whose route had no explicit action and
// were tagged with the generic per-method action instead.
var (
	AuditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Total number of audit records handled, by path and outcome.",
		},
		[]string{"path", "outcome"},
	)

	AuditPersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_persist_duration_seconds",
			Help:    "Duration of a single audit record insert.",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuditShipErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_ship_errors_total",
			Help: "Total number of failed deliveries to external audit destinations, by shipper type.",
		},
		[]string{"shipper"},
	)

	AuditClassificationFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_classification_fallbacks_total",
			Help: "Total number of audited exchanges classified by the generic per-method action.",
		},
		[]string{"method"},
	)
)

// AlertEscalationsTotal is incremented once per alert whose priority was raised by the
// escalation job.
var AlertEscalationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "alert_escalations_total",
		Help: "Total number of alerts escalated by the background job.",
	},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// dbStatsInterval is how often StartDBStatsCollector samples the pool
const dbStatsInterval = 30 * time.Second

// StartDBStatsCollector samples the pool every dbStatsInterval until the database stops
// answering, which happens once main closes it on shutdown.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(dbStatsInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := sampleDBStats(db); err != nil {
				slog.Warn("db stats collector stopped", "error", err)
				return
			}
		}
	}()
}

// sampleDBStats pings db and publishes its open connection count.
func sampleDBStats(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return err
	}
	DBOpenConnections.Set(float64(db.Stats().OpenConnections))
	return nil
}
