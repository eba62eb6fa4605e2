// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	ImportsTotal   *prometheus.CounterVec
	EntriesOpened  prometheus.Counter
	EntriesClosed  prometheus.Counter
	ImportDuration prometheus.Histogram

	// Valuation metrics
	ValuationsTotal   *prometheus.CounterVec
	ValuationDuration *prometheus.HistogramVec
	CheckpointsValued prometheus.Counter

	// Operation metrics
	OperationRunsTotal *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	OperationsRejected *prometheus.CounterVec
	OperationRunning   prometheus.Gauge

	// Autolineup metrics
	AutolineupManagers *prometheus.CounterVec

	// Health metrics
	LastSuccessfulAutolineup prometheus.Gauge
	LastSuccessfulSync       prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "hm_tracker"
	}

	return &Metrics{
		// Ledger metrics
		ImportsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "imports_total",
			Help:      "Total number of roster snapshot imports by outcome",
		}, []string{"outcome"}),
		EntriesOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries_opened_total",
			Help:      "Total number of roster entries opened",
		}),
		EntriesClosed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries_closed_total",
			Help:      "Total number of roster entries closed",
		}),
		ImportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "import_duration_seconds",
			Help:      "Roster snapshot import duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Valuation metrics
		ValuationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "series_total",
			Help:      "Total number of value series computed by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		ValuationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "duration_seconds",
			Help:      "Value series computation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
		CheckpointsValued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "checkpoints_total",
			Help:      "Total number of checkpoints emitted in value series",
		}),

		// Operation metrics
		OperationRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "operation",
			Name:      "runs_total",
			Help:      "Total number of administrative operation runs by status",
		}, []string{"operation", "status"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "operation",
			Name:      "duration_seconds",
			Help:      "Administrative operation duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"operation"}),
		OperationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "operation",
			Name:      "rejected_total",
			Help:      "Total number of operation starts rejected because another was running",
		}, []string{"operation"}),
		OperationRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "operation",
			Name:      "running",
			Help:      "1 while an administrative operation is running",
		}),

		// Autolineup metrics
		AutolineupManagers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autolineup",
			Name:      "managers_total",
			Help:      "Total number of managers processed by outcome",
		}, []string{"outcome"}),

		// Health metrics
		LastSuccessfulAutolineup: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_autolineup_timestamp",
			Help:      "Unix timestamp of last successful autolineup run",
		}),
		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of last successful roster sync",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordImport records a roster snapshot import.
func RecordImport(outcome string, opened, closed int, seconds float64) {
	DefaultMetrics.ImportsTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.EntriesOpened.Add(float64(opened))
	DefaultMetrics.EntriesClosed.Add(float64(closed))
	DefaultMetrics.ImportDuration.Observe(seconds)
}

// RecordValuation records a value series computation.
func RecordValuation(strategy string, checkpoints int, seconds float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	DefaultMetrics.ValuationsTotal.WithLabelValues(strategy, outcome).Inc()
	DefaultMetrics.ValuationDuration.WithLabelValues(strategy).Observe(seconds)
	DefaultMetrics.CheckpointsValued.Add(float64(checkpoints))
}

// RecordOperationStart marks an administrative operation as running.
func RecordOperationStart() {
	DefaultMetrics.OperationRunning.Set(1)
}

// RecordOperationRun records a finished administrative operation.
func RecordOperationRun(operation, status string, durationSeconds float64) {
	DefaultMetrics.OperationRunning.Set(0)
	DefaultMetrics.OperationRunsTotal.WithLabelValues(operation, status).Inc()
	DefaultMetrics.OperationDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordOperationRejected records a start attempt refused as busy.
func RecordOperationRejected(operation string) {
	DefaultMetrics.OperationsRejected.WithLabelValues(operation).Inc()
}

// RecordAutolineupManager records the outcome for one manager.
func RecordAutolineupManager(outcome string) {
	DefaultMetrics.AutolineupManagers.WithLabelValues(outcome).Inc()
}

// RecordAutolineupSuccess updates the last successful autolineup gauge.
func RecordAutolineupSuccess(unix int64) {
	DefaultMetrics.LastSuccessfulAutolineup.Set(float64(unix))
}

// RecordSyncSuccess updates the last successful roster sync gauge.
func RecordSyncSuccess(unix int64) {
	DefaultMetrics.LastSuccessfulSync.Set(float64(unix))
}
