// Package metrics provides Prometheus metrics for bus-lader-db refresh runs.
//
// The tool is a short-lived CLI, so nothing is scraped. At the end of a run
// the registry is written to a node-exporter textfile when one is configured.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// Refresh metrics
	RefreshTotal    *prometheus.CounterVec
	RefreshDuration *prometheus.HistogramVec
	RowsLoadedTotal *prometheus.CounterVec
	FeedEndDate     *prometheus.GaugeVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitSecondsTotal prometheus.Counter

	// logger for error reporting
	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	// cancel stops the DB stats collector goroutine
	cancel context.CancelFunc

	// wg tracks the DB stats collector goroutine for graceful shutdown
	wg sync.WaitGroup

	// lastWaitDuration is the pool wait total seen by the previous collection
	mu               sync.Mutex
	lastWaitDuration time.Duration
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	refreshTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buslader_refresh_total",
			Help: "Company refresh attempts by result",
		},
		[]string{"company", "result"},
	)

	refreshDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buslader_refresh_duration_seconds",
			Help:    "Time spent refreshing one company, fetch to cleanup",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"company"},
	)

	rowsLoadedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buslader_rows_loaded_total",
			Help: "Rows inserted into the store, per table",
		},
		[]string{"table"},
	)

	feedEndDate := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buslader_feed_end_date_timestamp",
			Help: "Unix time of the end date of the most recently loaded feed",
		},
		[]string{"company"},
	)

	dbConnectionsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buslader_db_connections_open",
		Help: "Number of open database connections",
	})

	dbConnectionsInUse := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buslader_db_connections_in_use",
		Help: "Number of database connections currently in use",
	})

	dbConnectionsIdle := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "buslader_db_connections_idle",
		Help: "Number of idle database connections",
	})

	dbWaitSecondsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "buslader_db_wait_seconds_total",
		Help: "Total time blocked waiting for a database connection",
	})

	// Register all metrics with the custom registry
	registry.MustRegister(
		refreshTotal,
		refreshDuration,
		rowsLoadedTotal,
		feedEndDate,
		dbConnectionsOpen,
		dbConnectionsInUse,
		dbConnectionsIdle,
		dbWaitSecondsTotal,
	)

	return &Metrics{
		Registry:           registry,
		RefreshTotal:       refreshTotal,
		RefreshDuration:    refreshDuration,
		RowsLoadedTotal:    rowsLoadedTotal,
		FeedEndDate:        feedEndDate,
		DBConnectionsOpen:  dbConnectionsOpen,
		DBConnectionsInUse: dbConnectionsInUse,
		DBConnectionsIdle:  dbConnectionsIdle,
		DBWaitSecondsTotal: dbWaitSecondsTotal,
		logger:             logger,
	}
}

// ObserveRefresh records one company refresh. A nil receiver is a no-op so
// callers may run without metrics.
func (m *Metrics) ObserveRefresh(company, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(company, result).Inc()
	if result != ResultSkipped {
		m.RefreshDuration.WithLabelValues(company).Observe(elapsed.Seconds())
	}
}

// AddRows counts n rows inserted into table.
func (m *Metrics) AddRows(table string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsLoadedTotal.WithLabelValues(table).Add(float64(n))
}

// SetFeedEndDate records the end date of a company's freshly loaded feed.
func (m *Metrics) SetFeedEndDate(company string, end time.Time) {
	if m == nil {
		return
	}
	m.FeedEndDate.WithLabelValues(company).Set(float64(end.Unix()))
}

// CollectDBStats copies the current pool statistics into the DB gauges.
func (m *Metrics) CollectDBStats(db *sql.DB) {
	if m == nil || db == nil {
		return
	}

	stats := db.Stats()
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))

	m.mu.Lock()
	defer m.mu.Unlock()
	// Add the delta of wait duration since last check
	waitDelta := stats.WaitDuration - m.lastWaitDuration
	if waitDelta > 0 {
		m.DBWaitSecondsTotal.Add(waitDelta.Seconds())
	}
	m.lastWaitDuration = stats.WaitDuration
}

// StartDBStatsCollector starts a goroutine that periodically collects database
// connection pool statistics and updates the corresponding metrics.
// The interval specifies how often to collect stats.
// This method is idempotent - calling it multiple times has no effect after the first call.
// Call Shutdown() to stop the collector.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}

	// Prevent spawning multiple collectors
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in DB stats collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.CollectDBStats(db)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// WriteTextfile atomically writes every registered metric to path in the
// Prometheus text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

// Shutdown stops the DB stats collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
