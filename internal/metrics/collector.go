// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records the engine's Prometheus metrics.
type Collector struct {
	// collection runs
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// per-family artifact outcomes
	artifactsCollected *prometheus.CounterVec
	artifactsSkipped   *prometheus.CounterVec
	artifactFailures   *prometheus.CounterVec

	// recorder pipeline
	recorderBatches   prometheus.Gauge
	recorderCommitted prometheus.Gauge
	recorderFailed    prometheus.Gauge
	batchEfficiency   prometheus.Gauge

	// database pool
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector creates the metric set under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_runs_total",
			Help:      "Total number of collection runs per metric family",
		},
		[]string{"family", "status"},
	)

	c.runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collection_run_duration_seconds",
			Help:      "Collection run duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"family"},
	)

	c.artifactsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_collected_total",
			Help:      "Artifacts fully collected and committed",
		},
		[]string{"family"},
	)

	c.artifactsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_skipped_total",
			Help:      "Artifacts skipped (nothing to collect)",
		},
		[]string{"family"},
	)

	c.artifactFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_failures_total",
			Help:      "Artifacts whose collection failed",
		},
		[]string{"family"},
	)

	c.recorderBatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "recorder_batches",
		Help:      "Batches flushed by the event recorder",
	})

	c.recorderCommitted = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "recorder_events_committed",
		Help:      "Events durably committed by the event recorder",
	})

	c.recorderFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "recorder_events_failed",
		Help:      "Events whose write failed",
	})

	c.batchEfficiency = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "recorder_batch_efficiency",
		Help:      "Events resolved per flushed batch",
	})

	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordRun records one finished collection run for a family.
func (c *Collector) RecordRun(family, status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(family, status).Inc()
	c.runDuration.WithLabelValues(family).Observe(duration.Seconds())
}

// RecordOutcome records the per-artifact tallies of one group outcome.
func (c *Collector) RecordOutcome(family string, collected, skipped, failed int) {
	c.artifactsCollected.WithLabelValues(family).Add(float64(collected))
	c.artifactsSkipped.WithLabelValues(family).Add(float64(skipped))
	c.artifactFailures.WithLabelValues(family).Add(float64(failed))
}

// SetRecorderStats publishes the event recorder's cumulative counters.
func (c *Collector) SetRecorderStats(batches, committed, failed int64, efficiency float64) {
	c.recorderBatches.Set(float64(batches))
	c.recorderCommitted.Set(float64(committed))
	c.recorderFailed.Set(float64(failed))
	c.batchEfficiency.Set(efficiency)
}

// RecordDBConnections publishes connection pool occupancy.
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}
