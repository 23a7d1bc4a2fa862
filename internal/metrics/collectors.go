package metrics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"lendingrisk/pkg/logger"
)

// StorageCollector reports freshness of stored analyses and reserve snapshots
type StorageCollector struct {
	log      *logger.Logger
	postgres *sqlx.DB

	storedAnalyses  *prometheus.Desc
	analysisAge     *prometheus.Desc
	reserveSnapshot *prometheus.Desc
}

// NewStorageCollector creates a new collector over the Postgres store
func NewStorageCollector(log *logger.Logger, postgres *sqlx.DB) *StorageCollector {
	return &StorageCollector{
		log:      log.With("component", "metrics_collector"),
		postgres: postgres,

		storedAnalyses: prometheus.NewDesc(
			"lendingrisk_stored_analyses",
			"Number of stored analyses per chain",
			[]string{"chain_id"}, nil,
		),
		analysisAge: prometheus.NewDesc(
			"lendingrisk_latest_analysis_age_seconds",
			"Age of the newest stored analysis per chain",
			[]string{"chain_id"}, nil,
		),
		reserveSnapshot: prometheus.NewDesc(
			"lendingrisk_latest_reserve_snapshot_age_seconds",
			"Age of the newest reserve snapshot per chain",
			[]string{"chain_id"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *StorageCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.storedAnalyses
	ch <- c.analysisAge
	ch <- c.reserveSnapshot
}

// Collect implements prometheus.Collector
func (c *StorageCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectAnalyses(ctx, ch)
	c.collectReserveSnapshots(ctx, ch)
}

func (c *StorageCollector) collectAnalyses(ctx context.Context, ch chan<- prometheus.Metric) {
	type row struct {
		ChainID string    `db:"chain_id"`
		Count   int       `db:"count"`
		Latest  time.Time `db:"latest"`
	}

	var rows []row
	err := c.postgres.SelectContext(ctx, &rows, `
		SELECT chain_id, COUNT(*) AS count, MAX(snapshot_time) AS latest
		FROM health_factor_analyses
		GROUP BY chain_id
	`)
	if err != nil {
		c.log.Warnw("Failed to collect analysis stats", "error", err)
		return
	}

	for _, r := range rows {
		ch <- prometheus.MustNewConstMetric(c.storedAnalyses, prometheus.GaugeValue, float64(r.Count), r.ChainID)
		ch <- prometheus.MustNewConstMetric(c.analysisAge, prometheus.GaugeValue, time.Since(r.Latest).Seconds(), r.ChainID)
	}
}

func (c *StorageCollector) collectReserveSnapshots(ctx context.Context, ch chan<- prometheus.Metric) {
	type row struct {
		ChainID string    `db:"chain_id"`
		Latest  time.Time `db:"latest"`
	}

	var rows []row
	err := c.postgres.SelectContext(ctx, &rows, `
		SELECT chain_id, MAX(timestamp_hour) AS latest
		FROM reserve_snapshots
		GROUP BY chain_id
	`)
	if err != nil {
		c.log.Warnw("Failed to collect reserve snapshot stats", "error", err)
		return
	}

	for _, r := range rows {
		ch <- prometheus.MustNewConstMetric(c.reserveSnapshot, prometheus.GaugeValue, time.Since(r.Latest).Seconds(), r.ChainID)
	}
}

// RegisterStorageCollector registers the collector with the default registry
func RegisterStorageCollector(collector *StorageCollector) {
	prometheus.MustRegister(collector)
}
