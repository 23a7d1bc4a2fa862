package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/metrics"
	"lendingrisk/pkg/errors"
)

// Compile-time check
var _ healthfactor.HistoryRepository = (*DistributionRepository)(nil)

// DistributionRepository stores one row per (snapshot, band) for trend charts
type DistributionRepository struct {
	conn driver.Conn
}

// NewDistributionRepository creates a new distribution repository
func NewDistributionRepository(conn driver.Conn) *DistributionRepository {
	return &DistributionRepository{conn: conn}
}

type bucketRow struct {
	ChainID            string    `ch:"chain_id"`
	SnapshotTime       time.Time `ch:"snapshot_time"`
	Bucket             string    `ch:"bucket"`
	BucketIndex        uint8     `ch:"bucket_index"`
	Users              uint32    `ch:"users"`
	TotalCollateralUSD float64   `ch:"total_collateral_usd"`
	TotalDebtUSD       float64   `ch:"total_debt_usd"`
	UsersWithDebt      uint32    `ch:"users_with_debt"`
	UsersExcluded      uint32    `ch:"users_excluded"`
}

// AppendDistribution inserts the point's bands in one batch.
// ReplacingMergeTree collapses a re-appended snapshot.
func (r *DistributionRepository) AppendDistribution(ctx context.Context, point *healthfactor.DistributionPoint) (err error) {
	if len(point.Buckets) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("clickhouse", "append_distribution", time.Since(start), err) }()

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO health_factor_distribution (
			chain_id, snapshot_time, bucket, bucket_index, users,
			total_collateral_usd, total_debt_usd, users_with_debt, users_excluded
		)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare distribution batch")
	}

	for i, b := range point.Buckets {
		collateral, _ := b.TotalCollateralUSD.Float64()
		debt, _ := b.TotalDebtUSD.Float64()
		err = batch.Append(
			point.ChainID, point.SnapshotTime.UTC(), b.Bucket, uint8(i), uint32(b.Count),
			collateral, debt, uint32(point.UsersWithDebt), uint32(point.UsersExcluded),
		)
		if err != nil {
			return errors.Wrapf(err, "failed to append bucket %s", b.Bucket)
		}
	}

	if err = batch.Send(); err != nil {
		return errors.Wrapf(err, "failed to send distribution batch: chain_id=%s", point.ChainID)
	}
	return nil
}

// GetDistributionHistory returns the newest limit snapshots, newest first
func (r *DistributionRepository) GetDistributionHistory(ctx context.Context, chainID string, limit int) (_ []healthfactor.DistributionPoint, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("clickhouse", "get_distribution_history", time.Since(start), err) }()

	var rows []bucketRow
	query := `
		SELECT
			chain_id, snapshot_time, bucket, bucket_index, users,
			total_collateral_usd, total_debt_usd, users_with_debt, users_excluded
		FROM health_factor_distribution FINAL
		WHERE chain_id = $1 AND snapshot_time IN (
			SELECT DISTINCT snapshot_time FROM health_factor_distribution
			WHERE chain_id = $1
			ORDER BY snapshot_time DESC
			LIMIT $2
		)
		ORDER BY snapshot_time DESC, bucket_index ASC`

	if err = r.conn.Select(ctx, &rows, query, chainID, limit); err != nil {
		return nil, errors.Wrapf(err, "failed to query distribution history: chain_id=%s", chainID)
	}
	return groupPoints(rows), nil
}

// groupPoints folds band rows (already ordered by time then band) into points
func groupPoints(rows []bucketRow) []healthfactor.DistributionPoint {
	var points []healthfactor.DistributionPoint
	for _, row := range rows {
		t := row.SnapshotTime.UTC()
		if len(points) == 0 || !points[len(points)-1].SnapshotTime.Equal(t) {
			points = append(points, healthfactor.DistributionPoint{
				ChainID:       row.ChainID,
				SnapshotTime:  t,
				UsersWithDebt: int(row.UsersWithDebt),
				UsersExcluded: int(row.UsersExcluded),
			})
		}
		p := &points[len(points)-1]
		p.Buckets = append(p.Buckets, healthfactor.HealthFactorDistribution{
			Bucket:             row.Bucket,
			Count:              int(row.Users),
			TotalCollateralUSD: decimal.NewFromFloat(row.TotalCollateralUSD),
			TotalDebtUSD:       decimal.NewFromFloat(row.TotalDebtUSD),
		})
	}
	return points
}
