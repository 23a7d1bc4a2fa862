package postgres

import (
	"context"
	"encoding/json"
	"time"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/metrics"
	"lendingrisk/pkg/errors"
)

// Compile-time check
var _ healthfactor.HistoryRepository = (*DistributionRepository)(nil)

// DistributionRepository keeps the distribution history in Postgres when ClickHouse is off
type DistributionRepository struct {
	db DBTX
}

// NewDistributionRepository creates a new distribution repository
func NewDistributionRepository(db DBTX) *DistributionRepository {
	return &DistributionRepository{db: db}
}

type distributionRow struct {
	ChainID       string    `db:"chain_id"`
	SnapshotTime  time.Time `db:"snapshot_time"`
	UsersWithDebt int       `db:"users_with_debt"`
	UsersExcluded int       `db:"users_excluded"`
	Buckets       []byte    `db:"buckets"`
}

// AppendDistribution stores one point; the same snapshot is written once
func (r *DistributionRepository) AppendDistribution(ctx context.Context, point *healthfactor.DistributionPoint) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "append_distribution", time.Since(start), err) }()

	buckets, err := json.Marshal(point.Buckets)
	if err != nil {
		return errors.Wrap(err, "failed to marshal buckets")
	}

	query := `
		INSERT INTO health_factor_distributions (
			chain_id, snapshot_time, users_with_debt, users_excluded, buckets
		) VALUES (
			:chain_id, :snapshot_time, :users_with_debt, :users_excluded, :buckets
		)
		ON CONFLICT (chain_id, snapshot_time) DO UPDATE SET
			users_with_debt = EXCLUDED.users_with_debt,
			users_excluded = EXCLUDED.users_excluded,
			buckets = EXCLUDED.buckets`

	_, err = r.db.NamedExecContext(ctx, query, distributionRow{
		ChainID:       point.ChainID,
		SnapshotTime:  point.SnapshotTime,
		UsersWithDebt: point.UsersWithDebt,
		UsersExcluded: point.UsersExcluded,
		Buckets:       buckets,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to append distribution: chain_id=%s", point.ChainID)
	}
	return nil
}

// GetDistributionHistory returns up to limit points, newest first
func (r *DistributionRepository) GetDistributionHistory(ctx context.Context, chainID string, limit int) (_ []healthfactor.DistributionPoint, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "get_distribution_history", time.Since(start), err) }()

	var rows []distributionRow
	query := `
		SELECT chain_id, snapshot_time, users_with_debt, users_excluded, buckets
		FROM health_factor_distributions
		WHERE chain_id = $1
		ORDER BY snapshot_time DESC
		LIMIT $2`

	if err = r.db.SelectContext(ctx, &rows, query, chainID, limit); err != nil {
		return nil, errors.Wrapf(err, "failed to get distribution history: chain_id=%s", chainID)
	}

	points := make([]healthfactor.DistributionPoint, 0, len(rows))
	for _, row := range rows {
		p := healthfactor.DistributionPoint{
			ChainID:       row.ChainID,
			SnapshotTime:  row.SnapshotTime.UTC(),
			UsersWithDebt: row.UsersWithDebt,
			UsersExcluded: row.UsersExcluded,
		}
		if err = json.Unmarshal(row.Buckets, &p.Buckets); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal buckets: chain_id=%s", chainID)
		}
		points = append(points, p)
	}
	return points, nil
}
