package healthfactor

import (
	"context"
	"time"
)

// SnapshotSource fetches an immutable positions/configs snapshot for a chain
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, chainID string) (*Snapshot, error)
}

// Repository persists analysis results keyed by (chain_id, snapshot_time)
type Repository interface {
	SaveAnalysis(ctx context.Context, analysis *Analysis) error
	GetLatest(ctx context.Context, chainID string) (*Analysis, error)
}

// HistoryRepository stores distribution snapshots for trend charts
type HistoryRepository interface {
	AppendDistribution(ctx context.Context, point *DistributionPoint) error
	// GetDistributionHistory returns at most limit points, newest first
	GetDistributionHistory(ctx context.Context, chainID string, limit int) ([]DistributionPoint, error)
}

// Cache holds the latest analysis per chain for fast reads
type Cache interface {
	SetLatest(ctx context.Context, analysis *Analysis, ttl time.Duration) error
	GetLatest(ctx context.Context, chainID string) (*Analysis, error)

	// AcquireRunLock returns false when another run for the chain holds the lock
	AcquireRunLock(ctx context.Context, chainID string, ttl time.Duration) (bool, error)
	ReleaseRunLock(ctx context.Context, chainID string) error
}

// NewDistributionPoint extracts the history row from a summary
func NewDistributionPoint(s HealthFactorSummary) *DistributionPoint {
	buckets := make([]HealthFactorDistribution, len(s.Distribution))
	copy(buckets, s.Distribution)
	return &DistributionPoint{
		ChainID:       s.ChainID,
		SnapshotTime:  s.DataSource.SnapshotTimeUTC,
		UsersWithDebt: s.UsersWithDebt,
		UsersExcluded: s.UsersExcluded,
		Buckets:       buckets,
	}
}
