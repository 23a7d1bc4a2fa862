package reserve

import (
	"context"
	"time"
)

// Repository stores hourly reserve snapshots.
// Upserts are keyed by (timestamp_hour, chain_id, market_id, asset_address).
type Repository interface {
	UpsertSnapshots(ctx context.Context, snapshots []Snapshot) (int, error)
	GetHistory(ctx context.Context, chainID, marketID, assetAddress string, from time.Time) ([]Snapshot, error)
	GetLatest(ctx context.Context, chainID, marketID, assetAddress string) (*Snapshot, error)
}

// SnapshotSource reads current reserve state from the indexer
type SnapshotSource interface {
	FetchReserveSnapshots(ctx context.Context, market Market, at time.Time) ([]Snapshot, error)
}
