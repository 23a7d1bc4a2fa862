package event

import (
	"context"
	"time"
)

// Repository stores protocol events. Inserts are keyed by event ID and
// silently skip events already stored.
type Repository interface {
	InsertEvents(ctx context.Context, events []ProtocolEvent) (int, error)
	GetAssetEvents(ctx context.Context, q AssetQuery, earliest int) (*AssetEvents, error)
	GetAssetStats(ctx context.Context, chainID, assetAddress string) (*AssetStats, error)
	CountByType(ctx context.Context, chainID string) (map[Type]int, error)
}

// Source pages events of one kind newer than from, oldest first.
// handle is called once per page; an error from it stops the fetch.
type Source interface {
	FetchEvents(ctx context.Context, chainID string, t Type, from time.Time, handle func([]ProtocolEvent) error) error
}
