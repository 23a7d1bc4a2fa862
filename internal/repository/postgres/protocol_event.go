package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"

	"lendingrisk/internal/domain/event"
	"lendingrisk/internal/metrics"
	"lendingrisk/pkg/errors"
)

// Compile-time check
var _ event.Repository = (*ProtocolEventRepository)(nil)

// ProtocolEventRepository implements event.Repository using sqlx
type ProtocolEventRepository struct {
	db DBTX
}

// NewProtocolEventRepository creates a new protocol event repository
func NewProtocolEventRepository(db DBTX) *ProtocolEventRepository {
	return &ProtocolEventRepository{db: db}
}

const eventColumns = `
	id, chain_id, event_type, timestamp,
	timestamp_hour, timestamp_day, timestamp_week, timestamp_month,
	tx_hash, user_address, liquidator_address,
	asset_address, asset_symbol, asset_decimals, amount, amount_usd,
	collateral_asset_address, collateral_asset_symbol, collateral_amount,
	borrow_rate, metadata, created_at`

// InsertEvents stores new events and returns how many were actually inserted.
// Events whose ID is already stored are skipped.
func (r *ProtocolEventRepository) InsertEvents(ctx context.Context, events []event.ProtocolEvent) (n int, err error) {
	if len(events) == 0 {
		return 0, nil
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "insert_protocol_events", time.Since(start), err) }()

	query := `
		INSERT INTO protocol_events (
			id, chain_id, event_type, timestamp,
			timestamp_hour, timestamp_day, timestamp_week, timestamp_month,
			tx_hash, user_address, liquidator_address,
			asset_address, asset_symbol, asset_decimals, amount, amount_usd,
			collateral_asset_address, collateral_asset_symbol, collateral_amount,
			borrow_rate, metadata
		) VALUES (
			:id, :chain_id, :event_type, :timestamp,
			:timestamp_hour, :timestamp_day, :timestamp_week, :timestamp_month,
			:tx_hash, :user_address, :liquidator_address,
			:asset_address, :asset_symbol, :asset_decimals, :amount, :amount_usd,
			:collateral_asset_address, :collateral_asset_symbol, :collateral_amount,
			:borrow_rate, :metadata
		)
		ON CONFLICT (id) DO NOTHING`

	for _, e := range events {
		res, err := r.db.NamedExecContext(ctx, query, e)
		if err != nil {
			return n, errors.Wrapf(err, "failed to insert protocol event: %s", e.ID)
		}
		affected, _ := res.RowsAffected()
		n += int(affected)
	}
	return n, nil
}

// GetAssetEvents returns the q.Limit newest and the earliest oldest events of an asset,
// plus the total matching count
func (r *ProtocolEventRepository) GetAssetEvents(ctx context.Context, q event.AssetQuery, earliest int) (_ *event.AssetEvents, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "get_asset_events", time.Since(start), err) }()

	types := make([]string, len(q.Types))
	for i, t := range q.Types {
		types[i] = string(t)
	}
	// an empty array disables the type filter
	where := `
		WHERE chain_id = $1 AND asset_address = LOWER($2)
		  AND (cardinality($3::text[]) = 0 OR event_type = ANY($3::text[]))`
	args := []interface{}{q.ChainID, q.AssetAddress, pq.Array(types)}

	out := &event.AssetEvents{
		ChainID:      q.ChainID,
		AssetAddress: q.AssetAddress,
		TypeFilter:   q.Types,
		Latest:       []event.ProtocolEvent{},
		Earliest:     []event.ProtocolEvent{},
	}

	if err = r.db.SelectContext(ctx, &out.Latest,
		`SELECT `+eventColumns+` FROM protocol_events`+where+` ORDER BY timestamp DESC, id LIMIT $4`,
		append(args, q.Limit)...); err != nil {
		return nil, errors.Wrapf(err, "failed to get latest events: %s/%s", q.ChainID, q.AssetAddress)
	}
	if err = r.db.SelectContext(ctx, &out.Earliest,
		`SELECT `+eventColumns+` FROM protocol_events`+where+` ORDER BY timestamp ASC, id LIMIT $4`,
		append(args, earliest)...); err != nil {
		return nil, errors.Wrapf(err, "failed to get earliest events: %s/%s", q.ChainID, q.AssetAddress)
	}
	if err = r.db.GetContext(ctx, &out.TotalMatching, `SELECT COUNT(*) FROM protocol_events`+where, args...); err != nil {
		return nil, errors.Wrapf(err, "failed to count events: %s/%s", q.ChainID, q.AssetAddress)
	}
	return out, nil
}

// GetAssetStats aggregates the stored events of an asset per kind and overall
func (r *ProtocolEventRepository) GetAssetStats(ctx context.Context, chainID, assetAddress string) (_ *event.AssetStats, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "get_asset_event_stats", time.Since(start), err) }()

	stats := &event.AssetStats{ChainID: chainID, AssetAddress: assetAddress, ByEventType: []event.TypeStats{}}

	if err = r.db.SelectContext(ctx, &stats.ByEventType, `
		SELECT
			event_type,
			COUNT(*) AS count,
			COUNT(DISTINCT user_address) AS unique_users,
			COUNT(DISTINCT timestamp_day) AS unique_days,
			MIN(timestamp) AS min_timestamp,
			MAX(timestamp) AS max_timestamp,
			COALESCE(SUM(amount), 0) AS total_amount,
			COALESCE(SUM(amount_usd), 0) AS total_usd
		FROM protocol_events
		WHERE chain_id = $1 AND asset_address = LOWER($2)
		GROUP BY event_type
		ORDER BY count DESC, event_type`, chainID, assetAddress); err != nil {
		return nil, errors.Wrapf(err, "failed to get event stats: %s/%s", chainID, assetAddress)
	}

	var overall struct {
		Total       int    `db:"total_events"`
		UniqueUsers int    `db:"unique_users"`
		UniqueDays  int    `db:"unique_days"`
		Min         *int64 `db:"min_timestamp"`
		Max         *int64 `db:"max_timestamp"`
	}
	if err = r.db.GetContext(ctx, &overall, `
		SELECT
			COUNT(*) AS total_events,
			COUNT(DISTINCT user_address) AS unique_users,
			COUNT(DISTINCT timestamp_day) AS unique_days,
			MIN(timestamp) AS min_timestamp,
			MAX(timestamp) AS max_timestamp
		FROM protocol_events
		WHERE chain_id = $1 AND asset_address = LOWER($2)`, chainID, assetAddress); err != nil {
		return nil, errors.Wrapf(err, "failed to get overall event stats: %s/%s", chainID, assetAddress)
	}

	stats.TotalEvents = overall.Total
	stats.UniqueUsers = overall.UniqueUsers
	stats.UniqueDays = overall.UniqueDays
	stats.MinTimestamp = overall.Min
	stats.MaxTimestamp = overall.Max
	return stats, nil
}

// CountByType counts the stored events of a chain per kind
func (r *ProtocolEventRepository) CountByType(ctx context.Context, chainID string) (_ map[event.Type]int, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "count_protocol_events", time.Since(start), err) }()

	var rows []struct {
		EventType event.Type `db:"event_type"`
		Count     int        `db:"count"`
	}
	if err = r.db.SelectContext(ctx, &rows, `
		SELECT event_type, COUNT(*) AS count
		FROM protocol_events
		WHERE chain_id = $1
		GROUP BY event_type`, chainID); err != nil {
		return nil, errors.Wrapf(err, "failed to count events: %s", chainID)
	}

	counts := make(map[event.Type]int, len(rows))
	for _, row := range rows {
		counts[row.EventType] = row.Count
	}
	return counts, nil
}
