package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"lendingrisk/internal/domain/reserve"
	"lendingrisk/internal/metrics"
	"lendingrisk/pkg/errors"
)

// Compile-time check
var _ reserve.Repository = (*ReserveSnapshotRepository)(nil)

// ReserveSnapshotRepository implements reserve.Repository using sqlx
type ReserveSnapshotRepository struct {
	db DBTX
}

// NewReserveSnapshotRepository creates a new reserve snapshot repository
func NewReserveSnapshotRepository(db DBTX) *ReserveSnapshotRepository {
	return &ReserveSnapshotRepository{db: db}
}

// snapshotRow flattens the rate model into nullable columns
type snapshotRow struct {
	reserve.Snapshot
	OptimalUtilizationRate decimal.NullDecimal `db:"optimal_utilization_rate"`
	BaseVariableBorrowRate decimal.NullDecimal `db:"base_variable_borrow_rate"`
	VariableRateSlope1     decimal.NullDecimal `db:"variable_rate_slope1"`
	VariableRateSlope2     decimal.NullDecimal `db:"variable_rate_slope2"`
}

func toRow(s reserve.Snapshot) snapshotRow {
	row := snapshotRow{Snapshot: s}
	if m := s.RateModel; m != nil {
		row.OptimalUtilizationRate = decimal.NewNullDecimal(m.OptimalUtilization)
		row.BaseVariableBorrowRate = decimal.NewNullDecimal(m.BaseVariableBorrowRate)
		row.VariableRateSlope1 = decimal.NewNullDecimal(m.Slope1)
		row.VariableRateSlope2 = decimal.NewNullDecimal(m.Slope2)
	}
	return row
}

func (row snapshotRow) toSnapshot() reserve.Snapshot {
	s := row.Snapshot
	s.TimestampHour = s.TimestampHour.UTC()
	if row.OptimalUtilizationRate.Valid {
		s.RateModel = &reserve.RateModel{
			OptimalUtilization:     row.OptimalUtilizationRate.Decimal,
			BaseVariableBorrowRate: row.BaseVariableBorrowRate.Decimal,
			Slope1:                 row.VariableRateSlope1.Decimal,
			Slope2:                 row.VariableRateSlope2.Decimal,
		}
	}
	return s
}

const snapshotColumns = `
	timestamp_hour, chain_id, market_id, asset_symbol, asset_address,
	borrow_cap, supply_cap, supplied_amount, supplied_value_usd,
	borrowed_amount, borrowed_value_usd, utilization, available_liquidity, price_usd,
	optimal_utilization_rate, base_variable_borrow_rate, variable_rate_slope1, variable_rate_slope2,
	created_at`

// UpsertSnapshots writes snapshots idempotently and returns how many rows were touched
func (r *ReserveSnapshotRepository) UpsertSnapshots(ctx context.Context, snapshots []reserve.Snapshot) (n int, err error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "upsert_reserve_snapshots", time.Since(start), err) }()

	query := `
		INSERT INTO reserve_snapshots (
			timestamp_hour, chain_id, market_id, asset_symbol, asset_address,
			borrow_cap, supply_cap, supplied_amount, supplied_value_usd,
			borrowed_amount, borrowed_value_usd, utilization, available_liquidity, price_usd,
			optimal_utilization_rate, base_variable_borrow_rate, variable_rate_slope1, variable_rate_slope2
		) VALUES (
			:timestamp_hour, :chain_id, :market_id, :asset_symbol, :asset_address,
			:borrow_cap, :supply_cap, :supplied_amount, :supplied_value_usd,
			:borrowed_amount, :borrowed_value_usd, :utilization, :available_liquidity, :price_usd,
			:optimal_utilization_rate, :base_variable_borrow_rate, :variable_rate_slope1, :variable_rate_slope2
		)
		ON CONFLICT (timestamp_hour, chain_id, market_id, asset_address) DO UPDATE SET
			asset_symbol = EXCLUDED.asset_symbol,
			borrow_cap = EXCLUDED.borrow_cap,
			supply_cap = EXCLUDED.supply_cap,
			supplied_amount = EXCLUDED.supplied_amount,
			supplied_value_usd = EXCLUDED.supplied_value_usd,
			borrowed_amount = EXCLUDED.borrowed_amount,
			borrowed_value_usd = EXCLUDED.borrowed_value_usd,
			utilization = EXCLUDED.utilization,
			available_liquidity = EXCLUDED.available_liquidity,
			price_usd = EXCLUDED.price_usd,
			optimal_utilization_rate = EXCLUDED.optimal_utilization_rate,
			base_variable_borrow_rate = EXCLUDED.base_variable_borrow_rate,
			variable_rate_slope1 = EXCLUDED.variable_rate_slope1,
			variable_rate_slope2 = EXCLUDED.variable_rate_slope2`

	for _, s := range snapshots {
		res, err := r.db.NamedExecContext(ctx, query, toRow(s))
		if err != nil {
			return n, errors.Wrapf(err, "failed to upsert reserve snapshot: %s/%s/%s", s.ChainID, s.MarketID, s.AssetAddress)
		}
		affected, _ := res.RowsAffected()
		n += int(affected)
	}
	return n, nil
}

// GetHistory returns snapshots from the given hour onwards, oldest first
func (r *ReserveSnapshotRepository) GetHistory(ctx context.Context, chainID, marketID, assetAddress string, from time.Time) (_ []reserve.Snapshot, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "get_reserve_history", time.Since(start), err) }()

	var rows []snapshotRow
	query := `SELECT ` + snapshotColumns + `
		FROM reserve_snapshots
		WHERE chain_id = $1 AND market_id = $2 AND asset_address = LOWER($3) AND timestamp_hour >= $4
		ORDER BY timestamp_hour ASC`

	if err = r.db.SelectContext(ctx, &rows, query, chainID, marketID, assetAddress, from); err != nil {
		return nil, errors.Wrapf(err, "failed to get reserve history: %s/%s/%s", chainID, marketID, assetAddress)
	}

	snapshots := make([]reserve.Snapshot, len(rows))
	for i, row := range rows {
		snapshots[i] = row.toSnapshot()
	}
	return snapshots, nil
}

// GetLatest returns the newest snapshot of an asset
func (r *ReserveSnapshotRepository) GetLatest(ctx context.Context, chainID, marketID, assetAddress string) (_ *reserve.Snapshot, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "get_latest_reserve", time.Since(start), err) }()

	var row snapshotRow
	query := `SELECT ` + snapshotColumns + `
		FROM reserve_snapshots
		WHERE chain_id = $1 AND market_id = $2 AND asset_address = LOWER($3)
		ORDER BY timestamp_hour DESC
		LIMIT 1`

	if err = r.db.GetContext(ctx, &row, query, chainID, marketID, assetAddress); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "no reserve snapshot for %s/%s/%s", chainID, marketID, assetAddress)
		}
		return nil, errors.Wrapf(err, "failed to get latest reserve snapshot: %s/%s/%s", chainID, marketID, assetAddress)
	}

	s := row.toSnapshot()
	return &s, nil
}
