package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/metrics"
	"lendingrisk/pkg/errors"
)

// Compile-time check
var _ healthfactor.Repository = (*AnalysisRepository)(nil)

// AnalysisRepository stores full analyses as JSONB next to their headline counts
type AnalysisRepository struct {
	db DBTX
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db DBTX) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// SaveAnalysis upserts on (chain_id, snapshot_time); re-saving a snapshot replaces it
func (r *AnalysisRepository) SaveAnalysis(ctx context.Context, analysis *healthfactor.Analysis) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "save_analysis", time.Since(start), err) }()

	payload, err := json.Marshal(analysis)
	if err != nil {
		return errors.Wrap(err, "failed to marshal analysis")
	}

	s := analysis.Summary
	query := `
		INSERT INTO health_factor_analyses (
			id, chain_id, snapshot_time,
			total_users, users_with_debt, users_at_risk, users_excluded,
			total_collateral_usd, total_debt_usd, payload
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (chain_id, snapshot_time) DO UPDATE SET
			total_users = EXCLUDED.total_users,
			users_with_debt = EXCLUDED.users_with_debt,
			users_at_risk = EXCLUDED.users_at_risk,
			users_excluded = EXCLUDED.users_excluded,
			total_collateral_usd = EXCLUDED.total_collateral_usd,
			total_debt_usd = EXCLUDED.total_debt_usd,
			payload = EXCLUDED.payload,
			updated_at = NOW()`

	_, err = r.db.ExecContext(ctx, query,
		uuid.New(), s.ChainID, s.DataSource.SnapshotTimeUTC,
		s.TotalUsers, s.UsersWithDebt, s.UsersAtRisk, s.UsersExcluded,
		s.TotalCollateralUSD, s.TotalDebtUSD, payload,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save analysis: chain_id=%s", s.ChainID)
	}
	return nil
}

// GetLatest returns the newest analysis of a chain
func (r *AnalysisRepository) GetLatest(ctx context.Context, chainID string) (_ *healthfactor.Analysis, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("postgres", "get_latest_analysis", time.Since(start), err) }()

	var payload []byte
	query := `
		SELECT payload FROM health_factor_analyses
		WHERE chain_id = $1
		ORDER BY snapshot_time DESC
		LIMIT 1`

	if err = r.db.GetContext(ctx, &payload, query, chainID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "no analysis for chain_id=%s", chainID)
		}
		return nil, errors.Wrapf(err, "failed to get latest analysis: chain_id=%s", chainID)
	}

	var analysis healthfactor.Analysis
	if err = json.Unmarshal(payload, &analysis); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal analysis: chain_id=%s", chainID)
	}
	return &analysis, nil
}
