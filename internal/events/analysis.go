package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lendingrisk/internal/domain/healthfactor"
)

// headlineScenario is carried in the completed event
const headlineScenario = "drop_10_percent"

// AnalysisCompleted is the compact result published after every successful run
type AnalysisCompleted struct {
	EventID            string          `json:"event_id"`
	ChainID            string          `json:"chain_id"`
	SnapshotTime       time.Time       `json:"snapshot_time"`
	TotalUsers         int             `json:"total_users"`
	UsersWithDebt      int             `json:"users_with_debt"`
	UsersAtRisk        int             `json:"users_at_risk"`
	UsersExcluded      int             `json:"users_excluded"`
	TotalCollateralUSD decimal.Decimal `json:"total_collateral_usd"`
	TotalDebtUSD       decimal.Decimal `json:"total_debt_usd"`

	// nil when the chain has no reference asset
	LiquidatableAt10Pct *int `json:"liquidatable_at_10pct"`
}

// NewAnalysisCompleted builds the event from an analysis
func NewAnalysisCompleted(a *healthfactor.Analysis) AnalysisCompleted {
	s := a.Summary
	e := AnalysisCompleted{
		EventID:            uuid.NewString(),
		ChainID:            s.ChainID,
		SnapshotTime:       s.DataSource.SnapshotTimeUTC,
		TotalUsers:         s.TotalUsers,
		UsersWithDebt:      s.UsersWithDebt,
		UsersAtRisk:        s.UsersAtRisk,
		UsersExcluded:      s.UsersExcluded,
		TotalCollateralUSD: s.TotalCollateralUSD,
		TotalDebtUSD:       s.TotalDebtUSD,
	}
	if sim, ok := a.Simulation[headlineScenario]; ok && sim != nil {
		n := sim.UsersLiquidatable
		e.LiquidatableAt10Pct = &n
	}
	return e
}

// AnalysisRequest asks the workers to run an analysis for a chain now
type AnalysisRequest struct {
	ChainID     string    `json:"chain_id"`
	RequestedAt time.Time `json:"requested_at"`
}
