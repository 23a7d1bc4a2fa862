package healthfactor

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	one           = decimal.NewFromInt(1)
	hundred       = decimal.NewFromInt(100)
	atRiskCeiling = decimal.RequireFromString("1.5")
)

// ReserveConfig holds the risk parameters and oracle price of one reserve
type ReserveConfig struct {
	Symbol               string          `json:"symbol"`
	Address              string          `json:"address"`
	PriceUSD             decimal.Decimal `json:"price_usd"`
	LTV                  decimal.Decimal `json:"ltv"`                   // 0.80 = 80%
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"` // 0.825 = 82.5%
	LiquidationBonus     decimal.Decimal `json:"liquidation_bonus"`     // 0.05 = 5% over repaid debt
	Decimals             int             `json:"decimals"`
}

// matches reports whether the position refers to this reserve.
// Addresses win when both sides carry one.
func (c ReserveConfig) matches(p UserPosition) bool {
	if c.Address != "" && p.AssetAddress != "" {
		return strings.EqualFold(c.Address, p.AssetAddress)
	}
	return strings.EqualFold(c.Symbol, p.AssetSymbol)
}

// identifiedBy reports whether asset (symbol or address) names this reserve
func (c ReserveConfig) identifiedBy(asset string) bool {
	return strings.EqualFold(c.Symbol, asset) || (c.Address != "" && strings.EqualFold(c.Address, asset))
}

// UserPosition is one user's balance in one reserve, already valued in USD
type UserPosition struct {
	UserAddress          string          `json:"user_address"`
	AssetSymbol          string          `json:"asset_symbol"`
	AssetAddress         string          `json:"asset_address"`
	CollateralUSD        decimal.Decimal `json:"collateral_usd"`
	DebtUSD              decimal.Decimal `json:"debt_usd"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
	IsCollateralEnabled  bool            `json:"is_collateral_enabled"`
}

// UserHealthFactor aggregates all positions of a user
type UserHealthFactor struct {
	UserAddress string `json:"user_address"`

	// nil when the user has no debt
	HealthFactor *decimal.Decimal `json:"health_factor"`

	TotalCollateralUSD    decimal.Decimal `json:"total_collateral_usd"` // enabled collateral only
	WeightedCollateralUSD decimal.Decimal `json:"weighted_collateral_usd"`
	TotalDebtUSD          decimal.Decimal `json:"total_debt_usd"`
	IsLiquidatable        bool            `json:"is_liquidatable"`
	Positions             []UserPosition  `json:"positions"`
}

// HasDebt reports whether the user owes anything
func (u UserHealthFactor) HasDebt() bool {
	return u.TotalDebtUSD.IsPositive()
}

// below reports HF < bound without dividing: weighted < debt × bound.
// HealthFactor is a rounded quotient and must not decide a tier.
func (u UserHealthFactor) below(bound decimal.Decimal) bool {
	return u.HasDebt() && u.WeightedCollateralUSD.LessThan(u.TotalDebtUSD.Mul(bound))
}

// IsExcluded is the single exclusion policy for the analysis: a user whose
// health factor is already below 1.0 is treated as stale or failed-liquidation
// data and kept out of at-risk counts, distribution and totals.
func IsExcluded(u UserHealthFactor) bool {
	return u.below(one)
}

// IsAtRisk reports a health factor in [1.0, 1.5)
func IsAtRisk(u UserHealthFactor) bool {
	return u.HasDebt() && !u.below(one) && u.below(atRiskCeiling)
}

// HealthFactorDistribution is one fixed risk band
type HealthFactorDistribution struct {
	Bucket             string          `json:"bucket"`
	Count              int             `json:"count"`
	TotalCollateralUSD decimal.Decimal `json:"total_collateral_usd"`
	TotalDebtUSD       decimal.Decimal `json:"total_debt_usd"`
}

// AffectedUser is a user whose post-shock health factor is at risk or liquidatable
type AffectedUser struct {
	UserAddress   string           `json:"user_address"`
	HFBefore      *decimal.Decimal `json:"hf_before"`
	HFAfter       decimal.Decimal  `json:"hf_after"`
	CollateralUSD decimal.Decimal  `json:"collateral_usd"`
	DebtUSD       decimal.Decimal  `json:"debt_usd"`
}

// LiquidationSimulation is the outcome of one price-shock scenario
type LiquidationSimulation struct {
	PriceDropPercent  decimal.Decimal `json:"price_drop_percent"`
	AssetSymbol       string          `json:"asset_symbol"`
	AssetAddress      string          `json:"asset_address"`
	OriginalPriceUSD  decimal.Decimal `json:"original_price_usd"`
	SimulatedPriceUSD decimal.Decimal `json:"simulated_price_usd"`

	UsersAtRisk              int             `json:"users_at_risk"`
	UsersLiquidatable        int             `json:"users_liquidatable"`
	TotalCollateralAtRiskUSD decimal.Decimal `json:"total_collateral_at_risk_usd"`
	TotalDebtAtRiskUSD       decimal.Decimal `json:"total_debt_at_risk_usd"`

	CloseFactor                  decimal.Decimal `json:"close_factor"`
	LiquidationBonus             decimal.Decimal `json:"liquidation_bonus"`
	EstimatedLiquidatableDebtUSD decimal.Decimal `json:"estimated_liquidatable_debt_usd"`
	EstimatedLiquidatorProfitUSD decimal.Decimal `json:"estimated_liquidator_profit_usd"`

	AffectedUsers []AffectedUser `json:"affected_users"`
}

// SimulationScenario holds the canonical shock results keyed by scenario label
// (drop_1_percent, drop_3_percent, ...)
type SimulationScenario map[string]*LiquidationSimulation

// DataSource describes where prices came from
type DataSource struct {
	PriceSource     string    `json:"price_source"`
	OracleAddress   string    `json:"oracle_address"`
	SnapshotTimeUTC time.Time `json:"snapshot_time_utc"`
}

// ReserveExposure is a reserve config with the protocol-wide value held in it
type ReserveExposure struct {
	ReserveConfig
	TotalCollateralUSD decimal.Decimal `json:"total_collateral_usd"`
	TotalDebtUSD       decimal.Decimal `json:"total_debt_usd"`
}

// HealthFactorSummary is the top-level analysis result for one chain snapshot
type HealthFactorSummary struct {
	ChainID       string     `json:"chain_id"`
	DataSource    DataSource `json:"data_source"`
	TotalUsers    int        `json:"total_users"`
	UsersWithDebt int        `json:"users_with_debt"`
	UsersAtRisk   int        `json:"users_at_risk"`
	UsersExcluded int        `json:"users_excluded"`

	// totals over users that are not excluded
	TotalCollateralUSD decimal.Decimal `json:"total_collateral_usd"`
	TotalDebtUSD       decimal.Decimal `json:"total_debt_usd"`

	ExcludedCollateralUSD decimal.Decimal `json:"excluded_collateral_usd"`
	ExcludedDebtUSD       decimal.Decimal `json:"excluded_debt_usd"`

	Distribution   []HealthFactorDistribution `json:"distribution"`
	AtRiskUsers    []UserHealthFactor         `json:"at_risk_users"`
	ReserveConfigs []ReserveExposure          `json:"reserve_configs"`
}

// Snapshot is the immutable input of one analysis run
type Snapshot struct {
	ChainID         string          `json:"chain_id"`
	SnapshotTimeUTC time.Time       `json:"snapshot_time_utc"`
	OracleAddress   string          `json:"oracle_address"`
	Positions       []UserPosition  `json:"positions"`
	ReserveConfigs  []ReserveConfig `json:"reserve_configs"`
}

// Analysis pairs a summary with the reference-asset shock scenarios.
// Simulation is nil when the snapshot has no reference asset.
type Analysis struct {
	Summary    HealthFactorSummary `json:"summary"`
	Simulation SimulationScenario  `json:"weth_simulation"`
}

// DistributionPoint is one stored distribution snapshot for trend charts
type DistributionPoint struct {
	ChainID       string                     `json:"chain_id"`
	SnapshotTime  time.Time                  `json:"snapshot_time"`
	UsersWithDebt int                        `json:"users_with_debt"`
	UsersExcluded int                        `json:"users_excluded"`
	Buckets       []HealthFactorDistribution `json:"buckets"`
}
