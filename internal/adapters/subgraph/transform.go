package subgraph

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/domain/reserve"
	"lendingrisk/pkg/errors"
)

// Fixed-point scales used by the indexer
const (
	priceExp = -8  // priceInUsd
	bpsExp   = -4  // LTV, threshold, bonus
	rayExp   = -27 // rate strategy
)

type rawPrice struct {
	PriceInUsd decimal.NullDecimal `json:"priceInUsd"`
}

type rawReserve struct {
	Symbol                      string              `json:"symbol"`
	UnderlyingAsset             string              `json:"underlyingAsset"`
	Decimals                    *int                `json:"decimals"`
	BaseLTVasCollateral         decimal.NullDecimal `json:"baseLTVasCollateral"`
	ReserveLiquidationThreshold decimal.NullDecimal `json:"reserveLiquidationThreshold"`
	ReserveLiquidationBonus     decimal.NullDecimal `json:"reserveLiquidationBonus"`
	UsageAsCollateralEnabled    bool                `json:"usageAsCollateralEnabled"`
	Price                       *rawPrice           `json:"price"`

	TotalLiquidity           decimal.NullDecimal `json:"totalLiquidity"`
	AvailableLiquidity       decimal.NullDecimal `json:"availableLiquidity"`
	TotalCurrentVariableDebt decimal.NullDecimal `json:"totalCurrentVariableDebt"`
	TotalPrincipalStableDebt decimal.NullDecimal `json:"totalPrincipalStableDebt"`
	BorrowCap                decimal.NullDecimal `json:"borrowCap"`
	SupplyCap                decimal.NullDecimal `json:"supplyCap"`
	OptimalUtilisationRate   decimal.NullDecimal `json:"optimalUtilisationRate"`
	BaseVariableBorrowRate   decimal.NullDecimal `json:"baseVariableBorrowRate"`
	VariableRateSlope1       decimal.NullDecimal `json:"variableRateSlope1"`
	VariableRateSlope2       decimal.NullDecimal `json:"variableRateSlope2"`
	LastUpdateTimestamp      int64               `json:"lastUpdateTimestamp"`
}

type rawUser struct {
	ID string `json:"id"`
}

type rawUserReserve struct {
	ID                             string              `json:"id"`
	User                           *rawUser            `json:"user"`
	Reserve                        *rawReserve         `json:"reserve"`
	CurrentATokenBalance           decimal.NullDecimal `json:"currentATokenBalance"`
	CurrentVariableDebt            decimal.NullDecimal `json:"currentVariableDebt"`
	CurrentStableDebt              decimal.NullDecimal `json:"currentStableDebt"`
	UsageAsCollateralEnabledOnUser bool                `json:"usageAsCollateralEnabledOnUser"`
}

func missing(field string) error {
	return errors.NewValidationError(field, "missing required field", nil)
}

func required(v decimal.NullDecimal, field string) (decimal.Decimal, error) {
	if !v.Valid {
		return decimal.Zero, missing(field)
	}
	return v.Decimal, nil
}

func optional(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}

// priceUSD returns the oracle price, or false when the reserve has none
func (r *rawReserve) priceUSD() (decimal.Decimal, bool) {
	if r.Price == nil || !r.Price.PriceInUsd.Valid {
		return decimal.Zero, false
	}
	p := r.Price.PriceInUsd.Decimal.Shift(priceExp)
	return p, p.IsPositive()
}

func (r *rawReserve) identity() (symbol, address string, decimals int, err error) {
	if r.Symbol == "" {
		return "", "", 0, missing("reserve.symbol")
	}
	if r.UnderlyingAsset == "" {
		return "", "", 0, missing("reserve.underlyingAsset")
	}
	if r.Decimals == nil {
		return "", "", 0, missing("reserve.decimals")
	}
	return r.Symbol, strings.ToLower(r.UnderlyingAsset), *r.Decimals, nil
}

// liquidationBonus converts the indexer's 10500-style bonus into the premium
// over repaid debt (0.05). Reserves without a bonus report 0.
func liquidationBonus(raw decimal.Decimal) decimal.Decimal {
	if raw.IsZero() {
		return decimal.Zero
	}
	bonus := raw.Shift(bpsExp).Sub(decimal.NewFromInt(1))
	if bonus.IsNegative() {
		return decimal.Zero
	}
	return bonus
}

// toReserveConfig converts one reserve record. ok is false when it has no price.
func toReserveConfig(r *rawReserve) (cfg healthfactor.ReserveConfig, ok bool, err error) {
	symbol, address, decimals, err := r.identity()
	if err != nil {
		return cfg, false, err
	}
	price, ok := r.priceUSD()
	if !ok {
		return cfg, false, nil
	}
	ltv, err := required(r.BaseLTVasCollateral, "reserve.baseLTVasCollateral")
	if err != nil {
		return cfg, false, err
	}
	threshold, err := required(r.ReserveLiquidationThreshold, "reserve.reserveLiquidationThreshold")
	if err != nil {
		return cfg, false, err
	}

	return healthfactor.ReserveConfig{
		Symbol:               symbol,
		Address:              address,
		PriceUSD:             price,
		LTV:                  ltv.Shift(bpsExp),
		LiquidationThreshold: threshold.Shift(bpsExp),
		LiquidationBonus:     liquidationBonus(optional(r.ReserveLiquidationBonus)),
		Decimals:             decimals,
	}, true, nil
}

// toPosition values one user reserve in USD. ok is false when the reserve has no price.
func toPosition(ur rawUserReserve) (pos healthfactor.UserPosition, ok bool, err error) {
	if ur.User == nil || ur.User.ID == "" {
		return pos, false, missing("user.id")
	}
	if ur.Reserve == nil {
		return pos, false, missing("reserve")
	}
	cfg, ok, err := toReserveConfig(ur.Reserve)
	if err != nil || !ok {
		return pos, false, err
	}

	scale := int32(-cfg.Decimals)
	collateral := optional(ur.CurrentATokenBalance).Shift(scale).Mul(cfg.PriceUSD)
	debt := optional(ur.CurrentVariableDebt).Add(optional(ur.CurrentStableDebt)).Shift(scale).Mul(cfg.PriceUSD)

	return healthfactor.UserPosition{
		UserAddress:          strings.ToLower(ur.User.ID),
		AssetSymbol:          cfg.Symbol,
		AssetAddress:         cfg.Address,
		CollateralUSD:        collateral,
		DebtUSD:              debt,
		LiquidationThreshold: cfg.LiquidationThreshold,
		IsCollateralEnabled:  ur.UsageAsCollateralEnabledOnUser && ur.Reserve.UsageAsCollateralEnabled,
	}, true, nil
}

// toReserveSnapshot converts reserve state into an hourly snapshot
func toReserveSnapshot(r *rawReserve, chainID, marketID string, at time.Time) (reserve.Snapshot, error) {
	symbol, address, decimals, err := r.identity()
	if err != nil {
		return reserve.Snapshot{}, err
	}
	liquidity, err := required(r.TotalLiquidity, "reserve.totalLiquidity")
	if err != nil {
		return reserve.Snapshot{}, err
	}
	variable, err := required(r.TotalCurrentVariableDebt, "reserve.totalCurrentVariableDebt")
	if err != nil {
		return reserve.Snapshot{}, err
	}

	scale := int32(-decimals)
	supplied := liquidity.Shift(scale)
	borrowed := variable.Add(optional(r.TotalPrincipalStableDebt)).Shift(scale)

	var price decimal.NullDecimal
	if p, ok := r.priceUSD(); ok {
		price = decimal.NewNullDecimal(p)
	}

	if at.IsZero() {
		at = time.Unix(r.LastUpdateTimestamp, 0)
	}

	s := reserve.NewSnapshot(chainID, marketID, reserve.Asset{Symbol: symbol, Address: address}, at, supplied, borrowed, price)
	s.BorrowCap = optional(r.BorrowCap)
	s.SupplyCap = optional(r.SupplyCap)
	if r.AvailableLiquidity.Valid {
		s.AvailableLiquidity = decimal.NewNullDecimal(r.AvailableLiquidity.Decimal.Shift(scale))
	}
	if r.OptimalUtilisationRate.Valid {
		s.RateModel = &reserve.RateModel{
			OptimalUtilization:     r.OptimalUtilisationRate.Decimal.Shift(rayExp),
			BaseVariableBorrowRate: optional(r.BaseVariableBorrowRate).Shift(rayExp),
			Slope1:                 optional(r.VariableRateSlope1).Shift(rayExp),
			Slope2:                 optional(r.VariableRateSlope2).Shift(rayExp),
		}
	}
	return s, nil
}
