package healthfactor

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Calculator turns positions into per-user health factors.
//
//	HF = Σ(collateral_usd × liquidation_threshold) / Σ(debt_usd)
//
// Only collateral-enabled positions count towards collateral; every
// position counts towards debt.
type Calculator struct{}

// NewCalculator creates a new calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute groups positions by user and returns one result per user,
// ordered by address. Positions keep their input order inside a user.
func (c *Calculator) Compute(positions []UserPosition) ([]UserHealthFactor, error) {
	byUser := make(map[string][]UserPosition)
	for i, p := range positions {
		if err := validatePosition(i, p); err != nil {
			return nil, err
		}
		byUser[p.UserAddress] = append(byUser[p.UserAddress], p)
	}

	addresses := make([]string, 0, len(byUser))
	for addr := range byUser {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	result := make([]UserHealthFactor, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, c.computeUser(addr, byUser[addr]))
	}
	return result, nil
}

func (c *Calculator) computeUser(address string, positions []UserPosition) UserHealthFactor {
	collateral := decimal.Zero
	weighted := decimal.Zero
	debt := decimal.Zero

	for _, p := range positions {
		if p.IsCollateralEnabled {
			collateral = collateral.Add(p.CollateralUSD)
			weighted = weighted.Add(p.CollateralUSD.Mul(p.LiquidationThreshold))
		}
		debt = debt.Add(p.DebtUSD)
	}

	u := UserHealthFactor{
		UserAddress:           address,
		TotalCollateralUSD:    collateral,
		WeightedCollateralUSD: weighted,
		TotalDebtUSD:          debt,
		Positions:             positions,
	}
	if hf := ratio(weighted, debt); hf != nil {
		u.HealthFactor = hf
		u.IsLiquidatable = u.below(one)
	}
	return u
}

// hfPrecision keeps the reported ratio readable near band edges; tiers are
// decided by UserHealthFactor.below, never by this value.
const hfPrecision = 30

// ratio returns nil for zero debt. Zero weighted collateral with debt yields 0.
func ratio(weighted, debt decimal.Decimal) *decimal.Decimal {
	if !debt.IsPositive() {
		return nil
	}
	hf := weighted.DivRound(debt, hfPrecision)
	return &hf
}

// compareHF orders two indebted users by health factor exactly,
// comparing w1 × d2 with w2 × d1.
func compareHF(a, b UserHealthFactor) int {
	return a.WeightedCollateralUSD.Mul(b.TotalDebtUSD).Cmp(b.WeightedCollateralUSD.Mul(a.TotalDebtUSD))
}
