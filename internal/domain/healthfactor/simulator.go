package healthfactor

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"lendingrisk/pkg/errors"
)

// CloseFactor is the share of a liquidatable position a liquidator may repay at once
var CloseFactor = decimal.RequireFromString("0.5")

// Scenario is one row of the shock table
type Scenario struct {
	Label       string
	DropPercent decimal.Decimal
}

// Scenarios is the canonical shock table, mildest first
var Scenarios = []Scenario{
	{Label: "drop_1_percent", DropPercent: decimal.NewFromInt(1)},
	{Label: "drop_3_percent", DropPercent: decimal.NewFromInt(3)},
	{Label: "drop_5_percent", DropPercent: decimal.NewFromInt(5)},
	{Label: "drop_10_percent", DropPercent: decimal.NewFromInt(10)},
}

// Simulator re-runs the calculator under price shocks of one asset
type Simulator struct {
	calc *Calculator
}

// NewSimulator creates a new simulator
func NewSimulator(calc *Calculator) *Simulator {
	return &Simulator{calc: calc}
}

// Run simulates every row of the Scenarios table
func (s *Simulator) Run(ctx context.Context, positions []UserPosition, configs []ReserveConfig, shockAsset string) (SimulationScenario, error) {
	drops := make([]decimal.Decimal, len(Scenarios))
	for i, sc := range Scenarios {
		drops[i] = sc.DropPercent
	}

	sims, err := s.Simulate(ctx, positions, configs, shockAsset, drops)
	if err != nil {
		return nil, err
	}

	out := make(SimulationScenario, len(Scenarios))
	for i, sc := range Scenarios {
		out[sc.Label] = sims[i]
	}
	return out, nil
}

// Simulate returns one result per drop percentage, in the order given.
// Users already below 1.0 before the shock are left out so they are not
// counted as newly liquidatable.
func (s *Simulator) Simulate(
	ctx context.Context,
	positions []UserPosition,
	configs []ReserveConfig,
	shockAsset string,
	drops []decimal.Decimal,
) ([]*LiquidationSimulation, error) {
	cfg, ok := findReserve(configs, shockAsset)
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "shock asset %q not in reserve configs", shockAsset)
	}
	for i, d := range drops {
		if d.IsNegative() || d.GreaterThanOrEqual(hundred) {
			return nil, errors.NewValidationError(fmt.Sprintf("drops[%d]", i), "must be in [0,100)", d.String())
		}
	}

	before, err := s.calc.Compute(positions)
	if err != nil {
		return nil, err
	}

	baseline := make([]UserHealthFactor, 0, len(before))
	for _, u := range before {
		if u.HasDebt() && !IsExcluded(u) {
			baseline = append(baseline, u)
		}
	}

	results := make([]*LiquidationSimulation, len(drops))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range drops {
		i, d := i, d
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.simulateDrop(baseline, cfg, d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Simulator) simulateDrop(baseline []UserHealthFactor, cfg ReserveConfig, drop decimal.Decimal) *LiquidationSimulation {
	multiplier := hundred.Sub(drop).Div(hundred)

	sim := &LiquidationSimulation{
		PriceDropPercent:         drop,
		AssetSymbol:              cfg.Symbol,
		AssetAddress:             cfg.Address,
		OriginalPriceUSD:         cfg.PriceUSD,
		SimulatedPriceUSD:        cfg.PriceUSD.Mul(multiplier),
		TotalCollateralAtRiskUSD: decimal.Zero,
		TotalDebtAtRiskUSD:       decimal.Zero,
		CloseFactor:              CloseFactor,
		LiquidationBonus:         cfg.LiquidationBonus,
		AffectedUsers:            []AffectedUser{},
	}

	type affected struct {
		user  AffectedUser
		after UserHealthFactor
	}
	var hits []affected

	for _, u := range baseline {
		after := s.shock(u, cfg, multiplier)
		if after.HealthFactor == nil {
			continue
		}

		switch {
		case IsExcluded(after):
			sim.UsersLiquidatable++
		case IsAtRisk(after):
			sim.UsersAtRisk++
		default:
			continue
		}

		sim.TotalCollateralAtRiskUSD = sim.TotalCollateralAtRiskUSD.Add(after.TotalCollateralUSD)
		sim.TotalDebtAtRiskUSD = sim.TotalDebtAtRiskUSD.Add(after.TotalDebtUSD)
		hits = append(hits, affected{
			user: AffectedUser{
				UserAddress:   u.UserAddress,
				HFBefore:      u.HealthFactor,
				HFAfter:       *after.HealthFactor,
				CollateralUSD: after.TotalCollateralUSD,
				DebtUSD:       after.TotalDebtUSD,
			},
			after: after,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if c := compareHF(hits[i].after, hits[j].after); c != 0 {
			return c < 0
		}
		return hits[i].user.UserAddress < hits[j].user.UserAddress
	})
	for _, h := range hits {
		sim.AffectedUsers = append(sim.AffectedUsers, h.user)
	}

	sim.EstimatedLiquidatableDebtUSD = sim.TotalDebtAtRiskUSD.Mul(CloseFactor)
	sim.EstimatedLiquidatorProfitUSD = sim.EstimatedLiquidatableDebtUSD.Mul(cfg.LiquidationBonus)
	return sim
}

// shock revalues the user's positions in cfg's asset. Users without such
// positions are returned unchanged.
func (s *Simulator) shock(u UserHealthFactor, cfg ReserveConfig, multiplier decimal.Decimal) UserHealthFactor {
	var shocked []UserPosition
	for i, p := range u.Positions {
		if !cfg.matches(p) {
			continue
		}
		if shocked == nil {
			shocked = make([]UserPosition, len(u.Positions))
			copy(shocked, u.Positions)
		}
		shocked[i].CollateralUSD = p.CollateralUSD.Mul(multiplier)
		shocked[i].DebtUSD = p.DebtUSD.Mul(multiplier)
	}
	if shocked == nil {
		return u
	}
	return s.calc.computeUser(u.UserAddress, shocked)
}

func findReserve(configs []ReserveConfig, asset string) (ReserveConfig, bool) {
	for _, c := range configs {
		if c.identifiedBy(asset) {
			return c, true
		}
	}
	return ReserveConfig{}, false
}
