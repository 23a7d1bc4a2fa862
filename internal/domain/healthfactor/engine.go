package healthfactor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"lendingrisk/pkg/errors"
)

// PriceSource is reported in every summary's data source block
const PriceSource = "Aave V3 Oracle"

// DefaultReferenceSymbols name the assets used for shock scenarios, by priority
var DefaultReferenceSymbols = []string{"WETH"}

// Engine runs calculator, bucketer and simulator over one snapshot
type Engine struct {
	calc             *Calculator
	bucketer         *Bucketer
	simulator        *Simulator
	referenceSymbols []string
}

// NewEngine creates a new engine. Empty referenceSymbols falls back to DefaultReferenceSymbols.
func NewEngine(referenceSymbols []string) *Engine {
	if len(referenceSymbols) == 0 {
		referenceSymbols = DefaultReferenceSymbols
	}
	calc := NewCalculator()
	return &Engine{
		calc:             calc,
		bucketer:         NewBucketer(),
		simulator:        NewSimulator(calc),
		referenceSymbols: referenceSymbols,
	}
}

// Analyze produces the summary and, when a reference asset is configured
// in the snapshot, its shock scenarios.
func (e *Engine) Analyze(ctx context.Context, snap Snapshot) (*Analysis, error) {
	if snap.ChainID == "" {
		return nil, errors.NewValidationError("chain_id", "must not be empty", snap.ChainID)
	}
	if err := ValidateReserveConfigs(snap.ReserveConfigs); err != nil {
		return nil, err
	}

	owners, err := reserveIndex(snap.Positions, snap.ReserveConfigs)
	if err != nil {
		return nil, err
	}

	users, err := e.calc.Compute(snap.Positions)
	if err != nil {
		return nil, err
	}

	summary := e.summarize(snap, users, owners)

	analysis := &Analysis{Summary: summary}
	if ref, ok := e.referenceAsset(snap.ReserveConfigs); ok {
		shockAsset := ref.Address
		if shockAsset == "" {
			shockAsset = ref.Symbol
		}
		scenario, err := e.simulator.Run(ctx, snap.Positions, snap.ReserveConfigs, shockAsset)
		if err != nil {
			return nil, err
		}
		analysis.Simulation = scenario
	}
	return analysis, nil
}

func (e *Engine) summarize(snap Snapshot, users []UserHealthFactor, owners map[positionKey]int) HealthFactorSummary {
	s := HealthFactorSummary{
		ChainID: snap.ChainID,
		DataSource: DataSource{
			PriceSource:     PriceSource,
			OracleAddress:   snap.OracleAddress,
			SnapshotTimeUTC: snap.SnapshotTimeUTC.UTC(),
		},
		TotalCollateralUSD:    decimal.Zero,
		TotalDebtUSD:          decimal.Zero,
		ExcludedCollateralUSD: decimal.Zero,
		ExcludedDebtUSD:       decimal.Zero,
		AtRiskUsers:           []UserHealthFactor{},
	}

	exposures := make([]ReserveExposure, len(snap.ReserveConfigs))
	for i, c := range snap.ReserveConfigs {
		exposures[i] = ReserveExposure{ReserveConfig: c, TotalCollateralUSD: decimal.Zero, TotalDebtUSD: decimal.Zero}
	}

	for _, u := range users {
		s.TotalUsers++
		if u.HasDebt() {
			s.UsersWithDebt++
		}
		if IsExcluded(u) {
			s.UsersExcluded++
			s.ExcludedCollateralUSD = s.ExcludedCollateralUSD.Add(u.TotalCollateralUSD)
			s.ExcludedDebtUSD = s.ExcludedDebtUSD.Add(u.TotalDebtUSD)
			continue
		}

		s.TotalCollateralUSD = s.TotalCollateralUSD.Add(u.TotalCollateralUSD)
		s.TotalDebtUSD = s.TotalDebtUSD.Add(u.TotalDebtUSD)
		if IsAtRisk(u) {
			s.AtRiskUsers = append(s.AtRiskUsers, u)
		}

		for _, p := range u.Positions {
			x := &exposures[owners[keyOf(p)]]
			if p.IsCollateralEnabled {
				x.TotalCollateralUSD = x.TotalCollateralUSD.Add(p.CollateralUSD)
			}
			x.TotalDebtUSD = x.TotalDebtUSD.Add(p.DebtUSD)
		}
	}
	s.UsersAtRisk = len(s.AtRiskUsers)

	sort.SliceStable(s.AtRiskUsers, func(i, j int) bool {
		a, b := s.AtRiskUsers[i], s.AtRiskUsers[j]
		if c := compareHF(a, b); c != 0 {
			return c < 0
		}
		return a.UserAddress < b.UserAddress
	})

	sort.SliceStable(exposures, func(i, j int) bool {
		vi := exposures[i].TotalCollateralUSD.Add(exposures[i].TotalDebtUSD)
		vj := exposures[j].TotalCollateralUSD.Add(exposures[j].TotalDebtUSD)
		if !vi.Equal(vj) {
			return vi.GreaterThan(vj)
		}
		return exposures[i].Symbol < exposures[j].Symbol
	})
	s.ReserveConfigs = exposures

	s.Distribution = e.bucketer.Bucket(users)
	return s
}

func (e *Engine) referenceAsset(configs []ReserveConfig) (ReserveConfig, bool) {
	for _, sym := range e.referenceSymbols {
		for _, c := range configs {
			if strings.EqualFold(c.Symbol, sym) {
				return c, true
			}
		}
	}
	return ReserveConfig{}, false
}

type positionKey struct {
	symbol  string
	address string
}

func keyOf(p UserPosition) positionKey {
	return positionKey{symbol: strings.ToLower(p.AssetSymbol), address: strings.ToLower(p.AssetAddress)}
}

// reserveIndex maps every distinct position asset to its reserve config.
// A position whose asset has no config is malformed input.
func reserveIndex(positions []UserPosition, configs []ReserveConfig) (map[positionKey]int, error) {
	owners := make(map[positionKey]int)
	for i, p := range positions {
		k := keyOf(p)
		if _, ok := owners[k]; ok {
			continue
		}
		found := -1
		for j, c := range configs {
			if c.matches(p) {
				found = j
				break
			}
		}
		if found < 0 {
			return nil, errors.NewValidationError(
				fmt.Sprintf("positions[%d].asset", i),
				"no reserve config for asset",
				p.AssetSymbol+" "+p.AssetAddress,
			)
		}
		owners[k] = found
	}
	return owners, nil
}
