package healthfactor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Summary(t *testing.T) {
	analysis, err := NewEngine(nil).Analyze(context.Background(), testSnapshot())
	require.NoError(t, err)

	s := analysis.Summary
	assert.Equal(t, "ethereum", s.ChainID)
	assert.Equal(t, PriceSource, s.DataSource.PriceSource)
	assert.Equal(t, "0x54586bE62E3c3580375aE3723C145253060Ca0C2", s.DataSource.OracleAddress)

	assert.Equal(t, 4, s.TotalUsers)
	assert.Equal(t, 3, s.UsersWithDebt)
	assert.Equal(t, 1, s.UsersExcluded)
	assert.Equal(t, 1, s.UsersAtRisk)

	assertDecimal(t, "1650", s.TotalCollateralUSD)
	assertDecimal(t, "300", s.TotalDebtUSD)
	assertDecimal(t, "50", s.ExcludedCollateralUSD)
	assertDecimal(t, "100", s.ExcludedDebtUSD)

	require.Len(t, s.AtRiskUsers, 1)
	assert.Equal(t, "0xa", s.AtRiskUsers[0].UserAddress)
}

func TestEngine_DistributionCompleteness(t *testing.T) {
	analysis, err := NewEngine(nil).Analyze(context.Background(), testSnapshot())
	require.NoError(t, err)
	s := analysis.Summary

	require.Len(t, s.Distribution, len(Bands))
	count := 0
	bucketCollateral := decimal.Zero
	for _, b := range s.Distribution {
		count += b.Count
		bucketCollateral = bucketCollateral.Add(b.TotalCollateralUSD)
	}
	assert.Equal(t, s.UsersWithDebt-s.UsersExcluded, count)

	assert.Equal(t, 1, s.Distribution[1].Count) // 1.1-1.25
	assert.Equal(t, 1, s.Distribution[5].Count) // 3.0-5.0

	// buckets + excluded + debt-free collateral == every user's collateral
	debtFree := decimal.Zero
	users, err := NewCalculator().Compute(testSnapshot().Positions)
	require.NoError(t, err)
	all := decimal.Zero
	for _, u := range users {
		all = all.Add(u.TotalCollateralUSD)
		if !u.HasDebt() {
			debtFree = debtFree.Add(u.TotalCollateralUSD)
		}
	}
	assertDecimal(t, all.String(), bucketCollateral.Add(s.ExcludedCollateralUSD).Add(debtFree))
}

func TestEngine_ExclusionInvariant(t *testing.T) {
	analysis, err := NewEngine(nil).Analyze(context.Background(), testSnapshot())
	require.NoError(t, err)

	for _, u := range analysis.Summary.AtRiskUsers {
		assert.False(t, IsExcluded(u), u.UserAddress)
		assert.NotEqual(t, "0xc", u.UserAddress)
	}
}

func TestEngine_ReserveConfigsSortedByValue(t *testing.T) {
	analysis, err := NewEngine(nil).Analyze(context.Background(), testSnapshot())
	require.NoError(t, err)

	rc := analysis.Summary.ReserveConfigs
	require.Len(t, rc, 3)
	assert.Equal(t, "USDC", rc[0].Symbol)
	assertDecimal(t, "1500", rc[0].TotalCollateralUSD)
	assertDecimal(t, "100", rc[0].TotalDebtUSD)
	assert.Equal(t, "WETH", rc[1].Symbol)
	assertDecimal(t, "150", rc[1].TotalCollateralUSD)
	assertDecimal(t, "200", rc[1].TotalDebtUSD)
	assert.Equal(t, "DAI", rc[2].Symbol)
	assert.True(t, rc[2].TotalCollateralUSD.IsZero())
}

func TestEngine_Simulation(t *testing.T) {
	analysis, err := NewEngine(nil).Analyze(context.Background(), testSnapshot())
	require.NoError(t, err)
	require.NotNil(t, analysis.Simulation)

	sim := analysis.Simulation["drop_10_percent"]
	require.NotNil(t, sim)
	assert.Equal(t, "WETH", sim.AssetSymbol)
	assertDecimal(t, "0.05", sim.LiquidationBonus)
	assertDecimal(t, "100", sim.TotalDebtAtRiskUSD)
	assertDecimal(t, "50", sim.EstimatedLiquidatableDebtUSD)
	assertDecimal(t, "2.5", sim.EstimatedLiquidatorProfitUSD)
}

func TestEngine_NoReferenceAsset(t *testing.T) {
	snap := testSnapshot()
	analysis, err := NewEngine([]string{"WMATIC"}).Analyze(context.Background(), snap)
	require.NoError(t, err)
	assert.Nil(t, analysis.Simulation)

	raw, err := json.Marshal(analysis)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"weth_simulation":null`)
}

func TestEngine_ReferenceSymbolPriority(t *testing.T) {
	analysis, err := NewEngine([]string{"WBTC", "weth"}).Analyze(context.Background(), testSnapshot())
	require.NoError(t, err)
	require.NotNil(t, analysis.Simulation)
	assert.Equal(t, "WETH", analysis.Simulation["drop_1_percent"].AssetSymbol)
}

func TestEngine_InvalidInput(t *testing.T) {
	t.Run("unknown position asset", func(t *testing.T) {
		snap := testSnapshot()
		snap.Positions = append(snap.Positions, collateral("0xe", "WBTC", "10", "0.7"))
		_, err := NewEngine(nil).Analyze(context.Background(), snap)
		assert.True(t, IsValidation(err))
	})

	t.Run("negative price", func(t *testing.T) {
		snap := testSnapshot()
		snap.ReserveConfigs[0].PriceUSD = d("-1")
		_, err := NewEngine(nil).Analyze(context.Background(), snap)
		assert.True(t, IsValidation(err))
	})

	t.Run("ltv above one", func(t *testing.T) {
		snap := testSnapshot()
		snap.ReserveConfigs[1].LTV = d("1.01")
		_, err := NewEngine(nil).Analyze(context.Background(), snap)
		assert.True(t, IsComputation(err))
	})

	t.Run("missing chain", func(t *testing.T) {
		snap := testSnapshot()
		snap.ChainID = ""
		_, err := NewEngine(nil).Analyze(context.Background(), snap)
		assert.True(t, IsValidation(err))
	})
}

func TestEngine_Deterministic(t *testing.T) {
	engine := NewEngine(nil)
	first, err := engine.Analyze(context.Background(), testSnapshot())
	require.NoError(t, err)
	second, err := engine.Analyze(context.Background(), testSnapshot())
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestNewDistributionPoint(t *testing.T) {
	analysis, err := NewEngine(nil).Analyze(context.Background(), testSnapshot())
	require.NoError(t, err)

	p := NewDistributionPoint(analysis.Summary)
	assert.Equal(t, "ethereum", p.ChainID)
	assert.Equal(t, testSnapshot().SnapshotTimeUTC, p.SnapshotTime)
	assert.Equal(t, 3, p.UsersWithDebt)
	assert.Len(t, p.Buckets, 7)
}
