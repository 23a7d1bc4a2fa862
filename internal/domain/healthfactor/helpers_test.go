package healthfactor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, d(expected).Equal(actual), append([]interface{}{"expected %s, got %s", expected, actual.String()}, msgAndArgs...)...)
}

func collateral(user, symbol, usd, threshold string) UserPosition {
	return UserPosition{
		UserAddress:          user,
		AssetSymbol:          symbol,
		AssetAddress:         "0x" + symbol,
		CollateralUSD:        d(usd),
		DebtUSD:              decimal.Zero,
		LiquidationThreshold: d(threshold),
		IsCollateralEnabled:  true,
	}
}

func debt(user, symbol, usd string) UserPosition {
	return UserPosition{
		UserAddress:          user,
		AssetSymbol:          symbol,
		AssetAddress:         "0x" + symbol,
		CollateralUSD:        decimal.Zero,
		DebtUSD:              d(usd),
		LiquidationThreshold: d("0.8"),
	}
}

func testConfigs() []ReserveConfig {
	return []ReserveConfig{
		{Symbol: "DAI", Address: "0xDAI", PriceUSD: d("1"), LTV: d("0.75"), LiquidationThreshold: d("0.8"), LiquidationBonus: d("0.05"), Decimals: 18},
		{Symbol: "USDC", Address: "0xUSDC", PriceUSD: d("1"), LTV: d("0.75"), LiquidationThreshold: d("0.8"), LiquidationBonus: d("0.045"), Decimals: 6},
		{Symbol: "WETH", Address: "0xWETH", PriceUSD: d("2000"), LTV: d("0.8"), LiquidationThreshold: d("0.8"), LiquidationBonus: d("0.05"), Decimals: 18},
	}
}

// testSnapshot holds four users:
//
//	0xa  HF 1.2, at risk
//	0xb  no debt
//	0xc  HF 0.4, excluded
//	0xd  HF 4.0, WETH borrower
func testSnapshot() Snapshot {
	return Snapshot{
		ChainID:         "ethereum",
		SnapshotTimeUTC: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		OracleAddress:   "0x54586bE62E3c3580375aE3723C145253060Ca0C2",
		ReserveConfigs:  testConfigs(),
		Positions: []UserPosition{
			collateral("0xa", "WETH", "150", "0.8"),
			debt("0xa", "USDC", "100"),
			collateral("0xb", "USDC", "500", "0.8"),
			collateral("0xc", "WETH", "50", "0.8"),
			debt("0xc", "USDC", "100"),
			collateral("0xd", "USDC", "1000", "0.8"),
			debt("0xd", "WETH", "200"),
		},
	}
}
