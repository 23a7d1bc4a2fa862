package healthfactor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userWithHF(addr, hf string) UserHealthFactor {
	u := UserHealthFactor{
		UserAddress:        addr,
		TotalCollateralUSD: d("100"),
		TotalDebtUSD:       d("10"),
	}
	if hf != "" {
		v := d(hf)
		u.HealthFactor = &v
		u.WeightedCollateralUSD = v.Mul(u.TotalDebtUSD)
		u.IsLiquidatable = v.LessThan(decimal.NewFromInt(1))
	} else {
		u.TotalDebtUSD = decimal.Zero
	}
	return u
}

func TestBucketer_AlwaysEmitsEveryBand(t *testing.T) {
	dist := NewBucketer().Bucket(nil)

	require.Len(t, dist, 7)
	labels := make([]string, len(dist))
	for i, b := range dist {
		labels[i] = b.Bucket
		assert.Zero(t, b.Count)
		assert.True(t, b.TotalCollateralUSD.IsZero())
		assert.True(t, b.TotalDebtUSD.IsZero())
	}
	assert.Equal(t, []string{"1.0-1.1", "1.1-1.25", "1.25-1.5", "1.5-2.0", "2.0-3.0", "3.0-5.0", "> 5.0"}, labels)
}

func TestBucketer_Boundaries(t *testing.T) {
	tests := []struct {
		hf    string
		label string
	}{
		{"1.0", "1.0-1.1"},
		{"1.0999", "1.0-1.1"},
		{"1.1", "1.1-1.25"},
		{"1.2", "1.1-1.25"},
		{"1.25", "1.25-1.5"},
		{"1.5", "1.5-2.0"},
		{"2.0", "2.0-3.0"},
		{"3.0", "3.0-5.0"},
		{"4.9999", "3.0-5.0"},
		{"5.0", "> 5.0"},
		{"1000000", "> 5.0"},
	}

	for _, tt := range tests {
		t.Run(tt.hf, func(t *testing.T) {
			dist := NewBucketer().Bucket([]UserHealthFactor{userWithHF("0xa", tt.hf)})
			for _, b := range dist {
				if b.Bucket == tt.label {
					assert.Equal(t, 1, b.Count)
					assertDecimal(t, "100", b.TotalCollateralUSD)
					assertDecimal(t, "10", b.TotalDebtUSD)
				} else {
					assert.Zero(t, b.Count, b.Bucket)
				}
			}
		})
	}
}

func TestBucketer_JustBelowBandEdges(t *testing.T) {
	tests := []struct {
		collateral string
		label      string
	}{
		{"1.09999999999999999", "1.0-1.1"},
		{"1.24999999999999999", "1.1-1.25"},
		{"1.49999999999999999", "1.25-1.5"},
		{"1.99999999999999999", "1.5-2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			users, err := NewCalculator().Compute([]UserPosition{
				collateral("0xa", "WETH", tt.collateral, "1"),
				debt("0xa", "USDC", "1"),
			})
			require.NoError(t, err)

			dist := NewBucketer().Bucket(users)
			for _, b := range dist {
				if b.Bucket == tt.label {
					assert.Equal(t, 1, b.Count)
				} else {
					assert.Zero(t, b.Count, b.Bucket)
				}
			}
		})
	}
}

func TestBucketer_JustBelowOneIsSkipped(t *testing.T) {
	users, err := NewCalculator().Compute([]UserPosition{
		collateral("0xa", "WETH", "0.99999999999999999", "1"),
		debt("0xa", "USDC", "1"),
	})
	require.NoError(t, err)

	for _, b := range NewBucketer().Bucket(users) {
		assert.Zero(t, b.Count, b.Bucket)
	}
}

func TestBucketer_SkipsExcludedAndDebtFree(t *testing.T) {
	users := []UserHealthFactor{
		userWithHF("0xa", "0.99"),
		userWithHF("0xb", "0"),
		userWithHF("0xc", ""),
		userWithHF("0xd", "1.3"),
	}

	dist := NewBucketer().Bucket(users)

	total := 0
	for _, b := range dist {
		total += b.Count
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, dist[2].Count)
}
