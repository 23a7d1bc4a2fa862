package healthfactor

import "github.com/shopspring/decimal"

// Band is a lower-inclusive health factor range. Upper is nil for the open top band.
type Band struct {
	Label string
	Lower decimal.Decimal
	Upper *decimal.Decimal
}

func (b Band) contains(u UserHealthFactor) bool {
	if u.below(b.Lower) {
		return false
	}
	return b.Upper == nil || u.below(*b.Upper)
}

func bound(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// Bands are the fixed risk bands, in emission order
var Bands = []Band{
	{Label: "1.0-1.1", Lower: decimal.RequireFromString("1.0"), Upper: bound("1.1")},
	{Label: "1.1-1.25", Lower: decimal.RequireFromString("1.1"), Upper: bound("1.25")},
	{Label: "1.25-1.5", Lower: decimal.RequireFromString("1.25"), Upper: bound("1.5")},
	{Label: "1.5-2.0", Lower: decimal.RequireFromString("1.5"), Upper: bound("2.0")},
	{Label: "2.0-3.0", Lower: decimal.RequireFromString("2.0"), Upper: bound("3.0")},
	{Label: "3.0-5.0", Lower: decimal.RequireFromString("3.0"), Upper: bound("5.0")},
	{Label: "> 5.0", Lower: decimal.RequireFromString("5.0")},
}

// Bucketer assigns health factors to the fixed bands
type Bucketer struct {
	bands []Band
}

// NewBucketer creates a bucketer over the fixed bands
func NewBucketer() *Bucketer {
	return &Bucketer{bands: Bands}
}

// Bucket always returns every band in order, zero-filled when empty.
// Users without debt and excluded users are skipped.
func (b *Bucketer) Bucket(users []UserHealthFactor) []HealthFactorDistribution {
	dist := make([]HealthFactorDistribution, len(b.bands))
	for i, band := range b.bands {
		dist[i] = HealthFactorDistribution{
			Bucket:             band.Label,
			TotalCollateralUSD: decimal.Zero,
			TotalDebtUSD:       decimal.Zero,
		}
	}

	for _, u := range users {
		if !u.HasDebt() || IsExcluded(u) {
			continue
		}
		i := b.indexOf(u)
		if i < 0 {
			continue
		}
		dist[i].Count++
		dist[i].TotalCollateralUSD = dist[i].TotalCollateralUSD.Add(u.TotalCollateralUSD)
		dist[i].TotalDebtUSD = dist[i].TotalDebtUSD.Add(u.TotalDebtUSD)
	}
	return dist
}

func (b *Bucketer) indexOf(u UserHealthFactor) int {
	for i, band := range b.bands {
		if band.contains(u) {
			return i
		}
	}
	return -1
}
