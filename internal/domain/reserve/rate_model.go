package reserve

import (
	"github.com/shopspring/decimal"

	"lendingrisk/pkg/errors"
)

var one = decimal.NewFromInt(1)

// RateModel is the two-slope variable borrow rate strategy.
// All fields are fractions (0.05 = 5%).
type RateModel struct {
	OptimalUtilization     decimal.Decimal `json:"optimal_utilization_rate"`
	BaseVariableBorrowRate decimal.Decimal `json:"base_variable_borrow_rate"`
	Slope1                 decimal.Decimal `json:"variable_rate_slope1"`
	Slope2                 decimal.Decimal `json:"variable_rate_slope2"`
}

// CurvePoint is one sample of a rate curve
type CurvePoint struct {
	Utilization        decimal.Decimal `json:"utilization"`
	VariableBorrowRate decimal.Decimal `json:"variable_borrow_rate"`
}

// VariableBorrowRate evaluates the kinked rate at utilization u.
// Below the kink the rate climbs slope1 linearly; above it slope2 applies to the excess.
func (m RateModel) VariableBorrowRate(u decimal.Decimal) decimal.Decimal {
	if u.LessThanOrEqual(m.OptimalUtilization) {
		if m.OptimalUtilization.IsZero() {
			return m.BaseVariableBorrowRate
		}
		return m.BaseVariableBorrowRate.Add(u.Mul(m.Slope1).Div(m.OptimalUtilization))
	}

	excessRange := one.Sub(m.OptimalUtilization)
	if excessRange.IsZero() {
		return m.BaseVariableBorrowRate.Add(m.Slope1)
	}
	excess := u.Sub(m.OptimalUtilization)
	return m.BaseVariableBorrowRate.Add(m.Slope1).Add(excess.Mul(m.Slope2).Div(excessRange))
}

// Curve samples the rate at steps+1 evenly spaced points over [0,1]
func (m RateModel) Curve(steps int) ([]CurvePoint, error) {
	if steps < 1 || steps > 1000 {
		return nil, errors.NewValidationError("steps", "must be in [1,1000]", steps)
	}
	if m.OptimalUtilization.IsNegative() || m.OptimalUtilization.GreaterThan(one) {
		return nil, errors.NewComputationError("rate_model", "optimal utilization outside [0,1]")
	}

	points := make([]CurvePoint, 0, steps+1)
	n := decimal.NewFromInt(int64(steps))
	for i := 0; i <= steps; i++ {
		u := decimal.NewFromInt(int64(i)).Div(n)
		points = append(points, CurvePoint{Utilization: u, VariableBorrowRate: m.VariableBorrowRate(u)})
	}
	return points, nil
}
