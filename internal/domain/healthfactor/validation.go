package healthfactor

import (
	"fmt"

	"github.com/shopspring/decimal"

	"lendingrisk/pkg/errors"
)

// IsValidation reports malformed or negative input
func IsValidation(err error) bool { return errors.Is(err, errors.ErrInvalidInput) }

// IsNotFound reports a missing shock asset or a chain without data
func IsNotFound(err error) bool { return errors.Is(err, errors.ErrNotFound) }

// IsComputation reports an arithmetic invariant violation
func IsComputation(err error) bool { return errors.Is(err, errors.ErrComputation) }

func validateFraction(op, field string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(one) {
		return errors.NewComputationError(op, fmt.Sprintf("%s %s outside [0,1]", field, v.String()))
	}
	return nil
}

func validatePosition(i int, p UserPosition) error {
	if p.UserAddress == "" {
		return errors.NewValidationError(fmt.Sprintf("positions[%d].user_address", i), "must not be empty", p.UserAddress)
	}
	if p.CollateralUSD.IsNegative() {
		return errors.NewValidationError(fmt.Sprintf("positions[%d].collateral_usd", i), "must not be negative", p.CollateralUSD.String())
	}
	if p.DebtUSD.IsNegative() {
		return errors.NewValidationError(fmt.Sprintf("positions[%d].debt_usd", i), "must not be negative", p.DebtUSD.String())
	}
	return validateFraction("calculator", fmt.Sprintf("positions[%d].liquidation_threshold", i), p.LiquidationThreshold)
}

// ValidateReserveConfigs checks prices, bonuses and risk fractions
func ValidateReserveConfigs(configs []ReserveConfig) error {
	for i, c := range configs {
		if c.Symbol == "" && c.Address == "" {
			return errors.NewValidationError(fmt.Sprintf("reserve_configs[%d]", i), "symbol or address required", nil)
		}
		if c.PriceUSD.IsNegative() {
			return errors.NewValidationError(fmt.Sprintf("reserve_configs[%d].price_usd", i), "must not be negative", c.PriceUSD.String())
		}
		if c.LiquidationBonus.IsNegative() {
			return errors.NewValidationError(fmt.Sprintf("reserve_configs[%d].liquidation_bonus", i), "must not be negative", c.LiquidationBonus.String())
		}
		if err := validateFraction("reserve_configs", fmt.Sprintf("%s ltv", c.Symbol), c.LTV); err != nil {
			return err
		}
		if err := validateFraction("reserve_configs", fmt.Sprintf("%s liquidation_threshold", c.Symbol), c.LiquidationThreshold); err != nil {
			return err
		}
	}
	return nil
}
