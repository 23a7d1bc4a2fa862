package reserve

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset is a tracked reserve of a market
type Asset struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
}

// Market groups the tracked assets of one lending deployment
type Market struct {
	MarketID string  `json:"market_id"`
	Name     string  `json:"name"`
	ChainID  string  `json:"chain_id"`
	Assets   []Asset `json:"assets"`
}

// Snapshot is the hourly state of one reserve
type Snapshot struct {
	TimestampHour time.Time `db:"timestamp_hour" json:"timestamp_hour"`
	ChainID       string    `db:"chain_id" json:"chain_id"`
	MarketID      string    `db:"market_id" json:"market_id"`
	AssetSymbol   string    `db:"asset_symbol" json:"asset_symbol"`
	AssetAddress  string    `db:"asset_address" json:"asset_address"`

	// 0 means uncapped
	BorrowCap decimal.Decimal `db:"borrow_cap" json:"borrow_cap"`
	SupplyCap decimal.Decimal `db:"supply_cap" json:"supply_cap"`

	SuppliedAmount     decimal.Decimal     `db:"supplied_amount" json:"supplied_amount"`
	SuppliedValueUSD   decimal.NullDecimal `db:"supplied_value_usd" json:"supplied_value_usd"`
	BorrowedAmount     decimal.Decimal     `db:"borrowed_amount" json:"borrowed_amount"`
	BorrowedValueUSD   decimal.NullDecimal `db:"borrowed_value_usd" json:"borrowed_value_usd"`
	Utilization        decimal.Decimal     `db:"utilization" json:"utilization"`
	AvailableLiquidity decimal.NullDecimal `db:"available_liquidity" json:"available_liquidity"`
	PriceUSD           decimal.NullDecimal `db:"price_usd" json:"price_usd"`

	RateModel *RateModel `db:"-" json:"rate_model,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"-"`
}

// TruncateHour floors t to the start of its UTC hour
func TruncateHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// ComputeUtilization returns borrowed / supplied, or 0 for an empty reserve
func ComputeUtilization(supplied, borrowed decimal.Decimal) decimal.Decimal {
	if supplied.IsZero() {
		return decimal.Zero
	}
	return borrowed.Div(supplied)
}

// NewSnapshot fills the derived fields of a snapshot
func NewSnapshot(
	chainID, marketID string,
	asset Asset,
	at time.Time,
	supplied, borrowed decimal.Decimal,
	price decimal.NullDecimal,
) Snapshot {
	s := Snapshot{
		TimestampHour:  TruncateHour(at),
		ChainID:        chainID,
		MarketID:       marketID,
		AssetSymbol:    asset.Symbol,
		AssetAddress:   asset.Address,
		BorrowCap:      decimal.Zero,
		SupplyCap:      decimal.Zero,
		SuppliedAmount: supplied,
		BorrowedAmount: borrowed,
		Utilization:    ComputeUtilization(supplied, borrowed),
		PriceUSD:       price,
	}
	if price.Valid && price.Decimal.IsPositive() {
		s.SuppliedValueUSD = decimal.NewNullDecimal(supplied.Mul(price.Decimal))
		s.BorrowedValueUSD = decimal.NewNullDecimal(borrowed.Mul(price.Decimal))
	}
	return s
}
