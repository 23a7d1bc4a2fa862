package event

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lendingrisk/pkg/errors"
)

// Type is a protocol event kind
type Type string

const (
	TypeSupply      Type = "supply"
	TypeWithdraw    Type = "withdraw"
	TypeBorrow      Type = "borrow"
	TypeRepay       Type = "repay"
	TypeLiquidation Type = "liquidation"
	TypeFlashLoan   Type = "flashloan"
)

// Types lists every ingested event kind, in ingestion order
var Types = []Type{TypeSupply, TypeWithdraw, TypeBorrow, TypeRepay, TypeLiquidation, TypeFlashLoan}

// ParseType validates an event kind
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", errors.NewValidationError("event_type", "unknown event type", s)
}

// ParseTypes reads a comma-separated filter. Empty input means no filter.
func ParseTypes(csv string) ([]Type, error) {
	var out []Type
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := ParseType(part)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Metadata holds the kind-specific extras of an event (caller, fees, prices)
type Metadata map[string]string

// Value implements driver.Valuer, storing the map as JSONB
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *Metadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	return json.Unmarshal(raw, m)
}

// ProtocolEvent is one supply, withdraw, borrow, repay, liquidation or flash loan.
// Amounts are raw token units; AmountUSD is nil when the indexer had no price.
type ProtocolEvent struct {
	ID        string `db:"id" json:"id"`
	ChainID   string `db:"chain_id" json:"chain_id"`
	EventType Type   `db:"event_type" json:"event_type"`
	Timestamp int64  `db:"timestamp" json:"timestamp"`

	TimestampHour  time.Time `db:"timestamp_hour" json:"timestamp_hour"`
	TimestampDay   time.Time `db:"timestamp_day" json:"timestamp_day"`
	TimestampWeek  time.Time `db:"timestamp_week" json:"timestamp_week"`
	TimestampMonth time.Time `db:"timestamp_month" json:"timestamp_month"`

	TxHash            *string `db:"tx_hash" json:"tx_hash"`
	UserAddress       string  `db:"user_address" json:"user_address"`
	LiquidatorAddress *string `db:"liquidator_address" json:"liquidator_address,omitempty"`

	AssetAddress  string              `db:"asset_address" json:"asset_address"`
	AssetSymbol   string              `db:"asset_symbol" json:"asset_symbol"`
	AssetDecimals int                 `db:"asset_decimals" json:"asset_decimals"`
	Amount        decimal.Decimal     `db:"amount" json:"amount"`
	AmountUSD     decimal.NullDecimal `db:"amount_usd" json:"amount_usd"`

	// liquidations only: the seized side
	CollateralAssetAddress *string             `db:"collateral_asset_address" json:"collateral_asset_address,omitempty"`
	CollateralAssetSymbol  *string             `db:"collateral_asset_symbol" json:"collateral_asset_symbol,omitempty"`
	CollateralAmount       decimal.NullDecimal `db:"collateral_amount" json:"collateral_amount,omitempty"`

	BorrowRate decimal.NullDecimal `db:"borrow_rate" json:"borrow_rate,omitempty"`
	Metadata   Metadata            `db:"metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"-"`
}

// SetTimestamp stores the unix time and its hour, day, week and month buckets
func (e *ProtocolEvent) SetTimestamp(unix int64) {
	t := time.Unix(unix, 0).UTC()
	e.Timestamp = unix
	e.TimestampHour = t.Truncate(time.Hour)
	e.TimestampDay = TruncateDay(t)
	e.TimestampWeek = TruncateWeek(t)
	e.TimestampMonth = TruncateMonth(t)
}

// TruncateDay floors t to UTC midnight
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TruncateWeek floors t to the Monday starting its UTC week
func TruncateWeek(t time.Time) time.Time {
	day := TruncateDay(t)
	sinceMonday := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -sinceMonday)
}

// TruncateMonth floors t to the first of its UTC month
func TruncateMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// TxHashFromID recovers the transaction hash from an indexer ID shaped
// {txHash}-{logIndex} or {txHash}:{logIndex}. Empty when it has none.
func TxHashFromID(id string) string {
	if i := strings.IndexAny(id, "-:"); i >= 0 {
		if head := id[:i]; strings.HasPrefix(head, "0x") && len(head) == 66 {
			return head
		}
	}
	if strings.HasPrefix(id, "0x") && len(id) >= 66 {
		return id[:66]
	}
	return ""
}

// TypeStats aggregates one event kind of an asset
type TypeStats struct {
	EventType    Type            `db:"event_type" json:"event_type"`
	Count        int             `db:"count" json:"count"`
	UniqueUsers  int             `db:"unique_users" json:"unique_users"`
	UniqueDays   int             `db:"unique_days" json:"unique_days"`
	MinTimestamp int64           `db:"min_timestamp" json:"min_timestamp"`
	MaxTimestamp int64           `db:"max_timestamp" json:"max_timestamp"`
	TotalAmount  decimal.Decimal `db:"total_amount" json:"total_amount"`
	TotalUSD     decimal.Decimal `db:"total_usd" json:"total_usd"`
}

// AssetStats summarises every stored event of one asset
type AssetStats struct {
	ChainID      string      `json:"chain_id"`
	AssetAddress string      `json:"asset_address"`
	TotalEvents  int         `json:"total_events"`
	UniqueUsers  int         `json:"total_unique_users"`
	UniqueDays   int         `json:"total_unique_days"`
	MinTimestamp *int64      `json:"min_timestamp"`
	MaxTimestamp *int64      `json:"max_timestamp"`
	ByEventType  []TypeStats `json:"by_event_type"`
}

// AssetQuery selects the stored events of one asset
type AssetQuery struct {
	ChainID      string
	AssetAddress string
	Types        []Type // empty means every kind
	Limit        int
}

// AssetEvents is the newest and oldest events matching an AssetQuery
type AssetEvents struct {
	ChainID       string          `json:"chain_id"`
	AssetAddress  string          `json:"asset_address"`
	TypeFilter    []Type          `json:"event_type_filter"`
	TotalMatching int             `json:"total_matching_events"`
	Latest        []ProtocolEvent `json:"latest"`
	Earliest      []ProtocolEvent `json:"earliest"`
}
