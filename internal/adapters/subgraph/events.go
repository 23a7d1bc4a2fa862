package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lendingrisk/internal/domain/event"
	"lendingrisk/pkg/errors"
)

var _ event.Source = (*Source)(nil)

// eventEntity is the indexer collection behind each event kind
var eventEntity = map[event.Type]string{
	event.TypeSupply:      "supplies",
	event.TypeWithdraw:    "redeemUnderlyings",
	event.TypeBorrow:      "borrows",
	event.TypeRepay:       "repays",
	event.TypeLiquidation: "liquidationCalls",
	event.TypeFlashLoan:   "flashLoans",
}

const reserveRef = "{ symbol underlyingAsset decimals }"

var eventFields = map[event.Type]string{
	event.TypeSupply: `id txHash timestamp amount assetPriceUSD
    user { id } caller { id } referrer { id }
    reserve ` + reserveRef,
	event.TypeWithdraw: `id txHash timestamp amount assetPriceUSD
    user { id } to { id }
    reserve ` + reserveRef,
	event.TypeBorrow: `id txHash timestamp amount assetPriceUSD
    borrowRate borrowRateMode stableTokenDebt variableTokenDebt
    user { id } caller { id } referrer { id }
    reserve ` + reserveRef,
	event.TypeRepay: `id txHash timestamp amount assetPriceUSD useATokens
    user { id } repayer { id }
    reserve ` + reserveRef,
	event.TypeLiquidation: `id txHash timestamp
    user { id } liquidator
    collateralAmount collateralReserve ` + reserveRef + `
    principalAmount principalReserve ` + reserveRef + `
    collateralAssetPriceUSD borrowAssetPriceUSD`,
	event.TypeFlashLoan: `id timestamp amount assetPriceUSD
    initiator { id } target totalFee lpFee protocolFee
    reserve ` + reserveRef,
}

// eventsQuery pages one kind strictly after $from, oldest first
func eventsQuery(t event.Type) string {
	return fmt.Sprintf(`
query GetEvents($from: Int!, $first: Int!, $skip: Int!) {
  %s(
    where: { timestamp_gt: $from }
    orderBy: timestamp
    orderDirection: asc
    first: $first
    skip: $skip
  ) {
    %s
  }
}`, eventEntity[t], eventFields[t])
}

// rawAccount decodes both {"id": "0x.."} and a bare "0x.." string;
// liquidator is one or the other depending on the subgraph version.
type rawAccount struct {
	ID string
}

func (a *rawAccount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &a.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	a.ID = obj.ID
	return nil
}

func (a *rawAccount) id() string {
	if a == nil {
		return ""
	}
	return strings.ToLower(a.ID)
}

type rawEventReserve struct {
	Symbol          string `json:"symbol"`
	UnderlyingAsset string `json:"underlyingAsset"`
	Decimals        *int   `json:"decimals"`
}

func (r *rawEventReserve) decimals() int {
	if r == nil || r.Decimals == nil {
		return 18
	}
	return *r.Decimals
}

type rawEvent struct {
	ID            string              `json:"id"`
	TxHash        string              `json:"txHash"`
	Timestamp     decimal.NullDecimal `json:"timestamp"`
	Amount        decimal.NullDecimal `json:"amount"`
	AssetPriceUSD decimal.NullDecimal `json:"assetPriceUSD"`
	Reserve       *rawEventReserve    `json:"reserve"`

	User      *rawAccount `json:"user"`
	Caller    *rawAccount `json:"caller"`
	Referrer  *rawAccount `json:"referrer"`
	To        *rawAccount `json:"to"`
	Repayer   *rawAccount `json:"repayer"`
	Initiator *rawAccount `json:"initiator"`

	BorrowRate        decimal.NullDecimal `json:"borrowRate"`
	BorrowRateMode    json.Number         `json:"borrowRateMode"`
	StableTokenDebt   string              `json:"stableTokenDebt"`
	VariableTokenDebt string              `json:"variableTokenDebt"`
	UseATokens        *bool               `json:"useATokens"`

	Liquidator              *rawAccount         `json:"liquidator"`
	CollateralAmount        decimal.NullDecimal `json:"collateralAmount"`
	CollateralReserve       *rawEventReserve    `json:"collateralReserve"`
	PrincipalAmount         decimal.NullDecimal `json:"principalAmount"`
	PrincipalReserve        *rawEventReserve    `json:"principalReserve"`
	CollateralAssetPriceUSD decimal.NullDecimal `json:"collateralAssetPriceUSD"`
	BorrowAssetPriceUSD     decimal.NullDecimal `json:"borrowAssetPriceUSD"`

	Target      string `json:"target"`
	TotalFee    string `json:"totalFee"`
	LpFee       string `json:"lpFee"`
	ProtocolFee string `json:"protocolFee"`
}

// usdValue is raw / 10^decimals × price; nil without a price
func usdValue(raw decimal.NullDecimal, decimals int, price decimal.NullDecimal) decimal.NullDecimal {
	if !raw.Valid || !price.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(raw.Decimal.Shift(int32(-decimals)).Mul(price.Decimal))
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// toEvent maps one indexer record of kind t
func toEvent(raw rawEvent, t event.Type, chainID string) (event.ProtocolEvent, error) {
	if raw.ID == "" {
		return event.ProtocolEvent{}, missing("event.id")
	}
	if !raw.Timestamp.Valid {
		return event.ProtocolEvent{}, missing("event.timestamp")
	}

	e := event.ProtocolEvent{
		ID:        raw.ID,
		ChainID:   chainID,
		EventType: t,
		Amount:    decimal.Zero,
		Metadata:  event.Metadata{},
	}
	e.SetTimestamp(raw.Timestamp.Decimal.IntPart())

	hash := raw.TxHash
	if hash == "" {
		hash = event.TxHashFromID(raw.ID)
	}
	e.TxHash = strPtr(hash)

	asset := raw.Reserve
	user := raw.User.id()
	amount := raw.Amount
	price := raw.AssetPriceUSD

	switch t {
	case event.TypeSupply, event.TypeBorrow:
		if c := raw.Caller.id(); c != "" && c != user {
			e.Metadata["caller"] = c
		}
		if r := raw.Referrer.id(); r != "" {
			e.Metadata["referrer"] = r
		}
		if t == event.TypeBorrow {
			e.BorrowRate = raw.BorrowRate
			if raw.BorrowRateMode != "" {
				e.Metadata["borrow_rate_mode"] = raw.BorrowRateMode.String()
			}
			if raw.StableTokenDebt != "" {
				e.Metadata["stable_token_debt"] = raw.StableTokenDebt
			}
			if raw.VariableTokenDebt != "" {
				e.Metadata["variable_token_debt"] = raw.VariableTokenDebt
			}
		}
	case event.TypeWithdraw:
		if to := raw.To.id(); to != "" && to != user {
			e.Metadata["to"] = to
		}
	case event.TypeRepay:
		if r := raw.Repayer.id(); r != "" && r != user {
			e.Metadata["repayer"] = r
		}
		if raw.UseATokens != nil {
			e.Metadata["use_atokens"] = fmt.Sprint(*raw.UseATokens)
		}
	case event.TypeLiquidation:
		// the primary asset is the repaid debt, the collateral side is kept alongside
		asset = raw.PrincipalReserve
		amount = raw.PrincipalAmount
		price = raw.BorrowAssetPriceUSD
		e.LiquidatorAddress = strPtr(raw.Liquidator.id())
		if c := raw.CollateralReserve; c != nil {
			e.CollateralAssetAddress = strPtr(strings.ToLower(c.UnderlyingAsset))
			e.CollateralAssetSymbol = strPtr(c.Symbol)
		}
		e.CollateralAmount = raw.CollateralAmount
		e.Metadata["collateral_decimals"] = fmt.Sprint(raw.CollateralReserve.decimals())
		if raw.CollateralAssetPriceUSD.Valid {
			e.Metadata["collateral_price_usd"] = raw.CollateralAssetPriceUSD.Decimal.String()
		}
		if raw.BorrowAssetPriceUSD.Valid {
			e.Metadata["borrow_price_usd"] = raw.BorrowAssetPriceUSD.Decimal.String()
		}
		if v := usdValue(raw.CollateralAmount, raw.CollateralReserve.decimals(), raw.CollateralAssetPriceUSD); v.Valid {
			e.Metadata["collateral_amount_usd"] = v.Decimal.String()
		}
	case event.TypeFlashLoan:
		user = raw.Initiator.id()
		for key, val := range map[string]string{
			"target":       raw.Target,
			"total_fee":    raw.TotalFee,
			"lp_fee":       raw.LpFee,
			"protocol_fee": raw.ProtocolFee,
		} {
			if val != "" {
				e.Metadata[key] = val
			}
		}
	}

	if asset == nil || asset.UnderlyingAsset == "" {
		return event.ProtocolEvent{}, missing("event.reserve")
	}
	e.UserAddress = user
	e.AssetAddress = strings.ToLower(asset.UnderlyingAsset)
	e.AssetSymbol = asset.Symbol
	e.AssetDecimals = asset.decimals()
	if amount.Valid {
		e.Amount = amount.Decimal
	}
	e.AmountUSD = usdValue(amount, e.AssetDecimals, price)
	if len(e.Metadata) == 0 {
		e.Metadata = nil
	}
	return e, nil
}

// FetchEvents pages events of kind t with a timestamp strictly after from,
// handing each converted page to handle. Paging stops at a short page or
// after maxRecords events.
func (s *Source) FetchEvents(ctx context.Context, chainID string, t event.Type, from time.Time, handle func([]event.ProtocolEvent) error) error {
	chain, err := LookupChain(chainID)
	if err != nil {
		return err
	}
	entity, ok := eventEntity[t]
	if !ok {
		return errors.NewValidationError("event_type", "unknown event type", string(t))
	}
	query := eventsQuery(t)

	for skip := 0; skip < s.maxRecords; skip += s.pageSize {
		var data map[string][]rawEvent
		vars := map[string]interface{}{"from": from.Unix(), "first": s.pageSize, "skip": skip}
		if err := s.client.Query(ctx, chain, "events_"+string(t), query, vars, &data); err != nil {
			return errors.Wrapf(err, "%s page at %d", t, skip)
		}

		page := data[entity]
		if len(page) == 0 {
			return nil
		}

		events := make([]event.ProtocolEvent, 0, len(page))
		for _, raw := range page {
			e, err := toEvent(raw, t, chain.ID)
			if err != nil {
				return errors.Wrapf(err, "%s %s", t, raw.ID)
			}
			events = append(events, e)
		}
		if err := handle(events); err != nil {
			return err
		}

		if len(page) < s.pageSize {
			return nil
		}
	}
	return nil
}
