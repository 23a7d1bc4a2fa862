package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingrisk/internal/domain/event"
	"lendingrisk/pkg/errors"
)

const txHash = "0x1111111111111111111111111111111111111111111111111111111111111111"

func decodeEvent(t *testing.T, raw string) rawEvent {
	t.Helper()
	var e rawEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	return e
}

func TestToEventSupply(t *testing.T) {
	raw := decodeEvent(t, `{
		"id": "`+txHash+`-4",
		"timestamp": 1741271710,
		"amount": "2500000000",
		"assetPriceUSD": "0.9998",
		"user": {"id": "0xUSER"},
		"caller": {"id": "0xROUTER"},
		"referrer": null,
		"reserve": {"symbol": "USDC", "underlyingAsset": "0xA0b8", "decimals": 6}
	}`)

	e, err := toEvent(raw, event.TypeSupply, "ethereum")
	require.NoError(t, err)

	assert.Equal(t, event.TypeSupply, e.EventType)
	require.NotNil(t, e.TxHash)
	assert.Equal(t, txHash, *e.TxHash)
	assert.Equal(t, "0xuser", e.UserAddress)
	assert.Equal(t, "0xa0b8", e.AssetAddress)
	assert.Equal(t, 6, e.AssetDecimals)
	assert.True(t, decimal.NewFromInt(2500000000).Equal(e.Amount))
	require.True(t, e.AmountUSD.Valid)
	assert.Equal(t, "2499.5", e.AmountUSD.Decimal.String())
	assert.Equal(t, "0xrouter", e.Metadata["caller"])
	assert.Equal(t, time.Date(2025, 3, 6, 14, 0, 0, 0, time.UTC), e.TimestampHour)
}

func TestToEventLiquidation(t *testing.T) {
	raw := decodeEvent(t, `{
		"id": "liq-1",
		"txHash": "`+txHash+`",
		"timestamp": "1741271710",
		"user": {"id": "0xBORROWER"},
		"liquidator": "0xBOT",
		"collateralAmount": "1000000000000000000",
		"collateralReserve": {"symbol": "WETH", "underlyingAsset": "0xC02a", "decimals": 18},
		"principalAmount": "1500000000",
		"principalReserve": {"symbol": "USDC", "underlyingAsset": "0xA0b8", "decimals": 6},
		"collateralAssetPriceUSD": "2000",
		"borrowAssetPriceUSD": "1"
	}`)

	e, err := toEvent(raw, event.TypeLiquidation, "ethereum")
	require.NoError(t, err)

	assert.Equal(t, "0xborrower", e.UserAddress)
	require.NotNil(t, e.LiquidatorAddress)
	assert.Equal(t, "0xbot", *e.LiquidatorAddress)
	assert.Equal(t, "USDC", e.AssetSymbol)
	assert.Equal(t, "1500", e.AmountUSD.Decimal.String())
	require.NotNil(t, e.CollateralAssetSymbol)
	assert.Equal(t, "WETH", *e.CollateralAssetSymbol)
	assert.Equal(t, "0xc02a", *e.CollateralAssetAddress)
	assert.Equal(t, "2000", e.Metadata["collateral_amount_usd"])
	assert.Equal(t, "18", e.Metadata["collateral_decimals"])
}

func TestToEventLiquidatorAsObject(t *testing.T) {
	raw := decodeEvent(t, `{
		"id": "liq-2", "timestamp": 1,
		"liquidator": {"id": "0xBOT"},
		"principalReserve": {"symbol": "USDC", "underlyingAsset": "0xA0b8", "decimals": 6}
	}`)

	e, err := toEvent(raw, event.TypeLiquidation, "base")
	require.NoError(t, err)
	assert.Equal(t, "0xbot", *e.LiquidatorAddress)
	assert.False(t, e.AmountUSD.Valid)
}

func TestToEventFlashLoanUsesInitiator(t *testing.T) {
	raw := decodeEvent(t, `{
		"id": "fl-1", "timestamp": 1, "amount": "10",
		"initiator": {"id": "0xARB"}, "target": "0xTARGET", "totalFee": "5",
		"reserve": {"symbol": "DAI", "underlyingAsset": "0x6B17", "decimals": 18}
	}`)

	e, err := toEvent(raw, event.TypeFlashLoan, "ethereum")
	require.NoError(t, err)
	assert.Equal(t, "0xarb", e.UserAddress)
	assert.Equal(t, "0xTARGET", e.Metadata["target"])
	assert.Equal(t, "5", e.Metadata["total_fee"])
	assert.Nil(t, e.TxHash)
}

func TestToEventMissingFields(t *testing.T) {
	_, err := toEvent(decodeEvent(t, `{"timestamp": 1}`), event.TypeSupply, "ethereum")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = toEvent(decodeEvent(t, `{"id": "x", "timestamp": 1}`), event.TypeRepay, "ethereum")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

// eventGateway serves n borrows after any timestamp
type eventGateway struct {
	mu    sync.Mutex
	n     int
	froms []float64
	skips []int
}

func (g *eventGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	first := int(req.Variables["first"].(float64))
	skip := int(req.Variables["skip"].(float64))
	g.mu.Lock()
	g.froms = append(g.froms, req.Variables["from"].(float64))
	g.skips = append(g.skips, skip)
	g.mu.Unlock()

	items := make([]string, 0, first)
	for i := skip; i < skip+first && i < g.n; i++ {
		items = append(items, fmt.Sprintf(`{
			"id": "b-%d", "timestamp": %d, "amount": "1", "assetPriceUSD": "1",
			"borrowRateMode": 2, "user": {"id": "0xU%d"},
			"reserve": {"symbol": "USDC", "underlyingAsset": "0xA0b8", "decimals": 6}
		}`, i, 1741271710+i, i))
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"data":{"borrows":[%s]}}`, strings.Join(items, ","))
}

func TestFetchEventsPages(t *testing.T) {
	gw := &eventGateway{n: 5}
	src := newTestSource(t, gw, 2, 100)
	from := time.Unix(1741271700, 0)

	var pages [][]event.ProtocolEvent
	err := src.FetchEvents(context.Background(), "ethereum", event.TypeBorrow, from, func(page []event.ProtocolEvent) error {
		pages = append(pages, page)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, pages, 3)
	assert.Len(t, pages[2], 1)
	assert.Equal(t, "2", pages[0][0].Metadata["borrow_rate_mode"])
	assert.Equal(t, []int{0, 2, 4}, gw.skips)
	for _, f := range gw.froms {
		assert.Equal(t, float64(1741271700), f)
	}
}

func TestFetchEventsStopsOnHandlerError(t *testing.T) {
	gw := &eventGateway{n: 5}
	src := newTestSource(t, gw, 2, 100)

	boom := errors.New("store down")
	err := src.FetchEvents(context.Background(), "ethereum", event.TypeBorrow, time.Unix(0, 0), func([]event.ProtocolEvent) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, gw.skips, 1)
}

func TestFetchEventsUnknownType(t *testing.T) {
	src := newTestSource(t, &eventGateway{}, 2, 100)
	err := src.FetchEvents(context.Background(), "ethereum", event.Type("mint"), time.Unix(0, 0), func([]event.ProtocolEvent) error { return nil })
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}
