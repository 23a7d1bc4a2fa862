package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingrisk/internal/domain/reserve"
	"lendingrisk/pkg/errors"
)

// fakeGateway serves canned reserves and a fixed number of user reserves
type fakeGateway struct {
	mu        sync.Mutex
	users     int
	pages     []int // skip values seen
	gqlErrors bool
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	if g.gqlErrors {
		fmt.Fprint(w, `{"data":null,"errors":[{"message":"indexing_error"}]}`)
		return
	}

	switch {
	case strings.Contains(req.Query, "userReserves"):
		first := int(req.Variables["first"].(float64))
		skip := int(req.Variables["skip"].(float64))
		g.mu.Lock()
		g.pages = append(g.pages, skip)
		g.mu.Unlock()

		items := make([]string, 0, first)
		for i := skip; i < skip+first && i < g.users; i++ {
			items = append(items, fmt.Sprintf(`{
				"id": "ur-%d",
				"user": {"id": "0xUSER%d"},
				"reserve": %s,
				"currentATokenBalance": "1000000000000000000",
				"currentVariableDebt": "500000000000000000",
				"currentStableDebt": "0",
				"usageAsCollateralEnabledOnUser": true
			}`, i, i, wethReserveJSON))
		}
		fmt.Fprintf(w, `{"data":{"userReserves":[%s]}}`, strings.Join(items, ","))
	default:
		fmt.Fprintf(w, `{"data":{"reserves":[%s, {"symbol":"GHO","underlyingAsset":"0x40d1","decimals":18,"baseLTVasCollateral":"0","reserveLiquidationThreshold":"0","price":null}]}}`, wethReserveJSON)
	}
}

func newTestSource(t *testing.T, gw http.Handler, pageSize, maxRecords int) *Source {
	t.Helper()
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{APIKey: "test", Timeout: 5 * time.Second, RateLimit: 1000, Endpoint: srv.URL})
	src := NewSource(client, pageSize, maxRecords)
	src.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return src
}

func TestFetchSnapshot(t *testing.T) {
	gw := &fakeGateway{users: 5}
	src := newTestSource(t, gw, 2, 100)

	snap, err := src.FetchSnapshot(context.Background(), "ethereum")
	require.NoError(t, err)

	assert.Equal(t, "ethereum", snap.ChainID)
	assert.Equal(t, "0x54586bE62E3c3580375aE3723C145253060Ca0C2", snap.OracleAddress)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), snap.SnapshotTimeUTC)

	require.Len(t, snap.ReserveConfigs, 1, "unpriced reserve is skipped")
	assert.Equal(t, "WETH", snap.ReserveConfigs[0].Symbol)

	require.Len(t, snap.Positions, 5)
	assert.Equal(t, "0xuser0", snap.Positions[0].UserAddress)
	assert.True(t, d("2000").Equal(snap.Positions[0].CollateralUSD))
	assert.True(t, d("1000").Equal(snap.Positions[0].DebtUSD))

	assert.Equal(t, []int{0, 2, 4}, gw.pages)
}

func TestFetchUserReservesStopsAtMaxRecords(t *testing.T) {
	gw := &fakeGateway{users: 10}
	src := newTestSource(t, gw, 3, 100)

	positions, err := src.FetchUserReserves(context.Background(), "base", 7)
	require.NoError(t, err)

	assert.Len(t, positions, 7)
	assert.Equal(t, []int{0, 3, 6}, gw.pages)
}

func TestFetchSnapshotUnknownChain(t *testing.T) {
	src := newTestSource(t, &fakeGateway{}, 10, 10)

	_, err := src.FetchSnapshot(context.Background(), "solana")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestFetchSnapshotGraphQLErrors(t *testing.T) {
	src := newTestSource(t, &fakeGateway{gqlErrors: true}, 10, 10)

	_, err := src.FetchSnapshot(context.Background(), "ethereum")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
	assert.Contains(t, err.Error(), "indexing_error")
}

func TestFetchSnapshotHTTPError(t *testing.T) {
	gw := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	src := newTestSource(t, gw, 10, 10)

	_, err := src.FetchReserves(context.Background(), "ethereum")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
}

func TestFetchReserveSnapshots(t *testing.T) {
	var gotAddresses []interface{}
	gw := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables map[string]interface{} `json:"variables"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotAddresses, _ = req.Variables["addresses"].([]interface{})
		fmt.Fprint(w, `{"data":{"reserves":[{
			"symbol":"WETH","underlyingAsset":"0x4200000000000000000000000000000000000006","decimals":18,
			"totalLiquidity":"4000000000000000000","totalCurrentVariableDebt":"1000000000000000000",
			"totalPrincipalStableDebt":"0","price":{"priceInUsd":"250000000000"},"lastUpdateTimestamp":1700000000
		}]}}`)
	})
	src := newTestSource(t, gw, 10, 10)

	market, err := LookupMarket("base", "aave-v3-base")
	require.NoError(t, err)

	at := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	snaps, err := src.FetchReserveSnapshots(context.Background(), market, at)
	require.NoError(t, err)

	assert.Len(t, gotAddresses, 2)
	require.Len(t, snaps, 1)
	assert.Equal(t, "aave-v3-base", snaps[0].MarketID)
	assert.Equal(t, reserve.TruncateHour(at), snaps[0].TimestampHour)
	assert.True(t, d("0.25").Equal(snaps[0].Utilization))
	assert.True(t, d("2500").Equal(snaps[0].BorrowedValueUSD.Decimal))
}

func TestLookupMarket(t *testing.T) {
	_, err := LookupMarket("ethereum", "compound-v3")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	assert.Equal(t, []string{"base", "ethereum"}, ChainIDs())
}

func TestChainURL(t *testing.T) {
	c, err := LookupChain("base")
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.thegraph.com/api/k123/subgraphs/id/GQFbb95cE6d8mV989mL5figjaGaKCQB3xqYrr1bRyXqF", c.URL("k123"))
}
