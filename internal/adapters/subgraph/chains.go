package subgraph

import (
	"sort"
	"strings"

	"lendingrisk/internal/domain/reserve"
	"lendingrisk/pkg/errors"
)

// Chain describes one indexed deployment
type Chain struct {
	ID            string
	Name          string
	URLTemplate   string // {api_key} is replaced at request time
	OracleAddress string
	Markets       []reserve.Market
}

// URL returns the endpoint with the API key substituted
func (c Chain) URL(apiKey string) string {
	return strings.ReplaceAll(c.URLTemplate, "{api_key}", apiKey)
}

var chains = map[string]Chain{
	"ethereum": {
		ID:            "ethereum",
		Name:          "Ethereum Mainnet",
		URLTemplate:   "https://gateway.thegraph.com/api/{api_key}/subgraphs/id/Cd2gEDVeqnjBn1hSeqFMitw8Q1iiyV9FYUZkLNRcL87g",
		OracleAddress: "0x54586bE62E3c3580375aE3723C145253060Ca0C2",
		Markets: []reserve.Market{{
			MarketID: "aave-v3-ethereum",
			Name:     "Aave V3 Ethereum",
			ChainID:  "ethereum",
			Assets: []reserve.Asset{
				{Symbol: "WETH", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"},
				{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
			},
		}},
	},
	"base": {
		ID:            "base",
		Name:          "Base",
		URLTemplate:   "https://gateway.thegraph.com/api/{api_key}/subgraphs/id/GQFbb95cE6d8mV989mL5figjaGaKCQB3xqYrr1bRyXqF",
		OracleAddress: "0x2Cc0Fc26eD4563A5ce5e8bdcfe1A2878676Ae156",
		Markets: []reserve.Market{{
			MarketID: "aave-v3-base",
			Name:     "Aave V3 Base",
			ChainID:  "base",
			Assets: []reserve.Asset{
				{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006"},
				{Symbol: "USDC", Address: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"},
			},
		}},
	},
}

// LookupChain returns the chain with the given ID
func LookupChain(chainID string) (Chain, error) {
	c, ok := chains[chainID]
	if !ok {
		return Chain{}, errors.Wrapf(errors.ErrNotFound, "chain %q", chainID)
	}
	return c, nil
}

// ChainIDs lists the supported chains in name order
func ChainIDs() []string {
	ids := make([]string, 0, len(chains))
	for id := range chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LookupMarket finds a market by chain and ID
func LookupMarket(chainID, marketID string) (reserve.Market, error) {
	c, err := LookupChain(chainID)
	if err != nil {
		return reserve.Market{}, err
	}
	for _, m := range c.Markets {
		if m.MarketID == marketID {
			return m, nil
		}
	}
	return reserve.Market{}, errors.Wrapf(errors.ErrNotFound, "market %q on %s", marketID, chainID)
}

// Markets lists the tracked markets of a chain
func Markets(chainID string) ([]reserve.Market, error) {
	c, err := LookupChain(chainID)
	if err != nil {
		return nil, err
	}
	return c.Markets, nil
}

// Catalog exposes the static chain table to services
type Catalog struct{}

func (Catalog) LookupMarket(chainID, marketID string) (reserve.Market, error) {
	return LookupMarket(chainID, marketID)
}

func (Catalog) Markets(chainID string) ([]reserve.Market, error) {
	return Markets(chainID)
}
