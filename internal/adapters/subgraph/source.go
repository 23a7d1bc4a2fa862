package subgraph

import (
	"context"
	"time"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/domain/reserve"
	"lendingrisk/pkg/errors"
	"lendingrisk/pkg/logger"
)

const (
	DefaultPageSize   = 1000
	DefaultMaxRecords = 5000
)

// Source reads lending protocol snapshots from the subgraph
type Source struct {
	client     *Client
	pageSize   int
	maxRecords int
	now        func() time.Time
	log        *logger.Logger
}

var (
	_ healthfactor.SnapshotSource = (*Source)(nil)
	_ reserve.SnapshotSource      = (*Source)(nil)
)

// NewSource creates a new snapshot source
func NewSource(client *Client, pageSize, maxRecords int) *Source {
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &Source{
		client:     client,
		pageSize:   pageSize,
		maxRecords: maxRecords,
		now:        time.Now,
		log:        logger.Get().With("component", "subgraph_source"),
	}
}

// FetchSnapshot reads reserve configs and user positions of a chain.
// Reserves or user reserves without an oracle price are left out.
func (s *Source) FetchSnapshot(ctx context.Context, chainID string) (*healthfactor.Snapshot, error) {
	chain, err := LookupChain(chainID)
	if err != nil {
		return nil, err
	}
	at := s.now().UTC()

	configs, err := s.fetchReserveConfigs(ctx, chain)
	if err != nil {
		return nil, err
	}

	records, err := s.fetchUserReserves(ctx, chain, s.maxRecords)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(configs))
	for _, c := range configs {
		known[c.Address] = true
	}

	positions := make([]healthfactor.UserPosition, 0, len(records))
	skipped := 0
	for _, ur := range records {
		pos, ok, err := toPosition(ur)
		if err != nil {
			return nil, errors.Wrapf(err, "user reserve %s", ur.ID)
		}
		if !ok {
			skipped++
			continue
		}
		// reserves past the first config page still carry their own parameters
		if !known[pos.AssetAddress] {
			cfg, _, _ := toReserveConfig(ur.Reserve)
			configs = append(configs, cfg)
			known[cfg.Address] = true
		}
		positions = append(positions, pos)
	}

	s.log.Infow("Fetched snapshot",
		"chain_id", chainID,
		"reserves", len(configs),
		"user_reserves", len(records),
		"positions", len(positions),
		"skipped_unpriced", skipped,
	)

	return &healthfactor.Snapshot{
		ChainID:         chain.ID,
		SnapshotTimeUTC: at,
		OracleAddress:   chain.OracleAddress,
		Positions:       positions,
		ReserveConfigs:  configs,
	}, nil
}

// FetchReserves returns the priced reserve configs of a chain
func (s *Source) FetchReserves(ctx context.Context, chainID string) ([]healthfactor.ReserveConfig, error) {
	chain, err := LookupChain(chainID)
	if err != nil {
		return nil, err
	}
	return s.fetchReserveConfigs(ctx, chain)
}

// FetchUserReserves returns up to maxRecords priced user positions
func (s *Source) FetchUserReserves(ctx context.Context, chainID string, maxRecords int) ([]healthfactor.UserPosition, error) {
	chain, err := LookupChain(chainID)
	if err != nil {
		return nil, err
	}
	records, err := s.fetchUserReserves(ctx, chain, maxRecords)
	if err != nil {
		return nil, err
	}

	positions := make([]healthfactor.UserPosition, 0, len(records))
	for _, ur := range records {
		pos, ok, err := toPosition(ur)
		if err != nil {
			return nil, errors.Wrapf(err, "user reserve %s", ur.ID)
		}
		if ok {
			positions = append(positions, pos)
		}
	}
	return positions, nil
}

// FetchReserveSnapshots reads the current state of the market's tracked assets
func (s *Source) FetchReserveSnapshots(ctx context.Context, market reserve.Market, at time.Time) ([]reserve.Snapshot, error) {
	chain, err := LookupChain(market.ChainID)
	if err != nil {
		return nil, err
	}

	addresses := make([]string, len(market.Assets))
	for i, a := range market.Assets {
		addresses[i] = a.Address
	}

	var data struct {
		Reserves []rawReserve `json:"reserves"`
	}
	vars := map[string]interface{}{"addresses": addresses}
	if err := s.client.Query(ctx, chain, "reserves_state", reserveStateQuery, vars, &data); err != nil {
		return nil, err
	}

	snapshots := make([]reserve.Snapshot, 0, len(data.Reserves))
	for i := range data.Reserves {
		snap, err := toReserveSnapshot(&data.Reserves[i], market.ChainID, market.MarketID, at)
		if err != nil {
			return nil, errors.Wrapf(err, "reserve %s", data.Reserves[i].Symbol)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func (s *Source) fetchReserveConfigs(ctx context.Context, chain Chain) ([]healthfactor.ReserveConfig, error) {
	var data struct {
		Reserves []rawReserve `json:"reserves"`
	}
	if err := s.client.Query(ctx, chain, "reserves", reserveConfigsQuery, nil, &data); err != nil {
		return nil, err
	}

	configs := make([]healthfactor.ReserveConfig, 0, len(data.Reserves))
	for i := range data.Reserves {
		cfg, ok, err := toReserveConfig(&data.Reserves[i])
		if err != nil {
			return nil, errors.Wrapf(err, "reserve %s", data.Reserves[i].Symbol)
		}
		if ok {
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

// fetchUserReserves pages with skip until a short page or maxRecords
func (s *Source) fetchUserReserves(ctx context.Context, chain Chain, maxRecords int) ([]rawUserReserve, error) {
	if maxRecords <= 0 {
		maxRecords = s.maxRecords
	}

	var all []rawUserReserve
	for skip := 0; skip < maxRecords; skip += s.pageSize {
		first := s.pageSize
		if remaining := maxRecords - skip; remaining < first {
			first = remaining
		}

		var data struct {
			UserReserves []rawUserReserve `json:"userReserves"`
		}
		vars := map[string]interface{}{"first": first, "skip": skip}
		if err := s.client.Query(ctx, chain, "user_reserves", userReservesQuery, vars, &data); err != nil {
			return nil, errors.Wrapf(err, "user reserves page at %d", skip)
		}

		all = append(all, data.UserReserves...)
		if len(data.UserReserves) < first {
			break
		}
	}
	return all, nil
}
