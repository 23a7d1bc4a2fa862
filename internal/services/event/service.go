package eventservice

import (
	"context"
	"strings"
	"time"

	"lendingrisk/internal/domain/event"
	"lendingrisk/internal/domain/reserve"
	"lendingrisk/internal/metrics"
	"lendingrisk/pkg/errors"
	"lendingrisk/pkg/logger"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	EarliestRows = 3
)

// Service ingests protocol events from the indexer and serves per-asset views.
// Each run re-reads a lookback window; stored IDs make the overlap a no-op.
type Service struct {
	source   event.Source
	repo     event.Repository
	lookback time.Duration
	now      func() time.Time
	log      *logger.Logger
}

// NewService creates a new event service
func NewService(source event.Source, repo event.Repository, lookback time.Duration) *Service {
	return &Service{
		source:   source,
		repo:     repo,
		lookback: lookback,
		now:      time.Now,
		log:      logger.Get().With("component", "event_service"),
	}
}

// IngestChain stores every event of every kind newer than the lookback window.
// A failing kind does not stop the others.
func (s *Service) IngestChain(ctx context.Context, chainID string) (int, error) {
	from := reserve.TruncateHour(s.now()).Add(-s.lookback)

	total := 0
	var errs errors.MultiError
	for _, t := range event.Types {
		stored := 0
		err := s.source.FetchEvents(ctx, chainID, t, from, func(page []event.ProtocolEvent) error {
			n, err := s.repo.InsertEvents(ctx, page)
			stored += n
			return err
		})
		total += stored
		metrics.RecordEventsIngested(chainID, string(t), stored)

		if err != nil {
			s.log.Errorw("Event ingestion failed", "chain_id", chainID, "event_type", t, "stored", stored, "error", err)
			errs.Add(errors.Wrapf(err, "ingest %s events", t))
			continue
		}
		s.log.Debugw("Events stored", "chain_id", chainID, "event_type", t, "from", from, "rows", stored)
	}

	s.log.Infow("Protocol events ingested", "chain_id", chainID, "from", from, "rows", total)
	return total, errs.ToError()
}

// GetAssetEvents returns the newest limit events of an asset plus its earliest ones.
// types is a comma separated kind filter; limit 0 means DefaultLimit.
func (s *Service) GetAssetEvents(ctx context.Context, chainID, asset, types string, limit int) (*event.AssetEvents, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return nil, errors.NewValidationError("limit", "must be in [1,100]", limit)
	}
	if asset == "" {
		return nil, errors.NewValidationError("asset", "must not be empty", asset)
	}
	kinds, err := event.ParseTypes(types)
	if err != nil {
		return nil, err
	}

	return s.repo.GetAssetEvents(ctx, event.AssetQuery{
		ChainID:      chainID,
		AssetAddress: strings.ToLower(asset),
		Types:        kinds,
		Limit:        limit,
	}, EarliestRows)
}

// GetAssetStats summarises the stored events of an asset
func (s *Service) GetAssetStats(ctx context.Context, chainID, asset string) (*event.AssetStats, error) {
	if asset == "" {
		return nil, errors.NewValidationError("asset", "must not be empty", asset)
	}
	return s.repo.GetAssetStats(ctx, chainID, strings.ToLower(asset))
}

// Counts returns the number of stored events of a chain for every kind, zeros included
func (s *Service) Counts(ctx context.Context, chainID string) (map[event.Type]int, error) {
	counts, err := s.repo.CountByType(ctx, chainID)
	if err != nil {
		return nil, err
	}
	out := make(map[event.Type]int, len(event.Types))
	for _, t := range event.Types {
		out[t] = counts[t]
	}
	return out, nil
}
