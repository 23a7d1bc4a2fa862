package reserveservice

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lendingrisk/internal/domain/reserve"
	"lendingrisk/pkg/errors"
	"lendingrisk/pkg/logger"
)

const (
	DefaultHistoryHours = 24
	MaxHistoryHours     = 168
	DefaultCurveSteps   = 100
)

// MarketCatalog resolves tracked markets
type MarketCatalog interface {
	LookupMarket(chainID, marketID string) (reserve.Market, error)
	Markets(chainID string) ([]reserve.Market, error)
}

// Curve is the rate curve of one reserve with its current position on it
type Curve struct {
	ChainID            string               `json:"chain_id"`
	MarketID           string               `json:"market_id"`
	AssetSymbol        string               `json:"asset_symbol"`
	AssetAddress       string               `json:"asset_address"`
	TimestampHour      time.Time            `json:"timestamp_hour"`
	CurrentUtilization decimal.Decimal      `json:"current_utilization"`
	CurrentBorrowRate  decimal.Decimal      `json:"current_variable_borrow_rate"`
	RateModel          reserve.RateModel    `json:"rate_model"`
	Points             []reserve.CurvePoint `json:"points"`
}

// MarketOverview is the latest stored snapshot of every tracked asset of a market
type MarketOverview struct {
	MarketID string             `json:"market_id"`
	Name     string             `json:"name"`
	Assets   []reserve.Snapshot `json:"assets"`
}

// ChainOverview groups the market overviews of one chain
type ChainOverview struct {
	ChainID string           `json:"chain_id"`
	Markets []MarketOverview `json:"markets"`
}

// Service ingests hourly reserve snapshots and serves market views
type Service struct {
	catalog MarketCatalog
	source  reserve.SnapshotSource
	repo    reserve.Repository
	now     func() time.Time
	log     *logger.Logger
}

// NewService creates a new reserve service
func NewService(catalog MarketCatalog, source reserve.SnapshotSource, repo reserve.Repository) *Service {
	return &Service{
		catalog: catalog,
		source:  source,
		repo:    repo,
		now:     time.Now,
		log:     logger.Get().With("component", "reserve_service"),
	}
}

// IngestMarket stores the current hour's snapshot of every tracked asset.
// Re-running within the same hour overwrites that hour's rows.
func (s *Service) IngestMarket(ctx context.Context, market reserve.Market) (int, error) {
	at := reserve.TruncateHour(s.now())

	snapshots, err := s.source.FetchReserveSnapshots(ctx, market, at)
	if err != nil {
		return 0, errors.Wrapf(err, "fetch reserves: market=%s", market.MarketID)
	}
	if len(snapshots) == 0 {
		s.log.Warnw("No reserve state returned", "chain_id", market.ChainID, "market_id", market.MarketID)
		return 0, nil
	}

	n, err := s.repo.UpsertSnapshots(ctx, snapshots)
	if err != nil {
		return 0, errors.Wrapf(err, "store reserves: market=%s", market.MarketID)
	}

	s.log.Infow("Reserve snapshots stored",
		"chain_id", market.ChainID,
		"market_id", market.MarketID,
		"timestamp_hour", at,
		"rows", n,
	)
	return n, nil
}

// IngestChain ingests every market of a chain. A failing market does not stop the others.
func (s *Service) IngestChain(ctx context.Context, chainID string) (int, error) {
	markets, err := s.catalog.Markets(chainID)
	if err != nil {
		return 0, err
	}

	total := 0
	var errs errors.MultiError
	for _, m := range markets {
		n, err := s.IngestMarket(ctx, m)
		if err != nil {
			s.log.Errorw("Reserve ingestion failed", "chain_id", chainID, "market_id", m.MarketID, "error", err)
			errs.Add(err)
			continue
		}
		total += n
	}
	return total, errs.ToError()
}

// GetHistory returns the hourly snapshots of the last hours hours, oldest first.
// asset is a symbol or an address; hours 0 means DefaultHistoryHours.
func (s *Service) GetHistory(ctx context.Context, chainID, marketID, asset string, hours int) ([]reserve.Snapshot, error) {
	if hours == 0 {
		hours = DefaultHistoryHours
	}
	if hours < 1 || hours > MaxHistoryHours {
		return nil, errors.NewValidationError("hours", "must be in [1,168]", hours)
	}

	a, err := s.resolveAsset(chainID, marketID, asset)
	if err != nil {
		return nil, err
	}

	from := reserve.TruncateHour(s.now()).Add(-time.Duration(hours-1) * time.Hour)
	snapshots, err := s.repo.GetHistory(ctx, chainID, marketID, a.Address, from)
	if err != nil {
		return nil, err
	}
	if snapshots == nil {
		snapshots = []reserve.Snapshot{}
	}
	return snapshots, nil
}

// GetCurve samples the latest stored rate model of an asset.
// steps 0 means DefaultCurveSteps.
func (s *Service) GetCurve(ctx context.Context, chainID, marketID, asset string, steps int) (*Curve, error) {
	if steps == 0 {
		steps = DefaultCurveSteps
	}

	a, err := s.resolveAsset(chainID, marketID, asset)
	if err != nil {
		return nil, err
	}

	latest, err := s.repo.GetLatest(ctx, chainID, marketID, a.Address)
	if err != nil {
		return nil, err
	}
	if latest.RateModel == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "no rate model for %s", a.Symbol)
	}

	points, err := latest.RateModel.Curve(steps)
	if err != nil {
		return nil, err
	}

	return &Curve{
		ChainID:            chainID,
		MarketID:           marketID,
		AssetSymbol:        a.Symbol,
		AssetAddress:       a.Address,
		TimestampHour:      latest.TimestampHour,
		CurrentUtilization: latest.Utilization,
		CurrentBorrowRate:  latest.RateModel.VariableBorrowRate(latest.Utilization),
		RateModel:          *latest.RateModel,
		Points:             points,
	}, nil
}

// GetLatest returns the newest stored snapshot of an asset
func (s *Service) GetLatest(ctx context.Context, chainID, marketID, asset string) (*reserve.Snapshot, error) {
	a, err := s.resolveAsset(chainID, marketID, asset)
	if err != nil {
		return nil, err
	}
	return s.repo.GetLatest(ctx, chainID, marketID, a.Address)
}

// Overview returns the latest snapshot of every tracked asset across chains.
// Assets never snapshotted are left out, as are markets and chains left empty.
func (s *Service) Overview(ctx context.Context, chainIDs []string) ([]ChainOverview, error) {
	out := []ChainOverview{}
	for _, chainID := range chainIDs {
		markets, err := s.catalog.Markets(chainID)
		if err != nil {
			return nil, err
		}

		chain := ChainOverview{ChainID: chainID}
		for _, m := range markets {
			mo := MarketOverview{MarketID: m.MarketID, Name: m.Name}
			for _, a := range m.Assets {
				latest, err := s.repo.GetLatest(ctx, chainID, m.MarketID, a.Address)
				if errors.Is(err, errors.ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, errors.Wrapf(err, "latest %s/%s/%s", chainID, m.MarketID, a.Symbol)
				}
				mo.Assets = append(mo.Assets, *latest)
			}
			if len(mo.Assets) > 0 {
				chain.Markets = append(chain.Markets, mo)
			}
		}
		if len(chain.Markets) > 0 {
			out = append(out, chain)
		}
	}
	return out, nil
}

func (s *Service) resolveAsset(chainID, marketID, asset string) (reserve.Asset, error) {
	if asset == "" {
		return reserve.Asset{}, errors.NewValidationError("asset", "must not be empty", asset)
	}
	market, err := s.catalog.LookupMarket(chainID, marketID)
	if err != nil {
		return reserve.Asset{}, err
	}
	for _, a := range market.Assets {
		if strings.EqualFold(a.Symbol, asset) || strings.EqualFold(a.Address, asset) {
			return a, nil
		}
	}
	return reserve.Asset{}, errors.Wrapf(errors.ErrNotFound, "asset %q in market %s", asset, marketID)
}
