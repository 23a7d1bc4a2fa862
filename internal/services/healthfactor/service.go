package healthfactorservice

import (
	"context"
	"time"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/metrics"
	"lendingrisk/pkg/errors"
	"lendingrisk/pkg/logger"
)

const (
	DefaultHistoryLimit = 168 // one week of hourly runs
	MaxHistoryLimit     = 720
)

// EventPublisher announces finished analyses
type EventPublisher interface {
	PublishAnalysisCompleted(ctx context.Context, analysis *healthfactor.Analysis) error
}

// Notifier sends human-readable digests
type Notifier interface {
	NotifyAnalysis(ctx context.Context, analysis *healthfactor.Analysis) error
}

// Config holds run budgets
type Config struct {
	Timeout  time.Duration // wall-clock budget for fetch + analysis
	LockTTL  time.Duration
	CacheTTL time.Duration
}

// Service runs analyses and serves their results
type Service struct {
	engine    *healthfactor.Engine
	source    healthfactor.SnapshotSource
	repo      healthfactor.Repository
	history   healthfactor.HistoryRepository
	cache     healthfactor.Cache
	publisher EventPublisher // optional
	notifier  Notifier       // optional
	cfg       Config
	log       *logger.Logger
}

// NewService creates a new analysis service. publisher and notifier may be nil.
func NewService(
	engine *healthfactor.Engine,
	source healthfactor.SnapshotSource,
	repo healthfactor.Repository,
	history healthfactor.HistoryRepository,
	cache healthfactor.Cache,
	publisher EventPublisher,
	notifier Notifier,
	cfg Config,
) *Service {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 2 * time.Hour
	}
	return &Service{
		engine:    engine,
		source:    source,
		repo:      repo,
		history:   history,
		cache:     cache,
		publisher: publisher,
		notifier:  notifier,
		cfg:       cfg,
		log:       logger.Get().With("component", "healthfactor_service"),
	}
}

// RunAnalysis fetches a fresh snapshot, analyzes and stores it.
// Returns ErrLocked when another run for the chain is in progress.
func (s *Service) RunAnalysis(ctx context.Context, chainID string) (*healthfactor.Analysis, error) {
	if chainID == "" {
		return nil, errors.NewValidationError("chain_id", "must not be empty", chainID)
	}
	log := s.log.With("chain_id", chainID)

	acquired, err := s.cache.AcquireRunLock(ctx, chainID, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		metrics.RecordAnalysisSkipped(chainID)
		return nil, errors.Wrapf(errors.ErrLocked, "analysis already running: chain_id=%s", chainID)
	}
	defer func() {
		if err := s.cache.ReleaseRunLock(context.Background(), chainID); err != nil {
			log.Warnw("Failed to release run lock", "error", err)
		}
	}()

	start := time.Now()
	analysis, err := s.analyze(ctx, chainID)
	metrics.RecordAnalysis(chainID, time.Since(start), err)
	if err != nil {
		log.Errorw("Analysis failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	if err := s.repo.SaveAnalysis(ctx, analysis); err != nil {
		return nil, errors.Wrap(err, "save analysis")
	}

	s.afterSave(ctx, log, analysis)

	sum := analysis.Summary
	log.Infow("Analysis completed",
		"snapshot_time", sum.DataSource.SnapshotTimeUTC,
		"total_users", sum.TotalUsers,
		"users_with_debt", sum.UsersWithDebt,
		"users_at_risk", sum.UsersAtRisk,
		"users_excluded", sum.UsersExcluded,
		"duration", time.Since(start),
	)
	return analysis, nil
}

// analyze runs fetch and engine under the wall-clock budget
func (s *Service) analyze(ctx context.Context, chainID string) (*healthfactor.Analysis, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	snap, err := s.source.FetchSnapshot(runCtx, chainID)
	if err == nil {
		var analysis *healthfactor.Analysis
		analysis, err = s.engine.Analyze(runCtx, *snap)
		if err == nil {
			return analysis, nil
		}
	}

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return nil, errors.Wrapf(errors.ErrTimeout, "analysis exceeded %s: %v", s.cfg.Timeout, err)
	}
	return nil, err
}

// afterSave runs the best-effort side effects; failures are only logged
func (s *Service) afterSave(ctx context.Context, log *logger.Logger, analysis *healthfactor.Analysis) {
	sum := analysis.Summary

	if err := s.history.AppendDistribution(ctx, healthfactor.NewDistributionPoint(sum)); err != nil {
		log.Errorw("Failed to append distribution history", "error", err)
	}
	if err := s.cache.SetLatest(ctx, analysis, s.cfg.CacheTTL); err != nil {
		log.Warnw("Failed to cache analysis", "error", err)
	}

	metrics.SetAnalysisUsers(sum.ChainID, sum.TotalUsers, sum.UsersWithDebt, sum.UsersAtRisk, sum.UsersExcluded)
	for label, sim := range analysis.Simulation {
		metrics.SetSimulatedLiquidatable(sum.ChainID, label, sim.UsersLiquidatable)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishAnalysisCompleted(ctx, analysis); err != nil {
			log.Warnw("Failed to publish analysis event", "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyAnalysis(ctx, analysis); err != nil {
			log.Warnw("Failed to send risk digest", "error", err)
		}
	}
}

// GetLatest returns the newest analysis, from cache when possible.
// A Postgres hit refills the cache.
func (s *Service) GetLatest(ctx context.Context, chainID string) (*healthfactor.Analysis, error) {
	analysis, err := s.cache.GetLatest(ctx, chainID)
	if err == nil {
		return analysis, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		s.log.Warnw("Cache read failed, falling back to database", "chain_id", chainID, "error", err)
	}

	analysis, err = s.repo.GetLatest(ctx, chainID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetLatest(ctx, analysis, s.cfg.CacheTTL); err != nil {
		s.log.Warnw("Failed to refill cache", "chain_id", chainID, "error", err)
	}
	return analysis, nil
}

// GetDistributionHistory returns up to limit points, newest first.
// limit 0 means DefaultHistoryLimit.
func (s *Service) GetDistributionHistory(ctx context.Context, chainID string, limit int) ([]healthfactor.DistributionPoint, error) {
	if chainID == "" {
		return nil, errors.NewValidationError("chain_id", "must not be empty", chainID)
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit < 1 || limit > MaxHistoryLimit {
		return nil, errors.NewValidationError("limit", "must be in [1,720]", limit)
	}

	points, err := s.history.GetDistributionHistory(ctx, chainID, limit)
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []healthfactor.DistributionPoint{}
	}
	return points, nil
}
