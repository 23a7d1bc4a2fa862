package riskanalysis

import (
	"context"
	"time"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/workers"
	"lendingrisk/pkg/errors"
)

// AnalysisRunner runs one analysis for a chain
type AnalysisRunner interface {
	RunAnalysis(ctx context.Context, chainID string) (*healthfactor.Analysis, error)
}

// HealthFactorAnalyzer runs the health factor analysis for every configured chain
type HealthFactorAnalyzer struct {
	*workers.BaseWorker
	runner AnalysisRunner
	chains []string
}

// NewHealthFactorAnalyzer creates a new analysis worker
func NewHealthFactorAnalyzer(runner AnalysisRunner, chains []string, interval time.Duration, enabled bool) *HealthFactorAnalyzer {
	return &HealthFactorAnalyzer{
		BaseWorker: workers.NewBaseWorker("health_factor_analyzer", interval, enabled),
		runner:     runner,
		chains:     chains,
	}
}

// Run analyzes chains one after another. A failing chain does not stop the rest;
// a chain whose previous run still holds the lock is skipped.
func (w *HealthFactorAnalyzer) Run(ctx context.Context) error {
	var errs errors.MultiError
	analyzed := 0

	for i, chainID := range w.chains {
		if ctx.Err() != nil {
			remaining := len(w.chains) - i
			w.Log().Infow("Analysis interrupted by shutdown", "analyzed", analyzed, "remaining", remaining)
			return errors.Wrapf(ctx.Err(), "analysis interrupted with %d of %d chains remaining", remaining, len(w.chains))
		}

		_, err := w.runner.RunAnalysis(ctx, chainID)
		switch {
		case err == nil:
			analyzed++
		case errors.Is(err, errors.ErrLocked):
			w.Log().Infow("Analysis already running, skipping chain", "chain_id", chainID)
		default:
			errs.Add(errors.Wrapf(err, "chain %s", chainID))
		}
	}

	w.Log().Debugw("Analysis iteration finished", "analyzed", analyzed, "chains", len(w.chains))
	return errs.ToError()
}
