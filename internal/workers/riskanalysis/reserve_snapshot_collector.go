package riskanalysis

import (
	"context"
	"time"

	"lendingrisk/internal/workers"
	"lendingrisk/pkg/errors"
)

// ReserveIngester stores the current reserve state of a chain
type ReserveIngester interface {
	IngestChain(ctx context.Context, chainID string) (int, error)
}

// ReserveSnapshotCollector stores hourly reserve snapshots for every configured chain
type ReserveSnapshotCollector struct {
	*workers.BaseWorker
	ingester ReserveIngester
	chains   []string
}

// NewReserveSnapshotCollector creates a new reserve snapshot worker
func NewReserveSnapshotCollector(ingester ReserveIngester, chains []string, interval time.Duration, enabled bool) *ReserveSnapshotCollector {
	return &ReserveSnapshotCollector{
		BaseWorker: workers.NewBaseWorker("reserve_snapshot_collector", interval, enabled),
		ingester:   ingester,
		chains:     chains,
	}
}

// Run executes one collection pass
func (w *ReserveSnapshotCollector) Run(ctx context.Context) error {
	var errs errors.MultiError
	total := 0

	for _, chainID := range w.chains {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := w.ingester.IngestChain(ctx, chainID)
		total += n
		if err != nil {
			errs.Add(errors.Wrapf(err, "chain %s", chainID))
		}
	}

	w.Log().Infow("Reserve snapshots collected", "rows", total, "chains", len(w.chains))
	return errs.ToError()
}
