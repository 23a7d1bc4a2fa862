package riskanalysis

import (
	"context"
	"time"

	"lendingrisk/internal/workers"
	"lendingrisk/pkg/errors"
)

// EventIngester stores the recent protocol events of a chain
type EventIngester interface {
	IngestChain(ctx context.Context, chainID string) (int, error)
}

// ProtocolEventCollector stores supplies, borrows, repays, withdrawals, liquidations
// and flash loans for every configured chain
type ProtocolEventCollector struct {
	*workers.BaseWorker
	ingester EventIngester
	chains   []string
}

// NewProtocolEventCollector creates a new protocol event worker
func NewProtocolEventCollector(ingester EventIngester, chains []string, interval time.Duration, enabled bool) *ProtocolEventCollector {
	return &ProtocolEventCollector{
		BaseWorker: workers.NewBaseWorker("protocol_event_collector", interval, enabled),
		ingester:   ingester,
		chains:     chains,
	}
}

// Run executes one ingestion pass
func (w *ProtocolEventCollector) Run(ctx context.Context) error {
	var errs errors.MultiError
	total := 0

	for _, chainID := range w.chains {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := w.ingester.IngestChain(ctx, chainID)
		total += n
		if err != nil {
			w.Log().Warnw("Event ingestion incomplete", "chain_id", chainID, "stored", n, "error", err)
			errs.Add(errors.Wrapf(err, "chain %s", chainID))
		}
	}

	w.Log().Infow("Protocol events collected", "new_events", total, "chains", len(w.chains))
	return errs.ToError()
}
