package consumers

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"lendingrisk/internal/adapters/kafka"
	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/events"
	"lendingrisk/pkg/errors"
	"lendingrisk/pkg/logger"
)

// AnalysisRunner runs one analysis for a chain
type AnalysisRunner interface {
	RunAnalysis(ctx context.Context, chainID string) (*healthfactor.Analysis, error)
}

// AnalysisRequestConsumer turns analysis requests into analysis runs
type AnalysisRequestConsumer struct {
	consumer   *kafka.Consumer
	runner     AnalysisRunner
	runTimeout time.Duration
	maxAge     time.Duration
	now        func() time.Time
	log        *logger.Logger
}

// NewAnalysisRequestConsumer creates a new request consumer.
// Requests older than maxAge are dropped.
func NewAnalysisRequestConsumer(consumer *kafka.Consumer, runner AnalysisRunner, runTimeout, maxAge time.Duration) *AnalysisRequestConsumer {
	if runTimeout == 0 {
		runTimeout = 5 * time.Minute
	}
	if maxAge == 0 {
		maxAge = 30 * time.Minute
	}
	return &AnalysisRequestConsumer{
		consumer:   consumer,
		runner:     runner,
		runTimeout: runTimeout,
		maxAge:     maxAge,
		now:        time.Now,
		log:        logger.Get().With("component", "analysis_request_consumer"),
	}
}

// Start consumes requests until ctx is cancelled, then closes the reader
func (c *AnalysisRequestConsumer) Start(ctx context.Context) error {
	c.log.Infow("Subscribed to analysis requests", "topic", kafka.TopicAnalysisRequests)

	defer func() {
		if err := c.consumer.Close(); err != nil {
			c.log.Errorw("Failed to close analysis request consumer", "error", err)
		}
	}()

	err := c.consumer.Consume(ctx, c.handleMessage)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *AnalysisRequestConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	var req events.AnalysisRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return errors.Wrap(err, "unmarshal analysis request")
	}
	if req.ChainID == "" {
		return errors.NewValidationError("chain_id", "must not be empty", req.ChainID)
	}

	if !req.RequestedAt.IsZero() && c.now().Sub(req.RequestedAt) > c.maxAge {
		c.log.Infow("Dropping stale analysis request", "chain_id", req.ChainID, "requested_at", req.RequestedAt)
		return nil
	}

	// a run in progress must finish even if shutdown starts
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.runTimeout)
	defer cancel()

	_, err := c.runner.RunAnalysis(runCtx, req.ChainID)
	if errors.Is(err, errors.ErrLocked) {
		c.log.Infow("Analysis already running, request skipped", "chain_id", req.ChainID)
		return nil
	}
	return err
}
