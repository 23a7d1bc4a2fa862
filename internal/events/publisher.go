package events

import (
	"context"
	"time"

	"lendingrisk/internal/adapters/kafka"
	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/pkg/errors"
	"lendingrisk/pkg/logger"
)

// producer is the part of kafka.Producer the publisher uses
type producer interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Publisher publishes analysis events keyed by chain
type Publisher struct {
	producer producer
	now      func() time.Time
	log      *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(p producer) *Publisher {
	return &Publisher{
		producer: p,
		now:      time.Now,
		log:      logger.Get().With("component", "event_publisher"),
	}
}

// PublishAnalysisCompleted publishes the compact result of a run
func (p *Publisher) PublishAnalysisCompleted(ctx context.Context, a *healthfactor.Analysis) error {
	event := NewAnalysisCompleted(a)
	if err := p.producer.Publish(ctx, kafka.TopicAnalysisCompleted, event.ChainID, event); err != nil {
		return errors.Wrapf(err, "publish analysis completed: chain_id=%s", event.ChainID)
	}
	p.log.Debugw("Published analysis completed", "chain_id", event.ChainID, "event_id", event.EventID)
	return nil
}

// RequestAnalysis enqueues an on-demand run for a chain
func (p *Publisher) RequestAnalysis(ctx context.Context, chainID string) error {
	req := AnalysisRequest{ChainID: chainID, RequestedAt: p.now().UTC()}
	if err := p.producer.Publish(ctx, kafka.TopicAnalysisRequests, chainID, req); err != nil {
		return errors.Wrapf(err, "publish analysis request: chain_id=%s", chainID)
	}
	return nil
}
