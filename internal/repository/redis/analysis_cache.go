package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/metrics"
	"lendingrisk/pkg/errors"
)

// Compile-time check
var _ healthfactor.Cache = (*AnalysisCache)(nil)

// AnalysisCache keeps the latest analysis per chain and the per-chain run lock
type AnalysisCache struct {
	client *redis.Client
}

// NewAnalysisCache creates a new analysis cache
func NewAnalysisCache(client *redis.Client) *AnalysisCache {
	return &AnalysisCache{client: client}
}

func latestKey(chainID string) string {
	return fmt.Sprintf("lendingrisk:analysis:latest:%s", chainID)
}

func lockKey(chainID string) string {
	return fmt.Sprintf("lendingrisk:lock:analysis:%s", chainID)
}

// SetLatest stores the analysis with TTL
func (c *AnalysisCache) SetLatest(ctx context.Context, analysis *healthfactor.Analysis, ttl time.Duration) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("redis", "set_latest_analysis", time.Since(start), err) }()

	chainID := analysis.Summary.ChainID
	data, err := json.Marshal(analysis)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal analysis: chain_id=%s", chainID)
	}

	if err = c.client.Set(ctx, latestKey(chainID), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to cache analysis: chain_id=%s", chainID)
	}
	return nil
}

// GetLatest returns the cached analysis or ErrNotFound
func (c *AnalysisCache) GetLatest(ctx context.Context, chainID string) (_ *healthfactor.Analysis, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("redis", "get_latest_analysis", time.Since(start), err) }()

	data, err := c.client.Get(ctx, latestKey(chainID)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "no cached analysis for chain_id=%s", chainID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get cached analysis: chain_id=%s", chainID)
	}

	var analysis healthfactor.Analysis
	if err = json.Unmarshal(data, &analysis); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal cached analysis: chain_id=%s", chainID)
	}
	return &analysis, nil
}

// AcquireRunLock takes the chain's run lock; false means another run holds it
func (c *AnalysisCache) AcquireRunLock(ctx context.Context, chainID string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, lockKey(chainID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to acquire run lock: chain_id=%s", chainID)
	}
	return ok, nil
}

// ReleaseRunLock drops the chain's run lock
func (c *AnalysisCache) ReleaseRunLock(ctx context.Context, chainID string) error {
	if err := c.client.Del(ctx, lockKey(chainID)).Err(); err != nil {
		return errors.Wrapf(err, "failed to release run lock: chain_id=%s", chainID)
	}
	return nil
}
