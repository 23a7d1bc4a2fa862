package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"lendingrisk/internal/adapters/config"
)

const distributionSchema = `
CREATE TABLE IF NOT EXISTS health_factor_distribution (
    chain_id             LowCardinality(String),
    snapshot_time        DateTime64(3, 'UTC'),
    bucket               LowCardinality(String),
    bucket_index         UInt8,
    users                UInt32,
    total_collateral_usd Float64,
    total_debt_usd       Float64,
    users_with_debt      UInt32,
    users_excluded       UInt32
) ENGINE = ReplacingMergeTree()
ORDER BY (chain_id, snapshot_time, bucket_index)`

// Client wraps ClickHouse connection
type Client struct {
	conn driver.Conn
}

// NewClient opens an LZ4-compressed native connection
func NewClient(cfg config.ClickHouseConfig) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Conn returns the underlying ClickHouse connection
func (c *Client) Conn() driver.Conn {
	return c.conn
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Health checks ClickHouse connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Exec executes a query without returning rows
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.conn.Exec(ctx, query, args...)
}

// Migrate creates the time-series tables
func (c *Client) Migrate(ctx context.Context) error {
	if err := c.conn.Exec(ctx, distributionSchema); err != nil {
		return fmt.Errorf("failed to create distribution table: %w", err)
	}
	return nil
}
