package testsupport

import (
	"context"
	"testing"

	"lendingrisk/internal/adapters/clickhouse"
)

// NewTestClickHouse connects, migrates and removes the given chain's rows on cleanup
func NewTestClickHouse(t *testing.T, chainID string) *clickhouse.Client {
	t.Helper()

	client, err := clickhouse.NewClient(LoadClickHouseConfig(t))
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}
	if err := client.Migrate(context.Background()); err != nil {
		_ = client.Close()
		t.Fatalf("failed to migrate clickhouse: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Exec(context.Background(),
			"ALTER TABLE health_factor_distribution DELETE WHERE chain_id = $1 SETTINGS mutations_sync = 1", chainID)
		_ = client.Close()
	})
	return client
}
