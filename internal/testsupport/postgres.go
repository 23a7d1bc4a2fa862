package testsupport

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"lendingrisk/internal/adapters/postgres"
)

// PostgresTestHelper runs a test inside a transaction that is always rolled back
type PostgresTestHelper struct {
	client     *postgres.Client
	tx         *sqlx.Tx
	rolledBack bool
}

// NewTestPostgres connects, applies migrations and opens the test transaction.
// The test is skipped when the database env is missing.
func NewTestPostgres(t *testing.T) *PostgresTestHelper {
	t.Helper()

	client, err := postgres.NewClient(LoadPostgresConfig(t))
	if err != nil {
		t.Fatalf("failed to create postgres client: %v", err)
	}
	if err := client.Migrate(context.Background()); err != nil {
		_ = client.Close()
		t.Fatalf("failed to migrate: %v", err)
	}

	tx, err := client.DB().BeginTxx(context.Background(), nil)
	if err != nil {
		_ = client.Close()
		t.Fatalf("failed to start transaction: %v", err)
	}

	helper := &PostgresTestHelper{client: client, tx: tx}
	t.Cleanup(func() {
		helper.Rollback()
		_ = client.Close()
	})
	return helper
}

// Tx returns the active transaction for the test.
func (h *PostgresTestHelper) Tx() *sqlx.Tx {
	return h.tx
}

// Rollback rolls back the transaction once.
func (h *PostgresTestHelper) Rollback() {
	if h.rolledBack {
		return
	}
	_ = h.tx.Rollback()
	h.rolledBack = true
}
