// Package testutil opens a migrated Postgres pool for adapter tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres"
)

// DatabaseURLEnv names the variable that enables Postgres-backed tests.
const DatabaseURLEnv = "DATABASE_URL"

// OpenMigratedPool connects to DATABASE_URL, applies migrations, and closes the
// pool when the test ends. The test is skipped when DATABASE_URL is unset.
//
// Tests share one database, so callers must use fresh uuids for every row they create.
func OpenMigratedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv(DatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set; skipping postgres test", DatabaseURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, url, postgres.PoolOptions{MaxConns: 4})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}
