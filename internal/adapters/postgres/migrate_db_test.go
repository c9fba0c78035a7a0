package postgres_test

import (
	"context"
	"testing"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres/testutil"
)

func TestMigrate_SecondRunAppliesNothing(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)

	applied, err := postgres.Migrate(context.Background(), pool)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected schema up to date, applied=%v", applied)
	}

	var n int
	if err := pool.QueryRow(context.Background(), `SELECT count(*) FROM goose_db_version WHERE version_id = 1 AND is_applied`).Scan(&n); err != nil {
		t.Fatalf("read goose_db_version: %v", err)
	}
	if n != 1 {
		t.Fatalf("goose_db_version rows for 1: got %d want 1", n)
	}
}
