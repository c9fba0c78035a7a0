package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/contracttest"
	memclock "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/clock"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres/testutil"
	platformclock "github.com/Overland-East-Bay/trip-tracker-api/internal/platform/clock"
	idempotencyport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/idempotency"
)

func TestContract_PostgresIdempotencyStore(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	issuer := "https://issuer.test"

	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idempotencyport.Store, func()) {
		t.Helper()
		return NewStore(pool, issuer, platformclock.NewSystemClock()), nil
	})
}

func TestStore_RetentionAndPrune(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	ctx := context.Background()

	clk := memclock.NewManualClock(time.Now().UTC())
	s := NewStore(pool, "https://issuer.test", clk).WithRetention(time.Hour)
	fp := idempotencyport.Fingerprint{
		Key:     idempotencyport.Key("old-" + uuid.NewString()),
		Subject: "sub-retention",
		Method:  "POST",
		Route:   "/trips",
	}
	if err := s.Put(ctx, fp, idempotencyport.Record{BodyHash: "h", StatusCode: 201}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, err := s.Get(ctx, fp); err != nil || !ok {
		t.Fatalf("expected live record, ok=%v err=%v", ok, err)
	}

	clk.Advance(2 * time.Hour)
	if _, ok, err := s.Get(ctx, fp); err != nil || ok {
		t.Fatalf("expected expired record to be hidden, ok=%v err=%v", ok, err)
	}

	n, err := s.PruneExpired(ctx)
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if n < 1 {
		t.Fatalf("expected at least one pruned row, got %d", n)
	}
}

func TestStore_ReserveTakesOverExpiredRow(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	ctx := context.Background()

	clk := memclock.NewManualClock(time.Now().UTC())
	s := NewStore(pool, "https://issuer.test", clk).WithRetention(time.Hour)
	fp := idempotencyport.Fingerprint{
		Key:     idempotencyport.Key("reclaim-" + uuid.NewString()),
		Subject: "sub-reclaim",
		Method:  "POST",
		Route:   "/trips",
	}
	if err := s.Put(ctx, fp, idempotencyport.Record{BodyHash: "old", StatusCode: 201}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if cur, ok, err := s.Reserve(ctx, fp, idempotencyport.Record{BodyHash: "new"}); err != nil || ok || cur.BodyHash != "old" {
		t.Fatalf("Reserve on live row: ok=%v err=%v cur=%+v", ok, err, cur)
	}

	clk.Advance(2 * time.Hour)
	if _, ok, err := s.Reserve(ctx, fp, idempotencyport.Record{BodyHash: "new"}); err != nil || !ok {
		t.Fatalf("Reserve on expired row: ok=%v err=%v", ok, err)
	}
}
