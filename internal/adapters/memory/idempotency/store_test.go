package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	memclock "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/clock"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/idempotency"
)

func TestStore_PutThenGet(t *testing.T) {
	t.Parallel()

	s := NewStore()
	fp := idempotency.Fingerprint{
		Key:     "k1",
		Subject: domain.SubjectID("sub-1"),
		Method:  "POST",
		Route:   "/trips",
	}
	rec := idempotency.Record{
		BodyHash:    "abc123",
		StatusCode:  201,
		ContentType: "application/json",
		Body:        []byte(`{"ok":true}`),
		CreatedAt:   time.Unix(123, 0).UTC(),
	}

	if err := s.Put(context.Background(), fp, rec); err != nil {
		t.Fatalf("Put() err=%v", err)
	}

	got, ok, err := s.Get(context.Background(), fp)
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if !ok {
		t.Fatalf("Get() ok=false, want true")
	}
	if got.BodyHash != rec.BodyHash || got.StatusCode != rec.StatusCode || got.ContentType != rec.ContentType || string(got.Body) != string(rec.Body) {
		t.Fatalf("Get()=%+v, want %+v", got, rec)
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, ok, err := s.Get(context.Background(), idempotency.Fingerprint{Key: "nope"})
	if err != nil || ok {
		t.Fatalf("Get() ok=%v err=%v, want miss", ok, err)
	}
}

func TestStore_RetentionExpiresRecords(t *testing.T) {
	t.Parallel()

	clk := memclock.NewManualClock(time.Unix(1000, 0).UTC())
	s := NewStoreWithRetention(time.Hour, clk)
	fp := idempotency.Fingerprint{Key: "k", Subject: "sub", Method: "POST", Route: "/trips"}
	if err := s.Put(context.Background(), fp, idempotency.Record{BodyHash: "h", StatusCode: 201, CreatedAt: clk.Now()}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	clk.Advance(59 * time.Minute)
	if _, ok, _ := s.Get(context.Background(), fp); !ok {
		t.Fatalf("expected record within retention")
	}

	clk.Advance(2 * time.Minute)
	if _, ok, _ := s.Get(context.Background(), fp); ok {
		t.Fatalf("expected record to expire")
	}
}

func TestStore_BodyIsCopied(t *testing.T) {
	t.Parallel()

	s := NewStore()
	fp := idempotency.Fingerprint{Key: "k", Subject: "sub", Method: "POST", Route: "/trips"}
	body := []byte("abc")
	_ = s.Put(context.Background(), fp, idempotency.Record{Body: body})
	body[0] = 'z'

	got, _, _ := s.Get(context.Background(), fp)
	if string(got.Body) != "abc" {
		t.Fatalf("stored body aliased caller slice: %q", got.Body)
	}
	got.Body[0] = 'y'
	again, _, _ := s.Get(context.Background(), fp)
	if string(again.Body) != "abc" {
		t.Fatalf("returned body aliased stored slice: %q", again.Body)
	}
}

func TestStore_ReserveIsExclusive(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	fp := idempotency.Fingerprint{Key: "k", Subject: "sub", Method: "POST", Route: "/trips"}

	const n = 16
	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := s.Reserve(ctx, fp, idempotency.Record{BodyHash: "h"}); err == nil && ok {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := won.Load(); got != 1 {
		t.Fatalf("reservations won: got %d want 1", got)
	}

	cur, ok, err := s.Get(ctx, fp)
	if err != nil || !ok || !cur.Pending() || cur.BodyHash != "h" {
		t.Fatalf("Get()=%+v ok=%v err=%v, want pending record", cur, ok, err)
	}
}

func TestStore_ReleaseKeepsCompletedRecords(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	fp := idempotency.Fingerprint{Key: "k", Subject: "sub", Method: "POST", Route: "/trips"}

	if _, ok, _ := s.Reserve(ctx, fp, idempotency.Record{BodyHash: "h"}); !ok {
		t.Fatalf("expected reservation")
	}
	if err := s.Release(ctx, fp); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok, _ := s.Reserve(ctx, fp, idempotency.Record{BodyHash: "h"}); !ok {
		t.Fatalf("expected slot to be free after Release")
	}
	if err := s.Put(ctx, fp, idempotency.Record{BodyHash: "h", StatusCode: 201}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_ = s.Release(ctx, fp)
	if got, ok, _ := s.Get(ctx, fp); !ok || got.StatusCode != 201 {
		t.Fatalf("completed record must survive Release, got %+v ok=%v", got, ok)
	}
}

func TestStore_ReserveReclaimsExpiredSlot(t *testing.T) {
	t.Parallel()

	clk := memclock.NewManualClock(time.Unix(1000, 0).UTC())
	s := NewStoreWithRetention(time.Hour, clk)
	ctx := context.Background()
	fp := idempotency.Fingerprint{Key: "k", Subject: "sub", Method: "POST", Route: "/trips"}

	if err := s.Put(ctx, fp, idempotency.Record{BodyHash: "old", StatusCode: 201, CreatedAt: clk.Now()}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if cur, ok, _ := s.Reserve(ctx, fp, idempotency.Record{BodyHash: "new", CreatedAt: clk.Now()}); ok || cur.BodyHash != "old" {
		t.Fatalf("Reserve on live slot: ok=%v cur=%+v", ok, cur)
	}

	clk.Advance(2 * time.Hour)
	if _, ok, _ := s.Reserve(ctx, fp, idempotency.Record{BodyHash: "new", CreatedAt: clk.Now()}); !ok {
		t.Fatalf("expected expired slot to be reclaimed")
	}
}
