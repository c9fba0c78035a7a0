package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
	triprepoport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/triprepo"
)

// gatedTrips holds Create until release is closed, signalling entered first.
type gatedTrips struct {
	triprepoport.Repository
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTrips) Create(ctx context.Context, t domain.Trip) error {
	g.entered <- struct{}{}
	<-g.release
	return g.Repository.Create(ctx, t)
}

func TestIdempotency_CreateTripReplayAndReuse(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.provision(t, "alice", "Alice")
	api.provision(t, "bob", "Bob")

	body := `{"title":"Desert loop"}`
	first := api.do(t, http.MethodPost, "/trips", "alice", body, IdempotencyKeyHeader, "k-1")
	requireStatus(t, first, http.StatusCreated)
	created := decode[TripResponse](t, first).Trip

	replay := api.do(t, http.MethodPost, "/trips", "alice", body, IdempotencyKeyHeader, "k-1")
	requireStatus(t, replay, http.StatusCreated)
	if replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
	if got := decode[TripResponse](t, replay).Trip; got.Id != created.Id {
		t.Fatalf("replay id: got %q want %q", got.Id, created.Id)
	}

	rec := api.do(t, http.MethodPost, "/trips", "alice", `{"title":"Other"}`, IdempotencyKeyHeader, "k-1")
	requireErrorCode(t, rec, http.StatusConflict, "IDEMPOTENCY_KEY_REUSED")

	// Keys are scoped per caller.
	rec = api.do(t, http.MethodPost, "/trips", "bob", body, IdempotencyKeyHeader, "k-1")
	requireStatus(t, rec, http.StatusCreated)
	if got := decode[TripResponse](t, rec).Trip; got.Id == created.Id {
		t.Fatalf("other caller must not see the replay")
	}

	rec = api.do(t, http.MethodGet, "/trips", "alice", nil)
	requireStatus(t, rec, http.StatusOK)
	if n := len(decode[TripListResponse](t, rec).Trips); n != 1 {
		t.Fatalf("alice trips: got %d want 1", n)
	}
}

func TestIdempotency_FailedRequestsAreNotRecorded(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.provision(t, "alice", "Alice")

	rec := api.do(t, http.MethodPost, "/trips", "alice", `{"title":"  "}`, IdempotencyKeyHeader, "k-2")
	requireErrorCode(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rec = api.do(t, http.MethodPost, "/trips", "alice", `{"title":"fixed"}`, IdempotencyKeyHeader, "k-2")
	requireStatus(t, rec, http.StatusCreated)
}

func TestIdempotency_WithoutHeaderCreatesEachTime(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.provision(t, "alice", "Alice")

	a := decode[TripResponse](t, api.do(t, http.MethodPost, "/trips", "alice", `{"title":"t"}`)).Trip
	b := decode[TripResponse](t, api.do(t, http.MethodPost, "/trips", "alice", `{"title":"t"}`)).Trip
	if a.Id == b.Id {
		t.Fatalf("expected distinct trips")
	}
}

func TestIdempotency_ConcurrentDuplicateRunsOnce(t *testing.T) {
	t.Parallel()

	gate := &gatedTrips{entered: make(chan struct{}, 1), release: make(chan struct{})}
	api := newTestAPIWrappingTrips(t, func(inner triprepoport.Repository) triprepoport.Repository {
		gate.Repository = inner
		return gate
	})
	api.provision(t, "alice", "Alice")

	body := `{"title":"Ridge run"}`
	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		firstDone <- api.do(t, http.MethodPost, "/trips", "alice", body, IdempotencyKeyHeader, "k-race")
	}()
	<-gate.entered

	// The first request is parked inside Create with its slot reserved.
	rec := api.do(t, http.MethodPost, "/trips", "alice", body, IdempotencyKeyHeader, "k-race")
	requireErrorCode(t, rec, http.StatusConflict, "IDEMPOTENCY_REQUEST_IN_PROGRESS")

	close(gate.release)
	first := <-firstDone
	requireStatus(t, first, http.StatusCreated)
	created := decode[TripResponse](t, first).Trip

	replay := api.do(t, http.MethodPost, "/trips", "alice", body, IdempotencyKeyHeader, "k-race")
	requireStatus(t, replay, http.StatusCreated)
	if replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
	if got := decode[TripResponse](t, replay).Trip; got.Id != created.Id {
		t.Fatalf("replay id: got %q want %q", got.Id, created.Id)
	}

	list, err := api.trips.ListForUser(context.Background(), domain.UserID(decode[UserResponse](t, api.do(t, http.MethodGet, "/users/me", "alice", nil)).User.Id))
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("trips created: got %d want 1", len(list))
	}
}

func TestIdempotency_PanickingHandlerReleasesSlot(t *testing.T) {
	t.Parallel()

	api := newTestAPIWrappingTrips(t, func(inner triprepoport.Repository) triprepoport.Repository {
		return &panicOnceTrips{Repository: inner}
	})
	api.provision(t, "alice", "Alice")

	body := `{"title":"Ridge run"}`
	rec := api.do(t, http.MethodPost, "/trips", "alice", body, IdempotencyKeyHeader, "k-panic")
	requireStatus(t, rec, http.StatusInternalServerError)

	rec = api.do(t, http.MethodPost, "/trips", "alice", body, IdempotencyKeyHeader, "k-panic")
	requireStatus(t, rec, http.StatusCreated)
	if rec.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("retry after a crash must run, not replay")
	}
}

// panicOnceTrips panics on the first Create and delegates afterwards.
type panicOnceTrips struct {
	triprepoport.Repository
	panicked bool
}

func (p *panicOnceTrips) Create(ctx context.Context, t domain.Trip) error {
	if !p.panicked {
		p.panicked = true
		panic("storage exploded")
	}
	return p.Repository.Create(ctx, t)
}
