package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	memclock "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/clock"
	memidempotency "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/idempotency"
	memtriprepo "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/triprepo"
	memuserrepo "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/userrepo"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/app/trips"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/app/users"
	triprepoport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/triprepo"
)

type testAPI struct {
	h     http.Handler
	clk   *memclock.ManualClock
	trips *memtriprepo.Repo
	users *memuserrepo.Repo
}

// newTestAPI builds the full router on memory adapters with the dev auth shim,
// so each request names its caller via X-Debug-Subject.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWrappingTrips(t, nil)
}

// newTestAPIWrappingTrips is newTestAPI with the trip repository passed through
// wrap before the service sees it. A nil wrap uses the memory repo directly.
func newTestAPIWrappingTrips(t *testing.T, wrap func(triprepoport.Repository) triprepoport.Repository) *testAPI {
	t.Helper()

	clk := memclock.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	userRepo := memuserrepo.NewRepo()
	tripRepo := memtriprepo.NewRepo()
	var svcTrips triprepoport.Repository = tripRepo
	if wrap != nil {
		svcTrips = wrap(tripRepo)
	}
	usersSvc := users.NewService(userRepo, clk, zap.NewNop())
	tripsSvc := trips.NewService(svcTrips, userRepo, clk, zap.NewNop())

	srv := NewServer(usersSvc, tripsSvc, memidempotency.NewStore(), clk, zap.NewNop())
	h := NewRouter(srv, RouterOptions{AuthMiddleware: NewDevAuthMiddleware("")})
	return &testAPI{h: h, clk: clk, trips: tripRepo, users: userRepo}
}

func (a *testAPI) do(t *testing.T, method, path, subject string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if subject != "" {
		req.Header.Set("X-Debug-Subject", subject)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

// provision creates a user for subject and returns its id.
func (a *testAPI) provision(t *testing.T, subject, name string) string {
	t.Helper()

	rec := a.do(t, http.MethodPost, "/users/me", subject, map[string]any{
		"displayName": name,
		"email":       subject + "@example.com",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("provision %s: status=%d body=%s", subject, rec.Code, rec.Body.String())
	}
	return decode[UserResponse](t, rec).User.Id
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v\nbody=%s", err, rec.Body.String())
	}
	return out
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status: got %d want %d body=%s", rec.Code, want, rec.Body.String())
	}
}

func requireErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) ErrorResponse {
	t.Helper()
	requireStatus(t, rec, wantStatus)
	er := decode[ErrorResponse](t, rec)
	if er.Error.Code != wantCode {
		t.Fatalf("error.code: got %q want %q body=%s", er.Error.Code, wantCode, rec.Body.String())
	}
	return er
}
