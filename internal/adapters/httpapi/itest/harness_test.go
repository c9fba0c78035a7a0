package itest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/httpapi"
	memclock "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/clock"
	memidempotency "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/idempotency"
	memtriprepo "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/triprepo"
	memuserrepo "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/memory/userrepo"
	pgidempotency "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres/idempotency"
	postgres_testutil "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres/testutil"
	pgtriprepo "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres/triprepo"
	pguserrepo "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres/userrepo"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/redis/tripcache"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/app/trips"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/app/users"
	idempotencyport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/idempotency"
	triprepoport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/triprepo"
	userrepoport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/userrepo"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendPostgres backend = "postgres"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|postgres|all)")
		return nil
	}
}

type testServer struct {
	baseURL string
	client  *http.Client
	clk     *memclock.ManualClock
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	const issuer = "itest-issuer"
	clk := memclock.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	var (
		userRepo  userrepoport.Repository
		tripRepo  triprepoport.Repository
		idemStore idempotencyport.Store
	)

	switch b {
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		userRepo = pguserrepo.NewRepo(pool, issuer)
		tripRepo = pgtriprepo.NewRepo(pool)
		idemStore = pgidempotency.NewStore(pool, issuer, clk)
	case backendMemory:
		userRepo = memuserrepo.NewRepo()
		tripRepo = memtriprepo.NewRepo()
		idemStore = memidempotency.NewStore()
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	// REDIS_ADDR puts the trip cache in front of either backend.
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: addr})
		t.Cleanup(func() { _ = client.Close() })
		if err := client.Ping(context.Background()).Err(); err != nil {
			t.Fatalf("redis ping: %v", err)
		}
		tripRepo = tripcache.New(tripRepo, client, time.Minute, log)
	}

	usersSvc := users.NewService(userRepo, clk, log)
	tripsSvc := trips.NewService(tripRepo, userRepo, clk, log)
	api := httpapi.NewServer(usersSvc, tripsSvc, idemStore, clk, log)

	// Integration tests use the dev auth middleware to stay fully local and deterministic.
	// We pass empty default subject to ensure requests MUST provide X-Debug-Subject, allowing
	// auth-failure coverage.
	handler := httpapi.NewRouter(api, httpapi.RouterOptions{
		AuthMiddleware: httpapi.NewDevAuthMiddleware(""),
		Logger:         zap.NewNop(),
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
		clk:     clk,
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, subject string, body any) (int, []byte, http.Header) {
	t.Helper()
	return s.doJSONWithKey(t, method, path, subject, body, "")
}

func (s *testServer) doJSONWithKey(t *testing.T, method string, path string, subject string, body any, idemKey string) (int, []byte, http.Header) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if subject != "" {
		req.Header.Set("X-Debug-Subject", subject)
	}
	if idemKey != "" {
		req.Header.Set(httpapi.IdempotencyKeyHeader, idemKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, resp.Header
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("status=%d want=%d body=%s", status, wantStatus, string(body))
	}
	got := mustUnmarshal[errorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
}

func requireHeaderPresent(t *testing.T, h http.Header, key string) {
	t.Helper()
	if strings.TrimSpace(h.Get(key)) == "" {
		t.Fatalf("expected header %q to be present", key)
	}
}
