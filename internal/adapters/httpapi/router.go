package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type RouterOptions struct {
	// AuthMiddleware guards every route except /healthz and /catalog.
	// When nil, all requests are rejected with 401.
	AuthMiddleware func(http.Handler) http.Handler

	// Logger receives one line per request. Nil disables request logging.
	Logger *zap.Logger

	// CORSAllowedOrigins enables CORS when non-empty. "*" allows any origin.
	CORSAllowedOrigins []string
}

// NewRouter constructs the API HTTP router.
func NewRouter(s *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.Logger != nil {
		r.Use(requestLogger(opts.Logger))
	}
	r.Use(middleware.Recoverer)
	if len(opts.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: opts.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", IdempotencyKeyHeader, "X-Debug-Subject", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader, "Idempotent-Replayed"},
			MaxAge:         300,
		}).Handler)
	}

	// Health endpoint is unauthenticated (used for infra checks).
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/catalog", func(r chi.Router) {
		r.Get("/travel-modes", s.ListTravelModes)
		r.Get("/trip-statuses", s.ListTripStatuses)
	})

	auth := opts.AuthMiddleware
	if auth == nil {
		auth = denyAll
	}
	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/users/me", s.CreateMe)
		r.Get("/users/me", s.GetMe)
		r.Patch("/users/me", s.UpdateMe)

		r.Get("/trips", s.ListMyTrips)
		r.With(s.idempotent).Post("/trips", s.CreateTrip)
		r.Route("/trips/{tripId}", func(r chi.Router) {
			r.Get("/", s.GetTrip)
			r.Patch("/", s.UpdateTrip)
			r.Delete("/", s.DeleteTrip)
			r.Get("/permissions", s.GetTripPermissions)
			r.With(s.idempotent).Post("/participants", s.AddParticipant)
			r.Delete("/participants/{userId}", s.RemoveParticipant)
			r.With(s.idempotent).Post("/segments", s.AddSegment)
			r.With(s.idempotent).Post("/complete", s.CompleteTrip)
		})
	})

	return r
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication is not configured", nil)
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	log = log.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
