package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"go.uber.org/zap"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/app/trips"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/app/users"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
	clockport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/idempotency"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Server holds the application services behind the HTTP handlers.
type Server struct {
	users *users.Service
	trips *trips.Service
	idem  idempotency.Store
	clk   clockport.Clock
	log   *zap.Logger
}

// NewServer wires the handlers. idem may be nil, in which case Idempotency-Key
// headers are ignored.
func NewServer(usersSvc *users.Service, tripsSvc *trips.Service, idem idempotency.Store, clk clockport.Clock, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		users: usersSvc,
		trips: tripsSvc,
		idem:  idem,
		clk:   clk,
		log:   log.Named("httpapi"),
	}
}

// caller resolves the authenticated subject to a provisioned user. On failure
// the error response has already been written.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	sub, ok := s.subject(w, r)
	if !ok {
		return domain.User{}, false
	}
	u, err := s.users.ResolveCaller(r.Context(), sub)
	if err != nil {
		s.writeAppError(w, r, err)
		return domain.User{}, false
	}
	return u, true
}

// decodeJSON reads a single JSON object into dst. On failure the error
// response has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "missing request body", nil)
		case errors.Is(err, openapi_types.ErrValidationEmail):
			writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid email",
				map[string]any{"email": "must be a valid email address"})
		default:
			writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed JSON body", map[string]any{"reason": err.Error()})
		}
		return false
	}
	return true
}

// tripIDParam binds the {tripId} path segment.
func tripIDParam(w http.ResponseWriter, r *http.Request) (domain.TripID, bool) {
	var id string
	if err := runtime.BindStyledParameterWithOptions("simple", "tripId", chi.URLParam(r, "tripId"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	}); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid tripId", map[string]any{"reason": err.Error()})
		return "", false
	}
	return domain.TripID(id), true
}

func userIDParam(w http.ResponseWriter, r *http.Request) (domain.UserID, bool) {
	var id string
	if err := runtime.BindStyledParameterWithOptions("simple", "userId", chi.URLParam(r, "userId"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	}); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid userId", map[string]any{"reason": err.Error()})
		return "", false
	}
	return domain.UserID(id), true
}
