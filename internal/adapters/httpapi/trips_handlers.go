package httpapi

import (
	"errors"
	"net/http"

	"github.com/oapi-codegen/runtime"
	"github.com/samber/lo"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/app/trips"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
)

// ListMyTrips handles GET /trips?status=.
func (s *Server) ListMyTrips(w http.ResponseWriter, r *http.Request) {
	status, ok := statusQueryParam(w, r)
	if !ok {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	views, err := s.trips.ListMyTrips(r.Context(), caller, status)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TripListResponse{
		Trips: lo.Map(views, func(v trips.TripView, _ int) Trip { return tripFromView(v) }),
	})
}

// CreateTrip handles POST /trips.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var body CreateTripRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	v, err := s.trips.CreateTrip(r.Context(), caller, createTripInputFromRequest(body))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, TripResponse{Trip: tripFromView(v)})
}

// GetTrip handles GET /trips/{tripId}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	s.withTrip(w, r, func(caller domain.User, tripID domain.TripID) (trips.TripView, error) {
		return s.trips.GetTripView(r.Context(), caller, tripID)
	})
}

// UpdateTrip handles PATCH /trips/{tripId}.
func (s *Server) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	s.withTrip(w, r, func(caller domain.User, tripID domain.TripID) (trips.TripView, error) {
		var body UpdateTripRequest
		if !decodeJSON(w, r, &body) {
			return trips.TripView{}, errResponseWritten
		}
		return s.trips.UpdateTrip(r.Context(), caller, tripID, updateTripInputFromRequest(body))
	})
}

// DeleteTrip handles DELETE /trips/{tripId}.
func (s *Server) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.trips.DeleteTrip(r.Context(), caller, tripID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTripPermissions handles GET /trips/{tripId}/permissions.
func (s *Server) GetTripPermissions(w http.ResponseWriter, r *http.Request) {
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	p, err := s.trips.GetTripPermissions(r.Context(), caller, tripID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TripPermissionsResponse{Permissions: permissionsFromDomain(p)})
}

// AddParticipant handles POST /trips/{tripId}/participants.
func (s *Server) AddParticipant(w http.ResponseWriter, r *http.Request) {
	s.withTrip(w, r, func(caller domain.User, tripID domain.TripID) (trips.TripView, error) {
		var body AddParticipantRequest
		if !decodeJSON(w, r, &body) {
			return trips.TripView{}, errResponseWritten
		}
		return s.trips.AddParticipant(r.Context(), caller, tripID, domain.UserID(body.UserId))
	})
}

// RemoveParticipant handles DELETE /trips/{tripId}/participants/{userId}.
func (s *Server) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	s.withTrip(w, r, func(caller domain.User, tripID domain.TripID) (trips.TripView, error) {
		target, ok := userIDParam(w, r)
		if !ok {
			return trips.TripView{}, errResponseWritten
		}
		return s.trips.RemoveParticipant(r.Context(), caller, tripID, target)
	})
}

// AddSegment handles POST /trips/{tripId}/segments.
func (s *Server) AddSegment(w http.ResponseWriter, r *http.Request) {
	s.withTrip(w, r, func(caller domain.User, tripID domain.TripID) (trips.TripView, error) {
		var body AddSegmentRequest
		if !decodeJSON(w, r, &body) {
			return trips.TripView{}, errResponseWritten
		}
		return s.trips.AddSegment(r.Context(), caller, tripID, addSegmentInputFromRequest(body))
	})
}

// CompleteTrip handles POST /trips/{tripId}/complete.
func (s *Server) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	s.withTrip(w, r, func(caller domain.User, tripID domain.TripID) (trips.TripView, error) {
		return s.trips.CompleteTrip(r.Context(), caller, tripID)
	})
}

// withTrip runs fn for the {tripId} route and writes its view as a 200.
// fn returns errResponseWritten when it has already written an error.
func (s *Server) withTrip(w http.ResponseWriter, r *http.Request, fn func(caller domain.User, tripID domain.TripID) (trips.TripView, error)) {
	tripID, ok := tripIDParam(w, r)
	if !ok {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	v, err := fn(caller, tripID)
	if errors.Is(err, errResponseWritten) {
		return
	}
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TripResponse{Trip: tripFromView(v)})
}

func statusQueryParam(w http.ResponseWriter, r *http.Request) (*domain.TripStatus, bool) {
	var raw *string
	if err := runtime.BindQueryParameter("form", true, false, "status", r.URL.Query(), &raw); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid status parameter", map[string]any{"reason": err.Error()})
		return nil, false
	}
	if raw == nil || *raw == "" {
		return nil, true
	}
	st, ok := domain.ParseTripStatus(*raw)
	if !ok {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid status", map[string]any{
			"status":  *raw,
			"allowed": domain.TripStatuses(),
		})
		return nil, false
	}
	return &st, true
}
