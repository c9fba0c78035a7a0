package httpapi

import (
	"net/http"

	"github.com/oapi-codegen/runtime"
	"github.com/samber/lo"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
)

// ListTravelModes handles GET /catalog/travel-modes.
func (s *Server) ListTravelModes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TravelModesResponse{
		Modes: lo.Map(domain.ModesOfTravel(), func(m domain.ModeOfTravel, _ int) TravelMode {
			return TravelMode{Mode: string(m), Label: m.Label()}
		}),
	})
}

// ListTripStatuses handles GET /catalog/trip-statuses?upcoming=&status=.
//
// Without status it returns the badge for every status at the requested
// upcoming flag (default false).
func (s *Server) ListTripStatuses(w http.ResponseWriter, r *http.Request) {
	var upcoming *bool
	if err := runtime.BindQueryParameter("form", true, false, "upcoming", r.URL.Query(), &upcoming); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid upcoming parameter", map[string]any{"reason": err.Error()})
		return
	}
	status, ok := statusQueryParam(w, r)
	if !ok {
		return
	}

	isUpcoming := upcoming != nil && *upcoming
	statuses := domain.TripStatuses()
	if status != nil {
		statuses = []domain.TripStatus{*status}
	}
	writeJSON(w, http.StatusOK, TripStatusesResponse{
		Statuses: lo.Map(statuses, func(st domain.TripStatus, _ int) TripStatusEntry {
			return TripStatusEntry{
				Status:        string(st),
				Upcoming:      isUpcoming,
				StatusDisplay: statusDisplayFromDomain(domain.TripStatusConfig(st, isUpcoming)),
			}
		}),
	})
}
