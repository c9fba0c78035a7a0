package httpapi

import (
	"net/http"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/app/users"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
)

func (s *Server) subject(w http.ResponseWriter, r *http.Request) (domain.SubjectID, bool) {
	sub, ok := SubjectFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return "", false
	}
	return domain.SubjectID(sub), true
}

// CreateMe handles POST /users/me.
func (s *Server) CreateMe(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	var body CreateMeRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	u, err := s.users.CreateMe(r.Context(), sub, users.CreateMeInput{
		DisplayName: body.DisplayName,
		Email:       string(body.Email),
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{User: userFromDomain(u)})
}

// GetMe handles GET /users/me.
func (s *Server) GetMe(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	u, err := s.users.GetMe(r.Context(), sub)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: userFromDomain(u)})
}

// UpdateMe handles PATCH /users/me.
func (s *Server) UpdateMe(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	var body UpdateMeRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	u, err := s.users.UpdateMe(r.Context(), sub, updateMeInputFromRequest(body))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: userFromDomain(u)})
}
