package trips

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
	clockport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/triprepo"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/userrepo"
)

// MaxTitleLength bounds a normalized trip title, in runes.
const MaxTitleLength = 200

type Service struct {
	trips triprepo.Repository
	users userrepo.Repository
	clk   clockport.Clock
	log   *zap.Logger

	newTripID    func() domain.TripID
	newSegmentID func() domain.SegmentID
}

func NewService(tripsRepo triprepo.Repository, usersRepo userrepo.Repository, clk clockport.Clock, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		trips: tripsRepo,
		users: usersRepo,
		clk:   clk,
		log:   log.Named("trips"),
		newTripID: func() domain.TripID {
			return domain.TripID(uuid.NewString())
		},
		newSegmentID: func() domain.SegmentID {
			return domain.SegmentID(uuid.NewString())
		},
	}
}

// SetNewTripIDForTest overrides trip ID generation for deterministic tests.
// It should not be used in production code.
func (s *Service) SetNewTripIDForTest(fn func() domain.TripID) {
	if fn != nil {
		s.newTripID = fn
	}
}

// SetNewSegmentIDForTest overrides segment ID generation for deterministic tests.
func (s *Service) SetNewSegmentIDForTest(fn func() domain.SegmentID) {
	if fn != nil {
		s.newSegmentID = fn
	}
}

func (s *Service) CreateTrip(ctx context.Context, caller domain.User, in CreateTripInput) (TripView, error) {
	title, verr := normalizeTitle(in.Title)
	if verr != nil {
		return TripView{}, verr
	}
	if in.StartTime != nil && in.EndTime != nil && in.EndTime.Before(*in.StartTime) {
		return TripView{}, errValidation("invalid time range", "endTime", "must be on or after startTime")
	}

	now := s.clk.Now().UTC()

	// The creator is implicit and never listed as a participant.
	ids := lo.Uniq(lo.Reject(in.ParticipantIDs, func(id domain.UserID, _ int) bool { return id == caller.ID }))
	participants := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		if err := s.ensureUserExists(ctx, id); err != nil {
			return TripView{}, err
		}
		participants = append(participants, domain.Participant{UID: id, JoinedAt: now})
	}

	t := domain.Trip{
		ID:           s.newTripID(),
		Title:        title,
		Description:  trimmedOrNil(in.Description),
		CreatorID:    caller.ID,
		Participants: participants,
		StartTime:    utcPtr(in.StartTime),
		EndTime:      utcPtr(in.EndTime),
		Status:       domain.TripStatusInProgress,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.trips.Create(ctx, t); err != nil {
		if errors.Is(err, triprepo.ErrAlreadyExists) {
			// Extremely unlikely (UUID collision); treat as conflict.
			return TripView{}, &Error{Status: 409, Code: "TRIP_ID_CONFLICT", Message: "trip id conflict"}
		}
		return TripView{}, err
	}
	s.log.Info("trip created",
		zap.String("tripId", string(t.ID)),
		zap.String("creatorId", string(caller.ID)),
		zap.Int("participants", len(participants)),
	)
	return s.view(t, caller), nil
}

// GetTripView returns the trip if the caller may edit it. Everyone else gets
// TRIP_NOT_FOUND so trip existence is not disclosed.
func (s *Service) GetTripView(ctx context.Context, caller domain.User, tripID domain.TripID) (TripView, error) {
	t, _, err := s.loadEditable(ctx, caller, tripID)
	if err != nil {
		return TripView{}, err
	}
	return s.view(t, caller), nil
}

// ListMyTrips lists the trips the caller created or joined, optionally filtered by status.
func (s *Service) ListMyTrips(ctx context.Context, caller domain.User, status *domain.TripStatus) ([]TripView, error) {
	ts, err := s.trips.ListForUser(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	if status != nil {
		ts = lo.Filter(ts, func(t domain.Trip, _ int) bool { return t.Status == *status })
	}
	now := s.clk.Now()
	out := make([]TripView, 0, len(ts))
	for _, t := range ts {
		out = append(out, viewAt(t, caller, now))
	}
	return out, nil
}

// GetTripPermissions returns the caller's flags for any existing trip. Callers
// with no relationship to the trip get all-false creator and participant flags.
func (s *Service) GetTripPermissions(ctx context.Context, caller domain.User, tripID domain.TripID) (domain.TripPermissions, error) {
	t, err := s.load(ctx, tripID)
	if err != nil {
		return domain.TripPermissions{}, err
	}
	return domain.DeriveTripPermissions(&t, &caller, s.clk.Now()), nil
}

func (s *Service) UpdateTrip(ctx context.Context, caller domain.User, tripID domain.TripID, in UpdateTripInput) (TripView, error) {
	t, err := s.loadMutable(ctx, caller, tripID)
	if err != nil {
		return TripView{}, err
	}

	if in.Title.IsSpecified() {
		if in.Title.IsNull() {
			return TripView{}, errValidation("invalid title", "title", "cannot be null")
		}
		title, verr := normalizeTitle(in.Title.Value())
		if verr != nil {
			return TripView{}, verr
		}
		t.Title = title
	}

	if in.Description.IsSpecified() {
		if in.Description.IsNull() {
			t.Description = nil
		} else {
			v := in.Description.Value()
			t.Description = trimmedOrNil(&v)
		}
	}

	applyNullableTime := func(dst **time.Time, o Optional[time.Time]) {
		if !o.IsSpecified() {
			return
		}
		if o.IsNull() {
			*dst = nil
			return
		}
		v := o.Value().UTC()
		*dst = &v
	}
	applyNullableTime(&t.StartTime, in.StartTime)
	applyNullableTime(&t.EndTime, in.EndTime)

	if t.StartTime != nil && t.EndTime != nil && t.EndTime.Before(*t.StartTime) {
		return TripView{}, errValidation("invalid time range", "endTime", "must be on or after startTime")
	}

	return s.save(ctx, t, caller)
}

// AddParticipant adds target to the trip. Adding an existing participant is a no-op.
func (s *Service) AddParticipant(ctx context.Context, caller domain.User, tripID domain.TripID, target domain.UserID) (TripView, error) {
	t, err := s.loadMutable(ctx, caller, tripID)
	if err != nil {
		return TripView{}, err
	}
	if target == t.CreatorID {
		return TripView{}, errValidation("invalid userId", "userId", "the creator cannot be added as a participant")
	}
	if t.HasParticipant(target) {
		return s.view(t, caller), nil
	}
	if err := s.ensureUserExists(ctx, target); err != nil {
		return TripView{}, err
	}

	t.Participants = append(t.Participants, domain.Participant{UID: target, JoinedAt: s.clk.Now().UTC()})
	return s.save(ctx, t, caller)
}

// RemoveParticipant removes target from the trip. Removing a non-participant is a
// no-op. A participant may remove themselves, after which the returned view shows
// they can no longer edit.
func (s *Service) RemoveParticipant(ctx context.Context, caller domain.User, tripID domain.TripID, target domain.UserID) (TripView, error) {
	t, err := s.loadMutable(ctx, caller, tripID)
	if err != nil {
		return TripView{}, err
	}
	if !t.HasParticipant(target) {
		return s.view(t, caller), nil
	}

	t.Participants = lo.Reject(t.Participants, func(p domain.Participant, _ int) bool { return p.UID == target })
	return s.save(ctx, t, caller)
}

func (s *Service) AddSegment(ctx context.Context, caller domain.User, tripID domain.TripID, in AddSegmentInput) (TripView, error) {
	t, err := s.loadMutable(ctx, caller, tripID)
	if err != nil {
		return TripView{}, err
	}

	mode, ok := domain.ParseModeOfTravel(strings.TrimSpace(in.Mode))
	if !ok {
		return TripView{}, &Error{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "invalid mode",
			Details: map[string]any{
				"mode":    "must be one of the supported travel modes",
				"allowed": lo.Map(domain.ModesOfTravel(), func(m domain.ModeOfTravel, _ int) string { return string(m) }),
			},
		}
	}
	if in.DepartedAt != nil && in.ArrivedAt != nil && in.ArrivedAt.Before(*in.DepartedAt) {
		return TripView{}, errValidation("invalid segment times", "arrivedAt", "must be on or after departedAt")
	}

	t.Segments = append(t.Segments, domain.TripSegment{
		ID:          s.newSegmentID(),
		Mode:        mode,
		Origin:      trimmedOrNil(in.Origin),
		Destination: trimmedOrNil(in.Destination),
		DepartedAt:  utcPtr(in.DepartedAt),
		ArrivedAt:   utcPtr(in.ArrivedAt),
	})
	return s.save(ctx, t, caller)
}

// CompleteTrip marks the trip completed, stamping EndTime with the current time
// when unset. Completing a completed trip returns it unchanged.
func (s *Service) CompleteTrip(ctx context.Context, caller domain.User, tripID domain.TripID) (TripView, error) {
	t, _, err := s.loadEditable(ctx, caller, tripID)
	if err != nil {
		return TripView{}, err
	}
	if t.Status == domain.TripStatusCompleted {
		return s.view(t, caller), nil
	}

	now := s.clk.Now().UTC()
	if domain.IsUpcoming(&t, now) {
		return TripView{}, &Error{Status: 409, Code: "TRIP_NOT_STARTED", Message: "trip has not started yet"}
	}
	t.Status = domain.TripStatusCompleted
	if t.EndTime == nil {
		t.EndTime = &now
	}
	v, err := s.save(ctx, t, caller)
	if err != nil {
		return TripView{}, err
	}
	s.log.Info("trip completed", zap.String("tripId", string(t.ID)))
	return v, nil
}

// DeleteTrip deletes the trip. Only the creator may delete; participants get 403
// and everyone else gets TRIP_NOT_FOUND.
func (s *Service) DeleteTrip(ctx context.Context, caller domain.User, tripID domain.TripID) error {
	_, perms, err := s.loadEditable(ctx, caller, tripID)
	if err != nil {
		return err
	}
	if !perms.IsCreator {
		return &Error{Status: 403, Code: "FORBIDDEN", Message: "only the trip creator can delete a trip"}
	}
	if err := s.trips.Delete(ctx, tripID); err != nil {
		if errors.Is(err, triprepo.ErrNotFound) {
			return errTripNotFound()
		}
		return err
	}
	s.log.Info("trip deleted", zap.String("tripId", string(tripID)))
	return nil
}

// --- helpers ---

func (s *Service) load(ctx context.Context, tripID domain.TripID) (domain.Trip, error) {
	t, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		if errors.Is(err, triprepo.ErrNotFound) {
			return domain.Trip{}, errTripNotFound()
		}
		return domain.Trip{}, err
	}
	return t, nil
}

func (s *Service) loadEditable(ctx context.Context, caller domain.User, tripID domain.TripID) (domain.Trip, domain.TripPermissions, error) {
	t, err := s.load(ctx, tripID)
	if err != nil {
		return domain.Trip{}, domain.TripPermissions{}, err
	}
	perms := domain.DeriveTripPermissions(&t, &caller, s.clk.Now())
	if !perms.CanEdit {
		return domain.Trip{}, domain.TripPermissions{}, errTripNotFound()
	}
	return t, perms, nil
}

// loadMutable is loadEditable plus the completed-trip guard.
func (s *Service) loadMutable(ctx context.Context, caller domain.User, tripID domain.TripID) (domain.Trip, error) {
	t, _, err := s.loadEditable(ctx, caller, tripID)
	if err != nil {
		return domain.Trip{}, err
	}
	if t.Status == domain.TripStatusCompleted {
		return domain.Trip{}, errTripCompleted()
	}
	return t, nil
}

func (s *Service) save(ctx context.Context, t domain.Trip, caller domain.User) (TripView, error) {
	t.UpdatedAt = s.clk.Now().UTC()
	if err := s.trips.Save(ctx, t); err != nil {
		if errors.Is(err, triprepo.ErrNotFound) {
			return TripView{}, errTripNotFound()
		}
		return TripView{}, err
	}
	return s.view(t, caller), nil
}

func (s *Service) ensureUserExists(ctx context.Context, id domain.UserID) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return &Error{
				Status:  422,
				Code:    "VALIDATION_ERROR",
				Message: "invalid participant",
				Details: map[string]any{"userId": string(id), "reason": "user not found"},
			}
		}
		return err
	}
	return nil
}

func (s *Service) view(t domain.Trip, caller domain.User) TripView {
	return viewAt(t, caller, s.clk.Now())
}

func viewAt(t domain.Trip, caller domain.User, now time.Time) TripView {
	perms := domain.DeriveTripPermissions(&t, &caller, now)
	return TripView{
		Trip:          t,
		Permissions:   perms,
		StatusDisplay: domain.TripStatusConfig(t.Status, perms.IsUpcoming),
		SegmentLabels: lo.Map(t.Segments, func(seg domain.TripSegment, _ int) string { return seg.Mode.Label() }),
	}
}

func normalizeTitle(raw string) (string, *Error) {
	title := domain.NormalizeHumanName(raw)
	if title == "" {
		return "", errValidation("invalid title", "title", "must be non-empty")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", errValidation("invalid title", "title", "must be at most 200 characters")
	}
	return title, nil
}

func trimmedOrNil(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func utcPtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := p.UTC()
	return &v
}
