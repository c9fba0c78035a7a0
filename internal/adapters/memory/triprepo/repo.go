package triprepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/triprepo"
)

// Repo is an in-memory implementation of triprepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu   sync.RWMutex
	byID map[domain.TripID]domain.Trip
}

func NewRepo() *Repo {
	return &Repo{
		byID: make(map[domain.TripID]domain.Trip),
	}
}

func (r *Repo) Create(ctx context.Context, t domain.Trip) error {
	_ = ctx
	if t.ID == "" {
		return triprepo.ErrAlreadyExists // treat empty ID as invalid for now
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[t.ID]; ok {
		return triprepo.ErrAlreadyExists
	}
	r.byID[t.ID] = cloneTrip(t)
	return nil
}

func (r *Repo) Save(ctx context.Context, t domain.Trip) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[t.ID]
	if !ok {
		return triprepo.ErrNotFound
	}
	// Creator is immutable.
	t.CreatorID = existing.CreatorID
	r.byID[t.ID] = cloneTrip(t)
	return nil
}

func (r *Repo) Delete(ctx context.Context, id domain.TripID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return triprepo.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.TripID) (domain.Trip, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return domain.Trip{}, triprepo.ErrNotFound
	}
	return cloneTrip(t), nil
}

func (r *Repo) ListForUser(ctx context.Context, user domain.UserID) ([]domain.Trip, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Trip, 0)
	for _, t := range r.byID {
		if t.CreatorID == user || t.HasParticipant(user) {
			out = append(out, cloneTrip(t))
		}
	}
	sortTrips(out)
	return out, nil
}

func cloneTrip(t domain.Trip) domain.Trip {
	cp := t
	cp.Description = cloneStringPtr(t.Description)
	cp.StartTime = cloneTimePtr(t.StartTime)
	cp.EndTime = cloneTimePtr(t.EndTime)
	if t.Participants != nil {
		cp.Participants = append([]domain.Participant(nil), t.Participants...)
	}
	if t.Segments != nil {
		cp.Segments = make([]domain.TripSegment, 0, len(t.Segments))
		for _, s := range t.Segments {
			s.Origin = cloneStringPtr(s.Origin)
			s.Destination = cloneStringPtr(s.Destination)
			s.DepartedAt = cloneTimePtr(s.DepartedAt)
			s.ArrivedAt = cloneTimePtr(s.ArrivedAt)
			cp.Segments = append(cp.Segments, s)
		}
	}
	return cp
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sortTrips(ts []domain.Trip) {
	// Sorting rule: by startTime ascending; unscheduled trips go after scheduled ones and sort by createdAt.
	sort.Slice(ts, func(i, j int) bool {
		a := ts[i]
		b := ts[j]
		as, bs := a.StartTime, b.StartTime

		if as != nil && bs != nil && !as.Equal(*bs) {
			return as.Before(*bs)
		}
		if as != nil && bs == nil {
			return true
		}
		if as == nil && bs != nil {
			return false
		}
		// Same (or no) startTime => createdAt, then ID.
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return string(a.ID) < string(b.ID)
	})
}
