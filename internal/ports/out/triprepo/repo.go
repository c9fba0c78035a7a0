package triprepo

import (
	"context"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
)

// Repository provides access to persisted trips.
//
// Implementations store and return domain.Trip values by copy; callers may mutate
// what they get back without affecting stored state.
//
// Result ordering expectations:
// - ListForUser orders by StartTime ascending with unscheduled trips last, then CreatedAt, then ID.
type Repository interface {
	Create(ctx context.Context, t domain.Trip) error
	Save(ctx context.Context, t domain.Trip) error
	Delete(ctx context.Context, id domain.TripID) error

	GetByID(ctx context.Context, id domain.TripID) (domain.Trip, error)

	// ListForUser returns trips the user created or participates in.
	ListForUser(ctx context.Context, user domain.UserID) ([]domain.Trip, error)
}
