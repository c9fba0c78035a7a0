package userrepo

import (
	"context"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
)

// Repository provides access to persisted users.
//
// The subject binding is immutable once created.
type Repository interface {
	Create(ctx context.Context, u domain.User) error
	Update(ctx context.Context, u domain.User) error

	GetByID(ctx context.Context, id domain.UserID) (domain.User, error)
	GetBySubject(ctx context.Context, subject domain.SubjectID) (domain.User, error)
}
