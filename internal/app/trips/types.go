package trips

import (
	"time"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
)

// Optional is a tri-state field used to distinguish:
// - unspecified (omitted)
// - specified as null
// - specified with a value
type Optional[T any] struct {
	specified bool
	isNull    bool
	value     T
}

func Unspecified[T any]() Optional[T] { return Optional[T]{} }
func Null[T any]() Optional[T]        { return Optional[T]{specified: true, isNull: true} }
func Some[T any](v T) Optional[T]     { return Optional[T]{specified: true, value: v} }

func (o Optional[T]) IsSpecified() bool { return o.specified }
func (o Optional[T]) IsNull() bool      { return o.specified && o.isNull }
func (o Optional[T]) Value() T          { return o.value }

// TripView is a trip as seen by one caller at one instant: the stored trip plus
// everything derived from it for display.
type TripView struct {
	Trip          domain.Trip
	Permissions   domain.TripPermissions
	StatusDisplay domain.StatusDisplay
	// SegmentLabels holds one label per entry of Trip.Segments, in order.
	SegmentLabels []string
}

type CreateTripInput struct {
	Title          string
	Description    *string
	StartTime      *time.Time
	EndTime        *time.Time
	ParticipantIDs []domain.UserID
}

type UpdateTripInput struct {
	// Title is optional and cannot be null.
	Title Optional[string]

	Description Optional[string]
	StartTime   Optional[time.Time]
	EndTime     Optional[time.Time]
}

type AddSegmentInput struct {
	Mode        string
	Origin      *string
	Destination *string
	DepartedAt  *time.Time
	ArrivedAt   *time.Time
}
