package domain

import (
	"time"

	"github.com/samber/lo"
)

type TripStatus string

const (
	TripStatusInProgress TripStatus = "in_progress"
	TripStatusCompleted  TripStatus = "completed"
)

// Valid reports whether s is one of the persisted trip states.
// "upcoming" is derived from StartTime and is never stored.
func (s TripStatus) Valid() bool {
	switch s {
	case TripStatusInProgress, TripStatusCompleted:
		return true
	default:
		return false
	}
}

// TripStatuses lists every persisted status.
func TripStatuses() []TripStatus {
	return []TripStatus{TripStatusInProgress, TripStatusCompleted}
}

func ParseTripStatus(s string) (TripStatus, bool) {
	st := TripStatus(s)
	return st, st.Valid()
}

// Participant is a non-creator user attached to a trip.
type Participant struct {
	UID      UserID
	JoinedAt time.Time
}

// TripSegment is one leg of a trip travelled with a single mode.
type TripSegment struct {
	ID   SegmentID
	Mode ModeOfTravel

	Origin      *string
	Destination *string

	DepartedAt *time.Time
	ArrivedAt  *time.Time
}

type Trip struct {
	ID          TripID
	Title       string
	Description *string

	CreatorID UserID
	// Participants is nil when the trip has never had a participant list.
	Participants []Participant

	// StartTime drives the derived "upcoming" state; nil means unscheduled.
	StartTime *time.Time
	EndTime   *time.Time

	Status   TripStatus
	Segments []TripSegment

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasParticipant reports whether id is in the trip's participant list.
func (t Trip) HasParticipant(id UserID) bool {
	return lo.ContainsBy(t.Participants, func(p Participant) bool { return p.UID == id })
}
