package domain

import "time"

// TripPermissions describes a user's relationship to a trip. It is recomputed
// on every request and never stored.
type TripPermissions struct {
	IsCreator     bool
	IsParticipant bool
	CanEdit       bool
	IsUpcoming    bool
}

// DeriveTripPermissions computes the caller's flags for trip as of now.
// A nil trip yields all-false flags; a nil user never matches creator or participant.
func DeriveTripPermissions(trip *Trip, user *User, now time.Time) TripPermissions {
	if trip == nil {
		return TripPermissions{}
	}

	var p TripPermissions
	if user != nil {
		p.IsCreator = user.ID == trip.CreatorID
		p.IsParticipant = trip.HasParticipant(user.ID)
	}
	p.CanEdit = p.IsCreator || p.IsParticipant
	p.IsUpcoming = IsUpcoming(trip, now)
	return p
}

// IsUpcoming reports whether trip has a start time strictly after now.
func IsUpcoming(trip *Trip, now time.Time) bool {
	return trip != nil && trip.StartTime != nil && trip.StartTime.After(now)
}
