package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/samber/lo"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/app/trips"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/app/users"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
)

// Users

type CreateMeRequest struct {
	DisplayName string              `json:"displayName"`
	Email       openapi_types.Email `json:"email"`
}

type UpdateMeRequest struct {
	DisplayName nullable.Nullable[string]              `json:"displayName,omitempty"`
	Email       nullable.Nullable[openapi_types.Email] `json:"email,omitempty"`
}

type User struct {
	Id          string              `json:"id"`
	DisplayName string              `json:"displayName"`
	Email       openapi_types.Email `json:"email"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

type UserResponse struct {
	User User `json:"user"`
}

// Trips

type CreateTripRequest struct {
	Title          string     `json:"title"`
	Description    *string    `json:"description,omitempty"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	ParticipantIds []string   `json:"participantIds,omitempty"`
}

// UpdateTripRequest is a merge patch: omitted fields are left alone and null
// clears a field.
type UpdateTripRequest struct {
	Title       nullable.Nullable[string]    `json:"title,omitempty"`
	Description nullable.Nullable[string]    `json:"description,omitempty"`
	StartTime   nullable.Nullable[time.Time] `json:"startTime,omitempty"`
	EndTime     nullable.Nullable[time.Time] `json:"endTime,omitempty"`
}

type AddParticipantRequest struct {
	UserId string `json:"userId"`
}

type AddSegmentRequest struct {
	Mode        string     `json:"mode"`
	Origin      *string    `json:"origin,omitempty"`
	Destination *string    `json:"destination,omitempty"`
	DepartedAt  *time.Time `json:"departedAt,omitempty"`
	ArrivedAt   *time.Time `json:"arrivedAt,omitempty"`
}

type Participant struct {
	UserId   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Segment struct {
	Id          string     `json:"id"`
	Mode        string     `json:"mode"`
	Label       string     `json:"label"`
	Origin      *string    `json:"origin,omitempty"`
	Destination *string    `json:"destination,omitempty"`
	DepartedAt  *time.Time `json:"departedAt,omitempty"`
	ArrivedAt   *time.Time `json:"arrivedAt,omitempty"`
}

type TripPermissions struct {
	IsCreator     bool `json:"isCreator"`
	IsParticipant bool `json:"isParticipant"`
	CanEdit       bool `json:"canEdit"`
	IsUpcoming    bool `json:"isUpcoming"`
}

type StatusDisplay struct {
	Label           string `json:"label"`
	TextColor       string `json:"textColor"`
	BackgroundColor string `json:"backgroundColor"`
}

type Trip struct {
	Id            string          `json:"id"`
	Title         string          `json:"title"`
	Description   *string         `json:"description,omitempty"`
	CreatorId     string          `json:"creatorId"`
	Participants  []Participant   `json:"participants"`
	StartTime     *time.Time      `json:"startTime,omitempty"`
	EndTime       *time.Time      `json:"endTime,omitempty"`
	Status        string          `json:"status"`
	Segments      []Segment       `json:"segments"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Permissions   TripPermissions `json:"permissions"`
	StatusDisplay StatusDisplay   `json:"statusDisplay"`
}

type TripResponse struct {
	Trip Trip `json:"trip"`
}

type TripListResponse struct {
	Trips []Trip `json:"trips"`
}

type TripPermissionsResponse struct {
	Permissions TripPermissions `json:"permissions"`
}

// Catalog

type TravelMode struct {
	Mode  string `json:"mode"`
	Label string `json:"label"`
}

type TravelModesResponse struct {
	Modes []TravelMode `json:"modes"`
}

type TripStatusEntry struct {
	Status        string        `json:"status"`
	Upcoming      bool          `json:"upcoming"`
	StatusDisplay StatusDisplay `json:"statusDisplay"`
}

type TripStatusesResponse struct {
	Statuses []TripStatusEntry `json:"statuses"`
}

func userFromDomain(u domain.User) User {
	return User{
		Id:          string(u.ID),
		DisplayName: u.DisplayName,
		Email:       openapi_types.Email(u.Email),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func permissionsFromDomain(p domain.TripPermissions) TripPermissions {
	return TripPermissions{
		IsCreator:     p.IsCreator,
		IsParticipant: p.IsParticipant,
		CanEdit:       p.CanEdit,
		IsUpcoming:    p.IsUpcoming,
	}
}

func statusDisplayFromDomain(d domain.StatusDisplay) StatusDisplay {
	return StatusDisplay{Label: d.Label, TextColor: d.TextColor, BackgroundColor: d.BackgroundColor}
}

func tripFromView(v trips.TripView) Trip {
	t := v.Trip
	return Trip{
		Id:          string(t.ID),
		Title:       t.Title,
		Description: t.Description,
		CreatorId:   string(t.CreatorID),
		Participants: lo.Map(t.Participants, func(p domain.Participant, _ int) Participant {
			return Participant{UserId: string(p.UID), JoinedAt: p.JoinedAt}
		}),
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		Status:    string(t.Status),
		Segments: lo.Map(t.Segments, func(s domain.TripSegment, i int) Segment {
			label := s.Mode.Label()
			if i < len(v.SegmentLabels) {
				label = v.SegmentLabels[i]
			}
			return Segment{
				Id:          string(s.ID),
				Mode:        string(s.Mode),
				Label:       label,
				Origin:      s.Origin,
				Destination: s.Destination,
				DepartedAt:  s.DepartedAt,
				ArrivedAt:   s.ArrivedAt,
			}
		}),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		Permissions:   permissionsFromDomain(v.Permissions),
		StatusDisplay: statusDisplayFromDomain(v.StatusDisplay),
	}
}

func createTripInputFromRequest(b CreateTripRequest) trips.CreateTripInput {
	return trips.CreateTripInput{
		Title:       b.Title,
		Description: b.Description,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		ParticipantIDs: lo.Map(b.ParticipantIds, func(id string, _ int) domain.UserID {
			return domain.UserID(id)
		}),
	}
}

func updateTripInputFromRequest(b UpdateTripRequest) trips.UpdateTripInput {
	return trips.UpdateTripInput{
		Title:       tripsOptional(b.Title),
		Description: tripsOptional(b.Description),
		StartTime:   tripsOptional(b.StartTime),
		EndTime:     tripsOptional(b.EndTime),
	}
}

func addSegmentInputFromRequest(b AddSegmentRequest) trips.AddSegmentInput {
	return trips.AddSegmentInput{
		Mode:        b.Mode,
		Origin:      b.Origin,
		Destination: b.Destination,
		DepartedAt:  b.DepartedAt,
		ArrivedAt:   b.ArrivedAt,
	}
}

func updateMeInputFromRequest(b UpdateMeRequest) users.UpdateMeInput {
	out := users.UpdateMeInput{DisplayName: usersOptional(b.DisplayName)}
	switch {
	case !b.Email.IsSpecified():
	case b.Email.IsNull():
		out.Email = users.Null[string]()
	default:
		if v, err := b.Email.Get(); err == nil {
			out.Email = users.Some(string(v))
		}
	}
	return out
}

func tripsOptional[T any](n nullable.Nullable[T]) trips.Optional[T] {
	if !n.IsSpecified() {
		return trips.Unspecified[T]()
	}
	if n.IsNull() {
		return trips.Null[T]()
	}
	v, err := n.Get()
	if err != nil {
		return trips.Unspecified[T]()
	}
	return trips.Some(v)
}

func usersOptional[T any](n nullable.Nullable[T]) users.Optional[T] {
	if !n.IsSpecified() {
		return users.Unspecified[T]()
	}
	if n.IsNull() {
		return users.Null[T]()
	}
	v, err := n.Get()
	if err != nil {
		return users.Unspecified[T]()
	}
	return users.Some(v)
}
