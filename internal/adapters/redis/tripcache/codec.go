package tripcache

import (
	"time"

	"github.com/samber/lo"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
)

// cachedTrip is the JSON shape stored in Redis. Participants and segments keep
// nil and empty apart: nil encodes as null, empty as [].
type cachedTrip struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Description  *string             `json:"description,omitempty"`
	CreatorID    string              `json:"creatorId"`
	Participants []cachedParticipant `json:"participants"`
	StartTime    *time.Time          `json:"startTime,omitempty"`
	EndTime      *time.Time          `json:"endTime,omitempty"`
	Status       string              `json:"status"`
	Segments     []cachedSegment     `json:"segments"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

type cachedParticipant struct {
	UID      string    `json:"uid"`
	JoinedAt time.Time `json:"joinedAt"`
}

type cachedSegment struct {
	ID          string     `json:"id"`
	Mode        string     `json:"mode"`
	Origin      *string    `json:"origin,omitempty"`
	Destination *string    `json:"destination,omitempty"`
	DepartedAt  *time.Time `json:"departedAt,omitempty"`
	ArrivedAt   *time.Time `json:"arrivedAt,omitempty"`
}

func fromDomain(t domain.Trip) cachedTrip {
	c := cachedTrip{
		ID:          string(t.ID),
		Title:       t.Title,
		Description: t.Description,
		CreatorID:   string(t.CreatorID),
		StartTime:   t.StartTime,
		EndTime:     t.EndTime,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.Participants != nil {
		c.Participants = lo.Map(t.Participants, func(p domain.Participant, _ int) cachedParticipant {
			return cachedParticipant{UID: string(p.UID), JoinedAt: p.JoinedAt}
		})
	}
	if t.Segments != nil {
		c.Segments = lo.Map(t.Segments, func(s domain.TripSegment, _ int) cachedSegment {
			return cachedSegment{
				ID:          string(s.ID),
				Mode:        string(s.Mode),
				Origin:      s.Origin,
				Destination: s.Destination,
				DepartedAt:  s.DepartedAt,
				ArrivedAt:   s.ArrivedAt,
			}
		})
	}
	return c
}

func (c cachedTrip) toDomain() domain.Trip {
	t := domain.Trip{
		ID:          domain.TripID(c.ID),
		Title:       c.Title,
		Description: c.Description,
		CreatorID:   domain.UserID(c.CreatorID),
		StartTime:   c.StartTime,
		EndTime:     c.EndTime,
		Status:      domain.TripStatus(c.Status),
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
	if c.Participants != nil {
		t.Participants = lo.Map(c.Participants, func(p cachedParticipant, _ int) domain.Participant {
			return domain.Participant{UID: domain.UserID(p.UID), JoinedAt: p.JoinedAt.UTC()}
		})
	}
	if c.Segments != nil {
		t.Segments = lo.Map(c.Segments, func(s cachedSegment, _ int) domain.TripSegment {
			return domain.TripSegment{
				ID:          domain.SegmentID(s.ID),
				Mode:        domain.ModeOfTravel(s.Mode),
				Origin:      s.Origin,
				Destination: s.Destination,
				DepartedAt:  s.DepartedAt,
				ArrivedAt:   s.ArrivedAt,
			}
		})
	}
	return t
}
