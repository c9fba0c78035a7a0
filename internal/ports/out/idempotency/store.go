package idempotency

import (
	"context"
	"time"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
)

// Key is the caller-provided idempotency key (Idempotency-Key header).
type Key string

// Fingerprint identifies a logical request slot: one caller, one key, one route.
// The request body is not part of the slot; it is recorded on the Record so a
// reused key with a different body can be rejected instead of replayed.
type Fingerprint struct {
	Key     Key
	Subject domain.SubjectID
	Method  string
	Route   string // request path, e.g. "/trips"
}

// Record is the stored response replayed for a duplicate request. A record
// with StatusCode 0 is a reservation held by a request still in flight.
type Record struct {
	BodyHash    string
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}

// Pending reports whether the record is a reservation without a response yet.
func (r Record) Pending() bool { return r.StatusCode == 0 }

// Store persists idempotency records.
//
// Reserve claims an empty (or expired) slot with a pending record and reports
// true. When the slot is taken it reports false with the current record, so
// exactly one of several concurrent requests runs. Put completes or overwrites
// the slot. Release drops the slot only while it is still pending.
type Store interface {
	Get(ctx context.Context, fp Fingerprint) (Record, bool, error)
	Reserve(ctx context.Context, fp Fingerprint, rec Record) (Record, bool, error)
	Put(ctx context.Context, fp Fingerprint, rec Record) error
	Release(ctx context.Context, fp Fingerprint) error
}
