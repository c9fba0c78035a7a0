package triprepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/trip-tracker-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/triprepo"
)

// Repo is a Postgres implementation of triprepo.Repository.
//
// A trip spans three tables (trips, trip_participants, trip_segments); every write
// runs in a single transaction.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectTrip = `
	SELECT
		tr.id,
		tr.external_id,
		tr.title,
		tr.description,
		creator.external_id,
		tr.start_time,
		tr.end_time,
		tr.status,
		tr.created_at,
		tr.updated_at
	FROM trips tr
	JOIN users creator ON creator.id = tr.created_by_user_id
`

func (r *Repo) Create(ctx context.Context, t domain.Trip) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	tripUUID, err := uuid.Parse(string(t.ID))
	if err != nil {
		return fmt.Errorf("invalid trip id: %w", err)
	}
	creatorUUID, err := uuid.Parse(string(t.CreatorID))
	if err != nil {
		return fmt.Errorf("invalid creator id: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var internalID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO trips (
				external_id,
				title,
				description,
				created_by_user_id,
				start_time,
				end_time,
				status,
				created_at,
				updated_at
			) VALUES (
				$1, $2, $3,
				(SELECT id FROM users WHERE external_id = $4),
				$5, $6, $7, $8, $9
			)
			RETURNING id
		`,
			tripUUID,
			t.Title,
			t.Description,
			creatorUUID,
			utcPtr(t.StartTime),
			utcPtr(t.EndTime),
			string(t.Status),
			t.CreatedAt.UTC(),
			t.UpdatedAt.UTC(),
		).Scan(&internalID)
		if err != nil {
			if postgres.IsViolation(err, postgres.UniqueViolationCode, "trips_external_id_unique") {
				return triprepo.ErrAlreadyExists
			}
			return err
		}

		if err := syncParticipants(ctx, tx, internalID, t.Participants); err != nil {
			return err
		}
		return syncSegments(ctx, tx, internalID, t.Segments)
	})
}

func (r *Repo) Save(ctx context.Context, t domain.Trip) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	tripUUID, err := uuid.Parse(string(t.ID))
	if err != nil {
		return triprepo.ErrNotFound
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Creator is immutable, so it is not part of the UPDATE.
		var internalID int64
		err := tx.QueryRow(ctx, `
			UPDATE trips
			SET title = $2,
			    description = $3,
			    start_time = $4,
			    end_time = $5,
			    status = $6,
			    updated_at = $7
			WHERE external_id = $1
			RETURNING id
		`,
			tripUUID,
			t.Title,
			t.Description,
			utcPtr(t.StartTime),
			utcPtr(t.EndTime),
			string(t.Status),
			t.UpdatedAt.UTC(),
		).Scan(&internalID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return triprepo.ErrNotFound
			}
			return err
		}

		if err := syncParticipants(ctx, tx, internalID, t.Participants); err != nil {
			return err
		}
		return syncSegments(ctx, tx, internalID, t.Segments)
	})
}

func (r *Repo) Delete(ctx context.Context, id domain.TripID) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	tripUUID, err := uuid.Parse(string(id))
	if err != nil {
		return triprepo.ErrNotFound
	}
	// Participants and segments go with the trip (ON DELETE CASCADE).
	ct, err := r.pool.Exec(ctx, `DELETE FROM trips WHERE external_id = $1`, tripUUID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return triprepo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.TripID) (domain.Trip, error) {
	if r.pool == nil {
		return domain.Trip{}, errors.New("nil postgres pool")
	}
	tripUUID, err := uuid.Parse(string(id))
	if err != nil {
		return domain.Trip{}, triprepo.ErrNotFound
	}

	internalID, t, err := scanTrip(r.pool.QueryRow(ctx, selectTrip+` WHERE tr.external_id = $1`, tripUUID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, triprepo.ErrNotFound
		}
		return domain.Trip{}, err
	}

	byTrip := map[int64]*domain.Trip{internalID: &t}
	if err := loadChildren(ctx, r.pool, byTrip); err != nil {
		return domain.Trip{}, err
	}
	return t, nil
}

func (r *Repo) ListForUser(ctx context.Context, user domain.UserID) ([]domain.Trip, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	userUUID, err := uuid.Parse(string(user))
	if err != nil {
		return []domain.Trip{}, nil
	}

	rows, err := r.pool.Query(ctx, selectTrip+`
		JOIN users caller ON caller.external_id = $1
		WHERE tr.created_by_user_id = caller.id
		   OR EXISTS (
		     SELECT 1 FROM trip_participants p
		     WHERE p.trip_id = tr.id AND p.user_id = caller.id
		   )
		ORDER BY
			tr.start_time ASC NULLS LAST,
			tr.created_at ASC,
			tr.external_id ASC
	`, userUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Trip, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		internalID, t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		ids = append(ids, internalID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	byTrip := make(map[int64]*domain.Trip, len(out))
	for i := range out {
		byTrip[ids[i]] = &out[i]
	}
	if err := loadChildren(ctx, r.pool, byTrip); err != nil {
		return nil, err
	}
	return out, nil
}

// --- helpers ---

func scanTrip(row pgx.Row) (int64, domain.Trip, error) {
	var (
		internalID int64
		extID      uuid.UUID
		title      string
		desc       *string
		creatorID  uuid.UUID
		startTime  *time.Time
		endTime    *time.Time
		status     string
		createdAt  time.Time
		updatedAt  time.Time
	)
	if err := row.Scan(
		&internalID,
		&extID,
		&title,
		&desc,
		&creatorID,
		&startTime,
		&endTime,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return 0, domain.Trip{}, err
	}
	return internalID, domain.Trip{
		ID:          domain.TripID(extID.String()),
		Title:       title,
		Description: desc,
		CreatorID:   domain.UserID(creatorID.String()),
		StartTime:   utcPtr(startTime),
		EndTime:     utcPtr(endTime),
		Status:      domain.TripStatus(status),
		CreatedAt:   createdAt.UTC(),
		UpdatedAt:   updatedAt.UTC(),
	}, nil
}

// loadChildren fills Participants and Segments for every trip in byTrip,
// keyed by the internal trips.id.
func loadChildren(ctx context.Context, q querier, byTrip map[int64]*domain.Trip) error {
	ids := make([]int64, 0, len(byTrip))
	for id := range byTrip {
		ids = append(ids, id)
	}

	prow, err := q.Query(ctx, `
		SELECT p.trip_id, u.external_id, p.joined_at
		FROM trip_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.trip_id = ANY($1)
		ORDER BY p.joined_at ASC, u.external_id ASC
	`, ids)
	if err != nil {
		return err
	}
	for prow.Next() {
		var (
			tripID   int64
			uid      uuid.UUID
			joinedAt time.Time
		)
		if err := prow.Scan(&tripID, &uid, &joinedAt); err != nil {
			prow.Close()
			return err
		}
		if t := byTrip[tripID]; t != nil {
			t.Participants = append(t.Participants, domain.Participant{UID: domain.UserID(uid.String()), JoinedAt: joinedAt.UTC()})
		}
	}
	prow.Close()
	if err := prow.Err(); err != nil {
		return err
	}

	srow, err := q.Query(ctx, `
		SELECT trip_id, external_id, mode, origin, destination, departed_at, arrived_at
		FROM trip_segments
		WHERE trip_id = ANY($1)
		ORDER BY sort_order ASC, external_id ASC
	`, ids)
	if err != nil {
		return err
	}
	defer srow.Close()
	for srow.Next() {
		var (
			tripID     int64
			sid        uuid.UUID
			mode       string
			origin     *string
			dest       *string
			departedAt *time.Time
			arrivedAt  *time.Time
		)
		if err := srow.Scan(&tripID, &sid, &mode, &origin, &dest, &departedAt, &arrivedAt); err != nil {
			return err
		}
		if t := byTrip[tripID]; t != nil {
			t.Segments = append(t.Segments, domain.TripSegment{
				ID:          domain.SegmentID(sid.String()),
				Mode:        domain.ModeOfTravel(mode),
				Origin:      origin,
				Destination: dest,
				DepartedAt:  utcPtr(departedAt),
				ArrivedAt:   utcPtr(arrivedAt),
			})
		}
	}
	return srow.Err()
}

func syncParticipants(ctx context.Context, tx pgx.Tx, tripID int64, desired []domain.Participant) error {
	want := make(map[uuid.UUID]time.Time, len(desired))
	for _, p := range desired {
		u, err := uuid.Parse(string(p.UID))
		if err != nil {
			return fmt.Errorf("invalid participant id %q: %w", p.UID, err)
		}
		want[u] = p.JoinedAt.UTC()
	}

	rows, err := tx.Query(ctx, `
		SELECT u.external_id
		FROM trip_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.trip_id = $1
	`, tripID)
	if err != nil {
		return err
	}
	have := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return err
		}
		have[u] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	// Delete removed.
	for u := range have {
		if _, ok := want[u]; ok {
			continue
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM trip_participants
			WHERE trip_id = $1
			  AND user_id = (SELECT id FROM users WHERE external_id = $2)
		`, tripID, u); err != nil {
			return err
		}
	}

	// Insert added; existing rows keep their joined_at.
	for u, joinedAt := range want {
		if _, ok := have[u]; ok {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO trip_participants (trip_id, user_id, joined_at)
			VALUES ($1, (SELECT id FROM users WHERE external_id = $2), $3)
			ON CONFLICT DO NOTHING
		`, tripID, u, joinedAt); err != nil {
			return err
		}
	}
	return nil
}

func syncSegments(ctx context.Context, tx pgx.Tx, tripID int64, desired []domain.TripSegment) error {
	keep := make([]string, 0, len(desired))
	for i, s := range desired {
		sid, err := uuid.Parse(string(s.ID))
		if err != nil {
			return fmt.Errorf("invalid segment id %q: %w", s.ID, err)
		}
		keep = append(keep, sid.String())
		if _, err := tx.Exec(ctx, `
			INSERT INTO trip_segments (external_id, trip_id, mode, origin, destination, departed_at, arrived_at, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (external_id) DO UPDATE SET
				mode = EXCLUDED.mode,
				origin = EXCLUDED.origin,
				destination = EXCLUDED.destination,
				departed_at = EXCLUDED.departed_at,
				arrived_at = EXCLUDED.arrived_at,
				sort_order = EXCLUDED.sort_order
		`, sid, tripID, string(s.Mode), s.Origin, s.Destination, utcPtr(s.DepartedAt), utcPtr(s.ArrivedAt), i); err != nil {
			return err
		}
	}

	// Delete segments no longer present.
	_, err := tx.Exec(ctx, `
		DELETE FROM trip_segments
		WHERE trip_id = $1 AND NOT (external_id = ANY($2::uuid[]))
	`, tripID, keep)
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
