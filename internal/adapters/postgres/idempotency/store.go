package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	clockport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/idempotency"
)

// Store is a Postgres implementation of idempotency.Store.
//
// Subjects are scoped by issuer, matching the users table. A pending
// reservation is a row with status_code 0.
type Store struct {
	pool      *pgxpool.Pool
	issuer    string
	retention time.Duration
	clk       clockport.Clock
}

func NewStore(pool *pgxpool.Pool, jwtIssuer string, clk clockport.Clock) *Store {
	return &Store{pool: pool, issuer: jwtIssuer, clk: clk}
}

// WithRetention makes Get ignore records created more than d ago. Rows are
// only removed by Prune.
func (s *Store) WithRetention(d time.Duration) *Store {
	s.retention = d
	return s
}

// cutoff is the oldest created_at Get will return.
func (s *Store) cutoff() time.Time {
	if s.retention <= 0 {
		return time.Time{}
	}
	return s.clk.Now().UTC().Add(-s.retention)
}

// PruneExpired deletes records that fall outside the retention window. It is a
// no-op when no retention is configured.
func (s *Store) PruneExpired(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	return s.Prune(ctx, s.cutoff())
}

// Prune deletes records created before olderThan and reports how many were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if s.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	if s.pool == nil {
		return idempotency.Record{}, false, errors.New("nil postgres pool")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT body_hash, status_code, content_type, body, created_at
		FROM idempotency_keys
		WHERE idempotency_key = $1
		  AND subject_iss = $2
		  AND subject_sub = $3
		  AND method = $4
		  AND route = $5
		  AND created_at >= $6
	`,
		string(fp.Key),
		s.issuer,
		string(fp.Subject),
		fp.Method,
		fp.Route,
		s.cutoff(),
	)
	var rec idempotency.Record
	if err := row.Scan(&rec.BodyHash, &rec.StatusCode, &rec.ContentType, &rec.Body, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, fmt.Errorf("get idempotency key: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clk.Now().UTC()
	}
	body := rec.Body
	if body == nil {
		body = []byte{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (
			idempotency_key,
			subject_iss,
			subject_sub,
			method,
			route,
			body_hash,
			status_code,
			content_type,
			body,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (idempotency_key, subject_iss, subject_sub, method, route)
		DO UPDATE SET
			body_hash = EXCLUDED.body_hash,
			status_code = EXCLUDED.status_code,
			content_type = EXCLUDED.content_type,
			body = EXCLUDED.body,
			created_at = EXCLUDED.created_at
	`,
		string(fp.Key),
		s.issuer,
		string(fp.Subject),
		fp.Method,
		fp.Route,
		rec.BodyHash,
		rec.StatusCode,
		rec.ContentType,
		body,
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("put idempotency key: %w", err)
	}
	return nil
}

// reserveAttempts bounds the retry when a conflicting row disappears between
// the insert and the read (released or pruned concurrently).
const reserveAttempts = 3

func (s *Store) Reserve(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) (idempotency.Record, bool, error) {
	if s.pool == nil {
		return idempotency.Record{}, false, errors.New("nil postgres pool")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clk.Now()
	}
	pending := idempotency.Record{BodyHash: rec.BodyHash, CreatedAt: createdAt.UTC()}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		// An expired row is taken over in place; a live one is left alone.
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO idempotency_keys (
				idempotency_key,
				subject_iss,
				subject_sub,
				method,
				route,
				body_hash,
				status_code,
				content_type,
				body,
				created_at
			) VALUES ($1,$2,$3,$4,$5,$6,0,'','',$7)
			ON CONFLICT (idempotency_key, subject_iss, subject_sub, method, route)
			DO UPDATE SET
				body_hash = EXCLUDED.body_hash,
				status_code = 0,
				content_type = '',
				body = EXCLUDED.body,
				created_at = EXCLUDED.created_at
			WHERE idempotency_keys.created_at < $8
		`,
			string(fp.Key),
			s.issuer,
			string(fp.Subject),
			fp.Method,
			fp.Route,
			pending.BodyHash,
			pending.CreatedAt,
			s.cutoff(),
		)
		if err != nil {
			return idempotency.Record{}, false, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return pending, true, nil
		}

		cur, found, err := s.Get(ctx, fp)
		if err != nil {
			return idempotency.Record{}, false, err
		}
		if found {
			return cur, false, nil
		}
	}
	return idempotency.Record{}, false, errors.New("reserve idempotency key: slot kept changing")
}

func (s *Store) Release(ctx context.Context, fp idempotency.Fingerprint) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE idempotency_key = $1
		  AND subject_iss = $2
		  AND subject_sub = $3
		  AND method = $4
		  AND route = $5
		  AND status_code = 0
	`,
		string(fp.Key),
		s.issuer,
		string(fp.Subject),
		fp.Method,
		fp.Route,
	)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
