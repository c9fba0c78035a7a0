package idempotency

import (
	"bytes"
	"context"
	"sync"
	"time"

	clockport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/idempotency"
)

// Store is an in-memory implementation of idempotency.Store.
// It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	m  map[idempotency.Fingerprint]idempotency.Record

	// retention <= 0 keeps records forever.
	retention time.Duration
	clk       clockport.Clock
}

func NewStore() *Store {
	return &Store{
		m: make(map[idempotency.Fingerprint]idempotency.Record),
	}
}

// NewStoreWithRetention returns a store that treats records older than
// retention (by Record.CreatedAt, measured on clk) as absent.
func NewStoreWithRetention(retention time.Duration, clk clockport.Clock) *Store {
	s := NewStore()
	s.retention = retention
	s.clk = clk
	return s
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	_ = ctx
	s.mu.RLock()
	rec, ok := s.m[fp]
	s.mu.RUnlock()
	if !ok {
		return idempotency.Record{}, false, nil
	}
	if s.expired(rec) {
		s.mu.Lock()
		// Re-check: a concurrent Put may have replaced it.
		if cur, ok := s.m[fp]; ok && s.expired(cur) {
			delete(s.m, fp)
		}
		s.mu.Unlock()
		return idempotency.Record{}, false, nil
	}
	rec.Body = bytes.Clone(rec.Body)
	return rec, true, nil
}

func (s *Store) Reserve(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) (idempotency.Record, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[fp]; ok && !s.expired(cur) {
		cur.Body = bytes.Clone(cur.Body)
		return cur, false, nil
	}
	rec.StatusCode = 0
	rec.ContentType = ""
	rec.Body = nil
	if rec.CreatedAt.IsZero() && s.clk != nil {
		rec.CreatedAt = s.clk.Now()
	}
	s.m[fp] = rec
	return rec, true, nil
}

func (s *Store) Release(ctx context.Context, fp idempotency.Fingerprint) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[fp]; ok && cur.Pending() {
		delete(s.m, fp)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	_ = ctx
	rec.Body = bytes.Clone(rec.Body)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[fp] = rec
	return nil
}

func (s *Store) expired(rec idempotency.Record) bool {
	if s.retention <= 0 || s.clk == nil {
		return false
	}
	return s.clk.Now().Sub(rec.CreatedAt) > s.retention
}
