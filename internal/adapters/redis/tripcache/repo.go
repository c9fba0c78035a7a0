// Package tripcache decorates a trip repository with a Redis read-through cache.
package tripcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/triprepo"
)

// DefaultTTL applies when New is given a non-positive ttl.
const DefaultTTL = 60 * time.Second

const (
	keyPrefix = "cache:trip:"
	genPrefix = "cache:trip-gen:"

	// genTTL keeps a trip's generation counter well past any read that could
	// race the write that bumped it.
	genTTL = 24 * time.Hour
)

// storeIfCurrent caches ARGV[2] under KEYS[1] for ARGV[3] ms, but only while the
// generation in KEYS[2] still equals ARGV[1] (missing counts as "").
var storeIfCurrent = redis.NewScript(`
if (redis.call('GET', KEYS[2]) or '') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Repo caches GetByID results of the wrapped repository. Writes go to the wrapped
// repository first and then bump the trip's generation and drop the cached entry.
// A read only fills the cache if the generation it saw before reading the wrapped
// repository is still current, so a write racing a read never leaves the older
// trip cached. Redis failures are logged and never surface to callers.
type Repo struct {
	inner  triprepo.Repository
	client redis.Cmdable
	ttl    time.Duration
	log    *zap.Logger
}

var _ triprepo.Repository = (*Repo)(nil)

func New(inner triprepo.Repository, client redis.Cmdable, ttl time.Duration, log *zap.Logger) *Repo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Repo{inner: inner, client: client, ttl: ttl, log: log.Named("tripcache")}
}

func (r *Repo) Create(ctx context.Context, t domain.Trip) error {
	return r.inner.Create(ctx, t)
}

func (r *Repo) Save(ctx context.Context, t domain.Trip) error {
	if err := r.inner.Save(ctx, t); err != nil {
		return err
	}
	r.invalidate(ctx, t.ID)
	return nil
}

func (r *Repo) Delete(ctx context.Context, id domain.TripID) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.TripID) (domain.Trip, error) {
	data, err := r.client.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil:
		var ct cachedTrip
		if err := json.Unmarshal(data, &ct); err == nil {
			return ct.toDomain(), nil
		}
		r.log.Warn("discarding undecodable cache entry", zap.String("tripId", string(id)))
	case !errors.Is(err, redis.Nil):
		r.log.Warn("cache get failed", zap.String("tripId", string(id)), zap.Error(err))
	}

	// Read the generation before the wrapped repository so a write landing in
	// between is detected when storing.
	gen, genErr := r.client.Get(ctx, genKey(id)).Result()
	if errors.Is(genErr, redis.Nil) {
		gen, genErr = "", nil
	}

	t, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return domain.Trip{}, err
	}
	if genErr == nil {
		r.store(ctx, t, gen)
	}
	return t, nil
}

// ListForUser is not cached; membership changes would need fan-out invalidation.
func (r *Repo) ListForUser(ctx context.Context, user domain.UserID) ([]domain.Trip, error) {
	return r.inner.ListForUser(ctx, user)
}

func (r *Repo) store(ctx context.Context, t domain.Trip, gen string) {
	data, err := json.Marshal(fromDomain(t))
	if err != nil {
		r.log.Warn("cache encode failed", zap.String("tripId", string(t.ID)), zap.Error(err))
		return
	}
	keys := []string{key(t.ID), genKey(t.ID)}
	if err := storeIfCurrent.Run(ctx, r.client, keys, gen, data, r.ttl.Milliseconds()).Err(); err != nil {
		r.log.Warn("cache set failed", zap.String("tripId", string(t.ID)), zap.Error(err))
	}
}

func (r *Repo) invalidate(ctx context.Context, id domain.TripID) {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(id))
		pipe.Expire(ctx, genKey(id), genTTL)
		pipe.Del(ctx, key(id))
		return nil
	})
	if err != nil {
		r.log.Warn("cache invalidate failed", zap.String("tripId", string(id)), zap.Error(err))
	}
}

func key(id domain.TripID) string {
	return keyPrefix + string(id)
}

func genKey(id domain.TripID) string {
	return genPrefix + string(id)
}
