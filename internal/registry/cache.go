package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"healthconsent/internal/registry/metrics"
	id "healthconsent/pkg/domain"
)

// DefaultCacheTTL applies when no TTL is configured.
const DefaultCacheTTL = 5 * time.Minute

const redisKeyPrefix = "registry:patient:"

// Cache stores registry records by patient. Get returns ErrNotFound on a miss.
type Cache interface {
	Get(ctx context.Context, patientID id.PatientID) (*PatientRecord, error)
	Set(ctx context.Context, patientID id.PatientID, rec *PatientRecord) error
}

// RedisCache keeps records in Redis with TTL eviction.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, patientID id.PatientID) (*PatientRecord, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+patientID.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read record cache: %w", err)
	}
	var rec PatientRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record cache: %w", err)
	}
	return &rec, nil
}

func (c *RedisCache) Set(ctx context.Context, patientID id.PatientID, rec *PatientRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record cache: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+patientID.String(), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("write record cache: %w", err)
	}
	return nil
}

// MemoryCache is the in-process fallback. Expired entries are dropped on
// read; no janitor goroutine is started.
type MemoryCache struct {
	items *gocache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{items: gocache.New(ttl, 0)}
}

func (c *MemoryCache) Get(_ context.Context, patientID id.PatientID) (*PatientRecord, error) {
	v, ok := c.items.Get(patientID.String())
	if !ok {
		return nil, ErrNotFound
	}
	rec := *v.(*PatientRecord)
	return &rec, nil
}

func (c *MemoryCache) Set(_ context.Context, patientID id.PatientID, rec *PatientRecord) error {
	stored := *rec
	c.items.SetDefault(patientID.String(), &stored)
	return nil
}

// CachedSource reads through cache and collapses concurrent fetches of one
// patient into a single registry call. Cache failures degrade to a direct fetch.
type CachedSource struct {
	source  Source
	cache   Cache
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewCachedSource(source Source, cache Cache, logger *slog.Logger, m *metrics.Metrics) *CachedSource {
	return &CachedSource{source: source, cache: cache, logger: logger, metrics: m}
}

func (s *CachedSource) Fetch(ctx context.Context, patientID id.PatientID) (*PatientRecord, error) {
	rec, err := s.cache.Get(ctx, patientID)
	switch {
	case err == nil:
		s.metrics.CacheHit()
		return rec, nil
	case !errors.Is(err, ErrNotFound):
		s.logger.WarnContext(ctx, "record cache read failed", "error", err, "patient_id", patientID.String())
	}
	s.metrics.CacheMiss()

	// The shared fetch outlives any one caller; the client applies its own timeout.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(patientID.String(), func() (any, error) {
		fetched, err := s.source.Fetch(shared, patientID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(shared, patientID, fetched); err != nil {
			s.logger.WarnContext(shared, "record cache write failed", "error", err, "patient_id", patientID.String())
		}
		return fetched, nil
	})

	var v any
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		v = res.Val
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	out := *v.(*PatientRecord)
	return &out, nil
}
