package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"
	"GoldPull/pkg/cache"
)

// CacheProjectionStore keeps projections in a cache.Service: Redis (optionally
// layered) in production, MemoryCache otherwise. Update reads from primary so
// a read-modify-write never sees a stale L1 copy.
type CacheProjectionStore struct {
	primary cache.Service
	reader  cache.Service
	ttl     time.Duration
	lockTTL time.Duration
}

var _ drepo.ProjectionStore = (*CacheProjectionStore)(nil)

func NewCacheProjectionStore(primary, reader cache.Service, ttl time.Duration) *CacheProjectionStore {
	if reader == nil {
		reader = primary
	}
	return &CacheProjectionStore{primary: primary, reader: reader, ttl: ttl, lockTTL: 5 * time.Second}
}

func projectionKey(key string) string { return "projection:" + key }

func (s *CacheProjectionStore) Get(ctx context.Context, key string) (*models.CacheProjection, error) {
	return s.get(ctx, s.reader, key)
}

func (s *CacheProjectionStore) get(ctx context.Context, c cache.Service, key string) (*models.CacheProjection, error) {
	var p models.CacheProjection
	if err := c.Get(ctx, projectionKey(key), &p); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, drepo.ErrNotFound
		}
		return nil, fmt.Errorf("get projection %s: %w", key, err)
	}
	return &p, nil
}

func (s *CacheProjectionStore) Put(ctx context.Context, p models.CacheProjection) error {
	if err := s.reader.Set(ctx, projectionKey(p.Key), p, s.ttl); err != nil {
		return fmt.Errorf("put projection %s: %w", p.Key, err)
	}
	return nil
}

func (s *CacheProjectionStore) Update(ctx context.Context, key string, fn func(prev *models.CacheProjection) models.CacheProjection) error {
	return cache.WithLock(ctx, s.primary, "lock:"+projectionKey(key), s.lockTTL, 25*time.Millisecond, func() error {
		prev, err := s.get(ctx, s.primary, key)
		if err != nil && !errors.Is(err, drepo.ErrNotFound) {
			return err
		}
		next := fn(prev)
		next.Key = key
		return s.Put(ctx, next)
	})
}
