package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss  = errors.New("cache: key not found")
	ErrLockHeld   = errors.New("cache: lock held by another owner")
	ErrNotLockOwn = errors.New("cache: lock not owned")
)

// Service defines the cache operations the application relies on. Values are
// stored as JSON; Get decodes into dest. An expiration <= 0 means no expiry.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	// TryLock acquires key for ttl and returns an owner token on success.
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	// Unlock releases key only when token still owns it.
	Unlock(ctx context.Context, key, token string) error
	Close() error
}

// WithLock runs fn while holding key, retrying acquisition every poll until
// ctx ends.
func WithLock(ctx context.Context, c Service, key string, ttl, poll time.Duration, fn func() error) error {
	for {
		token, ok, err := c.TryLock(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			defer func() {
				unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				_ = c.Unlock(unlockCtx, key, token)
			}()
			return fn()
		}

		t := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(ErrLockHeld, ctx.Err())
		case <-t.C:
		}
	}
}
