package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	Code  string  `json:"code"`
	Price float64 `json:"price"`
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", []point{{"USDTRY", 34.5}}, 0))

	var got []point
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, []point{{"USDTRY", 34.5}}, got)

	ok, err := mc.Exists(ctx, "missing", "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mc.Delete(ctx, "k"))
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "short", 1, 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	var v int
	assert.ErrorIs(t, mc.Get(ctx, "short", &v), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	time.Sleep(time.Millisecond)

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v)) // a is now fresher than b
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.NoError(t, mc.Get(ctx, "a", &v))
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "c", &v))
}

func TestMemoryCacheLockOwnership(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	token, ok, err := mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, mc.Unlock(ctx, "lock", "someone-else"), ErrNotLockOwn)
	assert.NoError(t, mc.Unlock(ctx, "lock", token))

	_, ok, err = mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWithLockSerializes(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(ctx, mc, "merge", time.Second, time.Millisecond, func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestWithLockGivesUpOnContext(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()

	_, ok, _ := mc.TryLock(context.Background(), "busy", time.Minute)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := WithLock(ctx, mc, "busy", time.Second, 5*time.Millisecond, func() error { return nil })
	assert.True(t, errors.Is(err, ErrLockHeld))
}

func TestLayeredCacheFallsThroughToL2(t *testing.T) {
	l2 := NewMemoryCache()
	lc := NewLayeredCache(l2, time.Minute)
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "k", point{"ALTIN", 2950}, 0))

	var got point
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, "ALTIN", got.Code)

	require.NoError(t, lc.Set(ctx, "k2", point{"GUMUS", 30}, 0))
	var fromL2 point
	require.NoError(t, l2.Get(ctx, "k2", &fromL2))
	assert.Equal(t, 30.0, fromL2.Price)
}
