package cache

import (
	"sync"
	"time"
)

type entry struct {
	v   []byte
	exp time.Time
}

// TTLCache is a map with per-entry expiry and a size cap. When full, expired
// entries are purged first, then an arbitrary entry is evicted.
type TTLCache struct {
	mu      sync.Mutex
	m       map[string]entry
	maxSize int
	now     func() time.Time
}

var _ BytesCache = (*TTLCache)(nil)

func NewTTLCache(maxSize int) *TTLCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &TTLCache{m: make(map[string]entry), maxSize: maxSize, now: time.Now}
}

func (c *TTLCache) GetBytes(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		delete(c.m, key)
		return nil, false
	}
	return e.v, true
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	if _, ok := c.m[key]; !ok && len(c.m) >= c.maxSize {
		c.evictLocked(now)
	}
	c.m[key] = entry{v: value, exp: exp}
}

func (c *TTLCache) evictLocked(now time.Time) {
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
		}
	}
	if len(c.m) < c.maxSize {
		return
	}
	for k := range c.m {
		delete(c.m, k)
		return
	}
}

func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
