package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	c := NewTTLCache(10)
	c.now = func() time.Time { return now }

	c.SetBytes("h", []byte(`[]`), time.Second)
	c.SetBytes("forever", []byte(`1`), 0)

	b, ok := c.GetBytes("h")
	assert.True(t, ok)
	assert.Equal(t, `[]`, string(b))

	now = now.Add(2 * time.Second)
	_, ok = c.GetBytes("h")
	assert.False(t, ok)
	_, ok = c.GetBytes("forever")
	assert.True(t, ok)
}

func TestTTLCacheSizeCap(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	c := NewTTLCache(2)
	c.now = func() time.Time { return now }

	c.SetBytes("old", []byte("x"), time.Second)
	c.SetBytes("keep", []byte("y"), time.Minute)
	now = now.Add(2 * time.Second)
	c.SetBytes("new", []byte("z"), time.Minute)

	assert.Equal(t, 2, c.Len())
	_, ok := c.GetBytes("keep")
	assert.True(t, ok, "expired entries are evicted first")

	c.SetBytes("another", []byte("w"), time.Minute)
	assert.Equal(t, 2, c.Len())
}
