// Package cache holds small in-process response caches for the HTTP layer.
package cache

import "time"

// BytesCache stores encoded responses with a TTL.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool)
	SetBytes(key string, value []byte, ttl time.Duration)
}
