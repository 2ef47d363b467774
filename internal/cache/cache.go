// internal/cache/cache.go
//
// Package cache is a small TTL key/value store used to avoid re-fetching
// tool results (search queries, page bodies) within their freshness window.
package cache

import (
	"context"
	"time"
)

// Store is a TTL cache. Get reports a miss with ok=false rather than an
// error; errors mean the backend itself failed.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
