// Package cache stores serialized assessments by key, in process
// (bigcache) or shared across replicas (Redis).
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value cache with expiry.
type Cache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// AssessmentKey is the cache key of a wallet's latest assessment.
func AssessmentKey(address string) string {
	return "assessment:" + address
}
