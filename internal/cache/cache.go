// Package cache provides best-effort caching for rule lists and workflow
// configs. A cache failure must never block correctness: callers fall back to
// the store on any error.
package cache

import (
	"context"
	"time"
)

// Cache is the narrow get/set-with-TTL/delete contract the engine needs.
type Cache interface {
	// Get returns the cached value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value with a TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
