package cache

import (
	"context"
	"sync"
	"time"
)

const maxCleanupInterval = 5 * time.Minute

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache used when no Redis address is
// configured, and in tests. Expired entries are pruned lazily on writes.
type MemoryCache struct {
	mu          sync.RWMutex
	entries     map[string]memoryEntry
	lastCleanup time.Time
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get returns the cached value and whether the key was present and fresh.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !now.Before(entry.expiresAt) {
		return nil, false, nil
	}

	// Copy so callers cannot mutate the cached slice.
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set stores a value with a TTL.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := time.Now()
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	c.entries[key] = memoryEntry{value: stored, expiresAt: now.Add(ttl)}
	c.cleanupExpiredLocked(now)
	c.mu.Unlock()
	return nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) cleanupExpiredLocked(now time.Time) {
	if !c.lastCleanup.IsZero() && now.Sub(c.lastCleanup) < maxCleanupInterval {
		return
	}
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.lastCleanup = now
}
