package capability

import (
	"context"
	"sync"
	"time"

	"github.com/workboard/authgate/model"
)

// MemoryCache is an in-process Cache with TTL support. Suitable for tests
// and single-instance deployments; production uses RedisCache so that
// invalidation is visible to every process.
type MemoryCache struct {
	mu       sync.RWMutex
	entries  map[string]memEntry
	versions map[string]int64
}

type memEntry struct {
	set       *model.CapabilitySet
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-memory capability cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:  make(map[string]memEntry),
		versions: make(map[string]int64),
	}
}

func cacheKey(userID, workspaceID string) string {
	return userID + ":" + workspaceID
}

// Get returns the cached set, or nil when absent or expired.
func (c *MemoryCache) Get(_ context.Context, userID, workspaceID string) (*model.CapabilitySet, error) {
	key := cacheKey(userID, workspaceID)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, nil
	}
	return entry.set, nil
}

// Set stores the set with a TTL.
func (c *MemoryCache) Set(_ context.Context, set *model.CapabilitySet, ttl time.Duration) error {
	key := cacheKey(set.UserID, set.WorkspaceID)
	c.mu.Lock()
	c.entries[key] = memEntry{set: set, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Bump increments the key's version counter. Versions never expire.
func (c *MemoryCache) Bump(_ context.Context, userID, workspaceID string) (int64, error) {
	key := cacheKey(userID, workspaceID)
	c.mu.Lock()
	c.versions[key]++
	v := c.versions[key]
	c.mu.Unlock()
	return v, nil
}

// Version returns the key's current version counter.
func (c *MemoryCache) Version(_ context.Context, userID, workspaceID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[cacheKey(userID, workspaceID)], nil
}

// HealthCheck implements the readiness probe. Always healthy.
func (c *MemoryCache) HealthCheck(context.Context) error {
	return nil
}
