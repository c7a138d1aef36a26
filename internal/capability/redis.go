package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/workboard/authgate/model"
)

// Redis key layout. The version counter lives under a separate key with no
// TTL so monotonicity survives entry expiry.
const (
	entryKeyPrefix   = "authz:caps:"
	versionKeyPrefix = "authz:capsver:"
)

// RedisCache is the Redis-backed shared Cache used in production. INCR gives
// the monotonic version bump; concurrent populations on a miss are benign
// because derivation is pure.
type RedisCache struct {
	client redis.Cmdable
}

// NewRedisCache creates a Redis-backed capability cache.
func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func entryKey(userID, workspaceID string) string {
	return entryKeyPrefix + workspaceID + ":" + userID
}

func versionKey(userID, workspaceID string) string {
	return versionKeyPrefix + workspaceID + ":" + userID
}

// Get returns the cached set, or nil when absent.
func (c *RedisCache) Get(ctx context.Context, userID, workspaceID string) (*model.CapabilitySet, error) {
	raw, err := c.client.Get(ctx, entryKey(userID, workspaceID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get capability set: %w", err)
	}

	var set model.CapabilitySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("unmarshal capability set: %w", err)
	}
	return &set, nil
}

// Set stores the set with a TTL.
func (c *RedisCache) Set(ctx context.Context, set *model.CapabilitySet, ttl time.Duration) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal capability set: %w", err)
	}
	key := entryKey(set.UserID, set.WorkspaceID)
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Bump increments the key's version counter. INCR is atomic, so no reader
// ever observes a version lower than one it previously observed.
func (c *RedisCache) Bump(ctx context.Context, userID, workspaceID string) (int64, error) {
	v, err := c.client.Incr(ctx, versionKey(userID, workspaceID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr version: %w", err)
	}
	return v, nil
}

// HealthCheck verifies the Redis connection is reachable.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Version returns the key's current version counter (0 if never bumped).
func (c *RedisCache) Version(ctx context.Context, userID, workspaceID string) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(userID, workspaceID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version: %w", err)
	}
	return v, nil
}
