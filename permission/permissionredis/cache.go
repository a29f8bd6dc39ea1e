// Package permissionredis implements permission.Cache on top of Redis,
// giving every process in a deployment a shared short-TTL view of resolved
// roles instead of each holding an independent in-process cache.
package permissionredis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumenanalytics/agentd/permission"
)

const defaultTTL = 5 * time.Second

// Cache implements permission.Cache against a Redis client.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// New constructs a Cache. ttl defaults to 5s per spec.md's design notes
// (admin role changes must propagate within a single conversation turn);
// prefix namespaces keys when the Redis instance is shared across services.
func New(rdb *redis.Client, ttl time.Duration, prefix string) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *Cache) key(assetID, identityID string) string {
	return c.prefix + "perm:" + assetID + ":" + identityID
}

// Get implements permission.Cache. Errors (including a Redis outage) are
// treated as a cache miss so the Kernel falls through to Store; this cache
// is an optimization, never a source of truth.
func (c *Cache) Get(ctx context.Context, assetID, identityID string) (permission.Role, bool) {
	val, err := c.rdb.Get(ctx, c.key(assetID, identityID)).Result()
	if err != nil {
		return permission.RoleNone, false
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return permission.RoleNone, false
	}
	return permission.Role(n), true
}

// Set implements permission.Cache.
func (c *Cache) Set(ctx context.Context, assetID, identityID string, role permission.Role) {
	_ = c.rdb.Set(ctx, c.key(assetID, identityID), strconv.Itoa(int(role)), c.ttl).Err()
}

// Invalidate implements permission.Cache.
func (c *Cache) Invalidate(ctx context.Context, assetID, identityID string) {
	_ = c.rdb.Del(ctx, c.key(assetID, identityID)).Err()
}
