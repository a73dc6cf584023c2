package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache on a Redis server, letting several client
// processes share one GET cache.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
	policy Policy
}

// NewRedisCache creates a Redis-backed cache. Keys are stored as prefix:key.
func NewRedisCache(rdb redis.UniversalClient, prefix string, policy Policy) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix, policy: policy}
}

func (c *RedisCache) namespaced(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Get implements Cache.Get. Connection errors are reported as misses.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rdb.Get(ctx, c.namespaced(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set implements Cache.Set.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if c.policy.MaxTTL > 0 && ttl > c.policy.MaxTTL {
		ttl = c.policy.MaxTTL
	}
	return c.rdb.Set(ctx, c.namespaced(key), value, ttl).Err()
}

// Delete implements Cache.Delete.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.namespaced(key)).Err()
}

// Clear implements Cache.Clear with SCAN so large keyspaces are not blocked.
func (c *RedisCache) Clear(ctx context.Context, pattern string) (int, error) {
	match := c.namespaced("*" + escapeGlob(pattern) + "*")
	if pattern == "" {
		match = c.namespaced("*")
	}

	removed := 0
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// Ping checks connectivity to the Redis server.
func (c *RedisCache) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return ErrNilCache
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// escapeGlob escapes Redis MATCH metacharacters.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ensure RedisCache implements Cache
var _ Cache = (*RedisCache)(nil)
