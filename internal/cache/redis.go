package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// RedisCache stores JSON-encoded values in Redis so every server instance
// shares the same report cache.
type RedisCache[T any] struct {
	rdb       redis.UniversalClient
	namespace string
	ttl       time.Duration
}

var _ Cache[int] = (*RedisCache[int])(nil)

// Connect opens a Redis client and pings it. An empty addr returns nil so the
// caller falls back to the in-process cache.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func NewRedisCache[T any](rdb redis.UniversalClient, namespace string, ttl time.Duration) *RedisCache[T] {
	return &RedisCache[T]{rdb: rdb, namespace: namespace, ttl: ttl}
}

func (c *RedisCache[T]) key(k string) string {
	return c.namespace + ":" + k
}

func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "Redis get failed", "key", key, "error", err)
		}
		return zero, false
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		slog.WarnContext(ctx, "Discarding undecodable cache entry", "key", key, "error", err)
		return zero, false
	}
	return out, true
}

func (c *RedisCache[T]) Set(ctx context.Context, key string, data T) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.WarnContext(ctx, "Cache value not encodable", "key", key, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "Redis set failed", "key", key, "error", err)
	}
}

func (c *RedisCache[T]) Delete(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		slog.WarnContext(ctx, "Redis delete failed", "key", key, "error", err)
	}
}

func (c *RedisCache[T]) DeletePrefix(ctx context.Context, prefix string) int {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.key(prefix)+"*", scanBatch).Result()
		if err != nil {
			slog.WarnContext(ctx, "Redis scan failed", "prefix", prefix, "error", err)
			return n
		}
		if len(keys) > 0 {
			deleted, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				slog.WarnContext(ctx, "Redis delete failed", "prefix", prefix, "error", err)
				return n
			}
			n += int(deleted)
		}
		if next == 0 {
			return n
		}
		cursor = next
	}
}
