package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "analytics:"

// RedisCache shares aggregation results across dashboard replicas.
// Expiry is server-side (SET PX); age is reconstructed from the remaining
// TTL, so replicas agree on staleness.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *RedisCache {
	if log == nil {
		log = slog.Default()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	pipe := c.rdb.Pipeline()
	getCmd := pipe.Get(ctx, redisKeyPrefix+key)
	ttlCmd := pipe.PTTL(ctx, redisKeyPrefix+key)
	if _, err := pipe.Exec(ctx); err != nil {
		if err != redis.Nil {
			c.log.Warn("analytics cache get failed", "key", key, "err", err)
		}
		return nil, 0, false
	}

	val, err := getCmd.Bytes()
	if err != nil {
		return nil, 0, false
	}
	remaining := ttlCmd.Val()
	if remaining <= 0 {
		return nil, 0, false
	}
	age := c.ttl - remaining
	if age < 0 {
		age = 0
	}
	return val, age, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, value, c.ttl).Err(); err != nil {
		// Treat as a miss next time; never fail aggregation on cache trouble.
		c.log.Warn("analytics cache set failed", "key", key, "err", err)
	}
}
