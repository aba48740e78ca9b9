package numbers

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"dialops/pkg/utils"
)

// RedisLocker implements Locker on a shared Redis instance so bulk
// purchase runs are serialized across dashboard replicas.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	return utils.AcquireOpLock(ctx, l.rdb, key, holder, ttl)
}

func (l *RedisLocker) Release(ctx context.Context, key, holder string) error {
	return utils.ReleaseOpLock(ctx, l.rdb, key, holder)
}
