package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockKeyPrefix = "insight:lock:"

// unlockScript releases the lock only if this instance still holds it.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock implements Lock with a Redis SET NX lease, so index recreation is
// exclusive across engine instances sharing one Redis.
type RedisLock struct {
	client     *redis.Client
	instanceID string
	logger     *zap.Logger
}

// NewRedisLock creates a distributed lock over the given client.
func NewRedisLock(client *redis.Client, logger *zap.Logger) *RedisLock {
	return &RedisLock{
		client:     client,
		instanceID: uuid.New().String(),
		logger:     logger.Named("redis-lock"),
	}
}

var _ Lock = (*RedisLock)(nil)

func (l *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired, err := l.client.SetNX(ctx, lockKeyPrefix+key, l.instanceID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !acquired {
		l.logger.Debug("Lock held elsewhere", zap.String("key", key))
	}
	return acquired, nil
}

func (l *RedisLock) Unlock(ctx context.Context, key string) error {
	released, err := unlockScript.Run(ctx, l.client, []string{lockKeyPrefix + key}, l.instanceID).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if released == 0 {
		l.logger.Warn("Lock was not held by this instance", zap.String("key", key))
	}
	return nil
}
