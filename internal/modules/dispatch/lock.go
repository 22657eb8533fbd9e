// README: Per-driver Redis locks with TTL expiry for the assignment window.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockManager serializes assignment attempts per driver. The lock is
// advisory: it thins contention before the database transaction, which holds
// the real guarantee. TTL expiry covers crashed holders.
type LockManager interface {
	TryAcquire(ctx context.Context, driverID int64, ttl time.Duration) (bool, error)
	Release(ctx context.Context, driverID int64) error
}

type RedisLockManager struct {
	client *redis.Client
}

func NewRedisLockManager(client *redis.Client) *RedisLockManager {
	return &RedisLockManager{client: client}
}

func (m *RedisLockManager) TryAcquire(ctx context.Context, driverID int64, ttl time.Duration) (bool, error) {
	return m.client.SetNX(ctx, lockKey(driverID), 1, ttl).Result()
}

// Release is idempotent; deleting an absent key is fine.
func (m *RedisLockManager) Release(ctx context.Context, driverID int64) error {
	return m.client.Del(ctx, lockKey(driverID)).Err()
}

func lockKey(driverID int64) string {
	return fmt.Sprintf("lock:driver:%d", driverID)
}
