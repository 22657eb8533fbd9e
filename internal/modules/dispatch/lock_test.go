package dispatch

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func setupLockManager(t *testing.T) *RedisLockManager {
	t.Helper()
	addr := os.Getenv("HAIL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HAIL_TEST_REDIS_ADDR not set; skipping Redis integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		rdb.Del(context.Background(), lockKey(1))
		rdb.Close()
	})
	return NewRedisLockManager(rdb)
}

func TestLock_MutualExclusion(t *testing.T) {
	m := setupLockManager(t)
	ctx := context.Background()

	ok, err := m.TryAcquire(ctx, 1, 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = m.TryAcquire(ctx, 1, 5*time.Second)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second acquire succeeded while lock held")
	}

	if err := m.Release(ctx, 1); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = m.TryAcquire(ctx, 1, 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("re-acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestLock_ReleaseIdempotent(t *testing.T) {
	m := setupLockManager(t)
	ctx := context.Background()

	if err := m.Release(ctx, 1); err != nil {
		t.Fatalf("release of unheld lock: %v", err)
	}
	if err := m.Release(ctx, 1); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestLock_TTLExpiry(t *testing.T) {
	m := setupLockManager(t)
	ctx := context.Background()

	ok, err := m.TryAcquire(ctx, 1, 100*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	time.Sleep(200 * time.Millisecond)
	ok, err = m.TryAcquire(ctx, 1, time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire after TTL expiry: ok=%v err=%v", ok, err)
	}
}
