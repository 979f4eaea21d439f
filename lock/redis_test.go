package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisClient connects to BACKPLANE_TEST_REDIS_ADDR or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("BACKPLANE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BACKPLANE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisMutex(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	l := NewRedis(client,
		WithKeyPrefix("backplane:test:"+uuid.NewString()+":"),
		WithTTL(2*time.Second),
		WithRetryDelay(10*time.Millisecond),
		WithMaxRetries(3),
	)

	a := l.Mutex("extension:lyrics")
	if err := a.Lock(ctx); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	b := l.Mutex("extension:lyrics")
	if err := b.TryLock(ctx); !errors.Is(err, ErrLockNotAcquired) {
		t.Errorf("TryLock() on held lock error = %v, want %v", err, ErrLockNotAcquired)
	}
	if err := b.Lock(ctx); !errors.Is(err, ErrLockMaxRetriesExceeded) {
		t.Errorf("Lock() on held lock error = %v, want %v", err, ErrLockMaxRetriesExceeded)
	}
	if err := b.Unlock(ctx); !errors.Is(err, ErrUnlockFailed) {
		t.Errorf("Unlock() without holding error = %v, want %v", err, ErrUnlockFailed)
	}

	if err := a.Unlock(ctx); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := b.TryLock(ctx); err != nil {
		t.Errorf("TryLock() after release error = %v", err)
	}
	_ = b.Unlock(ctx)
}
