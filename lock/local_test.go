package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalExcludesSameKey(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	a := l.Mutex("ext:a")
	if err := a.Lock(ctx); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := l.Mutex("ext:a").TryLock(ctx); !errors.Is(err, ErrLockNotAcquired) {
		t.Errorf("TryLock() on held key error = %v, want ErrLockNotAcquired", err)
	}
	if err := l.Mutex("ext:b").TryLock(ctx); err != nil {
		t.Errorf("TryLock() on other key error = %v", err)
	}
	if err := a.Unlock(ctx); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := l.Mutex("ext:a").TryLock(ctx); err != nil {
		t.Errorf("TryLock() after Unlock error = %v", err)
	}
}

func TestLocalLockHonoursContext(t *testing.T) {
	l := NewLocal()
	if err := l.Mutex("k").Lock(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Mutex("k").Lock(ctx); !errors.Is(err, ErrLockWaitTimeout) {
		t.Errorf("Lock() error = %v, want ErrLockWaitTimeout", err)
	}
}

func TestLocalUnlockWithoutLock(t *testing.T) {
	l := NewLocal()
	if err := l.Mutex("k").Unlock(context.Background()); !errors.Is(err, ErrUnlockFailed) {
		t.Errorf("Unlock() error = %v, want ErrUnlockFailed", err)
	}
}

func TestLocalSerializesCriticalSections(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := l.Mutex("shared")
			if err := m.Lock(ctx); err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			if err := m.Unlock(ctx); err != nil {
				t.Errorf("Unlock() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestRedisOptions(t *testing.T) {
	r := NewRedis(nil, WithTTL(-1), WithRetryDelay(0), WithMaxRetries(-3), WithKeyPrefix("p:"))
	if r.ttl != defaultTTL || r.retryDelay != defaultRetryDelay || r.maxRetries != defaultMaxRetries {
		t.Errorf("options = %v/%v/%d, want defaults", r.ttl, r.retryDelay, r.maxRetries)
	}
	if got := r.Mutex("x").Key(); got != "p:x" {
		t.Errorf("Key() = %q, want %q", got, "p:x")
	}
}
