// Package lock provides per-key mutual exclusion for lifecycle transitions,
// either within the process or across processes through Redis.
package lock

import (
	"context"
	"errors"
)

var (
	// ErrLockNotAcquired is returned when TryLock finds the key held.
	ErrLockNotAcquired = errors.New("lock: lock not acquired")
	// ErrUnlockFailed is returned when the lock is not held by this mutex.
	ErrUnlockFailed = errors.New("lock: failed to unlock")
	// ErrLockWaitTimeout is returned when the context ends while waiting in Lock.
	ErrLockWaitTimeout = errors.New("lock: waiting for lock timed out or context cancelled")
	// ErrLockMaxRetriesExceeded is returned when Lock gives up after its retry budget.
	ErrLockMaxRetriesExceeded = errors.New("lock: maximum lock retries exceeded")
)

// Mutex guards one key. A Mutex value is used for a single Lock/Unlock
// pair; ask the Locker for a new one per critical section.
type Mutex interface {
	// Lock waits until the key is acquired or ctx ends.
	Lock(ctx context.Context) error
	// TryLock acquires the key or fails with ErrLockNotAcquired.
	TryLock(ctx context.Context) error
	// Unlock releases a key acquired by this mutex.
	Unlock(ctx context.Context) error
	Key() string
}

// Locker hands out mutexes by key.
type Locker interface {
	Mutex(key string) Mutex
}
