package lock

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Local is an in-process Locker. Mutexes for the same key exclude each
// other; different keys never block one another.
type Local struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{keys: make(map[string]chan struct{})}
}

// Mutex returns a mutex for key.
func (l *Local) Mutex(key string) Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.keys[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.keys[key] = ch
	}
	return &localMutex{key: key, slot: ch}
}

type localMutex struct {
	key  string
	slot chan struct{}
	held bool
}

func (m *localMutex) Lock(ctx context.Context) error {
	select {
	case m.slot <- struct{}{}:
		m.held = true
		return nil
	default:
	}

	log.Trace().Str("key", m.key).Msg("waiting for local lock")
	select {
	case m.slot <- struct{}{}:
		m.held = true
		return nil
	case <-ctx.Done():
		log.Warn().Str("key", m.key).Err(ctx.Err()).Msg("context ended while waiting for lock")
		return ErrLockWaitTimeout
	}
}

func (m *localMutex) TryLock(ctx context.Context) error {
	select {
	case m.slot <- struct{}{}:
		m.held = true
		return nil
	default:
		return ErrLockNotAcquired
	}
}

func (m *localMutex) Unlock(ctx context.Context) error {
	if !m.held {
		log.Warn().Str("key", m.key).Msg("unlock attempted without holding the lock")
		return ErrUnlockFailed
	}
	m.held = false
	<-m.slot
	return nil
}

func (m *localMutex) Key() string { return m.key }
