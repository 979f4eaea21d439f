package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultTTL        = 5 * time.Second
	defaultRetryDelay = 100 * time.Millisecond
	// defaultMaxRetries of 0 would mean retrying until the context ends.
	defaultMaxRetries = 30
	defaultKeyPrefix  = "backplane:lock:"
)

// unlockScript deletes KEYS[1] only while it still holds ARGV[1].
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Redis is a Locker backed by SET NX with an expiry. A crashed holder loses
// the lock once the TTL elapses.
type Redis struct {
	client     redis.Cmdable
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
	maxRetries int
}

// Option configures a Redis locker.
type Option func(*Redis)

// WithTTL sets the expiry of acquired locks.
func WithTTL(ttl time.Duration) Option {
	return func(r *Redis) {
		if ttl <= 0 {
			ttl = defaultTTL
		}
		r.ttl = ttl
	}
}

// WithRetryDelay sets the wait between attempts in Lock.
func WithRetryDelay(delay time.Duration) Option {
	return func(r *Redis) {
		if delay <= 0 {
			delay = defaultRetryDelay
		}
		r.retryDelay = delay
	}
}

// WithMaxRetries bounds the attempts in Lock. Zero retries until the context
// ends.
func WithMaxRetries(retries int) Option {
	return func(r *Redis) {
		if retries < 0 {
			retries = defaultMaxRetries
		}
		r.maxRetries = retries
	}
}

// WithKeyPrefix sets the namespace of lock keys.
func WithKeyPrefix(prefix string) Option {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis creates a Redis backed locker.
func NewRedis(client redis.Cmdable, opts ...Option) *Redis {
	r := &Redis{
		client:     client,
		prefix:     defaultKeyPrefix,
		ttl:        defaultTTL,
		retryDelay: defaultRetryDelay,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	log.Debug().Str("prefix", r.prefix).Dur("ttl", r.ttl).Dur("retry_delay", r.retryDelay).Int("max_retries", r.maxRetries).Msg("redis locker created")
	return r
}

// Mutex returns a mutex for key.
func (r *Redis) Mutex(key string) Mutex {
	return &redisMutex{locker: r, key: r.prefix + key}
}

type redisMutex struct {
	locker *Redis
	key    string
	value  string
}

func (m *redisMutex) tryLock(ctx context.Context) (string, error) {
	value := uuid.NewString()
	l := log.With().Str("key", m.key).Str("attempt_value", value).Logger()

	ok, err := m.locker.client.SetNX(ctx, m.key, value, m.locker.ttl).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			l.Warn().Err(err).Msg("context ended during setnx")
			return "", ErrLockWaitTimeout
		}
		l.Error().Err(err).Msg("failed to execute setnx command")
		return "", err
	}
	if !ok {
		l.Trace().Msg("lock already held")
		return "", ErrLockNotAcquired
	}
	return value, nil
}

func (m *redisMutex) TryLock(ctx context.Context) error {
	value, err := m.tryLock(ctx)
	if err != nil {
		return err
	}
	m.value = value
	log.Debug().Str("key", m.key).Str("held_value", value).Msg("lock acquired")
	return nil
}

func (m *redisMutex) Lock(ctx context.Context) error {
	value, err := m.tryLock(ctx)
	if err == nil {
		m.value = value
		log.Debug().Str("key", m.key).Str("held_value", value).Msg("lock acquired immediately")
		return nil
	}
	if !errors.Is(err, ErrLockNotAcquired) {
		return err
	}

	retries := 0
	ticker := time.NewTicker(m.locker.retryDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Warn().Str("key", m.key).Err(ctx.Err()).Int("retries_attempted", retries).Msg("context ended while waiting for lock")
			return ErrLockWaitTimeout

		case <-ticker.C:
			retries++
			value, err := m.tryLock(ctx)
			if err == nil {
				m.value = value
				log.Debug().Str("key", m.key).Str("held_value", value).Int("retries_needed", retries).Msg("lock acquired after waiting")
				return nil
			}
			if !errors.Is(err, ErrLockNotAcquired) {
				log.Error().Str("key", m.key).Err(err).Int("retry_count", retries).Msg("lock retry failed")
				return err
			}
			if m.locker.maxRetries > 0 && retries >= m.locker.maxRetries {
				log.Warn().Str("key", m.key).Int("retries_attempted", retries).Msg("maximum lock retries exceeded")
				return ErrLockMaxRetriesExceeded
			}
		}
	}
}

func (m *redisMutex) Unlock(ctx context.Context) error {
	if m.value == "" {
		log.Warn().Str("key", m.key).Msg("unlock attempted without holding the lock")
		return ErrUnlockFailed
	}
	held := m.value
	m.value = ""

	l := log.With().Str("key", m.key).Str("held_value", held).Logger()
	res, err := m.locker.client.Eval(ctx, unlockScript, []string{m.key}, held).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			l.Warn().Msg("lock key vanished before unlock")
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ctx.Err()
		}
		l.Error().Err(err).Msg("failed to execute unlock script")
		return err
	}
	if n, ok := res.(int64); ok && n == 1 {
		l.Debug().Msg("lock released")
		return nil
	}
	l.Warn().Interface("script_result", res).Msg("unlock failed: lock expired or taken over")
	return ErrUnlockFailed
}

func (m *redisMutex) Key() string { return m.key }
