package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisRegistry stores each endpoint under its own key with a TTL renewed
// by a heartbeat goroutine.
type RedisRegistry struct {
	opts   *Options
	client redis.Cmdable

	mu         sync.Mutex
	heartbeats map[string]*heartbeat
}

// heartbeat is the keep-alive goroutine of one announced endpoint.
type heartbeat struct {
	cancel context.CancelFunc
	done   chan struct{} // closed when the goroutine returned
}

// stop cancels the heartbeat and waits until it can no longer write.
func (h *heartbeat) stop() {
	h.cancel()
	<-h.done
}

var _ Registry = (*RedisRegistry)(nil)

// NewRedisRegistry pings client and returns a registry on it.
func NewRedisRegistry(ctx context.Context, client redis.Cmdable, opts ...Option) (*RedisRegistry, error) {
	if client == nil {
		return nil, errors.New("discovery: redis client is required")
	}
	o := newOptions(opts...)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Error().Err(err).Msg("failed to connect to redis")
		return nil, fmt.Errorf("discovery: connect to redis: %w", err)
	}

	log.Info().Str("prefix", o.KeyPrefix).Dur("ttl", o.TTL).Dur("heartbeat", o.HeartbeatInterval).Msg("redis endpoint registry initialized")
	return &RedisRegistry{
		opts:       o,
		client:     client,
		heartbeats: make(map[string]*heartbeat),
	}, nil
}

func (r *RedisRegistry) key(ep *Endpoint) string {
	return fmt.Sprintf("%s:%s:%s", r.opts.KeyPrefix, ep.Service, ep.ID)
}

// Announce writes ep with the configured TTL and starts its heartbeat.
func (r *RedisRegistry) Announce(ctx context.Context, ep *Endpoint) (func(context.Context) error, error) {
	if err := validate(ep); err != nil {
		return nil, err
	}
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.Metadata == nil {
		ep.Metadata = make(map[string]string)
	}
	if err := r.set(ctx, ep); err != nil {
		return nil, err
	}
	log.Info().Stringer("endpoint", ep).Dur("ttl", r.opts.TTL).Msg("endpoint announced")

	key := r.key(ep)
	hbCtx, cancel := context.WithCancel(context.Background())
	hb := &heartbeat{cancel: cancel, done: make(chan struct{})}
	r.mu.Lock()
	old := r.heartbeats[key]
	r.heartbeats[key] = hb
	r.mu.Unlock()
	if old != nil {
		old.stop()
	}

	go r.keepAlive(hbCtx, ep, hb.done)

	return func(ctx context.Context) error { return r.Withdraw(ctx, ep) }, nil
}

func (r *RedisRegistry) set(ctx context.Context, ep *Endpoint) error {
	value, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("discovery: marshal endpoint: %w", err)
	}
	if err := r.client.Set(ctx, r.key(ep), value, r.opts.TTL).Err(); err != nil {
		return fmt.Errorf("discovery: announce %s: %w", ep, err)
	}
	return nil
}

// keepAlive renews the TTL of ep until ctx is cancelled. An expired key is
// written again unless the endpoint was withdrawn meanwhile.
func (r *RedisRegistry) keepAlive(ctx context.Context, ep *Endpoint, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Stringer("endpoint", ep).Msg("heartbeat stopped")
			return
		case <-ticker.C:
			renewed, err := r.client.Expire(ctx, r.key(ep), r.opts.TTL).Result()
			if err != nil {
				log.Error().Err(err).Stringer("endpoint", ep).Msg("heartbeat failed to renew ttl")
				continue
			}
			if !renewed {
				if ctx.Err() != nil {
					log.Debug().Stringer("endpoint", ep).Msg("heartbeat stopped")
					return
				}
				log.Warn().Stringer("endpoint", ep).Msg("endpoint expired, announcing again")
				if err := r.set(ctx, ep); err != nil {
					log.Error().Err(err).Stringer("endpoint", ep).Msg("failed to announce expired endpoint")
				}
			}
		}
	}
}

// Withdraw stops the heartbeat of ep and deletes its key. The heartbeat has
// returned before the key is deleted so it cannot announce ep again.
func (r *RedisRegistry) Withdraw(ctx context.Context, ep *Endpoint) error {
	key := r.key(ep)
	r.mu.Lock()
	hb := r.heartbeats[key]
	delete(r.heartbeats, key)
	r.mu.Unlock()
	if hb != nil {
		hb.stop()
	}

	if err := r.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("discovery: withdraw %s: %w", ep, err)
	}
	log.Info().Stringer("endpoint", ep).Msg("endpoint withdrawn")
	return nil
}

// Discover finds the endpoints of service with SCAN and MGET.
func (r *RedisRegistry) Discover(ctx context.Context, service string) ([]*Endpoint, error) {
	pattern := fmt.Sprintf("%s:%s:*", r.opts.KeyPrefix, service)
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("discovery: scan %s: %w", service, err)
		}
		keys = append(keys, batch...)
		if cursor = next; cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return []*Endpoint{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("discovery: mget %s: %w", service, err)
	}
	eps := make([]*Endpoint, 0, len(values))
	for i, v := range values {
		// nil when the key expired between SCAN and MGET
		s, ok := v.(string)
		if !ok {
			continue
		}
		var ep Endpoint
		if err := json.Unmarshal([]byte(s), &ep); err != nil {
			log.Warn().Err(err).Str("key", keys[i]).Msg("skipping malformed endpoint")
			continue
		}
		eps = append(eps, &ep)
	}
	sortEndpoints(eps)
	return eps, nil
}

// Watch polls Discover at the configured watch interval.
func (r *RedisRegistry) Watch(ctx context.Context, service string) (<-chan []*Endpoint, error) {
	return poll(ctx, service, r.opts.WatchInterval, r.Discover), nil
}

// Close stops every heartbeat. Keys are left to expire.
func (r *RedisRegistry) Close() error {
	r.mu.Lock()
	hbs := r.heartbeats
	r.heartbeats = make(map[string]*heartbeat)
	r.mu.Unlock()
	for _, hb := range hbs {
		hb.stop()
	}
	return nil
}
