package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultChannelPrefix = "backplane:events:"

// redisSubscription couples a local subscription with its Redis channel.
type redisSubscription struct {
	*subscription
	pubsub *redis.PubSub
	stop   chan struct{}
	wg     sync.WaitGroup
}

// RedisBus delivers events through Redis Pub/Sub so every process
// subscribed to a topic sees every event.
type RedisBus struct {
	client redis.UniversalClient
	prefix string

	mu     sync.RWMutex
	closed bool
	subs   map[string]*redisSubscription
}

// NewRedisBus creates a bus on client. Channels are named prefix+topic.
func NewRedisBus(client redis.UniversalClient, prefix string) *RedisBus {
	if client == nil {
		panic("eventbus: redis client cannot be nil")
	}
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	return &RedisBus{
		client: client,
		prefix: prefix,
		subs:   make(map[string]*redisSubscription),
	}
}

func (r *RedisBus) channel(topic string) string {
	return r.prefix + topic
}

// Publish sends ev as JSON on the channel of its topic.
func (r *RedisBus) Publish(ctx context.Context, ev *Event) error {
	if ev == nil || ev.Topic == "" {
		return ErrEmptyTopic
	}
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	if err := r.client.Publish(ctx, r.channel(ev.Topic), data).Err(); err != nil {
		log.Error().Err(err).Str("topic", ev.Topic).Msg("failed to publish event to redis")
		return fmt.Errorf("publish event %s: %w", ev.ID, err)
	}
	return nil
}

// Subscribe listens on the channel of topic and returns the subscription id.
func (r *RedisBus) Subscribe(ctx context.Context, topic string, h Handler, opts ...Option) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrClosed
	}

	base, err := newSubscription(topic, h, opts...)
	if err != nil {
		return "", err
	}
	ps := r.client.Subscribe(ctx, r.channel(topic))
	// wait for the confirmation so no event published after Subscribe is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		_ = base.Close()
		return "", fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	rs := &redisSubscription{subscription: base, pubsub: ps, stop: make(chan struct{})}
	r.subs[rs.ID] = rs
	rs.wg.Add(1)
	go rs.listen()

	log.Debug().Str("subscription_id", rs.ID).Str("topic", topic).Str("channel", r.channel(topic)).Msg("new redis subscription created")
	return rs.ID, nil
}

func (rs *redisSubscription) listen() {
	defer rs.wg.Done()
	ch := rs.pubsub.Channel()
	for {
		select {
		case <-rs.stop:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Error().Err(err).Str("subscription_id", rs.ID).Str("channel", msg.Channel).Msg("failed to unmarshal event from redis")
				continue
			}
			if err := rs.deliver(context.Background(), &ev); err != nil && !errors.Is(err, errSubscriptionClosed) {
				log.Error().Err(err).Str("subscription_id", rs.ID).Str("topic", rs.Topic).Msg("failed to deliver event from redis")
			}
		}
	}
}

// close stops the listener. With wait it also drains queued events and
// waits for the handler, otherwise queued events are dropped.
func (rs *redisSubscription) close(wait bool) error {
	close(rs.stop)
	err := rs.pubsub.Close()
	if !wait {
		rs.cancel()
		return err
	}
	rs.wg.Wait()
	return errors.Join(err, rs.subscription.Close())
}

// Unsubscribe stops listening without waiting for the handler.
func (r *RedisBus) Unsubscribe(ctx context.Context, id string) error {
	r.mu.Lock()
	rs, ok := r.subs[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.subs, id)
	r.mu.Unlock()

	if err := rs.close(false); err != nil {
		log.Error().Err(err).Str("subscription_id", id).Msg("error closing redis subscription")
		return err
	}
	log.Debug().Str("subscription_id", id).Str("topic", rs.Topic).Msg("redis subscription removed")
	return nil
}

// Close stops every listener and drains queued events.
func (r *RedisBus) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := make([]*redisSubscription, 0, len(r.subs))
	for _, rs := range r.subs {
		subs = append(subs, rs)
	}
	r.subs = make(map[string]*redisSubscription)
	r.mu.Unlock()

	var errs []error
	for _, rs := range subs {
		if err := rs.close(true); err != nil {
			errs = append(errs, err)
		}
	}
	log.Info().Int("subscriptions", len(subs)).Msg("redis event bus closed")
	return errors.Join(errs...)
}

var _ Bus = (*RedisBus)(nil)
