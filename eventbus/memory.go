package eventbus

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// MemoryBus delivers events within the process.
type MemoryBus struct {
	mu     sync.RWMutex
	closed bool
	topics map[string]map[string]*subscription
	subs   map[string]*subscription
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics: make(map[string]map[string]*subscription),
		subs:   make(map[string]*subscription),
	}
}

// Publish queues ev on every subscription of its topic. It blocks while a
// subscriber queue is full, until ctx ends.
func (m *MemoryBus) Publish(ctx context.Context, ev *Event) error {
	if ev == nil || ev.Topic == "" {
		return ErrEmptyTopic
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*subscription, 0, len(m.topics[ev.Topic]))
	for _, sub := range m.topics[ev.Topic] {
		targets = append(targets, sub)
	}
	m.mu.RUnlock()

	var errs []error
	for _, sub := range targets {
		if err := sub.deliver(ctx, ev); err != nil {
			if errors.Is(err, errSubscriptionClosed) {
				continue
			}
			log.Error().Err(err).Str("subscription_id", sub.ID).Str("topic", ev.Topic).Msg("failed to deliver event")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers h for topic and returns the subscription id.
func (m *MemoryBus) Subscribe(ctx context.Context, topic string, h Handler, opts ...Option) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	sub, err := newSubscription(topic, h, opts...)
	if err != nil {
		return "", err
	}
	if _, ok := m.topics[topic]; !ok {
		m.topics[topic] = make(map[string]*subscription)
	}
	m.topics[topic][sub.ID] = sub
	m.subs[sub.ID] = sub

	log.Debug().Str("subscription_id", sub.ID).Str("topic", topic).Msg("new subscription created")
	return sub.ID, nil
}

// Unsubscribe cancels the subscription without waiting for its handler.
func (m *MemoryBus) Unsubscribe(ctx context.Context, id string) error {
	m.mu.Lock()
	sub, ok := m.subs[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.subs, id)
	if topicSubs, ok := m.topics[sub.Topic]; ok {
		delete(topicSubs, id)
		if len(topicSubs) == 0 {
			delete(m.topics, sub.Topic)
		}
	}
	m.mu.Unlock()

	sub.cancel()
	return nil
}

// Close drains every subscription and rejects later calls with ErrClosed.
func (m *MemoryBus) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := make([]*subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.topics = make(map[string]map[string]*subscription)
	m.subs = make(map[string]*subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			log.Error().Err(err).Str("subscription_id", sub.ID).Msg("error closing subscription during bus close")
		}
	}
	log.Info().Int("subscriptions", len(subs)).Msg("memory event bus closed")
	return nil
}

var _ Bus = (*MemoryBus)(nil)
