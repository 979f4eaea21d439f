package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// subscription owns a queue and the workers draining it into the handler.
type subscription struct {
	ID      string
	Topic   string
	options *SubscriptionOptions
	handler Handler

	mu     sync.RWMutex
	closed bool
	// discard drops queued events instead of draining them after done.
	discard atomic.Bool
	queue   chan *Event
	done    chan struct{}
	wg      sync.WaitGroup
}

func newSubscription(topic string, h Handler, opts ...Option) (*subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if h == nil {
		return nil, ErrNilHandler
	}
	options := DefaultSubscriptionOptions()
	options.Apply(opts...)

	s := &subscription{
		ID:      uuid.NewString(),
		Topic:   topic,
		options: options,
		handler: h,
		queue:   make(chan *Event, options.QueueSize),
		done:    make(chan struct{}),
	}
	s.wg.Add(options.Concurrency)
	for i := 0; i < options.Concurrency; i++ {
		go s.runWorker()
	}
	return s, nil
}

func (s *subscription) runWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			if s.discard.Load() {
				return
			}
			// drain what was queued before Close
			for {
				select {
				case ev := <-s.queue:
					s.invoke(ev)
				default:
					return
				}
			}
		case ev := <-s.queue:
			if s.discard.Load() {
				return
			}
			s.invoke(ev)
		}
	}
}

func (s *subscription) invoke(ev *Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("subscription_id", s.ID).Str("topic", s.Topic).Interface("panic_value", rec).Msg("panic recovered in event handler")
		}
	}()
	s.handler(context.Background(), ev)
}

// deliver queues ev, blocking until there is room, the subscription is
// closed or ctx ends.
func (s *subscription) deliver(ctx context.Context, ev *Event) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return errSubscriptionClosed
	}
	select {
	case s.queue <- ev:
		return nil
	case <-s.done:
		return errSubscriptionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cancel stops the subscription without waiting for its workers. Queued
// events are dropped and a handler in progress may still be running, which
// lets a handler cancel its own subscription.
func (s *subscription) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.discard.Store(true)
	close(s.done)
	log.Debug().Str("subscription_id", s.ID).Str("topic", s.Topic).Msg("subscription cancelled")
}

// Close stops accepting events and waits until queued ones are handled.
// It must not be called from the subscription's own handler.
func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	log.Debug().Str("subscription_id", s.ID).Str("topic", s.Topic).Msg("subscription closed")
	return nil
}
