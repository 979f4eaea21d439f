// Package eventbus fans out player notifications and lifecycle changes to
// subscribed extensions.
package eventbus

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Topics published by the backplane.
const (
	// TopicInput carries input item changes.
	TopicInput = "input"
	// TopicMeta carries metadata changes of the current item.
	TopicMeta = "meta"
	// TopicPlaying carries playback state changes.
	TopicPlaying = "playing"
	// TopicLifecycle carries extension state transitions.
	TopicLifecycle = "lifecycle"
)

var (
	ErrClosed     = errors.New("eventbus: bus is closed")
	ErrNilHandler = errors.New("eventbus: nil handler")
	ErrEmptyTopic = errors.New("eventbus: empty topic")

	errSubscriptionClosed = errors.New("eventbus: subscription is closed")
)

// Event is one notification.
type Event struct {
	ID      string            `json:"id"`
	Topic   string            `json:"topic"`
	Source  string            `json:"source,omitempty"`
	Payload map[string]string `json:"payload,omitempty"`
	Time    time.Time         `json:"time"`
}

// NewEvent creates an event with a fresh id and the current time.
func NewEvent(topic, source string, payload map[string]string) *Event {
	return &Event{
		ID:      uuid.NewString(),
		Topic:   topic,
		Source:  source,
		Payload: payload,
		Time:    time.Now(),
	}
}

// Handler consumes events of one subscription.
type Handler func(ctx context.Context, ev *Event)

// Bus is a publish/subscribe system keyed by topic.
type Bus interface {
	// Publish hands ev to every subscriber of its topic, waiting for queue
	// space or ctx.
	Publish(ctx context.Context, ev *Event) error
	// Subscribe registers h for topic and returns the subscription id.
	Subscribe(ctx context.Context, topic string, h Handler, opts ...Option) (string, error)
	// Unsubscribe removes a subscription. Unknown ids are ignored. Events
	// still queued are dropped and a handler in progress is not waited for,
	// so handlers may unsubscribe themselves.
	Unsubscribe(ctx context.Context, id string) error
	// Close removes every subscription after its queued events are handled.
	Close() error
}
