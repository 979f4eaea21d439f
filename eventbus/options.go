package eventbus

const (
	defaultConcurrency = 1
	defaultQueueSize   = 64
)

// SubscriptionOptions configure how a subscription runs its handler.
type SubscriptionOptions struct {
	// Concurrency is the number of goroutines invoking the handler.
	Concurrency int
	// QueueSize is the number of events buffered before Publish blocks.
	QueueSize int
}

// Option configures a subscription.
type Option func(*SubscriptionOptions)

// DefaultSubscriptionOptions returns a single worker with a small queue.
func DefaultSubscriptionOptions() *SubscriptionOptions {
	return &SubscriptionOptions{
		Concurrency: defaultConcurrency,
		QueueSize:   defaultQueueSize,
	}
}

// WithConcurrency sets the number of handler goroutines.
func WithConcurrency(n int) Option {
	return func(o *SubscriptionOptions) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithQueueSize sets the delivery buffer of the subscription.
func WithQueueSize(n int) Option {
	return func(o *SubscriptionOptions) {
		if n > 0 {
			o.QueueSize = n
		}
	}
}

// Apply applies opts in order.
func (o *SubscriptionOptions) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}
