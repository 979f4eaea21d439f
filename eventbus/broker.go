package eventbus

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type busOptions struct {
	redisClient   redis.UniversalClient
	channelPrefix string
}

// BusOption selects and configures the Bus returned by New.
type BusOption func(*busOptions)

// WithRedisClient makes New return a RedisBus on client.
func WithRedisClient(client redis.UniversalClient) BusOption {
	return func(o *busOptions) {
		o.redisClient = client
	}
}

// WithChannelPrefix sets the Redis channel namespace.
func WithChannelPrefix(prefix string) BusOption {
	return func(o *busOptions) {
		o.channelPrefix = prefix
	}
}

// New returns a MemoryBus, or a RedisBus when WithRedisClient is given.
func New(opts ...BusOption) Bus {
	o := &busOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.redisClient != nil {
		log.Info().Msg("initializing event bus with redis backend")
		return NewRedisBus(o.redisClient, o.channelPrefix)
	}
	log.Info().Msg("initializing event bus with memory backend")
	return NewMemoryBus()
}
