package discovery

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Registry defaults.
const (
	DefaultKeyPrefix        = "backplane:endpoints"
	DefaultTTL              = 30 * time.Second
	DefaultWatchInterval    = 15 * time.Second
	defaultHeartbeatDivisor = 3
)

// Options configures a registry.
type Options struct {
	// KeyPrefix prefixes every Redis key (default "backplane:endpoints").
	KeyPrefix string
	// TTL is how long an endpoint survives without a heartbeat.
	TTL time.Duration
	// HeartbeatInterval renews the TTL (default TTL/3).
	HeartbeatInterval time.Duration
	// WatchInterval is the polling period of Watch.
	WatchInterval time.Duration
}

// Option configures a registry.
type Option func(*Options)

func newOptions(opts ...Option) *Options {
	o := &Options{
		KeyPrefix:     DefaultKeyPrefix,
		TTL:           DefaultTTL,
		WatchInterval: DefaultWatchInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.HeartbeatInterval <= 0 || o.HeartbeatInterval >= o.TTL {
		if o.HeartbeatInterval >= o.TTL {
			log.Warn().Dur("heartbeat", o.HeartbeatInterval).Dur("ttl", o.TTL).Msg("heartbeat interval was >= ttl, adjusted")
		}
		o.HeartbeatInterval = o.TTL / defaultHeartbeatDivisor
		if o.HeartbeatInterval <= 0 {
			o.HeartbeatInterval = time.Second
		}
	}
	return o
}

// WithKeyPrefix sets the prefix of every Redis key.
func WithKeyPrefix(prefix string) Option {
	return func(o *Options) {
		if prefix != "" {
			o.KeyPrefix = prefix
		}
	}
}

// WithTTL sets how long an endpoint lives without a heartbeat.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) {
		if ttl > 0 {
			o.TTL = ttl
		} else {
			log.Warn().Dur("invalid_ttl", ttl).Msg("ignoring non-positive ttl option")
		}
	}
}

// WithHeartbeatInterval sets the TTL renewal period. Values not below the
// TTL fall back to TTL/3.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(o *Options) {
		if interval > 0 {
			o.HeartbeatInterval = interval
		} else {
			log.Warn().Dur("invalid_heartbeat", interval).Msg("ignoring non-positive heartbeat interval option")
		}
	}
}

// WithWatchInterval sets the polling period of Watch.
func WithWatchInterval(interval time.Duration) Option {
	return func(o *Options) {
		if interval > 0 {
			o.WatchInterval = interval
		} else {
			log.Warn().Dur("invalid_watch_interval", interval).Msg("ignoring non-positive watch interval option")
		}
	}
}
