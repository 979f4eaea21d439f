// Package config loads the backplane configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"github.com/toolink/backplane/capability"
)

// Backend types.
const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
	TypeLocal  = "local"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Duration is a time.Duration written as "5s" in YAML.
type Duration time.Duration

// UnmarshalYAML parses a duration string such as "250ms".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes d as a duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Log configures the global zerolog logger.
type Log struct {
	Level  string `yaml:"level"`  // zerolog level name, e.g. "debug"
	Format string `yaml:"format"` // FormatConsole or FormatJSON
}

// Extensions configures discovery and startup activation of extensions.
type Extensions struct {
	SearchPaths []string `yaml:"search_paths"` // directories scanned by the manifest provider
	// Order is the activation order; empty keeps discovery order.
	Order []string `yaml:"order"`
	// Activate lists extensions activated at startup.
	Activate []string `yaml:"activate"`
	// Restore activates the extensions recorded as active by the state store.
	Restore bool `yaml:"restore"`
}

// Redis configures the client shared by every Redis backed component.
type Redis struct {
	Addrs    []string `yaml:"addrs"` // one address for a single node, several for a cluster
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

// Control configures the gRPC control service.
type Control struct {
	// Listen is the gRPC listen address; empty disables the service.
	Listen string `yaml:"listen"`
	// Advertise is the address announced for discovery; empty uses Listen.
	Advertise string `yaml:"advertise"`
}

// Discovery announces the control endpoint in Redis.
type Discovery struct {
	Enabled   bool     `yaml:"enabled"`
	KeyPrefix string   `yaml:"key_prefix"`
	TTL       Duration `yaml:"ttl"` // lifetime of an endpoint without heartbeat
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	// Listen is the HTTP listen address; empty disables the endpoint.
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"` // default "/metrics"
}

// StateStore selects where extension states are recorded.
type StateStore struct {
	Type      string `yaml:"type"` // TypeMemory or TypeRedis
	KeyPrefix string `yaml:"key_prefix"`
}

// EventBus selects how events reach listener extensions.
type EventBus struct {
	Type          string `yaml:"type"` // TypeMemory or TypeRedis
	ChannelPrefix string `yaml:"channel_prefix"`
}

// Locker selects how lifecycle transitions are serialized.
type Locker struct {
	Type       string   `yaml:"type"` // TypeLocal or TypeRedis
	KeyPrefix  string   `yaml:"key_prefix"`
	TTL        Duration `yaml:"ttl"`         // lock expiry, Redis only
	RetryDelay Duration `yaml:"retry_delay"` // wait between acquisition attempts
	MaxRetries int      `yaml:"max_retries"` // 0 retries until the context ends
}

// Config is the complete configuration.
type Config struct {
	Log        Log        `yaml:"log"`
	Extensions Extensions `yaml:"extensions"`
	// Preferences maps capability names to preference lists such as
	// "vk_xcb,any".
	Preferences map[string]string `yaml:"preferences"`
	// Strict disables the implicit "any" after preference lists.
	Strict     bool       `yaml:"strict"`
	Redis      Redis      `yaml:"redis"`
	Control    Control    `yaml:"control"`
	Discovery  Discovery  `yaml:"discovery"`
	Metrics    Metrics    `yaml:"metrics"`
	StateStore StateStore `yaml:"state_store"`
	EventBus   EventBus   `yaml:"event_bus"`
	Locker     Locker     `yaml:"locker"`
}

// Default returns an in-process configuration.
func Default() *Config {
	return &Config{
		Log:         Log{Level: "info", Format: FormatConsole},
		Preferences: map[string]string{},
		Metrics:     Metrics{Path: "/metrics"},
		Discovery:   Discovery{KeyPrefix: "backplane:endpoints", TTL: Duration(30 * time.Second)},
		StateStore:  StateStore{Type: TypeMemory, KeyPrefix: "backplane:"},
		EventBus:    EventBus{Type: TypeMemory, ChannelPrefix: "backplane:events:"},
		Locker: Locker{
			Type:       TypeLocal,
			KeyPrefix:  "backplane:lock:",
			TTL:        Duration(5 * time.Second),
			RetryDelay: Duration(100 * time.Millisecond),
			MaxRetries: 30,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}

// Environment variables understood by ApplyEnv.
const (
	EnvLogLevel          = "BACKPLANE_LOG_LEVEL"
	EnvLogFormat         = "BACKPLANE_LOG_FORMAT"
	EnvExtensionPaths    = "BACKPLANE_EXTENSION_PATHS"
	EnvExtensionProvider = "BACKPLANE_EXTENSION_PROVIDER"
	EnvVulkanPlatform    = "BACKPLANE_VULKAN_PLATFORM"
	EnvRedisAddrs        = "BACKPLANE_REDIS_ADDRS"
	EnvRedisPassword     = "BACKPLANE_REDIS_PASSWORD"
	EnvControlListen     = "BACKPLANE_CONTROL_LISTEN"
	EnvControlAdvertise  = "BACKPLANE_CONTROL_ADVERTISE"
	EnvDiscovery         = "BACKPLANE_DISCOVERY"
	EnvMetricsListen     = "BACKPLANE_METRICS_LISTEN"
	EnvStateStore        = "BACKPLANE_STATE_STORE"
	EnvEventBus          = "BACKPLANE_EVENT_BUS"
	EnvLocker            = "BACKPLANE_LOCKER"
)

// ApplyEnv overrides fields from the environment as seen through lookup,
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	set(EnvLogLevel, &c.Log.Level)
	set(EnvLogFormat, &c.Log.Format)
	set(EnvRedisPassword, &c.Redis.Password)
	set(EnvControlListen, &c.Control.Listen)
	set(EnvControlAdvertise, &c.Control.Advertise)
	set(EnvMetricsListen, &c.Metrics.Listen)
	set(EnvStateStore, &c.StateStore.Type)
	set(EnvEventBus, &c.EventBus.Type)
	set(EnvLocker, &c.Locker.Type)

	if v, ok := lookup(EnvExtensionPaths); ok {
		c.Extensions.SearchPaths = splitList(v, string(os.PathListSeparator))
	}
	if v, ok := lookup(EnvDiscovery); ok {
		c.Discovery.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v, ok := lookup(EnvRedisAddrs); ok {
		c.Redis.Addrs = splitList(v, ",")
	}
	if c.Preferences == nil {
		c.Preferences = map[string]string{}
	}
	if v, ok := lookup(EnvExtensionProvider); ok {
		c.Preferences["extension"] = v
	}
	if v, ok := lookup(EnvVulkanPlatform); ok {
		c.Preferences["vulkan platform"] = v
	}
}

func splitList(s, sep string) []string {
	var out []string
	for _, item := range strings.Split(s, sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ValidateAndPrepare checks the configuration and normalizes its values.
func (c *Config) ValidateAndPrepare() error {
	c.Log.Level = strings.ToLower(c.Log.Level)
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	if c.Log.Format != FormatConsole && c.Log.Format != FormatJSON {
		return fmt.Errorf("invalid log format: %s, must be '%s' or '%s'", c.Log.Format, FormatConsole, FormatJSON)
	}

	if c.StateStore.Type != TypeMemory && c.StateStore.Type != TypeRedis {
		return fmt.Errorf("invalid state_store type: %s, must be '%s' or '%s'", c.StateStore.Type, TypeMemory, TypeRedis)
	}
	if c.EventBus.Type != TypeMemory && c.EventBus.Type != TypeRedis {
		return fmt.Errorf("invalid event_bus type: %s, must be '%s' or '%s'", c.EventBus.Type, TypeMemory, TypeRedis)
	}
	if c.Locker.Type != TypeLocal && c.Locker.Type != TypeRedis {
		return fmt.Errorf("invalid locker type: %s, must be '%s' or '%s'", c.Locker.Type, TypeLocal, TypeRedis)
	}
	if c.NeedsRedis() && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis backends configured but redis.addrs is empty")
	}
	if c.Locker.TTL <= 0 {
		return fmt.Errorf("invalid locker ttl: %s, must be positive", time.Duration(c.Locker.TTL))
	}
	if c.Locker.MaxRetries < 0 {
		return fmt.Errorf("invalid locker max_retries: %d, must not be negative", c.Locker.MaxRetries)
	}

	for name := range c.Preferences {
		if err := capability.Name(name).Validate(); err != nil {
			return fmt.Errorf("invalid preference capability %q: %w", name, err)
		}
	}
	seen := make(map[string]bool, len(c.Extensions.Order))
	for _, name := range c.Extensions.Order {
		if seen[name] {
			return fmt.Errorf("duplicate extension in order: %s", name)
		}
		seen[name] = true
	}
	if c.Discovery.Enabled {
		if c.Control.Listen == "" {
			return fmt.Errorf("discovery enabled but control.listen is empty")
		}
		if c.Discovery.TTL <= 0 {
			return fmt.Errorf("invalid discovery ttl: %s, must be positive", time.Duration(c.Discovery.TTL))
		}
		if c.Control.Advertise == "" {
			c.Control.Advertise = c.Control.Listen
		}
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if len(c.Extensions.SearchPaths) == 0 {
		log.Warn().Msg("no extension search paths configured")
	}
	return nil
}

// NeedsRedis reports whether any backend is configured to use Redis.
func (c *Config) NeedsRedis() bool {
	return c.StateStore.Type == TypeRedis || c.EventBus.Type == TypeRedis || c.Locker.Type == TypeRedis || c.Discovery.Enabled
}

// Preference returns the resolve options configured for capability name.
func (c *Config) Preference(name capability.Name) []capability.ResolveOption {
	list, ok := c.Preferences[string(name)]
	if !ok || strings.TrimSpace(list) == "" {
		return nil
	}
	opts := []capability.ResolveOption{capability.WithPreference(list)}
	if c.Strict {
		opts = append(opts, capability.WithStrict())
	}
	return opts
}
