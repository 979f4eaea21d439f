package vulkan

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/toolink/backplane/capability"
	"github.com/toolink/backplane/window"
)

type openOptions struct {
	opener  DisplayOpener
	resolve []capability.ResolveOption
}

// Option configures Open.
type Option func(*openOptions)

// WithDisplayOpener sets how X11 platforms connect to their display.
func WithDisplayOpener(fn DisplayOpener) Option {
	return func(o *openOptions) {
		o.opener = fn
	}
}

// WithPreference probes the named platforms first, e.g. "vk_xcb,any".
func WithPreference(list string) Option {
	return func(o *openOptions) {
		o.resolve = append(o.resolve, capability.WithPreference(list))
	}
}

// WithStrict limits probing to the preferred platforms.
func WithStrict() Option {
	return func(o *openOptions) {
		o.resolve = append(o.resolve, capability.WithStrict())
	}
}

// WithResolveOptions passes resolve options such as those built from the
// configured "vulkan platform" preference.
func WithResolveOptions(opts ...capability.ResolveOption) Option {
	return func(o *openOptions) {
		o.resolve = append(o.resolve, opts...)
	}
}

var defaults atomic.Value // []Option

// SetDefaults installs options applied by every Open before its own.
func SetDefaults(opts ...Option) {
	defaults.Store(append([]Option(nil), opts...))
}

func defaultOptions() []Option {
	opts, _ := defaults.Load().([]Option)
	return opts
}

// Surface ties an accepted platform to the native instance it creates its
// presentation surface on. It is not safe for concurrent use.
type Surface struct {
	platform *capability.Instance[PlatformBackend]
	native   Instance
	handle   SurfaceHandle
	closed   bool
}

// Open resolves the platform for win from reg. The returned Surface has no
// native surface yet; enable Extensions on the instance, then call Create.
func Open(reg *capability.Registry, win window.Descriptor, native Instance, opts ...Option) (*Surface, error) {
	if native == nil {
		return nil, ErrNilInstance
	}
	o := &openOptions{}
	for _, opt := range append(defaultOptions(), opts...) {
		opt(o)
	}

	inst, err := PlatformCapability.Resolve(reg, Context{Window: win, OpenDisplay: o.opener}, o.resolve...)
	if err != nil {
		return nil, fmt.Errorf("resolve vulkan platform for %s window: %w", win.Kind(), err)
	}
	log.Info().Str("platform", inst.Info().Name).Str("extension", inst.Backend().Extension()).Str("window", win.String()).Msg("vulkan platform selected")
	return &Surface{platform: inst, native: native}, nil
}

// Platform returns the name of the accepted platform.
func (s *Surface) Platform() string {
	return s.platform.Info().Name
}

// Extension returns the platform surface extension.
func (s *Surface) Extension() string {
	if s.closed {
		return ""
	}
	return s.platform.Backend().Extension()
}

// Extensions returns every instance extension the surface needs.
func (s *Surface) Extensions() []string {
	if s.closed {
		return nil
	}
	return []string{ExtSurface, s.Extension()}
}

// Create creates the native surface. On failure nothing is left allocated
// and Create may be retried.
func (s *Surface) Create() (SurfaceHandle, error) {
	if s.closed {
		return 0, capability.ErrAlreadyClosed
	}
	if s.handle != 0 {
		return 0, ErrSurfaceExists
	}
	h, err := s.platform.Backend().CreateSurface(s.native)
	if err != nil {
		log.Warn().Str("platform", s.Platform()).Err(err).Msg("surface creation failed")
		return 0, err
	}
	s.handle = h
	return h, nil
}

// Native returns the created surface, or ErrNoSurface.
func (s *Surface) Native() (SurfaceHandle, error) {
	if s.handle == 0 {
		return 0, ErrNoSurface
	}
	return s.handle, nil
}

// Close destroys the surface if one was created and releases the platform.
// Later calls return capability.ErrAlreadyClosed.
func (s *Surface) Close() error {
	if s.closed {
		return capability.ErrAlreadyClosed
	}
	s.closed = true
	if s.handle != 0 {
		s.native.DestroySurface(s.handle)
		s.handle = 0
	}
	return s.platform.Close()
}
