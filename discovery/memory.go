package discovery

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MemoryRegistry keeps endpoints in process. Endpoints never expire.
type MemoryRegistry struct {
	opts *Options

	mu        sync.RWMutex
	endpoints map[string]map[string]Endpoint
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty in-process registry.
func NewMemoryRegistry(opts ...Option) *MemoryRegistry {
	return &MemoryRegistry{
		opts:      newOptions(opts...),
		endpoints: make(map[string]map[string]Endpoint),
	}
}

func (r *MemoryRegistry) Announce(ctx context.Context, ep *Endpoint) (func(context.Context) error, error) {
	if err := validate(ep); err != nil {
		return nil, err
	}
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	stored := *ep
	stored.Metadata = maps.Clone(ep.Metadata)

	r.mu.Lock()
	svc, ok := r.endpoints[ep.Service]
	if !ok {
		svc = make(map[string]Endpoint)
		r.endpoints[ep.Service] = svc
	}
	svc[ep.ID] = stored
	r.mu.Unlock()

	log.Info().Stringer("endpoint", ep).Msg("endpoint announced")
	return func(ctx context.Context) error { return r.Withdraw(ctx, ep) }, nil
}

func (r *MemoryRegistry) Withdraw(ctx context.Context, ep *Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if svc, ok := r.endpoints[ep.Service]; ok {
		delete(svc, ep.ID)
		if len(svc) == 0 {
			delete(r.endpoints, ep.Service)
		}
	}
	return nil
}

func (r *MemoryRegistry) Discover(ctx context.Context, service string) ([]*Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc := r.endpoints[service]
	eps := make([]*Endpoint, 0, len(svc))
	for _, ep := range svc {
		ep := ep
		ep.Metadata = maps.Clone(ep.Metadata)
		eps = append(eps, &ep)
	}
	sortEndpoints(eps)
	return eps, nil
}

// Watch polls Discover at the configured watch interval.
func (r *MemoryRegistry) Watch(ctx context.Context, service string) (<-chan []*Endpoint, error) {
	return poll(ctx, service, r.opts.WatchInterval, r.Discover), nil
}

func (r *MemoryRegistry) Close() error { return nil }
