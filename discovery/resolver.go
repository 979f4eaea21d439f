package discovery

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/attributes"
	"google.golang.org/grpc/resolver"
)

// Scheme is the target scheme served by the resolver, as in
// "backplane:///control".
const Scheme = "backplane"

var (
	_ resolver.Builder  = (*ResolverBuilder)(nil)
	_ resolver.Resolver = (*endpointResolver)(nil)
)

// Target returns the dial target of service.
func Target(service string) string {
	return Scheme + ":///" + service
}

// ResolverBuilder resolves targets of the backplane scheme from a Registry.
// Pass it to grpc.WithResolvers.
type ResolverBuilder struct {
	registry Registry
}

// NewResolverBuilder resolves "backplane:///<service>" targets through registry.
func NewResolverBuilder(registry Registry) *ResolverBuilder {
	return &ResolverBuilder{registry: registry}
}

func (b *ResolverBuilder) Scheme() string { return Scheme }

// Build starts watching the service named by the target path.
func (b *ResolverBuilder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	if b.registry == nil {
		return nil, errors.New("discovery: resolver builder has no registry")
	}
	service := strings.TrimPrefix(target.URL.Path, "/")
	if service == "" {
		return nil, fmt.Errorf("discovery: target %q names no service, want %s", target.URL.String(), Target("service"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := b.registry.Watch(ctx, service)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("discovery: watch %s: %w", service, err)
	}
	r := &endpointResolver{service: service, cc: cc, cancel: cancel}
	r.wg.Add(1)
	go r.run(ctx, updates)

	log.Debug().Str("service", service).Msg("grpc resolver built")
	return r, nil
}

type endpointResolver struct {
	service string
	cc      resolver.ClientConn
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (r *endpointResolver) run(ctx context.Context, updates <-chan []*Endpoint) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case eps, ok := <-updates:
			if !ok {
				if ctx.Err() == nil {
					r.cc.ReportError(fmt.Errorf("discovery: watch of %s ended", r.service))
				}
				return
			}
			addrs := make([]resolver.Address, 0, len(eps))
			for _, ep := range eps {
				addrs = append(addrs, resolver.Address{
					Addr:       ep.Address,
					Attributes: AttachMetadata(nil, ep.Metadata),
				})
			}
			if err := r.cc.UpdateState(resolver.State{Addresses: addrs}); err != nil {
				log.Warn().Err(err).Str("service", r.service).Msg("failed to update grpc client connection state")
			}
		}
	}
}

// ResolveNow is a no-op; the registry watch polls on its own.
func (r *endpointResolver) ResolveNow(resolver.ResolveNowOptions) {}

func (r *endpointResolver) Close() {
	r.cancel()
	r.wg.Wait()
}

type metadataKey struct{}

// metadata wraps endpoint metadata so address attributes stay comparable.
type metadata map[string]string

func (m metadata) Equal(o any) bool {
	om, ok := o.(metadata)
	return ok && maps.Equal(m, om)
}

// AttachMetadata stores endpoint metadata in resolver address attributes.
func AttachMetadata(attr *attributes.Attributes, md map[string]string) *attributes.Attributes {
	return attr.WithValue(metadataKey{}, metadata(maps.Clone(md)))
}

// MetadataFromAttributes returns the endpoint metadata stored by
// AttachMetadata, or nil.
func MetadataFromAttributes(attr *attributes.Attributes) map[string]string {
	if attr == nil {
		return nil
	}
	md, _ := attr.Value(metadataKey{}).(metadata)
	return md
}
