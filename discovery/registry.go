// Package discovery announces control service endpoints and resolves them
// for gRPC clients.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ControlService is the service name control endpoints are announced under.
const ControlService = "control"

// ErrInvalidEndpoint is returned for endpoints without service or address.
var ErrInvalidEndpoint = errors.New("discovery: endpoint name and address are required")

// Endpoint is one reachable instance of a service.
type Endpoint struct {
	ID       string            `json:"id"`       // unique per announcement
	Service  string            `json:"service"`  // e.g. ControlService
	Address  string            `json:"address"`  // host:port dialled by clients
	Metadata map[string]string `json:"metadata"` // passed to gRPC as address attributes
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("%s/%s@%s", e.Service, e.ID, e.Address)
}

// Registry announces and discovers endpoints.
type Registry interface {
	// Announce publishes ep until the returned withdraw function or Close is
	// called. An empty ID is filled in.
	Announce(ctx context.Context, ep *Endpoint) (withdraw func(context.Context) error, err error)

	// Withdraw stops announcing ep and removes it.
	Withdraw(ctx context.Context, ep *Endpoint) error

	// Discover returns the endpoints of service sorted by ID.
	Discover(ctx context.Context, service string) ([]*Endpoint, error)

	// Watch emits the endpoints of service initially and on every change
	// until ctx is done.
	Watch(ctx context.Context, service string) (<-chan []*Endpoint, error)

	// Close stops heartbeats. It does not close the underlying client.
	Close() error
}

func validate(ep *Endpoint) error {
	if ep == nil || ep.Service == "" || ep.Address == "" {
		return ErrInvalidEndpoint
	}
	return nil
}

func sortEndpoints(eps []*Endpoint) {
	sort.Slice(eps, func(i, j int) bool { return eps[i].ID < eps[j].ID })
}

// fingerprint identifies a sorted endpoint list for change detection.
func fingerprint(eps []*Endpoint) string {
	if len(eps) == 0 {
		return "empty"
	}
	var sb strings.Builder
	for i, ep := range eps {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(ep.ID)
		sb.WriteByte('@')
		sb.WriteString(ep.Address)
	}
	return sb.String()
}

// poll runs discover every interval and sends changed endpoint lists on the
// returned channel, which is closed when ctx is done.
func poll(ctx context.Context, service string, interval time.Duration, discover func(context.Context, string) ([]*Endpoint, error)) <-chan []*Endpoint {
	ch := make(chan []*Endpoint, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		eps, err := discover(ctx, service)
		if err != nil {
			log.Error().Err(err).Str("service", service).Msg("watcher failed initial discovery")
			eps = []*Endpoint{}
		}
		last := fingerprint(eps)
		select {
		case ch <- eps:
		case <-ctx.Done():
			return
		}

		for {
			select {
			case <-ctx.Done():
				log.Debug().Str("service", service).Msg("watcher stopped")
				return
			case <-ticker.C:
				eps, err := discover(ctx, service)
				if err != nil {
					log.Warn().Err(err).Str("service", service).Msg("watcher failed discovery during poll")
					continue
				}
				fp := fingerprint(eps)
				if fp == last {
					continue
				}
				// a slow consumer only misses intermediate lists
				select {
				case <-ch:
				default:
				}
				ch <- eps
				last = fp
				log.Debug().Str("service", service).Int("count", len(eps)).Msg("watcher detected change")
			}
		}
	}()
	return ch
}
