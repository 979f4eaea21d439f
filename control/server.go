package control

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/toolink/backplane/capability"
	"github.com/toolink/backplane/extension"
)

// Server implements Service on an extension manager and a capability
// registry.
type Server struct {
	manager  *extension.Manager
	registry *capability.Registry
}

var _ Service = (*Server)(nil)

// NewServer serves manager and registry.
func NewServer(manager *extension.Manager, registry *capability.Registry) *Server {
	return &Server{manager: manager, registry: registry}
}

// NewGRPCServer returns a gRPC server with the control interceptors
// installed and the control service registered on it.
func NewGRPCServer(srv Service, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(RecoveryInterceptor(), LoggingInterceptor())}, opts...)
	gs := grpc.NewServer(opts...)
	RegisterService(gs, srv)
	return gs
}

// ListExtensions returns every registered extension with its state.
func (s *Server) ListExtensions(ctx context.Context, _ *Empty) (*ListExtensionsResponse, error) {
	regs := s.manager.Extensions()
	resp := &ListExtensionsResponse{Extensions: make([]ExtensionInfo, 0, len(regs))}
	for _, r := range regs {
		d := r.Descriptor
		resp.Extensions = append(resp.Extensions, ExtensionInfo{
			Name:             d.Name,
			Title:            d.Title,
			Version:          d.Version,
			Author:           d.Author,
			ShortDescription: d.ShortDescription,
			Capabilities:     d.Capabilities,
			State:            r.State.String(),
		})
	}
	return resp, nil
}

// State returns the lifecycle state of the named extension.
func (s *Server) State(ctx context.Context, req *ExtensionRequest) (*StateResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "extension name is required")
	}
	return s.stateOf(req.Name)
}

// Activate activates the named extension and returns its new state.
func (s *Server) Activate(ctx context.Context, req *ExtensionRequest) (*StateResponse, error) {
	return s.run(ctx, req, s.manager.Activate)
}

// Deactivate deactivates the named extension and returns its new state.
func (s *Server) Deactivate(ctx context.Context, req *ExtensionRequest) (*StateResponse, error) {
	return s.run(ctx, req, s.manager.Deactivate)
}

// Unload reports the unloaded state itself since the extension is gone
// from the manager afterwards.
func (s *Server) Unload(ctx context.Context, req *ExtensionRequest) (*StateResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "extension name is required")
	}
	if err := s.manager.Unload(ctx, req.Name); err != nil {
		return nil, toStatus(err)
	}
	return &StateResponse{Name: req.Name, State: extension.StateUnloaded.String()}, nil
}

// Trigger runs the action of an active triggerable extension.
func (s *Server) Trigger(ctx context.Context, req *ExtensionRequest) (*StateResponse, error) {
	return s.run(ctx, req, s.manager.Trigger)
}

// ListCapabilities returns the capabilities with registered candidates.
func (s *Server) ListCapabilities(ctx context.Context, _ *Empty) (*ListCapabilitiesResponse, error) {
	names := s.registry.Capabilities()
	resp := &ListCapabilitiesResponse{Capabilities: make([]string, len(names))}
	for i, n := range names {
		resp.Capabilities[i] = string(n)
	}
	return resp, nil
}

// ListCandidates returns the candidates of a capability in probing order.
func (s *Server) ListCandidates(ctx context.Context, req *ListCandidatesRequest) (*ListCandidatesResponse, error) {
	name := capability.Name(req.Capability)
	if err := name.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	infos := s.registry.Lookup(name)
	resp := &ListCandidatesResponse{Capability: req.Capability, Candidates: make([]CandidateInfo, 0, len(infos))}
	for _, info := range infos {
		resp.Candidates = append(resp.Candidates, CandidateInfo{
			Name:        info.Name,
			Shortcuts:   info.Shortcuts,
			Description: info.Description,
			Priority:    info.Priority,
		})
	}
	return resp, nil
}

func (s *Server) run(ctx context.Context, req *ExtensionRequest, op func(context.Context, string) error) (*StateResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "extension name is required")
	}
	if err := op(ctx, req.Name); err != nil {
		return nil, toStatus(err)
	}
	return s.stateOf(req.Name)
}

func (s *Server) stateOf(name string) (*StateResponse, error) {
	st, err := s.manager.State(name)
	if err != nil {
		return nil, toStatus(err)
	}
	return &StateResponse{Name: name, State: st.String()}, nil
}

// toStatus maps lifecycle errors to gRPC status codes.
func toStatus(err error) error {
	var actErr *extension.ActivationError
	switch {
	case errors.Is(err, extension.ErrExtensionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, extension.ErrIllegalTransition), errors.Is(err, extension.ErrNotTriggerable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &actErr):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, extension.ErrManagerClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		log.Error().Err(err).Msg("unmapped control error")
		return status.Error(codes.Internal, err.Error())
	}
}
