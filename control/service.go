// Package control exposes the extension lifecycle and the capability
// registry over gRPC.
//
// The service is described by hand and served with a JSON codec, so any gRPC
// client able to send "application/grpc+json" can drive it.
package control

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "backplane.control.v1.Control"

// Service is the control API.
type Service interface {
	ListExtensions(ctx context.Context, req *Empty) (*ListExtensionsResponse, error)
	State(ctx context.Context, req *ExtensionRequest) (*StateResponse, error)
	Activate(ctx context.Context, req *ExtensionRequest) (*StateResponse, error)
	Deactivate(ctx context.Context, req *ExtensionRequest) (*StateResponse, error)
	Unload(ctx context.Context, req *ExtensionRequest) (*StateResponse, error)
	Trigger(ctx context.Context, req *ExtensionRequest) (*StateResponse, error)
	ListCapabilities(ctx context.Context, req *Empty) (*ListCapabilitiesResponse, error)
	ListCandidates(ctx context.Context, req *ListCandidatesRequest) (*ListCandidatesResponse, error)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary builds the method descriptor for one request/response call.
func unary[Req, Resp any](method string, call func(Service, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(Service), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(Service), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Service)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListExtensions", Service.ListExtensions),
		unary("State", Service.State),
		unary("Activate", Service.Activate),
		unary("Deactivate", Service.Deactivate),
		unary("Unload", Service.Unload),
		unary("Trigger", Service.Trigger),
		unary("ListCapabilities", Service.ListCapabilities),
		unary("ListCandidates", Service.ListCandidates),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "control",
}

// RegisterService registers srv on s.
func RegisterService(s grpc.ServiceRegistrar, srv Service) {
	s.RegisterService(&serviceDesc, srv)
}
