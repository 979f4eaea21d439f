package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls a control service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient calls the control service over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to target without transport security. Targets using the
// discovery scheme need its resolver passed in opts.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	return grpc.NewClient(target, opts...)
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, fullMethod(method), req, resp, opts...)
}

// ListExtensions returns the registered extensions in activation order.
func (c *Client) ListExtensions(ctx context.Context, opts ...grpc.CallOption) ([]ExtensionInfo, error) {
	resp := new(ListExtensionsResponse)
	if err := c.invoke(ctx, "ListExtensions", &Empty{}, resp, opts); err != nil {
		return nil, err
	}
	return resp.Extensions, nil
}

// State returns the lifecycle state of the named extension.
func (c *Client) State(ctx context.Context, name string, opts ...grpc.CallOption) (string, error) {
	return c.lifecycle(ctx, "State", name, opts)
}

// Activate activates name and returns its new state.
func (c *Client) Activate(ctx context.Context, name string, opts ...grpc.CallOption) (string, error) {
	return c.lifecycle(ctx, "Activate", name, opts)
}

// Deactivate deactivates name and returns its new state.
func (c *Client) Deactivate(ctx context.Context, name string, opts ...grpc.CallOption) (string, error) {
	return c.lifecycle(ctx, "Deactivate", name, opts)
}

// Unload removes name from the manager.
func (c *Client) Unload(ctx context.Context, name string, opts ...grpc.CallOption) (string, error) {
	return c.lifecycle(ctx, "Unload", name, opts)
}

// Trigger runs the action of name and returns its state.
func (c *Client) Trigger(ctx context.Context, name string, opts ...grpc.CallOption) (string, error) {
	return c.lifecycle(ctx, "Trigger", name, opts)
}

func (c *Client) lifecycle(ctx context.Context, method, name string, opts []grpc.CallOption) (string, error) {
	resp := new(StateResponse)
	if err := c.invoke(ctx, method, &ExtensionRequest{Name: name}, resp, opts); err != nil {
		return "", err
	}
	return resp.State, nil
}

// ListCapabilities returns the capability names of the remote registry.
func (c *Client) ListCapabilities(ctx context.Context, opts ...grpc.CallOption) ([]string, error) {
	resp := new(ListCapabilitiesResponse)
	if err := c.invoke(ctx, "ListCapabilities", &Empty{}, resp, opts); err != nil {
		return nil, err
	}
	return resp.Capabilities, nil
}

// ListCandidates returns the candidates of capability in probing order.
func (c *Client) ListCandidates(ctx context.Context, capability string, opts ...grpc.CallOption) ([]CandidateInfo, error) {
	resp := new(ListCandidatesResponse)
	if err := c.invoke(ctx, "ListCandidates", &ListCandidatesRequest{Capability: capability}, resp, opts); err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}
