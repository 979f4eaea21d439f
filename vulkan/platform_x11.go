package vulkan

import (
	"errors"
	"fmt"

	"github.com/toolink/backplane/capability"
	"github.com/toolink/backplane/window"
)

var errNoDisplayOpener = errors.New("no X11 display opener configured")

// x11Platform holds the display connection opened for one window.
type x11Platform struct {
	ext    string
	conn   Connection
	window uint32
}

func openX11(ctx Context, kind string, requireName bool) (*x11Platform, error) {
	if ctx.Window.Kind() != window.KindXID {
		return nil, capability.Declinef("%s platform needs an X11 window, got %s", kind, ctx.Window.Kind())
	}
	xid, err := ctx.Window.XID()
	if err != nil {
		return nil, err
	}
	name, err := ctx.Window.X11Display()
	if err != nil {
		return nil, err
	}
	if requireName && name == "" {
		return nil, capability.Declinef("%s platform needs an explicit display name", kind)
	}
	if ctx.OpenDisplay == nil {
		return nil, capability.Decline(errNoDisplayOpener)
	}

	conn, err := ctx.OpenDisplay(kind, name)
	if err != nil {
		return nil, fmt.Errorf("open %s display %q: %w", kind, name, err)
	}
	if conn == nil {
		return nil, fmt.Errorf("open %s display %q: no connection", kind, name)
	}
	return &x11Platform{conn: conn, window: xid}, nil
}

func initXcb(ctx Context) (PlatformBackend, error) {
	p, err := openX11(ctx, "xcb", false)
	if err != nil {
		return nil, err
	}
	p.ext = ExtXcbSurface
	return p, nil
}

func initXlib(ctx Context) (PlatformBackend, error) {
	p, err := openX11(ctx, "xlib", true)
	if err != nil {
		return nil, err
	}
	p.ext = ExtXlibSurface
	return p, nil
}

func (p *x11Platform) Extension() string { return p.ext }

func (p *x11Platform) CreateSurface(inst Instance) (SurfaceHandle, error) {
	if p.ext == ExtXlibSurface {
		return createSurface(inst, XlibSurfaceCreateInfo{Display: p.conn.Handle(), Window: p.window})
	}
	return createSurface(inst, XcbSurfaceCreateInfo{Connection: p.conn.Handle(), Window: p.window})
}

func (p *x11Platform) Close() error {
	return p.conn.Close()
}
