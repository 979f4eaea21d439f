package vulkan

import (
	"github.com/toolink/backplane/capability"
	"github.com/toolink/backplane/window"
)

type waylandPlatform struct {
	display uintptr
	surface uintptr
}

func initWayland(ctx Context) (PlatformBackend, error) {
	if ctx.Window.Kind() != window.KindWayland {
		return nil, capability.Declinef("wayland platform needs a wl_surface, got %s", ctx.Window.Kind())
	}
	surface, err := ctx.Window.WaylandSurface()
	if err != nil {
		return nil, err
	}
	display, err := ctx.Window.WaylandDisplay()
	if err != nil {
		return nil, err
	}
	return &waylandPlatform{display: display, surface: surface}, nil
}

func (p *waylandPlatform) Extension() string { return ExtWaylandSurface }

func (p *waylandPlatform) CreateSurface(inst Instance) (SurfaceHandle, error) {
	return createSurface(inst, WaylandSurfaceCreateInfo{Display: p.display, Surface: p.surface})
}

func (p *waylandPlatform) Close() error { return nil }
