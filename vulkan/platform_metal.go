package vulkan

import (
	"github.com/toolink/backplane/capability"
	"github.com/toolink/backplane/window"
)

type metalPlatform struct {
	layer uintptr
}

func initMetal(ctx Context) (PlatformBackend, error) {
	if ctx.Window.Kind() != window.KindNSObject {
		return nil, capability.Declinef("metal platform needs an NSObject, got %s", ctx.Window.Kind())
	}
	layer, err := ctx.Window.NSObject()
	if err != nil {
		return nil, err
	}
	return &metalPlatform{layer: layer}, nil
}

func (p *metalPlatform) Extension() string { return ExtMetalSurface }

func (p *metalPlatform) CreateSurface(inst Instance) (SurfaceHandle, error) {
	return createSurface(inst, MetalSurfaceCreateInfo{Layer: p.layer})
}

func (p *metalPlatform) Close() error { return nil }
