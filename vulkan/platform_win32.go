package vulkan

import (
	"github.com/toolink/backplane/capability"
	"github.com/toolink/backplane/window"
)

type win32Platform struct {
	hinstance uintptr
	hwnd      uintptr
}

func initWin32(ctx Context) (PlatformBackend, error) {
	if ctx.Window.Kind() != window.KindHWND {
		return nil, capability.Declinef("win32 platform needs a HWND, got %s", ctx.Window.Kind())
	}
	hwnd, err := ctx.Window.HWND()
	if err != nil {
		return nil, err
	}
	return &win32Platform{hinstance: moduleHandle(), hwnd: hwnd}, nil
}

func (p *win32Platform) Extension() string { return ExtWin32Surface }

func (p *win32Platform) CreateSurface(inst Instance) (SurfaceHandle, error) {
	return createSurface(inst, Win32SurfaceCreateInfo{HInstance: p.hinstance, HWND: p.hwnd})
}

// Close has nothing to release; the window belongs to the caller.
func (p *win32Platform) Close() error { return nil }
