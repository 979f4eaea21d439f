package vulkan

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/toolink/backplane/capability"
	"github.com/toolink/backplane/global"
	"github.com/toolink/backplane/window"
)

// Platform is the capability name of window-system integrations.
const Platform capability.Name = "vulkan platform"

// Connection is a display connection opened by a platform, such as an xcb
// connection or an Xlib Display.
type Connection interface {
	// Handle is the native pointer passed to the surface create call.
	Handle() uintptr
	Close() error
}

// DisplayOpener connects to a named display. kind tells which client
// library the platform expects ("xcb" or "xlib").
type DisplayOpener func(kind, name string) (Connection, error)

// Context is what platforms are probed with.
type Context struct {
	Window window.Descriptor
	// OpenDisplay is required by the X11 platforms.
	OpenDisplay DisplayOpener
}

// PlatformBackend is the operation table of an accepted platform.
type PlatformBackend interface {
	capability.Backend
	// Extension is the instance extension the platform needs, for example
	// VK_KHR_win32_surface.
	Extension() string
	// CreateSurface creates a surface for the probed window on inst.
	CreateSurface(inst Instance) (SurfaceHandle, error)
}

// PlatformCapability is the typed handle of the "vulkan platform" capability.
var PlatformCapability = capability.New[Context, PlatformBackend](Platform)

// Platforms returns the built-in platform candidates.
func Platforms() []capability.Candidate[Context, PlatformBackend] {
	return []capability.Candidate[Context, PlatformBackend]{
		{Name: "win32", Shortcuts: []string{"vk_win32"}, Description: "Win32 Vulkan platform", Priority: 50, Init: initWin32},
		{Name: "xcb", Shortcuts: []string{"vk_x11"}, Description: "XCB Vulkan platform", Priority: 50, Init: initXcb},
		{Name: "xlib", Shortcuts: []string{"vk_xlib"}, Description: "Xlib Vulkan platform", Priority: 10, Init: initXlib},
		{Name: "wayland", Shortcuts: []string{"vk_wl"}, Description: "Wayland Vulkan platform", Priority: 50, Init: initWayland},
		{Name: "metal", Shortcuts: []string{"vk_metal"}, Description: "Metal Vulkan platform", Priority: 50, Init: initMetal},
	}
}

// RegisterPlatforms registers the built-in platforms into reg.
func RegisterPlatforms(reg *capability.Registry) error {
	for _, cand := range Platforms() {
		if err := PlatformCapability.Register(reg, cand); err != nil {
			return fmt.Errorf("register vulkan platform %s: %w", cand.Name, err)
		}
	}
	return nil
}

func init() {
	if err := RegisterPlatforms(global.GetRegistry()); err != nil {
		log.Error().Err(err).Msg("failed to register vulkan platforms")
	}
}

// createSurface runs one native create call and never hands back a partial
// surface.
func createSurface(inst Instance, info SurfaceCreateInfo) (SurfaceHandle, error) {
	if inst == nil {
		return 0, ErrNilInstance
	}
	s, err := inst.CreateSurface(info)
	if err != nil {
		if s != 0 {
			inst.DestroySurface(s)
		}
		return 0, fmt.Errorf("create %s surface: %w", info.Extension(), err)
	}
	if s == 0 {
		return 0, fmt.Errorf("create %s surface: %w", info.Extension(), ErrSurfaceInvalid)
	}
	return s, nil
}
