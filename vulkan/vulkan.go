// Package vulkan selects the window-system integration used to create a
// Vulkan presentation surface.
//
// Each supported window system registers a candidate for the "vulkan
// platform" capability. Resolving it with a window descriptor yields a
// PlatformBackend that names the instance extension to enable and creates
// the surface through the native Instance supplied by the caller.
package vulkan

import (
	"errors"
	"fmt"
)

// Instance extension names.
const (
	ExtSurface        = "VK_KHR_surface"
	ExtWin32Surface   = "VK_KHR_win32_surface"
	ExtXcbSurface     = "VK_KHR_xcb_surface"
	ExtXlibSurface    = "VK_KHR_xlib_surface"
	ExtWaylandSurface = "VK_KHR_wayland_surface"
	ExtMetalSurface   = "VK_EXT_metal_surface"
)

// SurfaceHandle is an opaque VkSurfaceKHR. Zero is VK_NULL_HANDLE.
type SurfaceHandle uint64

// Result is a negative VkResult returned by a native call.
type Result int32

const (
	ErrorOutOfHostMemory      Result = -1
	ErrorOutOfDeviceMemory    Result = -2
	ErrorInitializationFailed Result = -3
	ErrorExtensionNotPresent  Result = -7
	ErrorSurfaceLost          Result = -1000000000
	ErrorNativeWindowInUse    Result = -1000000001
)

var resultNames = map[Result]string{
	ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	ErrorExtensionNotPresent:  "VK_ERROR_EXTENSION_NOT_PRESENT",
	ErrorSurfaceLost:          "VK_ERROR_SURFACE_LOST_KHR",
	ErrorNativeWindowInUse:    "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
}

func (r Result) Error() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("VkResult(%d)", int32(r))
}

var (
	ErrSurfaceExists  = errors.New("vulkan: surface already created")
	ErrNoSurface      = errors.New("vulkan: no surface created")
	ErrNilInstance    = errors.New("vulkan: nil native instance")
	ErrSurfaceInvalid = errors.New("vulkan: native call returned a null surface")
)

// SurfaceCreateInfo is the platform specific input of a surface creation.
type SurfaceCreateInfo interface {
	// Extension is the instance extension that provides the create call.
	Extension() string
}

// Win32SurfaceCreateInfo mirrors VkWin32SurfaceCreateInfoKHR.
type Win32SurfaceCreateInfo struct {
	HInstance uintptr
	HWND      uintptr
}

func (Win32SurfaceCreateInfo) Extension() string { return ExtWin32Surface }

// XcbSurfaceCreateInfo mirrors VkXcbSurfaceCreateInfoKHR.
type XcbSurfaceCreateInfo struct {
	Connection uintptr
	Window     uint32
}

func (XcbSurfaceCreateInfo) Extension() string { return ExtXcbSurface }

// XlibSurfaceCreateInfo mirrors VkXlibSurfaceCreateInfoKHR.
type XlibSurfaceCreateInfo struct {
	Display uintptr
	Window  uint32
}

func (XlibSurfaceCreateInfo) Extension() string { return ExtXlibSurface }

// WaylandSurfaceCreateInfo mirrors VkWaylandSurfaceCreateInfoKHR.
type WaylandSurfaceCreateInfo struct {
	Display uintptr
	Surface uintptr
}

func (WaylandSurfaceCreateInfo) Extension() string { return ExtWaylandSurface }

// MetalSurfaceCreateInfo mirrors VkMetalSurfaceCreateInfoEXT.
type MetalSurfaceCreateInfo struct {
	Layer uintptr
}

func (MetalSurfaceCreateInfo) Extension() string { return ExtMetalSurface }

// Instance is the boundary to a VkInstance created with the platform
// extension enabled. Implementations wrap the native loader.
type Instance interface {
	// CreateSurface performs the single vkCreate*SurfaceKHR call for info.
	CreateSurface(info SurfaceCreateInfo) (SurfaceHandle, error)
	// DestroySurface calls vkDestroySurfaceKHR.
	DestroySurface(s SurfaceHandle)
}
