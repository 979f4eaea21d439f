//go:build !windows

package vulkan

// moduleHandle has no meaning outside Windows. Surfaces for HWND descriptors
// can still be created through an Instance that supplies its own module.
func moduleHandle() uintptr { return 0 }
