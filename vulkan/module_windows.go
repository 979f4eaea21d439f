//go:build windows

package vulkan

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/windows"
)

// GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT
const moduleHandleUnchangedRefcount = 0x2

// moduleHandle returns the HINSTANCE of the running executable.
func moduleHandle() uintptr {
	var h windows.Handle
	if err := windows.GetModuleHandleEx(moduleHandleUnchangedRefcount, nil, &h); err != nil {
		log.Warn().Err(err).Msg("GetModuleHandleEx failed")
		return 0
	}
	return uintptr(h)
}
