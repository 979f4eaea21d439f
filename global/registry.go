package global

import (
	"sync/atomic"

	"github.com/toolink/backplane/capability"
)

func defaultRegistry() *atomic.Value {
	v := &atomic.Value{}
	v.Store(capability.NewRegistry())
	return v
}

// globalRegistry holds the capability registry built-in candidates register
// into from their init functions.
var globalRegistry = defaultRegistry()

// SetRegistry replaces the global capability registry. Candidates already
// registered in the previous one are not carried over.
func SetRegistry(r *capability.Registry) {
	globalRegistry.Store(r)
}

// GetRegistry returns the global capability registry.
func GetRegistry() *capability.Registry {
	return globalRegistry.Load().(*capability.Registry)
}
