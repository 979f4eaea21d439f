package capability

import "fmt"

// Capability is a typed handle on a capability name. C is the context passed
// to initializers and B the operation table accepted candidates return.
//
//	var Platforms = capability.New[vulkan.Context, vulkan.PlatformBackend]("vulkan platform")
//
//	func init() {
//	    Platforms.MustRegister(global.GetRegistry(), capability.Candidate[...]{...})
//	}
type Capability[C any, B Backend] struct {
	name Name
}

// New returns the typed handle for name.
func New[C any, B Backend](name Name) Capability[C, B] {
	return Capability[C, B]{name: name}
}

// Name returns the capability name.
func (c Capability[C, B]) Name() Name {
	return c.name
}

// Register adds cand to r under this capability.
func (c Capability[C, B]) Register(r *Registry, cand Candidate[C, B]) error {
	info := Info{
		Name:        cand.Name,
		Shortcuts:   cand.Shortcuts,
		Description: cand.Description,
		Priority:    cand.Priority,
	}
	return r.register(c.name, info, cand.Init)
}

// MustRegister is like Register but panics on error. Intended for init functions.
func (c Capability[C, B]) MustRegister(r *Registry, cand Candidate[C, B]) {
	if err := c.Register(r, cand); err != nil {
		panic(fmt.Sprintf("capability: register %s for %q: %v", cand.Name, c.name, err))
	}
}

// Candidates returns the registered candidates in probing order.
func (c Capability[C, B]) Candidates(r *Registry) []Info {
	return r.Lookup(c.name)
}
