// Package capability resolves pluggable backends by capability name.
//
// Implementations register candidates against a capability with a priority
// and an initializer. Resolving a capability probes the candidates in
// descending priority order (ties keep registration order), hands each the
// caller's context, and returns the first one that accepts it.
package capability

import (
	"reflect"
	"slices"
)

// Name identifies a role that interchangeable backends can fulfil, for
// example "vulkan platform" or "extension". Names are case-sensitive.
type Name string

// Validate reports whether the name is usable.
func (n Name) Validate() error {
	if n == "" {
		return ErrInvalidName
	}
	return nil
}

// Backend is the part of the operation table every capability shares.
// Close releases all private state of the backend; it is called at most once.
type Backend interface {
	Close() error
}

// Initializer sets up a backend for ctx. It returns an error matching
// ErrInapplicable when ctx is not supported, or any other error when setup
// fails. Either way it must release whatever it allocated before returning.
type Initializer[C any, B Backend] func(ctx C) (B, error)

// Candidate is one implementation registered against a capability.
type Candidate[C any, B Backend] struct {
	// Name is the unique name of the candidate within its capability.
	Name string
	// Shortcuts are alternative names accepted by preference lists.
	Shortcuts   []string
	Description string
	// Priority orders probing, higher first.
	Priority int
	Init     Initializer[C, B]
}

// Info is the static metadata of a registered candidate.
type Info struct {
	Name        string
	Shortcuts   []string
	Description string
	Capability  Name
	Priority    int

	seq uint64
}

// Matches reports whether name is the candidate name or one of its shortcuts.
func (i Info) Matches(name string) bool {
	return i.Name == name || slices.Contains(i.Shortcuts, name)
}

// entry is a registered candidate with its type-erased initializer.
type entry struct {
	info     Info
	init     any
	initType reflect.Type
}
