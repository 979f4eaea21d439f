package capability

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry maps capability names to their candidates, ordered by descending
// priority and, for equal priorities, by registration order.
//
// A process normally populates one registry during initialization and only
// reads it afterwards; see the global package for the default instance.
type Registry struct {
	mu      sync.RWMutex
	entries map[Name][]*entry
	seq     uint64
	sealed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Name][]*entry),
	}
}

func (r *Registry) register(capName Name, info Info, init any) error {
	if err := capName.Validate(); err != nil {
		return err
	}
	if info.Name == "" {
		return fmt.Errorf("%w: empty candidate name for %q", ErrInvalidCandidate, capName)
	}
	initVal := reflect.ValueOf(init)
	if !initVal.IsValid() || initVal.IsNil() {
		return fmt.Errorf("%w: candidate %s of %q has no initializer", ErrInvalidCandidate, info.Name, capName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		log.Error().Str("capability", string(capName)).Str("candidate", info.Name).Msg("registration attempted on sealed registry")
		return fmt.Errorf("%w: cannot register %s for %q", ErrSealed, info.Name, capName)
	}

	list := r.entries[capName]
	for _, e := range list {
		if e.initType != initVal.Type() {
			return fmt.Errorf("%w: %q expects %s, candidate %s has %s", ErrTypeMismatch, capName, e.initType, info.Name, initVal.Type())
		}
		if e.info.Matches(info.Name) || slices.ContainsFunc(info.Shortcuts, e.info.Matches) {
			return fmt.Errorf("%w: %s for %q", ErrDuplicateCandidate, info.Name, capName)
		}
	}

	r.seq++
	info.Capability = capName
	info.Shortcuts = slices.Clone(info.Shortcuts)
	info.seq = r.seq

	// first position holding a strictly lower priority keeps ties in registration order
	pos := sort.Search(len(list), func(i int) bool { return list[i].info.Priority < info.Priority })
	list = slices.Insert(list, pos, &entry{info: info, init: init, initType: initVal.Type()})
	r.entries[capName] = list

	log.Debug().Str("capability", string(capName)).Str("candidate", info.Name).Int("priority", info.Priority).Msg("candidate registered")
	return nil
}

// Lookup returns the candidates of capName in probing order. It returns nil
// when nothing is registered, which is not an error.
func (r *Registry) Lookup(capName Name) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.entries[capName]
	if len(list) == 0 {
		return nil
	}
	infos := make([]Info, len(list))
	for i, e := range list {
		infos[i] = e.info
		infos[i].Shortcuts = slices.Clone(e.info.Shortcuts)
	}
	return infos
}

// Capabilities returns the names of all capabilities with at least one
// candidate, sorted.
func (r *Registry) Capabilities() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]Name, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Seal ends the registration phase. Further registrations fail with ErrSealed.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sealed {
		r.sealed = true
		log.Debug().Int("capabilities", len(r.entries)).Msg("capability registry sealed")
	}
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// snapshot copies the ordered entries so probing runs without the lock held.
func (r *Registry) snapshot(capName Name) []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries[capName])
}
