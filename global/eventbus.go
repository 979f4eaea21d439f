package global

import (
	"sync/atomic"

	"github.com/toolink/backplane/eventbus"
)

// busHolder keeps the stored type constant across implementations.
type busHolder struct {
	bus eventbus.Bus
}

func defaultBus() *atomic.Value {
	v := &atomic.Value{}
	v.Store(busHolder{bus: eventbus.NewMemoryBus()})
	return v
}

var globalBus = defaultBus()

// SetBus sets the global event bus.
func SetBus(b eventbus.Bus) {
	globalBus.Store(busHolder{bus: b})
}

// GetBus retrieves the current global event bus.
func GetBus() eventbus.Bus {
	return globalBus.Load().(busHolder).bus
}
