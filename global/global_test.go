package global

import (
	"testing"

	"github.com/toolink/backplane/capability"
	"github.com/toolink/backplane/eventbus"
	"github.com/toolink/backplane/extension"
)

func TestDefaults(t *testing.T) {
	if GetRegistry() == nil {
		t.Error("GetRegistry() = nil")
	}
	if GetExtensionManager() == nil {
		t.Error("GetExtensionManager() = nil")
	}
	if GetBus() == nil {
		t.Error("GetBus() = nil")
	}
}

func TestSetters(t *testing.T) {
	oldReg, oldMgr, oldBus := GetRegistry(), GetExtensionManager(), GetBus()
	defer func() {
		SetRegistry(oldReg)
		SetExtensionManager(oldMgr)
		SetBus(oldBus)
	}()

	reg := capability.NewRegistry()
	SetRegistry(reg)
	if GetRegistry() != reg {
		t.Error("GetRegistry() did not return the registry set")
	}

	mgr := extension.NewManager()
	SetExtensionManager(mgr)
	if GetExtensionManager() != mgr {
		t.Error("GetExtensionManager() did not return the manager set")
	}

	// a different Bus implementation must not upset the atomic value
	bus := eventbus.New()
	SetBus(bus)
	if GetBus() != bus {
		t.Error("GetBus() did not return the bus set")
	}
}
