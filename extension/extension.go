// Package extension defines pluggable extensions and the manager driving
// their lifecycle.
//
// Extensions are discovered by a provider resolved through the "extension"
// capability. Each discovered extension starts Registered and moves through
// Activate, Deactivate and Unload under a per-extension lock.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/toolink/backplane/eventbus"
)

// Capabilities an extension can declare in its descriptor.
const (
	CapMenu            = "menu"
	CapTrigger         = "trigger"
	CapInputListener   = "input-listener"
	CapMetaListener    = "meta-listener"
	CapPlayingListener = "playing-listener"
)

// listenerTopics maps listener capabilities to the topics they subscribe to.
var listenerTopics = map[string]string{
	CapInputListener:   eventbus.TopicInput,
	CapMetaListener:    eventbus.TopicMeta,
	CapPlayingListener: eventbus.TopicPlaying,
}

// Descriptor is the static description of an extension.
type Descriptor struct {
	Name             string   `yaml:"name" json:"name"`
	Title            string   `yaml:"title" json:"title,omitempty"`
	Version          string   `yaml:"version" json:"version,omitempty"`
	Author           string   `yaml:"author" json:"author,omitempty"`
	URL              string   `yaml:"url" json:"url,omitempty"`
	ShortDescription string   `yaml:"shortdesc" json:"short_description,omitempty"`
	Description      string   `yaml:"description" json:"description,omitempty"`
	Capabilities     []string `yaml:"capabilities" json:"capabilities,omitempty"`
}

// Has reports whether the descriptor declares capability c.
func (d Descriptor) Has(c string) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Validate checks the descriptor for a name and known capabilities.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return ErrInvalidDescriptor
	}
	for _, c := range d.Capabilities {
		switch c {
		case CapMenu, CapTrigger, CapInputListener, CapMetaListener, CapPlayingListener:
		default:
			return fmt.Errorf("%w: %s declares unknown capability %q", ErrInvalidDescriptor, d.Name, c)
		}
	}
	return nil
}

// Extension is implemented by every extension.
type Extension interface {
	Descriptor() Descriptor

	// Activate starts the extension. On error the manager calls Deactivate
	// so partially acquired resources can be released.
	Activate(ctx context.Context) error

	// Deactivate stops the extension and releases what Activate acquired.
	Deactivate(ctx context.Context) error
}

// Listener is implemented by extensions declaring a listener capability.
type Listener interface {
	OnEvent(ctx context.Context, ev *eventbus.Event)
}

// Triggerable is implemented by extensions declaring CapTrigger.
type Triggerable interface {
	Trigger(ctx context.Context) error
}

// Unloader is implemented by extensions holding resources beyond their
// activation, such as a loaded script.
type Unloader interface {
	Unload(ctx context.Context) error
}

var (
	ErrInvalidDescriptor          = errors.New("invalid extension descriptor")
	ErrExtensionAlreadyRegistered = errors.New("extension name is already registered")
	ErrExtensionNotFound          = errors.New("extension not found")
	ErrOrderMismatch              = errors.New("order list count does not match registered extensions count")
	ErrOrderMissing               = errors.New("extension specified in order but not registered")
	ErrOrderDuplicate             = errors.New("duplicate extension name found in order")
	ErrNotTriggerable             = errors.New("extension cannot be triggered")
	ErrManagerClosed              = errors.New("extension manager is closed")
	ErrProviderOpen               = errors.New("extension provider already opened")
)
