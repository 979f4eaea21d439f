package extension

import (
	"context"

	"github.com/toolink/backplane/capability"
)

// ProviderName is the capability extension providers register under.
const ProviderName capability.Name = "extension"

// Provider discovers extensions. It is the operation table of the
// "extension" capability.
type Provider interface {
	capability.Backend
	// Probe returns the extensions found by the provider.
	Probe(ctx context.Context) ([]Extension, error)
}

// Script is a loaded extension script.
type Script interface {
	// Call runs function of the script. A missing function is not an error.
	Call(ctx context.Context, function string, args map[string]string) error
	Close() error
}

// Runtime loads extension scripts. It is supplied by the host; the
// backplane does not execute scripts itself.
type Runtime interface {
	Load(path string) (Script, error)
}

// ProviderContext is what providers are probed with.
type ProviderContext struct {
	// SearchPaths are the directories scanned for extensions.
	SearchPaths []string
	// Runtime executes script extensions; providers needing it decline
	// without one.
	Runtime Runtime
}

// ProviderCapability is the typed handle of the "extension" capability.
var ProviderCapability = capability.New[ProviderContext, Provider](ProviderName)

type staticProvider struct {
	exts []Extension
}

func (p *staticProvider) Probe(ctx context.Context) ([]Extension, error) {
	return append([]Extension(nil), p.exts...), nil
}

func (p *staticProvider) Close() error { return nil }

// Static returns a provider candidate that always accepts and yields exts.
// It serves built-in extensions and tests.
func Static(name string, priority int, exts ...Extension) capability.Candidate[ProviderContext, Provider] {
	return capability.Candidate[ProviderContext, Provider]{
		Name:        name,
		Description: "built-in extensions",
		Priority:    priority,
		Init: func(ProviderContext) (Provider, error) {
			return &staticProvider{exts: exts}, nil
		},
	}
}
