package manifest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/toolink/backplane/eventbus"
	"github.com/toolink/backplane/extension"
)

// Script functions called by the extension.
const (
	fnActivate   = "activate"
	fnDeactivate = "deactivate"
	fnTrigger    = "trigger"
	fnClose      = "close"
)

// eventFunctions maps event topics to the script function handling them.
var eventFunctions = map[string]string{
	eventbus.TopicInput:   "input_changed",
	eventbus.TopicMeta:    "meta_changed",
	eventbus.TopicPlaying: "playing_changed",
}

// scriptExtension runs one manifest's script. The script is loaded on the
// first activation and kept until Unload.
type scriptExtension struct {
	manifest Manifest
	runtime  extension.Runtime

	mu     sync.Mutex
	script extension.Script
}

func newScriptExtension(m Manifest, rt extension.Runtime) *scriptExtension {
	return &scriptExtension{manifest: m, runtime: rt}
}

func (e *scriptExtension) Descriptor() extension.Descriptor {
	return e.manifest.Descriptor
}

func (e *scriptExtension) Activate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.script == nil {
		s, err := e.runtime.Load(e.manifest.Script)
		if err != nil {
			return fmt.Errorf("load script %s: %w", e.manifest.Script, err)
		}
		e.script = s
	}
	return e.script.Call(ctx, fnActivate, nil)
}

func (e *scriptExtension) Deactivate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.script == nil {
		// activation failed before the script was loaded
		return nil
	}
	return e.script.Call(ctx, fnDeactivate, nil)
}

func (e *scriptExtension) Trigger(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.script == nil {
		return errNotLoaded
	}
	return e.script.Call(ctx, fnTrigger, nil)
}

func (e *scriptExtension) OnEvent(ctx context.Context, ev *eventbus.Event) {
	fn, ok := eventFunctions[ev.Topic]
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.script == nil {
		return
	}
	if err := e.script.Call(ctx, fn, ev.Payload); err != nil {
		log.Warn().Str("extension", e.manifest.Name).Str("function", fn).Err(err).Msg("script event handler failed")
	}
}

func (e *scriptExtension) Unload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.script == nil {
		return nil
	}
	s := e.script
	e.script = nil
	return errors.Join(s.Call(ctx, fnClose, nil), s.Close())
}
