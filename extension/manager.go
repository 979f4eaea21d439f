package extension

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/toolink/backplane/capability"
	"github.com/toolink/backplane/eventbus"
	"github.com/toolink/backplane/lock"
	"github.com/toolink/backplane/metrics"
	"github.com/toolink/backplane/statestore"
)

// registration is one extension under management. Transitions on it are
// serialized by the manager's locker; state is readable without it.
type registration struct {
	desc  Descriptor
	ext   Extension
	state atomic.Int32
	// subs are the event subscriptions of the active extension.
	subs []string
	// listening gates event delivery; cleared before subs are cancelled.
	listening atomic.Bool
}

func (r *registration) State() State {
	return State(r.state.Load())
}

// Registration is a snapshot of a managed extension.
type Registration struct {
	Descriptor Descriptor
	State      State
}

// Manager is the lifecycle controller of extensions.
type Manager struct {
	mu    sync.RWMutex
	regs  map[string]*registration
	order []string // activation order, reversed for teardown
	// closing refuses new activations while Close tears extensions down.
	closing bool
	closed  bool
	// openMu serializes Open and Close.
	openMu sync.Mutex

	bus      eventbus.Bus
	locker   lock.Locker
	store    statestore.Store
	provider *capability.Instance[Provider]
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus subscribes listener extensions to bus and publishes lifecycle
// events on it.
func WithBus(bus eventbus.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithLocker replaces the in-process locker serializing transitions.
func WithLocker(l lock.Locker) Option {
	return func(m *Manager) {
		m.locker = l
	}
}

// WithStateStore records every state change in store.
func WithStateStore(store statestore.Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		regs:   make(map[string]*registration),
		locker: lock.NewLocal(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds ext in state Registered, appended to the activation order.
func (m *Manager) Register(ctx context.Context, ext Extension) error {
	desc := ext.Descriptor()
	if err := desc.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed || m.closing {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if _, exists := m.regs[desc.Name]; exists {
		m.mu.Unlock()
		log.Error().Str("extension", desc.Name).Msg("attempted to register duplicate extension")
		return fmt.Errorf("%w: %s", ErrExtensionAlreadyRegistered, desc.Name)
	}
	reg := &registration{desc: desc, ext: ext}
	reg.state.Store(int32(StateRegistered))
	m.regs[desc.Name] = reg
	m.order = append(m.order, desc.Name)
	m.mu.Unlock()

	// the stored state is left alone so RestoreActive can read the last run's
	metrics.ExtensionStateChanged("", StateRegistered.String())
	log.Info().Str("extension", desc.Name).Str("version", desc.Version).Strs("capabilities", desc.Capabilities).Msg("extension registered")
	return nil
}

func (m *Manager) lookup(name string) (*registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	reg, ok := m.regs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExtensionNotFound, name)
	}
	return reg, nil
}

// withLock runs fn while holding the lock of extension name.
func (m *Manager) withLock(ctx context.Context, name string, fn func() error) error {
	mtx := m.locker.Mutex("extension:" + name)
	if err := mtx.Lock(ctx); err != nil {
		return fmt.Errorf("lock extension %s: %w", name, err)
	}
	defer func() {
		// released even when ctx is already cancelled
		if err := mtx.Unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Str("extension", name).Err(err).Msg("failed to release extension lock")
		}
	}()
	return fn()
}

func (m *Manager) isClosing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closing
}

// transition runs fn for name while holding its lock, after checking that
// op is permitted from the current state.
func (m *Manager) transition(ctx context.Context, name string, op Operation, fn func(reg *registration) error) error {
	return m.withLock(ctx, name, func() error {
		// looked up under the lock so a concurrent Unload is observed
		reg, err := m.lookup(name)
		if err != nil {
			return err
		}
		if (op == OpActivate || op == OpTrigger) && m.isClosing() {
			return ErrManagerClosed
		}
		return m.apply(name, op, reg, fn)
	})
}

// apply runs one checked operation on reg. The caller holds its lock.
func (m *Manager) apply(name string, op Operation, reg *registration, fn func(reg *registration) error) error {
	if from := reg.State(); !permitted(op, from) {
		metrics.RecordTransition(string(op), "illegal")
		log.Error().Str("extension", name).Str("operation", string(op)).Str("state", from.String()).Msg("illegal extension state transition")
		return &IllegalTransitionError{Extension: name, Op: op, From: from}
	}

	start := time.Now()
	if err := fn(reg); err != nil {
		metrics.RecordTransition(string(op), "failed")
		log.Error().Str("extension", name).Str("operation", string(op)).Dur("duration", time.Since(start)).Err(err).Msg("extension operation failed")
		return err
	}
	metrics.RecordTransition(string(op), "ok")
	log.Info().Str("extension", name).Str("operation", string(op)).Str("state", reg.State().String()).Dur("duration", time.Since(start)).Msg("extension operation completed")
	return nil
}

func (m *Manager) setState(ctx context.Context, reg *registration, to State) {
	from := State(reg.state.Swap(int32(to)))
	if to == StateUnloaded {
		metrics.ExtensionStateChanged(from.String(), "")
	} else {
		metrics.ExtensionStateChanged(from.String(), to.String())
	}
	m.persist(ctx, reg.desc.Name, to)

	if m.bus != nil {
		ev := eventbus.NewEvent(eventbus.TopicLifecycle, reg.desc.Name, map[string]string{
			"from": from.String(),
			"to":   to.String(),
		})
		if err := m.bus.Publish(ctx, ev); err != nil {
			log.Warn().Str("extension", reg.desc.Name).Err(err).Msg("failed to publish lifecycle event")
		}
	}
}

func (m *Manager) persist(ctx context.Context, name string, st State) {
	if m.store == nil {
		return
	}
	var err error
	if st == StateUnloaded {
		err = m.store.Delete(ctx, name)
	} else {
		_, err = m.store.Save(ctx, name, st.String())
	}
	if err != nil {
		log.Warn().Str("extension", name).Str("state", st.String()).Err(err).Msg("failed to persist extension state")
	}
}

// Activate starts a Registered or Inactive extension. If the extension
// fails to start its Deactivate is called, the state is left unchanged and
// an *ActivationError is returned.
func (m *Manager) Activate(ctx context.Context, name string) error {
	return m.transition(ctx, name, OpActivate, func(reg *registration) error {
		if err := reg.ext.Activate(ctx); err != nil {
			m.rollbackActivation(ctx, reg)
			return &ActivationError{Extension: name, Err: err}
		}
		if err := m.subscribe(ctx, reg); err != nil {
			m.rollbackActivation(ctx, reg)
			return &ActivationError{Extension: name, Err: err}
		}
		m.setState(ctx, reg, StateActive)
		return nil
	})
}

func (m *Manager) rollbackActivation(ctx context.Context, reg *registration) {
	m.unsubscribe(ctx, reg)
	if err := reg.ext.Deactivate(ctx); err != nil {
		log.Error().Str("extension", reg.desc.Name).Err(err).Msg("rollback deactivate failed")
		return
	}
	log.Warn().Str("extension", reg.desc.Name).Msg("activation rolled back")
}

// subscribe connects a listener extension to the topics of its declared
// listener capabilities.
func (m *Manager) subscribe(ctx context.Context, reg *registration) error {
	if m.bus == nil {
		return nil
	}
	l, ok := reg.ext.(Listener)
	if !ok {
		return nil
	}
	reg.listening.Store(true)
	for _, c := range reg.desc.Capabilities {
		topic, ok := listenerTopics[c]
		if !ok {
			continue
		}
		id, err := m.bus.Subscribe(ctx, topic, func(ctx context.Context, ev *eventbus.Event) {
			if reg.listening.Load() {
				l.OnEvent(ctx, ev)
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		reg.subs = append(reg.subs, id)
	}
	return nil
}

// unsubscribe does not wait for a handler in progress, so an extension may
// deactivate itself from OnEvent.
func (m *Manager) unsubscribe(ctx context.Context, reg *registration) {
	reg.listening.Store(false)
	for _, id := range reg.subs {
		if err := m.bus.Unsubscribe(ctx, id); err != nil {
			log.Warn().Str("extension", reg.desc.Name).Str("subscription_id", id).Err(err).Msg("failed to unsubscribe extension")
		}
	}
	reg.subs = nil
}

// Deactivate stops an Active extension. The extension ends Inactive even if
// its Deactivate reports an error, which is returned.
func (m *Manager) Deactivate(ctx context.Context, name string) error {
	return m.transition(ctx, name, OpDeactivate, func(reg *registration) error {
		return m.deactivate(ctx, reg)
	})
}

func (m *Manager) deactivate(ctx context.Context, reg *registration) error {
	m.unsubscribe(ctx, reg)
	err := reg.ext.Deactivate(ctx)
	m.setState(ctx, reg, StateInactive)
	if err != nil {
		return fmt.Errorf("deactivate extension %s: %w", reg.desc.Name, err)
	}
	return nil
}

// Unload removes a Registered or Inactive extension from the manager.
func (m *Manager) Unload(ctx context.Context, name string) error {
	return m.transition(ctx, name, OpUnload, func(reg *registration) error {
		return m.unload(ctx, reg)
	})
}

func (m *Manager) unload(ctx context.Context, reg *registration) error {
	name := reg.desc.Name
	var err error
	if u, ok := reg.ext.(Unloader); ok {
		err = u.Unload(ctx)
	}

	m.mu.Lock()
	delete(m.regs, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.setState(ctx, reg, StateUnloaded)
	if err != nil {
		return fmt.Errorf("unload extension %s: %w", name, err)
	}
	return nil
}

// Trigger runs a trigger extension. It must be Active.
func (m *Manager) Trigger(ctx context.Context, name string) error {
	return m.transition(ctx, name, OpTrigger, func(reg *registration) error {
		t, ok := reg.ext.(Triggerable)
		if !ok || !reg.desc.Has(CapTrigger) {
			return fmt.Errorf("%w: %s", ErrNotTriggerable, name)
		}
		return t.Trigger(ctx)
	})
}

// State returns the current state of name.
func (m *Manager) State(name string) (State, error) {
	reg, err := m.lookup(name)
	if err != nil {
		return 0, err
	}
	return reg.State(), nil
}

// Get returns the extension registered as name.
func (m *Manager) Get(name string) (Extension, error) {
	reg, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return reg.ext, nil
}

// Extensions lists registrations in activation order.
func (m *Manager) Extensions() []Registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Registration, 0, len(m.order))
	for _, name := range m.order {
		reg := m.regs[name]
		out = append(out, Registration{Descriptor: reg.desc, State: reg.State()})
	}
	return out
}

// Len returns the number of registered extensions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.regs)
}

// SetOrder sets the order used by ActivateAll; DeactivateAll uses the
// reverse. names must list every registered extension exactly once.
func (m *Manager) SetOrder(names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(names) != len(m.regs) {
		log.Error().Int("provided_count", len(names)).Int("registered_count", len(m.regs)).Msg("failed to set order: count mismatch")
		return fmt.Errorf("%w (provided: %d, registered: %d)", ErrOrderMismatch, len(names), len(m.regs))
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := m.regs[name]; !ok {
			return fmt.Errorf("%w: %s", ErrOrderMissing, name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %s", ErrOrderDuplicate, name)
		}
		seen[name] = struct{}{}
	}
	m.order = append([]string(nil), names...)
	log.Info().Strs("order", m.order).Msg("extension order set")
	return nil
}

func (m *Manager) orderSnapshot() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// ActivateAll activates every extension not yet active, in order. On the
// first failure the extensions it activated are deactivated again in
// reverse order and the failure is returned.
func (m *Manager) ActivateAll(ctx context.Context) error {
	var activated []string
	for _, name := range m.orderSnapshot() {
		st, err := m.State(name)
		if err != nil {
			log.Warn().Str("extension", name).Err(err).Msg("extension vanished during activate all")
			continue
		}
		if st == StateActive {
			continue
		}
		if err := m.Activate(ctx, name); err != nil {
			for i := len(activated) - 1; i >= 0; i-- {
				if derr := m.Deactivate(ctx, activated[i]); derr != nil {
					log.Error().Str("extension", activated[i]).Err(derr).Msg("rollback deactivate failed")
				}
			}
			return err
		}
		activated = append(activated, name)
	}
	return nil
}

// DeactivateAll deactivates every active extension in reverse order,
// continuing past failures and returning them joined.
func (m *Manager) DeactivateAll(ctx context.Context) error {
	order := m.orderSnapshot()
	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		if st, err := m.State(order[i]); err != nil || st != StateActive {
			continue
		}
		if err := m.Deactivate(ctx, order[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		log.Warn().Int("error_count", len(errs)).Msg("deactivate all completed with errors")
	}
	return errors.Join(errs...)
}

// RestoreActive activates the registered extensions the state store
// recorded as active.
func (m *Manager) RestoreActive(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	records, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list stored extension states: %w", err)
	}
	active := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.State == StateActive.String() {
			active[rec.Extension] = true
		}
	}

	var errs []error
	for _, name := range m.orderSnapshot() {
		if !active[name] {
			continue
		}
		if st, err := m.State(name); err != nil || st == StateActive {
			continue
		}
		if err := m.Activate(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open resolves an extension provider from reg with pctx and registers the
// extensions it discovers. The provider is kept open until Close.
func (m *Manager) Open(ctx context.Context, reg *capability.Registry, pctx ProviderContext, opts ...capability.ResolveOption) error {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	m.mu.RLock()
	closed, opened := m.closed || m.closing, m.provider != nil
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}
	if opened {
		return ErrProviderOpen
	}

	inst, err := ProviderCapability.Resolve(reg, pctx, opts...)
	if err != nil {
		return fmt.Errorf("resolve extension provider: %w", err)
	}
	exts, err := inst.Backend().Probe(ctx)
	if err != nil {
		_ = inst.Close()
		return fmt.Errorf("probe extensions with %s: %w", inst.Info().Name, err)
	}

	m.mu.Lock()
	m.provider = inst
	m.mu.Unlock()

	var errs []error
	for _, ext := range exts {
		if err := m.Register(ctx, ext); err != nil {
			errs = append(errs, err)
		}
	}
	log.Info().Str("provider", inst.Info().Name).Int("discovered", len(exts)).Int("registered", m.Len()).Msg("extensions discovered")
	return errors.Join(errs...)
}

// Close deactivates and unloads every extension and closes the provider.
// Activations already running finish first and are then torn down; new ones
// fail with ErrManagerClosed. The manager cannot be used afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	m.mu.Lock()
	if m.closed || m.closing {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.closing = true
	m.mu.Unlock()

	var errs []error
	order := m.orderSnapshot()
	for i := len(order) - 1; i >= 0; i-- {
		errs = append(errs, m.teardown(ctx, order[i], OpDeactivate))
	}
	for i := len(order) - 1; i >= 0; i-- {
		errs = append(errs, m.teardown(ctx, order[i], OpUnload))
	}

	m.mu.Lock()
	m.closed = true
	provider := m.provider
	m.provider = nil
	m.mu.Unlock()

	if provider != nil {
		errs = append(errs, provider.Close())
	}
	log.Info().Msg("extension manager closed")
	return errors.Join(errs...)
}

// teardown deactivates name if it is Active, or unloads it, under its lock.
// The state is read under the lock so an activation still in progress is
// observed once it finished.
func (m *Manager) teardown(ctx context.Context, name string, op Operation) error {
	return m.withLock(ctx, name, func() error {
		reg, err := m.lookup(name)
		if errors.Is(err, ErrExtensionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if op == OpDeactivate {
			if reg.State() != StateActive {
				return nil
			}
			return m.apply(name, op, reg, func(reg *registration) error { return m.deactivate(ctx, reg) })
		}
		if reg.State() == StateActive {
			// activated after the deactivation pass reached it
			if err := m.apply(name, OpDeactivate, reg, func(reg *registration) error { return m.deactivate(ctx, reg) }); err != nil {
				log.Warn().Str("extension", name).Err(err).Msg("deactivate before unload failed")
			}
		}
		return m.apply(name, OpUnload, reg, func(reg *registration) error { return m.unload(ctx, reg) })
	})
}
