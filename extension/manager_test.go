package extension

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/toolink/backplane/capability"
	"github.com/toolink/backplane/eventbus"
	"github.com/toolink/backplane/lock"
	"github.com/toolink/backplane/statestore"
)

type fakeExtension struct {
	desc Descriptor

	mu          sync.Mutex
	activates   int
	deactivates int
	unloads     int
	triggers    int
	activateErr error
	events      chan *eventbus.Event
	// log is shared between extensions of one test to observe ordering.
	log *[]string
}

func newFake(name string, caps ...string) *fakeExtension {
	return &fakeExtension{
		desc:   Descriptor{Name: name, Title: name, Version: "1.0", Capabilities: caps},
		events: make(chan *eventbus.Event, 8),
	}
}

func (f *fakeExtension) Descriptor() Descriptor { return f.desc }

func (f *fakeExtension) Activate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activates++
	if f.log != nil {
		*f.log = append(*f.log, "activate:"+f.desc.Name)
	}
	return f.activateErr
}

func (f *fakeExtension) Deactivate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivates++
	if f.log != nil {
		*f.log = append(*f.log, "deactivate:"+f.desc.Name)
	}
	return nil
}

func (f *fakeExtension) Unload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloads++
	return nil
}

func (f *fakeExtension) Trigger(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	return nil
}

func (f *fakeExtension) OnEvent(ctx context.Context, ev *eventbus.Event) {
	f.events <- ev
}

func mustState(t *testing.T, m *Manager, name string, want State) {
	t.Helper()
	got, err := m.State(name)
	if err != nil {
		t.Fatalf("State(%s) error = %v", name, err)
	}
	if got != want {
		t.Errorf("State(%s) = %v, want %v", name, got, want)
	}
}

// A provider that yields exactly one extension.
func TestOpenActivateDeactivateUnload(t *testing.T) {
	ctx := context.Background()
	reg := capability.NewRegistry()
	ext := newFake("lua")
	ProviderCapability.MustRegister(reg, Static("lua", 10, ext))

	m := NewManager()
	if err := m.Open(ctx, reg, ProviderContext{}, capability.WithPreference("lua"), capability.WithStrict()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	mustState(t, m, "lua", StateRegistered)

	if err := m.Activate(ctx, "lua"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	mustState(t, m, "lua", StateActive)

	if err := m.Deactivate(ctx, "lua"); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	mustState(t, m, "lua", StateInactive)

	if err := m.Unload(ctx, "lua"); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	if _, err := m.State("lua"); !errors.Is(err, ErrExtensionNotFound) {
		t.Errorf("State() after Unload error = %v, want ErrExtensionNotFound", err)
	}
	if ext.activates != 1 || ext.deactivates != 1 || ext.unloads != 1 {
		t.Errorf("calls = %d/%d/%d, want 1/1/1", ext.activates, ext.deactivates, ext.unloads)
	}
	if err := m.Close(ctx); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestOpenWithoutProvider(t *testing.T) {
	m := NewManager()
	err := m.Open(context.Background(), capability.NewRegistry(), ProviderContext{})
	if !errors.Is(err, capability.ErrNotFound) {
		t.Errorf("Open() error = %v, want ErrNotFound", err)
	}
}

func TestOpenTwice(t *testing.T) {
	ctx := context.Background()
	reg := capability.NewRegistry()
	ProviderCapability.MustRegister(reg, Static("builtin", 0))

	m := NewManager()
	if err := m.Open(ctx, reg, ProviderContext{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Open(ctx, reg, ProviderContext{}); !errors.Is(err, ErrProviderOpen) {
		t.Errorf("second Open() error = %v, want ErrProviderOpen", err)
	}
}

func TestIllegalTransitions(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	if err := m.Register(ctx, newFake("x")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		setup  func() error
		op     func() error
		from   State
		opName Operation
	}{
		{
			name:   "deactivate registered",
			op:     func() error { return m.Deactivate(ctx, "x") },
			from:   StateRegistered,
			opName: OpDeactivate,
		},
		{
			name:   "activate active",
			setup:  func() error { return m.Activate(ctx, "x") },
			op:     func() error { return m.Activate(ctx, "x") },
			from:   StateActive,
			opName: OpActivate,
		},
		{
			name:   "unload active",
			op:     func() error { return m.Unload(ctx, "x") },
			from:   StateActive,
			opName: OpUnload,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				if err := tt.setup(); err != nil {
					t.Fatalf("setup error = %v", err)
				}
			}
			err := tt.op()
			var ite *IllegalTransitionError
			if !errors.As(err, &ite) || !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("error = %v, want *IllegalTransitionError", err)
			}
			if ite.From != tt.from || ite.Op != tt.opName {
				t.Errorf("error = %+v, want op %s from %s", ite, tt.opName, tt.from)
			}
			mustState(t, m, "x", tt.from)
		})
	}
}

func TestActivateFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	ext := newFake("broken")
	cause := errors.New("script error")
	ext.activateErr = cause
	if err := m.Register(ctx, ext); err != nil {
		t.Fatal(err)
	}

	err := m.Activate(ctx, "broken")
	var ae *ActivationError
	if !errors.As(err, &ae) || !errors.Is(err, cause) {
		t.Fatalf("Activate() error = %v, want *ActivationError wrapping cause", err)
	}
	mustState(t, m, "broken", StateRegistered)
	if ext.deactivates != 1 {
		t.Errorf("Deactivate calls = %d, want 1", ext.deactivates)
	}

	// the extension can be retried once fixed
	ext.activateErr = nil
	if err := m.Activate(ctx, "broken"); err != nil {
		t.Errorf("retry Activate() error = %v", err)
	}
}

func TestReactivateFromInactive(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	if err := m.Register(ctx, newFake("x")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := m.Activate(ctx, "x"); err != nil {
			t.Fatalf("Activate() #%d error = %v", i, err)
		}
		if err := m.Deactivate(ctx, "x"); err != nil {
			t.Fatalf("Deactivate() #%d error = %v", i, err)
		}
	}
	mustState(t, m, "x", StateInactive)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	if err := m.Register(ctx, newFake("")); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("empty name error = %v, want ErrInvalidDescriptor", err)
	}
	if err := m.Register(ctx, newFake("x", "teleport")); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("unknown capability error = %v, want ErrInvalidDescriptor", err)
	}
	if err := m.Register(ctx, newFake("x")); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(ctx, newFake("x")); !errors.Is(err, ErrExtensionAlreadyRegistered) {
		t.Errorf("duplicate error = %v, want ErrExtensionAlreadyRegistered", err)
	}
}

func TestUnknownExtension(t *testing.T) {
	m := NewManager()
	if err := m.Activate(context.Background(), "ghost"); !errors.Is(err, ErrExtensionNotFound) {
		t.Errorf("Activate() error = %v, want ErrExtensionNotFound", err)
	}
}

func TestTrigger(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	trig := newFake("trig", CapTrigger)
	plain := newFake("plain")
	for _, e := range []*fakeExtension{trig, plain} {
		if err := m.Register(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.Trigger(ctx, "trig"); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Trigger() while registered error = %v, want ErrIllegalTransition", err)
	}
	if err := m.ActivateAll(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Trigger(ctx, "trig"); err != nil {
		t.Errorf("Trigger() error = %v", err)
	}
	if trig.triggers != 1 {
		t.Errorf("triggers = %d, want 1", trig.triggers)
	}
	if err := m.Trigger(ctx, "plain"); !errors.Is(err, ErrNotTriggerable) {
		t.Errorf("Trigger() on plain error = %v, want ErrNotTriggerable", err)
	}
}

func TestActivateAllRollsBackInReverse(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	var calls []string
	a, b, c := newFake("a"), newFake("b"), newFake("c")
	for _, e := range []*fakeExtension{a, b, c} {
		e.log = &calls
		if err := m.Register(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.SetOrder([]string{"c", "a", "b"}); err != nil {
		t.Fatalf("SetOrder() error = %v", err)
	}
	b.activateErr = errors.New("boom")

	if err := m.ActivateAll(ctx); err == nil {
		t.Fatal("ActivateAll() error = nil, want failure")
	}
	want := []string{"activate:c", "activate:a", "activate:b", "deactivate:b", "deactivate:a", "deactivate:c"}
	if !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	mustState(t, m, "b", StateRegistered)
	mustState(t, m, "a", StateInactive)
}

func TestDeactivateAllReverseOrder(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	var calls []string
	for _, name := range []string{"a", "b"} {
		e := newFake(name)
		e.log = &calls
		if err := m.Register(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.ActivateAll(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.DeactivateAll(ctx); err != nil {
		t.Fatal(err)
	}
	want := []string{"activate:a", "activate:b", "deactivate:b", "deactivate:a"}
	if !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestSetOrderValidation(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	for _, name := range []string{"a", "b"} {
		if err := m.Register(ctx, newFake(name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.SetOrder([]string{"a"}); !errors.Is(err, ErrOrderMismatch) {
		t.Errorf("short order error = %v, want ErrOrderMismatch", err)
	}
	if err := m.SetOrder([]string{"a", "z"}); !errors.Is(err, ErrOrderMissing) {
		t.Errorf("unknown name error = %v, want ErrOrderMissing", err)
	}
	if err := m.SetOrder([]string{"a", "a"}); !errors.Is(err, ErrOrderDuplicate) {
		t.Errorf("duplicate error = %v, want ErrOrderDuplicate", err)
	}
}

func TestListenerSubscriptionsFollowActivation(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewMemoryBus()
	defer bus.Close()
	m := NewManager(WithBus(bus))

	ext := newFake("lyrics", CapMetaListener)
	if err := m.Register(ctx, ext); err != nil {
		t.Fatal(err)
	}
	if err := m.Activate(ctx, "lyrics"); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, eventbus.NewEvent(eventbus.TopicMeta, "player", map[string]string{"title": "x"})); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-ext.events:
		if ev.Payload["title"] != "x" {
			t.Errorf("payload = %v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("active listener did not receive meta event")
	}

	if err := m.Deactivate(ctx, "lyrics"); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, eventbus.NewEvent(eventbus.TopicMeta, "player", nil)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ext.events:
		t.Error("inactive listener received an event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewMemoryBus()
	defer bus.Close()
	got := make(chan *eventbus.Event, 4)
	if _, err := bus.Subscribe(ctx, eventbus.TopicLifecycle, func(ctx context.Context, ev *eventbus.Event) { got <- ev }); err != nil {
		t.Fatal(err)
	}

	m := NewManager(WithBus(bus))
	if err := m.Register(ctx, newFake("x")); err != nil {
		t.Fatal(err)
	}
	if err := m.Activate(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-got:
		if ev.Source != "x" || ev.Payload["from"] != "registered" || ev.Payload["to"] != "active" {
			t.Errorf("lifecycle event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no lifecycle event")
	}
}

func TestStateStoreAndRestore(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()

	first := NewManager(WithStateStore(store))
	for _, name := range []string{"a", "b"} {
		if err := first.Register(ctx, newFake(name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := first.Activate(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	rec, err := store.Load(ctx, "b")
	if err != nil || rec.State != "active" {
		t.Fatalf("stored record = %+v, %v, want active", rec, err)
	}

	// a restarted process registers the same extensions again without
	// touching the stored states
	second := NewManager(WithStateStore(store))
	for _, name := range []string{"a", "b"} {
		if err := second.Register(ctx, newFake(name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := second.RestoreActive(ctx); err != nil {
		t.Fatalf("RestoreActive() error = %v", err)
	}
	mustState(t, second, "a", StateRegistered)
	mustState(t, second, "b", StateActive)
}

func TestUnloadDeletesStoredState(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	m := NewManager(WithStateStore(store))
	if err := m.Register(ctx, newFake("x")); err != nil {
		t.Fatal(err)
	}
	if err := m.Unload(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx, "x"); !errors.Is(err, statestore.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestCloseDeactivatesAndUnloads(t *testing.T) {
	ctx := context.Background()
	reg := capability.NewRegistry()
	a, b := newFake("a"), newFake("b")
	ProviderCapability.MustRegister(reg, Static("builtin", 0, a, b))

	m := NewManager()
	if err := m.Open(ctx, reg, ProviderContext{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Activate(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if a.deactivates != 1 || a.unloads != 1 || b.unloads != 1 {
		t.Errorf("a: %d deactivates %d unloads, b: %d unloads", a.deactivates, a.unloads, b.unloads)
	}
	if err := m.Activate(ctx, "a"); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Activate() after Close error = %v, want ErrManagerClosed", err)
	}
	if err := m.Close(ctx); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("second Close() error = %v, want ErrManagerClosed", err)
	}
}

func TestConcurrentTransitionsOnOneExtension(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	ext := newFake("x")
	if err := m.Register(ctx, ext); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var okCount, illegal int
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Activate(ctx, "x")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				okCount++
			case errors.Is(err, ErrIllegalTransition):
				illegal++
			default:
				t.Errorf("Activate() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if okCount != 1 || illegal != 9 {
		t.Errorf("ok = %d, illegal = %d, want 1 and 9", okCount, illegal)
	}
	if ext.activates != 1 {
		t.Errorf("Activate calls = %d, want 1", ext.activates)
	}
}

// countingProvider records how often the provider is closed.
type countingProvider struct {
	Provider
	closes *atomic.Int32
}

func (p *countingProvider) Close() error {
	p.closes.Add(1)
	return p.Provider.Close()
}

func TestConcurrentOpenKeepsOneProvider(t *testing.T) {
	ctx := context.Background()
	reg := capability.NewRegistry()
	var inits, closes atomic.Int32
	base := Static("builtin", 0, newFake("a"))
	ProviderCapability.MustRegister(reg, capability.Candidate[ProviderContext, Provider]{
		Name: "counting",
		Init: func(pctx ProviderContext) (Provider, error) {
			inits.Add(1)
			p, err := base.Init(pctx)
			if err != nil {
				return nil, err
			}
			return &countingProvider{Provider: p, closes: &closes}, nil
		},
	})

	m := NewManager()
	errs := make(chan error, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			errs <- m.Open(ctx, reg, ProviderContext{})
		}()
	}
	close(start)

	var ok, alreadyOpen int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			ok++
		case errors.Is(err, ErrProviderOpen):
			alreadyOpen++
		default:
			t.Errorf("Open() error = %v", err)
		}
	}
	if ok != 1 || alreadyOpen != 1 {
		t.Errorf("ok = %d, already open = %d, want 1 and 1", ok, alreadyOpen)
	}
	if got := inits.Load(); got != 1 {
		t.Errorf("provider instances = %d, want 1", got)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := closes.Load(); got != inits.Load() {
		t.Errorf("provider closes = %d, want %d", got, inits.Load())
	}
}

// blockingExtension holds Activate until release is closed.
type blockingExtension struct {
	*fakeExtension
	entered chan struct{}
	release chan struct{}
}

func (b *blockingExtension) Activate(ctx context.Context) error {
	close(b.entered)
	<-b.release
	return b.fakeExtension.Activate(ctx)
}

func TestCloseDuringActivateTearsDown(t *testing.T) {
	ctx := context.Background()
	ext := &blockingExtension{
		fakeExtension: newFake("slow"),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	m := NewManager()
	if err := m.Register(ctx, ext); err != nil {
		t.Fatal(err)
	}

	activated := make(chan error, 1)
	go func() { activated <- m.Activate(ctx, "slow") }()
	<-ext.entered

	closed := make(chan error, 1)
	go func() { closed <- m.Close(ctx) }()
	// Close must not finish while the activation holds the extension.
	select {
	case err := <-closed:
		t.Fatalf("Close() returned %v before the activation finished", err)
	case <-time.After(20 * time.Millisecond):
	}
	close(ext.release)

	if err := <-activated; err != nil {
		t.Errorf("Activate() error = %v", err)
	}
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close() did not return")
	}

	ext.mu.Lock()
	activates, deactivates, unloads := ext.activates, ext.deactivates, ext.unloads
	ext.mu.Unlock()
	if activates != 1 || deactivates != 1 || unloads != 1 {
		t.Errorf("calls = %d/%d/%d, want 1/1/1", activates, deactivates, unloads)
	}
	if _, err := m.State("slow"); !errors.Is(err, ErrExtensionNotFound) {
		t.Errorf("State() after Close error = %v, want ErrExtensionNotFound", err)
	}
	if err := m.Activate(ctx, "slow"); !errors.Is(err, ErrManagerClosed) && !errors.Is(err, ErrExtensionNotFound) {
		t.Errorf("Activate() after Close error = %v, want ErrManagerClosed or ErrExtensionNotFound", err)
	}
	if err := m.Register(ctx, newFake("late")); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Register() after Close error = %v, want ErrManagerClosed", err)
	}
}

// selfDeactivating turns itself off from its own event handler.
type selfDeactivating struct {
	*fakeExtension
	m    *Manager
	done chan error
}

func (s *selfDeactivating) OnEvent(ctx context.Context, ev *eventbus.Event) {
	s.done <- s.m.Deactivate(ctx, s.desc.Name)
}

func TestListenerDeactivatesItself(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewMemoryBus()
	defer bus.Close()
	m := NewManager(WithBus(bus))

	ext := &selfDeactivating{fakeExtension: newFake("sleep-timer", CapPlayingListener), m: m, done: make(chan error, 1)}
	if err := m.Register(ctx, ext); err != nil {
		t.Fatal(err)
	}
	if err := m.Activate(ctx, "sleep-timer"); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, eventbus.NewEvent(eventbus.TopicPlaying, "player", nil)); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-ext.done:
		if err != nil {
			t.Errorf("Deactivate() from OnEvent error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Deactivate() from OnEvent did not return")
	}
	mustState(t, m, "sleep-timer", StateInactive)

	// the manager stays usable after the handler returned
	if err := m.Activate(ctx, "sleep-timer"); err != nil {
		t.Errorf("Activate() after self deactivation error = %v", err)
	}
}

// unlockRecorder wraps a locker and records the context each Unlock gets.
type unlockRecorder struct {
	lock.Locker
	mu   sync.Mutex
	errs []error
}

func (r *unlockRecorder) Mutex(key string) lock.Mutex {
	return &recordingMutex{Mutex: r.Locker.Mutex(key), r: r}
}

type recordingMutex struct {
	lock.Mutex
	r *unlockRecorder
}

func (m *recordingMutex) Unlock(ctx context.Context) error {
	m.r.mu.Lock()
	m.r.errs = append(m.r.errs, ctx.Err())
	m.r.mu.Unlock()
	return m.Mutex.Unlock(ctx)
}

// cancellingExtension cancels the caller's context during Activate.
type cancellingExtension struct {
	*fakeExtension
	cancel context.CancelFunc
}

func (c *cancellingExtension) Activate(ctx context.Context) error {
	c.cancel()
	return c.fakeExtension.Activate(ctx)
}

func TestUnlockSurvivesCancelledContext(t *testing.T) {
	rec := &unlockRecorder{Locker: lock.NewLocal()}
	m := NewManager(WithLocker(rec))
	ctx, cancel := context.WithCancel(context.Background())
	ext := &cancellingExtension{fakeExtension: newFake("x"), cancel: cancel}
	if err := m.Register(context.Background(), ext); err != nil {
		t.Fatal(err)
	}

	if err := m.Activate(ctx, "x"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("caller context was not cancelled")
	}

	rec.mu.Lock()
	errs := append([]error(nil), rec.errs...)
	rec.mu.Unlock()
	if len(errs) != 1 {
		t.Fatalf("Unlock calls = %d, want 1", len(errs))
	}
	if errs[0] != nil {
		t.Errorf("Unlock context error = %v, want nil", errs[0])
	}
	if err := m.Deactivate(context.Background(), "x"); err != nil {
		t.Errorf("Deactivate() after cancelled Activate error = %v", err)
	}
}
