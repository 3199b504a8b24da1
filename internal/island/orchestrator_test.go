package island

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/zenith/hydra/internal/bridge"
	"github.com/zenith/hydra/internal/core/ecs"
	"github.com/zenith/hydra/internal/core/event"
	"github.com/zenith/hydra/internal/core/mailbox"
	"github.com/zenith/hydra/internal/dom"
	"github.com/zenith/hydra/internal/signal"
)

type armedCallback struct {
	kind string
	el   dom.Element
	fn   func()
	live bool
}

type fakeHost struct {
	armed []*armedCallback
}

func (h *fakeHost) add(kind string, el dom.Element, fn func()) func() {
	a := &armedCallback{kind: kind, el: el, fn: fn, live: true}
	h.armed = append(h.armed, a)
	return func() { a.live = false }
}

func (h *fakeHost) RequestFrame(fn func()) func() { return h.add("frame", nil, fn) }
func (h *fakeHost) RequestIdle(fn func()) func()  { return h.add("idle", nil, fn) }
func (h *fakeHost) ObserveVisible(el dom.Element, fn func()) func() {
	return h.add("visible", el, fn)
}
func (h *fakeHost) OnInteraction(el dom.Element, fn func()) func() {
	return h.add("interaction", el, fn)
}

func (h *fakeHost) fire(kind string) int {
	n := 0
	for _, a := range slices.Clone(h.armed) {
		if a.live && a.kind == kind {
			a.live = false
			a.fn()
			n++
		}
	}
	return n
}

func (h *fakeHost) live(kind string) int {
	n := 0
	for _, a := range h.armed {
		if a.live && a.kind == kind {
			n++
		}
	}
	return n
}

type rig struct {
	o    *Orchestrator
	reg  *Registry
	br   *bridge.Bridge
	doc  *dom.Document
	mb   *mailbox.Mailbox
	host *fakeHost
	bus  *event.Bus
}

func newRig(t *testing.T, targets Targets, v Verifier) *rig {
	t.Helper()
	log := zaptest.NewLogger(t)
	doc, err := dom.Parse(`<body><div id="x" data-island="x"><span>static</span></div><div id="y" data-island="y"></div></body>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	br := bridge.New(signal.NewRuntime(), ecs.NewWorld(), log)
	reg := NewRegistry(br, log)
	mb := mailbox.New(64)
	host := &fakeHost{}
	bus := event.NewBus()
	o := NewOrchestrator(reg, br, Options{
		Host:     host,
		Targets:  targets,
		Verifier: v,
		Mailbox:  mb,
		Bus:      bus,
		Logger:   log,
		Timeout:  time.Second,
	})
	t.Cleanup(o.Close)
	return &rig{o: o, reg: reg, br: br, doc: doc, mb: mb, host: host, bus: bus}
}

func (r *rig) island(id string, exec ExecType, strategy Strategy) Descriptor {
	return Descriptor{ID: id, Entry: id + "_main", ExecType: exec, Strategy: strategy, Element: r.doc.ByID(id)}
}

// settle runs the loop side until every activation result is applied.
func (r *rig) settle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.o.Pending() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("activations still pending: %d", r.o.Pending())
		}
		if r.mb.Drain(0) == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

func (r *rig) state(t *testing.T, id string) Entry {
	t.Helper()
	e, ok := r.reg.Get(id)
	if !ok {
		t.Fatalf("island %s not registered", id)
	}
	return e
}

// bindCount binds a "count" signal into the island element from the loop.
var bindCount = TargetFunc(func(ctx context.Context, el dom.Element, d Descriptor, hc Context) error {
	return hc.Do(ctx, func() error {
		s := hc.Scope.Signal("count", 1)
		return bridge.BindText(hc.Scope, d.ID+":count", el, s)
	})
})

func TestImmediateIslandHydratesOnNextFrame(t *testing.T) {
	r := newRig(t, Targets{ExecLocal: bindCount}, nil)
	if err := r.o.Register(r.island("x", ExecLocal, StrategyImmediate)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if e := r.state(t, "x"); e.State != StateLoading {
		t.Fatalf("expected loading, got %s", e.State)
	}
	if r.o.Pending() != 0 {
		t.Fatal("activation must wait for the frame")
	}

	if r.host.fire("frame") != 1 {
		t.Fatal("expected one frame callback")
	}
	r.settle(t)

	if e := r.state(t, "x"); e.State != StateHydrated {
		t.Fatalf("expected hydrated, got %s (%s)", e.State, e.Error)
	}
	scope, ok := r.br.Context("x")
	if !ok {
		t.Fatal("context missing")
	}
	count, _ := scope.Lookup("count")
	_ = count.Set(7)
	if got := r.doc.ByID("x").Text(); got != "7" {
		t.Fatalf("binding not live: %q", got)
	}
}

func TestStrategiesArmTheMatchingHostSignal(t *testing.T) {
	r := newRig(t, Targets{ExecLocal: bindCount}, nil)
	cases := map[Strategy]string{
		StrategyVisible:     "visible",
		StrategyInteraction: "interaction",
		StrategyIdle:        "idle",
	}
	for strategy, kind := range cases {
		if err := r.o.Register(r.island("x", ExecLocal, strategy)); err != nil {
			t.Fatalf("register %s: %v", strategy, err)
		}
		if r.host.live(kind) != 1 {
			t.Fatalf("%s: expected %s armed", strategy, kind)
		}
		r.host.fire(kind)
		r.settle(t)
		if e := r.state(t, "x"); e.State != StateHydrated {
			t.Fatalf("%s: expected hydrated, got %s", strategy, e.State)
		}
	}
}

func TestManualIslandWaitsForTrigger(t *testing.T) {
	r := newRig(t, Targets{ExecLocal: bindCount}, nil)
	_ = r.o.Register(r.island("x", ExecLocal, StrategyManual))
	if len(r.host.armed) != 0 {
		t.Fatal("manual island must not arm the host")
	}
	if err := r.o.Trigger("x"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	r.settle(t)
	if e := r.state(t, "x"); e.State != StateHydrated {
		t.Fatalf("expected hydrated, got %s", e.State)
	}
	if err := r.o.Trigger("nope"); !errors.Is(err, ErrUnknownIsland) {
		t.Fatalf("expected ErrUnknownIsland, got %v", err)
	}
}

func TestFailedActivationRendersFallback(t *testing.T) {
	failing := TargetFunc(func(context.Context, dom.Element, Descriptor, Context) error {
		return errors.New("module not found")
	})
	r := newRig(t, Targets{ExecRemote: failing}, nil)
	_ = r.o.Register(r.island("x", ExecRemote, StrategyManual))
	_ = r.o.Trigger("x")
	r.settle(t)

	e := r.state(t, "x")
	if e.State != StateError {
		t.Fatalf("expected error, got %s", e.State)
	}
	if !strings.Contains(e.Error, "module not found") {
		t.Fatalf("error message lost: %q", e.Error)
	}
	html := r.doc.ByID("x").InnerHTML()
	for _, want := range []string{"island-error", "x_main", "remote", "module not found"} {
		if !strings.Contains(html, want) {
			t.Fatalf("fallback missing %q: %s", want, html)
		}
	}
}

func TestPanickingTargetBecomesError(t *testing.T) {
	r := newRig(t, Targets{ExecLocal: TargetFunc(func(context.Context, dom.Element, Descriptor, Context) error {
		panic("nil island")
	})}, nil)
	_ = r.o.Register(r.island("x", ExecLocal, StrategyManual))
	_ = r.o.Trigger("x")
	r.settle(t)
	if e := r.state(t, "x"); e.State != StateError || !strings.Contains(e.Error, "nil island") {
		t.Fatalf("expected recovered panic, got %+v", e)
	}
}

func TestMissingTargetBecomesError(t *testing.T) {
	r := newRig(t, nil, nil)
	_ = r.o.Register(r.island("x", ExecEdge, StrategyManual))
	_ = r.o.Trigger("x")
	r.settle(t)
	if e := r.state(t, "x"); e.State != StateError || !strings.Contains(e.Error, ErrNoTarget.Error()) {
		t.Fatalf("expected missing target error, got %+v", e)
	}
}

func TestTrustGateBlocksActivation(t *testing.T) {
	var calls atomic.Int32
	target := TargetFunc(func(context.Context, dom.Element, Descriptor, Context) error {
		calls.Add(1)
		return nil
	})
	var got map[string]any
	reject := VerifierFunc(func(_ context.Context, proof string, public map[string]any) (bool, error) {
		got = public
		return false, nil
	})
	r := newRig(t, Targets{ExecLocal: target}, reject)

	d := r.island("x", ExecLocal, StrategyManual)
	d.Trust = TrustVerified
	d.Proof = "proof"
	d.PublicData = map[string]any{"version": "1"}
	_ = r.o.Register(d)
	_ = r.o.Trigger("x")
	r.settle(t)

	if calls.Load() != 0 {
		t.Fatal("target ran despite failed verification")
	}
	e := r.state(t, "x")
	if e.State != StateError || !strings.Contains(e.Error, ErrProofVerificationFailed.Error()) {
		t.Fatalf("expected verification failure, got %+v", e)
	}
	if got[PublicIsland] != "x" || got[PublicTrust] != "verified" || got["version"] != "1" {
		t.Fatalf("verifier saw wrong public data: %v", got)
	}
}

func TestTrustWithoutVerifierFails(t *testing.T) {
	var calls atomic.Int32
	r := newRig(t, Targets{ExecLocal: TargetFunc(func(context.Context, dom.Element, Descriptor, Context) error {
		calls.Add(1)
		return nil
	})}, nil)
	d := r.island("x", ExecLocal, StrategyManual)
	d.Trust = TrustSigned
	_ = r.o.Register(d)
	_ = r.o.Trigger("x")
	r.settle(t)
	if calls.Load() != 0 || r.state(t, "x").State != StateError {
		t.Fatal("signed island must not run without a verifier")
	}
}

func TestVerifiedIslandActivates(t *testing.T) {
	accept := VerifierFunc(func(context.Context, string, map[string]any) (bool, error) { return true, nil })
	r := newRig(t, Targets{ExecLocal: bindCount}, accept)
	d := r.island("x", ExecLocal, StrategyManual)
	d.Proof = "ok"
	_ = r.o.Register(d)
	_ = r.o.Trigger("x")
	r.settle(t)
	if e := r.state(t, "x"); e.State != StateHydrated {
		t.Fatalf("expected hydrated, got %+v", e)
	}
}

func TestRetriggerAfterErrorStartsOver(t *testing.T) {
	var attempt atomic.Int32
	flaky := TargetFunc(func(ctx context.Context, el dom.Element, d Descriptor, hc Context) error {
		if attempt.Add(1) == 1 {
			return errors.New("first try")
		}
		label, ok := el.(dom.Finder).Find("label")
		if !ok {
			return errors.New("label not found")
		}
		return hc.Do(ctx, func() error {
			s := hc.Scope.Signal("count", 1)
			return bridge.BindText(hc.Scope, d.ID+":label", label, s)
		})
	})
	r := newRig(t, Targets{ExecLocal: flaky}, nil)
	if err := r.doc.ByID("x").SetInnerHTML(`<span data-ref="label">static</span>`); err != nil {
		t.Fatalf("seed markup: %v", err)
	}
	_ = r.o.Register(r.island("x", ExecLocal, StrategyManual))
	_ = r.o.Trigger("x")
	r.settle(t)
	if r.state(t, "x").State != StateError {
		t.Fatal("expected first attempt to fail")
	}
	if !strings.Contains(r.doc.ByID("x").InnerHTML(), "island-error") {
		t.Fatal("expected fallback after the first attempt")
	}

	_ = r.o.Trigger("x")
	if e := r.state(t, "x"); e.State != StateLoading {
		t.Fatalf("re-trigger should re-enter loading, got %s", e.State)
	}
	if html := r.doc.ByID("x").InnerHTML(); strings.Contains(html, "island-error") {
		t.Fatalf("fallback survived the re-trigger: %s", html)
	}
	r.settle(t)
	if e := r.state(t, "x"); e.State != StateHydrated || e.Error != "" {
		t.Fatalf("expected clean hydration, got %+v", e)
	}
	html := r.doc.ByID("x").InnerHTML()
	if strings.Contains(html, "island-error") || !strings.Contains(html, `data-ref="label"`) {
		t.Fatalf("expected the registered markup back, got %s", html)
	}
	if label, _ := r.doc.ByID("x").Find("label"); label.(*dom.Node).Text() != "1" {
		t.Fatalf("binding did not reach the restored markup: %s", html)
	}
}

func TestReRegisterAfterErrorResetsToLoading(t *testing.T) {
	r := newRig(t, Targets{ExecLocal: TargetFunc(func(context.Context, dom.Element, Descriptor, Context) error {
		return errors.New("boom")
	})}, nil)
	_ = r.o.Register(r.island("x", ExecLocal, StrategyManual))
	_ = r.o.Trigger("x")
	r.settle(t)

	_ = r.o.Register(r.island("x", ExecLocal, StrategyManual))
	if e := r.state(t, "x"); e.State != StateLoading || e.Error != "" {
		t.Fatalf("expected loading, got %+v", e)
	}
	if html := r.doc.ByID("x").InnerHTML(); html != "<span>static</span>" {
		t.Fatalf("expected the original markup back, got %s", html)
	}
}

func TestSupersededResultIsDropped(t *testing.T) {
	var attempt atomic.Int32
	target := TargetFunc(func(ctx context.Context, el dom.Element, d Descriptor, hc Context) error {
		if attempt.Add(1) == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	r := newRig(t, Targets{ExecLocal: target}, nil)
	_ = r.o.Register(r.island("x", ExecLocal, StrategyManual))
	_ = r.o.Trigger("x")
	if r.o.Pending() != 1 {
		t.Fatal("expected one activation in flight")
	}

	_ = r.o.Register(r.island("x", ExecLocal, StrategyManual))
	_ = r.o.Trigger("x")
	r.settle(t)

	if e := r.state(t, "x"); e.State != StateHydrated {
		t.Fatalf("stale failure leaked into the new registration: %+v", e)
	}
}

func TestUnregisterWhilePendingDropsResult(t *testing.T) {
	release := make(chan struct{})
	target := TargetFunc(func(ctx context.Context, _ dom.Element, _ Descriptor, _ Context) error {
		<-release
		return nil
	})
	r := newRig(t, Targets{ExecLocal: target}, nil)
	_ = r.o.Register(r.island("x", ExecLocal, StrategyManual))
	_ = r.o.Trigger("x")

	if !r.o.Unregister("x") {
		t.Fatal("expected island removed")
	}
	close(release)
	r.settle(t)

	if _, ok := r.reg.Get("x"); ok {
		t.Fatal("late result resurrected the island")
	}
	if _, ok := r.br.Context("x"); ok {
		t.Fatal("context survived unregister")
	}
}

func TestRegistryRemovalStopsActivation(t *testing.T) {
	release := make(chan struct{})
	target := TargetFunc(func(ctx context.Context, _ dom.Element, _ Descriptor, _ Context) error {
		<-release
		return errors.New("late failure")
	})
	r := newRig(t, Targets{ExecLocal: target}, nil)
	var failed, unregistered int
	event.Subscribe(r.bus, func(event.IslandFailed) { failed++ })
	event.Subscribe(r.bus, func(event.IslandUnregistered) { unregistered++ })

	_ = r.o.Register(r.island("x", ExecLocal, StrategyManual))
	_ = r.o.Trigger("x")
	before := r.doc.ByID("x").InnerHTML()

	if !r.reg.Unregister("x") {
		t.Fatal("expected island removed")
	}
	close(release)
	r.settle(t)

	if _, ok := r.br.Context("x"); ok || len(r.br.Contexts()) != 0 {
		t.Fatal("late result recreated a hydra context")
	}
	if got := r.doc.ByID("x").InnerHTML(); got != before {
		t.Fatalf("late result touched the element: %s", got)
	}
	if err := r.o.Trigger("x"); !errors.Is(err, ErrUnknownIsland) {
		t.Fatalf("expected the orchestrator to forget x, got %v", err)
	}
	r.bus.SwapBuffers()
	r.bus.DispatchAll()
	if failed != 0 || unregistered != 1 {
		t.Fatalf("expected no failure and one removal event, got %d and %d", failed, unregistered)
	}
}

func TestRegistryRemovalCancelsArmedStrategy(t *testing.T) {
	r := newRig(t, Targets{ExecLocal: bindCount}, nil)
	_ = r.o.Register(r.island("x", ExecLocal, StrategyImmediate))
	r.reg.Unregister("x")
	if r.host.live("frame") != 0 {
		t.Fatal("frame callback still armed for a removed island")
	}
	if r.o.Pending() != 0 {
		t.Fatal("removed island started activating")
	}
}

func TestUnregisterDisposesContext(t *testing.T) {
	r := newRig(t, Targets{ExecLocal: bindCount}, nil)
	_ = r.o.Register(r.island("x", ExecLocal, StrategyManual))
	_ = r.o.Trigger("x")
	r.settle(t)

	scope, _ := r.br.Context("x")
	count, _ := scope.Lookup("count")
	if count.Subscribers() != 1 {
		t.Fatalf("expected bound signal, got %d subscribers", count.Subscribers())
	}

	r.o.Unregister("x")
	if count.Subscribers() != 0 {
		t.Fatalf("dangling subscriptions after unregister: %d", count.Subscribers())
	}
	if r.reg.Len() != 0 || len(r.br.Contexts()) != 0 {
		t.Fatal("registry and bridge out of sync")
	}
}

func TestActivationTimeout(t *testing.T) {
	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })
	r := newRig(t, Targets{ExecLocal: TargetFunc(func(context.Context, dom.Element, Descriptor, Context) error {
		<-hang
		return nil
	})}, nil)
	r.o.timeout = 20 * time.Millisecond

	_ = r.o.Register(r.island("x", ExecLocal, StrategyManual))
	_ = r.o.Trigger("x")
	r.settle(t)
	if e := r.state(t, "x"); e.State != StateError || !strings.Contains(e.Error, "deadline exceeded") {
		t.Fatalf("expected timeout error, got %+v", e)
	}
}

func TestLifecycleEventsReachTheBus(t *testing.T) {
	r := newRig(t, Targets{ExecLocal: bindCount}, nil)
	var registered, hydrated int
	event.Subscribe(r.bus, func(event.IslandRegistered) { registered++ })
	event.Subscribe(r.bus, func(e event.IslandHydrated) {
		if e.ID == "x" {
			hydrated++
		}
	})

	_ = r.o.Register(r.island("x", ExecLocal, StrategyManual))
	_ = r.o.Trigger("x")
	r.settle(t)

	r.bus.SwapBuffers()
	r.bus.DispatchAll()
	if registered != 1 || hydrated != 1 {
		t.Fatalf("expected 1 registered and 1 hydrated, got %d and %d", registered, hydrated)
	}
}

func TestRegisterRejectsBadDescriptor(t *testing.T) {
	r := newRig(t, nil, nil)
	bad := r.island("x", "wasm", StrategyImmediate)
	if err := r.o.Register(bad); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor, got %v", err)
	}
	if r.reg.Len() != 0 {
		t.Fatal("invalid descriptor must not be recorded")
	}
}
