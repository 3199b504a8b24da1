package island

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zenith/hydra/internal/bridge"
	"github.com/zenith/hydra/internal/core/event"
	"github.com/zenith/hydra/internal/core/mailbox"
	"github.com/zenith/hydra/internal/render"
)

const defaultActivationTimeout = 10 * time.Second

// Options wires an Orchestrator to its collaborators. Any of them may be
// nil. A nil Mailbox gets a private one the caller drains via Mailbox();
// with a nil Host every non-manual strategy starts on registration.
type Options struct {
	Host     Host
	Targets  Targets
	Verifier Verifier
	Mailbox  *mailbox.Mailbox
	Bus      *event.Bus
	Logger   *zap.Logger
	Timeout  time.Duration // per activation, verification included
}

// handle is the loop-side state of one registration.
type handle struct {
	desc     Descriptor
	gen      uint64
	scope    *bridge.Scope
	inflight bool
	started  time.Time
	cancel   func()             // pending strategy trigger
	stop     context.CancelFunc // running activation
	markup   string             // element content at registration
	snapped  bool
}

type markupSource interface {
	InnerHTML() string
}

type outcome struct {
	id   string
	gen  uint64
	err  error
	took time.Duration
}

// Orchestrator owns the per-island state machines. All methods except Close
// must be called from the loop goroutine.
type Orchestrator struct {
	registry *Registry
	bridge   *bridge.Bridge
	host     Host
	targets  Targets
	verifier Verifier
	mailbox  *mailbox.Mailbox
	bus      *event.Bus
	log      *zap.Logger
	timeout  time.Duration
	now      func() time.Time

	base    context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup

	islands map[string]*handle
	nextGen uint64
	pending int
}

// NewOrchestrator builds an orchestrator over reg and br. reg must use br
// as its ContextCleaner so unregistering keeps both in sync.
func NewOrchestrator(reg *Registry, br *bridge.Bridge, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultActivationTimeout
	}
	targets := opts.Targets
	if targets == nil {
		targets = Targets{}
	}
	mb := opts.Mailbox
	if mb == nil {
		mb = mailbox.New(256)
	}
	base, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		registry: reg,
		bridge:   br,
		host:     opts.Host,
		targets:  targets,
		verifier: opts.Verifier,
		mailbox:  mb,
		bus:      opts.Bus,
		log:      log,
		timeout:  timeout,
		now:      time.Now,
		base:     base,
		stopAll:  stop,
		islands:  make(map[string]*handle),
	}
	reg.Observe(o.forget)
	return o
}

func (o *Orchestrator) Registry() *Registry       { return o.registry }
func (o *Orchestrator) Mailbox() *mailbox.Mailbox { return o.mailbox }

// Pending returns the number of activations whose result has not been
// applied yet.
func (o *Orchestrator) Pending() int { return o.pending }

// Register creates a fresh hydra context for the island, records it as
// loading and arms its strategy. Registering a known id supersedes the
// previous registration: its trigger is cancelled, its context disposed and
// any in-flight result dropped when it arrives.
func (o *Orchestrator) Register(d Descriptor) error {
	if d.Strategy == "" {
		d.Strategy = StrategyImmediate
	}
	if d.Trust == "" {
		d.Trust = TrustNone
	}
	if err := d.validate(); err != nil {
		return err
	}

	old, known := o.islands[d.ID]
	if known {
		o.release(old)
	}
	o.bridge.CleanupContext(d.ID)
	scope, err := o.bridge.CreateContext(d.ID)
	if err != nil {
		return err
	}

	o.nextGen++
	h := &handle{desc: d, gen: o.nextGen, scope: scope}
	switch {
	case known && old.snapped && old.desc.Element == d.Element:
		h.markup, h.snapped = old.markup, true
		o.restore(h)
	default:
		if src, ok := d.Element.(markupSource); ok {
			h.markup, h.snapped = src.InnerHTML(), true
		}
	}
	o.islands[d.ID] = h
	o.registry.Register(d)
	o.emit(event.IslandRegistered{ID: d.ID, ExecType: string(d.ExecType), Strategy: string(d.Strategy), At: o.now()})
	o.log.Debug("island registered",
		zap.String("island", d.ID),
		zap.String("exec", string(d.ExecType)),
		zap.String("strategy", string(d.Strategy)),
	)

	o.arm(h)
	return nil
}

// Trigger starts activation now. It is the only way a manual island
// activates, and re-triggers a hydrated or failed island from a clean
// context over the markup it was registered with. Triggering an island that is already activating does nothing.
func (o *Orchestrator) Trigger(id string) error {
	h, ok := o.islands[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIsland, id)
	}
	if h.inflight {
		return nil
	}
	if e, ok := o.registry.Get(id); ok && e.State.Terminal() {
		if err := o.registry.Reset(id); err != nil {
			return err
		}
		if err := o.freshScope(h); err != nil {
			return err
		}
		o.restore(h)
	}
	o.start(id, h.gen)
	return nil
}

// Unregister drops the island. A running activation has its context
// cancelled and whatever result it still posts is ignored. Removing the
// entry through the Registry directly has the same effect.
func (o *Orchestrator) Unregister(id string) bool {
	o.drop(id)
	return o.registry.Unregister(id)
}

// forget follows registry removals.
func (o *Orchestrator) forget(t Transition) {
	if t.To != "" {
		return
	}
	o.drop(t.ID)
	o.emit(event.IslandUnregistered{ID: t.ID, At: o.now()})
	o.log.Debug("island unregistered", zap.String("island", t.ID))
}

func (o *Orchestrator) drop(id string) {
	if h, ok := o.islands[id]; ok {
		o.release(h)
		delete(o.islands, id)
	}
}

// Close cancels every running activation and waits for their goroutines.
func (o *Orchestrator) Close() {
	o.stopAll()
	o.wg.Wait()
}

func (o *Orchestrator) arm(h *handle) {
	id, gen := h.desc.ID, h.gen
	fire := func() { o.start(id, gen) }

	if o.host == nil {
		if h.desc.Strategy != StrategyManual {
			fire()
		}
		return
	}
	switch h.desc.Strategy {
	case StrategyImmediate:
		h.cancel = o.host.RequestFrame(fire)
	case StrategyVisible:
		h.cancel = o.host.ObserveVisible(h.desc.Element, fire)
	case StrategyInteraction:
		h.cancel = o.host.OnInteraction(h.desc.Element, fire)
	case StrategyIdle:
		h.cancel = o.host.RequestIdle(fire)
	case StrategyManual:
	}
}

// release disarms a registration without touching the registry.
func (o *Orchestrator) release(h *handle) {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}
}

func (o *Orchestrator) freshScope(h *handle) error {
	o.bridge.CleanupContext(h.desc.ID)
	scope, err := o.bridge.CreateContext(h.desc.ID)
	if err != nil {
		return err
	}
	h.scope = scope
	return nil
}

// restore puts back the content the element had when it was registered,
// replacing a fallback or a previous activation's output.
func (o *Orchestrator) restore(h *handle) {
	if !h.snapped {
		return
	}
	if err := h.desc.Element.SetInnerHTML(h.markup); err != nil {
		o.log.Error("restore island markup", zap.String("island", h.desc.ID), zap.Error(err))
	}
}

func (o *Orchestrator) start(id string, gen uint64) {
	h, ok := o.islands[id]
	if !ok || h.gen != gen || h.inflight {
		return
	}
	if _, ok := o.registry.Get(id); !ok {
		o.drop(id)
		return
	}
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}

	ctx, stop := context.WithTimeout(o.base, o.timeout)
	h.stop = stop
	h.inflight = true
	h.started = o.now()
	o.pending++

	hc := Context{
		ID:      id,
		Scope:   h.scope,
		Data:    h.desc.Data,
		Log:     o.log.With(zap.String("island", id)),
		mailbox: o.mailbox,
	}
	desc := h.desc
	started := h.started

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := o.activate(ctx, desc, hc)
		out := outcome{id: id, gen: gen, err: err, took: time.Since(started)}
		if perr := o.mailbox.Send(o.base, func() { o.finish(out) }); perr != nil && !errors.Is(perr, context.Canceled) {
			o.log.Warn("activation result lost",
				zap.String("island", id),
				zap.Error(perr),
			)
		}
	}()
}

// activate runs off the loop: verification first, then the target. It
// returns when the target does or the deadline passes, whichever is first.
func (o *Orchestrator) activate(ctx context.Context, d Descriptor, hc Context) error {
	if d.NeedsVerification() {
		if err := o.verify(ctx, d); err != nil {
			return err
		}
	}

	t, ok := o.targets[d.ExecType]
	if !ok || t == nil {
		return fmt.Errorf("%w: %w: %s", ErrActivationFailed, ErrNoTarget, d.ExecType)
	}

	done := make(chan error, 1)
	go func() { done <- callTarget(ctx, t, d, hc) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %w", ErrActivationFailed, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrActivationFailed, ctx.Err())
	}
}

func (o *Orchestrator) verify(ctx context.Context, d Descriptor) error {
	if o.verifier == nil {
		return fmt.Errorf("%w: no verifier configured for trust level %s", ErrProofVerificationFailed, d.Trust)
	}
	ok, err := o.verifier.VerifyProof(ctx, d.Proof, d.ProofInput())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProofVerificationFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: proof rejected", ErrProofVerificationFailed)
	}
	return nil
}

func callTarget(ctx context.Context, t Target, d Descriptor, hc Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Activate(ctx, d.Element, d, hc)
}

// finish applies an activation result on the loop.
func (o *Orchestrator) finish(out outcome) {
	o.pending--
	h, ok := o.islands[out.id]
	if ok {
		if _, known := o.registry.Get(out.id); !known {
			o.drop(out.id)
			ok = false
		}
	}
	if !ok || h.gen != out.gen {
		o.log.Debug("stale activation result dropped",
			zap.String("island", out.id),
			zap.Uint64("generation", out.gen),
		)
		return
	}
	h.inflight = false
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}

	d := h.desc
	if out.err == nil {
		if err := o.registry.Update(d.ID, StateHydrated, ""); err != nil {
			o.log.Error("record hydration", zap.String("island", d.ID), zap.Error(err))
			return
		}
		o.emit(event.IslandHydrated{ID: d.ID, ExecType: string(d.ExecType), Took: out.took, At: o.now()})
		o.log.Info("island hydrated",
			zap.String("island", d.ID),
			zap.String("exec", string(d.ExecType)),
			zap.Duration("took", out.took),
		)
		return
	}
	o.fail(h, out.err)
}

// fail records the error, drops whatever the activation bound so far and
// replaces the island's content with the fallback.
func (o *Orchestrator) fail(h *handle, cause error) {
	d := h.desc
	msg := cause.Error()
	if err := o.registry.Update(d.ID, StateError, msg); err != nil {
		o.log.Error("record failure", zap.String("island", d.ID), zap.Error(err))
		return
	}
	if err := o.freshScope(h); err != nil {
		o.log.Error("reset hydra context", zap.String("island", d.ID), zap.Error(err))
	}

	markup, err := render.String(o.base, render.Fallback(d.Entry, string(d.ExecType), msg))
	if err == nil {
		err = d.Element.SetInnerHTML(markup)
	}
	if err != nil {
		o.log.Error("render fallback", zap.String("island", d.ID), zap.Error(err))
	}

	o.emit(event.IslandFailed{ID: d.ID, ExecType: string(d.ExecType), Error: msg, At: o.now()})
	fields := []zap.Field{
		zap.String("island", d.ID),
		zap.String("exec", string(d.ExecType)),
		zap.Error(cause),
	}
	if errors.Is(cause, ErrProofVerificationFailed) {
		o.log.Warn("island rejected by trust gate", fields...)
		return
	}
	o.log.Warn("island activation failed", fields...)
}

func (o *Orchestrator) emit(ev any) {
	if o.bus != nil {
		event.Emit(o.bus, ev)
	}
}
