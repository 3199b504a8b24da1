// Package bridge binds signals to DOM targets and groups everything an
// island creates under one hydra context so it can be torn down at once.
//
// Contexts, bindings and owned reactive nodes are ECS entities: a context is
// an entity with a scopeComponent, and every binding or owned node carries
// the id of the context it belongs to. Cleaning a context is a query over
// those components. Torn-down entities lose their components at once and
// are reclaimed by the world's destroy queue.
package bridge

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zenith/hydra/internal/core/ecs"
	"github.com/zenith/hydra/internal/signal"
)

var (
	ErrDuplicateContext = errors.New("bridge: hydra context already exists")
	ErrUnknownContext   = errors.New("bridge: unknown hydra context")
	ErrUnknownBinding   = errors.New("bridge: unknown binding")
)

// Kind is the DOM target a binding writes to.
type Kind int

const (
	KindText Kind = iota
	KindAttribute
	KindClassList
	KindStyle
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAttribute:
		return "attribute"
	case KindClassList:
		return "class_list"
	case KindStyle:
		return "style"
	}
	return "unknown"
}

type scopeComponent struct {
	scope *Scope
}

type bindingComponent struct {
	id      string
	context string
	kind    Kind
	target  string
	effect  *signal.Effect
}

// ownedComponent is a signal, computed or effect whose lifetime is tied to
// a context.
type ownedComponent struct {
	context string
	name    string
	dispose func()
}

// Bridge owns every hydra context of one runtime.
type Bridge struct {
	rt       *signal.Runtime
	world    *ecs.World
	log      *zap.Logger
	contexts map[string]ecs.EntityID
	bindings map[string]ecs.EntityID
}

func New(rt *signal.Runtime, world *ecs.World, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	ecs.Register[scopeComponent](world)
	ecs.Register[bindingComponent](world)
	ecs.Register[ownedComponent](world)
	return &Bridge{
		rt:       rt,
		world:    world,
		log:      log,
		contexts: make(map[string]ecs.EntityID),
		bindings: make(map[string]ecs.EntityID),
	}
}

func (b *Bridge) Runtime() *signal.Runtime { return b.rt }

// CreateContext creates the hydra context id. It fails with
// ErrDuplicateContext if the id is taken.
func (b *Bridge) CreateContext(id string) (*Scope, error) {
	if _, ok := b.contexts[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateContext, id)
	}
	return b.newScope(id), nil
}

// Signals returns the context id, creating it when missing. Island code
// uses this lenient path; the orchestrator always goes through
// CreateContext.
func (b *Bridge) Signals(id string) *Scope {
	if s, ok := b.Context(id); ok {
		return s
	}
	return b.newScope(id)
}

// Context returns an existing context.
func (b *Bridge) Context(id string) (*Scope, bool) {
	e, ok := b.contexts[id]
	if !ok {
		return nil, false
	}
	c, _, _ := ecs.Get[scopeComponent](b.world, e)
	return c.scope, true
}

func (b *Bridge) newScope(id string) *Scope {
	e := b.world.CreateEntity()
	s := &Scope{id: id, bridge: b, entity: e, signals: make(map[string]*signal.Signal[any])}
	_ = ecs.Add(b.world, e, scopeComponent{scope: s})
	b.contexts[id] = e
	return s
}

// Contexts returns the live context ids in creation order.
func (b *Bridge) Contexts() []string {
	var ids []string
	ecs.Each(b.world, func(_ ecs.EntityID, c *scopeComponent) {
		ids = append(ids, c.scope.id)
	})
	return ids
}

// Bindings returns the binding ids owned by a context, in creation order.
func (b *Bridge) Bindings(contextID string) []string {
	var ids []string
	ecs.Each(b.world, func(_ ecs.EntityID, c *bindingComponent) {
		if c.context == contextID {
			ids = append(ids, c.id)
		}
	})
	return ids
}

// RemoveBinding disposes exactly one binding.
func (b *Bridge) RemoveBinding(id string) error {
	e, ok := b.bindings[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBinding, id)
	}
	b.disposeBinding(e)
	return nil
}

func (b *Bridge) disposeBinding(e ecs.EntityID) {
	c, ok, err := ecs.Get[bindingComponent](b.world, e)
	if err != nil || !ok {
		return
	}
	c.effect.Dispose()
	delete(b.bindings, c.id)
	_ = b.world.Retire(e)
}

// CleanupContext disposes every binding and owned node of the context and
// removes it. It reports whether the context existed; cleaning an unknown
// id is a no-op.
func (b *Bridge) CleanupContext(id string) bool {
	e, ok := b.contexts[id]
	if !ok {
		return false
	}

	var doomed []ecs.EntityID
	ecs.Each(b.world, func(be ecs.EntityID, c *bindingComponent) {
		if c.context == id {
			doomed = append(doomed, be)
		}
	})
	nBindings := len(doomed)
	for _, be := range doomed {
		b.disposeBinding(be)
	}

	doomed = doomed[:0]
	var disposers []func()
	ecs.Each(b.world, func(oe ecs.EntityID, c *ownedComponent) {
		if c.context == id {
			doomed = append(doomed, oe)
			disposers = append(disposers, c.dispose)
		}
	})
	// Dispose in reverse creation order so effects go before the signals
	// they read.
	for i := len(disposers) - 1; i >= 0; i-- {
		disposers[i]()
	}
	for _, oe := range doomed {
		_ = b.world.Retire(oe)
	}

	if c, ok, _ := ecs.Get[scopeComponent](b.world, e); ok {
		c.scope.disposed = true
		c.scope.signals = nil
	}
	_ = b.world.Retire(e)
	delete(b.contexts, id)

	b.log.Debug("hydra context cleaned",
		zap.String("context", id),
		zap.Int("bindings", nBindings),
		zap.Int("owned", len(doomed)),
	)
	return true
}
