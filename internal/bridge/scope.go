package bridge

import (
	"fmt"
	"reflect"

	"github.com/zenith/hydra/internal/core/ecs"
	"github.com/zenith/hydra/internal/signal"
)

// Disposer is anything a context can own: signals, computeds, effects.
type Disposer interface {
	Dispose()
}

// Scope is one hydra context: the reactive footprint of a single island.
type Scope struct {
	id       string
	bridge   *Bridge
	entity   ecs.EntityID
	signals  map[string]*signal.Signal[any]
	disposed bool
}

func (s *Scope) ID() string               { return s.id }
func (s *Scope) Runtime() *signal.Runtime { return s.bridge.rt }
func (s *Scope) Disposed() bool           { return s.disposed }

// Signal returns the context's signal called name, creating it with
// initial when missing. Maps and slices compare by identity: writing back
// the same reference is not a change. Other non-comparable values always
// count as changed.
func (s *Scope) Signal(name string, initial any) *signal.Signal[any] {
	if sig, ok := s.signals[name]; ok {
		return sig
	}
	sig := signal.NewFunc(s.bridge.rt, initial, sameValue)
	if s.disposed {
		sig.Dispose()
		return sig
	}
	s.signals[name] = sig
	s.own(name, sig.Dispose)
	return sig
}

// Lookup returns an existing named signal.
func (s *Scope) Lookup(name string) (*signal.Signal[any], bool) {
	sig, ok := s.signals[name]
	return sig, ok
}

// Names returns the number of named signals in the context.
func (s *Scope) Names() int {
	return len(s.signals)
}

// Effect creates an effect owned by the context.
func (s *Scope) Effect(fn func()) *signal.Effect {
	e := signal.NewEffect(s.bridge.rt, fn)
	if s.disposed {
		e.Dispose()
		return e
	}
	s.own("", e.Dispose)
	return e
}

// Adopt ties an existing reactive node to the context's lifetime.
func (s *Scope) Adopt(d Disposer) {
	if s.disposed {
		d.Dispose()
		return
	}
	s.own("", d.Dispose)
}

func (s *Scope) own(name string, dispose func()) {
	w := s.bridge.world
	e := w.CreateEntity()
	_ = ecs.Add(w, e, ownedComponent{context: s.id, name: name, dispose: dispose})
}

// bind installs an effect running write under binding id, replacing any
// previous binding with the same id.
func (s *Scope) bind(id string, kind Kind, target string, write func()) error {
	if s.disposed {
		return fmt.Errorf("%w: %s", ErrUnknownContext, s.id)
	}
	b := s.bridge
	if old, ok := b.bindings[id]; ok {
		b.disposeBinding(old)
	}
	e := b.world.CreateEntity()
	eff := signal.NewEffect(b.rt, write)
	_ = ecs.Add(b.world, e, bindingComponent{
		id:      id,
		context: s.id,
		kind:    kind,
		target:  target,
		effect:  eff,
	})
	b.bindings[id] = e
	return nil
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) {
		return false
	}
	if t.Comparable() {
		return a == b
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch t.Kind() {
	case reflect.Map:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	return false
}
