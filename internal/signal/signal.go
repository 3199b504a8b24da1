// Package signal implements a fine-grained reactive graph: mutable signals,
// memoized computeds and effects, with dependencies discovered while they
// evaluate.
//
// Writes propagate synchronously. A changing write marks downstream computeds
// dirty and queues downstream effects depth-first in subscription order; the
// queue drains before Set returns. Computeds recompute lazily when read and
// only bump their version when the new value differs, so effects behind an
// unchanged computed are skipped.
package signal

// Readable is the read side shared by Signal and Computed.
type Readable[T any] interface {
	// Get returns the current value and records it as a dependency of the
	// evaluating computed or effect, if any.
	Get() T
	// Peek returns the current value without tracking.
	Peek() T
}

// Signal is a mutable reactive cell.
type Signal[T any] struct {
	node
	value T
	equal func(a, b T) bool
}

// New creates a signal whose writes are compared with ==.
func New[T comparable](rt *Runtime, initial T) *Signal[T] {
	return NewFunc(rt, initial, func(a, b T) bool { return a == b })
}

// NewFunc creates a signal using equal to decide whether a write changes
// the value. Use it for maps, slices and other non-comparable types.
func NewFunc[T any](rt *Runtime, initial T, equal func(a, b T) bool) *Signal[T] {
	s := &Signal[T]{value: initial, equal: equal}
	s.node = node{rt: rt, kind: kindSignal}
	return s
}

func (s *Signal[T]) Get() T {
	s.rt.track(&s.node)
	return s.value
}

func (s *Signal[T]) Peek() T {
	return s.value
}

// Set replaces the value. Writing an equal value does nothing. Effects that
// depend on the signal have run by the time Set returns, unless Set was
// called from inside a batch or a running effect.
func (s *Signal[T]) Set(v T) error {
	if s.disposed {
		return ErrStaleSignal
	}
	if s.equal(s.value, v) {
		return nil
	}
	s.value = v
	s.version++
	s.rt.propagate(&s.node)
	s.rt.flush()
	return nil
}

// Update sets the value to fn applied to the current value.
func (s *Signal[T]) Update(fn func(T) T) error {
	return s.Set(fn(s.value))
}

// Subscribe calls fn with each new value until the returned func is called.
func (s *Signal[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	first := true
	e := NewEffect(s.rt, func() {
		v := s.Get()
		if first {
			first = false
			return
		}
		s.rt.Untrack(func() { fn(v) })
	})
	return e.Dispose
}

// Subscribers returns the number of live observers.
func (s *Signal[T]) Subscribers() int {
	return len(s.subs)
}

// Disposed reports whether Dispose has been called.
func (s *Signal[T]) Disposed() bool {
	return s.disposed
}

// Dispose detaches every observer. Later writes return ErrStaleSignal;
// reads still return the last value but are no longer tracked.
func (s *Signal[T]) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	for _, sub := range s.subs {
		removeDep(sub, &s.node)
	}
	s.subs = nil
}

func removeDep(obs, src *node) {
	for i, d := range obs.deps {
		if d.src == src {
			obs.deps = append(obs.deps[:i:i], obs.deps[i+1:]...)
			return
		}
	}
}
