package signal

import "errors"

var (
	// ErrStaleSignal is returned when writing a signal that has been disposed.
	ErrStaleSignal = errors.New("signal: write to disposed signal")
	// ErrCycle is the panic value raised when a computed reads itself.
	ErrCycle = errors.New("signal: computed depends on itself")
)

// Runtime owns the tracking stack and the pending effect queue for one
// reactive graph. A Runtime is confined to a single goroutine; hosts that
// receive work from other goroutines hand it over through a mailbox.
type Runtime struct {
	frames []*frame
	queue  []*node
	depth  int
}

// frame records the sources read while one computed or effect evaluates.
type frame struct {
	owner *node
	deps  []dep
}

func NewRuntime() *Runtime {
	return &Runtime{
		frames: make([]*frame, 0, 8),
		queue:  make([]*node, 0, 32),
	}
}

// Tracking reports whether a computed or effect is currently evaluating.
func (rt *Runtime) Tracking() bool {
	return len(rt.frames) > 0 && rt.frames[len(rt.frames)-1] != nil
}

// Batch runs fn and defers effect execution until it returns. Nested
// batches flush once, when the outermost returns.
func (rt *Runtime) Batch(fn func()) {
	rt.depth++
	defer func() {
		rt.depth--
		rt.flush()
	}()
	fn()
}

// Untrack runs fn without recording any reads as dependencies.
func (rt *Runtime) Untrack(fn func()) {
	rt.frames = append(rt.frames, nil)
	defer func() { rt.frames = rt.frames[:len(rt.frames)-1] }()
	fn()
}

func (rt *Runtime) track(src *node) {
	if len(rt.frames) == 0 || src.disposed {
		return
	}
	f := rt.frames[len(rt.frames)-1]
	if f == nil || f.owner == src {
		return
	}
	for _, d := range f.deps {
		if d.src == src {
			return
		}
	}
	f.deps = append(f.deps, dep{src: src, version: src.version})
}

// runTracked evaluates fn under a fresh frame and then swaps owner's
// dependency set for the sources read, unsubscribing the ones dropped.
func (rt *Runtime) runTracked(owner *node, fn func()) {
	rt.frames = append(rt.frames, &frame{owner: owner})
	defer func() {
		f := rt.frames[len(rt.frames)-1]
		rt.frames = rt.frames[:len(rt.frames)-1]
		owner.reconcile(f.deps)
	}()
	fn()
}

// propagate marks computeds downstream of src dirty and queues effects,
// depth-first in subscription order.
func (rt *Runtime) propagate(src *node) {
	for _, sub := range src.subs {
		switch sub.kind {
		case kindComputed:
			if !sub.dirty {
				sub.dirty = true
				rt.propagate(sub)
			}
		case kindEffect:
			if !sub.queued {
				sub.queued = true
				rt.queue = append(rt.queue, sub)
			}
		}
	}
}

// flush runs queued effects. Writes made by an effect while the queue is
// draining only enqueue; they are picked up by the same loop once the
// current effect returns.
func (rt *Runtime) flush() {
	if rt.depth > 0 {
		return
	}
	rt.depth++
	done := false
	defer func() {
		rt.depth--
		if !done {
			for _, n := range rt.queue {
				n.queued = false
			}
			rt.queue = rt.queue[:0]
		}
	}()
	for len(rt.queue) > 0 {
		n := rt.queue[0]
		rt.queue[0] = nil
		rt.queue = rt.queue[1:]
		n.queued = false
		if n.disposed {
			continue
		}
		if n.depsChanged() {
			n.exec()
		}
	}
	done = true
}
