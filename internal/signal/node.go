package signal

type kind uint8

const (
	kindSignal kind = iota
	kindComputed
	kindEffect
)

// dep is one edge from an observer to a source, stamped with the source
// version seen when it was read.
type dep struct {
	src     *node
	version uint64
}

// node is the graph vertex shared by signals, computeds and effects.
// Sources use subs and version; observers use deps and the dirty/queued
// flags. A computed is both.
type node struct {
	rt       *Runtime
	kind     kind
	version  uint64
	subs     []*node
	deps     []dep
	dirty    bool
	queued   bool
	ran      bool
	disposed bool

	// compute refreshes a computed's value; exec re-runs an effect.
	compute func()
	exec    func()
}

func (n *node) subscribe(sub *node) {
	if n.disposed {
		return
	}
	n.subs = append(n.subs, sub)
}

func (n *node) unsubscribe(sub *node) {
	for i, s := range n.subs {
		if s == sub {
			copy(n.subs[i:], n.subs[i+1:])
			n.subs[len(n.subs)-1] = nil
			n.subs = n.subs[:len(n.subs)-1]
			return
		}
	}
}

func (n *node) reconcile(next []dep) {
	if n.disposed {
		n.deps = nil
		return
	}
	for _, old := range n.deps {
		if !hasSource(next, old.src) {
			old.src.unsubscribe(n)
		}
	}
	for _, d := range next {
		if !hasSource(n.deps, d.src) {
			d.src.subscribe(n)
		}
	}
	n.deps = next
}

// depsChanged brings computed dependencies up to date and reports whether
// any source moved past the version this observer last saw.
func (n *node) depsChanged() bool {
	if !n.ran {
		return true
	}
	for _, d := range n.deps {
		if d.src.kind == kindComputed {
			d.src.update()
		}
		if d.src.version != d.version {
			return true
		}
	}
	return false
}

// update recomputes a dirty computed, skipping the work when none of its
// own dependencies actually changed.
func (n *node) update() {
	if n.disposed || (n.ran && !n.dirty) {
		return
	}
	if n.ran && !n.depsChanged() {
		n.dirty = false
		return
	}
	n.dirty = false
	n.compute()
}

// release drops every subscription n holds on its sources.
func (n *node) release() {
	for _, d := range n.deps {
		d.src.unsubscribe(n)
	}
	n.deps = nil
}

func hasSource(deps []dep, src *node) bool {
	for _, d := range deps {
		if d.src == src {
			return true
		}
	}
	return false
}
