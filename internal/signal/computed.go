package signal

// Computed is a memoized value derived from the signals and computeds its
// function reads.
type Computed[T any] struct {
	node
	fn        func() T
	value     T
	equal     func(a, b T) bool
	computing bool
}

// NewComputed creates a computed whose results are compared with ==.
func NewComputed[T comparable](rt *Runtime, fn func() T) *Computed[T] {
	return NewComputedFunc(rt, fn, func(a, b T) bool { return a == b })
}

// NewComputedFunc creates a computed using equal to decide whether a
// recomputation produced a new value.
func NewComputedFunc[T any](rt *Runtime, fn func() T, equal func(a, b T) bool) *Computed[T] {
	c := &Computed[T]{fn: fn, equal: equal}
	c.node = node{rt: rt, kind: kindComputed, dirty: true}
	c.node.compute = c.recompute
	return c
}

func (c *Computed[T]) recompute() {
	var next T
	c.computing = true
	defer func() { c.computing = false }()
	c.rt.runTracked(&c.node, func() { next = c.fn() })
	if !c.ran || !c.equal(c.value, next) {
		c.value = next
		c.version++
	}
	c.ran = true
}

// Get returns the up-to-date value, recomputing if a dependency changed,
// and tracks the computed as a dependency of the caller. It panics with
// ErrCycle when the computed reads itself.
func (c *Computed[T]) Get() T {
	if c.computing {
		panic(ErrCycle)
	}
	c.update()
	c.rt.track(&c.node)
	return c.value
}

func (c *Computed[T]) Peek() T {
	if c.computing {
		panic(ErrCycle)
	}
	c.update()
	return c.value
}

// Dependencies returns how many sources the last evaluation read.
func (c *Computed[T]) Dependencies() int {
	return len(c.deps)
}

func (c *Computed[T]) Subscribers() int {
	return len(c.subs)
}

// Dispose releases the computed's subscriptions. Observers keep the last
// value.
func (c *Computed[T]) Dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	c.release()
	for _, sub := range c.subs {
		removeDep(sub, &c.node)
	}
	c.subs = nil
}
