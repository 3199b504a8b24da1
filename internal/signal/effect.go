package signal

// Effect runs a side-effecting function whenever a signal or computed it
// read on its last run changes.
type Effect struct {
	node
	fn       func()
	cleanups []func()
}

// NewEffect runs fn immediately, tracking what it reads, and again after
// every change to those dependencies until disposed.
func NewEffect(rt *Runtime, fn func()) *Effect {
	e := &Effect{fn: fn}
	e.node = node{rt: rt, kind: kindEffect}
	e.node.exec = e.execute
	e.execute()
	return e
}

func (e *Effect) execute() {
	e.runCleanups()
	e.ran = true
	e.rt.runTracked(&e.node, e.fn)
	// Writes made during the run land before the effect subscribes to
	// what it just read, so nothing else would queue it.
	if !e.disposed && !e.queued && e.depsChanged() {
		e.queued = true
		e.rt.queue = append(e.rt.queue, &e.node)
		e.rt.flush()
	}
}

// OnCleanup registers fn to run before the next execution and on disposal.
func (e *Effect) OnCleanup(fn func()) {
	e.cleanups = append(e.cleanups, fn)
}

func (e *Effect) runCleanups() {
	if len(e.cleanups) == 0 {
		return
	}
	fns := e.cleanups
	e.cleanups = nil
	e.rt.Untrack(func() {
		for _, fn := range fns {
			fn()
		}
	})
}

// Dependencies returns how many sources the effect currently observes.
func (e *Effect) Dependencies() int {
	return len(e.deps)
}

// Disposed reports whether Dispose has been called.
func (e *Effect) Disposed() bool {
	return e.disposed
}

// Dispose stops the effect and releases all of its subscriptions.
func (e *Effect) Dispose() {
	if e.disposed {
		return
	}
	e.disposed = true
	e.runCleanups()
	e.release()
}
