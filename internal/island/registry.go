package island

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultErrorMessage = "island failed without an error message"

// ContextCleaner disposes the hydra context of an island. The bridge
// implements it.
type ContextCleaner interface {
	CleanupContext(id string) bool
}

// Registry holds one Entry per registered island. Mutations come from the
// loop goroutine; the lock lets other goroutines read.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	order     []string // registration order
	cleaner   ContextCleaner
	observers []func(Transition)
	log       *zap.Logger
	now       func() time.Time
}

func NewRegistry(cleaner ContextCleaner, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*Entry),
		cleaner: cleaner,
		log:     log,
		now:     time.Now,
	}
}

// Observe adds fn to the functions receiving every transition, in the
// order they were added. fn runs with the registry unlocked, on the
// mutating goroutine. A removal has an empty To.
func (r *Registry) Observe(fn func(Transition)) {
	r.mu.Lock()
	r.observers = append(slices.Clip(r.observers), fn)
	r.mu.Unlock()
}

// Register inserts a loading entry. Registering an existing id replaces
// the entry and starts it over in loading.
func (r *Registry) Register(d Descriptor) Entry {
	now := r.now()
	e := &Entry{
		ID:           d.ID,
		State:        StateLoading,
		ExecType:     d.ExecType,
		Strategy:     d.Strategy,
		Entry:        d.Entry,
		Data:         d.Data,
		Element:      d.Element,
		RegisteredAt: now,
		LastUpdate:   now,
	}

	r.mu.Lock()
	var from State
	if old, ok := r.entries[d.ID]; ok {
		from = old.State
		r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == d.ID })
	}
	r.entries[d.ID] = e
	r.order = append(r.order, d.ID)
	out := *e
	obs := r.observers
	r.mu.Unlock()

	r.notify(obs, Transition{ID: d.ID, ExecType: d.ExecType, From: from, To: StateLoading, At: now})
	return out
}

// Update moves an island out of loading. An unknown id is logged and
// ignored. Leaving a terminal state, or entering loading, returns
// ErrInvalidTransition; use Reset for that.
func (r *Registry) Update(id string, state State, errMsg string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		r.log.Warn("update for unknown island ignored",
			zap.String("island", id),
			zap.String("state", string(state)),
		)
		return nil
	}
	if e.State != StateLoading || !state.Terminal() {
		from := e.State
		r.mu.Unlock()
		return fmt.Errorf("%w: %s: %s -> %s", ErrInvalidTransition, id, from, state)
	}

	if state == StateError && errMsg == "" {
		errMsg = defaultErrorMessage
	}
	if state != StateError {
		errMsg = ""
	}
	e.State = state
	e.Error = errMsg
	e.LastUpdate = r.now()
	t := Transition{ID: id, ExecType: e.ExecType, From: StateLoading, To: state, Error: errMsg, At: e.LastUpdate}
	obs := r.observers
	r.mu.Unlock()

	r.notify(obs, t)
	return nil
}

// Reset puts a terminal island back into loading for a re-trigger. Resetting
// a loading island is a no-op.
func (r *Registry) Reset(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownIsland, id)
	}
	if e.State == StateLoading {
		r.mu.Unlock()
		return nil
	}
	from := e.State
	e.State = StateLoading
	e.Error = ""
	e.LastUpdate = r.now()
	t := Transition{ID: id, ExecType: e.ExecType, From: from, To: StateLoading, At: e.LastUpdate}
	obs := r.observers
	r.mu.Unlock()

	r.notify(obs, t)
	return nil
}

// Unregister removes the entry and disposes the island's hydra context.
// The cleaner runs exactly once per call, even when the entry was already
// gone, so a context can never outlive its registration.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	var t Transition
	if ok {
		delete(r.entries, id)
		r.order = slices.DeleteFunc(r.order, func(x string) bool { return x == id })
		t = Transition{ID: id, ExecType: e.ExecType, From: e.State, At: r.now()}
	}
	obs := r.observers
	r.mu.Unlock()

	if r.cleaner != nil {
		r.cleaner.CleanupContext(id)
	}
	if ok {
		r.notify(obs, t)
	}
	return ok
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// All returns every entry in registration order.
func (r *Registry) All() []Entry {
	return r.filter(func(*Entry) bool { return true })
}

func (r *Registry) ByState(s State) []Entry {
	return r.filter(func(e *Entry) bool { return e.State == s })
}

func (r *Registry) ByExecType(t ExecType) []Entry {
	return r.filter(func(e *Entry) bool { return e.ExecType == t })
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) filter(keep func(*Entry) bool) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		if e := r.entries[id]; keep(e) {
			out = append(out, *e)
		}
	}
	return out
}

func (r *Registry) notify(obs []func(Transition), t Transition) {
	for _, fn := range obs {
		fn(t)
	}
}
