package system

import (
	"reflect"
	"sort"
	"time"
)

// Runner executes systems in phase order each tick. Within a phase, systems
// run in registration order.
type Runner struct {
	systems []System
	sorted  bool
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
	}
}

// Register adds s. Registering the same system twice is a no-op and
// reports false.
func (r *Runner) Register(s System) bool {
	for _, existing := range r.systems {
		if sameSystem(existing, s) {
			return false
		}
	}
	r.systems = append(r.systems, s)
	r.sorted = false
	return true
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		s.Update(dt)
	}
}

// TickPhase runs only the systems of one phase, for hosts that poll input
// more often than they run the full tick.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if PhaseOf(s) == phase {
			s.Update(dt)
		}
	}
}

// Len returns the number of registered systems.
func (r *Runner) Len() int {
	return len(r.systems)
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return PhaseOf(r.systems[i]) < PhaseOf(r.systems[j])
		})
		r.sorted = true
	}
}

// sameSystem compares by identity. Systems of non-comparable types (Func
// values among them) are always treated as distinct.
func sameSystem(a, b System) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
