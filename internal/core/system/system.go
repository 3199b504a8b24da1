package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain the loop mailbox (activation results, target work)
	PhasePreUpdate               // 1: dispatch last tick's events
	PhaseUpdate                  // 2: application systems (default)
	PhasePostUpdate              // 3: frame and idle callbacks, hydration triggers
	PhasePersist                 // 4: journal flush
	PhaseCleanup                 // 5: destroy queued entities
)

var phaseNames = [...]string{"input", "pre_update", "update", "post_update", "persist", "cleanup"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// System is the interface every ECS system implements.
type System interface {
	Update(dt time.Duration)
}

// Phased is implemented by systems that run outside PhaseUpdate.
type Phased interface {
	Phase() Phase
}

// PhaseOf returns the phase a system runs in.
func PhaseOf(s System) Phase {
	if p, ok := s.(Phased); ok {
		return p.Phase()
	}
	return PhaseUpdate
}

// Func adapts a plain function to System.
type Func func(dt time.Duration)

func (f Func) Update(dt time.Duration) { f(dt) }
