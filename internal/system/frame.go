package system

import (
	"time"

	coresys "github.com/zenith/hydra/internal/core/system"
)

// FrameRunner is the part of the headless host the loop drives.
type FrameRunner interface {
	RunFrame() int
	RunIdle(max int) int
}

// Busy reports queued loop work. *mailbox.Mailbox satisfies it.
type Busy interface {
	Len() int
}

// FrameSystem runs the host's frame callbacks every tick. Idle callbacks
// run only on ticks where no frame callback ran and nothing is waiting in
// the mailbox. Phase 3 (PostUpdate).
type FrameSystem struct {
	host       FrameRunner
	busy       Busy
	idleBudget int
}

func NewFrameSystem(host FrameRunner, busy Busy, idleBudget int) *FrameSystem {
	return &FrameSystem{host: host, busy: busy, idleBudget: idleBudget}
}

func (s *FrameSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *FrameSystem) Update(_ time.Duration) {
	if s.host.RunFrame() > 0 {
		return
	}
	if s.busy != nil && s.busy.Len() > 0 {
		return
	}
	s.host.RunIdle(s.idleBudget)
}
