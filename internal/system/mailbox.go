package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/zenith/hydra/internal/core/mailbox"
	coresys "github.com/zenith/hydra/internal/core/system"
)

// MailboxSystem runs the closures background goroutines posted for the
// loop: activation results and target work. Phase 0 (Input).
type MailboxSystem struct {
	mailbox    *mailbox.Mailbox
	maxPerTick int
	log        *zap.Logger
}

func NewMailboxSystem(mb *mailbox.Mailbox, maxPerTick int, log *zap.Logger) *MailboxSystem {
	if log == nil {
		log = zap.NewNop()
	}
	return &MailboxSystem{mailbox: mb, maxPerTick: maxPerTick, log: log}
}

func (s *MailboxSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *MailboxSystem) Update(_ time.Duration) {
	n := s.mailbox.Drain(s.maxPerTick)
	if s.maxPerTick > 0 && n == s.maxPerTick {
		if backlog := s.mailbox.Len(); backlog > 0 {
			s.log.Debug("mailbox backlog carried to next tick", zap.Int("backlog", backlog))
		}
	}
}
