package system

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	coresys "github.com/zenith/hydra/internal/core/system"
	"github.com/zenith/hydra/internal/island"
	"github.com/zenith/hydra/internal/persist"
)

// Journal stores transition rows. *persist.JournalRepo implements it.
type Journal interface {
	Append(ctx context.Context, rows []persist.TransitionRow) error
}

// JournalSystem buffers registry transitions and writes them every
// interval ticks, or sooner once a batch fills up. Phase 4 (Persist).
type JournalSystem struct {
	journal   Journal
	log       *zap.Logger
	interval  int // flush every N ticks
	batchSize int
	tickCount int

	mu      sync.Mutex
	pending []persist.TransitionRow
}

func NewJournalSystem(journal Journal, log *zap.Logger, intervalTicks, batchSize int) *JournalSystem {
	if log == nil {
		log = zap.NewNop()
	}
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	if batchSize <= 0 {
		batchSize = 256
	}
	return &JournalSystem{
		journal:   journal,
		log:       log,
		interval:  intervalTicks,
		batchSize: batchSize,
	}
}

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhasePersist }

// Record queues t. Pass it to Registry.Observe.
func (s *JournalSystem) Record(t island.Transition) {
	s.mu.Lock()
	s.pending = append(s.pending, persist.RowFromTransition(t))
	s.mu.Unlock()
}

func (s *JournalSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval && s.Pending() < s.batchSize {
		return
	}
	s.tickCount = 0
	s.Flush()
}

// Pending returns the number of rows not yet written.
func (s *JournalSystem) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes everything buffered. Called on shutdown as well. Rows that
// fail to write stay queued, up to four batches; older ones are dropped.
func (s *JournalSystem) Flush() {
	s.mu.Lock()
	rows := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(rows) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.Append(ctx, rows); err != nil {
		s.log.Error("journal flush failed", zap.Int("rows", len(rows)), zap.Error(err))
		s.mu.Lock()
		s.pending = append(rows, s.pending...)
		if limit := 4 * s.batchSize; len(s.pending) > limit {
			dropped := len(s.pending) - limit
			s.pending = append([]persist.TransitionRow(nil), s.pending[dropped:]...)
			s.log.Warn("journal backlog trimmed", zap.Int("dropped", dropped))
		}
		s.mu.Unlock()
		return
	}
	s.log.Debug("journal flushed", zap.Int("rows", len(rows)))
}
