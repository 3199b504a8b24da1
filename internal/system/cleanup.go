package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/zenith/hydra/internal/core/ecs"
	coresys "github.com/zenith/hydra/internal/core/system"
)

// CleanupSystem reclaims the entities hydra contexts retired during the
// tick: bindings, owned nodes and the contexts themselves. Phase 5
// (Cleanup).
type CleanupSystem struct {
	world     *ecs.World
	log       *zap.Logger
	reclaimed int
}

func NewCleanupSystem(world *ecs.World, log *zap.Logger) *CleanupSystem {
	if log == nil {
		log = zap.NewNop()
	}
	return &CleanupSystem{world: world, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	if s.world.Doomed() == 0 {
		return
	}
	n := s.world.FlushDestroyQueue()
	s.reclaimed += n
	s.log.Debug("retired entities reclaimed",
		zap.Int("count", n),
		zap.Int("live", s.world.Len()),
	)
}

// Reclaimed returns the number of entities destroyed so far.
func (s *CleanupSystem) Reclaimed() int { return s.reclaimed }
