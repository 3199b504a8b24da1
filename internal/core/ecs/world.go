package ecs

import (
	"errors"
	"fmt"
	"time"

	"github.com/zenith/hydra/internal/core/system"
)

// ErrEntityNotFound is returned for operations on unknown or destroyed entities.
var ErrEntityNotFound = errors.New("ecs: entity not found")

// WorldAware systems receive a back-reference to the World they are added to.
type WorldAware interface {
	AttachWorld(w *World)
}

// World is the top-level ECS container. It owns the entity pool, the component
// registry, the system runner, and a deferred destruction queue flushed by
// the cleanup system each tick.
type World struct {
	pool         *EntityPool
	registry     *Registry
	runner       *system.Runner
	destroyQueue []EntityID
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		registry:     NewRegistry(),
		runner:       system.NewRunner(),
		destroyQueue: make([]EntityID, 0, 64),
	}
}

func (w *World) Pool() *EntityPool      { return w.pool }
func (w *World) Registry() *Registry    { return w.registry }
func (w *World) Runner() *system.Runner { return w.runner }

func (w *World) CreateEntity() EntityID {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return w.pool.Len()
}

// DestroyEntity removes every component of id and invalidates it.
func (w *World) DestroyEntity(id EntityID) error {
	if !w.pool.Alive(id) {
		return notFound(id)
	}
	w.registry.RemoveAll(id)
	w.pool.Destroy(id)
	return nil
}

// MarkForDestruction queues an entity for end-of-tick cleanup.
func (w *World) MarkForDestruction(id EntityID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// Retire strips every component of id now and queues the id itself for
// end-of-tick cleanup, so queries stop seeing it immediately while the
// slot is reclaimed with the rest of the tick's garbage.
func (w *World) Retire(id EntityID) error {
	if !w.pool.Alive(id) {
		return notFound(id)
	}
	w.registry.RemoveAll(id)
	w.MarkForDestruction(id)
	return nil
}

// Doomed returns how many ids wait in the destroy queue.
func (w *World) Doomed() int {
	return len(w.destroyQueue)
}

// FlushDestroyQueue destroys all queued entities and clears their components.
// Entities that died in the meantime are skipped.
func (w *World) FlushDestroyQueue() int {
	n := 0
	for _, id := range w.destroyQueue {
		if w.DestroyEntity(id) == nil {
			n++
		}
	}
	w.destroyQueue = w.destroyQueue[:0]
	return n
}

// AddSystem registers s with the world's runner and hands it a World
// back-reference. Adding the same system again does nothing.
func (w *World) AddSystem(s system.System) {
	if !w.runner.Register(s) {
		return
	}
	if aware, ok := s.(WorldAware); ok {
		aware.AttachWorld(w)
	}
}

// Tick runs every registered system once.
func (w *World) Tick(dt time.Duration) {
	w.runner.Tick(dt)
}

func notFound(id EntityID) error {
	return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
}
