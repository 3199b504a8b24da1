package ecs

import (
	"cmp"
	"reflect"
	"slices"
)

// Register returns the component tag for T, creating its store on first use.
func Register[T any](w *World) ComponentType {
	_, ct := storeFor[T](w)
	return ct
}

// StoreOf returns the typed store for T, creating it on first use.
func StoreOf[T any](w *World) *Store[T] {
	s, _ := storeFor[T](w)
	return s
}

func storeFor[T any](w *World) (*Store[T], ComponentType) {
	t := reflect.TypeFor[T]()
	if ct, ok := w.registry.Lookup(t); ok {
		return w.registry.Store(ct).(*Store[T]), ct
	}
	s := NewStore[T]()
	return s, w.registry.Register(t, s)
}

// Add attaches c to id, overwriting an existing component of the same type.
func Add[T any](w *World, id EntityID, c T) error {
	if !w.pool.Alive(id) {
		return notFound(id)
	}
	StoreOf[T](w).Set(id, &c)
	return nil
}

// Get returns the component of type T held by id. The bool is false when
// the entity is alive but has no such component.
func Get[T any](w *World, id EntityID) (*T, bool, error) {
	if !w.pool.Alive(id) {
		return nil, false, notFound(id)
	}
	c, ok := StoreOf[T](w).Get(id)
	return c, ok, nil
}

// Has reports whether id is alive and holds a component of type T.
func Has[T any](w *World, id EntityID) bool {
	if !w.pool.Alive(id) {
		return false
	}
	return StoreOf[T](w).Has(id)
}

// Remove detaches the T component from id. Removing an absent component
// from a live entity is a no-op.
func Remove[T any](w *World, id EntityID) error {
	if !w.pool.Alive(id) {
		return notFound(id)
	}
	StoreOf[T](w).Remove(id)
	return nil
}

// HasType is the tag-based form of Has.
func (w *World) HasType(id EntityID, ct ComponentType) bool {
	if !w.pool.Alive(id) {
		return false
	}
	s := w.registry.Store(ct)
	return s != nil && s.Has(id)
}

// Query returns the live entities holding every listed component type, in
// creation order. It scans the smallest store and checks the others.
func (w *World) Query(types ...ComponentType) []EntityID {
	if len(types) == 0 {
		return nil
	}
	stores := make([]Removable, 0, len(types))
	for _, ct := range types {
		s := w.registry.Store(ct)
		if s == nil || s.Len() == 0 {
			return nil
		}
		stores = append(stores, s)
	}
	smallest := 0
	for i, s := range stores {
		if s.Len() < stores[smallest].Len() {
			smallest = i
		}
	}

	var result []EntityID
	for _, id := range stores[smallest].IDs() {
		if !w.pool.Alive(id) {
			continue
		}
		match := true
		for i, s := range stores {
			if i != smallest && !s.Has(id) {
				match = false
				break
			}
		}
		if match {
			result = append(result, id)
		}
	}
	slices.SortFunc(result, func(a, b EntityID) int {
		return cmp.Compare(w.pool.Seq(a), w.pool.Seq(b))
	})
	return result
}

// Each calls fn for every entity holding T, in creation order.
func Each[T any](w *World, fn func(EntityID, *T)) {
	s := StoreOf[T](w)
	for _, id := range w.Query(Register[T](w)) {
		c, _ := s.Get(id)
		fn(id, c)
	}
}

// Each2 iterates over entities that have both component A and B, in
// creation order.
func Each2[A, B any](w *World, fn func(EntityID, *A, *B)) {
	sa, sb := StoreOf[A](w), StoreOf[B](w)
	for _, id := range w.Query(Register[A](w), Register[B](w)) {
		a, _ := sa.Get(id)
		b, _ := sb.Get(id)
		fn(id, a, b)
	}
}
