package ecs

import "reflect"

// ComponentType is the tag a World hands out for each registered Go type.
type ComponentType uint16

// Registry tracks all component stores and supports bulk cleanup on entity destroy.
type Registry struct {
	stores []Removable
	types  map[reflect.Type]ComponentType
	names  []string
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make([]Removable, 0, 16),
		types:  make(map[reflect.Type]ComponentType, 16),
	}
}

// Register adds a component store for t and returns its tag.
func (r *Registry) Register(t reflect.Type, store Removable) ComponentType {
	if ct, ok := r.types[t]; ok {
		return ct
	}
	ct := ComponentType(len(r.stores))
	r.stores = append(r.stores, store)
	r.names = append(r.names, t.String())
	r.types[t] = ct
	return ct
}

// Lookup returns the tag previously issued for t.
func (r *Registry) Lookup(t reflect.Type) (ComponentType, bool) {
	ct, ok := r.types[t]
	return ct, ok
}

// Store returns the store behind ct, or nil for an unknown tag.
func (r *Registry) Store(ct ComponentType) Removable {
	if int(ct) >= len(r.stores) {
		return nil
	}
	return r.stores[ct]
}

// Name returns the Go type name registered under ct.
func (r *Registry) Name(ct ComponentType) string {
	if int(ct) >= len(r.names) {
		return "unknown"
	}
	return r.names[ct]
}

// RemoveAll clears the given entity from every registered component store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.Remove(id)
	}
}
