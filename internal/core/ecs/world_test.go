package ecs

import (
	"errors"
	"testing"
	"time"
)

type compA struct{ val int }
type compB struct{ name string }

func TestCreateEntity(t *testing.T) {
	w := NewWorld()
	id := w.CreateEntity()
	if id.IsZero() {
		t.Fatal("expected non-zero entity ID")
	}
	if !w.Alive(id) {
		t.Fatal("expected entity to be alive after creation")
	}
	if other := w.CreateEntity(); other == id {
		t.Fatal("expected distinct ids for live entities")
	}
}

func TestAddAndGetComponent(t *testing.T) {
	w := NewWorld()
	id := w.CreateEntity()
	if err := Add(w, id, compA{val: 42}); err != nil {
		t.Fatalf("add: %v", err)
	}

	c, ok, err := Get[compA](w, id)
	if err != nil || !ok {
		t.Fatalf("expected component, ok=%v err=%v", ok, err)
	}
	if c.val != 42 {
		t.Fatalf("expected val=42, got %d", c.val)
	}
}

func TestAddOverwritesSameType(t *testing.T) {
	w := NewWorld()
	id := w.CreateEntity()
	_ = Add(w, id, compA{val: 1})
	_ = Add(w, id, compA{val: 2})

	c, _, _ := Get[compA](w, id)
	if c.val != 2 {
		t.Fatalf("expected overwritten val=2, got %d", c.val)
	}
	if n := StoreOf[compA](w).Len(); n != 1 {
		t.Fatalf("expected a single compA, got %d", n)
	}
}

func TestDestroyEntityRemovesComponents(t *testing.T) {
	w := NewWorld()
	id := w.CreateEntity()
	_ = Add(w, id, compA{val: 7})
	_ = Add(w, id, compB{name: "x"})

	if err := w.DestroyEntity(id); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if w.Alive(id) {
		t.Fatal("entity should not be alive after DestroyEntity")
	}
	if Has[compA](w, id) || Has[compB](w, id) {
		t.Fatal("components should be gone after DestroyEntity")
	}
	if StoreOf[compA](w).Len() != 0 || StoreOf[compB](w).Len() != 0 {
		t.Fatal("stores should be empty after DestroyEntity")
	}
}

func TestDeadEntityOperationsReportNotFound(t *testing.T) {
	w := NewWorld()
	id := w.CreateEntity()
	_ = w.DestroyEntity(id)

	if err := Add(w, id, compA{}); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("add: expected ErrEntityNotFound, got %v", err)
	}
	if _, _, err := Get[compA](w, id); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("get: expected ErrEntityNotFound, got %v", err)
	}
	if err := Remove[compA](w, id); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("remove: expected ErrEntityNotFound, got %v", err)
	}
	if err := w.DestroyEntity(id); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("destroy: expected ErrEntityNotFound, got %v", err)
	}
}

func TestReusedIndexDoesNotAlias(t *testing.T) {
	w := NewWorld()
	old := w.CreateEntity()
	_ = Add(w, old, compA{val: 1})
	_ = w.DestroyEntity(old)

	fresh := w.CreateEntity()
	if fresh.Index() != old.Index() {
		t.Fatalf("expected index reuse, got %d vs %d", fresh.Index(), old.Index())
	}
	if fresh == old {
		t.Fatal("reused entity must carry a new generation")
	}
	if w.Alive(old) {
		t.Fatal("stale id must stay dead after index reuse")
	}
	if Has[compA](w, fresh) {
		t.Fatal("fresh entity inherited a component")
	}
}

func TestQueryReturnsCreationOrder(t *testing.T) {
	w := NewWorld()
	a := Register[compA](w)
	b := Register[compB](w)

	e1 := w.CreateEntity()
	_ = Add(w, e1, compA{})
	_ = Add(w, e1, compB{})
	e2 := w.CreateEntity()
	_ = Add(w, e2, compA{})
	e3 := w.CreateEntity()
	_ = Add(w, e3, compA{})
	_ = Add(w, e3, compB{})

	got := w.Query(a, b)
	if len(got) != 2 || got[0] != e1 || got[1] != e3 {
		t.Fatalf("expected [%s %s], got %v", e1, e3, got)
	}
}

func TestQueryOrderAfterIndexReuse(t *testing.T) {
	w := NewWorld()
	a := Register[compA](w)

	victim := w.CreateEntity()
	first := w.CreateEntity()
	_ = w.DestroyEntity(victim)
	_ = Add(w, first, compA{})

	later := w.CreateEntity() // reuses victim's lower index
	_ = Add(w, later, compA{})

	got := w.Query(a)
	if len(got) != 2 || got[0] != first || got[1] != later {
		t.Fatalf("expected [%s %s], got %v", first, later, got)
	}
}

func TestQueryExcludesDeadEntities(t *testing.T) {
	w := NewWorld()
	a := Register[compA](w)
	alive := w.CreateEntity()
	_ = Add(w, alive, compA{})

	dead := w.CreateEntity()
	_ = Add(w, dead, compA{})
	w.MarkForDestruction(dead)
	if n := w.FlushDestroyQueue(); n != 1 {
		t.Fatalf("expected 1 destroyed entity, got %d", n)
	}

	results := w.Query(a)
	if len(results) != 1 || results[0] != alive {
		t.Fatalf("expected only the alive entity; got %v", results)
	}
}

func TestRemoveNonexistentIsNoop(t *testing.T) {
	w := NewWorld()
	id := w.CreateEntity()
	if err := Remove[compB](w, id); err != nil {
		t.Fatalf("remove of absent component: %v", err)
	}
}

func TestEach2VisitsMatchingEntities(t *testing.T) {
	w := NewWorld()
	e1 := w.CreateEntity()
	_ = Add(w, e1, compA{val: 1})
	_ = Add(w, e1, compB{name: "one"})
	e2 := w.CreateEntity()
	_ = Add(w, e2, compA{val: 2})

	var names []string
	Each2(w, func(_ EntityID, a *compA, b *compB) {
		names = append(names, b.name)
		a.val *= 10
	})
	if len(names) != 1 || names[0] != "one" {
		t.Fatalf("expected [one], got %v", names)
	}
	c, _, _ := Get[compA](w, e1)
	if c.val != 10 {
		t.Fatalf("expected in-place mutation, got %d", c.val)
	}
}

type recordingSystem struct {
	name  string
	log   *[]string
	world *World
}

func (s *recordingSystem) Update(time.Duration) { *s.log = append(*s.log, s.name) }
func (s *recordingSystem) AttachWorld(w *World) { s.world = w }

func TestSystemsTickInRegistrationOrder(t *testing.T) {
	w := NewWorld()
	var log []string
	first := &recordingSystem{name: "first", log: &log}
	second := &recordingSystem{name: "second", log: &log}

	w.AddSystem(first)
	w.AddSystem(second)
	w.AddSystem(first)

	if first.world != w {
		t.Fatal("expected world back-reference")
	}
	w.Tick(16 * time.Millisecond)
	if len(log) != 2 || log[0] != "first" || log[1] != "second" {
		t.Fatalf("expected [first second], got %v", log)
	}
}

func TestRetireStripsNowAndDestroysOnFlush(t *testing.T) {
	w := NewWorld()
	id := w.CreateEntity()
	_ = Add(w, id, compA{})
	_ = Add(w, id, compB{})

	if err := w.Retire(id); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if Has[compA](w, id) || Has[compB](w, id) {
		t.Fatal("components should be gone right away")
	}
	if !w.Alive(id) || w.Doomed() != 1 {
		t.Fatalf("id should wait for the flush, alive=%v doomed=%d", w.Alive(id), w.Doomed())
	}
	if n := w.FlushDestroyQueue(); n != 1 || w.Alive(id) || w.Doomed() != 0 {
		t.Fatalf("expected the id reclaimed, n=%d", n)
	}
	if err := w.Retire(id); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}
