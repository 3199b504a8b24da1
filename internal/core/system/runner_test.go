package system

import (
	"testing"
	"time"
)

type phased struct {
	phase Phase
	name  string
	log   *[]string
}

func (p *phased) Phase() Phase         { return p.phase }
func (p *phased) Update(time.Duration) { *p.log = append(*p.log, p.name) }

func TestRunnerOrdersByPhaseThenRegistration(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(&phased{phase: PhaseCleanup, name: "cleanup", log: &log})
	r.Register(&phased{phase: PhaseUpdate, name: "update-1", log: &log})
	r.Register(&phased{phase: PhaseInput, name: "input", log: &log})
	r.Register(&phased{phase: PhaseUpdate, name: "update-2", log: &log})

	r.Tick(time.Millisecond)
	want := []string{"input", "update-1", "update-2", "cleanup"}
	if len(log) != len(want) {
		t.Fatalf("expected %v, got %v", want, log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, log)
		}
	}
}

func TestRunnerRegisterIsIdempotent(t *testing.T) {
	var log []string
	r := NewRunner()
	s := &phased{phase: PhaseUpdate, name: "s", log: &log}
	if !r.Register(s) {
		t.Fatal("first registration should succeed")
	}
	if r.Register(s) {
		t.Fatal("duplicate registration should be rejected")
	}
	r.Tick(time.Millisecond)
	if len(log) != 1 {
		t.Fatalf("expected one update, got %d", len(log))
	}
}

func TestRunnerTickPhase(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(&phased{phase: PhaseInput, name: "input", log: &log})
	r.Register(Func(func(time.Duration) { log = append(log, "func") }))

	r.TickPhase(PhaseInput, time.Millisecond)
	if len(log) != 1 || log[0] != "input" {
		t.Fatalf("expected only input, got %v", log)
	}
	if PhaseOf(Func(nil)) != PhaseUpdate {
		t.Fatal("unphased systems default to PhaseUpdate")
	}
}
