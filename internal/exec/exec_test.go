package exec

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/zenith/hydra/internal/bridge"
	"github.com/zenith/hydra/internal/core/ecs"
	"github.com/zenith/hydra/internal/core/mailbox"
	"github.com/zenith/hydra/internal/dom"
	"github.com/zenith/hydra/internal/island"
	"github.com/zenith/hydra/internal/signal"
)

// harness plays the loop: it owns the bridge and drains the mailbox while
// a target activates on another goroutine.
type harness struct {
	br  *bridge.Bridge
	doc *dom.Document
	mb  *mailbox.Mailbox
}

func newHarness(t *testing.T, markup string) *harness {
	t.Helper()
	doc, err := dom.Parse(markup)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return &harness{
		br:  bridge.New(signal.NewRuntime(), ecs.NewWorld(), zaptest.NewLogger(t)),
		doc: doc,
		mb:  mailbox.New(16),
	}
}

func (h *harness) descriptor(id string, exec island.ExecType, data map[string]any) island.Descriptor {
	return island.Descriptor{ID: id, Entry: id, ExecType: exec, Data: data, Element: h.doc.ByID(id)}
}

func (h *harness) activate(t *testing.T, target island.Target, d island.Descriptor) error {
	t.Helper()
	scope, err := h.br.CreateContext(d.ID)
	if err != nil {
		t.Fatalf("create context: %v", err)
	}
	hc := island.NewContext(d.ID, scope, d.Data, h.mb, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- target.Activate(ctx, d.Element, d, hc) }()
	for {
		select {
		case err := <-done:
			h.mb.Drain(0)
			return err
		case <-ctx.Done():
			t.Fatal("activation did not finish")
		default:
			if h.mb.Drain(0) == 0 {
				time.Sleep(time.Millisecond)
			}
		}
	}
}

// pumpUntil drains the mailbox until cond holds.
func (h *harness) pumpUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		if h.mb.Drain(0) == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}
