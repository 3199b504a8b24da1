// Package host is a headless island.Host: frames and idle periods come
// from the tick loop, visibility from explicit Reveal calls and
// interaction from element listeners.
package host

import (
	"slices"

	"go.uber.org/zap"

	"github.com/zenith/hydra/internal/dom"
)

// InteractionEvents are the event types that count as a first interaction.
var InteractionEvents = []string{"click", "focusin", "keydown", "pointerdown", "touchstart"}

type callback struct {
	fn   func()
	live bool
}

type watch struct {
	el dom.Element
	cb *callback
}

type listenable interface {
	On(typ string, fn func(dom.Event)) (off func())
}

// Headless is not safe for concurrent use; everything runs on the loop.
type Headless struct {
	frames   []*callback
	idles    []*callback
	visible  []watch
	revealed map[dom.Element]bool
	log      *zap.Logger
}

func New(log *zap.Logger) *Headless {
	if log == nil {
		log = zap.NewNop()
	}
	return &Headless{revealed: make(map[dom.Element]bool), log: log}
}

func (h *Headless) RequestFrame(fn func()) func() {
	cb := &callback{fn: fn, live: true}
	h.frames = append(h.frames, cb)
	return func() { cb.live = false }
}

func (h *Headless) RequestIdle(fn func()) func() {
	cb := &callback{fn: fn, live: true}
	h.idles = append(h.idles, cb)
	return func() { cb.live = false }
}

// ObserveVisible fires fn once el is revealed. An element revealed earlier
// fires on the next frame.
func (h *Headless) ObserveVisible(el dom.Element, fn func()) func() {
	if h.revealed[el] {
		return h.RequestFrame(fn)
	}
	cb := &callback{fn: fn, live: true}
	h.visible = append(h.visible, watch{el: el, cb: cb})
	return func() { cb.live = false }
}

// OnInteraction fires fn on the first interaction event dispatched on el
// or its descendants.
func (h *Headless) OnInteraction(el dom.Element, fn func()) func() {
	src, ok := el.(listenable)
	if !ok {
		h.log.Warn("element cannot observe interaction", zap.String("element", el.ID()))
		return func() {}
	}
	var offs []func()
	cancel := func() {
		for _, off := range offs {
			off()
		}
		offs = nil
	}
	for _, typ := range InteractionEvents {
		offs = append(offs, src.On(typ, func(dom.Event) {
			cancel()
			fn()
		}))
	}
	return cancel
}

// Reveal marks el as inside the viewport and fires its observers.
func (h *Headless) Reveal(el dom.Element) int {
	h.revealed[el] = true
	var fire []*callback
	h.visible = slices.DeleteFunc(h.visible, func(w watch) bool {
		if w.el != el {
			return !w.cb.live
		}
		if w.cb.live {
			fire = append(fire, w.cb)
		}
		return true
	})
	return run(fire)
}

// RevealAll reveals every observed element.
func (h *Headless) RevealAll() int {
	n := 0
	for len(h.visible) > 0 {
		n += h.Reveal(h.visible[0].el)
	}
	return n
}

// RunFrame runs the frame callbacks queued before the call. Callbacks
// requested while it runs wait for the next frame.
func (h *Headless) RunFrame() int {
	batch := h.frames
	h.frames = nil
	return run(batch)
}

// RunIdle runs up to max idle callbacks (all when max <= 0).
func (h *Headless) RunIdle(max int) int {
	n := 0
	for len(h.idles) > 0 && (max <= 0 || n < max) {
		cb := h.idles[0]
		h.idles = h.idles[1:]
		if cb.live {
			cb.live = false
			cb.fn()
			n++
		}
	}
	return n
}

// Pending reports queued frame and idle callbacks, cancelled ones included.
func (h *Headless) Pending() (frames, idles int) {
	return len(h.frames), len(h.idles)
}

func run(batch []*callback) int {
	n := 0
	for _, cb := range batch {
		if cb.live {
			cb.live = false
			cb.fn()
			n++
		}
	}
	return n
}
