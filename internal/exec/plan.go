// Package exec holds the three island execution targets: local Lua
// scripts, a remote sandbox reached over a websocket, and an edge worker
// reached over HTTP.
//
// Remote and edge islands do not run code in-process. They answer an
// activation Request with a Plan: initial signal values plus the bindings
// that connect those signals to the island's markup. The plan is applied
// on the loop goroutine through the island's hydra context.
package exec

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/zenith/hydra/internal/bridge"
	"github.com/zenith/hydra/internal/dom"
	"github.com/zenith/hydra/internal/island"
	"github.com/zenith/hydra/internal/signal"
)

// Request is sent to remote and edge targets.
type Request struct {
	Island string         `json:"island"`
	Entry  string         `json:"entry"`
	Data   map[string]any `json:"data,omitempty"`
}

func newRequest(d island.Descriptor, hc island.Context) Request {
	return Request{Island: d.ID, Entry: d.Entry, Data: hc.Data}
}

// Response answers a Request.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Plan
}

func (r Response) err() error {
	if r.OK {
		return nil
	}
	msg := r.Error
	if msg == "" {
		msg = "target refused activation"
	}
	return errors.New(msg)
}

// Plan describes how to bring an island to life.
type Plan struct {
	HTML     string         `json:"html,omitempty"` // replaces the element content first
	Signals  map[string]any `json:"signals,omitempty"`
	Bindings []Binding      `json:"bindings,omitempty"`
}

// Binding kinds.
const (
	BindText  = "text"
	BindAttr  = "attr"
	BindClass = "class"
	BindStyle = "style"
)

// Binding connects one named signal to one DOM target below the island
// element. An empty Ref targets the island element itself.
type Binding struct {
	Kind   string `json:"kind"`
	Signal string `json:"signal"`
	Ref    string `json:"ref,omitempty"`
	Name   string `json:"name,omitempty"` // attribute or style property
}

// Update is a signal write pushed by a remote target after activation.
type Update struct {
	Signal string `json:"signal"`
	Value  any    `json:"value"`
}

// apply runs on the loop.
func (p Plan) apply(el dom.Element, scope *bridge.Scope) error {
	if p.HTML != "" {
		if err := el.SetInnerHTML(p.HTML); err != nil {
			return fmt.Errorf("apply markup: %w", err)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(p.Signals)) {
		scope.Signal(name, p.Signals[name])
	}
	for _, b := range p.Bindings {
		sig, ok := scope.Lookup(b.Signal)
		if !ok {
			return fmt.Errorf("binding %s: unknown signal %q", b.Kind, b.Signal)
		}
		target, err := resolve(el, b.Ref)
		if err != nil {
			return err
		}
		if err := bindSignal(scope, b, target, sig); err != nil {
			return err
		}
	}
	return nil
}

func bindSignal(scope *bridge.Scope, b Binding, el dom.Element, sig *signal.Signal[any]) error {
	id := bindingID(scope.ID(), b)
	switch b.Kind {
	case BindText:
		return bridge.BindText(scope, id, el, sig)
	case BindAttr:
		return bridge.BindAttribute(scope, id, el, b.Name, sig)
	case BindStyle:
		return bridge.BindStyle(scope, id, el, b.Name, sig)
	case BindClass:
		classes := signal.NewComputedFunc(scope.Runtime(), func() map[string]bool {
			return classSet(sig.Get())
		}, func(x, y map[string]bool) bool { return maps.Equal(x, y) })
		scope.Adopt(classes)
		return bridge.BindClassList(scope, id, el, classes)
	}
	return fmt.Errorf("unknown binding kind %q", b.Kind)
}

func bindingID(context string, b Binding) string {
	return strings.Join([]string{context, b.Kind, b.Ref, b.Name, b.Signal}, ":")
}

func resolve(el dom.Element, ref string) (dom.Element, error) {
	if ref == "" {
		return el, nil
	}
	f, ok := el.(dom.Finder)
	if !ok {
		return nil, fmt.Errorf("element %q cannot look up %q", el.ID(), ref)
	}
	target, ok := f.Find(ref)
	if !ok {
		return nil, fmt.Errorf("no element %q inside island", ref)
	}
	return target, nil
}

// classSet reads a class list out of a space separated string, a list of
// names or a name -> bool object.
func classSet(v any) map[string]bool {
	out := map[string]bool{}
	switch x := v.(type) {
	case string:
		for _, name := range strings.Fields(x) {
			out[name] = true
		}
	case []any:
		for _, item := range x {
			if name, ok := item.(string); ok && name != "" {
				out[name] = true
			}
		}
	case map[string]any:
		for name, on := range x {
			if b, ok := on.(bool); ok && b {
				out[name] = true
			}
		}
	case map[string]bool:
		for name, on := range x {
			if on {
				out[name] = true
			}
		}
	}
	return out
}
