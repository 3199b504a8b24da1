package exec

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/zenith/hydra/internal/bridge"
	"github.com/zenith/hydra/internal/dom"
	"github.com/zenith/hydra/internal/island"
	"github.com/zenith/hydra/internal/signal"
)

// LocalTarget runs island entry points as global Lua functions.
//
// The VM is touched only on the loop goroutine: Activate hands the whole
// call to the island's mailbox, and event handlers registered from Lua fire
// from element dispatch, which also happens on the loop.
type LocalTarget struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewLocalTarget creates a Lua VM and loads every .lua file under
// scriptsDir. A missing directory loads nothing.
func NewLocalTarget(scriptsDir string, log *zap.Logger) (*LocalTarget, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	t := &LocalTarget{vm: vm, log: log}

	if scriptsDir != "" {
		if err := t.loadDir(scriptsDir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load island scripts: %w", err)
		}
	}
	return t, nil
}

func (t *LocalTarget) loadDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".lua" {
			return nil
		}
		if err := t.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		t.log.Debug("loaded lua script", zap.String("file", path))
		return nil
	})
}

// LoadString evaluates a chunk of Lua, typically island definitions.
// Loop goroutine only.
func (t *LocalTarget) LoadString(src string) error {
	return t.vm.DoString(src)
}

func (t *LocalTarget) Close() {
	t.vm.Close()
}

// Activate calls the Lua function named by the descriptor's entry with a
// hydra API table and the island data.
func (t *LocalTarget) Activate(ctx context.Context, el dom.Element, d island.Descriptor, hc island.Context) error {
	return hc.Do(ctx, func() error {
		return t.run(el, d, hc)
	})
}

func (t *LocalTarget) run(el dom.Element, d island.Descriptor, hc island.Context) error {
	fn := t.vm.GetGlobal(d.Entry)
	if fn.Type() != lua.LTFunction {
		return fmt.Errorf("lua entry %q is not defined", d.Entry)
	}
	api := t.api(el, hc)
	if err := t.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, api, toLua(t.vm, hc.Data)); err != nil {
		return fmt.Errorf("lua %s: %w", d.Entry, err)
	}
	return nil
}

// api builds the hydra table handed to one island. Every function closes
// over that island's scope and element.
func (t *LocalTarget) api(el dom.Element, hc island.Context) *lua.LTable {
	scope := hc.Scope
	vm := t.vm
	api := vm.NewTable()
	api.RawSetString("island", lua.LString(hc.ID))
	api.RawSetString("data", toLua(vm, hc.Data))

	lookup := func(L *lua.LState, name string) *signal.Signal[any] {
		sig, ok := scope.Lookup(name)
		if !ok {
			L.RaiseError("unknown signal %q", name)
		}
		return sig
	}
	bind := func(kind string, withName bool) lua.LGFunction {
		return func(L *lua.LState) int {
			b := Binding{Kind: kind, Signal: L.CheckString(1)}
			refArg := 2
			if withName {
				b.Name = L.CheckString(2)
				refArg = 3
			}
			b.Ref = L.OptString(refArg, "")
			sig := lookup(L, b.Signal)
			target, err := resolve(el, b.Ref)
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			if err := bindSignal(scope, b, target, sig); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		}
	}

	vm.SetFuncs(api, map[string]lua.LGFunction{
		"signal": func(L *lua.LState) int {
			name := L.CheckString(1)
			scope.Signal(name, fromLua(L.Get(2)))
			return 0
		},
		"get": func(L *lua.LState) int {
			sig := lookup(L, L.CheckString(1))
			L.Push(toLua(L, sig.Get()))
			return 1
		},
		"set": func(L *lua.LState) int {
			name := L.CheckString(1)
			if err := lookup(L, name).Set(fromLua(L.Get(2))); err != nil {
				L.RaiseError("set %s: %s", name, err.Error())
			}
			return 0
		},
		"bind_text":  bind(BindText, false),
		"bind_class": bind(BindClass, false),
		"bind_attr":  bind(BindAttr, true),
		"bind_style": bind(BindStyle, true),
		"on": func(L *lua.LState) int {
			typ := L.CheckString(1)
			handler := L.CheckFunction(2)
			target, err := resolve(el, L.OptString(3, ""))
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			src, ok := target.(listenable)
			if !ok {
				L.RaiseError("element does not accept listeners")
			}
			off := src.On(typ, func(ev dom.Event) {
				if err := vm.CallByParam(lua.P{Fn: handler, NRet: 0, Protect: true}, lua.LString(ev.Type)); err != nil {
					hc.Log.Warn("lua event handler failed",
						zap.String("event", ev.Type),
						zap.Error(err),
					)
				}
			})
			scope.Adopt(disposeFunc(off))
			return 0
		},
	})
	return api
}

type listenable interface {
	On(typ string, fn func(dom.Event)) (off func())
}

type disposeFunc func()

func (f disposeFunc) Dispose() { f() }

var _ bridge.Disposer = disposeFunc(nil)

func fromLua(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return float64(x)
	case lua.LString:
		return string(x)
	case *lua.LTable:
		if x.MaxN() > 0 {
			out := make([]any, 0, x.MaxN())
			for i := 1; i <= x.MaxN(); i++ {
				out = append(out, fromLua(x.RawGetInt(i)))
			}
			return out
		}
		out := map[string]any{}
		x.ForEach(func(k, val lua.LValue) {
			out[k.String()] = fromLua(val)
		})
		return out
	}
	return nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case float64:
		return lua.LNumber(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case []any:
		t := L.NewTable()
		for _, item := range x {
			t.Append(toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range x {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	}
	return lua.LString(fmt.Sprint(v))
}
