package bridge

import (
	"fmt"

	"github.com/zenith/hydra/internal/dom"
	"github.com/zenith/hydra/internal/signal"
)

// BindText keeps el's text content equal to the formatted value of src.
func BindText[T any](s *Scope, bindingID string, el dom.Element, src signal.Readable[T]) error {
	return s.bind(bindingID, KindText, "", func() {
		el.SetText(format(src.Get()))
	})
}

// BindAttribute keeps one attribute of el in sync with src. A true bool
// sets the attribute empty; false or nil removes it.
func BindAttribute[T any](s *Scope, bindingID string, el dom.Element, name string, src signal.Readable[T]) error {
	return s.bind(bindingID, KindAttribute, name, func() {
		switch v := any(src.Get()).(type) {
		case nil:
			el.RemoveAttribute(name)
		case bool:
			if v {
				el.SetAttribute(name, "")
			} else {
				el.RemoveAttribute(name)
			}
		default:
			el.SetAttribute(name, format(v))
		}
	})
}

// BindClassList toggles the classes named in src. Classes dropped from the
// map since the previous value are switched off.
func BindClassList(s *Scope, bindingID string, el dom.Element, src signal.Readable[map[string]bool]) error {
	applied := map[string]bool{}
	return s.bind(bindingID, KindClassList, "class", func() {
		next := src.Get()
		for name := range applied {
			if !next[name] {
				el.SetClass(name, false)
				delete(applied, name)
			}
		}
		for name, on := range next {
			if on {
				el.SetClass(name, true)
				applied[name] = true
			}
		}
	})
}

// BindStyle keeps one inline style property of el in sync with src. An
// empty or nil value removes the property.
func BindStyle[T any](s *Scope, bindingID string, el dom.Element, property string, src signal.Readable[T]) error {
	return s.bind(bindingID, KindStyle, property, func() {
		el.SetStyle(property, format(src.Get()))
	})
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
