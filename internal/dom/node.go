package dom

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// Node is an Element backed by a node of a parsed Document.
type Node struct {
	n   *html.Node
	doc *Document
}

var (
	_ Element = (*Node)(nil)
	_ Finder  = (*Node)(nil)
)

func (e *Node) ID() string {
	return attr(e.n, "id")
}

// RefAttr names a descendant for island code that cannot rely on ids.
const RefAttr = "data-ref"

// Find returns the first descendant whose data-ref or id equals ref.
func (e *Node) Find(ref string) (Element, bool) {
	var found *html.Node
	for c := e.n.FirstChild; c != nil && found == nil; c = c.NextSibling {
		walk(c, func(n *html.Node) bool {
			if n.Type == html.ElementNode && (attr(n, RefAttr) == ref || attr(n, "id") == ref) {
				found = n
				return false
			}
			return true
		})
	}
	if found == nil {
		return nil, false
	}
	return e.doc.wrap(found), true
}

// Tag returns the element's tag name.
func (e *Node) Tag() string {
	return e.n.Data
}

func (e *Node) Attribute(name string) (string, bool) {
	return lookupAttr(e.n, name)
}

func (e *Node) SetAttribute(name, value string) {
	for i, a := range e.n.Attr {
		if a.Namespace == "" && a.Key == name {
			e.n.Attr[i].Val = value
			return
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
}

func (e *Node) RemoveAttribute(name string) {
	e.n.Attr = slices.DeleteFunc(e.n.Attr, func(a html.Attribute) bool {
		return a.Namespace == "" && a.Key == name
	})
}

// SetText replaces all children with a single text node.
func (e *Node) SetText(text string) {
	e.removeChildren()
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// Text returns the concatenated text content.
func (e *Node) Text() string {
	var sb strings.Builder
	walk(e.n, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		return true
	})
	return sb.String()
}

// Classes returns the class list in attribute order.
func (e *Node) Classes() []string {
	return strings.Fields(attr(e.n, "class"))
}

func (e *Node) HasClass(name string) bool {
	return slices.Contains(e.Classes(), name)
}

func (e *Node) SetClass(name string, on bool) {
	classes := e.Classes()
	has := slices.Contains(classes, name)
	switch {
	case on && !has:
		classes = append(classes, name)
	case !on && has:
		classes = slices.DeleteFunc(classes, func(c string) bool { return c == name })
	default:
		return
	}
	if len(classes) == 0 {
		e.RemoveAttribute("class")
		return
	}
	e.SetAttribute("class", strings.Join(classes, " "))
}

// Style returns one inline style property.
func (e *Node) Style(property string) string {
	for _, decl := range parseStyle(attr(e.n, "style")) {
		if decl[0] == property {
			return decl[1]
		}
	}
	return ""
}

// SetStyle sets an inline style property; an empty value removes it.
func (e *Node) SetStyle(property, value string) {
	decls := parseStyle(attr(e.n, "style"))
	found := false
	for i := range decls {
		if decls[i][0] == property {
			decls[i][1] = value
			found = true
		}
	}
	if !found {
		decls = append(decls, [2]string{property, value})
	}
	decls = slices.DeleteFunc(decls, func(d [2]string) bool { return d[1] == "" })
	if len(decls) == 0 {
		e.RemoveAttribute("style")
		return
	}
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d[0] + ": " + d[1]
	}
	e.SetAttribute("style", strings.Join(parts, "; "))
}

// SetInnerHTML replaces the children with the parsed fragment.
func (e *Node) SetInnerHTML(markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), e.n)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}
	e.removeChildren()
	for _, c := range nodes {
		e.n.AppendChild(c)
	}
	return nil
}

// InnerHTML serializes the children.
func (e *Node) InnerHTML() string {
	var sb strings.Builder
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return sb.String()
}

// HTML serializes the element itself.
func (e *Node) HTML() string {
	var sb strings.Builder
	_ = html.Render(&sb, e.n)
	return sb.String()
}

// On attaches a listener for event type typ and returns its remover.
func (e *Node) On(typ string, fn func(Event)) (off func()) {
	d := e.doc
	d.nextID++
	id := d.nextID
	byType := d.listeners[e.n]
	if byType == nil {
		byType = make(map[string][]listener)
		d.listeners[e.n] = byType
	}
	byType[typ] = append(byType[typ], listener{id: id, fn: fn})
	return func() {
		byType[typ] = slices.DeleteFunc(byType[typ], func(l listener) bool { return l.id == id })
	}
}

// Listeners returns how many listeners are attached for typ.
func (e *Node) Listeners(typ string) int {
	return len(e.doc.listeners[e.n][typ])
}

// Dispatch delivers an event of type typ to this node and then to each
// ancestor, innermost first.
func (e *Node) Dispatch(typ string) {
	ev := Event{Type: typ, Target: e}
	for n := e.n; n != nil; n = n.Parent {
		ls := slices.Clone(e.doc.listeners[n][typ])
		for _, l := range ls {
			l.fn(ev)
		}
	}
}

func (e *Node) removeChildren() {
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
}

func parseStyle(s string) [][2]string {
	var out [][2]string
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" {
			continue
		}
		out = append(out, [2]string{k, v})
	}
	return out
}
