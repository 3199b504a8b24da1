// Package dom is the mutation surface islands and bindings write into.
//
// Element is what the bridge and the orchestrator depend on. Document and
// Node are the in-process implementation: a tree parsed from server-rendered
// markup with golang.org/x/net/html, mutated in place and serialized back.
package dom

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element is a single mutable DOM node.
type Element interface {
	ID() string
	Attribute(name string) (string, bool)
	SetText(text string)
	SetAttribute(name, value string)
	RemoveAttribute(name string)
	SetClass(name string, on bool)
	SetStyle(property, value string)
	SetInnerHTML(markup string) error
}

// Finder is implemented by elements that can look up their descendants.
type Finder interface {
	Find(ref string) (Element, bool)
}

// Event is an interaction delivered to element listeners.
type Event struct {
	Type   string
	Target *Node
}

type listener struct {
	id int
	fn func(Event)
}

// Document owns a parsed tree and the listeners attached to its nodes.
type Document struct {
	root      *html.Node
	nodes     map[*html.Node]*Node
	listeners map[*html.Node]map[string][]listener
	nextID    int
}

// Parse builds a Document from a full or partial HTML document.
func Parse(markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{
		root:      root,
		nodes:     make(map[*html.Node]*Node),
		listeners: make(map[*html.Node]map[string][]listener),
	}, nil
}

// NewDocument returns an empty document with a body.
func NewDocument() *Document {
	d, _ := Parse("<!DOCTYPE html><html><head></head><body></body></html>")
	return d
}

func (d *Document) wrap(n *html.Node) *Node {
	if n == nil {
		return nil
	}
	if w, ok := d.nodes[n]; ok {
		return w
	}
	w := &Node{n: n, doc: d}
	d.nodes[n] = w
	return w
}

// Body returns the <body> element.
func (d *Document) Body() *Node {
	var body *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return false
		}
		return true
	})
	return d.wrap(body)
}

// CreateElement appends a new element with the given tag and attributes
// under parent.
func (d *Document) CreateElement(parent *Node, tag string, attrs map[string]string) *Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: attrs[k]})
	}
	parent.n.AppendChild(n)
	return d.wrap(n)
}

// ByID returns the element whose id attribute equals id.
func (d *Document) ByID(id string) *Node {
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return d.wrap(found)
}

// WithAttribute returns every element carrying the attribute, in document
// order.
func (d *Document) WithAttribute(name string) []*Node {
	var out []*Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if _, ok := lookupAttr(n, name); ok {
				out = append(out, d.wrap(n))
			}
		}
		return true
	})
	return out
}

// Island returns the placeholder for the island with the given id.
func (d *Document) Island(id string) *Node {
	for _, n := range d.WithAttribute(IslandAttr) {
		if v, _ := n.Attribute(IslandAttr); v == id {
			return n
		}
	}
	return nil
}

// HTML serializes the whole document.
func (d *Document) HTML() string {
	var sb strings.Builder
	_ = html.Render(&sb, d.root)
	return sb.String()
}

// IslandAttr marks an island placeholder element in server-rendered markup.
const IslandAttr = "data-island"

func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func lookupAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, name string) string {
	v, _ := lookupAttr(n, name)
	return v
}
