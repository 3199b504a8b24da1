// Package render turns virtual trees into server-side markup: island
// placeholders, arbitrary VNode trees, and the fallback shown when an island
// fails to hydrate. Output is built from templ components.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/a-h/templ"
)

// ErrInvalidMarkup is returned for trees whose tag or attribute names
// cannot be written as HTML.
var ErrInvalidMarkup = errors.New("render: invalid markup")

// VNode is a virtual element. A node with an empty Tag is a text node.
type VNode struct {
	Tag      string            `yaml:"tag"`
	Attrs    map[string]string `yaml:"attrs"`
	Text     string            `yaml:"text"`
	Children []VNode           `yaml:"children"`
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// Validate reports the first tag or attribute name in tree that cannot be
// written as HTML.
func Validate(tree VNode) error {
	if err := checkNode(tree); err != nil {
		return err
	}
	for _, c := range tree.Children {
		if err := Validate(c); err != nil {
			return err
		}
	}
	return nil
}

// Markup returns a component rendering tree. Rendering fails with
// ErrInvalidMarkup before writing a bad tag or attribute.
func Markup(tree VNode) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writeNode(w, tree)
	})
}

// RenderMarkup renders tree to a string. It is a pure function of its input.
func RenderMarkup(ctx context.Context, tree VNode) (string, error) {
	return String(ctx, Markup(tree))
}

// String renders any component to a string.
func String(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func writeNode(w io.Writer, n VNode) error {
	if n.Tag == "" {
		_, err := io.WriteString(w, templ.EscapeString(n.Text))
		return err
	}
	if err := checkNode(n); err != nil {
		return err
	}
	if err := openTag(w, n.Tag, n.Attrs); err != nil {
		return err
	}
	if voidElements[n.Tag] {
		return nil
	}
	if n.Text != "" {
		if _, err := io.WriteString(w, templ.EscapeString(n.Text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := writeNode(w, c); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "</"+n.Tag+">")
	return err
}

func openTag(w io.Writer, tag string, attrs map[string]string) error {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var buf bytes.Buffer
	buf.WriteString("<" + tag)
	for _, k := range keys {
		buf.WriteString(" " + templ.EscapeString(k) + `="` + templ.EscapeString(attrs[k]) + `"`)
	}
	buf.WriteString(">")
	_, err := w.Write(buf.Bytes())
	return err
}

func checkNode(n VNode) error {
	if n.Tag == "" {
		return nil
	}
	if !validTag(n.Tag) {
		return fmt.Errorf("%w: tag %q", ErrInvalidMarkup, n.Tag)
	}
	for k := range n.Attrs {
		if !validAttr(k) {
			return fmt.Errorf("%w: attribute %q on <%s>", ErrInvalidMarkup, k, n.Tag)
		}
	}
	return nil
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// validTag accepts an ASCII letter followed by letters, digits or hyphens,
// which covers the standard elements and custom elements.
func validTag(tag string) bool {
	if tag == "" || !isASCIILetter(tag[0]) {
		return false
	}
	for i := 1; i < len(tag); i++ {
		c := tag[i]
		if !isASCIILetter(c) && !('0' <= c && c <= '9') && c != '-' {
			return false
		}
	}
	return true
}

func validAttr(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r < 0x20, r == 0x7f:
			return false
		case r == ' ', r == '"', r == '\'', r == '>', r == '<', r == '/', r == '=', r == '`':
			return false
		}
	}
	return true
}
