package render

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// PlaceholderProps describes the server-rendered shell of one island.
type PlaceholderProps struct {
	ID       string
	Entry    string
	ExecType string
	Strategy string
	Content  VNode
}

// Placeholder renders the island shell the client-side orchestrator looks
// for: a div carrying data-island and the activation hints, wrapping the
// static content.
func Placeholder(p PlaceholderProps) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		attrs := map[string]string{
			"id":            p.ID,
			"data-island":   p.ID,
			"data-entry":    p.Entry,
			"data-exec":     p.ExecType,
			"data-strategy": p.Strategy,
		}
		if err := openTag(w, "div", attrs); err != nil {
			return err
		}
		if p.Content.Tag != "" || p.Content.Text != "" {
			if err := writeNode(w, p.Content); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</div>")
		return err
	})
}

// Fallback renders the content shown in place of an island that failed to
// hydrate.
func Fallback(entry, execType, message string) templ.Component {
	return Markup(VNode{
		Tag:   "div",
		Attrs: map[string]string{"class": "island-error", "role": "alert"},
		Children: []VNode{
			{Tag: "strong", Text: "Island failed to load"},
			{Tag: "dl", Children: []VNode{
				{Tag: "dt", Text: "entry"},
				{Tag: "dd", Text: entry},
				{Tag: "dt", Text: "exec"},
				{Tag: "dd", Text: execType},
				{Tag: "dt", Text: "error"},
				{Tag: "dd", Text: message},
			}},
		},
	})
}

// Document renders a minimal page around the given island shells.
func Document(title string, islands ...PlaceholderProps) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<!DOCTYPE html><html><head><title>"+templ.EscapeString(title)+"</title></head><body>"); err != nil {
			return err
		}
		for _, p := range islands {
			if err := Placeholder(p).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}
