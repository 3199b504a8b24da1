package dom

import (
	"strings"
	"testing"
)

const page = `<!DOCTYPE html><html><body>
<div id="counter" data-island="counter" class="island"><span>0</span></div>
<div id="chart" data-island="chart"></div>
</body></html>`

func TestParseFindsIslandsInDocumentOrder(t *testing.T) {
	doc, err := Parse(page)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	islands := doc.WithAttribute(IslandAttr)
	if len(islands) != 2 {
		t.Fatalf("expected 2 islands, got %d", len(islands))
	}
	if islands[0].ID() != "counter" || islands[1].ID() != "chart" {
		t.Fatalf("unexpected order: %s, %s", islands[0].ID(), islands[1].ID())
	}
	if doc.Island("chart") != islands[1] {
		t.Fatal("Island lookup should return the same wrapper")
	}
}

func TestSetTextReplacesChildren(t *testing.T) {
	doc, _ := Parse(page)
	el := doc.ByID("counter")
	el.SetText("<b>5</b>")
	if el.Text() != "<b>5</b>" {
		t.Fatalf("expected raw text, got %q", el.Text())
	}
	if !strings.Contains(el.InnerHTML(), "&lt;b&gt;") {
		t.Fatalf("text must be escaped on render, got %q", el.InnerHTML())
	}
}

func TestAttributesAndClasses(t *testing.T) {
	doc, _ := Parse(page)
	el := doc.ByID("counter")

	el.SetAttribute("aria-busy", "true")
	if v, ok := el.Attribute("aria-busy"); !ok || v != "true" {
		t.Fatalf("expected aria-busy=true, got %q %v", v, ok)
	}
	el.RemoveAttribute("aria-busy")
	if _, ok := el.Attribute("aria-busy"); ok {
		t.Fatal("attribute should be removed")
	}

	el.SetClass("active", true)
	el.SetClass("active", true)
	el.SetClass("island", false)
	if got := el.Classes(); len(got) != 1 || got[0] != "active" {
		t.Fatalf("expected [active], got %v", got)
	}
}

func TestStyleProperties(t *testing.T) {
	doc := NewDocument()
	el := doc.CreateElement(doc.Body(), "div", map[string]string{"style": "color: red"})
	el.SetStyle("width", "10px")
	el.SetStyle("color", "blue")
	if el.Style("color") != "blue" || el.Style("width") != "10px" {
		t.Fatalf("unexpected style %q", mustAttr(el, "style"))
	}
	el.SetStyle("color", "")
	if mustAttr(el, "style") != "width: 10px" {
		t.Fatalf("expected only width, got %q", mustAttr(el, "style"))
	}
}

func TestSetInnerHTML(t *testing.T) {
	doc, _ := Parse(page)
	el := doc.ByID("chart")
	if err := el.SetInnerHTML(`<p class="err">failed</p>`); err != nil {
		t.Fatalf("set inner html: %v", err)
	}
	if el.Text() != "failed" {
		t.Fatalf("expected fragment text, got %q", el.Text())
	}
	if !strings.Contains(doc.HTML(), `<p class="err">failed</p>`) {
		t.Fatalf("document should contain fragment: %s", doc.HTML())
	}
}

func TestDispatchBubblesToAncestors(t *testing.T) {
	doc, _ := Parse(page)
	island := doc.ByID("counter")

	var got []string
	off := island.On("click", func(e Event) { got = append(got, e.Target.Tag()) })

	inner := doc.CreateElement(island, "button", nil)
	inner.Dispatch("click")
	if len(got) != 1 || got[0] != "button" {
		t.Fatalf("expected bubbled click from button, got %v", got)
	}

	off()
	inner.Dispatch("click")
	if len(got) != 1 || island.Listeners("click") != 0 {
		t.Fatalf("listener should be removed, got %v", got)
	}
}

func mustAttr(n *Node, name string) string {
	v, _ := n.Attribute(name)
	return v
}

func TestFindLooksOnlyBelowTheElement(t *testing.T) {
	doc, _ := Parse(`<body><span data-ref="label">outside</span><div id="card"><p><b data-ref="label">in</b></p><i id="icon"></i></div></body>`)
	card := doc.ByID("card")

	el, ok := card.Find("label")
	if !ok || el.(*Node).Text() != "in" {
		t.Fatalf("expected the nested label, got %v", el)
	}
	if _, ok := card.Find("icon"); !ok {
		t.Fatal("expected lookup by id")
	}
	if _, ok := card.Find("missing"); ok {
		t.Fatal("unexpected match")
	}
}
