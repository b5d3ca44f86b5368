// Package state discovers Jupyter widget state embedded in HTML pages and
// splices rendered widget views back into the document.
//
// Embedded pages carry two kinds of script elements: a single (or merged)
// manager state block with MIME type "application/vnd.jupyter.widget-state+json",
// and one view placeholder per widget with MIME type
// "application/vnd.jupyter.widget-view+json" referencing a model by id.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MIME types used by the widget embedder.
const (
	StateMIME = "application/vnd.jupyter.widget-state+json"
	ViewMIME  = "application/vnd.jupyter.widget-view+json"
)

// View is a widget view placeholder found in the page.
type View struct {
	// ModelID references a model in the manager state block.
	ModelID string

	// Raw is the placeholder's full JSON payload.
	Raw json.RawMessage

	node     *html.Node
	rendered bool
}

// Page is a parsed HTML document with its widget state extracted.
type Page struct {
	doc    *html.Node
	scope  *html.Node
	states []json.RawMessage
	views  []*View
}

type viewPayload struct {
	ModelID string `json:"model_id"`
}

// Parse reads an HTML document and extracts its widget state and view
// placeholders. The whole document is in scope; use ScopeTo to restrict
// view discovery to one element's subtree.
func Parse(page []byte) (*Page, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("state: parsing HTML page: %w", err)
	}

	p := &Page{doc: doc, scope: doc}
	if err := p.collect(); err != nil {
		return nil, err
	}
	return p, nil
}

// ScopeTo restricts view discovery to the subtree of the element with the
// given id. The manager state block is still discovered document-wide, since
// the embedder emits it once per page. Re-collects views.
func (p *Page) ScopeTo(elementID string) error {
	node := findByID(p.doc, elementID)
	if node == nil {
		return fmt.Errorf("state: no element with id %q", elementID)
	}
	p.scope = node
	p.states = nil
	p.views = nil
	return p.collect()
}

func (p *Page) collect() error {
	// The state block lives anywhere in the document, views only in scope.
	walk(p.doc, func(n *html.Node) {
		if scriptType(n) == StateMIME {
			p.states = append(p.states, json.RawMessage(textContent(n)))
		}
	})

	var parseErr error
	walk(p.scope, func(n *html.Node) {
		if scriptType(n) != ViewMIME {
			return
		}
		raw := []byte(textContent(n))
		var payload viewPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			if parseErr == nil {
				parseErr = fmt.Errorf("state: parsing widget view payload: %w", err)
			}
			return
		}
		p.views = append(p.views, &View{
			ModelID: payload.ModelID,
			Raw:     json.RawMessage(raw),
			node:    n,
		})
	})
	return parseErr
}

// ManagerState returns the merged manager state from all state blocks on the
// page. Model entries from later blocks win on collision.
func (p *Page) ManagerState() (json.RawMessage, error) {
	switch len(p.states) {
	case 0:
		return nil, nil
	case 1:
		return p.states[0], nil
	}

	merged := struct {
		VersionMajor int                        `json:"version_major"`
		VersionMinor int                        `json:"version_minor"`
		State        map[string]json.RawMessage `json:"state"`
	}{State: make(map[string]json.RawMessage)}

	for _, raw := range p.states {
		var block struct {
			VersionMajor int                        `json:"version_major"`
			VersionMinor int                        `json:"version_minor"`
			State        map[string]json.RawMessage `json:"state"`
		}
		if err := json.Unmarshal(raw, &block); err != nil {
			return nil, fmt.Errorf("state: parsing widget state block: %w", err)
		}
		merged.VersionMajor = block.VersionMajor
		merged.VersionMinor = block.VersionMinor
		for id, m := range block.State {
			merged.State[id] = m
		}
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("state: merging widget state blocks: %w", err)
	}
	return out, nil
}

// Views returns the view placeholders in document order.
func (p *Page) Views() []*View {
	return p.views
}

// InsertRendered inserts a rendered HTML fragment directly after the view's
// placeholder script element. At most one insertion per view.
func (v *View) InsertRendered(fragment string) error {
	if v.rendered {
		return fmt.Errorf("state: view %q already rendered", v.ModelID)
	}

	parent := v.node.Parent
	if parent == nil {
		return fmt.Errorf("state: view %q has no parent element", v.ModelID)
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return fmt.Errorf("state: parsing rendered fragment for %q: %w", v.ModelID, err)
	}

	after := v.node.NextSibling
	for _, n := range nodes {
		parent.InsertBefore(n, after)
	}
	v.rendered = true
	return nil
}

// Render serializes the (possibly mutated) document.
func (p *Page) Render(w io.Writer) error {
	if err := html.Render(w, p.doc); err != nil {
		return fmt.Errorf("state: serializing page: %w", err)
	}
	return nil
}

func scriptType(n *html.Node) string {
	if n.Type != html.ElementNode || n.DataAtom != atom.Script {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == "type" {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func findByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found != nil || n.Type != html.ElementNode {
			return
		}
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				found = n
				return
			}
		}
	})
	return found
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}
