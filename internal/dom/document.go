// Package dom wraps an in-memory HTML tree with the element handles,
// synthetic events and mutation records the rest of the engine works
// against. Node structure comes from golang.org/x/net/html; selector
// queries go through cascadia and goquery.
//
// Node operations are not internally synchronized. The engine
// serializes document access; mutation records queue up during an
// operation and are delivered when the owner calls FlushMutations.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is a parsed HTML document plus its mutation plumbing.
type Document struct {
	gq   *goquery.Document
	root *html.Node

	mu        sync.Mutex
	observers map[int]func([]MutationRecord)
	nextObs   int
	pending   []MutationRecord
}

// Parse reads an HTML document from r.
func Parse(r io.Reader) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	root := gq.Get(0)
	if root == nil {
		return nil, fmt.Errorf("parsing document: empty tree")
	}
	return &Document{
		gq:        gq,
		root:      root,
		observers: make(map[int]func([]MutationRecord)),
	}, nil
}

// ParseString parses an HTML document held in a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Render serializes the document back to HTML.
func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	if err := goquery.Render(&buf, d.gq.Selection); err != nil {
		return "", fmt.Errorf("rendering document: %w", err)
	}
	return buf.String(), nil
}

// Root returns the handle for the root html element, or the document
// node itself for fragment-less trees.
func (d *Document) Root() *Element {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.element(c)
		}
	}
	return d.element(d.root)
}

// Body returns the body element, or nil when the document has none.
func (d *Document) Body() *Element {
	return d.First("body")
}

// Find returns all elements matching the CSS selector, in document
// order. Invalid selectors return nil.
func (d *Document) Find(selector string) []*Element {
	sel, ok := compileSelector(selector)
	if !ok {
		return nil
	}
	nodes := d.gq.FindMatcher(sel).Nodes
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.element(n))
	}
	return out
}

// First returns the first element matching the CSS selector, or nil.
func (d *Document) First(selector string) *Element {
	sel, ok := compileSelector(selector)
	if !ok {
		return nil
	}
	if n := sel.MatchFirst(d.root); n != nil {
		return d.element(n)
	}
	return nil
}

// ByID returns the element whose id attribute equals id, or nil. The
// lookup is a tree walk so ids containing CSS metacharacters still
// resolve.
func (d *Document) ByID(id string) *Element {
	if id == "" {
		return nil
	}
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && getAttr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return d.element(found)
}

// IDs returns every id attribute value in document order. Used for
// near-miss suggestions when a target id does not resolve.
func (d *Document) IDs() []string {
	var ids []string
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if id := getAttr(n, "id"); id != "" {
				ids = append(ids, id)
			}
		}
		return true
	})
	return ids
}

// Contains reports whether n is attached to this document's tree.
func (d *Document) Contains(e *Element) bool {
	if e == nil {
		return false
	}
	for n := e.node; n != nil; n = n.Parent {
		if n == d.root {
			return true
		}
	}
	return false
}

func (d *Document) element(n *html.Node) *Element {
	return &Element{doc: d, node: n}
}

// walk visits nodes depth-first in document order until fn returns
// false.
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

func getAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
