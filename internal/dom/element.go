package dom

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element is a handle on one element node. Handles are cheap values;
// two handles are the same element when their underlying nodes match.
type Element struct {
	doc  *Document
	node *html.Node
}

// NewElement creates a detached element that belongs to no document.
// Chain execution uses these as throwaway invokers.
func NewElement(tag string) *Element {
	tag = strings.ToLower(tag)
	return &Element{node: &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}}
}

// Node exposes the underlying parse-tree node.
func (e *Element) Node() *html.Node { return e.node }

// Document returns the owning document, nil for detached elements.
func (e *Element) Document() *Document { return e.doc }

// Tag returns the lower-case tag name.
func (e *Element) Tag() string { return e.node.Data }

// ID returns the id attribute, empty when unset.
func (e *Element) ID() string { return getAttr(e.node, "id") }

// Equal reports whether both handles reference the same node.
func (e *Element) Equal(other *Element) bool {
	return other != nil && e.node == other.node
}

// Attached reports whether the element is still in its document tree.
// Detached elements always report false.
func (e *Element) Attached() bool {
	return e.doc != nil && e.doc.Contains(e)
}

// Attr returns the named attribute and whether it exists.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the named attribute or def when unset.
func (e *Element) AttrOr(name, def string) string {
	if v, ok := e.Attr(name); ok {
		return v
	}
	return def
}

// HasAttr reports whether the named attribute exists.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attr(name)
	return ok
}

// Attrs returns a copy of all attributes.
func (e *Element) Attrs() map[string]string {
	out := make(map[string]string, len(e.node.Attr))
	for _, a := range e.node.Attr {
		out[a.Key] = a.Val
	}
	return out
}

// DataAttrs returns all data-* attributes keyed without the prefix.
func (e *Element) DataAttrs() map[string]string {
	out := make(map[string]string)
	for _, a := range e.node.Attr {
		if strings.HasPrefix(a.Key, "data-") {
			out[strings.TrimPrefix(a.Key, "data-")] = a.Val
		}
	}
	return out
}

// SetAttr sets or replaces the named attribute.
func (e *Element) SetAttr(name, value string) {
	old := ""
	for i, a := range e.node.Attr {
		if a.Key == name {
			old = a.Val
			e.node.Attr[i].Val = value
			e.notify(MutationRecord{Type: MutationAttributes, Target: e, Attribute: name, OldValue: old})
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
	e.notify(MutationRecord{Type: MutationAttributes, Target: e, Attribute: name})
}

// RemoveAttr deletes the named attribute if present.
func (e *Element) RemoveAttr(name string) {
	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr = append(e.node.Attr[:i], e.node.Attr[i+1:]...)
			e.notify(MutationRecord{Type: MutationAttributes, Target: e, Attribute: name, OldValue: a.Val})
			return
		}
	}
}

// ToggleAttr flips a boolean attribute and reports the new presence.
func (e *Element) ToggleAttr(name string) bool {
	if e.HasAttr(name) {
		e.RemoveAttr(name)
		return false
	}
	e.SetAttr(name, "")
	return true
}

// Text returns the concatenated text content of the subtree.
func (e *Element) Text() string {
	var b strings.Builder
	walk(e.node, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		return true
	})
	return b.String()
}

// SetText replaces the element's children with a single text node.
func (e *Element) SetText(s string) {
	e.removeChildren()
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	e.notify(MutationRecord{Type: MutationChildList, Target: e})
}

// InnerHTML serializes the element's children.
func (e *Element) InnerHTML() (string, error) {
	var buf bytes.Buffer
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("rendering children of <%s>: %w", e.Tag(), err)
		}
	}
	return buf.String(), nil
}

// SetInnerHTML replaces the element's children with the parsed
// fragment.
func (e *Element) SetInnerHTML(fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), e.node)
	if err != nil {
		return fmt.Errorf("parsing fragment for <%s>: %w", e.Tag(), err)
	}
	e.removeChildren()
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	e.notify(MutationRecord{Type: MutationChildList, Target: e})
	return nil
}

// OuterHTML serializes the element itself.
func (e *Element) OuterHTML() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, e.node); err != nil {
		return "", fmt.Errorf("rendering <%s>: %w", e.Tag(), err)
	}
	return buf.String(), nil
}

// AppendHTML parses fragment and appends the nodes after the existing
// children.
func (e *Element) AppendHTML(fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), e.node)
	if err != nil {
		return fmt.Errorf("parsing fragment for <%s>: %w", e.Tag(), err)
	}
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	e.notify(MutationRecord{Type: MutationChildList, Target: e})
	return nil
}

// PrependHTML parses fragment and inserts the nodes before the
// existing children.
func (e *Element) PrependHTML(fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), e.node)
	if err != nil {
		return fmt.Errorf("parsing fragment for <%s>: %w", e.Tag(), err)
	}
	first := e.node.FirstChild
	for _, n := range nodes {
		if first != nil {
			e.node.InsertBefore(n, first)
		} else {
			e.node.AppendChild(n)
		}
	}
	e.notify(MutationRecord{Type: MutationChildList, Target: e})
	return nil
}

// ReplaceWithHTML swaps the element itself for the parsed fragment.
// Replacing a detached element is an error.
func (e *Element) ReplaceWithHTML(fragment string) error {
	parent := e.node.Parent
	if parent == nil {
		return fmt.Errorf("replacing detached <%s>", e.Tag())
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return fmt.Errorf("parsing fragment for <%s>: %w", e.Tag(), err)
	}
	for _, n := range nodes {
		parent.InsertBefore(n, e.node)
	}
	parent.RemoveChild(e.node)
	e.notify(MutationRecord{Type: MutationChildList, Target: &Element{doc: e.doc, node: parent}})
	return nil
}

// Remove detaches the element from its parent. Removing an already
// detached element is a no-op.
func (e *Element) Remove() {
	parent := e.node.Parent
	if parent == nil {
		return
	}
	parentEl := &Element{doc: e.doc, node: parent}
	parent.RemoveChild(e.node)
	e.notify(MutationRecord{Type: MutationChildList, Target: parentEl})
}

// Parent returns the parent element, or nil at the top of the tree.
func (e *Element) Parent() *Element {
	for n := e.node.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode {
			return &Element{doc: e.doc, node: n}
		}
	}
	return nil
}

// Children returns the direct element children in document order.
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, &Element{doc: e.doc, node: c})
		}
	}
	return out
}

// ChildrenMatching returns direct element children matching the
// selector.
func (e *Element) ChildrenMatching(selector string) []*Element {
	sel, ok := compileSelector(selector)
	if !ok {
		return nil
	}
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && sel.Match(c) {
			out = append(out, &Element{doc: e.doc, node: c})
		}
	}
	return out
}

// Find returns descendants matching the selector, excluding the
// element itself.
func (e *Element) Find(selector string) []*Element {
	sel, ok := compileSelector(selector)
	if !ok {
		return nil
	}
	var out []*Element
	for _, n := range sel.MatchAll(e.node) {
		if n == e.node {
			continue
		}
		out = append(out, &Element{doc: e.doc, node: n})
	}
	return out
}

// FindFirst returns the first descendant matching the selector, or
// nil.
func (e *Element) FindFirst(selector string) *Element {
	for _, el := range e.Find(selector) {
		return el
	}
	return nil
}

// Matches reports whether the element itself matches the selector.
func (e *Element) Matches(selector string) bool {
	sel, ok := compileSelector(selector)
	if !ok {
		return false
	}
	return sel.Match(e.node)
}

// Closest returns the nearest ancestor-or-self matching the selector,
// or nil.
func (e *Element) Closest(selector string) *Element {
	sel, ok := compileSelector(selector)
	if !ok {
		return nil
	}
	for n := e.node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && sel.Match(n) {
			return &Element{doc: e.doc, node: n}
		}
	}
	return nil
}

// Ancestors returns the ancestor elements from the parent outward.
func (e *Element) Ancestors() []*Element {
	var out []*Element
	for n := e.node.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode {
			out = append(out, &Element{doc: e.doc, node: n})
		}
	}
	return out
}

func (e *Element) removeChildren() {
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
}

func (e *Element) notify(rec MutationRecord) {
	if e.doc != nil {
		e.doc.record(rec)
	}
}

// String renders a short description for logs.
func (e *Element) String() string {
	if id := e.ID(); id != "" {
		return fmt.Sprintf("<%s#%s>", e.Tag(), id)
	}
	return fmt.Sprintf("<%s>", e.Tag())
}
