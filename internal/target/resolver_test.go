package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-html/conductor/internal/dom"
)

const page = `<!DOCTYPE html>
<html><body>
  <div id="wrapper" class="outer">
    <ul id="list">
      <li class="item" id="item-1">one</li>
      <li class="item" id="item-2">two</li>
    </ul>
    <button id="trigger" data-weird="(parens)">go</button>
  </div>
  <aside id="side-panel">side</aside>
</body></html>`

func setup(t *testing.T) (*dom.Document, *dom.Element) {
	t.Helper()
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	btn := doc.ByID("trigger")
	require.NotNil(t, btn)
	return doc, btn
}

func ids(els []*dom.Element) []string {
	out := make([]string, len(els))
	for i, el := range els {
		out[i] = el.ID()
	}
	return out
}

func TestResolve_Closest(t *testing.T) {
	doc, btn := setup(t)

	got := Resolve(doc, "@closest(.outer)", btn)
	require.Len(t, got, 1)
	assert.Equal(t, "wrapper", got[0].ID())

	// Closest matches self first.
	self := Resolve(doc, "@closest(button)", btn)
	require.Len(t, self, 1)
	assert.True(t, self[0].Equal(btn))

	assert.Empty(t, Resolve(doc, "@closest(.missing)", btn))
}

func TestResolve_ChildAndChildren(t *testing.T) {
	doc, _ := setup(t)
	wrapper := doc.ByID("wrapper")

	first := Resolve(doc, "@child(.item)", wrapper)
	require.Len(t, first, 1)
	assert.Equal(t, "item-1", first[0].ID())

	all := Resolve(doc, "@children(.item)", wrapper)
	assert.Equal(t, []string{"item-1", "item-2"}, ids(all))
}

func TestResolve_ContextualRequiresConnectedContext(t *testing.T) {
	doc, _ := setup(t)

	assert.Empty(t, Resolve(doc, "@closest(div)", nil))

	detached := dom.NewElement("span")
	assert.Empty(t, Resolve(doc, "@closest(div)", detached))

	removed := doc.ByID("trigger")
	removed.Remove()
	assert.Empty(t, Resolve(doc, "@closest(div)", removed))
}

func TestResolve_ContextualEscapedParens(t *testing.T) {
	doc, btn := setup(t)

	got := Resolve(doc, `@closest([data-weird="\(parens\)"])`, btn)
	require.Len(t, got, 1)
	assert.Equal(t, "trigger", got[0].ID())
}

func TestResolve_UnknownVerbAndMalformed(t *testing.T) {
	doc, btn := setup(t)

	assert.Empty(t, Resolve(doc, "@nearest(div)", btn))
	assert.Empty(t, Resolve(doc, "@closest(div", btn))
	assert.Empty(t, Resolve(doc, "@closest", btn))
	assert.Empty(t, Resolve(doc, "@(div)", btn))
}

func TestResolve_ExplicitID(t *testing.T) {
	doc, btn := setup(t)

	got := Resolve(doc, "#side-panel", btn)
	require.Len(t, got, 1)
	assert.Equal(t, "aside", got[0].Tag())

	assert.Empty(t, Resolve(doc, "#nope", btn))
}

func TestResolve_BareIdentifier(t *testing.T) {
	doc, btn := setup(t)

	got := Resolve(doc, "side-panel", btn)
	require.Len(t, got, 1)
	assert.Equal(t, "aside", got[0].Tag())
}

func TestResolve_BareIdentifierFallsBackToTag(t *testing.T) {
	doc, btn := setup(t)

	// No element has id "li", so the tag-selector fallback applies.
	got := Resolve(doc, "li", btn)
	assert.Len(t, got, 2)
}

func TestResolve_CSS(t *testing.T) {
	doc, btn := setup(t)

	got := Resolve(doc, "ul > li.item", btn)
	assert.Equal(t, []string{"item-1", "item-2"}, ids(got))

	assert.Empty(t, Resolve(doc, "article.none", btn))
	assert.Empty(t, Resolve(doc, "ul >> li", btn))
}

func TestResolve_Empty(t *testing.T) {
	doc, btn := setup(t)

	assert.Empty(t, Resolve(doc, "", btn))
	assert.Empty(t, Resolve(doc, "   ", btn))
}

func TestResolveFirst(t *testing.T) {
	doc, btn := setup(t)

	el := ResolveFirst(doc, ".item", btn)
	require.NotNil(t, el)
	assert.Equal(t, "item-1", el.ID())

	assert.Nil(t, ResolveFirst(doc, ".missing", btn))
}
