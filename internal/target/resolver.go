// Package target resolves the selector forms commands address their
// targets with. Resolution never fails the caller: malformed or
// unmatched selectors degrade to an empty result with a logged
// diagnostic.
package target

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/internal/suggest"
)

// maxIDSuggestions caps the near-miss ids offered when an ID lookup
// comes up empty.
const maxIDSuggestions = 5

// idLikeRe matches bare identifiers treated as element ids.
var idLikeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Resolve maps a selector string and a context element to an ordered
// list of elements. Grammar, in priority order: @closest(css),
// @child(css), @children(css), #id, bare-identifier-as-id, arbitrary
// CSS against the whole document. The result may be empty; it is never
// an error.
func Resolve(doc *dom.Document, selector string, context *dom.Element) []*dom.Element {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil
	}

	if strings.HasPrefix(selector, "@") {
		return resolveContextual(selector, context)
	}

	if id, ok := strings.CutPrefix(selector, "#"); ok && idLikeRe.MatchString(id) {
		return resolveID(doc, id)
	}

	if idLikeRe.MatchString(selector) {
		if el := doc.ByID(selector); el != nil {
			return []*dom.Element{el}
		}
		// Bare identifiers double as tag selectors, so try CSS
		// before reporting a miss.
		if found := doc.Find(selector); len(found) > 0 {
			return found
		}
		logIDMiss(doc, selector)
		return nil
	}

	found := doc.Find(selector)
	if len(found) == 0 {
		log.Debug().Str("selector", selector).Msg("selector matched no elements")
	}
	return found
}

// ResolveFirst returns the first resolved element, or nil.
func ResolveFirst(doc *dom.Document, selector string, context *dom.Element) *dom.Element {
	for _, el := range Resolve(doc, selector, context) {
		return el
	}
	return nil
}

func resolveContextual(selector string, context *dom.Element) []*dom.Element {
	verb, inner, ok := splitContextual(selector)
	if !ok {
		log.Warn().Str("selector", selector).Msg("malformed contextual selector")
		return nil
	}
	if context == nil || !context.Attached() {
		log.Warn().Str("selector", selector).Msg("contextual selector requires a connected context element")
		return nil
	}

	switch verb {
	case "closest":
		if el := context.Closest(inner); el != nil {
			return []*dom.Element{el}
		}
	case "child":
		if el := context.FindFirst(inner); el != nil {
			return []*dom.Element{el}
		}
	case "children":
		return context.Find(inner)
	default:
		log.Warn().Str("verb", verb).Str("selector", selector).Msg("unknown contextual selector verb")
		return nil
	}
	log.Debug().Str("selector", selector).Msg("contextual selector matched no elements")
	return nil
}

// splitContextual breaks "@verb(inner)" apart, honoring backslash
// escapes for literal parentheses inside inner.
func splitContextual(selector string) (verb, inner string, ok bool) {
	open := strings.IndexByte(selector, '(')
	if open < 0 || !strings.HasSuffix(selector, ")") {
		return "", "", false
	}
	verb = selector[1:open]
	if verb == "" {
		return "", "", false
	}

	body := selector[open+1:]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch c {
		case '\\':
			if i+1 < len(body) && (body[i+1] == '(' || body[i+1] == ')') {
				b.WriteByte(body[i+1])
				i++
				continue
			}
			b.WriteByte(c)
		case ')':
			if i == len(body)-1 {
				return verb, b.String(), true
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return "", "", false
}

func resolveID(doc *dom.Document, id string) []*dom.Element {
	if el := doc.ByID(id); el != nil {
		return []*dom.Element{el}
	}
	logIDMiss(doc, id)
	return nil
}

func logIDMiss(doc *dom.Document, id string) {
	evt := log.Warn().Str("id", id)
	if near := suggest.Closest(id, doc.IDs(), maxIDSuggestions); len(near) > 0 {
		evt = evt.Str("suggestions", suggest.List(near, maxIDSuggestions))
	}
	evt.Msg("no element with requested id")
}
