// Package trigger binds declarative event triggers on document
// elements to command dispatches.
package trigger

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/conductor-html/conductor/internal/logging"
)

// Attribute names the manager observes.
const (
	// AttrCommandOn declares a generic trigger: an event name plus
	// dot-separated modifiers, firing the element's own command and
	// commandfor pair.
	AttrCommandOn = "command-on"
	// AttrOnEvent declares a custom-event trigger with the same
	// value syntax.
	AttrOnEvent = "data-on-event"
	// AttrOnEventCommand overrides the command string for the
	// custom-event trigger. Without it the generic command attribute
	// applies.
	AttrOnEventCommand = "data-on-event-command"
	// AttrOnEventCommandfor overrides the target selector for the
	// custom-event trigger. Without it the generic commandfor
	// attribute applies.
	AttrOnEventCommandfor = "data-on-event-commandfor"
)

// triggerAttrs lists the declaring attributes in evaluation order.
var triggerAttrs = []string{AttrCommandOn, AttrOnEvent}

// keyAliases maps friendly key-filter tokens to DOM key values.
var keyAliases = map[string]string{
	"enter":  "Enter",
	"escape": "Escape",
	"esc":    "Escape",
	"tab":    "Tab",
	"space":  " ",
	"up":     "ArrowUp",
	"down":   "ArrowDown",
	"left":   "ArrowLeft",
	"right":  "ArrowRight",
}

// Trigger is one parsed trigger declaration: the event to listen for
// plus its modifiers and key filters.
type Trigger struct {
	// Event is the event type to match, for example "click".
	Event string
	// Prevent calls PreventDefault on qualifying events.
	Prevent bool
	// Stop halts propagation after this element handles the event.
	Stop bool
	// Once consumes the declaring attribute after the first
	// qualifying fire.
	Once bool
	// Window scopes the listener to the window instead of the
	// element, so it fires regardless of where the event bubbles.
	Window bool
	// Keys holds key filters for keyboard events. A keyboard event
	// whose key matches none of them is discarded before dispatch.
	Keys []string
	// Modifiers records the raw modifier tokens, for diagnostics.
	Modifiers []string

	raw string
}

// Raw returns the attribute value the trigger was parsed from.
func (t Trigger) Raw() string { return t.raw }

// ParseTrigger parses a trigger attribute value: an event name
// followed by dot-separated modifier tokens. A backslash escapes the
// next character, so event names and key filters may contain dots
// ("app\.ready.once", "keydown.\.").
func ParseTrigger(raw string) (Trigger, error) {
	tokens := splitTokens(raw)
	if len(tokens) == 0 || strings.TrimSpace(tokens[0]) == "" {
		return Trigger{}, fmt.Errorf("empty event name in trigger %q", raw)
	}

	t := Trigger{Event: strings.TrimSpace(tokens[0]), raw: raw}
	for _, tok := range tokens[1:] {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		switch tok {
		case "prevent":
			t.Prevent = true
		case "stop":
			t.Stop = true
		case "once":
			t.Once = true
		case "window":
			t.Window = true
		default:
			if key, ok := keyFilter(tok); ok {
				t.Keys = append(t.Keys, key)
				continue
			}
			logging.Warn().
				Str("token", tok).
				Str("trigger", raw).
				Msg("unknown trigger modifier ignored")
			continue
		}
		t.Modifiers = append(t.Modifiers, tok)
	}
	return t, nil
}

// keyFilter resolves one key-filter token: a named alias, an explicit
// key-<name> form, or a literal single character.
func keyFilter(tok string) (string, bool) {
	if alias, ok := keyAliases[strings.ToLower(tok)]; ok {
		return alias, true
	}
	if name, ok := strings.CutPrefix(tok, "key-"); ok && name != "" {
		return name, true
	}
	if utf8.RuneCountInString(tok) == 1 {
		return tok, true
	}
	return "", false
}

// matchesKey reports whether an event key passes the trigger's key
// filters. Triggers without filters pass everything.
func (t Trigger) matchesKey(key string) bool {
	if len(t.Keys) == 0 {
		return true
	}
	for _, k := range t.Keys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// splitTokens splits a trigger value on unescaped dots, resolving
// backslash escapes.
func splitTokens(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var tokens []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			cur.WriteByte(s[i+1])
			i++
		case c == '.':
			tokens = append(tokens, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	tokens = append(tokens, cur.String())
	return tokens
}
