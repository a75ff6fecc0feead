package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/conductor-html/conductor/internal/logging"
)

// Prefix is the reserved marker every command name carries.
const Prefix = "--"

// maxNameLength bounds registered command names.
const maxNameLength = 64

var namePattern = regexp.MustCompile(`^--[A-Za-z0-9][A-Za-z0-9_-]*$`)

// reservedKeywords are native invoker command keywords. Bare names
// that collide with them are rejected during auto-prefixing so a
// registration like "close" cannot shadow the native behavior.
// Explicitly prefixed names ("--close") are exempt.
var reservedKeywords = map[string]bool{
	"show-modal":     true,
	"close":          true,
	"request-close":  true,
	"toggle-popover": true,
	"show-popover":   true,
	"hide-popover":   true,
}

// Callback is a registered command implementation. It receives the
// execution context for one target; returning an error marks the
// invocation failed for that target.
type Callback func(ctx context.Context, ec *ExecContext) error

// Match is the result of a successful registry lookup.
type Match struct {
	// Name is the registered command name that matched.
	Name string
	// Remainder is the parameter portion of the raw string, without
	// the leading separator. Empty for an exact match.
	Remainder string
	// Callback is the registered implementation.
	Callback Callback
}

type registration struct {
	name     string
	callback Callback
}

// Registry owns the command-name-to-callback table. Lookup is by
// descending name length so longer names match before shorter
// prefixes of them.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*registration
	byLength []string // names sorted by length desc, then lexicographic
	order    []string // names in first-registration order, for diagnostics
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*registration),
	}
}

// NormalizeName validates a command name and ensures it carries the
// reserved prefix, auto-prefixing bare names with a warning. Bare
// names colliding with native invoker keywords are rejected.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if !strings.HasPrefix(name, Prefix) {
		if reservedKeywords[name] {
			return "", fmt.Errorf("%w: %q is a native command keyword", ErrReservedName, name)
		}
		logging.Warn().
			Str("name", name).
			Str("prefixed", Prefix+name).
			Msg("command name missing prefix, auto-prefixing")
		name = Prefix + name
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidName, name, maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// Register adds a command under its normalized name, which is
// returned. Re-registering an existing name overwrites the callback
// with a warning.
func (r *Registry) Register(name string, cb Callback) (string, error) {
	if cb == nil {
		return "", fmt.Errorf("%w: nil callback for %q", ErrInvalidName, name)
	}
	normalized, err := NormalizeName(name)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[normalized]; exists {
		logging.Warn().Str("command", normalized).Msg("overwriting registered command")
	} else {
		r.order = append(r.order, normalized)
		r.byLength = append(r.byLength, normalized)
		sort.Slice(r.byLength, func(i, j int) bool {
			a, b := r.byLength[i], r.byLength[j]
			if len(a) != len(b) {
				return len(a) > len(b)
			}
			return a < b
		})
	}
	r.commands[normalized] = &registration{name: normalized, callback: cb}
	return normalized, nil
}

// Unregister removes a command by name. Removing an unknown name is a
// no-op returning false.
func (r *Registry) Unregister(name string) bool {
	normalized, err := NormalizeName(name)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.commands[normalized]; !ok {
		return false
	}
	delete(r.commands, normalized)
	r.byLength = removeString(r.byLength, normalized)
	r.order = removeString(r.order, normalized)
	return true
}

// Lookup resolves a raw command string to its registration. Names are
// tried longest-first; a name matches when the raw string equals it
// exactly or continues with the parameter separator, so "--show-all"
// never falls through to "--show".
func (r *Registry) Lookup(raw string) (Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.byLength {
		if raw == name {
			return Match{Name: name, Callback: r.commands[name].callback}, true
		}
		if strings.HasPrefix(raw, name) && raw[len(name)] == ParamSep {
			return Match{
				Name:      name,
				Remainder: raw[len(name)+1:],
				Callback:  r.commands[name].callback,
			}, true
		}
	}
	return Match{}, false
}

// Has reports whether a command is registered under the normalized
// form of name.
func (r *Registry) Has(name string) bool {
	normalized, err := NormalizeName(name)
	if err != nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[normalized]
	return ok
}

// Names returns registered command names in first-registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = make(map[string]*registration)
	r.byLength = nil
	r.order = nil
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
