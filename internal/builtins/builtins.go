// Package builtins provides the built-in command pack: document
// manipulation commands plus a retrying HTTP fetch that swaps
// response fragments into the target.
package builtins

import (
	"fmt"

	"github.com/conductor-html/conductor/internal/dispatch"
)

// Registrar accepts built-in command registrations. *dispatch.Manager
// satisfies it.
type Registrar interface {
	RegisterBuiltin(name string, cb dispatch.Callback) (string, error)
}

// RegisterAll adds the built-in command pack to r. Fetch options
// configure the shared --fetch command.
func RegisterAll(r Registrar, opts ...FetchOption) error {
	fetcher := NewFetcher(opts...)
	pack := []struct {
		name string
		cb   dispatch.Callback
	}{
		{"--text", textCommand},
		{"--attr", attrCommand},
		{"--class", classCommand},
		{"--show", showCommand},
		{"--hide", hideCommand},
		{"--toggle", toggleCommand},
		{"--value", valueCommand},
		{"--remove", removeCommand},
		{"--echo", echoCommand},
		{"--fetch", fetcher.Command},
	}
	for _, c := range pack {
		if _, err := r.RegisterBuiltin(c.name, c.cb); err != nil {
			return fmt.Errorf("registering %s: %w", c.name, err)
		}
	}
	return nil
}
