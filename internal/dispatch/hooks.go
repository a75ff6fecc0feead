package dispatch

import (
	"context"
	"sync"

	"github.com/conductor-html/conductor/internal/logging"
)

// Hook identifies a middleware lifecycle point.
type Hook string

// Lifecycle hook points, in execution order. Before hooks receive a
// nil result; the rest receive the settled result for the current
// target.
const (
	HookBeforeCommand    Hook = "before-command"
	HookBeforeValidation Hook = "before-validation"
	HookAfterValidation  Hook = "after-validation"
	HookOnSuccess        Hook = "on-success"
	HookOnError          Hook = "on-error"
	HookOnComplete       Hook = "on-complete"
	HookAfterCommand     Hook = "after-command"
)

var knownHooks = map[Hook]bool{
	HookBeforeCommand:    true,
	HookBeforeValidation: true,
	HookAfterValidation:  true,
	HookOnSuccess:        true,
	HookOnError:          true,
	HookOnComplete:       true,
	HookAfterCommand:     true,
}

// Middleware runs at a lifecycle hook point. An error returned from a
// gating hook (before-command, before-validation, after-validation)
// aborts execution; errors from result-side hooks are logged and
// otherwise ignored.
type Middleware func(ctx context.Context, ec *ExecContext, res *Result) error

type middlewareEntry struct {
	plugin string
	fn     Middleware
}

// hookTable stores middleware per hook point, preserving registration
// order.
type hookTable struct {
	mu    sync.RWMutex
	table map[Hook][]middlewareEntry
}

func newHookTable() *hookTable {
	return &hookTable{table: make(map[Hook][]middlewareEntry)}
}

func (h *hookTable) add(hook Hook, plugin string, fn Middleware) {
	if fn == nil {
		return
	}
	if !knownHooks[hook] {
		logging.Warn().Str("hook", string(hook)).Msg("ignoring middleware for unknown hook")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.table[hook] = append(h.table[hook], middlewareEntry{plugin: plugin, fn: fn})
}

// removePlugin drops every middleware entry owned by plugin.
func (h *hookTable) removePlugin(plugin string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for hook, entries := range h.table {
		kept := entries[:0]
		for _, e := range entries {
			if e.plugin != plugin {
				kept = append(kept, e)
			}
		}
		h.table[hook] = kept
	}
}

func (h *hookTable) entries(hook Hook) []middlewareEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entries := h.table[hook]
	out := make([]middlewareEntry, len(entries))
	copy(out, entries)
	return out
}

func (h *hookTable) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.table = make(map[Hook][]middlewareEntry)
}

// runGating runs a hook whose error aborts execution. The first
// middleware error is returned.
func (h *hookTable) runGating(ctx context.Context, hook Hook, ec *ExecContext) error {
	for _, e := range h.entries(hook) {
		if err := e.fn(ctx, ec, nil); err != nil {
			return err
		}
	}
	return nil
}

// runObserving runs a result-side hook. Middleware errors are logged
// and do not affect the dispatch outcome.
func (h *hookTable) runObserving(ctx context.Context, hook Hook, ec *ExecContext, res *Result) {
	for _, e := range h.entries(hook) {
		if err := e.fn(ctx, ec, res); err != nil {
			logging.Warn().
				Err(err).
				Str("hook", string(hook)).
				Str("plugin", e.plugin).
				Str("command", ec.Name).
				Msg("middleware error ignored")
		}
	}
}
