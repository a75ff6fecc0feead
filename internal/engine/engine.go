// Package engine assembles the document command runtime: event bus,
// expression evaluator, dispatch manager, trigger manager, and the
// built-in command pack behind one handle.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/conductor-html/conductor/internal/builtins"
	"github.com/conductor-html/conductor/internal/dispatch"
	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/internal/event"
	"github.com/conductor-html/conductor/internal/expr"
	"github.com/conductor-html/conductor/internal/logging"
	"github.com/conductor-html/conductor/internal/trigger"
	"github.com/conductor-html/conductor/pkg/types"
)

// Engine owns one document and the machinery that runs commands
// against it. Engines are independent; construct one per document or
// test.
type Engine struct {
	cfg      *types.Config
	bus      *event.Bus
	ownsBus  bool
	eval     *expr.Evaluator
	commands *dispatch.Manager
	triggers *trigger.Manager

	mu        sync.Mutex
	doc       *dom.Document
	path      string
	loadedAt  time.Time
	cancelObs func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithBus shares an existing event bus instead of creating one. The
// caller keeps ownership; Close will not close it.
func WithBus(bus *event.Bus) Option {
	return func(e *Engine) {
		e.bus = bus
		e.ownsBus = false
	}
}

// New builds an engine from cfg. A nil cfg runs on defaults.
func New(cfg *types.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = &types.Config{}
	}
	e := &Engine{cfg: cfg, ownsBus: true}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = event.NewBus()
	}

	e.eval = expr.New(evaluatorConfig(cfg))
	e.commands = dispatch.NewManager(dispatchConfig(cfg),
		dispatch.WithBus(e.bus),
		dispatch.WithEvaluator(e.eval),
		dispatch.WithBaseContext(cfg.Context),
	)
	e.triggers = trigger.NewManager(e.commands, trigger.WithBus(e.bus))

	if err := builtins.RegisterAll(e.commands, fetchOptions(cfg)...); err != nil {
		return nil, fmt.Errorf("registering built-in commands: %w", err)
	}
	if err := e.registerAliases(); err != nil {
		return nil, err
	}
	return e, nil
}

// dispatchConfig maps the config file's engine knobs onto dispatch
// settings. Explicit zero disables where the dispatcher supports it.
func dispatchConfig(cfg *types.Config) dispatch.Config {
	out := dispatch.Config{}
	ec := cfg.Engine
	if ec == nil {
		return out
	}
	out.TestMode = ec.TestMode
	if ec.DispatchRateLimit != nil {
		if v := *ec.DispatchRateLimit; v > 0 {
			out.RateLimit = v
		} else {
			out.RateLimit = -1
		}
	}
	if ec.CommandTimeoutMS != nil {
		if v := *ec.CommandTimeoutMS; v > 0 {
			out.Timeout = time.Duration(v) * time.Millisecond
		} else {
			out.Timeout = -1
		}
	}
	if ec.ChainDepthLimit != nil && *ec.ChainDepthLimit > 0 {
		out.ChainDepth = *ec.ChainDepthLimit
	}
	return out
}

// evaluatorConfig maps the config file's expression knobs.
func evaluatorConfig(cfg *types.Config) expr.Config {
	out := expr.Config{}
	ec := cfg.Engine
	if ec == nil {
		return out
	}
	if ec.ExpressionRateLimit != nil && *ec.ExpressionRateLimit > 0 {
		out.RateLimit = *ec.ExpressionRateLimit
	}
	if ec.ExpressionCacheSize != nil && *ec.ExpressionCacheSize > 0 {
		out.CacheSize = *ec.ExpressionCacheSize
	}
	if ec.MaxExpressionLength != nil && *ec.MaxExpressionLength > 0 {
		out.MaxLength = *ec.MaxExpressionLength
	}
	return out
}

// fetchOptions maps the config file's fetch settings.
func fetchOptions(cfg *types.Config) []builtins.FetchOption {
	fc := cfg.Fetch
	if fc == nil {
		return nil
	}
	var opts []builtins.FetchOption
	if fc.TimeoutMS > 0 {
		opts = append(opts, builtins.WithClient(&http.Client{
			Timeout: time.Duration(fc.TimeoutMS) * time.Millisecond,
		}))
	}
	if fc.MaxRetries > 0 {
		opts = append(opts, builtins.WithRetryPolicy(uint64(fc.MaxRetries), 0, 0))
	}
	if len(fc.AllowedHosts) > 0 {
		opts = append(opts, builtins.WithAllowedHosts(fc.AllowedHosts))
	}
	return opts
}

// registerAliases turns config alias entries into commands that
// dispatch their command lists in order.
func (e *Engine) registerAliases() error {
	for name, alias := range e.cfg.Aliases {
		commands := dispatch.SplitCommands(alias.Commands)
		if len(commands) == 0 {
			logging.Warn().
				Str("alias", name).
				Msg("alias declares no commands, skipped")
			continue
		}
		cb := func(ctx context.Context, ec *dispatch.ExecContext) error {
			var firstErr error
			for _, cmd := range commands {
				res := ec.FollowUp(ctx, cmd, "")
				if res != nil && res.Err != nil && firstErr == nil {
					firstErr = res.Err
				}
			}
			return firstErr
		}
		if _, err := e.commands.Register(name, cb); err != nil {
			return fmt.Errorf("registering alias %s: %w", name, err)
		}
	}
	return nil
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *event.Bus { return e.bus }

// Commands returns the dispatch manager for registration and
// middleware wiring.
func (e *Engine) Commands() *dispatch.Manager { return e.commands }

// Triggers returns the trigger manager.
func (e *Engine) Triggers() *trigger.Manager { return e.triggers }

// Evaluator returns the expression evaluator shared by dispatches.
func (e *Engine) Evaluator() *expr.Evaluator { return e.eval }

// Document returns the currently loaded document, or nil.
func (e *Engine) Document() *dom.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc
}

// Path returns the file path of the loaded document, or empty for
// documents loaded from strings.
func (e *Engine) Path() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path
}

// LoadDocument parses markup and makes it the engine's document.
// Bindings and pending state from a previous document are dropped.
func (e *Engine) LoadDocument(markup, path string) error {
	doc, err := dom.ParseString(markup)
	if err != nil {
		return fmt.Errorf("parsing document %s: %w", pathLabel(path), err)
	}

	e.mu.Lock()
	if e.cancelObs != nil {
		e.cancelObs()
		e.cancelObs = nil
	}
	e.doc = doc
	e.path = path
	e.loadedAt = time.Now()
	e.mu.Unlock()

	e.commands.SetDocument(doc)
	e.triggers.SetDocument(doc)

	cancel := doc.Observe(e.onMutations)
	e.mu.Lock()
	e.cancelObs = cancel
	e.mu.Unlock()

	e.bus.Publish(event.Event{
		Type: event.DocumentLoaded,
		Data: event.DocumentLoadedData{Info: e.Info()},
	})
	logging.Info().
		Str("path", pathLabel(path)).
		Int("triggers", e.triggers.Bindings()).
		Msg("document loaded")
	return nil
}

// LoadFile reads path and loads it as the engine's document.
func (e *Engine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	return e.LoadDocument(string(data), path)
}

// Info snapshots the loaded document for events and the API.
func (e *Engine) Info() *types.DocumentInfo {
	e.mu.Lock()
	doc := e.doc
	path := e.path
	loadedAt := e.loadedAt
	e.mu.Unlock()
	if doc == nil {
		return nil
	}

	info := &types.DocumentInfo{
		Path:     path,
		Elements: len(doc.Find("*")),
		Triggers: e.triggers.Bindings(),
		Time:     types.DocumentTime{Loaded: loadedAt.UnixMilli()},
	}
	if title := doc.First("title"); title != nil {
		info.Title = title.Text()
	}
	return info
}

// Dispatch routes one raw command string through the dispatch
// manager and settles document mutations afterwards.
func (e *Engine) Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	res, err := e.commands.Dispatch(ctx, req)
	e.flush()
	return res, err
}

// FireEvent walks an event through the trigger manager and settles
// document mutations afterwards. It returns the number of commands
// dispatched.
func (e *Engine) FireEvent(ctx context.Context, ev *dom.Event) (int, error) {
	n, err := e.triggers.FireEvent(ctx, ev)
	e.flush()
	return n, err
}

// Activate programmatically invokes the command declared on the first
// element matching selector, as if its native activation ran.
// Multi-command declarations dispatch in order.
func (e *Engine) Activate(ctx context.Context, selector string) (*dispatch.Result, error) {
	doc := e.Document()
	if doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	el := doc.First(selector)
	if el == nil {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	if len(dispatch.SplitCommands(el.AttrOr("command", ""))) == 0 {
		return nil, fmt.Errorf("element %s declares no command", el.String())
	}

	res, _, err := e.dispatchDeclared(ctx, el)
	e.flush()
	return res, err
}

// dispatchDeclared runs an element's declared command list in order,
// reporting the last result, the number of commands dispatched, and
// the first error.
func (e *Engine) dispatchDeclared(ctx context.Context, el *dom.Element) (*dispatch.Result, int, error) {
	var last *dispatch.Result
	var firstErr error
	n := 0
	for _, cmd := range dispatch.SplitCommands(el.AttrOr("command", "")) {
		res, err := e.commands.Dispatch(ctx, dispatch.Request{
			Raw:     cmd,
			Invoker: el,
			Source:  types.SourceAPI,
		})
		n++
		if res != nil {
			last = res
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return last, n, firstErr
}

// Click synthesizes a click event on the first element matching
// selector and runs it through the trigger manager. When no binding
// handles the click and nothing prevented the default action, the
// element's own declared command activates, the way an invoker button
// activates natively.
func (e *Engine) Click(ctx context.Context, selector string) (int, error) {
	doc := e.Document()
	if doc == nil {
		return 0, fmt.Errorf("no document loaded")
	}
	el := doc.First(selector)
	if el == nil {
		return 0, fmt.Errorf("no element matches %q", selector)
	}

	ev := dom.NewEvent("click", el)
	n, err := e.FireEvent(ctx, ev)
	if err != nil || n > 0 || ev.DefaultPrevented() {
		return n, err
	}
	if el.AttrOr("command", "") == "" {
		return n, nil
	}

	_, activated, err := e.dispatchDeclared(ctx, el)
	e.flush()
	return n + activated, err
}

// HTML renders the loaded document.
func (e *Engine) HTML() (string, error) {
	doc := e.Document()
	if doc == nil {
		return "", fmt.Errorf("no document loaded")
	}
	return doc.Render()
}

// Close releases the engine: trigger bindings are dropped and the bus
// is closed when the engine created it.
func (e *Engine) Close() {
	e.triggers.SetDocument(nil)
	e.mu.Lock()
	if e.cancelObs != nil {
		e.cancelObs()
		e.cancelObs = nil
	}
	e.doc = nil
	e.mu.Unlock()
	if e.ownsBus {
		e.bus.Close()
	}
}

// flush delivers queued mutation records so observers see a settled
// tree.
func (e *Engine) flush() {
	if doc := e.Document(); doc != nil {
		doc.FlushMutations()
	}
}

// onMutations republishes document mutations on the bus.
func (e *Engine) onMutations(records []dom.MutationRecord) {
	mutations := make([]types.MutationInfo, 0, len(records))
	for _, rec := range records {
		info := types.MutationInfo{
			Kind:      string(rec.Type),
			Attribute: rec.Attribute,
		}
		if rec.Target != nil {
			info.TargetID = rec.Target.ID()
			info.TargetTag = rec.Target.Tag()
		}
		mutations = append(mutations, info)
	}
	e.bus.Publish(event.Event{
		Type: event.DocumentMutated,
		Data: event.DocumentMutatedData{Mutations: mutations},
	})
}

func pathLabel(path string) string {
	if path == "" {
		return "(inline)"
	}
	return path
}
