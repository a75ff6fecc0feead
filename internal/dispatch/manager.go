package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/internal/event"
	"github.com/conductor-html/conductor/internal/expr"
	"github.com/conductor-html/conductor/internal/interpolate"
	"github.com/conductor-html/conductor/internal/logging"
	"github.com/conductor-html/conductor/internal/ratelimit"
	"github.com/conductor-html/conductor/internal/sanitize"
	"github.com/conductor-html/conductor/internal/suggest"
	"github.com/conductor-html/conductor/internal/target"
	"github.com/conductor-html/conductor/pkg/types"
)

// Defaults for manager configuration.
const (
	DefaultRateLimit  = 1000
	DefaultTimeout    = 30 * time.Second
	DefaultChainDepth = 25
)

// maxSuggestions caps the registered-command list in unknown-command
// diagnostics.
const maxSuggestions = 10

// Config holds dispatch manager settings.
type Config struct {
	// RateLimit is the dispatch ceiling per rolling second. Zero
	// selects the default; negative disables the gate.
	RateLimit int
	// Timeout bounds each command callback. Zero selects the
	// default; negative disables the bound.
	Timeout time.Duration
	// ChainDepth caps recursive chain execution. Zero selects the
	// default.
	ChainDepth int
	// TestMode surfaces structured dispatch errors to callers
	// instead of swallowing them after logging.
	TestMode bool
}

func (c Config) withDefaults() Config {
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ChainDepth == 0 {
		c.ChainDepth = DefaultChainDepth
	}
	return c
}

// Manager owns the command registry, state map, and middleware/plugin
// tables, and drives the dispatch lifecycle. Construct one per engine
// instance; there is no package-level singleton.
type Manager struct {
	cfg      Config
	registry *Registry
	states   *stateStore
	hooks    *hookTable
	limiter  *ratelimit.Window
	eval     *expr.Evaluator
	bus      *event.Bus

	pluginMu       sync.Mutex
	plugins        map[string]*Plugin
	pluginCommands map[string][]string

	metaMu sync.Mutex
	meta   map[string]types.CommandInfo

	mu          sync.RWMutex
	doc         *dom.Document
	baseContext map[string]any
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus routes lifecycle events through bus instead of the global
// event bus.
func WithBus(bus *event.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithEvaluator supplies a shared expression evaluator.
func WithEvaluator(ev *expr.Evaluator) Option {
	return func(m *Manager) { m.eval = ev }
}

// WithBaseContext seeds every interpolation context with values.
func WithBaseContext(values map[string]any) Option {
	return func(m *Manager) { m.baseContext = values }
}

// NewManager creates a dispatch manager.
func NewManager(cfg Config, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:            cfg,
		registry:       NewRegistry(),
		states:         newStateStore(),
		hooks:          newHookTable(),
		limiter:        ratelimit.NewWindow(cfg.RateLimit, time.Second),
		plugins:        make(map[string]*Plugin),
		pluginCommands: make(map[string][]string),
		meta:           make(map[string]types.CommandInfo),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.eval == nil {
		m.eval = expr.New(expr.Config{})
	}
	return m
}

// SetDocument points the manager at the document dispatches operate
// on.
func (m *Manager) SetDocument(doc *dom.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc
}

// Document returns the current document, which may be nil.
func (m *Manager) Document() *dom.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc
}

// Evaluator returns the expression evaluator used for interpolation.
func (m *Manager) Evaluator() *expr.Evaluator { return m.eval }

// Register adds a command callback under its normalized name.
func (m *Manager) Register(name string, cb Callback) (string, error) {
	return m.registerAs(name, cb, false, "")
}

// RegisterBuiltin adds a command flagged as part of the built-in pack.
func (m *Manager) RegisterBuiltin(name string, cb Callback) (string, error) {
	return m.registerAs(name, cb, true, "")
}

func (m *Manager) registerAs(name string, cb Callback, builtin bool, plugin string) (string, error) {
	normalized, err := m.registry.Register(name, cb)
	if err != nil {
		logging.Error().Err(err).Str("name", name).Msg("command registration rejected")
		return "", err
	}

	info := types.CommandInfo{
		Name:       normalized,
		Builtin:    builtin,
		Plugin:     plugin,
		Registered: time.Now().UnixMilli(),
	}
	m.metaMu.Lock()
	m.meta[normalized] = info
	m.metaMu.Unlock()

	m.publish(event.Event{
		Type: event.CommandRegistered,
		Data: event.CommandRegisteredData{Info: &info},
	})
	logging.Debug().Str("command", normalized).Bool("builtin", builtin).Msg("command registered")
	return normalized, nil
}

// Unregister removes a command. Unknown names are a no-op returning
// false.
func (m *Manager) Unregister(name string) bool {
	normalized, err := NormalizeName(name)
	if err != nil {
		return false
	}
	if !m.registry.Unregister(normalized) {
		return false
	}
	m.metaMu.Lock()
	delete(m.meta, normalized)
	m.metaMu.Unlock()

	m.publish(event.Event{
		Type: event.CommandUnregistered,
		Data: event.CommandUnregisteredData{Name: normalized},
	})
	return true
}

// Use attaches manager-level middleware to a lifecycle hook.
func (m *Manager) Use(hook Hook, fn Middleware) {
	m.hooks.add(hook, "", fn)
}

// Commands describes every registered command, sorted by name.
func (m *Manager) Commands() []types.CommandInfo {
	m.metaMu.Lock()
	defer m.metaMu.Unlock()
	out := make([]types.CommandInfo, 0, len(m.meta))
	for _, info := range m.meta {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns registered command names in registration order.
func (m *Manager) Names() []string { return m.registry.Names() }

// Resolve reports which registered command a raw command string would
// dispatch to. It applies the same longest-name-first matching as
// Dispatch without executing anything.
func (m *Manager) Resolve(raw string) (string, bool) {
	match, ok := m.registry.Lookup(strings.TrimSpace(raw))
	if !ok {
		return "", false
	}
	return match.Name, true
}

// SetCommandState overrides the execution state for a command and
// target pair.
func (m *Manager) SetCommandState(name string, tgt *dom.Element, s State) error {
	normalized, err := NormalizeName(name)
	if err != nil {
		return err
	}
	switch s {
	case "", StateActive, StateCompleted, StateDisabled, StateOnce:
	default:
		return fmt.Errorf("unknown command state %q", s)
	}
	m.states.set(normalized, tgt, s)
	return nil
}

// CommandState reports the execution state for a command and target
// pair.
func (m *Manager) CommandState(name string, tgt *dom.Element) State {
	normalized, err := NormalizeName(name)
	if err != nil {
		return ""
	}
	return m.states.get(normalized, tgt)
}

// ResetStates clears the per-(command, target) state map only.
func (m *Manager) ResetStates() { m.states.reset() }

// Reset clears the registry, state map, middleware table, and plugin
// table.
func (m *Manager) Reset() {
	m.registry.Clear()
	m.states.reset()
	m.hooks.reset()

	m.pluginMu.Lock()
	m.plugins = make(map[string]*Plugin)
	m.pluginCommands = make(map[string][]string)
	m.pluginMu.Unlock()

	m.metaMu.Lock()
	m.meta = make(map[string]types.CommandInfo)
	m.metaMu.Unlock()
}

func (m *Manager) publish(e event.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
		return
	}
	event.Publish(e)
}

// Request describes one dispatch.
type Request struct {
	// Raw is the command string, for example "--show:panel".
	Raw string
	// TargetSelector resolves the targets. When empty, the
	// invoker's commandfor attribute is consulted.
	TargetSelector string
	// Targets short-circuits selector resolution with pre-resolved
	// elements.
	Targets []*dom.Element
	// Invoker is the initiating element, if any.
	Invoker *dom.Element
	// Event is the triggering document event, if any.
	Event *dom.Event
	// Source records what initiated the dispatch. Defaults to
	// SourceAPI.
	Source types.InvocationSource
	// StopOnError stops the per-target loop at the first failure
	// instead of continuing with the remaining targets.
	StopOnError bool

	depth int
}

// Result is the outcome of one dispatch.
type Result struct {
	// Success is false when any target execution failed.
	Success bool
	// Err is the first execution error, already wrapped with
	// command context.
	Err error
	// Invocation is the wire-level dispatch record.
	Invocation *types.Invocation
	// Targets are the elements the command ran against. For a
	// no-target dispatch this holds the detached fallback element.
	Targets []*dom.Element
	// Chained counts follow-up commands scheduled by the chaining
	// engine.
	Chained int
	// DurationMS measures execution including chaining.
	DurationMS int64
}

// Wire converts the result to its API representation.
func (r *Result) Wire() *types.InvocationResult {
	out := &types.InvocationResult{
		Status:     types.StatusSucceeded,
		DurationMS: r.DurationMS,
		Chained:    r.Chained,
	}
	if r.Invocation != nil {
		out.Invocation = *r.Invocation
	}
	if r.Err != nil {
		out.Status = types.StatusFailed
		var ce *CommandError
		if errors.As(r.Err, &ce) {
			out.Error = ce.Wire()
		} else {
			out.Error = &types.CommandError{Message: r.Err.Error()}
		}
	}
	return out
}

// Dispatch routes a command through the full lifecycle: rate gate,
// lookup, context build, per-target execution, chaining. Outside test
// mode structured errors are logged and swallowed so a failed command
// cannot crash the caller; a nil result with a nil error means the
// dispatch was dropped (rate limit or unknown command).
func (m *Manager) Dispatch(ctx context.Context, req Request) (*Result, error) {
	res, err := m.dispatch(ctx, req)
	if err != nil && !m.cfg.TestMode {
		return res, nil
	}
	return res, err
}

// dispatch is the internal entry point shared by Dispatch and the
// chaining engine. It always reports errors.
func (m *Manager) dispatch(ctx context.Context, req Request) (*Result, error) {
	raw := strings.TrimSpace(req.Raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty command string", ErrInvalidName)
	}
	if req.Source == "" {
		req.Source = types.SourceAPI
	}

	if req.depth > m.cfg.ChainDepth {
		logging.Warn().
			Int("depth", req.depth).
			Str("command", raw).
			Msg("chain depth limit exceeded, dropping dispatch")
		return nil, ErrChainDepth
	}

	// Excess dispatches inside the rolling window are no-ops.
	if !m.limiter.Allow() {
		logging.Debug().Str("command", raw).Msg("dispatch rate limit exceeded, dropping")
		return nil, nil
	}

	match, ok := m.registry.Lookup(raw)
	if !ok {
		hint := m.RecoveryHint(raw)
		cmdErr := &CommandError{Command: raw, Hint: hint, Err: ErrUnknownCommand}
		logging.Warn().Str("command", raw).Str("recovery", hint).Msg("unknown command")
		m.publish(event.Event{
			Type: event.CommandFailed,
			Data: event.CommandFailedData{Error: cmdErr.Wire()},
		})
		return nil, cmdErr
	}

	// Resolve targets before the context build so the primary
	// target participates in interpolation.
	targets := req.Targets
	selector := req.TargetSelector
	if len(targets) == 0 {
		if selector == "" && req.Invoker != nil {
			selector = req.Invoker.AttrOr("commandfor", "")
		}
		if selector != "" {
			targets = target.Resolve(m.Document(), selector, req.Invoker)
		}
	}

	var primary *dom.Element
	if len(targets) > 0 {
		primary = targets[0]
	}
	data := m.buildContext(req.Invoker, primary, req.Event)

	rawParams := SplitParams(match.Remainder)
	params := make([]string, len(rawParams))
	for i, rp := range rawParams {
		p := sanitize.Clean(rp)
		if interpolate.HasPlaceholder(p) {
			p = interpolate.Interpolate(p, m.eval, data)
		}
		params[i] = p
	}
	full := match.Name
	if len(params) > 0 {
		full += string(ParamSep) + strings.Join(params, string(ParamSep))
	}

	inv := &types.Invocation{
		ID:     ulid.Make().String(),
		Raw:    raw,
		Name:   match.Name,
		Params: params,
		Source: req.Source,
		Time:   types.InvocationTime{Started: time.Now().UnixMilli()},
	}
	if req.Invoker != nil {
		inv.InvokerID = req.Invoker.ID()
	}
	for _, tgt := range targets {
		if id := tgt.ID(); id != "" {
			inv.TargetIDs = append(inv.TargetIDs, id)
		}
	}

	m.publish(event.Event{
		Type: event.CommandDispatched,
		Data: event.CommandDispatchedData{Info: inv},
	})

	// Target-less commands still execute once, against a detached
	// throwaway element, so globals-only commands stay usable.
	synthetic := false
	if len(targets) == 0 {
		logging.Debug().
			Str("command", raw).
			Str("selector", selector).
			Msg("no targets resolved, executing against detached element")
		targets = []*dom.Element{dom.NewElement("div")}
		synthetic = true
	}

	ec := &ExecContext{
		manager:    m,
		Invocation: inv,
		Raw:        raw,
		Full:       full,
		Name:       match.Name,
		Params:     params,
		RawParams:  rawParams,
		Invoker:    req.Invoker,
		Event:      req.Event,
		Data:       data,
		targets:    targets,
		depth:      req.depth,
		source:     req.Source,
		synthetic:  synthetic,
	}

	started := time.Now()
	var firstErr error

	if err := m.hooks.runGating(ctx, HookBeforeCommand, ec); err != nil {
		firstErr = wrapError(err, match.Name, primary, params)
		logging.Error().Err(firstErr).Str("command", match.Name).Msg("before-command middleware aborted dispatch")
	} else {
		for _, tgt := range targets {
			ec.Target = tgt
			if err := m.executeTarget(ctx, match, ec); err != nil {
				err = wrapError(err, match.Name, tgt, params)
				logging.Error().Err(err).Str("command", match.Name).Msg("command execution failed")
				if firstErr == nil {
					firstErr = err
				}
				if req.StopOnError {
					break
				}
			}
		}
	}

	finished := time.Now().UnixMilli()
	inv.Time.Finished = &finished

	res := &Result{
		Success:    firstErr == nil,
		Err:        firstErr,
		Invocation: inv,
		Targets:    targets,
		DurationMS: time.Since(started).Milliseconds(),
	}

	if res.Success {
		m.publish(event.Event{
			Type: event.CommandSucceeded,
			Data: event.CommandSucceededData{Info: res.Wire()},
		})
	} else {
		wire := res.Wire()
		m.publish(event.Event{
			Type: event.CommandFailed,
			Data: event.CommandFailedData{Info: wire, Error: wire.Error},
		})
	}

	// Chaining runs once per dispatch, anchored on the first target,
	// for success and failure alike. A failure here never masks the
	// execution error.
	ec.Target = targets[0]
	res.Chained += m.runAttrChain(ctx, ec, res)
	res.Chained += m.runNodeChain(ctx, ec, res)
	res.DurationMS = time.Since(started).Milliseconds()

	m.publish(event.Event{
		Type: event.CommandCompleted,
		Data: event.CommandCompletedData{Info: res.Wire()},
	})

	return res, firstErr
}

// executeTarget runs the lifecycle for one target: gating middleware,
// structural validation, the state gate, the callback under its
// timeout, then result middleware in success/error, complete,
// after-command order regardless of outcome.
func (m *Manager) executeTarget(ctx context.Context, match Match, ec *ExecContext) error {
	tgt := ec.Target

	if err := m.hooks.runGating(ctx, HookBeforeValidation, ec); err != nil {
		return err
	}

	if tgt == nil {
		return fmt.Errorf("%w: nil target", ErrInvalidTarget)
	}
	if !ec.synthetic && !tgt.Attached() {
		return fmt.Errorf("%w: %s is not attached to the document", ErrInvalidTarget, tgt)
	}

	if err := m.hooks.runGating(ctx, HookAfterValidation, ec); err != nil {
		return err
	}

	st := m.states.get(ec.Name, tgt)
	if st == "" && ec.Invoker != nil && ec.Invoker.HasAttr("data-once") {
		st = StateOnce
		m.states.set(ec.Name, tgt, st)
	}
	if st.skips() {
		logging.Debug().
			Str("command", ec.Name).
			Str("target", tgt.String()).
			Str("state", string(st)).
			Msg("skipping command by state")
		return nil
	}

	err := runWithTimeout(ctx, m.cfg.Timeout, func(c context.Context) error {
		return match.Callback(c, ec)
	})

	res := &Result{Success: err == nil, Err: err, Invocation: ec.Invocation}
	if err == nil {
		if st == StateOnce {
			m.states.set(ec.Name, tgt, StateCompleted)
		}
		m.hooks.runObserving(ctx, HookOnSuccess, ec, res)
	} else {
		m.hooks.runObserving(ctx, HookOnError, ec, res)
	}
	m.hooks.runObserving(ctx, HookOnComplete, ec, res)
	m.hooks.runObserving(ctx, HookAfterCommand, ec, res)

	return err
}

// RecoveryHint builds the recovery text for an unresolved
// command: near-name matches first, then the head of the registry.
func (m *Manager) RecoveryHint(raw string) string {
	name := raw
	if i := strings.IndexByte(raw, ParamSep); i >= 0 {
		name = raw[:i]
	}
	names := m.registry.Names()

	var b strings.Builder
	if near := suggest.Closest(name, names, 3); len(near) > 0 {
		fmt.Fprintf(&b, "did you mean %q?", near[0])
	}
	if len(names) > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "registered commands: %s", suggest.List(names, maxSuggestions))
	} else if b.Len() == 0 {
		b.WriteString("no commands registered")
	}
	return b.String()
}
