package trigger

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/net/html"

	"github.com/conductor-html/conductor/internal/dispatch"
	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/internal/event"
	"github.com/conductor-html/conductor/internal/logging"
	"github.com/conductor-html/conductor/pkg/types"
)

// Dispatcher routes commands resolved from trigger fires.
// *dispatch.Manager satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// binding is one attached trigger declaration on one element.
type binding struct {
	el      *dom.Element
	attr    string
	trigger Trigger
}

// Manager attaches trigger declarations to document elements and
// turns qualifying events into command dispatches. Binding is
// idempotent per element and declaring attribute; a document mutation
// observer keeps attachments in sync with the live tree.
type Manager struct {
	dispatcher Dispatcher
	bus        *event.Bus

	mu        sync.Mutex
	doc       *dom.Document
	bindings  map[*html.Node]map[string]*binding
	windowed  []*binding
	cancelObs func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus routes trigger lifecycle events through bus instead of the
// global event bus.
func WithBus(bus *event.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// NewManager creates a trigger manager dispatching through d.
func NewManager(d Dispatcher, opts ...Option) *Manager {
	m := &Manager{
		dispatcher: d,
		bindings:   make(map[*html.Node]map[string]*binding),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetDocument points the manager at a document: existing bindings are
// dropped, every element declaring a trigger is bound, and a mutation
// observer keeps bindings current from then on.
func (m *Manager) SetDocument(doc *dom.Document) {
	m.mu.Lock()
	if m.cancelObs != nil {
		m.cancelObs()
		m.cancelObs = nil
	}
	m.doc = doc
	m.bindings = make(map[*html.Node]map[string]*binding)
	m.windowed = nil
	m.mu.Unlock()

	if doc == nil {
		return
	}
	m.BindAll()
	cancel := doc.Observe(m.onMutations)
	m.mu.Lock()
	m.cancelObs = cancel
	m.mu.Unlock()
}

// BindAll scans the document and binds every element declaring a
// trigger attribute. Already-bound declarations are left untouched.
func (m *Manager) BindAll() {
	m.mu.Lock()
	doc := m.doc
	m.mu.Unlock()
	if doc == nil {
		return
	}
	for _, el := range doc.Find("[command-on], [data-on-event]") {
		m.Bind(el)
	}
}

// Bind attaches the element's trigger declarations. Binding an
// already-bound element with unchanged declarations is a no-op;
// changed declarations rebind.
func (m *Manager) Bind(el *dom.Element) {
	if el == nil {
		return
	}
	for _, attr := range triggerAttrs {
		m.bindAttr(el, attr)
	}
}

// Unbind detaches every trigger declaration of the element.
func (m *Manager) Unbind(el *dom.Element) {
	if el == nil {
		return
	}
	for _, attr := range triggerAttrs {
		m.unbindAttr(el, attr)
	}
}

// Bindings reports how many trigger declarations are attached.
func (m *Manager) Bindings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, byAttr := range m.bindings {
		n += len(byAttr)
	}
	return n
}

// Infos describes every attached binding, ordered by element ID, tag,
// and event so the listing is stable.
func (m *Manager) Infos() []types.TriggerInfo {
	m.mu.Lock()
	out := make([]types.TriggerInfo, 0, len(m.bindings))
	for _, byAttr := range m.bindings {
		for _, b := range byAttr {
			out = append(out, *bindingInfo(b))
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ElementID != out[j].ElementID {
			return out[i].ElementID < out[j].ElementID
		}
		if out[i].Tag != out[j].Tag {
			return out[i].Tag < out[j].Tag
		}
		return out[i].Event < out[j].Event
	})
	return out
}

func (m *Manager) bindAttr(el *dom.Element, attr string) {
	raw, ok := el.Attr(attr)
	if !ok || !el.Attached() {
		m.unbindAttr(el, attr)
		return
	}
	trig, err := ParseTrigger(raw)
	if err != nil {
		logging.Warn().
			Err(err).
			Str("attr", attr).
			Str("element", el.String()).
			Msg("invalid trigger declaration ignored")
		m.unbindAttr(el, attr)
		return
	}

	var replaced *binding
	m.mu.Lock()
	node := el.Node()
	byAttr := m.bindings[node]
	if existing, ok := byAttr[attr]; ok {
		if existing.trigger.Raw() == raw {
			m.mu.Unlock()
			return
		}
		m.removeLocked(existing)
		replaced = existing
	}
	b := &binding{el: el, attr: attr, trigger: trig}
	if byAttr == nil {
		byAttr = make(map[string]*binding, len(triggerAttrs))
		m.bindings[node] = byAttr
	}
	byAttr[attr] = b
	if trig.Window {
		m.windowed = append(m.windowed, b)
	}
	m.mu.Unlock()

	if replaced != nil {
		m.publish(event.Event{
			Type: event.TriggerUnbound,
			Data: event.TriggerUnboundData{ElementID: el.ID(), Event: replaced.trigger.Event},
		})
	}
	m.publish(event.Event{
		Type: event.TriggerBound,
		Data: event.TriggerBoundData{Info: bindingInfo(b)},
	})
	logging.Debug().
		Str("event", trig.Event).
		Str("element", el.String()).
		Bool("window", trig.Window).
		Msg("trigger bound")
}

func (m *Manager) unbindAttr(el *dom.Element, attr string) {
	m.mu.Lock()
	byAttr := m.bindings[el.Node()]
	b, ok := byAttr[attr]
	if ok {
		m.removeLocked(b)
	}
	m.mu.Unlock()

	if ok {
		m.publish(event.Event{
			Type: event.TriggerUnbound,
			Data: event.TriggerUnboundData{ElementID: el.ID(), Event: b.trigger.Event},
		})
	}
}

// removeLocked drops a binding. Callers hold m.mu.
func (m *Manager) removeLocked(b *binding) {
	node := b.el.Node()
	byAttr := m.bindings[node]
	delete(byAttr, b.attr)
	if len(byAttr) == 0 {
		delete(m.bindings, node)
	}
	if b.trigger.Window {
		for i, w := range m.windowed {
			if w == b {
				m.windowed = append(m.windowed[:i], m.windowed[i+1:]...)
				break
			}
		}
	}
}

// onMutations keeps bindings in sync with the live tree: trigger
// attribute changes rebind the element, child-list changes prune
// bindings of detached elements and bind newly inserted declarations.
func (m *Manager) onMutations(records []dom.MutationRecord) {
	resync := false
	for _, rec := range records {
		switch rec.Type {
		case dom.MutationAttributes:
			if rec.Attribute == AttrCommandOn || rec.Attribute == AttrOnEvent {
				m.bindAttr(rec.Target, rec.Attribute)
			}
		case dom.MutationChildList:
			resync = true
		}
	}
	if resync {
		m.pruneDetached()
		m.BindAll()
	}
}

// pruneDetached unbinds every element no longer in the tree.
func (m *Manager) pruneDetached() {
	m.mu.Lock()
	var stale []*binding
	for _, byAttr := range m.bindings {
		for _, b := range byAttr {
			if !b.el.Attached() {
				stale = append(stale, b)
			}
		}
	}
	for _, b := range stale {
		m.removeLocked(b)
	}
	m.mu.Unlock()

	for _, b := range stale {
		m.publish(event.Event{
			Type: event.TriggerUnbound,
			Data: event.TriggerUnboundData{ElementID: b.el.ID(), Event: b.trigger.Event},
		})
	}
}

// FireEvent walks an event through the document: the target element's
// bindings run first, then each ancestor's in bubbling order, then
// window-scoped bindings, stopping early when propagation is halted.
// It returns the number of commands dispatched.
func (m *Manager) FireEvent(ctx context.Context, ev *dom.Event) (int, error) {
	if ev == nil || ev.Target == nil {
		return 0, nil
	}

	dispatched := 0
	var firstErr error

	path := append([]*dom.Element{ev.Target}, ev.Target.Ancestors()...)
	for _, el := range path {
		ev.CurrentTarget = el
		for _, b := range m.bindingsFor(el) {
			if b.trigger.Window || b.trigger.Event != ev.Type {
				continue
			}
			n, err := m.fire(ctx, b, ev)
			dispatched += n
			if firstErr == nil && err != nil {
				firstErr = err
			}
		}
		if ev.PropagationStopped() {
			return dispatched, firstErr
		}
	}

	for _, b := range m.windowBindings() {
		if b.trigger.Event != ev.Type {
			continue
		}
		ev.CurrentTarget = b.el
		n, err := m.fire(ctx, b, ev)
		dispatched += n
		if firstErr == nil && err != nil {
			firstErr = err
		}
		if ev.PropagationStopped() {
			break
		}
	}
	return dispatched, firstErr
}

// fire runs one binding against a qualifying event: key filters gate
// the dispatch, prevent/stop modifiers mark the event, each command
// in the declaration dispatches in order, and a once trigger consumes
// its declaring attribute.
func (m *Manager) fire(ctx context.Context, b *binding, ev *dom.Event) (int, error) {
	if !b.trigger.matchesKey(ev.Key) {
		logging.Debug().
			Str("key", ev.Key).
			Str("event", ev.Type).
			Str("element", b.el.String()).
			Msg("event key rejected by trigger filter")
		return 0, nil
	}
	if b.trigger.Prevent {
		ev.PreventDefault()
	}
	if b.trigger.Stop {
		ev.StopPropagation()
	}

	info := bindingInfo(b)
	commands := dispatch.SplitCommands(info.Commands)
	if len(commands) == 0 {
		logging.Debug().
			Str("event", ev.Type).
			Str("element", b.el.String()).
			Msg("trigger fired without a command to dispatch")
	} else {
		m.publish(event.Event{
			Type: event.TriggerFired,
			Data: event.TriggerFiredData{Info: info, EventType: ev.Type, Key: ev.Key},
		})
	}

	selector := targetOverride(b.el, b.attr)
	dispatched := 0
	var firstErr error
	for _, cmd := range commands {
		res, err := m.dispatcher.Dispatch(ctx, dispatch.Request{
			Raw:            cmd,
			TargetSelector: selector,
			Invoker:        b.el,
			Event:          ev,
			Source:         types.SourceTrigger,
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if res != nil {
			dispatched++
		}
	}

	if b.trigger.Once {
		b.el.RemoveAttr(b.attr)
		m.unbindAttr(b.el, b.attr)
	}
	return dispatched, firstErr
}

// bindingsFor snapshots an element's bindings in declaration-attribute
// order.
func (m *Manager) bindingsFor(el *dom.Element) []*binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	byAttr := m.bindings[el.Node()]
	if len(byAttr) == 0 {
		return nil
	}
	out := make([]*binding, 0, len(byAttr))
	for _, attr := range triggerAttrs {
		if b, ok := byAttr[attr]; ok {
			out = append(out, b)
		}
	}
	return out
}

// windowBindings snapshots window-scoped bindings in bind order.
func (m *Manager) windowBindings() []*binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*binding, len(m.windowed))
	copy(out, m.windowed)
	return out
}

// bindingInfo renders a binding for events and diagnostics, resolving
// the command string the way firing will.
func bindingInfo(b *binding) *types.TriggerInfo {
	return &types.TriggerInfo{
		ElementID: b.el.ID(),
		Tag:       b.el.Tag(),
		Event:     b.trigger.Event,
		Modifiers: b.trigger.Modifiers,
		Keys:      b.trigger.Keys,
		Window:    b.trigger.Window,
		Commands:  commandsFor(b.el, b.attr),
	}
}

// commandsFor resolves the command string a binding fires: the
// custom-event declaration may override the generic command attribute,
// otherwise the generic attribute applies.
func commandsFor(el *dom.Element, attr string) string {
	if attr == AttrOnEvent {
		if cmd, ok := el.Attr(AttrOnEventCommand); ok {
			return cmd
		}
	}
	return el.AttrOr("command", "")
}

// targetOverride resolves an explicit target selector for a binding.
// Empty means dispatch falls back to the invoker's commandfor.
func targetOverride(el *dom.Element, attr string) string {
	if attr == AttrOnEvent {
		if sel, ok := el.Attr(AttrOnEventCommandfor); ok {
			return sel
		}
	}
	return ""
}

func (m *Manager) publish(e event.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
		return
	}
	event.Publish(e)
}
