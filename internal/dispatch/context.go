package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/internal/logging"
	"github.com/conductor-html/conductor/pkg/types"
)

// ExecContext is the execution context handed to a command callback.
// One context is built per dispatch; Target is updated as the
// per-target loop advances.
type ExecContext struct {
	manager *Manager

	// Invocation is the wire-level record of this dispatch.
	Invocation *types.Invocation
	// Raw is the command string as dispatched, before interpolation.
	Raw string
	// Full is the command string after parameter interpolation.
	Full string
	// Name is the matched registered command name.
	Name string
	// Params are the sanitized, interpolated parameters.
	Params []string
	// RawParams are the parameters as written.
	RawParams []string
	// Invoker is the element that initiated the dispatch. Nil for
	// programmatic dispatches, synthetic for chained ones.
	Invoker *dom.Element
	// Target is the element the callback currently runs against.
	Target *dom.Element
	// Event is the triggering document event, if any.
	Event *dom.Event
	// Data is the interpolation context the parameters were
	// evaluated against.
	Data map[string]any

	targets   []*dom.Element
	depth     int
	source    types.InvocationSource
	synthetic bool
}

// Targets returns all resolved target elements for this dispatch.
func (ec *ExecContext) Targets() []*dom.Element {
	out := make([]*dom.Element, len(ec.targets))
	copy(out, ec.targets)
	return out
}

// Param returns the i-th interpolated parameter, or "" when absent.
func (ec *ExecContext) Param(i int) string {
	if i < 0 || i >= len(ec.Params) {
		return ""
	}
	return ec.Params[i]
}

// ParamOr returns the i-th parameter, or def when absent or empty.
func (ec *ExecContext) ParamOr(i int, def string) string {
	if p := ec.Param(i); p != "" {
		return p
	}
	return def
}

// Document returns the document this dispatch operates on.
func (ec *ExecContext) Document() *dom.Document {
	return ec.manager.Document()
}

// Source reports what initiated the dispatch.
func (ec *ExecContext) Source() types.InvocationSource { return ec.source }

// Depth reports the chain depth of the dispatch; zero for top-level
// dispatches.
func (ec *ExecContext) Depth() int { return ec.depth }

// FollowUp schedules another command through the standard dispatch
// path, at the current chain depth plus one. The target selector is
// resolved fresh; an empty selector reuses the current target.
func (ec *ExecContext) FollowUp(ctx context.Context, command, targetSel string) *Result {
	req := Request{
		Raw:            command,
		TargetSelector: targetSel,
		Invoker:        ec.Invoker,
		Source:         types.SourceChain,
		depth:          ec.depth + 1,
	}
	if targetSel == "" && ec.Target != nil && !ec.synthetic {
		req.Targets = []*dom.Element{ec.Target}
	}
	res, err := ec.manager.dispatch(ctx, req)
	if err != nil {
		logging.Debug().Err(err).Str("command", command).Msg("follow-up failed")
	}
	return res
}

// FollowUpOn registers command as a conditional follow-up on the
// invoker, picked up by attribute chaining when this dispatch
// completes. Condition must be success, error, or complete.
func (ec *ExecContext) FollowUpOn(condition, command string) error {
	switch condition {
	case "success", "error", "complete":
	default:
		return fmt.Errorf("unknown follow-up condition %q", condition)
	}
	if ec.Invoker == nil {
		return fmt.Errorf("no invoker to attach follow-up to")
	}
	attr := "data-after-" + condition
	existing := ec.Invoker.AttrOr(attr, "")
	if existing != "" {
		existing += string(CommandSep) + " "
	}
	ec.Invoker.SetAttr(attr, existing+command)
	return nil
}

// SyncAriaExpanded mirrors the target's visibility onto the invoker's
// aria-expanded attribute.
func (ec *ExecContext) SyncAriaExpanded() {
	if ec.Invoker == nil || ec.Target == nil {
		return
	}
	ec.Invoker.SetAttr("aria-expanded", strconv.FormatBool(!ec.Target.Hidden()))
}

// ReleaseGroup enforces mutual exclusion within the invoker's
// data-group: the invoker is marked pressed, every other member of
// the group unpressed.
func (ec *ExecContext) ReleaseGroup() {
	if ec.Invoker == nil {
		return
	}
	group := ec.Invoker.AttrOr("data-group", "")
	if group == "" {
		return
	}
	doc := ec.Document()
	if doc == nil {
		return
	}
	for _, el := range doc.Find(fmt.Sprintf(`[data-group=%q]`, group)) {
		if el.Equal(ec.Invoker) {
			el.SetAttr("aria-pressed", "true")
		} else {
			el.SetAttr("aria-pressed", "false")
		}
	}
}

// buildContext assembles the interpolation context for a dispatch:
// configured base values, invoker/target/event views, then
// data-context JSON from the target and finally the invoker, so
// invoker-declared values win.
func (m *Manager) buildContext(invoker, primary *dom.Element, ev *dom.Event) map[string]any {
	data := make(map[string]any)

	m.mu.RLock()
	for k, v := range m.baseContext {
		data[k] = v
	}
	m.mu.RUnlock()

	if invoker != nil {
		data["invoker"] = invoker.ContextMap()
	}
	if primary != nil {
		data["target"] = primary.ContextMap()
	}
	if ev != nil {
		data["event"] = ev.ContextMap()
		if ev.Detail != nil {
			data["detail"] = ev.Detail
		}
	}

	mergeDataContext(data, primary)
	mergeDataContext(data, invoker)
	return data
}

// mergeDataContext merges an element's data-context JSON object into
// the interpolation context. Malformed JSON is skipped with a
// warning.
func mergeDataContext(data map[string]any, el *dom.Element) {
	if el == nil {
		return
	}
	raw, ok := el.Attr("data-context")
	if !ok || raw == "" {
		return
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		logging.Warn().
			Err(err).
			Str("element", el.String()).
			Msg("ignoring malformed data-context")
		return
	}
	for k, v := range values {
		data[k] = v
	}
}
