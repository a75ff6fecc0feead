package dispatch

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/internal/event"
	"github.com/conductor-html/conductor/internal/logging"
	"github.com/conductor-html/conductor/pkg/types"
)

// chainTag is the element name of declarative follow-up nodes.
const chainTag = "and-then"

// nodeLifecycleAttrs are chain-node bookkeeping attributes that must
// not leak onto the synthetic invoker of the chained dispatch.
var nodeLifecycleAttrs = map[string]bool{
	"data-state":     true,
	"data-condition": true,
	"data-delay":     true,
	"data-once":      true,
}

// chainScope carries the fallbacks a chain level resolves against:
// the invoking element (for its commandfor), the primary target
// identity, and the parent invocation for event correlation.
type chainScope struct {
	invoker  *dom.Element
	primary  *dom.Element
	parentID string
}

// runNodeChain walks the declarative <and-then> children of the
// invoker after its command settles. Children only run when the
// completing command is the one the invoker declares, so chained
// sub-commands sharing the invoker cannot re-fire its chain.
func (m *Manager) runNodeChain(ctx context.Context, ec *ExecContext, res *Result) int {
	invoker := ec.Invoker
	if invoker == nil {
		return 0
	}
	if own, ok := invoker.Attr("command"); ok && own != ec.Raw {
		return 0
	}

	var primary *dom.Element
	if !ec.synthetic && len(ec.targets) > 0 {
		primary = ec.targets[0]
	}
	scope := chainScope{invoker: invoker, primary: primary, parentID: ec.Invocation.ID}
	return m.walkChain(ctx, invoker, scope, res, ec.depth)
}

// walkChain runs each <and-then> child of host sequentially in
// document order.
func (m *Manager) walkChain(ctx context.Context, host *dom.Element, scope chainScope, res *Result, depth int) int {
	count := 0
	for _, node := range host.Children() {
		if node.Tag() != chainTag {
			continue
		}
		count += m.runChainNode(ctx, node, scope, res, depth)
	}
	return count
}

// runChainNode runs one chain node: gate checks, active marking,
// delay, fresh target resolution, dispatch, recursion into the node's
// own children with its fresh result, then settling (self-removal
// when once-flagged, completed otherwise).
func (m *Manager) runChainNode(ctx context.Context, node *dom.Element, scope chainScope, res *Result, depth int) int {
	if depth >= m.cfg.ChainDepth {
		logging.Warn().
			Int("depth", depth).
			Str("node", node.String()).
			Msg("chain depth limit reached, aborting chain walk")
		return 0
	}
	if !node.Attached() {
		return 0
	}

	switch st := node.AttrOr("data-state", ""); st {
	case "", "pending":
	case string(StateActive), string(StateCompleted):
		return 0
	default:
		logging.Warn().
			Str("state", st).
			Str("node", node.String()).
			Msg("unknown chain node state, skipping")
		return 0
	}

	// Condition miss leaves the node pending for a later result.
	switch cond := node.AttrOr("data-condition", "always"); cond {
	case "success":
		if !res.Success {
			return 0
		}
	case "error":
		if res.Success {
			return 0
		}
	case "always":
	default:
		logging.Warn().
			Str("condition", cond).
			Str("node", node.String()).
			Msg("unknown chain condition, treating as always")
	}

	// Mark active before any suspension so a re-fired parent cannot
	// run this node twice.
	node.SetAttr("data-state", string(StateActive))

	delayMS := nodeDelay(node)

	command := node.AttrOr("command", "")
	if command == "" {
		logging.Warn().Str("node", node.String()).Msg("chain node missing command attribute")
		m.settleChainNode(node)
		return 0
	}

	m.publish(event.Event{
		Type: event.ChainScheduled,
		Data: event.ChainScheduledData{
			ParentID:  scope.parentID,
			Command:   command,
			Condition: node.AttrOr("data-condition", "always"),
			DelayMS:   delayMS,
			Depth:     depth,
		},
	})

	if delayMS > 0 {
		select {
		case <-time.After(time.Duration(delayMS) * time.Millisecond):
		case <-ctx.Done():
			node.RemoveAttr("data-state")
			return 0
		}
		// The document may have moved on while this branch slept.
		if !node.Attached() {
			return 0
		}
	}

	selector := node.AttrOr("target", "")
	if selector == "" && scope.invoker != nil {
		selector = scope.invoker.AttrOr("commandfor", "")
	}
	var pre []*dom.Element
	if selector == "" && scope.primary != nil {
		pre = []*dom.Element{scope.primary}
	}

	syn := syntheticInvoker(node, command, selector)
	req := Request{
		Raw:            command,
		TargetSelector: selector,
		Targets:        pre,
		Invoker:        syn,
		Source:         types.SourceChain,
		depth:          depth + 1,
	}
	res2, err := m.dispatch(ctx, req)
	if err != nil {
		logging.Debug().Err(err).Str("command", command).Msg("chained command failed")
	}
	if res2 == nil {
		m.settleChainNode(node)
		return 0
	}

	m.publish(event.Event{
		Type: event.ChainExecuted,
		Data: event.ChainExecutedData{
			ParentID: scope.parentID,
			Depth:    depth,
			Info:     res2.Wire(),
		},
	})

	// Nested nodes consult this node's own fresh result.
	count := 1
	childScope := chainScope{
		invoker:  syn,
		primary:  attachedPrimary(res2),
		parentID: res2.Invocation.ID,
	}
	count += m.walkChain(ctx, node, childScope, res2, depth+1)

	m.settleChainNode(node)
	return count
}

// settleChainNode removes a once-flagged node from the tree,
// otherwise marks it completed.
func (m *Manager) settleChainNode(node *dom.Element) {
	if node.HasAttr("data-once") {
		node.Remove()
		return
	}
	node.SetAttr("data-state", string(StateCompleted))
}

// syntheticInvoker builds the throwaway invoker for a chained
// dispatch: it carries the node's data attributes as context plus the
// command pair, but never the node's own lifecycle attributes.
func syntheticInvoker(node *dom.Element, command, selector string) *dom.Element {
	syn := dom.NewElement(chainTag)
	syn.SetAttr("command", command)
	if selector != "" {
		syn.SetAttr("commandfor", selector)
	}
	for name, value := range node.Attrs() {
		if !strings.HasPrefix(name, "data-") || nodeLifecycleAttrs[name] {
			continue
		}
		syn.SetAttr(name, value)
	}
	return syn
}

// attachedPrimary returns the first attached target of a result, so a
// detached fallback element never becomes a chain target identity.
func attachedPrimary(res *Result) *dom.Element {
	if len(res.Targets) == 0 {
		return nil
	}
	if first := res.Targets[0]; first.Attached() {
		return first
	}
	return nil
}

// nodeDelay parses the node's declared delay in milliseconds.
func nodeDelay(node *dom.Element) int64 {
	raw := node.AttrOr("data-delay", "")
	if raw == "" {
		return 0
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		logging.Warn().Str("delay", raw).Str("node", node.String()).Msg("invalid chain delay ignored")
		return 0
	}
	return ms
}
