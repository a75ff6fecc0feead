package dispatch

import (
	"context"

	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/internal/event"
	"github.com/conductor-html/conductor/internal/logging"
	"github.com/conductor-html/conductor/pkg/types"
)

// Attribute names consulted for attribute-driven chaining, in the
// order they fire.
const (
	attrAndThen       = "data-and-then"
	attrAfterSuccess  = "data-after-success"
	attrAfterError    = "data-after-error"
	attrAfterComplete = "data-after-complete"
	attrThenTarget    = "data-then-target"
)

// runAttrChain fires the invoker's declarative follow-up attributes
// after its command settles: data-and-then (consumed on read), then
// data-after-success or data-after-error depending on the outcome,
// then data-after-complete. Attributes are only honored when the
// completing command is the invoker's own declared command, so a
// chained sub-command sharing the invoker cannot re-trigger them.
func (m *Manager) runAttrChain(ctx context.Context, ec *ExecContext, res *Result) int {
	invoker := ec.Invoker
	if invoker == nil {
		return 0
	}
	if own, ok := invoker.Attr("command"); !ok || own != ec.Raw {
		return 0
	}

	count := 0

	// Consumed before dispatching so nothing the chain does can make
	// it fire twice.
	if list, ok := invoker.Attr(attrAndThen); ok {
		invoker.RemoveAttr(attrAndThen)
		count += m.fireAttrList(ctx, ec, list, "always")
	}
	if res.Success {
		count += m.fireAttrList(ctx, ec, invoker.AttrOr(attrAfterSuccess, ""), "success")
	} else {
		count += m.fireAttrList(ctx, ec, invoker.AttrOr(attrAfterError, ""), "error")
	}
	count += m.fireAttrList(ctx, ec, invoker.AttrOr(attrAfterComplete, ""), "complete")
	return count
}

// fireAttrList dispatches every command in a comma-separated chain
// attribute. Targets re-resolve at fire time: data-then-target wins,
// then the invoker's commandfor, then the primary target identity of
// the completed command.
func (m *Manager) fireAttrList(ctx context.Context, ec *ExecContext, list, condition string) int {
	commands := SplitCommands(list)
	if len(commands) == 0 {
		return 0
	}

	invoker := ec.Invoker
	selector := invoker.AttrOr(attrThenTarget, "")
	if selector == "" {
		selector = invoker.AttrOr("commandfor", "")
	}
	var pre []*dom.Element
	if selector == "" && !ec.synthetic && len(ec.targets) > 0 {
		pre = []*dom.Element{ec.targets[0]}
	}

	count := 0
	for _, command := range commands {
		m.publish(event.Event{
			Type: event.ChainScheduled,
			Data: event.ChainScheduledData{
				ParentID:  ec.Invocation.ID,
				Command:   command,
				Condition: condition,
				Depth:     ec.depth,
			},
		})

		req := Request{
			Raw:            command,
			TargetSelector: selector,
			Targets:        pre,
			Invoker:        invoker,
			Source:         types.SourceChain,
			depth:          ec.depth + 1,
		}
		res2, err := m.dispatch(ctx, req)
		if err != nil {
			logging.Debug().Err(err).Str("command", command).Msg("chained command failed")
		}
		if res2 == nil {
			continue
		}
		count++
		m.publish(event.Event{
			Type: event.ChainExecuted,
			Data: event.ChainExecutedData{
				ParentID: ec.Invocation.ID,
				Depth:    ec.depth,
				Info:     res2.Wire(),
			},
		})
	}
	return count
}
