package builtins

import (
	"context"
	"fmt"
	"strings"

	"github.com/conductor-html/conductor/internal/dispatch"
)

// restParams rejoins the parameters from index i on, restoring the
// separators the splitter consumed. URLs and attribute values with
// colons survive the round trip this way.
func restParams(params []string, i int) string {
	if i >= len(params) {
		return ""
	}
	return strings.Join(params[i:], string(dispatch.ParamSep))
}

// textCommand implements --text:set|append|clear.
func textCommand(ctx context.Context, ec *dispatch.ExecContext) error {
	mode := ec.Param(0)
	rest := restParams(ec.Params, 1)
	switch mode {
	case "set":
		ec.Target.SetText(rest)
	case "append":
		ec.Target.SetText(ec.Target.Text() + rest)
	case "clear":
		ec.Target.SetText("")
	default:
		return fmt.Errorf("unknown text mode %q", mode)
	}
	return nil
}

// attrCommand implements --attr:set:name:value, --attr:remove:name and
// --attr:toggle:name.
func attrCommand(ctx context.Context, ec *dispatch.ExecContext) error {
	mode := ec.Param(0)
	name := ec.Param(1)
	if name == "" {
		return fmt.Errorf("attr command needs an attribute name")
	}
	switch mode {
	case "set":
		ec.Target.SetAttr(name, restParams(ec.Params, 2))
	case "remove":
		ec.Target.RemoveAttr(name)
	case "toggle":
		ec.Target.ToggleAttr(name)
	default:
		return fmt.Errorf("unknown attr mode %q", mode)
	}
	return nil
}

// classCommand implements --class:add|remove|toggle with one class
// name per remaining parameter.
func classCommand(ctx context.Context, ec *dispatch.ExecContext) error {
	mode := ec.Param(0)
	names := ec.Params
	if len(names) < 2 {
		return fmt.Errorf("class command needs a class name")
	}
	for _, name := range names[1:] {
		if name == "" {
			continue
		}
		switch mode {
		case "add":
			ec.Target.AddClass(name)
		case "remove":
			ec.Target.RemoveClass(name)
		case "toggle":
			ec.Target.ToggleClass(name)
		default:
			return fmt.Errorf("unknown class mode %q", mode)
		}
	}
	return nil
}

// showCommand reveals the target and mirrors the state onto the
// invoker's aria-expanded attribute.
func showCommand(ctx context.Context, ec *dispatch.ExecContext) error {
	ec.Target.Show()
	ec.SyncAriaExpanded()
	return nil
}

// hideCommand hides the target.
func hideCommand(ctx context.Context, ec *dispatch.ExecContext) error {
	ec.Target.Hide()
	ec.SyncAriaExpanded()
	return nil
}

// toggleCommand flips the target's visibility. Invokers carrying a
// data-group get mutual exclusion across the group.
func toggleCommand(ctx context.Context, ec *dispatch.ExecContext) error {
	if ec.Target.Hidden() {
		ec.Target.Show()
	} else {
		ec.Target.Hide()
	}
	ec.SyncAriaExpanded()
	ec.ReleaseGroup()
	return nil
}

// valueCommand implements --value:set:v and --value:clear for form
// elements.
func valueCommand(ctx context.Context, ec *dispatch.ExecContext) error {
	mode := ec.Param(0)
	switch mode {
	case "set":
		ec.Target.SetValue(restParams(ec.Params, 1))
	case "clear":
		ec.Target.SetValue("")
	default:
		return fmt.Errorf("unknown value mode %q", mode)
	}
	return nil
}

// removeCommand detaches the target from the document.
func removeCommand(ctx context.Context, ec *dispatch.ExecContext) error {
	ec.Target.Remove()
	return nil
}

// echoCommand writes its first parameter into the target's text.
func echoCommand(ctx context.Context, ec *dispatch.ExecContext) error {
	ec.Target.SetText(ec.Param(0))
	return nil
}
