package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/pkg/types"
)

// Sentinel errors for dispatch failures. Check with errors.Is.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidName    = errors.New("invalid command name")
	ErrReservedName   = errors.New("reserved command name")
	ErrInvalidTarget  = errors.New("invalid target element")
	ErrTimeout        = errors.New("command timed out")
	ErrRateLimited    = errors.New("dispatch rate limit exceeded")
	ErrChainDepth     = errors.New("chain depth limit exceeded")
)

// CommandError wraps a command execution failure with the context a
// caller needs to diagnose it: the command, the element it ran
// against, the parameters, and a recovery hint.
type CommandError struct {
	Command   string
	ElementID string
	Params    []string
	Hint      string
	Err       error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command %q failed", e.Command)
	if e.ElementID != "" {
		fmt.Fprintf(&b, " on #%s", e.ElementID)
	}
	if len(e.Params) > 0 {
		fmt.Fprintf(&b, " with params [%s]", strings.Join(e.Params, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, " (%s)", e.Hint)
	}
	return b.String()
}

func (e *CommandError) Unwrap() error { return e.Err }

// Wire converts the error to its API representation.
func (e *CommandError) Wire() *types.CommandError {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return &types.CommandError{
		Command:   e.Command,
		ElementID: e.ElementID,
		Message:   msg,
		Recovery:  e.Hint,
	}
}

// wrapError attaches command/element/params context to an execution
// failure. Errors that are already a CommandError pass through
// unchanged so context attached closer to the failure wins.
func wrapError(err error, command string, target *dom.Element, params []string) error {
	if err == nil {
		return nil
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return err
	}
	elementID := ""
	if target != nil {
		elementID = target.ID()
	}
	hint := ""
	if errors.Is(err, ErrTimeout) {
		hint = "the callback ran past the configured timeout; check for unbounded waits"
	}
	return &CommandError{
		Command:   command,
		ElementID: elementID,
		Params:    params,
		Hint:      hint,
		Err:       err,
	}
}
