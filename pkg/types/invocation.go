// Package types provides the core data types for the conductor server.
package types

// InvocationStatus is the terminal outcome of a dispatch.
type InvocationStatus string

const (
	StatusSucceeded InvocationStatus = "succeeded"
	StatusFailed    InvocationStatus = "failed"
)

// InvocationSource records what initiated a dispatch.
type InvocationSource string

const (
	SourceAPI     InvocationSource = "api"
	SourceTrigger InvocationSource = "trigger"
	SourceChain   InvocationSource = "chain"
)

// Invocation identifies one command dispatch.
type Invocation struct {
	ID        string           `json:"id"`
	Raw       string           `json:"raw"`
	Name      string           `json:"name"`
	Params    []string         `json:"params,omitempty"`
	InvokerID string           `json:"invokerID,omitempty"`
	TargetIDs []string         `json:"targetIDs,omitempty"`
	Source    InvocationSource `json:"source"`
	Time      InvocationTime   `json:"time"`
}

// InvocationTime contains timestamps for an invocation, in unix
// milliseconds.
type InvocationTime struct {
	Started  int64  `json:"started"`
	Finished *int64 `json:"finished,omitempty"`
}

// CommandError carries structured metadata about a failed dispatch.
type CommandError struct {
	Command   string `json:"command"`
	ElementID string `json:"elementID,omitempty"`
	Message   string `json:"message"`
	Recovery  string `json:"recovery,omitempty"`
}

// InvocationResult is the terminal record for a dispatch.
type InvocationResult struct {
	Invocation Invocation       `json:"invocation"`
	Status     InvocationStatus `json:"status"`
	Error      *CommandError    `json:"error,omitempty"`
	DurationMS int64            `json:"durationMs"`
	Chained    int              `json:"chained"`
}

// CommandInfo describes one registry entry.
type CommandInfo struct {
	Name       string `json:"name"`
	Builtin    bool   `json:"builtin"`
	Plugin     string `json:"plugin,omitempty"`
	Registered int64  `json:"registered"`
}

// TriggerInfo describes one live event binding.
type TriggerInfo struct {
	ElementID string   `json:"elementID,omitempty"`
	Tag       string   `json:"tag"`
	Event     string   `json:"event"`
	Modifiers []string `json:"modifiers,omitempty"`
	Keys      []string `json:"keys,omitempty"`
	Window    bool     `json:"window,omitempty"`
	Commands  string   `json:"commands"`
}
