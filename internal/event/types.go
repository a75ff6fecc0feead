package event

import "github.com/conductor-html/conductor/pkg/types"

// CommandRegisteredData is the data for command.registered events.
// Uses "info" field for the command object.
type CommandRegisteredData struct {
	Info *types.CommandInfo `json:"info"`
}

// CommandUnregisteredData is the data for command.unregistered events.
type CommandUnregisteredData struct {
	Name string `json:"name"`
}

// CommandDispatchedData is the data for command.dispatched events.
// Uses "info" field for the invocation object.
type CommandDispatchedData struct {
	Info *types.Invocation `json:"info"`
}

// CommandSucceededData is the data for command.succeeded events.
type CommandSucceededData struct {
	Info *types.InvocationResult `json:"info"`
}

// CommandFailedData is the data for command.failed events.
type CommandFailedData struct {
	Info  *types.InvocationResult `json:"info"`
	Error *types.CommandError     `json:"error,omitempty"`
}

// CommandCompletedData is the data for command.completed events.
// Fires after success or failure, once chaining has been evaluated.
type CommandCompletedData struct {
	Info *types.InvocationResult `json:"info"`
}

// ChainScheduledData is the data for chain.scheduled events.
type ChainScheduledData struct {
	ParentID  string `json:"parentID"`
	Command   string `json:"command"`
	Condition string `json:"condition"` // gate that admitted the command
	DelayMS   int64  `json:"delayMs,omitempty"`
	Depth     int    `json:"depth"`
}

// ChainExecutedData is the data for chain.executed events.
type ChainExecutedData struct {
	ParentID string                  `json:"parentID"`
	Depth    int                     `json:"depth"`
	Info     *types.InvocationResult `json:"info"`
}

// TriggerBoundData is the data for trigger.bound events.
type TriggerBoundData struct {
	Info *types.TriggerInfo `json:"info"`
}

// TriggerUnboundData is the data for trigger.unbound events.
type TriggerUnboundData struct {
	ElementID string `json:"elementID,omitempty"`
	Event     string `json:"event"`
}

// TriggerFiredData is the data for trigger.fired events.
type TriggerFiredData struct {
	Info      *types.TriggerInfo `json:"info"`
	EventType string             `json:"eventType"`
	Key       string             `json:"key,omitempty"`
}

// DocumentLoadedData is the data for document.loaded events.
// Uses "info" field for the document object.
type DocumentLoadedData struct {
	Info *types.DocumentInfo `json:"info"`
}

// DocumentMutatedData is the data for document.mutated events.
type DocumentMutatedData struct {
	Mutations []types.MutationInfo `json:"mutations"`
}
