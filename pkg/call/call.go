// Package call defines the value types that cross the execution-core
// boundary: tool-call requests, lifecycle statuses, confirmation outcomes,
// and terminal responses. The scheduler, policy engine, and confirmation
// bus all speak in these types.
package call

import "encoding/json"

// Request is one tool invocation as emitted by a model turn (or generated
// by the host itself). Requests are immutable once handed to the scheduler.
type Request struct {
	// ID uniquely identifies this call within the host process.
	ID string `json:"id"`

	// ToolName is the registered name of the tool to invoke.
	ToolName string `json:"tool_name"`

	// Arguments is the structured argument payload for the tool.
	Arguments json.RawMessage `json:"arguments"`

	// ClientInitiated is true for calls the host generates itself
	// (slash commands and similar), false for model-generated calls.
	ClientInitiated bool `json:"client_initiated,omitempty"`

	// PromptID correlates the call to the model turn that requested it.
	PromptID string `json:"prompt_id,omitempty"`
}

// Outcome is the decision a confirmation handler returns for a call
// that reached awaiting_approval.
type Outcome string

// Outcome values for confirmation resolution.
const (
	// ProceedOnce approves this invocation only.
	ProceedOnce Outcome = "proceed_once"

	// ProceedAlways approves this invocation and persists an allow rule
	// so future identical calls skip confirmation.
	ProceedAlways Outcome = "proceed_always"

	// CancelCall declines the invocation; the call moves to cancelled.
	CancelCall Outcome = "cancel"
)

// Valid reports whether o is a recognised outcome.
func (o Outcome) Valid() bool {
	switch o {
	case ProceedOnce, ProceedAlways, CancelCall:
		return true
	default:
		return false
	}
}
