// Package tool defines the tool contract and registry for toolgate.
// The scheduler treats tools as opaque functions; the registry is the
// validation surface that rejects unknown names and malformed arguments
// before a call ever reaches policy evaluation.
package tool

import (
	"context"
	"encoding/json"
)

// Kind declares what class of access a tool requires. Approval modes
// key off this: auto-edit auto-approves Edit tools, plan mode denies
// everything that mutates.
type Kind string

// Kind values for tool access classes.
const (
	KindReadOnly Kind = "read_only"
	KindEdit     Kind = "edit"
	KindExecute  Kind = "execute"
	KindNetwork  Kind = "network"
)

// Mutating reports whether the kind can change state outside the host.
func (k Kind) Mutating() bool {
	return k != KindReadOnly
}

// Tool is the interface all toolgate tools implement.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Kind returns the tool's access class.
	Kind() Kind

	// Execute runs the tool. It must observe ctx cancellation: a tool
	// that ignores ctx runs to completion but its result is discarded.
	Execute(ctx context.Context, args json.RawMessage) (Output, error)
}

// ArgValidator is an optional interface a tool implements to reject
// malformed or disallowed arguments up front (e.g. a path outside the
// workspace). Validation failures never reach policy evaluation.
type ArgValidator interface {
	ValidateArgs(args json.RawMessage) error
}

// Describer is an optional interface a tool implements to render the
// human-readable confirmation detail for an invocation: a diff preview
// for edits, the command string for shell. Tools without it fall back
// to their Description.
type Describer interface {
	DescribeCall(args json.RawMessage) string
}

// Output is the result of a tool execution.
type Output struct {
	// Content is the output text from the tool.
	Content string

	// IsError indicates the output represents an error condition the
	// tool itself classified.
	IsError bool
}
