package tool

import (
	"context"
	"encoding/json"
)

// Func adapts a plain function into a Tool. Used by hosts that define
// tools inline and throughout the test suites.
type Func struct {
	// ToolName is the unique tool identifier.
	ToolName string

	// Desc is the human-readable description.
	Desc string

	// ToolKind is the access class. Defaults to KindReadOnly when empty.
	ToolKind Kind

	// ParamSchema is the JSON Schema for the arguments. Defaults to an
	// empty object schema when nil.
	ParamSchema json.RawMessage

	// Fn is the execution function.
	Fn func(ctx context.Context, args json.RawMessage) (Output, error)

	// DescribeFn, if set, renders the per-invocation confirmation detail.
	DescribeFn func(args json.RawMessage) string

	// ValidateFn, if set, vets arguments before policy evaluation.
	ValidateFn func(args json.RawMessage) error
}

// Name implements Tool.
func (f *Func) Name() string { return f.ToolName }

// Description implements Tool.
func (f *Func) Description() string { return f.Desc }

// Schema implements Tool.
func (f *Func) Schema() json.RawMessage {
	if f.ParamSchema == nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return f.ParamSchema
}

// Kind implements Tool.
func (f *Func) Kind() Kind {
	if f.ToolKind == "" {
		return KindReadOnly
	}
	return f.ToolKind
}

// Execute implements Tool.
func (f *Func) Execute(ctx context.Context, args json.RawMessage) (Output, error) {
	return f.Fn(ctx, args)
}

// DescribeCall implements Describer when DescribeFn is set.
func (f *Func) DescribeCall(args json.RawMessage) string {
	if f.DescribeFn == nil {
		return f.Desc
	}
	return f.DescribeFn(args)
}

// ValidateArgs implements ArgValidator when ValidateFn is set.
func (f *Func) ValidateArgs(args json.RawMessage) error {
	if f.ValidateFn == nil {
		return nil
	}
	return f.ValidateFn(args)
}
