package policy

import (
	"context"

	"github.com/kallt/toolgate/internal/tool"
	"github.com/kallt/toolgate/pkg/call"
)

// Input is what the engine and its checkers see for one tool call.
type Input struct {
	// Request is the originating tool-call request.
	Request call.Request

	// Kind is the access class of the requested tool.
	Kind tool.Kind

	// Command is the shell command string for shell-class calls,
	// empty otherwise. Filled in by the engine when left blank.
	Command string
}

// Checker is a pluggable predicate consulted after static rule matching.
// Checkers can only tighten a decision, never loosen it: a checker Deny
// overrides a static Allow, and nothing a checker returns upgrades a
// Deny or a pending Ask to Allow. A checker that returns an error is
// treated as Deny (fail-closed).
//
// Safety checkers and hook checkers share this interface; hook checkers
// are a distinct registration class used for externally configured hook
// scripts that can veto a call independent of the safety pipeline.
type Checker interface {
	// Name identifies the checker in reasons and logs.
	Name() string

	// Check evaluates the call. It may perform I/O (e.g. a remote
	// safety classifier) and must observe ctx.
	Check(ctx context.Context, in Input) (CheckResult, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	// CheckerName identifies the checker.
	CheckerName string

	// Fn is the evaluation function.
	Fn func(ctx context.Context, in Input) (CheckResult, error)
}

// Name implements Checker.
func (c CheckerFunc) Name() string { return c.CheckerName }

// Check implements Checker.
func (c CheckerFunc) Check(ctx context.Context, in Input) (CheckResult, error) {
	return c.Fn(ctx, in)
}
