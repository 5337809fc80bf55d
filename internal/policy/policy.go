// Package policy implements the policy engine: static rule matching,
// approval-mode fallbacks, pluggable safety and hook checkers, and the
// non-bypassable shell safety floor. The engine decides, for every tool
// call, whether it may proceed automatically, must be denied, or needs
// interactive confirmation.
package policy

import "fmt"

// Decision is the policy outcome for a tool call.
type Decision string

// Decision values.
const (
	// Allow permits execution without user confirmation.
	Allow Decision = "allow"

	// Ask requires user confirmation before execution.
	Ask Decision = "ask"

	// Deny blocks execution entirely.
	Deny Decision = "deny"
)

// Valid reports whether d is a recognised decision.
func (d Decision) Valid() bool {
	switch d {
	case Allow, Ask, Deny:
		return true
	default:
		return false
	}
}

// CheckResult is a decision paired with an optional human-readable reason.
type CheckResult struct {
	Decision Decision
	Reason   string

	// CheckerFailed marks a Deny caused by a checker fault rather than
	// a deliberate veto, so callers can classify the error distinctly.
	CheckerFailed bool
}

// ApprovalMode is the process-wide approval posture. It is read on every
// Check, never cached, so a mode change takes effect on the next
// evaluation.
type ApprovalMode string

// ApprovalMode values.
const (
	// ModeDefault asks per policy: calls without a matching rule require
	// confirmation.
	ModeDefault ApprovalMode = "default"

	// ModeAutoEdit auto-approves file-editing tools only.
	ModeAutoEdit ApprovalMode = "auto_edit"

	// ModeYOLO auto-approves everything.
	ModeYOLO ApprovalMode = "yolo"

	// ModePlan is read-only: mutating tools are denied outright.
	ModePlan ApprovalMode = "plan"
)

// ParseApprovalMode converts a configuration string to an ApprovalMode.
func ParseApprovalMode(s string) (ApprovalMode, error) {
	switch ApprovalMode(s) {
	case ModeDefault, ModeAutoEdit, ModeYOLO, ModePlan:
		return ApprovalMode(s), nil
	case "":
		return ModeDefault, nil
	case "auto-edit":
		// The CLI help and config docs spell the mode with a hyphen.
		return ModeAutoEdit, nil
	default:
		return "", fmt.Errorf("policy: unknown approval mode %q", s)
	}
}
