// Package hook adapts external commands into policy checkers. A hook
// receives the pending call as JSON on stdin and signals its verdict
// through its exit code. This lets operators veto tool calls with
// their own scripts without rebuilding the host.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/kallt/toolgate/internal/policy"
)

// Exit codes understood by the host.
const (
	// exitPass means the hook has no objection.
	exitPass = 0

	// exitDeny vetoes the call. Anything the hook printed becomes
	// the denial reason.
	exitDeny = 2
)

// defaultTimeout bounds a single hook invocation.
const defaultTimeout = 30 * time.Second

// payload is the JSON document a hook reads from stdin.
type payload struct {
	CallID    string          `json:"call_id"`
	Tool      string          `json:"tool"`
	Kind      string          `json:"kind"`
	Command   string          `json:"command,omitempty"`
	Arguments json.RawMessage `json:"arguments"`
}

// ExecHookConfig configures one external hook.
type ExecHookConfig struct {
	// Name identifies the hook in logs and audit events.
	Name string

	// Command is the shell command to run for each checked call.
	Command string

	// Timeout bounds one invocation. Zero means defaultTimeout.
	Timeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ExecHook runs a configured command for every checked call. Exit 0
// passes, exit 2 denies, and anything else (including a timeout)
// counts as a hook failure, which the policy engine treats as a
// denial.
type ExecHook struct {
	name    string
	command string
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecHook creates a hook from its configuration.
func NewExecHook(cfg ExecHookConfig) *ExecHook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Command
	}
	return &ExecHook{
		name:    name,
		command: cfg.Command,
		timeout: timeout,
		logger:  logger,
	}
}

// Compile-time interface check.
var _ policy.Checker = (*ExecHook)(nil)

// Name identifies the hook.
func (h *ExecHook) Name() string { return h.name }

// Check runs the hook command with the call payload on stdin and maps
// its exit code to a policy decision.
func (h *ExecHook) Check(ctx context.Context, in policy.Input) (policy.CheckResult, error) {
	doc, err := json.Marshal(payload{
		CallID:    in.Request.ID,
		Tool:      in.Request.ToolName,
		Kind:      string(in.Kind),
		Command:   in.Command,
		Arguments: in.Request.Arguments,
	})
	if err != nil {
		return policy.CheckResult{}, fmt.Errorf("hook %s: encoding payload: %w", h.name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", h.command)
	cmd.Stdin = bytes.NewReader(doc)
	out, err := cmd.CombinedOutput()

	if ctx.Err() != nil {
		return policy.CheckResult{}, fmt.Errorf("hook %s: timed out after %s", h.name, h.timeout)
	}

	switch code := exitCode(err); code {
	case exitPass:
		return policy.CheckResult{Decision: policy.Allow}, nil
	case exitDeny:
		reason := strings.TrimSpace(string(out))
		if reason == "" {
			reason = fmt.Sprintf("blocked by hook %s", h.name)
		}
		h.logger.Info("hook denied call",
			"hook", h.name,
			"call_id", in.Request.ID,
			"reason", reason,
		)
		return policy.CheckResult{Decision: policy.Deny, Reason: reason}, nil
	default:
		return policy.CheckResult{}, fmt.Errorf("hook %s: exit code %d: %s",
			h.name, code, strings.TrimSpace(string(out)))
	}
}

// exitCode extracts the process exit code from a CombinedOutput error.
// A non-exit error (command not found, not executable) maps to -1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
