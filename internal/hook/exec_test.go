package hook

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kallt/toolgate/internal/policy"
	"github.com/kallt/toolgate/internal/tool"
	"github.com/kallt/toolgate/pkg/call"
)

func input() policy.Input {
	return policy.Input{
		Request: call.Request{
			ID:        "c1",
			ToolName:  "shell",
			Arguments: json.RawMessage(`{"command":"git push"}`),
		},
		Kind:    tool.KindExecute,
		Command: "git push",
	}
}

func TestExecHookPass(t *testing.T) {
	t.Parallel()

	h := NewExecHook(ExecHookConfig{Name: "noop", Command: "true"})
	res, err := h.Check(context.Background(), input())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Decision != policy.Allow {
		t.Errorf("decision = %s, want allow (no objection)", res.Decision)
	}
}

func TestExecHookDeny(t *testing.T) {
	t.Parallel()

	h := NewExecHook(ExecHookConfig{
		Name:    "no-push",
		Command: "echo 'pushes are reviewed manually'; exit 2",
	})
	res, err := h.Check(context.Background(), input())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Decision != policy.Deny {
		t.Fatalf("decision = %s, want deny", res.Decision)
	}
	if res.Reason != "pushes are reviewed manually" {
		t.Errorf("reason = %q, want hook output", res.Reason)
	}
}

func TestExecHookDenyWithoutOutput(t *testing.T) {
	t.Parallel()

	h := NewExecHook(ExecHookConfig{Name: "silent", Command: "exit 2"})
	res, err := h.Check(context.Background(), input())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !strings.Contains(res.Reason, "silent") {
		t.Errorf("reason = %q, want a fallback naming the hook", res.Reason)
	}
}

func TestExecHookFailure(t *testing.T) {
	t.Parallel()

	h := NewExecHook(ExecHookConfig{Name: "broken", Command: "exit 7"})
	if _, err := h.Check(context.Background(), input()); err == nil {
		t.Error("unexpected exit code did not surface as an error")
	}
}

func TestExecHookTimeout(t *testing.T) {
	t.Parallel()

	h := NewExecHook(ExecHookConfig{
		Name:    "slow",
		Command: "sleep 10",
		Timeout: 50 * time.Millisecond,
	})
	if _, err := h.Check(context.Background(), input()); err == nil {
		t.Error("timeout did not surface as an error")
	}
}

func TestExecHookReceivesPayload(t *testing.T) {
	t.Parallel()

	// The hook greps its stdin for the command extracted from the call.
	h := NewExecHook(ExecHookConfig{
		Name:    "payload",
		Command: `grep -q '"command":"git push"' && grep -q '"tool":"shell"'`,
	})
	res, err := h.Check(context.Background(), input())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Decision != policy.Allow {
		t.Errorf("payload missing expected fields")
	}
}

func TestExecHookSeesDerivedCommandThroughEngine(t *testing.T) {
	t.Parallel()

	// The engine derives the shell command from the arguments when the
	// caller left it blank; the hook's stdin payload must carry it.
	e := policy.NewEngine(policy.Config{Mode: policy.ModeYOLO})
	e.AddHookChecker(NewExecHook(ExecHookConfig{
		Name:    "payload",
		Command: `grep -q '"command":"git push"'`,
	}))

	in := input()
	in.Command = ""
	res := e.Check(context.Background(), in)
	if res.Decision != policy.Allow {
		t.Errorf("decision = %s (%s), want allow: hook payload missing derived command", res.Decision, res.Reason)
	}
}

func TestExecHookVetoesThroughEngine(t *testing.T) {
	t.Parallel()

	// A hook deny beats a rule allow, and a hook failure is fail-closed.
	e := policy.NewEngine(policy.Config{
		Mode:  policy.ModeDefault,
		Rules: []policy.Rule{{ToolName: "shell", Decision: policy.Allow}},
	})
	e.AddHookChecker(NewExecHook(ExecHookConfig{Name: "veto", Command: "exit 2"}))

	res := e.Check(context.Background(), input())
	if res.Decision != policy.Deny {
		t.Errorf("decision = %s, want deny from hook veto", res.Decision)
	}
}
