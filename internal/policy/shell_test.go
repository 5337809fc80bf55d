package policy

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestShellHazard(t *testing.T) {
	t.Parallel()

	safe := []string{
		"",
		"ls -la",
		"git status --short",
		"grep -r 'a && b' src", // operators inside quotes are literal
		"echo 'hello; world'",
	}
	for _, cmd := range safe {
		if hazard := shellHazard(cmd); hazard != "" {
			t.Errorf("shellHazard(%q) = %q, want none", cmd, hazard)
		}
	}

	hazardous := map[string]string{
		"allowed_cmd > /etc/passwd":  "redirection",
		"allowed_cmd; rm -rf /":      "chaining",
		"allowed_cmd && rm -rf /":    "chaining",
		"allowed_cmd || rm -rf /":    "chaining",
		"allowed_cmd | sh":           "piping",
		"allowed_cmd &":              "background",
		"echo $(rm -rf /)":           "substitution",
		"echo `rm -rf /`":            "substitution",
		"(rm -rf /)":                 "subshell",
		"cat < /etc/shadow":          "redirection",
		"allowed_cmd 2>&1":           "redirection",
		"allowed_cmd 'unterminated":  "parsed", // unparseable is fail-closed
	}
	for cmd, fragment := range hazardous {
		hazard := shellHazard(cmd)
		if hazard == "" {
			t.Errorf("shellHazard(%q) = none, want a hazard", cmd)
			continue
		}
		if !strings.Contains(hazard, fragment) {
			t.Errorf("shellHazard(%q) = %q, want mention of %q", cmd, hazard, fragment)
		}
	}
}

func TestCommandFromArgsExtraction(t *testing.T) {
	t.Parallel()

	if got := CommandFromArgs(json.RawMessage(`{"command":"ls -la"}`)); got != "ls -la" {
		t.Errorf("commandFromArgs = %q, want %q", got, "ls -la")
	}
	if got := CommandFromArgs(nil); got != "" {
		t.Errorf("CommandFromArgs(nil) = %q, want empty", got)
	}
	if got := CommandFromArgs(json.RawMessage(`{"path":"x"}`)); got != "" {
		t.Errorf("commandFromArgs without command = %q, want empty", got)
	}
	if got := CommandFromArgs(json.RawMessage(`not json`)); got != "" {
		t.Errorf("CommandFromArgs(malformed) = %q, want empty", got)
	}
}
