package policy

import (
	"encoding/json"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// shellHazard names the first smuggling construct found in a command,
// or "" when the command is a single plain invocation. Chaining,
// piping, redirection, background execution, and command substitution
// can all carry a disallowed sub-command past a simple prefix-match
// rule, so any of them disqualifies the command from auto-approval.
// An unparseable command is treated as hazardous (fail-closed).
func shellHazard(command string) string {
	if strings.TrimSpace(command) == "" {
		return ""
	}

	parser := syntax.NewParser()
	prog, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return "command could not be parsed"
	}

	if len(prog.Stmts) > 1 {
		return "command chaining (;)"
	}

	hazard := ""
	syntax.Walk(prog, func(node syntax.Node) bool {
		if hazard != "" {
			return false
		}
		switch n := node.(type) {
		case *syntax.Stmt:
			if n.Background {
				hazard = "background execution (&)"
				return false
			}
		case *syntax.BinaryCmd:
			switch n.Op {
			case syntax.AndStmt:
				hazard = "command chaining (&&)"
			case syntax.OrStmt:
				hazard = "command chaining (||)"
			case syntax.Pipe, syntax.PipeAll:
				hazard = "piping (|)"
			}
			if hazard != "" {
				return false
			}
		case *syntax.Redirect:
			hazard = "redirection (" + n.Op.String() + ")"
			return false
		case *syntax.CmdSubst:
			hazard = "command substitution"
			return false
		case *syntax.Subshell:
			hazard = "subshell"
			return false
		}
		return true
	})
	return hazard
}

// CommandFromArgs extracts the shell command string from a tool-call
// argument payload. Shell-class tools carry it under the "command" key.
func CommandFromArgs(args json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	var payload struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &payload); err != nil {
		return ""
	}
	return payload.Command
}
