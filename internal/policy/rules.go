package policy

import "strings"

// Rule is a static policy entry. A rule matches a call by exact tool
// name and, optionally, by a shell-command prefix qualifier. Prefix-
// qualified rules are more specific than bare tool-name rules; among
// equally specific matches the most recently added rule wins, so
// "remember my choice" rules override defaults without deleting them.
type Rule struct {
	// ToolName is the exact tool name this rule applies to.
	ToolName string `yaml:"tool" json:"tool"`

	// CommandPrefix, when non-empty, restricts the rule to shell
	// invocations whose command starts with this word sequence
	// (e.g. "git status" matches "git status --short" but not
	// "git stash").
	CommandPrefix string `yaml:"command_prefix,omitempty" json:"command_prefix,omitempty"`

	// Decision is the outcome when the rule matches.
	Decision Decision `yaml:"decision" json:"decision"`

	// seq is the engine-assigned insertion order, the recency tiebreak.
	seq int
}

// qualified reports whether the rule carries an argument qualifier.
func (r Rule) qualified() bool { return r.CommandPrefix != "" }

// matches reports whether the rule applies to the given tool name and
// command string. The command is only consulted for qualified rules.
func (r Rule) matches(toolName, command string) bool {
	if r.ToolName != toolName {
		return false
	}
	if !r.qualified() {
		return true
	}
	return hasWordPrefix(command, r.CommandPrefix)
}

// hasWordPrefix reports whether command starts with the words of prefix.
// Matching is on whole fields: "git st" does not match "git status".
func hasWordPrefix(command, prefix string) bool {
	cmdFields := strings.Fields(command)
	prefixFields := strings.Fields(prefix)
	if len(prefixFields) == 0 || len(cmdFields) < len(prefixFields) {
		return false
	}
	for i, want := range prefixFields {
		if cmdFields[i] != want {
			return false
		}
	}
	return true
}

// selectRule picks the winning rule for a call from all matches:
// qualified rules beat bare tool-name rules, and among equals the
// highest insertion sequence (most recently added) wins. The boolean
// is false when no rule matches.
func selectRule(rules []Rule, toolName, command string) (Rule, bool) {
	var best Rule
	found := false
	for _, r := range rules {
		if !r.matches(toolName, command) {
			continue
		}
		if !found {
			best, found = r, true
			continue
		}
		if r.qualified() != best.qualified() {
			if r.qualified() {
				best = r
			}
			continue
		}
		if r.seq > best.seq {
			best = r
		}
	}
	return best, found
}
