// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for toolgate.
package config

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Policy configures the approval policy engine.
	Policy PolicyConfig `yaml:"policy"`

	// Audit configures the JSONL audit trail. Empty path disables it.
	Audit AuditConfig `yaml:"audit,omitempty"`

	// Listen is the address for the HTTP surface (metrics, remote
	// approvals). Empty disables the listener.
	Listen string `yaml:"listen,omitempty"`

	// Telemetry configures trace export.
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// PolicyConfig holds the policy engine settings.
type PolicyConfig struct {
	// Mode is the session approval mode: default, auto-edit, yolo, or plan.
	Mode string `yaml:"mode"`

	// NonInteractive disables confirmation prompts entirely.
	NonInteractive bool `yaml:"non_interactive,omitempty"`

	// NonInteractiveDefault resolves unresolved prompts when
	// NonInteractive is set: "allow" or "deny". Defaults to deny.
	NonInteractiveDefault string `yaml:"non_interactive_default,omitempty"`

	// RuleDB is the SQLite path for persisted allow rules.
	// Empty keeps rules in memory for the session only.
	RuleDB string `yaml:"rule_db,omitempty"`

	// Rules seeds the engine with static rules, evaluated before any
	// persisted or session-learned rule.
	Rules []RuleEntry `yaml:"rules,omitempty"`

	// Hooks lists external veto commands run for every checked call.
	Hooks []HookEntry `yaml:"hooks,omitempty"`
}

// HookEntry configures one external hook command.
type HookEntry struct {
	// Name identifies the hook in logs.
	Name string `yaml:"name,omitempty"`

	// Command is the shell command to run. It receives the call as
	// JSON on stdin; exit 0 passes, exit 2 denies.
	Command string `yaml:"command"`

	// TimeoutSeconds bounds one invocation. Zero uses the default.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
}

// RuleEntry is one configured policy rule.
type RuleEntry struct {
	// Tool is the tool name the rule applies to.
	Tool string `yaml:"tool"`

	// CommandPrefix restricts execute-kind rules to commands starting
	// with this word-boundary prefix.
	CommandPrefix string `yaml:"command_prefix,omitempty"`

	// Decision is "allow", "ask", or "deny".
	Decision string `yaml:"decision"`
}

// AuditConfig controls the append-only audit trail.
type AuditConfig struct {
	// Path is the JSONL file to append events to.
	Path string `yaml:"path,omitempty"`
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint. Empty disables export.
	Endpoint string `yaml:"endpoint,omitempty"`
}
