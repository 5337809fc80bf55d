package config

import (
	"errors"
	"fmt"

	"github.com/kallt/toolgate/internal/policy"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, the approval mode, and every
// configured rule. All problems are reported at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if cfg.Policy.Mode != "" {
		if _, err := policy.ParseApprovalMode(cfg.Policy.Mode); err != nil {
			errs = append(errs, fmt.Errorf("config: %w", err))
		}
	}

	switch cfg.Policy.NonInteractiveDefault {
	case "", "allow", "deny":
	default:
		errs = append(errs, fmt.Errorf("config: non_interactive_default must be \"allow\" or \"deny\", got %q",
			cfg.Policy.NonInteractiveDefault))
	}

	for i, r := range cfg.Policy.Rules {
		errs = append(errs, validateRule(i, r)...)
	}

	for i, h := range cfg.Policy.Hooks {
		if h.Command == "" {
			errs = append(errs, fmt.Errorf("config: hooks[%d]: command is required", i))
		}
	}

	return errors.Join(errs...)
}

func validateRule(i int, r RuleEntry) []error {
	var errs []error
	if r.Tool == "" {
		errs = append(errs, fmt.Errorf("config: rules[%d]: tool is required", i))
	}
	switch policy.Decision(r.Decision) {
	case policy.Allow, policy.Ask, policy.Deny:
	default:
		errs = append(errs, fmt.Errorf("config: rules[%d]: decision must be allow, ask, or deny, got %q", i, r.Decision))
	}
	return errs
}

// EngineConfig translates a validated Config into policy engine settings.
// Persisted rules and the rule store are wired separately by the caller.
func EngineConfig(cfg *Config) (policy.Config, error) {
	out := policy.Config{
		Mode:                  policy.ModeDefault,
		NonInteractive:        cfg.Policy.NonInteractive,
		NonInteractiveDefault: policy.Deny,
	}

	if cfg.Policy.Mode != "" {
		mode, err := policy.ParseApprovalMode(cfg.Policy.Mode)
		if err != nil {
			return policy.Config{}, fmt.Errorf("config: %w", err)
		}
		out.Mode = mode
	}
	if cfg.Policy.NonInteractiveDefault == "allow" {
		out.NonInteractiveDefault = policy.Allow
	}

	for _, r := range cfg.Policy.Rules {
		out.Rules = append(out.Rules, policy.Rule{
			ToolName:      r.Tool,
			CommandPrefix: r.CommandPrefix,
			Decision:      policy.Decision(r.Decision),
		})
	}

	return out, nil
}
