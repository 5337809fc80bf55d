package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kallt/toolgate/internal/tool"
)

// RuleStore persists rules created by "always allow" confirmation
// outcomes so they survive host restarts.
type RuleStore interface {
	Save(ctx context.Context, r Rule) error
}

// Config holds the construction-time inputs for an Engine. The rule
// set, approval mode, and non-interactive flag are supplied by
// configuration loading; the engine owns them afterwards.
type Config struct {
	// Rules is the initial static rule set, in configuration order.
	Rules []Rule

	// Mode is the initial approval mode. Defaults to ModeDefault.
	Mode ApprovalMode

	// NonInteractive marks a host running without a human present.
	// Ask decisions then resolve to NonInteractiveDefault instead of
	// ever reaching a confirmation prompt.
	NonInteractive bool

	// NonInteractiveDefault resolves would-be Ask decisions in
	// non-interactive mode. Only Allow and Deny are meaningful;
	// anything else defaults to Deny.
	NonInteractiveDefault Decision

	// Store, if non-nil, persists rules added by PersistAlways.
	Store RuleStore

	// Logger for rule mutations. Nil falls back to slog.Default.
	Logger *slog.Logger
}

// Engine evaluates tool calls against static rules, the approval mode,
// and registered checkers. Safe for concurrent use: rule and checker
// mutation can happen while a Check for another tool is in flight.
type Engine struct {
	mu           sync.RWMutex
	rules        []Rule
	seq          int
	checkers     []Checker
	hookCheckers []Checker
	mode         ApprovalMode

	nonInteractive  bool
	headlessDefault Decision

	store  RuleStore
	logger *slog.Logger
}

// NewEngine creates an engine from the given configuration.
func NewEngine(cfg Config) *Engine {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeDefault
	}
	headless := cfg.NonInteractiveDefault
	if headless != Allow {
		headless = Deny
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		mode:            mode,
		nonInteractive:  cfg.NonInteractive,
		headlessDefault: headless,
		store:           cfg.Store,
		logger:          logger,
	}
	for _, r := range cfg.Rules {
		e.AddRule(r)
	}
	return e
}

// Interactive reports whether the host has a human present to answer
// confirmation prompts. When false the scheduler must never publish
// confirmation traffic; Check already resolves Ask internally.
func (e *Engine) Interactive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.nonInteractive
}

// SetApprovalMode changes the process-wide approval mode. Calls already
// awaiting approval are unaffected; the orchestrator re-resolves them
// explicitly if it wants the new mode applied.
func (e *Engine) SetApprovalMode(mode ApprovalMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
}

// ApprovalMode returns the current approval mode.
func (e *Engine) ApprovalMode() ApprovalMode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// AddRule appends a rule to the static rule set. A later rule of equal
// specificity wins over earlier ones.
func (e *Engine) AddRule(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r.seq = e.seq
	e.seq++
	e.rules = append(e.rules, r)
}

// RemoveRulesForTool deletes every rule for the given tool name and
// returns how many were removed.
func (e *Engine) RemoveRulesForTool(toolName string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.rules[:0]
	removed := 0
	for _, r := range e.rules {
		if r.ToolName == toolName {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	e.rules = kept
	return removed
}

// Rules returns a copy of the current rule set in insertion order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// AddChecker registers a safety checker. Checkers run in registration
// order, before hook checkers.
func (e *Engine) AddChecker(c Checker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkers = append(e.checkers, c)
}

// AddHookChecker registers a hook checker. Hook checkers run after all
// safety checkers, in registration order.
func (e *Engine) AddHookChecker(c Checker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hookCheckers = append(e.hookCheckers, c)
}

// Checkers returns the registered safety checkers in order.
func (e *Engine) Checkers() []Checker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Checker, len(e.checkers))
	copy(out, e.checkers)
	return out
}

// HookCheckers returns the registered hook checkers in order.
func (e *Engine) HookCheckers() []Checker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Checker, len(e.hookCheckers))
	copy(out, e.hookCheckers)
	return out
}

// PersistAlways records an Allow rule for the given tool, optionally
// narrowed to a shell-command prefix, and persists it when a store is
// configured. Used by the ProceedAlways confirmation outcome. A store
// failure keeps the in-memory rule (this session stays approved) and
// returns the error.
func (e *Engine) PersistAlways(ctx context.Context, toolName, commandPrefix string) error {
	r := Rule{
		ToolName:      toolName,
		CommandPrefix: commandPrefix,
		Decision:      Allow,
	}
	e.AddRule(r)
	e.logger.Info("policy: allow rule added",
		"tool", toolName,
		"command_prefix", commandPrefix,
	)

	if e.store == nil {
		return nil
	}
	if err := e.store.Save(ctx, r); err != nil {
		return fmt.Errorf("policy: persisting allow rule for %s: %w", toolName, err)
	}
	return nil
}

// Check evaluates a tool call. Evaluation order: static rules (most
// specific match wins, then most recent), approval-mode fallback when
// no rule matches, the shell safety floor, then safety and hook
// checkers. Checkers only tighten. The result is deterministic for a
// fixed engine state.
func (e *Engine) Check(ctx context.Context, in Input) CheckResult {
	e.mu.RLock()
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	checkers := make([]Checker, 0, len(e.checkers)+len(e.hookCheckers))
	checkers = append(checkers, e.checkers...)
	checkers = append(checkers, e.hookCheckers...)
	mode := e.mode
	nonInteractive := e.nonInteractive
	headless := e.headlessDefault
	e.mu.RUnlock()

	command := in.Command
	if command == "" && in.Kind == tool.KindExecute {
		command = CommandFromArgs(in.Request.Arguments)
	}
	// Checkers must see the derived command too, not just the static
	// rule matcher.
	in.Command = command

	base, fromRule := e.staticDecision(rules, mode, in, command)

	// Shell safety floor: a rule-derived Allow never survives a command
	// that smuggles extra sub-commands past the prefix match.
	if fromRule && base.Decision == Allow && command != "" {
		if hazard := shellHazard(command); hazard != "" {
			base = CheckResult{
				Decision: Ask,
				Reason:   "command contains " + hazard,
			}
		}
	}

	result := base
	if result.Decision != Deny {
		result = e.runCheckers(ctx, checkers, in, result)
	}

	if result.Decision == Ask && nonInteractive {
		reason := "non-interactive mode"
		if result.Reason != "" {
			reason = result.Reason + " (non-interactive mode)"
		}
		result = CheckResult{Decision: headless, Reason: reason}
	}

	return result
}

// staticDecision resolves steps (a)-(c): rule selection, then the
// approval-mode fallback. The boolean reports whether a static rule
// produced the decision.
func (e *Engine) staticDecision(rules []Rule, mode ApprovalMode, in Input, command string) (CheckResult, bool) {
	if r, ok := selectRule(rules, in.Request.ToolName, command); ok {
		res := CheckResult{Decision: r.Decision}
		if r.Decision == Deny {
			res.Reason = "blocked by policy rule"
		}
		return res, true
	}

	switch mode {
	case ModeYOLO:
		return CheckResult{Decision: Allow}, false
	case ModePlan:
		if in.Kind.Mutating() {
			return CheckResult{Decision: Deny, Reason: "plan mode is read-only"}, false
		}
		return CheckResult{Decision: Allow}, false
	case ModeAutoEdit:
		if in.Kind == tool.KindEdit {
			return CheckResult{Decision: Allow}, false
		}
		return CheckResult{Decision: Ask, Reason: "approval required"}, false
	default:
		return CheckResult{Decision: Ask, Reason: "approval required"}, false
	}
}

// runCheckers applies safety then hook checkers to a non-Deny base
// decision. The first non-Allow checker result short-circuits; a
// checker error denies outright (fail-closed).
func (e *Engine) runCheckers(ctx context.Context, checkers []Checker, in Input, base CheckResult) CheckResult {
	for _, c := range checkers {
		res, err := c.Check(ctx, in)
		if err != nil {
			return CheckResult{
				Decision:      Deny,
				Reason:        fmt.Sprintf("checker %s failed: %v", c.Name(), err),
				CheckerFailed: true,
			}
		}
		switch res.Decision {
		case Deny:
			reason := res.Reason
			if reason == "" {
				reason = "denied by checker " + c.Name()
			}
			return CheckResult{Decision: Deny, Reason: reason}
		case Ask:
			// Tighten Allow to Ask; an already-pending Ask keeps its
			// original reason.
			if base.Decision == Allow {
				base = CheckResult{Decision: Ask, Reason: res.Reason}
			}
			return base
		}
	}
	return base
}
