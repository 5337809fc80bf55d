// Package scheduler drives a batch of tool-call requests from
// validation through policy approval to execution and terminal result.
// It owns the per-call state machine: the scheduler is the sole mutator
// of call status, every transition follows the legal state graph, and a
// batch's completion callback fires exactly once when every call is
// terminal.
//
// Confirmation requests for one batch are offered and resolved in
// request order so a human sees approvals in a predictable sequence;
// execution of approved calls proceeds concurrently regardless of other
// calls still awaiting approval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/kallt/toolgate/internal/audit"
	"github.com/kallt/toolgate/internal/bus"
	"github.com/kallt/toolgate/internal/metrics"
	"github.com/kallt/toolgate/internal/policy"
	"github.com/kallt/toolgate/internal/telemetry"
	"github.com/kallt/toolgate/internal/tool"
	"github.com/kallt/toolgate/pkg/call"
)

// TrackedCall is the scheduler-owned record for one call. External
// readers get value snapshots; only the scheduler mutates the original.
type TrackedCall struct {
	// Request is the originating tool-call request.
	Request call.Request

	// Status is the current lifecycle state.
	Status call.Status

	// ValidationError holds the validation failure, when there was one.
	ValidationError string

	// Confirmation is the published confirmation envelope; present only
	// while the call is awaiting approval.
	Confirmation *bus.Request

	// Response is the terminal payload; present only in terminal states.
	Response *call.Response

	// ResponseSubmitted guards against double-submission of the result
	// to the host's persistent history.
	ResponseSubmitted bool

	// Duration is the tool execution wall time, zero if never executed.
	Duration time.Duration
}

// CompletionFunc receives the full batch when every call is terminal.
// It fires exactly once per batch, including fully cancelled ones; the
// orchestrator decides whether a fully cancelled batch still needs a
// reply sent to the model (it does not).
type CompletionFunc func(calls []TrackedCall)

// Config holds scheduler dependencies. Registry, Engine, and Bus are
// required; the rest are optional.
type Config struct {
	// Registry validates and resolves requested tools.
	Registry *tool.Registry

	// Engine decides whether each call may proceed.
	Engine *policy.Engine

	// Bus carries confirmation round-trips. Subscribers must be in
	// place before any call can reach awaiting_approval.
	Bus *bus.Bus

	// OnBatchComplete is the per-batch completion callback.
	OnBatchComplete CompletionFunc

	// Audit, if non-nil, receives decision/approval/execution events.
	Audit *audit.Logger

	// Metrics, if non-nil, receives pipeline counters.
	Metrics *metrics.Collector

	// Logger for transition logging. Nil falls back to slog.Default.
	Logger *slog.Logger
}

// Scheduler orchestrates tool-call batches. One scheduler serves the
// whole session; each Schedule call produces an independent Batch.
type Scheduler struct {
	registry *tool.Registry
	engine   *policy.Engine
	bus      *bus.Bus
	onDone   CompletionFunc
	audit    *audit.Logger
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// New creates a scheduler from the given configuration.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		registry: cfg.Registry,
		engine:   cfg.Engine,
		bus:      cfg.Bus,
		onDone:   cfg.OnBatchComplete,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Schedule accepts one batch: all calls from one model turn, or a
// single client-initiated call. The supplied context is the batch's
// cancellation token; cancelling it (or calling Batch.CancelAll) moves
// every non-terminal call to cancelled. Schedule returns immediately;
// the pipeline runs on its own goroutines.
func (s *Scheduler) Schedule(ctx context.Context, requests []call.Request) (*Batch, error) {
	if len(requests) == 0 {
		s.logger.Warn("scheduler: rejecting empty batch")
		return nil, ErrEmptyBatch
	}

	batchCtx, cancel := context.WithCancel(ctx)
	b := &Batch{
		scheduler: s,
		ctx:       batchCtx,
		cancel:    cancel,
		calls:     make(map[string]*TrackedCall, len(requests)),
		overrides: make(map[string]call.Outcome),
		doneCh:    make(chan struct{}),
	}

	for _, req := range requests {
		if _, exists := b.calls[req.ID]; exists {
			cancel()
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCallID, req.ID)
		}
		b.calls[req.ID] = &TrackedCall{
			Request: req,
			Status:  call.StatusValidating,
		}
		b.order = append(b.order, req.ID)
		if s.metrics != nil {
			s.metrics.InFlight.Inc()
		}
	}

	go b.watchCancellation()
	go s.run(b)

	return b, nil
}

// run is the batch coordinator: it validates and policy-checks every
// call in request order, starts execution for allowed calls, then
// offers queued approvals one at a time.
func (s *Scheduler) run(b *Batch) {
	var pendingApproval []string

	for _, id := range b.order {
		req, kind, ok := s.prepare(b, id)
		if !ok {
			continue
		}

		res := s.check(b.ctx, req, kind)
		s.auditDecision(req, res)
		if s.metrics != nil {
			s.metrics.Decisions.WithLabelValues(string(res.Decision)).Inc()
		}

		switch res.Decision {
		case policy.Allow:
			if b.transition(id, call.StatusScheduled, nil) {
				go s.execute(b, id)
			}

		case policy.Deny:
			kind := call.KindPolicyDenied
			if res.CheckerFailed {
				kind = call.KindCheckerFailed
			}
			resp := call.Failure(kind, res.Reason)
			b.transition(id, call.StatusError, &resp)

		case policy.Ask:
			t, err := s.registry.Get(req.ToolName)
			if err != nil {
				// The tool validated moments ago; treat a vanished tool
				// as a validation failure.
				resp := call.Failure(call.KindValidation, err.Error())
				b.transition(id, call.StatusError, &resp)
				continue
			}
			envelope := &bus.Request{
				CorrelationID: bus.NewCorrelationID(),
				CallID:        id,
				ToolName:      req.ToolName,
				Description:   tool.Describe(t, req.Arguments),
				Arguments:     req.Arguments,
			}
			if b.setAwaitingApproval(id, envelope) {
				pendingApproval = append(pendingApproval, id)
			}
		}
	}

	for _, id := range pendingApproval {
		s.offerApproval(b, id)
	}
}

// prepare validates one call against the registry. It returns the
// request and tool kind, or ok=false when the call already reached a
// terminal state (validation failure or early cancellation).
func (s *Scheduler) prepare(b *Batch, id string) (call.Request, tool.Kind, bool) {
	snap, _ := b.Call(id)
	if snap.Status.Terminal() {
		return call.Request{}, "", false
	}
	req := snap.Request

	t, err := s.registry.Validate(req.ToolName, req.Arguments)
	if err != nil {
		resp := call.Failure(call.KindValidation, err.Error())
		b.failValidation(id, err.Error(), &resp)
		return call.Request{}, "", false
	}
	return req, t.Kind(), true
}

// check runs one policy evaluation under a tracing span.
func (s *Scheduler) check(ctx context.Context, req call.Request, kind tool.Kind) policy.CheckResult {
	ctx, span := telemetry.StartCheckSpan(ctx, req.ID, req.ToolName)
	defer span.End()

	return s.engine.Check(ctx, policy.Input{Request: req, Kind: kind})
}

// offerApproval publishes one confirmation request and blocks until it
// resolves or the batch is cancelled. Approvals are offered strictly in
// request order; execution of previously approved calls continues
// concurrently while this waits.
func (s *Scheduler) offerApproval(b *Batch, id string) {
	snap, ok := b.Call(id)
	if !ok || snap.Status != call.StatusAwaitingApproval || snap.Confirmation == nil {
		return
	}
	envelope := *snap.Confirmation

	// An orchestrator-driven resolution (approval-mode widening) may
	// already be recorded; it wins without a bus round-trip.
	if outcome, ok := b.takeOverride(id); ok {
		s.resolveApproval(b, id, envelope, bus.Response{
			CorrelationID: envelope.CorrelationID,
			Outcome:       outcome,
		})
		return
	}

	responseCh := s.bus.Await(envelope.CorrelationID)
	b.setCorrelation(id, envelope.CorrelationID)
	defer b.setCorrelation(id, "")

	// A Confirm that raced the correlation registration landed in the
	// overrides map instead; feed it through the bus so the wait below
	// resolves immediately without a prompt ever being shown.
	if outcome, ok := b.takeOverride(id); ok {
		s.bus.Resolve(bus.Response{CorrelationID: envelope.CorrelationID, Outcome: outcome})
	} else if s.bus.Publish(bus.TopicApprovals, envelope) == 0 {
		// Startup-ordering invariant violation: nobody can answer this
		// request. Cancel the call loudly instead of hanging the batch
		// forever (the bus already logged the drop).
		s.bus.Forget(envelope.CorrelationID)
		resp := call.CancelledResponse("no confirmation subscriber registered")
		b.transition(id, call.StatusCancelled, &resp)
		return
	}

	select {
	case resp := <-responseCh:
		s.resolveApproval(b, id, envelope, resp)
	case <-b.ctx.Done():
		s.bus.Forget(envelope.CorrelationID)
		// The cancellation watcher moves the call to cancelled.
	}
}

// resolveApproval applies a confirmation response to a call that was
// awaiting approval.
func (s *Scheduler) resolveApproval(b *Batch, id string, envelope bus.Request, resp bus.Response) {
	outcome := resp.Outcome
	if resp.Cancelled {
		outcome = call.CancelCall
	}

	s.auditApproval(b, id, envelope.ToolName, outcome)

	switch outcome {
	case call.ProceedAlways:
		prefix := ""
		if cmd := shellCommand(b, id); cmd != "" {
			prefix = cmd
		}
		if err := s.engine.PersistAlways(b.ctx, envelope.ToolName, prefix); err != nil {
			s.logger.Warn("scheduler: persisting always-allow rule failed",
				"tool", envelope.ToolName,
				"error", err,
			)
		}
		fallthrough
	case call.ProceedOnce:
		if b.transition(id, call.StatusScheduled, nil) {
			go s.execute(b, id)
		}
	default:
		// Cancel, a cancelled flag, or an unrecognised outcome all
		// decline the call.
		b.transition(id, call.StatusCancelled, nil)
	}
}

// execute moves one scheduled call through executing to its terminal
// state. Panics in the tool are recovered into execution errors. A
// result arriving after the batch was cancelled is discarded.
func (s *Scheduler) execute(b *Batch, id string) {
	if !b.transition(id, call.StatusExecuting, nil) {
		return
	}

	snap, _ := b.Call(id)
	req := snap.Request

	t, err := s.registry.Get(req.ToolName)
	if err != nil {
		resp := call.Failure(call.KindExecution, err.Error())
		b.transition(id, call.StatusError, &resp)
		return
	}

	ctx, span := telemetry.StartExecuteSpan(b.ctx, req.ID, req.ToolName)
	start := time.Now()
	out, execErr := runTool(ctx, t, req)
	duration := time.Since(start)
	span.End()

	if s.metrics != nil {
		s.metrics.ExecutionDuration.WithLabelValues(req.ToolName).Observe(duration.Seconds())
	}
	b.setDuration(id, duration)

	// The cancellation watcher may have already marked the call
	// cancelled; transition then fails and the late result is dropped.
	if b.ctx.Err() != nil {
		b.transition(id, call.StatusCancelled, nil)
		s.auditExecution(req, "cancelled during execution", true)
		return
	}

	switch {
	case execErr != nil:
		resp := call.Failure(call.KindExecution, execErr.Error())
		b.transition(id, call.StatusError, &resp)
		s.auditExecution(req, execErr.Error(), true)
	case out.IsError:
		resp := call.Failure(call.KindExecution, out.Content)
		b.transition(id, call.StatusError, &resp)
		s.auditExecution(req, out.Content, true)
	default:
		resp := call.Success(out.Content)
		b.transition(id, call.StatusSuccess, &resp)
		s.auditExecution(req, out.Content, false)
	}
}

// runTool invokes the tool function with panic recovery.
func runTool(ctx context.Context, t tool.Tool, req call.Request) (out tool.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = tool.Output{}
			err = fmt.Errorf("tool %s panicked: %v", req.ToolName, r)
		}
	}()
	return t.Execute(ctx, req.Arguments)
}

// shellCommand returns the command string for a shell-class call, used
// to narrow a persisted allow rule to the exact argument shape.
func shellCommand(b *Batch, id string) string {
	snap, ok := b.Call(id)
	if !ok {
		return ""
	}
	t, err := b.scheduler.registry.Get(snap.Request.ToolName)
	if err != nil || t.Kind() != tool.KindExecute {
		return ""
	}
	return policy.CommandFromArgs(snap.Request.Arguments)
}

func (s *Scheduler) auditDecision(req call.Request, res policy.CheckResult) {
	if s.audit == nil {
		return
	}
	s.audit.Log(audit.Event{
		Type:     audit.EventDecision,
		CallID:   req.ID,
		PromptID: req.PromptID,
		ToolName: req.ToolName,
		Detail:   res.Reason,
		Metadata: map[string]string{"decision": string(res.Decision)},
	})
}

func (s *Scheduler) auditApproval(b *Batch, id, toolName string, outcome call.Outcome) {
	if s.audit == nil {
		return
	}
	s.audit.Log(audit.Event{
		Type:     audit.EventApproval,
		CallID:   id,
		ToolName: toolName,
		Detail:   string(outcome),
	})
}

func (s *Scheduler) auditExecution(req call.Request, detail string, isError bool) {
	if s.audit == nil {
		return
	}
	s.audit.Log(audit.Event{
		Type:     audit.EventExecution,
		CallID:   req.ID,
		PromptID: req.PromptID,
		ToolName: req.ToolName,
		Detail:   truncateDetail(detail),
		Metadata: map[string]string{"is_error": fmt.Sprintf("%v", isError)},
	})
}

// maxAuditDetailLen caps audit detail strings so large tool outputs do
// not bloat the trail.
const maxAuditDetailLen = 4096

// truncateDetail shortens a string to maxAuditDetailLen, walking back
// to a valid UTF-8 rune boundary so a multi-byte character is never
// split mid-rune.
func truncateDetail(s string) string {
	if len(s) <= maxAuditDetailLen {
		return s
	}
	i := maxAuditDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}
