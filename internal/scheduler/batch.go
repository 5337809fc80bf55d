package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kallt/toolgate/internal/audit"
	"github.com/kallt/toolgate/internal/bus"
	"github.com/kallt/toolgate/pkg/call"
)

// Batch tracks one scheduled set of calls until every call is terminal.
// All call-state mutation funnels through the batch mutex: a single
// serialized update path, so two calls finishing concurrently can never
// lose the "all terminal" check.
type Batch struct {
	scheduler *Scheduler
	ctx       context.Context
	cancel    context.CancelFunc

	mu           sync.Mutex
	calls        map[string]*TrackedCall
	order        []string
	overrides    map[string]call.Outcome
	completed    bool
	doneCh       chan struct{}
	correlations map[string]string
}

// Call returns a snapshot of one tracked call.
func (b *Batch) Call(id string) (TrackedCall, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tc, ok := b.calls[id]
	if !ok {
		return TrackedCall{}, false
	}
	return *tc, true
}

// Calls returns snapshots of every call in request order.
func (b *Batch) Calls() []TrackedCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Done is closed once every call is terminal and the completion
// callback has fired.
func (b *Batch) Done() <-chan struct{} {
	return b.doneCh
}

// CancelAll triggers the batch cancellation token. Every call in a
// non-terminal state transitions to cancelled; tools already executing
// observe the token cooperatively and their late results are discarded.
func (b *Batch) CancelAll() {
	b.cancel()
}

// MarkSubmitted flags the given calls as already submitted to the host,
// preventing double-submission of results. Unknown IDs are ignored.
func (b *Batch) MarkSubmitted(callIDs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range callIDs {
		if tc, ok := b.calls[id]; ok {
			tc.ResponseSubmitted = true
		}
	}
}

// AwaitingApproval returns the IDs of calls currently awaiting
// approval, in request order. Used by the orchestrator when a widened
// approval mode should re-resolve pending confirmations.
func (b *Batch) AwaitingApproval() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ids []string
	for _, id := range b.order {
		if b.calls[id].Status == call.StatusAwaitingApproval {
			ids = append(ids, id)
		}
	}
	return ids
}

// Confirm resolves an awaiting-approval call with the given outcome,
// exactly as if the matching response envelope had arrived on the bus.
// This is the onConfirm path the orchestrator drives directly, e.g.
// when the user widens the approval mode mid-session: the scheduler
// never auto-approves on a mode change, a decision always originates
// from an explicit confirmation.
func (b *Batch) Confirm(id string, outcome call.Outcome) error {
	if !outcome.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidOutcome, outcome)
	}

	b.mu.Lock()
	tc, ok := b.calls[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCall, id)
	}
	if tc.Status != call.StatusAwaitingApproval {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotAwaitingApproval, id, tc.Status)
	}
	correlation := b.correlationLocked(id)
	if correlation == "" {
		// Not yet offered on the bus; record the outcome for the
		// coordinator to apply when it reaches this call.
		b.overrides[id] = outcome
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if !b.scheduler.bus.Resolve(bus.Response{CorrelationID: correlation, Outcome: outcome}) {
		return fmt.Errorf("%w: %s", ErrNotAwaitingApproval, id)
	}
	return nil
}

// watchCancellation marks every non-terminal call cancelled the moment
// the batch token fires, independent of whether the underlying work has
// actually stopped.
func (b *Batch) watchCancellation() {
	select {
	case <-b.ctx.Done():
	case <-b.doneCh:
		return
	}

	b.mu.Lock()
	var cancelled []string
	for _, id := range b.order {
		tc := b.calls[id]
		if tc.Status.Terminal() {
			continue
		}
		resp := call.CancelledResponse("batch cancelled")
		b.applyLocked(tc, call.StatusCancelled, &resp)
		cancelled = append(cancelled, id)
	}
	fire, snapshot := b.completionLocked()
	b.mu.Unlock()

	for _, id := range cancelled {
		if b.scheduler.audit != nil {
			b.scheduler.audit.Log(audit.Event{
				Type:   audit.EventCancelled,
				CallID: id,
				Detail: "batch cancelled",
			})
		}
	}
	if fire {
		b.fireCompletion(snapshot)
	}
}

// transition moves a call to the next status, enforcing the legal state
// graph. It returns false (and leaves the call untouched) when the edge
// is illegal, which is how late results after cancellation get dropped.
// A transition into a terminal state may fire the completion callback.
func (b *Batch) transition(id string, next call.Status, resp *call.Response) bool {
	b.mu.Lock()
	tc, ok := b.calls[id]
	if !ok || !tc.Status.CanTransition(next) {
		b.mu.Unlock()
		return false
	}
	b.applyLocked(tc, next, resp)
	fire, snapshot := b.completionLocked()
	b.mu.Unlock()

	if fire {
		b.fireCompletion(snapshot)
	}
	return true
}

// failValidation records a validation failure and moves the call to its
// error state without consulting policy.
func (b *Batch) failValidation(id, reason string, resp *call.Response) {
	b.mu.Lock()
	tc, ok := b.calls[id]
	if !ok || !tc.Status.CanTransition(call.StatusError) {
		b.mu.Unlock()
		return
	}
	tc.ValidationError = reason
	b.applyLocked(tc, call.StatusError, resp)
	fire, snapshot := b.completionLocked()
	b.mu.Unlock()

	if fire {
		b.fireCompletion(snapshot)
	}
}

// setAwaitingApproval attaches confirmation details and moves the call
// to awaiting_approval.
func (b *Batch) setAwaitingApproval(id string, envelope *bus.Request) bool {
	b.mu.Lock()
	tc, ok := b.calls[id]
	if !ok || !tc.Status.CanTransition(call.StatusAwaitingApproval) {
		b.mu.Unlock()
		return false
	}
	tc.Confirmation = envelope
	b.applyLocked(tc, call.StatusAwaitingApproval, nil)
	b.mu.Unlock()
	return true
}

// setDuration records the execution wall time for a call.
func (b *Batch) setDuration(id string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tc, ok := b.calls[id]; ok {
		tc.Duration = d
	}
}

// setCorrelation records (or clears) the live bus correlation ID for an
// awaiting-approval call so Confirm can resolve it directly.
func (b *Batch) setCorrelation(id, correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.correlations == nil {
		b.correlations = make(map[string]string)
	}
	if correlationID == "" {
		delete(b.correlations, id)
		return
	}
	b.correlations[id] = correlationID
}

func (b *Batch) correlationLocked(id string) string {
	return b.correlations[id]
}

// takeOverride consumes a pre-recorded confirmation outcome, if any.
func (b *Batch) takeOverride(id string) (call.Outcome, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	outcome, ok := b.overrides[id]
	if ok {
		delete(b.overrides, id)
	}
	return outcome, ok
}

// applyLocked performs the actual status mutation. Callers hold b.mu.
func (b *Batch) applyLocked(tc *TrackedCall, next call.Status, resp *call.Response) {
	prev := tc.Status
	tc.Status = next
	if next != call.StatusAwaitingApproval {
		tc.Confirmation = nil
	}
	if next.Terminal() {
		if resp == nil {
			r := call.CancelledResponse("cancelled")
			resp = &r
		}
		tc.Response = resp
		if b.scheduler.metrics != nil {
			b.scheduler.metrics.Terminal.WithLabelValues(string(next)).Inc()
			b.scheduler.metrics.InFlight.Dec()
		}
	}

	b.scheduler.logger.Debug("scheduler: call transition",
		"call_id", tc.Request.ID,
		"tool", tc.Request.ToolName,
		"from", string(prev),
		"to", string(next),
	)
}

// completionLocked reports whether the completion callback should fire
// now, flipping the once-guard and snapshotting the batch if so.
// Callers hold b.mu.
func (b *Batch) completionLocked() (bool, []TrackedCall) {
	if b.completed {
		return false, nil
	}
	for _, id := range b.order {
		if !b.calls[id].Status.Terminal() {
			return false, nil
		}
	}
	b.completed = true
	return true, b.snapshotLocked()
}

// fireCompletion invokes the completion callback outside the batch lock
// and closes the done channel. Runs at most once per batch.
func (b *Batch) fireCompletion(snapshot []TrackedCall) {
	if b.scheduler.onDone != nil {
		b.scheduler.onDone(snapshot)
	}
	close(b.doneCh)
	b.cancel()
}

func (b *Batch) snapshotLocked() []TrackedCall {
	out := make([]TrackedCall, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.calls[id])
	}
	return out
}
