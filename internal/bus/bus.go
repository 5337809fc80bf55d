// Package bus implements the confirmation bus: a correlation-keyed
// publish/subscribe channel between the scheduler and whatever surface
// answers approval prompts (terminal UI, remote bridge, audit logger).
//
// Requests fan out to every subscriber of a topic; responses come back
// through a correlation registry so the scheduler can await one specific
// reply without scanning all traffic.
package bus

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kallt/toolgate/pkg/call"
)

// TopicApprovals is the topic the scheduler publishes confirmation
// requests on. Subscribers must be registered before any call can reach
// awaiting_approval; a request published with no subscriber is dropped.
const TopicApprovals = "approvals"

// Request is the envelope published when a call needs confirmation.
type Request struct {
	// CorrelationID ties the eventual response back to this request.
	CorrelationID string `json:"correlation_id"`

	// CallID identifies the tool call awaiting approval.
	CallID string `json:"call_id"`

	// ToolName is the tool the call would invoke.
	ToolName string `json:"tool_name"`

	// Description is a human-readable summary of what the call will do
	// (diff preview for edits, command string for shell).
	Description string `json:"description"`

	// Arguments is the raw argument payload, for display.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response is the envelope a subscriber publishes to answer a request.
type Response struct {
	// CorrelationID must match the request being answered.
	CorrelationID string `json:"correlation_id"`

	// Outcome is the approval decision. Ignored when Cancelled is set.
	Outcome call.Outcome `json:"outcome,omitempty"`

	// Answers carries free-form replies for multi-question prompts.
	Answers map[string]string `json:"answers,omitempty"`

	// Cancelled declines the request, equivalent to an explicit cancel
	// outcome.
	Cancelled bool `json:"cancelled,omitempty"`
}

// Handler receives every request published on a subscribed topic.
// Handlers run synchronously on the publisher's goroutine: a handler
// that blocks (an interactive prompt, say) stalls that publisher until
// it returns, which is exactly how confirmation prompts stay
// serialized. Handlers that must not hold up the publisher dispatch
// their work themselves.
type Handler func(Request)

// Bus is the in-process confirmation bus. Safe for concurrent use.
type Bus struct {
	mu      sync.Mutex
	subs    map[string]map[int]Handler
	nextSub int
	pending map[string]chan Response
	logger  *slog.Logger
}

// New creates an empty bus. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:    make(map[string]map[int]Handler),
		pending: make(map[string]chan Response),
		logger:  logger,
	}
}

// NewCorrelationID returns a fresh correlation identifier.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Subscribe registers a handler for topic and returns a subscription ID
// for Unsubscribe. Multiple subscribers per topic are allowed.
func (b *Bus) Subscribe(topic string, h Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.nextSub
	b.nextSub++
	b.subs[topic][id] = h
	return id
}

// Unsubscribe removes a previously registered handler. Unknown IDs are
// a no-op.
func (b *Bus) Unsubscribe(topic string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[topic], id)
}

// HasSubscribers reports whether any handler is registered for topic.
func (b *Bus) HasSubscribers(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic]) > 0
}

// Publish delivers req to every current subscriber of topic, in no
// particular order, and returns the number of handlers invoked. If no
// subscriber is registered the request is dropped and logged loudly:
// a dropped approval request means the call would wait forever, which
// is a startup-ordering bug in the host, not a runtime condition.
func (b *Bus) Publish(topic string, req Request) int {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	if len(handlers) == 0 {
		b.logger.Error("bus: dropping request with no subscribers",
			"topic", topic,
			"correlation_id", req.CorrelationID,
			"tool", req.ToolName,
		)
		return 0
	}

	for _, h := range handlers {
		h(req)
	}
	return len(handlers)
}

// Await registers a pending response slot for correlationID and returns
// the channel the matching Resolve will deliver on. The channel is
// buffered so a resolver never blocks.
func (b *Bus) Await(correlationID string) <-chan Response {
	ch := make(chan Response, 1)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.pending[correlationID]; exists {
		// A duplicate Await is a caller bug; the first waiter keeps
		// the slot and the duplicate gets a channel that never fires.
		b.logger.Error("bus: duplicate await", "correlation_id", correlationID)
		return ch
	}
	b.pending[correlationID] = ch
	return ch
}

// Resolve delivers a response to the waiter registered for its
// correlation ID. Responses with an unknown or already-resolved ID are
// ignored and Resolve returns false, so duplicate or late responses
// cannot re-trigger a resolved call.
func (b *Bus) Resolve(resp Response) bool {
	b.mu.Lock()
	ch, ok := b.pending[resp.CorrelationID]
	if ok {
		delete(b.pending, resp.CorrelationID)
	}
	b.mu.Unlock()

	if !ok {
		return false
	}
	ch <- resp
	return true
}

// Forget discards the pending slot for correlationID, if any. Used when
// the waiter gives up (batch cancellation) so a late response is ignored.
func (b *Bus) Forget(correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, correlationID)
}
