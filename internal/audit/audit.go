// Package audit writes structured JSONL audit events for the tool-call
// pipeline: policy decisions, approval resolutions, execution results,
// and cancellations. The audit trail is append-only and independent of
// the host's display logging.
package audit

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types covering the call lifecycle.
const (
	EventDecision  EventType = "decision"
	EventApproval  EventType = "approval"
	EventExecution EventType = "execution"
	EventCancelled EventType = "cancelled"
)

// Event is a single audit log entry.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	CallID    string            `json:"call_id,omitempty"`
	PromptID  string            `json:"prompt_id,omitempty"`
	ToolName  string            `json:"tool_name,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// LoggerConfig configures the audit logger.
type LoggerConfig struct {
	// Writer is the destination for JSONL output. If nil, events are
	// only dispatched to OnEvent (useful for testing).
	Writer io.Writer

	// OnEvent, if non-nil, is called for every event (used in tests).
	OnEvent func(Event)

	// Now overrides time.Now for testing. Defaults to time.Now.
	Now func() time.Time
}

// Logger writes audit events as JSONL. Safe for concurrent use.
type Logger struct {
	writer  io.Writer
	onEvent func(Event)
	now     func() time.Time
	mu      sync.Mutex
}

// NewLogger creates an audit logger with the given configuration.
func NewLogger(cfg LoggerConfig) *Logger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Logger{
		writer:  cfg.Writer,
		onEvent: cfg.OnEvent,
		now:     now,
	}
}

// Log writes an audit event. The timestamp is set automatically. The
// caller's Metadata map is never mutated.
func (l *Logger) Log(event Event) {
	if l == nil {
		return
	}
	event.Timestamp = l.now()

	if len(event.Metadata) > 0 {
		cp := make(map[string]string, len(event.Metadata))
		for k, v := range event.Metadata {
			cp[k] = v
		}
		event.Metadata = cp
	}

	// Dispatch and write under the same lock to keep ordering
	// consistent between the callback and the JSONL stream.
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}

	if l.writer != nil {
		_ = json.NewEncoder(l.writer).Encode(event)
	}
}
