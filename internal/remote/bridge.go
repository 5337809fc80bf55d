// Package remote bridges the confirmation bus to WebSocket clients so
// approvals can be answered from outside the host process.
package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/kallt/toolgate/internal/bus"
	"github.com/kallt/toolgate/pkg/call"
)

// writeTimeout bounds a single broadcast write per client.
const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message types exchanged with clients.
const (
	TypeApprovalRequest  = "approval_request"
	TypeApprovalResponse = "approval_response"
)

// approvalResponse is the payload clients send back for a pending request.
type approvalResponse struct {
	CorrelationID string            `json:"correlation_id"`
	Outcome       call.Outcome      `json:"outcome"`
	Answers       map[string]string `json:"answers,omitempty"`
	Cancelled     bool              `json:"cancelled,omitempty"`
}

// conn wraps a single WebSocket connection.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
}

// Bridge fans confirmation requests out to connected WebSocket clients
// and feeds their responses back into the bus. It only counts as a bus
// subscriber while at least one client is connected, so a headless
// process with no clients still gets the no-subscriber cancellation
// path instead of hanging.
type Bridge struct {
	bus    *bus.Bus
	logger *slog.Logger

	mu     sync.Mutex
	conns  map[*conn]struct{}
	subID  int
	subbed bool
}

// NewBridge creates a bridge over the given confirmation bus.
func NewBridge(b *bus.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		bus:    b,
		logger: logger,
		conns:  make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the request to a WebSocket connection and serves it
// until the client disconnects.
func (br *Bridge) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		br.logger.Error("remote: websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel}
	br.add(c)
	br.logger.Info("remote: client connected", "remote", r.RemoteAddr)

	defer func() {
		br.remove(c)
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		br.handleMessage(data)
	}
}

// ConnectionCount returns the number of active client connections.
func (br *Bridge) ConnectionCount() int {
	br.mu.Lock()
	defer br.mu.Unlock()
	return len(br.conns)
}

func (br *Bridge) add(c *conn) {
	br.mu.Lock()
	defer br.mu.Unlock()

	br.conns[c] = struct{}{}
	if !br.subbed {
		br.subID = br.bus.Subscribe(bus.TopicApprovals, br.forward)
		br.subbed = true
	}
}

func (br *Bridge) remove(c *conn) {
	br.mu.Lock()
	defer br.mu.Unlock()

	if _, ok := br.conns[c]; !ok {
		return
	}
	c.cancel()
	delete(br.conns, c)
	br.logger.Info("remote: client disconnected")

	if len(br.conns) == 0 && br.subbed {
		br.bus.Unsubscribe(bus.TopicApprovals, br.subID)
		br.subbed = false
	}
}

// forward broadcasts a confirmation request to every connected client.
func (br *Bridge) forward(req bus.Request) {
	payload, err := json.Marshal(req)
	if err != nil {
		br.logger.Error("remote: marshal request failed", "error", err)
		return
	}
	data, _ := json.Marshal(Message{Type: TypeApprovalRequest, Payload: payload})

	br.mu.Lock()
	defer br.mu.Unlock()

	for c := range br.conns {
		// A short write deadline keeps one stalled client from
		// blocking the rest.
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.ws.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			br.logger.Debug("remote: write failed", "error", err)
		}
	}
}

// handleMessage parses one client frame and resolves the pending
// confirmation it answers. Malformed or stale frames are logged and
// dropped.
func (br *Bridge) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		br.logger.Warn("remote: malformed frame", "error", err)
		return
	}
	if msg.Type != TypeApprovalResponse {
		br.logger.Debug("remote: ignoring frame", "type", msg.Type)
		return
	}

	var resp approvalResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		br.logger.Warn("remote: malformed approval response", "error", err)
		return
	}
	if !resp.Cancelled && !resp.Outcome.Valid() {
		br.logger.Warn("remote: invalid outcome", "outcome", resp.Outcome)
		return
	}

	ok := br.bus.Resolve(bus.Response{
		CorrelationID: resp.CorrelationID,
		Outcome:       resp.Outcome,
		Answers:       resp.Answers,
		Cancelled:     resp.Cancelled,
	})
	if !ok {
		br.logger.Debug("remote: stale approval response", "correlation_id", resp.CorrelationID)
	}
}
