package remote

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kallt/toolgate/internal/bus"
	"github.com/kallt/toolgate/pkg/call"
)

func TestNewBridge(t *testing.T) {
	t.Parallel()

	br := NewBridge(bus.New(nil), nil)
	if br == nil {
		t.Fatal("expected non-nil bridge")
	}
	if br.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", br.ConnectionCount())
	}
}

func TestBridgeSubscribesOnlyWhileConnected(t *testing.T) {
	t.Parallel()

	b := bus.New(nil)
	br := NewBridge(b, nil)

	// No clients: the bridge must not count as a subscriber, so the
	// scheduler's no-subscriber cancellation path still works.
	if n := b.Publish(bus.TopicApprovals, bus.Request{CorrelationID: "x"}); n != 0 {
		t.Fatalf("idle bridge counted as %d subscribers, want 0", n)
	}

	_, cancel1 := context.WithCancel(context.Background())
	_, cancel2 := context.WithCancel(context.Background())
	c1 := &conn{cancel: cancel1}
	c2 := &conn{cancel: cancel2}

	br.add(c1)
	br.add(c2)
	if !br.subbed {
		t.Fatal("bridge not subscribed with connections present")
	}
	if br.ConnectionCount() != 2 {
		t.Fatalf("connections = %d, want 2", br.ConnectionCount())
	}

	br.remove(c1)
	if !br.subbed {
		t.Fatal("bridge unsubscribed while a connection remains")
	}
	br.remove(c2)
	br.remove(c2) // second remove is a no-op
	if br.subbed {
		t.Fatal("bridge still subscribed with no connections")
	}
	if n := b.Publish(bus.TopicApprovals, bus.Request{CorrelationID: "y"}); n != 0 {
		t.Fatalf("drained bridge counted as %d subscribers, want 0", n)
	}
}

func TestHandleMessageResolvesApproval(t *testing.T) {
	t.Parallel()

	b := bus.New(nil)
	br := NewBridge(b, nil)

	ch := b.Await("corr-1")
	frame := marshalFrame(t, TypeApprovalResponse, approvalResponse{
		CorrelationID: "corr-1",
		Outcome:       call.ProceedOnce,
		Answers:       map[string]string{"reason": "looks fine"},
	})
	br.handleMessage(frame)

	select {
	case resp := <-ch:
		if resp.Outcome != call.ProceedOnce {
			t.Errorf("outcome = %s, want proceed_once", resp.Outcome)
		}
		if resp.Answers["reason"] != "looks fine" {
			t.Errorf("answers = %v", resp.Answers)
		}
	default:
		t.Fatal("response never reached the bus")
	}
}

func TestHandleMessageCancellation(t *testing.T) {
	t.Parallel()

	b := bus.New(nil)
	br := NewBridge(b, nil)

	ch := b.Await("corr-2")
	br.handleMessage(marshalFrame(t, TypeApprovalResponse, approvalResponse{
		CorrelationID: "corr-2",
		Cancelled:     true,
	}))

	select {
	case resp := <-ch:
		if !resp.Cancelled {
			t.Error("cancelled flag lost in transit")
		}
	default:
		t.Fatal("response never reached the bus")
	}
}

func TestHandleMessageDropsBadFrames(t *testing.T) {
	t.Parallel()

	b := bus.New(nil)
	br := NewBridge(b, nil)
	ch := b.Await("corr-3")

	// None of these may resolve the pending request.
	br.handleMessage([]byte(`not json`))
	br.handleMessage(marshalFrame(t, "unknown_type", approvalResponse{CorrelationID: "corr-3"}))
	br.handleMessage([]byte(`{"type":"approval_response","payload":"not an object"}`))
	br.handleMessage(marshalFrame(t, TypeApprovalResponse, approvalResponse{
		CorrelationID: "corr-3",
		Outcome:       call.Outcome("shrug"),
	}))
	// Stale correlation IDs are dropped silently.
	br.handleMessage(marshalFrame(t, TypeApprovalResponse, approvalResponse{
		CorrelationID: "never-issued",
		Outcome:       call.ProceedOnce,
	}))

	select {
	case resp := <-ch:
		t.Fatalf("bad frame resolved the request: %+v", resp)
	default:
	}
}

func marshalFrame(t *testing.T, msgType string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := json.Marshal(Message{Type: msgType, Payload: raw})
	if err != nil {
		t.Fatal(err)
	}
	return frame
}
