package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/kallt/toolgate/pkg/call"
)

func TestPublishFanOut(t *testing.T) {
	t.Parallel()

	b := New(nil)

	var mu sync.Mutex
	var got []string

	b.Subscribe(TopicApprovals, func(req Request) {
		mu.Lock()
		got = append(got, "ui:"+req.CallID)
		mu.Unlock()
	})
	b.Subscribe(TopicApprovals, func(req Request) {
		mu.Lock()
		got = append(got, "audit:"+req.CallID)
		mu.Unlock()
	})

	n := b.Publish(TopicApprovals, Request{CorrelationID: "c1", CallID: "call-1"})
	if n != 2 {
		t.Fatalf("Publish delivered to %d handlers, want 2", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("handlers invoked %d times, want 2: %v", len(got), got)
	}
}

func TestPublishNoSubscribersDrops(t *testing.T) {
	t.Parallel()

	b := New(nil)
	if n := b.Publish(TopicApprovals, Request{CorrelationID: "c1"}); n != 0 {
		t.Fatalf("Publish with no subscribers delivered to %d handlers", n)
	}
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	b := New(nil)
	fired := false
	id := b.Subscribe(TopicApprovals, func(Request) { fired = true })
	b.Unsubscribe(TopicApprovals, id)

	b.Publish(TopicApprovals, Request{CorrelationID: "c1"})
	if fired {
		t.Error("handler fired after Unsubscribe")
	}
	if b.HasSubscribers(TopicApprovals) {
		t.Error("HasSubscribers = true after sole handler removed")
	}
}

func TestAwaitResolve(t *testing.T) {
	t.Parallel()

	b := New(nil)
	ch := b.Await("c1")

	if !b.Resolve(Response{CorrelationID: "c1", Outcome: call.ProceedOnce}) {
		t.Fatal("Resolve returned false for a registered correlation ID")
	}

	select {
	case resp := <-ch:
		if resp.Outcome != call.ProceedOnce {
			t.Errorf("outcome = %s, want %s", resp.Outcome, call.ProceedOnce)
		}
	case <-time.After(time.Second):
		t.Fatal("response never delivered")
	}
}

func TestResolveUnknownCorrelationID(t *testing.T) {
	t.Parallel()

	b := New(nil)
	if b.Resolve(Response{CorrelationID: "nope"}) {
		t.Error("Resolve returned true for an unknown correlation ID")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()

	b := New(nil)
	ch := b.Await("c1")

	first := b.Resolve(Response{CorrelationID: "c1", Outcome: call.ProceedOnce})
	second := b.Resolve(Response{CorrelationID: "c1", Outcome: call.CancelCall})

	if !first || second {
		t.Fatalf("Resolve twice = (%v, %v), want (true, false)", first, second)
	}

	resp := <-ch
	if resp.Outcome != call.ProceedOnce {
		t.Errorf("late duplicate overwrote the resolved outcome: %s", resp.Outcome)
	}
}

func TestForgetDiscardsLateResponse(t *testing.T) {
	t.Parallel()

	b := New(nil)
	b.Await("c1")
	b.Forget("c1")

	if b.Resolve(Response{CorrelationID: "c1"}) {
		t.Error("Resolve returned true after Forget")
	}
}

func TestNewCorrelationIDUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 100 {
		id := NewCorrelationID()
		if id == "" || seen[id] {
			t.Fatalf("correlation ID empty or repeated: %q", id)
		}
		seen[id] = true
	}
}
