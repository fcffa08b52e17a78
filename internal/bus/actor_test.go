package bus

import (
	"sync"
	"testing"
	"time"
)

// echoActor responds to every request with a fixed payload.
type echoActor struct {
	*Actor
	reply any
}

func newEchoActor(t *testing.T, b *Bus, name string, reply any) *echoActor {
	t.Helper()
	e := &echoActor{Actor: NewActor(name, b), reply: reply}
	if err := e.Register(func(msg *Message) { e.Respond(msg, e.reply) }); err != nil {
		t.Fatalf("failed to register %s: %v", name, err)
	}
	return e
}

func TestCallRoundTrip(t *testing.T) {
	b := New()
	newEchoActor(t, b, "worker", "pong")

	caller := NewActor("client", b)
	if err := caller.Register(func(msg *Message) {}); err != nil {
		t.Fatalf("failed to register caller: %v", err)
	}

	data, ok := caller.Call("worker", OpGetValue, map[string]any{"key": "ping"})
	if !ok {
		t.Fatalf("expected call to succeed")
	}
	if data != "pong" {
		t.Fatalf("expected pong, got %v", data)
	}
	if caller.PendingCount() != 0 {
		t.Fatalf("expected no pending requests after call, got %d", caller.PendingCount())
	}
}

func TestCallTimesOutWhenTargetNeverResponds(t *testing.T) {
	b := New()
	silent := NewActor("silent", b)
	if err := silent.Register(func(msg *Message) {}); err != nil {
		t.Fatalf("failed to register silent actor: %v", err)
	}

	caller := NewActor("client", b)
	if err := caller.Register(func(msg *Message) {}); err != nil {
		t.Fatalf("failed to register caller: %v", err)
	}

	start := time.Now()
	data, ok := caller.CallTimeout("silent", OpGetValue, nil, 50*time.Millisecond)
	if ok {
		t.Fatalf("expected timeout, got data %v", data)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("call returned before the timeout: %v", elapsed)
	}
	if caller.PendingCount() != 0 {
		t.Fatalf("timed-out call left pending residue: %d", caller.PendingCount())
	}
}

func TestCallToUnknownTargetTimesOut(t *testing.T) {
	b := New()
	caller := NewActor("client", b)
	if err := caller.Register(func(msg *Message) {}); err != nil {
		t.Fatalf("failed to register caller: %v", err)
	}

	if _, ok := caller.CallTimeout("ghost", OpGetValue, nil, 20*time.Millisecond); ok {
		t.Fatalf("expected call to an unknown target to fail")
	}
}

func TestNestedCallsUseDistinctCorrelationIDs(t *testing.T) {
	b := New()
	newEchoActor(t, b, "inner", "inner-data")

	// The outer actor calls inner while servicing a request of its own.
	outer := NewActor("outer", b)
	err := outer.Register(func(msg *Message) {
		data, ok := outer.Call("inner", OpGetValue, nil)
		if !ok {
			t.Errorf("nested call failed")
		}
		outer.Respond(msg, data)
	})
	if err != nil {
		t.Fatalf("failed to register outer actor: %v", err)
	}

	caller := NewActor("client", b)
	if err := caller.Register(func(msg *Message) {}); err != nil {
		t.Fatalf("failed to register caller: %v", err)
	}

	data, ok := caller.Call("outer", OpGetValue, nil)
	if !ok {
		t.Fatalf("outer call failed")
	}
	if data != "inner-data" {
		t.Fatalf("expected inner-data, got %v", data)
	}
}

func TestConcurrentCallsResolveIndependently(t *testing.T) {
	b := New()
	newEchoActor(t, b, "worker", float64(42))

	caller := NewActor("client", b)
	if err := caller.Register(func(msg *Message) {}); err != nil {
		t.Fatalf("failed to register caller: %v", err)
	}

	var wg sync.WaitGroup
	failures := make(chan struct{}, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, ok := caller.Call("worker", OpGetValue, nil)
			if !ok || data != float64(42) {
				failures <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(failures)
	if len(failures) != 0 {
		t.Fatalf("%d concurrent calls failed", len(failures))
	}
	if caller.PendingCount() != 0 {
		t.Fatalf("expected no pending requests, got %d", caller.PendingCount())
	}
}

func TestResponseForForeignTargetIsIgnored(t *testing.T) {
	b := New()
	caller := NewActor("client", b)
	if err := caller.Register(func(msg *Message) {}); err != nil {
		t.Fatalf("failed to register caller: %v", err)
	}

	// A response addressed to another actor must not disturb this one.
	caller.HandleResponse(&Message{Actor: "worker", Target: "other", RequestID: "nope"})
	if caller.PendingCount() != 0 {
		t.Fatalf("foreign response affected pending state")
	}
}
