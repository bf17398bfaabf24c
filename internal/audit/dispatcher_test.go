package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, nil)
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}

	// Nil dispatcher methods are all safe.
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestDispatcherForwardsEvents(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "session_created"})
	}
	d.Close()

	if got := sink.count(); got != 5 {
		t.Fatalf("forwarded %d events, want 5", got)
	}
}

func TestDispatcherCloseDrainsBuffer(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 64; i++ {
		d.Emit(context.Background(), Event{EventType: "burst"})
	}
	d.Close()

	if got := sink.count(); got != 64 {
		t.Fatalf("drained %d events, want 64", got)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event occupies the worker, second fills the buffer, the rest
	// must drop rather than block this goroutine.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "flood"})
	}

	if d.Dropped() == 0 {
		t.Fatal("no events dropped under backpressure")
	}
	close(block)
	d.Close()
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, &recordingSink{})
	d.Close()
	d.Close()
}

func TestEmitAfterCloseIsNoOp(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()

	d.Emit(context.Background(), Event{EventType: "late"})
	time.Sleep(20 * time.Millisecond)
	if got := sink.count(); got != 0 {
		t.Fatalf("emit after close forwarded %d events", got)
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, Event) {
	<-s.release
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		EventType: "session_created",
		UserID:    "u1",
		Success:   true,
	})

	var decoded Event
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not one JSON object per line: %v", err)
	}
	if decoded.EventType != "session_created" || decoded.UserID != "u1" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestChannelSinkDelivers(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Emit(context.Background(), Event{EventType: "x"})

	select {
	case event := <-sink.Events():
		if event.EventType != "x" {
			t.Fatalf("event type = %q", event.EventType)
		}
	default:
		t.Fatal("event not buffered")
	}
}
