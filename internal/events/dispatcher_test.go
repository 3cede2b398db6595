package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

// blockingSink parks every Emit until released, so tests can control how
// full the dispatcher buffer gets.
type blockingSink struct {
	started chan struct{}
	release chan struct{}

	mu   sync.Mutex
	seen []Event
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (s *blockingSink) Emit(_ context.Context, event Event) {
	s.started <- struct{}{}
	<-s.release

	s.mu.Lock()
	s.seen = append(s.seen, event)
	s.mu.Unlock()
}

func (s *blockingSink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.seen...)
}

func TestNewDispatcherDisabledReturnsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled config must produce nil dispatcher")
	}

	// The nil dispatcher is a safe no-op.
	d.Emit(context.Background(), Event{Type: TypeLoaded})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestDispatcherForwardsToSink(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{Type: TypeLoaded, Balance: 5000})

	select {
	case event := <-sink.Events():
		if event.Type != TypeLoaded || event.Balance != 5000 {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := newBlockingSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	ctx := context.Background()

	// First event is picked up by the worker and parks in the sink.
	d.Emit(ctx, Event{Type: TypeLoaded})
	<-sink.started

	// Second event fills the buffer, third has nowhere to go.
	d.Emit(ctx, Event{Type: TypeUpdated})
	d.Emit(ctx, Event{Type: TypeRefreshed})

	if got := d.Dropped(); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}

	close(sink.release)
	d.Close()

	seen := sink.events()
	if len(seen) != 2 {
		t.Fatalf("sink saw %d events, want 2", len(seen))
	}
	if seen[0].Type != TypeLoaded || seen[1].Type != TypeUpdated {
		t.Fatalf("unexpected delivery order: %+v", seen)
	}
}

func TestDispatcherDrainsBufferOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d.Emit(ctx, Event{Type: TypeUpdated, Balance: float64(i)})
	}
	d.Close()

	for i := 0; i < 5; i++ {
		select {
		case event := <-sink.Events():
			if event.Type != TypeUpdated {
				t.Fatalf("unexpected event: %+v", event)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 5 events delivered before Close returned", i)
		}
	}
}

func TestDispatcherEmitAfterCloseIsNoOp(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()
	d.Close()

	d.Emit(context.Background(), Event{Type: TypeError})

	select {
	case event := <-sink.Events():
		t.Fatalf("event delivered after Close: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherBlockingEmitHonorsContext(t *testing.T) {
	sink := newBlockingSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: false}, sink)

	d.Emit(context.Background(), Event{Type: TypeLoaded})
	<-sink.started
	d.Emit(context.Background(), Event{Type: TypeUpdated})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		d.Emit(ctx, Event{Type: TypeRefreshed})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit did not return after context cancellation")
	}

	close(sink.release)
	d.Close()
}
