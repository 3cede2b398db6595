package events

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Type discriminates the balance event variants.
type Type string

const (
	// TypeLoaded fires once, when the engine resolves its first balance.
	TypeLoaded Type = "loaded"
	// TypeUpdated fires on every applied balance mutation.
	TypeUpdated Type = "updated"
	// TypeRefreshed fires when a periodic or explicit refresh completes.
	TypeRefreshed Type = "refreshed"
	// TypeError fires when a failure was recovered locally.
	TypeError Type = "error"
)

// Event is the canonical balance event model used by internal dispatching
// and root APIs.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       Type              `json:"type"`
	Balance    float64           `json:"balance"`
	OldBalance *float64          `json:"old_balance,omitempty"`
	Source     string            `json:"source,omitempty"`
	Mode       string            `json:"mode,omitempty"`
	TabID      string            `json:"tab_id,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted balance events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops balance events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes balance events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
