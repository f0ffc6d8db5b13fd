package verify

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventKind tags a progress event.
type EventKind string

const (
	EventBatchStart           EventKind = "batch_start"
	EventUnitProgress         EventKind = "unit_progress"
	EventVerificationStart    EventKind = "verification_start"
	EventPromptBuilding       EventKind = "prompt_building"
	EventAIProcessing         EventKind = "ai_processing"
	EventCacheHit             EventKind = "cache_hit"
	EventStreamingStart       EventKind = "streaming_start"
	EventStreamingContent     EventKind = "streaming_content"
	EventStreamingComplete    EventKind = "streaming_complete"
	EventStreamingFallback    EventKind = "streaming_fallback"
	EventSavingReport         EventKind = "saving_report"
	EventVerificationComplete EventKind = "verification_complete"
	EventVerificationError    EventKind = "verification_error"
	EventBatchComplete        EventKind = "batch_complete"
	EventError                EventKind = "error"
)

// Terminal reports whether no further events follow this kind in a batch.
func (k EventKind) Terminal() bool {
	return k == EventBatchComplete || k == EventError
}

// Event is one progress notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind `json:"kind"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	RunID   string    `json:"run_id,omitempty"`
	Unit    string    `json:"unit,omitempty"`
	State   UnitState `json:"state,omitempty"`
	Current int       `json:"current,omitempty"`
	Total   int       `json:"total,omitempty"`
	// Content is the cumulative partial text for streaming_content.
	Content string       `json:"content,omitempty"`
	Outcome *Outcome     `json:"outcome,omitempty"`
	Result  *BatchResult `json:"result,omitempty"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

type discard struct{}

func (discard) Emit(Event) {}

// Discard drops every event.
var Discard Sink = discard{}

// Multi fans events out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			s.Emit(e)
		}
	})
}

// ChannelSink hands events to a consumer through a buffered channel.
// streaming_content events are dropped when the buffer is full; all other
// events wait up to the hand-off timeout and are dropped after it.
type ChannelSink struct {
	ch      chan Event
	timeout time.Duration
	dropped atomic.Int64
	once    sync.Once
}

// NewChannelSink creates a sink with the given buffer size and timeout.
func NewChannelSink(buffer int, timeout time.Duration) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan Event, buffer), timeout: timeout}
}

// Events is the consumer side.
func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Emit implements Sink.
func (s *ChannelSink) Emit(e Event) {
	select {
	case s.ch <- e:
		return
	default:
	}
	if e.Kind == EventStreamingContent || s.timeout <= 0 {
		s.dropped.Add(1)
		return
	}
	t := time.NewTimer(s.timeout)
	defer t.Stop()
	select {
	case s.ch <- e:
	case <-t.C:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of events that could not be delivered.
func (s *ChannelSink) Dropped() int64 { return s.dropped.Load() }

// Close closes the channel. Call it only after the coordinator has returned.
func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.ch) })
}

// Recorder keeps every event in emission order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded event kinds, optionally only those for unit.
func (r *Recorder) Kinds(unit string) []EventKind {
	var kinds []EventKind
	for _, e := range r.Events() {
		if unit == "" || e.Unit == unit {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}
