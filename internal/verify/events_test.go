package verify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChannelSink_DropsStreamingContentWhenFull(t *testing.T) {
	s := NewChannelSink(1, time.Second)
	s.Emit(Event{Kind: EventStreamingContent, Content: "a"})
	s.Emit(Event{Kind: EventStreamingContent, Content: "ab"})
	assert.Equal(t, int64(1), s.Dropped())
	assert.Equal(t, "a", (<-s.Events()).Content)
	s.Close()
}

func TestChannelSink_LifecycleWaitsForConsumer(t *testing.T) {
	s := NewChannelSink(1, time.Second)
	s.Emit(Event{Kind: EventBatchStart})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Emit(Event{Kind: EventBatchComplete})
	}()
	assert.Equal(t, EventBatchStart, (<-s.Events()).Kind)
	assert.Equal(t, EventBatchComplete, (<-s.Events()).Kind)
	wg.Wait()
	assert.Zero(t, s.Dropped())
	s.Close()
}

func TestChannelSink_LifecycleTimesOut(t *testing.T) {
	s := NewChannelSink(1, 10*time.Millisecond)
	s.Emit(Event{Kind: EventBatchStart})
	start := time.Now()
	s.Emit(Event{Kind: EventVerificationStart})
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, int64(1), s.Dropped())
	s.Close()
	s.Close()
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi(a, b, Discard).Emit(Event{Kind: EventError})
	assert.Equal(t, []EventKind{EventError}, a.Kinds(""))
	assert.Equal(t, []EventKind{EventError}, b.Kinds(""))
}

func TestEventKind_Terminal(t *testing.T) {
	assert.True(t, EventBatchComplete.Terminal())
	assert.True(t, EventError.Terminal())
	assert.False(t, EventVerificationError.Terminal())
}
