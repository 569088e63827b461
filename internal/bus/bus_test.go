package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_PublishSync(t *testing.T) {
	b := NewEventBus()

	var got Event
	var mu sync.Mutex
	b.Subscribe(EventTypeTranscript, func(e Event) {
		mu.Lock()
		got = e
		mu.Unlock()
	})

	b.PublishSync(Event{
		Type: EventTypeTranscript,
		Data: map[string]any{"text": "hello"},
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventTypeTranscript, got.Type)
	assert.Equal(t, "hello", got.Data["text"])
}

func TestEventBus_Publish_AllHandlers(t *testing.T) {
	b := NewEventBus()

	var count atomic.Int32
	for i := 0; i < 3; i++ {
		b.Subscribe(EventTypeSpeechStart, func(Event) {
			count.Add(1)
		})
	}

	b.PublishSync(Event{Type: EventTypeSpeechStart})
	assert.Equal(t, int32(3), count.Load())
}

func TestEventBus_Publish_UnsubscribedTypeIgnored(t *testing.T) {
	b := NewEventBus()

	var fired atomic.Bool
	b.Subscribe(EventTypeSpeechEnd, func(Event) {
		fired.Store(true)
	})

	b.Publish(Event{Type: EventTypeSpeechStart})
	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestEventBus_Clear(t *testing.T) {
	b := NewEventBus()

	var fired atomic.Bool
	b.Subscribe(EventTypeStatusChanged, func(Event) {
		fired.Store(true)
	})
	b.Clear()

	b.PublishSync(Event{Type: EventTypeStatusChanged})
	assert.False(t, fired.Load())
}
