package audio

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream fills every bin with a constant value, then fails after a
// configurable number of reads.
type fakeStream struct {
	mu       sync.Mutex
	value    byte
	failAt   int
	reads    int
	failWith error
}

func (f *fakeStream) Read(bins []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failAt > 0 && f.reads > f.failAt {
		return f.failWith
	}
	for i := range bins {
		bins[i] = f.value
	}
	return nil
}

func (f *fakeStream) setValue(v byte) {
	f.mu.Lock()
	f.value = v
	f.mu.Unlock()
}

func TestMonitor_PublishesSamples(t *testing.T) {
	stream := &fakeStream{value: 40}
	m := NewMonitor(stream, MonitorConfig{SpectrumBins: 8, SampleInterval: 5 * time.Millisecond}, zerolog.Nop())

	var count atomic.Int32
	m.Subscribe(func(level float64) {
		assert.InDelta(t, 40.0, level, 0.001)
		count.Add(1)
	})

	m.Start()
	defer m.Stop()

	assert.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 40.0, m.Level(), 0.001)
}

func TestMonitor_LastValueWins(t *testing.T) {
	stream := &fakeStream{value: 10}
	m := NewMonitor(stream, MonitorConfig{SpectrumBins: 4, SampleInterval: 5 * time.Millisecond}, zerolog.Nop())

	m.Start()
	defer m.Stop()

	assert.Eventually(t, func() bool { return m.Level() > 9 }, time.Second, 5*time.Millisecond)

	stream.setValue(200)
	assert.Eventually(t, func() bool { return m.Level() > 199 }, time.Second, 5*time.Millisecond)
}

func TestMonitor_NotifiesClosureOnStreamFailure(t *testing.T) {
	stream := &fakeStream{value: 10, failAt: 2, failWith: ErrStreamClosed}
	m := NewMonitor(stream, MonitorConfig{SpectrumBins: 4, SampleInterval: 5 * time.Millisecond}, zerolog.Nop())

	closed := make(chan error, 1)
	m.OnClose(func(err error) { closed <- err })

	m.Start()
	defer m.Stop()

	select {
	case err := <-closed:
		require.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(time.Second):
		t.Fatal("monitor never reported stream closure")
	}
}

func TestMonitor_StopIdempotent(t *testing.T) {
	stream := &fakeStream{value: 10}
	m := NewMonitor(stream, MonitorConfig{SpectrumBins: 4, SampleInterval: 5 * time.Millisecond}, zerolog.Nop())

	m.Start()
	m.Stop()
	m.Stop()
}

func TestAverageMagnitude(t *testing.T) {
	assert.Equal(t, 0.0, averageMagnitude(nil))
	assert.Equal(t, 5.0, averageMagnitude([]byte{0, 10}))
	assert.Equal(t, 255.0, averageMagnitude([]byte{255, 255, 255}))
}
