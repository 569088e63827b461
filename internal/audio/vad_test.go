package audio

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeSpeaker struct {
	speaking atomic.Bool
}

func (f *fakeSpeaker) IsSpeaking() bool { return f.speaking.Load() }

func newTestDetector(threshold float64, silence time.Duration, sp SpeakingStater) (*Detector, *atomic.Int32, *atomic.Int32) {
	d := NewDetector(DetectorConfig{SpeechThreshold: threshold, SilenceDuration: silence}, sp, zerolog.Nop())

	var starts, ends atomic.Int32
	d.OnSpeechStart(func() { starts.Add(1) })
	d.OnSpeechEnd(func() { ends.Add(1) })
	return d, &starts, &ends
}

func TestDetector_StartsOnlyAboveThreshold(t *testing.T) {
	d, starts, _ := newTestDetector(5, time.Second, &fakeSpeaker{})

	d.Sample(2)
	d.Sample(4.9)
	assert.Equal(t, int32(0), starts.Load())

	d.Sample(5) // exactly at threshold counts as silence
	assert.Equal(t, int32(0), starts.Load())

	d.Sample(5.1)
	assert.Equal(t, int32(1), starts.Load())
	assert.True(t, d.Active())
}

func TestDetector_SingleStartPerSegment(t *testing.T) {
	d, starts, _ := newTestDetector(5, time.Second, &fakeSpeaker{})

	d.Sample(8)
	d.Sample(9)
	d.Sample(10)
	assert.Equal(t, int32(1), starts.Load())
}

func TestDetector_SpeechEndAfterSilence(t *testing.T) {
	d, starts, ends := newTestDetector(5, 50*time.Millisecond, &fakeSpeaker{})

	// Loud samples closer together than the silence window keep the
	// segment open.
	for i := 0; i < 4; i++ {
		d.Sample(8)
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, int32(0), ends.Load())

	// A gap longer than the window ends it.
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), starts.Load())
	assert.Equal(t, int32(1), ends.Load())
	assert.False(t, d.Active())
}

func TestDetector_QuietSamplesDoNotResetTimer(t *testing.T) {
	d, _, ends := newTestDetector(5, 60*time.Millisecond, &fakeSpeaker{})

	d.Sample(8)
	// Quiet samples must not reschedule the silence timer.
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		d.Sample(2)
	}
	assert.Eventually(t, func() bool { return ends.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestDetector_ScenarioLoudBurstThenSilence(t *testing.T) {
	// Sequence [2,2,8,8,8,2,2,...] with threshold 5: one start, one end
	// roughly a silence-window after the last loud sample.
	d, starts, ends := newTestDetector(5, 80*time.Millisecond, &fakeSpeaker{})

	levels := []float64{2, 2, 8, 8, 8}
	for _, v := range levels {
		d.Sample(v)
		time.Sleep(10 * time.Millisecond)
	}
	for i := 0; i < 5; i++ {
		d.Sample(2)
		time.Sleep(10 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return ends.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), starts.Load())
}

func TestDetector_IgnoresSamplesWhileSystemSpeaking(t *testing.T) {
	sp := &fakeSpeaker{}
	sp.speaking.Store(true)
	d, starts, _ := newTestDetector(5, time.Second, sp)

	d.Sample(50)
	d.Sample(100)
	assert.Equal(t, int32(0), starts.Load())
	assert.False(t, d.Active())

	// Once the system stops speaking, detection resumes.
	sp.speaking.Store(false)
	d.Sample(50)
	assert.Equal(t, int32(1), starts.Load())
}

func TestDetector_StopCancelsPendingTimer(t *testing.T) {
	d, _, ends := newTestDetector(5, 30*time.Millisecond, &fakeSpeaker{})

	d.Sample(8)
	d.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), ends.Load())

	// Stopped detectors ignore further samples.
	d.Sample(8)
	assert.False(t, d.Active())
}

func TestDetector_StopIdempotent(t *testing.T) {
	d, _, _ := newTestDetector(5, time.Second, &fakeSpeaker{})
	d.Stop()
	d.Stop()
}

func TestDetector_SetConfig(t *testing.T) {
	d, starts, _ := newTestDetector(5, time.Second, &fakeSpeaker{})

	d.SetConfig(DetectorConfig{SpeechThreshold: 50, SilenceDuration: time.Second})
	d.Sample(10)
	assert.Equal(t, int32(0), starts.Load())

	d.Sample(51)
	assert.Equal(t, int32(1), starts.Load())
}
