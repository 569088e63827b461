package audio

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SpeakingStater reports whether the system is currently playing its own
// speech output. The detector ignores all samples while this is true so
// the assistant's voice can never trigger a recording.
type SpeakingStater interface {
	IsSpeaking() bool
}

// DetectorConfig holds VAD tuning
type DetectorConfig struct {
	SpeechThreshold float64       // loudness units; a sample must strictly exceed this
	SilenceDuration time.Duration // silence before speech-end, default 1500ms
}

// DefaultDetectorConfig returns sensible defaults
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SpeechThreshold: 5,
		SilenceDuration: 1500 * time.Millisecond,
	}
}

// Detector is an amplitude-threshold voice activity detector. It consumes
// loudness samples, emits a speech-start event on the first sample above
// threshold, and emits speech-end once no qualifying sample has arrived
// for SilenceDuration. A single silence timer is outstanding at any time;
// every qualifying sample cancels and restarts it.
type Detector struct {
	mu       sync.Mutex
	cfg      DetectorConfig
	speaking SpeakingStater
	logger   zerolog.Logger

	active       bool // a speech segment is open
	silenceTimer *time.Timer
	stopped      bool

	onSpeechStart func()
	onSpeechEnd   func()
}

// NewDetector creates a new detector
func NewDetector(cfg DetectorConfig, speaking SpeakingStater, logger zerolog.Logger) *Detector {
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = 1500 * time.Millisecond
	}
	return &Detector{
		cfg:      cfg,
		speaking: speaking,
		logger:   logger.With().Str("component", "vad").Logger(),
	}
}

// OnSpeechStart registers the speech-start callback
func (d *Detector) OnSpeechStart(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSpeechStart = fn
}

// OnSpeechEnd registers the speech-end callback
func (d *Detector) OnSpeechEnd(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSpeechEnd = fn
}

// SetConfig swaps the tuning at runtime (live config reload)
func (d *Detector) SetConfig(cfg DetectorConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = 1500 * time.Millisecond
	}
	d.cfg = cfg
}

// Active reports whether a speech segment is currently open
func (d *Detector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Sample feeds one loudness sample. A sample exactly at threshold counts
// as silence. Samples arriving while the system is speaking are ignored
// entirely, including timer resets.
func (d *Detector) Sample(level float64) {
	d.mu.Lock()
	if d.stopped || d.speaking.IsSpeaking() {
		d.mu.Unlock()
		return
	}

	if level <= d.cfg.SpeechThreshold {
		d.mu.Unlock()
		return
	}

	var started func()
	if !d.active {
		d.active = true
		started = d.onSpeechStart
		d.logger.Debug().Float64("level", level).Msg("Speech detected")
	}

	// Restart the silence timer; only one may be outstanding.
	if d.silenceTimer != nil {
		d.silenceTimer.Stop()
	}
	d.silenceTimer = time.AfterFunc(d.cfg.SilenceDuration, d.silenceElapsed)
	d.mu.Unlock()

	if started != nil {
		started()
	}
}

func (d *Detector) silenceElapsed() {
	d.mu.Lock()
	if d.stopped || !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.silenceTimer = nil
	ended := d.onSpeechEnd
	d.mu.Unlock()

	d.logger.Debug().Msg("Silence detected")
	if ended != nil {
		ended()
	}
}

// Stop halts detection and cancels any pending silence timer so no late
// events fire. Idempotent.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.active = false
	if d.silenceTimer != nil {
		d.silenceTimer.Stop()
		d.silenceTimer = nil
	}
}
