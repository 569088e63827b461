package audio

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type recordMode int

const (
	modeNone recordMode = iota
	modeVoice
	modeManual
)

// RecorderConfig holds recording controller configuration
type RecorderConfig struct {
	// MinSegmentBytes is the segment size floor; smaller captures are
	// treated as noise and discarded without being sent.
	MinSegmentBytes int
}

// DefaultRecorderConfig returns sensible defaults
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{MinSegmentBytes: 100}
}

// Recorder owns the capture device and buffers chunks between a
// recording-start and recording-stop event. The device stays primed across
// utterances; only Close releases it. VAD-triggered and manual recordings
// are mutually exclusive.
type Recorder struct {
	device   CaptureDevice
	encoding Encoding
	cfg      RecorderConfig
	logger   zerolog.Logger

	mu      sync.Mutex
	mode    recordMode
	chunks  [][]byte
	started time.Time
	closed  bool

	onSegment func(seg *Segment)
	onDiscard func(size int)
}

// NewRecorder creates a recording controller over a primed capture device.
// The session encoding is negotiated once, here.
func NewRecorder(device CaptureDevice, cfg RecorderConfig, logger zerolog.Logger) *Recorder {
	if cfg.MinSegmentBytes <= 0 {
		cfg.MinSegmentBytes = 100
	}

	r := &Recorder{
		device:   device,
		encoding: NegotiateEncoding(device),
		cfg:      cfg,
		logger:   logger.With().Str("component", "recorder").Logger(),
	}
	device.OnChunk(r.appendChunk)

	r.logger.Info().Str("encoding", string(r.encoding)).Msg("Negotiated capture encoding")
	return r
}

// Encoding returns the encoding negotiated for this session
func (r *Recorder) Encoding() Encoding {
	return r.encoding
}

// OnSegment registers the finalized-segment handler. The handler runs on
// its own goroutine; the segment is immutable once handed off.
func (r *Recorder) OnSegment(fn func(seg *Segment)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSegment = fn
}

// OnDiscard registers a callback for segments dropped by the size floor
func (r *Recorder) OnDiscard(fn func(size int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDiscard = fn
}

// Recording reports whether a capture is in progress
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode != modeNone
}

// StartVoice begins a VAD-triggered recording
func (r *Recorder) StartVoice() error {
	return r.start(modeVoice)
}

// StopVoice finalizes a VAD-triggered recording
func (r *Recorder) StopVoice() error {
	return r.finish(modeVoice)
}

// StartManual begins an operator-driven recording, bypassing the detector
func (r *Recorder) StartManual() error {
	return r.start(modeManual)
}

// StopManual finalizes an operator-driven recording
func (r *Recorder) StopManual() error {
	return r.finish(modeManual)
}

func (r *Recorder) start(mode recordMode) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrDeviceUnavailable
	}
	if r.mode != modeNone {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.mode = mode
	r.chunks = r.chunks[:0]
	r.started = time.Now()
	r.mu.Unlock()

	if err := r.device.Start(); err != nil {
		r.mu.Lock()
		r.mode = modeNone
		r.mu.Unlock()
		return err
	}

	r.logger.Debug().Bool("manual", mode == modeManual).Msg("Recording started")
	return nil
}

func (r *Recorder) finish(mode recordMode) error {
	r.mu.Lock()
	if r.mode != mode {
		cur := r.mode
		r.mu.Unlock()
		if cur == modeNone {
			return ErrNotRecording
		}
		return ErrAlreadyRecording
	}
	r.mu.Unlock()

	// Stop flushes remaining device data through appendChunk first.
	if err := r.device.Stop(); err != nil {
		r.logger.Warn().Err(err).Msg("Capture stop failed")
	}

	r.mu.Lock()
	data := joinChunks(r.chunks)
	started := r.started
	r.chunks = r.chunks[:0]
	r.mode = modeNone
	handler := r.onSegment
	discard := r.onDiscard
	r.mu.Unlock()

	if len(data) < r.cfg.MinSegmentBytes {
		r.logger.Debug().Int("bytes", len(data)).Msg("Segment below size floor, discarding")
		if discard != nil {
			discard(len(data))
		}
		return nil
	}

	seg := &Segment{
		Data:     data,
		Encoding: r.encoding,
		Start:    started,
		End:      time.Now(),
	}

	r.logger.Info().Int("bytes", seg.Size()).Str("encoding", string(seg.Encoding)).Msg("Segment finalized")

	if handler != nil {
		go handler(seg)
	}
	return nil
}

// Abort stops any in-progress recording and discards the buffer without
// handing a segment off. Used during session teardown.
func (r *Recorder) Abort() {
	r.mu.Lock()
	active := r.mode != modeNone
	r.mode = modeNone
	r.chunks = r.chunks[:0]
	r.mu.Unlock()

	if active {
		if err := r.device.Stop(); err != nil {
			r.logger.Warn().Err(err).Msg("Capture stop failed during abort")
		}
	}
}

// Close releases the capture device. Idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.Abort()
	return r.device.Close()
}

func (r *Recorder) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == modeNone {
		// Not recording; late flushes after an abort are dropped.
		return
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	r.chunks = append(r.chunks, buf)
}

func joinChunks(chunks [][]byte) []byte {
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
