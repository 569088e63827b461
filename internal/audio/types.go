// Package audio provides level monitoring, voice activity detection, and
// recording control for the hands-free voice session.
package audio

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrStreamClosed      = errors.New("audio stream closed")
	ErrAlreadyRecording  = errors.New("recording already in progress")
	ErrNotRecording      = errors.New("no recording in progress")
)

// InputStream yields instantaneous amplitude data from a live audio input.
// Read fills bins with per-band magnitudes in the 0-255 range and returns
// an error once the underlying stream is gone.
type InputStream interface {
	Read(bins []byte) error
}

// CaptureDevice is the raw-audio capture collaborator. The device stays
// primed between recordings; Start/Stop only toggle chunk delivery. Stop
// flushes any buffered data through the chunk handler before returning.
type CaptureDevice interface {
	Supports(enc Encoding) bool
	OnChunk(fn func(chunk []byte))
	Start() error
	Stop() error
	Close() error
}

// Segment is one complete captured utterance, immutable once finalized.
type Segment struct {
	Data     []byte
	Encoding Encoding
	Start    time.Time
	End      time.Time
}

// Size returns the segment payload size in bytes
func (s *Segment) Size() int {
	return len(s.Data)
}
