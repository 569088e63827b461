// Package stt provides speech-to-text transcription clients.
package stt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/normanking/voicepilot/internal/audio"
)

// Common errors
var (
	// ErrConnectivity marks transport-level failures reaching the
	// service, as opposed to errors the service returned.
	ErrConnectivity = errors.New("transcription service unreachable")
	ErrEmptySegment = errors.New("segment is empty")
)

// APIError is an application-level error returned by the remote service.
// It is reported, never retried automatically.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transcription error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("transcription error: %s", e.Message)
}

// Result is a completed transcription. Text may be empty, meaning the
// service found no speech in the segment.
type Result struct {
	Text           string
	ProcessingTime time.Duration
}

// Transcriber sends one finalized audio segment to a speech-to-text
// service. Multiple submissions may be in flight concurrently and may
// complete out of order; callers treat the last completed result as
// current.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, seg *audio.Segment) (*Result, error)
}
