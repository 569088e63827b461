// Package tts provides speech synthesis and the playback coordinator
// that keeps spoken output from feeding back into the microphone.
package tts

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrConnectivity marks transport-level failures reaching a
	// synthesis service.
	ErrConnectivity = errors.New("speech service unreachable")

	// ErrNoVoices means the local engine reported no installed voices.
	ErrNoVoices = errors.New("no voices available")
)

// APIError is an application-level error returned by a remote synthesis
// service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("speech synthesis error (status %d): %s", e.Status, e.Message)
}

// Voice describes one installed system voice.
type Voice struct {
	Name string
	Lang string // BCP 47 style, e.g. "en-US"
}

// Synthesizer turns text into encoded audio via a remote service.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player plays back a synthesized audio clip. Play blocks until the clip
// finishes or the context is cancelled. Stop interrupts the current clip.
type Player interface {
	Play(ctx context.Context, audio []byte) error
	Stop()
}

// Engine is a local text-to-speech engine with enumerable voices. Speak
// blocks until the utterance completes or the context is cancelled.
type Engine interface {
	Voices() []Voice
	Speak(ctx context.Context, text string, voice Voice, rate float64) error
	Cancel()
}
