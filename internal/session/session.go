// Package session wires the capture device, level monitor, voice
// detector, recorder and transcription client into one hands-free
// listening session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/voicepilot/internal/audio"
	"github.com/normanking/voicepilot/internal/bus"
	"github.com/normanking/voicepilot/internal/config"
	"github.com/normanking/voicepilot/internal/stt"
)

// Spoken when the capture device cannot be opened, so the failure is
// audible even with no screen attached.
const micErrorMessage = "Microphone error. Please allow access."

// ErrNotListening is returned by operations that need an active session
var ErrNotListening = errors.New("session is not listening")

// Device is a microphone that serves both the level monitor and the
// chunked recorder.
type Device interface {
	audio.InputStream
	audio.CaptureDevice
}

// DeviceOpener acquires the capture device. Called on every session
// start so a previously denied microphone can be retried.
type DeviceOpener func() (Device, error)

// Speaker is the spoken-output side of the assistant. IsSpeaking gates
// the voice detector so playback never triggers a recording.
type Speaker interface {
	Speak(ctx context.Context, text string)
	IsSpeaking() bool
	Stop()
}

// Session is the hands-free voice session facade
type Session struct {
	cfg     config.AudioConfig
	open    DeviceOpener
	stt     stt.Transcriber
	speaker Speaker
	bus     *bus.EventBus
	logger  zerolog.Logger

	mu         sync.Mutex
	status     Status
	listening  bool
	monitor    *audio.Monitor
	detector   *audio.Detector
	recorder   *audio.Recorder
	cancel     context.CancelFunc
	transcript string
	lastError  string
}

// NewSession creates a voice session. Nothing is captured until
// StartListening.
func NewSession(cfg config.AudioConfig, opener DeviceOpener, transcriber stt.Transcriber, speaker Speaker, b *bus.EventBus, logger zerolog.Logger) *Session {
	return &Session{
		cfg:     cfg,
		open:    opener,
		stt:     transcriber,
		speaker: speaker,
		bus:     b,
		logger:  logger.With().Str("component", "session").Logger(),
		status:  StatusIdle,
	}
}

// StartListening opens the capture device and begins hands-free
// operation. Calling it on an already listening session is a no-op.
func (s *Session) StartListening(ctx context.Context) error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.setStatus(StatusStarting)

	dev, err := s.open()
	if err != nil {
		s.logger.Error().Err(err).Msg("Could not open capture device")
		s.setError(StatusError, err.Error())
		// Report the failure out loud; a silent assistant looks hung.
		s.speaker.Speak(ctx, micErrorMessage)
		return fmt.Errorf("open capture device: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)

	monitor := audio.NewMonitor(dev, audio.MonitorConfig{
		SpectrumBins:   s.cfg.SpectrumBins,
		SampleInterval: s.cfg.SampleInterval,
	}, s.logger)

	detector := audio.NewDetector(audio.DetectorConfig{
		SpeechThreshold: s.cfg.SpeechThreshold,
		SilenceDuration: s.cfg.SilenceDuration,
	}, s.speaker, s.logger)

	recorder := audio.NewRecorder(dev, audio.RecorderConfig{
		MinSegmentBytes: s.cfg.MinSegmentBytes,
	}, s.logger)

	detector.OnSpeechStart(func() {
		if err := recorder.StartVoice(); err != nil {
			s.logger.Warn().Err(err).Msg("Could not start voice recording")
			return
		}
		s.setStatus(StatusRecording)
		s.bus.Publish(bus.Event{Type: bus.EventTypeSpeechStart})
	})

	detector.OnSpeechEnd(func() {
		s.bus.Publish(bus.Event{Type: bus.EventTypeSpeechEnd})
		if err := recorder.StopVoice(); err != nil {
			s.logger.Warn().Err(err).Msg("Could not finalize voice recording")
		}
	})

	recorder.OnSegment(func(seg *audio.Segment) {
		s.submit(sctx, seg)
	})

	recorder.OnDiscard(func(size int) {
		s.bus.Publish(bus.Event{
			Type: bus.EventTypeSegmentDiscarded,
			Data: map[string]any{"bytes": size},
		})
		s.setStatusIfListening(StatusListening)
	})

	monitor.Subscribe(func(level float64) {
		detector.Sample(level)
	})

	monitor.OnClose(func(err error) {
		if err == nil {
			return // deliberate stop
		}
		// Tear down off the monitor goroutine; Stop waits for it.
		go s.handleStreamClosed(err)
	})

	s.mu.Lock()
	s.monitor = monitor
	s.detector = detector
	s.recorder = recorder
	s.cancel = cancel
	s.listening = true
	s.mu.Unlock()

	monitor.Start()
	s.setStatus(StatusListening)
	s.logger.Info().Str("encoding", string(recorder.Encoding())).Msg("Listening")
	return nil
}

// StopListening tears the session down and releases the device.
// Idempotent.
func (s *Session) StopListening() {
	if s.teardown() {
		s.setStatus(StatusStopped)
		s.logger.Info().Msg("Stopped listening")
	}
}

// teardown releases all per-session components. Returns false if the
// session was not listening. The teardown order matters: the detector
// stops first so no late silence timer restarts the recorder, then the
// recorder drops its buffer and releases the device, then the monitor
// exits.
func (s *Session) teardown() bool {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return false
	}
	s.listening = false
	monitor := s.monitor
	detector := s.detector
	recorder := s.recorder
	cancel := s.cancel
	s.monitor = nil
	s.detector = nil
	s.recorder = nil
	s.cancel = nil
	s.mu.Unlock()

	detector.Stop()
	recorder.Abort()
	if err := recorder.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Device close failed")
	}
	monitor.Stop()
	cancel()
	return true
}

func (s *Session) handleStreamClosed(err error) {
	s.logger.Error().Err(err).Msg("Input stream closed unexpectedly")
	s.bus.Publish(bus.Event{Type: bus.EventTypeStreamClosed})
	if s.teardown() {
		s.setError(StatusError, "audio input stream ended")
	}
}

// submit sends one finalized segment for transcription. Runs on the
// recorder's handoff goroutine; submissions may overlap and the last one
// to complete wins.
func (s *Session) submit(ctx context.Context, seg *audio.Segment) {
	s.setStatus(StatusSending)
	s.bus.Publish(bus.Event{
		Type: bus.EventTypeSegmentReady,
		Data: map[string]any{"bytes": seg.Size(), "encoding": string(seg.Encoding)},
	})

	s.setStatus(StatusProcessing)
	result, err := s.stt.Transcribe(ctx, seg)
	if err != nil {
		if ctx.Err() != nil {
			return // session stopped mid-flight
		}
		s.logger.Error().Err(err).Msg("Transcription failed")

		status := StatusError
		msg := err.Error()
		var apiErr *stt.APIError
		if errors.Is(err, stt.ErrConnectivity) {
			status = StatusConnError
			msg = "could not reach transcription service"
		} else if errors.As(err, &apiErr) {
			msg = apiErr.Message
		}
		s.setError(status, msg)
		s.bus.Publish(bus.Event{
			Type: bus.EventTypeTranscribeFailed,
			Data: map[string]any{"error": msg},
		})
		return
	}

	s.mu.Lock()
	s.transcript = result.Text
	s.mu.Unlock()

	s.bus.Publish(bus.Event{
		Type: bus.EventTypeTranscript,
		Data: map[string]any{"text": result.Text},
	})
	s.setStatusIfListening(StatusListening)
}

// StartManualRecord begins an operator-driven recording, bypassing the
// voice detector. The session must be listening.
func (s *Session) StartManualRecord() error {
	s.mu.Lock()
	recorder := s.recorder
	s.mu.Unlock()

	if recorder == nil {
		return ErrNotListening
	}
	if err := recorder.StartManual(); err != nil {
		return err
	}
	s.setStatus(StatusRecording)
	return nil
}

// StopManualRecord finalizes an operator-driven recording
func (s *Session) StopManualRecord() error {
	s.mu.Lock()
	recorder := s.recorder
	s.mu.Unlock()

	if recorder == nil {
		return ErrNotListening
	}
	return recorder.StopManual()
}

// Speak queues spoken output through the playback coordinator
func (s *Session) Speak(ctx context.Context, text string) {
	s.speaker.Speak(ctx, text)
}

// ClearTranscript wipes the current transcript
func (s *Session) ClearTranscript() {
	s.mu.Lock()
	s.transcript = ""
	s.mu.Unlock()
	s.bus.Publish(bus.Event{Type: bus.EventTypeTranscriptCleared})
}

// SetDetectorConfig retunes the voice detector at runtime. A no-op when
// the session is not listening; the next start picks the config up from
// the session config regardless.
func (s *Session) SetDetectorConfig(cfg audio.DetectorConfig) {
	s.mu.Lock()
	s.cfg.SpeechThreshold = cfg.SpeechThreshold
	s.cfg.SilenceDuration = cfg.SilenceDuration
	detector := s.detector
	s.mu.Unlock()

	if detector != nil {
		detector.SetConfig(cfg)
	}
}

// Transcript returns the most recently completed transcription
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// LastError returns the most recent error message, if any
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Status returns the current session status
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsListening reports whether the session is active
func (s *Session) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// IsSpeaking reports whether spoken output is playing
func (s *Session) IsSpeaking() bool {
	return s.speaker.IsSpeaking()
}

// Level returns the most recent loudness sample, 0 when not listening
func (s *Session) Level() float64 {
	s.mu.Lock()
	monitor := s.monitor
	s.mu.Unlock()

	if monitor == nil {
		return 0
	}
	return monitor.Level()
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.mu.Unlock()

	s.publishStatus(status)
}

// setStatusIfListening avoids reviving a stopped session's status from a
// late transcription or discard callback.
func (s *Session) setStatusIfListening(status Status) {
	s.mu.Lock()
	if !s.listening || s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.mu.Unlock()

	s.publishStatus(status)
}

func (s *Session) setError(status Status, msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.status = status
	s.mu.Unlock()

	s.publishStatus(status)
}

func (s *Session) publishStatus(status Status) {
	s.bus.Publish(bus.Event{
		Type: bus.EventTypeStatusChanged,
		Data: map[string]any{"status": string(status)},
	})
}
