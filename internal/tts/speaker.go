package tts

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/voicepilot/internal/bus"
)

// SpeakerConfig holds playback coordinator configuration
type SpeakerConfig struct {
	// DedupWindow suppresses a repeat of the same text within this
	// window, so rapid state changes do not stutter the same phrase.
	DedupWindow time.Duration

	// VoiceLanguage and PreferredNames steer local voice selection.
	VoiceLanguage  string
	PreferredNames []string

	// Rate is a speaking-rate multiplier, 1.0 for normal speed.
	Rate float64
}

// DefaultSpeakerConfig returns the standard coordinator settings
func DefaultSpeakerConfig() SpeakerConfig {
	return SpeakerConfig{
		DedupWindow:    2 * time.Second,
		VoiceLanguage:  "en",
		PreferredNames: []string{"Google", "Samantha", "Natural"},
		Rate:           1.0,
	}
}

// playbackSession represents one in-flight utterance. Starting a new
// utterance cancels the previous session so at most one plays at a time.
type playbackSession struct {
	cancel context.CancelFunc
}

// Speaker coordinates spoken output. It prefers the remote synthesizer
// and falls back to the local engine, suppresses duplicate utterances,
// and exposes IsSpeaking so the voice detector can ignore the
// assistant's own audio.
type Speaker struct {
	synth  Synthesizer
	player Player
	engine Engine
	bus    *bus.EventBus
	config SpeakerConfig
	logger zerolog.Logger

	mu       sync.Mutex
	current  *playbackSession
	lastText string
	lastAt   time.Time

	speaking atomic.Bool
	now      func() time.Time
}

// NewSpeaker creates a playback coordinator. synth and player may be nil
// to run purely on the local engine; engine may be nil when a remote
// synthesizer is configured.
func NewSpeaker(cfg SpeakerConfig, synth Synthesizer, player Player, engine Engine, b *bus.EventBus, logger zerolog.Logger) *Speaker {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 2 * time.Second
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1.0
	}
	return &Speaker{
		synth:  synth,
		player: player,
		engine: engine,
		bus:    b,
		config: cfg,
		logger: logger.With().Str("component", "speaker").Logger(),
		now:    time.Now,
	}
}

// IsSpeaking reports whether an utterance is currently playing
func (s *Speaker) IsSpeaking() bool {
	return s.speaking.Load()
}

// Speak queues the text for playback and returns immediately. A repeat
// of the previous text within the dedup window is dropped. A new
// utterance interrupts the one in flight.
func (s *Speaker) Speak(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	s.mu.Lock()
	now := s.now()
	if text == s.lastText && now.Sub(s.lastAt) < s.config.DedupWindow {
		s.mu.Unlock()
		s.logger.Debug().Str("text", text).Msg("Duplicate utterance suppressed")
		s.bus.Publish(bus.Event{
			Type: bus.EventTypeSpeakSuppressed,
			Data: map[string]any{"text": text},
		})
		return
	}
	s.lastText = text
	s.lastAt = now

	if s.current != nil {
		s.current.cancel()
	}
	sctx, cancel := context.WithCancel(ctx)
	sess := &playbackSession{cancel: cancel}
	s.current = sess
	s.speaking.Store(true)
	s.mu.Unlock()

	s.bus.Publish(bus.Event{
		Type: bus.EventTypeSpeakingStarted,
		Data: map[string]any{"text": text},
	})

	go s.run(sctx, sess, text)
}

func (s *Speaker) run(ctx context.Context, sess *playbackSession, text string) {
	defer s.finish(sess)

	if s.synth != nil && s.player != nil {
		audio, err := s.synth.Synthesize(ctx, text)
		if err == nil {
			err = s.player.Play(ctx, audio)
			if err == nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Str("provider", s.synth.Name()).
			Msg("Remote synthesis failed, falling back to local engine")
	}

	s.speakLocal(ctx, text)
}

func (s *Speaker) speakLocal(ctx context.Context, text string) {
	if s.engine == nil {
		s.logger.Error().Msg("No speech engine available")
		return
	}

	voice, err := SelectVoice(s.engine.Voices(), s.config.VoiceLanguage, s.config.PreferredNames)
	if err != nil {
		// Fail open: a zero voice speaks with the engine default,
		// which beats staying silent on an error report.
		s.logger.Warn().Err(err).Msg("Voice selection failed, using engine default")
	}

	if err := s.engine.Speak(ctx, text, voice, s.config.Rate); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("Local speech failed")
	}
}

// finish clears the speaking flag, but only if this session is still the
// current one. An interrupted session must not clobber its successor.
func (s *Speaker) finish(sess *playbackSession) {
	s.mu.Lock()
	last := s.current == sess
	if last {
		s.current = nil
		s.speaking.Store(false)
	}
	s.mu.Unlock()

	if last {
		s.bus.Publish(bus.Event{Type: bus.EventTypeSpeakingStopped})
	}
}

// Stop interrupts the current utterance and clears the speaking flag
func (s *Speaker) Stop() {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	if sess != nil {
		sess.cancel()
	}
	if s.player != nil {
		s.player.Stop()
	}
	if s.engine != nil {
		s.engine.Cancel()
	}

	if s.speaking.CompareAndSwap(true, false) {
		s.bus.Publish(bus.Event{Type: bus.EventTypeSpeakingStopped})
	}
}
