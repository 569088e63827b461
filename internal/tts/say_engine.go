package tts

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Words per minute at rate 1.0, matching the say command's default.
const sayBaseRate = 175

// SayEngine speaks through the macOS 'say' command. It is the local
// fallback when no remote synthesizer is configured or reachable.
type SayEngine struct {
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc

	voicesOnce sync.Once
	voices     []Voice
}

// NewSayEngine creates a say-backed speech engine
func NewSayEngine(logger zerolog.Logger) *SayEngine {
	return &SayEngine{
		logger: logger.With().Str("provider", "say").Logger(),
	}
}

// IsAvailable checks if this is macOS and the 'say' command exists
func (e *SayEngine) IsAvailable() bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	_, err := exec.LookPath("say")
	return err == nil
}

// Voices returns the installed system voices. The list is enumerated
// once and cached.
func (e *SayEngine) Voices() []Voice {
	e.voicesOnce.Do(func() {
		out, err := exec.Command("say", "-v", "?").Output()
		if err != nil {
			e.logger.Warn().Err(err).Msg("Could not enumerate system voices")
			return
		}
		e.voices = parseSayVoices(string(out))
	})
	return e.voices
}

// parseSayVoices parses 'say -v ?' output. Each line holds a voice name
// (possibly multi-word), a locale, and a '#'-prefixed sample sentence.
func parseSayVoices(out string) []Voice {
	var voices []Voice
	for _, line := range strings.Split(out, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		lang := fields[len(fields)-1]
		name := strings.Join(fields[:len(fields)-1], " ")
		voices = append(voices, Voice{
			Name: name,
			Lang: strings.ReplaceAll(lang, "_", "-"),
		})
	}
	return voices
}

// Speak speaks the text, blocking until it completes or the context is
// cancelled. A zero Voice uses the system default.
func (e *SayEngine) Speak(ctx context.Context, text string, voice Voice, rate float64) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = cancel
	e.mu.Unlock()

	var args []string
	if voice.Name != "" {
		args = append(args, "-v", voice.Name)
	}
	if rate > 0 && rate != 1.0 {
		args = append(args, "-r", strconv.Itoa(int(sayBaseRate*rate)))
	}
	args = append(args, text)

	e.logger.Debug().
		Str("voice", voice.Name).
		Int("textLen", len(text)).
		Msg("Speaking with say")

	cmd := exec.CommandContext(sctx, "say", args...)
	if err := cmd.Run(); err != nil {
		if sctx.Err() != nil {
			return sctx.Err()
		}
		return fmt.Errorf("say command failed: %w", err)
	}
	return nil
}

// Cancel interrupts the current utterance, if any
func (e *SayEngine) Cancel() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()
}
