package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// CmdPlayer plays audio clips through an external player command,
// afplay by default.
type CmdPlayer struct {
	command string
	logger  zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewCmdPlayer creates a command-line audio player
func NewCmdPlayer(command string, logger zerolog.Logger) *CmdPlayer {
	if command == "" {
		command = "afplay"
	}
	return &CmdPlayer{
		command: command,
		logger:  logger.With().Str("component", "player").Logger(),
	}
}

// Play writes the clip to a temp file and plays it, blocking until
// playback finishes or the context is cancelled.
func (p *CmdPlayer) Play(ctx context.Context, audio []byte) error {
	tmpFile, err := os.CreateTemp("", "voicepilot-*.mp3")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(audio); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write audio file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close audio file: %w", err)
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()

	p.logger.Debug().Int("audioBytes", len(audio)).Msg("Playing clip")

	cmd := exec.CommandContext(pctx, p.command, tmpPath)
	if err := cmd.Run(); err != nil {
		if pctx.Err() != nil {
			return pctx.Err()
		}
		return fmt.Errorf("%s failed: %w", p.command, err)
	}
	return nil
}

// Stop interrupts the current clip, if any
func (p *CmdPlayer) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
}
