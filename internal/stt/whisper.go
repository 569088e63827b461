package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"github.com/normanking/voicepilot/internal/audio"
)

// WhisperClient transcribes segments through OpenAI's Whisper API. It is
// an alternate Transcriber for running without the voicepilot backend.
type WhisperClient struct {
	client *openai.Client
	config WhisperConfig
	logger zerolog.Logger
}

// WhisperConfig holds Whisper client configuration
type WhisperConfig struct {
	APIKey   string
	Model    string // default whisper-1
	Language string // optional hint
}

// NewWhisperClient creates a Whisper transcription client
func NewWhisperClient(cfg WhisperConfig, logger zerolog.Logger) *WhisperClient {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	return &WhisperClient{
		client: openai.NewClient(apiKey),
		config: cfg,
		logger: logger.With().Str("provider", "whisper").Logger(),
	}
}

// Name returns the provider identifier
func (w *WhisperClient) Name() string {
	return "whisper"
}

// Transcribe sends the segment to the Whisper API
func (w *WhisperClient) Transcribe(ctx context.Context, seg *audio.Segment) (*Result, error) {
	startTime := time.Now()

	if seg == nil || seg.Size() == 0 {
		return nil, ErrEmptySegment
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.config.Model,
		FilePath: "command." + seg.Encoding.Ext(),
		Reader:   bytes.NewReader(seg.Data),
		Language: w.config.Language,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			w.logger.Error().Int("status", apiErr.HTTPStatusCode).Str("message", apiErr.Message).Msg("Whisper API error")
			return nil, &APIError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}

	processingTime := time.Since(startTime)
	w.logger.Info().Str("text", resp.Text).Dur("time", processingTime).Msg("Transcription complete")

	return &Result{
		Text:           resp.Text,
		ProcessingTime: processingTime,
	}, nil
}
