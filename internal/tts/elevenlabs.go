package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	elevenLabsAPIEndpoint  = "https://api.elevenlabs.io/v1"
	elevenLabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM" // Rachel - calm, natural female
	elevenLabsModelID      = "eleven_monolingual_v1"
)

// ElevenLabsClient synthesizes speech through the ElevenLabs API. It is
// an alternate Synthesizer for running without the voicepilot backend.
type ElevenLabsClient struct {
	apiKey  string
	voiceID string
	baseURL string
	httpc   *http.Client
	logger  zerolog.Logger
}

// ElevenLabsConfig holds ElevenLabs client configuration
type ElevenLabsConfig struct {
	APIKey  string
	VoiceID string
	BaseURL string // override for testing
	Timeout time.Duration
}

// NewElevenLabsClient creates an ElevenLabs synthesis client
func NewElevenLabsClient(cfg ElevenLabsConfig, logger zerolog.Logger) *ElevenLabsClient {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = elevenLabsDefaultVoice
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = elevenLabsAPIEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &ElevenLabsClient{
		apiKey:  apiKey,
		voiceID: cfg.VoiceID,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With().Str("provider", "elevenlabs-tts").Logger(),
	}
}

// Name returns the provider identifier
func (c *ElevenLabsClient) Name() string {
	return "elevenlabs"
}

// IsAvailable reports whether an API key is configured
func (c *ElevenLabsClient) IsAvailable() bool {
	return c.apiKey != ""
}

// Synthesize converts text to MP3 audio
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !c.IsAvailable() {
		return nil, fmt.Errorf("ElevenLabs API key not set")
	}

	startTime := time.Now()

	payload := map[string]any{
		"text":     text,
		"model_id": elevenLabsModelID,
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, c.voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.apiKey)
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	c.logger.Info().
		Str("voice", c.voiceID).
		Int("audioBytes", len(audioData)).
		Dur("processingTime", time.Since(startTime)).
		Msg("ElevenLabs synthesis complete")

	return audioData, nil
}
