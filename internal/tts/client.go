package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client requests synthesized audio from the voicepilot backend.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  zerolog.Logger
}

// ClientConfig holds backend client configuration
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a backend synthesis client
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With().Str("provider", "backend-tts").Logger(),
	}
}

// Name returns the provider identifier
func (c *Client) Name() string {
	return "backend"
}

// Synthesize posts the text and returns the audio clip bytes
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	startTime := time.Now()

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/speak", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error().Int("status", resp.StatusCode).Msg("Synthesis request failed")
		return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	c.logger.Info().
		Int("audioBytes", len(body)).
		Dur("processingTime", time.Since(startTime)).
		Msg("Synthesis complete")

	return body, nil
}
