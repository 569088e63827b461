package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/voicepilot/internal/audio"
)

// Client submits audio segments to the voicepilot backend's transcription
// endpoint as a multipart upload and parses its {text}/{error} responses.
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

// NewClient creates a backend transcription client
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With().Str("provider", "backend-stt").Logger(),
	}
}

// Name returns the provider identifier
func (c *Client) Name() string {
	return "backend"
}

// Transcribe uploads the segment and returns the recognized text. Transport
// failures wrap ErrConnectivity; errors returned by the service surface as
// *APIError.
func (c *Client) Transcribe(ctx context.Context, seg *audio.Segment) (*Result, error) {
	startTime := time.Now()

	if seg == nil || seg.Size() == 0 {
		return nil, ErrEmptySegment
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", "command."+seg.Encoding.Ext())
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(seg.Data); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/transcribe", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger.Debug().Int("bytes", seg.Size()).Str("encoding", string(seg.Encoding)).Msg("Uploading segment")

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
		c.logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Transcription request failed")
		return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result.Error != "" {
		return nil, &APIError{Status: resp.StatusCode, Message: result.Error}
	}

	processingTime := time.Since(startTime)
	c.logger.Info().Str("text", result.Text).Dur("time", processingTime).Msg("Transcription complete")

	return &Result{
		Text:           result.Text,
		ProcessingTime: processingTime,
	}, nil
}
