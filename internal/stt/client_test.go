package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/voicepilot/internal/audio"
)

func testSegment(size int, enc audio.Encoding) *audio.Segment {
	return &audio.Segment{
		Data:     make([]byte, size),
		Encoding: enc,
		Start:    time.Now(),
		End:      time.Now(),
	}
}

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{BaseURL: url, Timeout: 5 * time.Second}, zerolog.Nop())
}

func TestClient_Transcribe_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transcribe", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		err := r.ParseMultipartForm(10 << 20)
		require.NoError(t, err)

		file, header, err := r.FormFile("audio")
		require.NoError(t, err)
		assert.Equal(t, "command.webm", header.Filename)

		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Len(t, data, 512)

		w.Write([]byte(`{"text":"turn on the lights"}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).Transcribe(context.Background(), testSegment(512, audio.EncodingOpusWebM))
	require.NoError(t, err)
	assert.Equal(t, "turn on the lights", result.Text)
}

func TestClient_Transcribe_FilenameFollowsEncoding(t *testing.T) {
	var filename string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(10<<20))
		_, header, err := r.FormFile("audio")
		require.NoError(t, err)
		filename = header.Filename
		w.Write([]byte(`{"text":""}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Transcribe(context.Background(), testSegment(200, audio.EncodingMP4))
	require.NoError(t, err)
	assert.Equal(t, "command.mp4", filename)
}

func TestClient_Transcribe_EmptyText(t *testing.T) {
	// Empty text means "no speech found", not an error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":""}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).Transcribe(context.Background(), testSegment(200, audio.EncodingWebM))
	require.NoError(t, err)
	assert.Empty(t, result.Text)
}

func TestClient_Transcribe_ApplicationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"bad audio"}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).Transcribe(context.Background(), testSegment(200, audio.EncodingWebM))
	assert.Nil(t, result)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad audio", apiErr.Message)
}

func TestClient_Transcribe_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("backend exploded"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Transcribe(context.Background(), testSegment(200, audio.EncodingWebM))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "backend exploded", apiErr.Message)
}

func TestClient_Transcribe_ConnectivityError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // unreachable

	_, err := newTestClient(server.URL).Transcribe(context.Background(), testSegment(200, audio.EncodingWebM))
	assert.ErrorIs(t, err, ErrConnectivity)
}

func TestClient_Transcribe_EmptySegment(t *testing.T) {
	_, err := newTestClient("http://localhost:1").Transcribe(context.Background(), testSegment(0, audio.EncodingWebM))
	assert.ErrorIs(t, err, ErrEmptySegment)
}
