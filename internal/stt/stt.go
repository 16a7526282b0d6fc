// Package stt implements the speech-to-text port (C6): a single
// blocking transcribe call over a complete audio buffer. Adapted
// directly from the teacher's internal/media/transcribe package (same
// multipart/whisper-endpoint request shape), narrowed from the
// teacher's provider-registry pattern down to the one local
// whisper.cpp-compatible HTTP endpoint the homelab runs.
package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// MaxAudioBytes bounds one transcription request.
const MaxAudioBytes = 25 * 1024 * 1024

// Config configures a Transcriber.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
	Logger   *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = "whisper-1"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Transcriber converts one complete audio buffer into text via a
// whisper-compatible HTTP endpoint.
type Transcriber struct {
	baseURL    string
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
	logger     *slog.Logger
}

// New constructs a Transcriber. BaseURL is required.
func New(cfg Config) (*Transcriber, error) {
	cfg.applyDefaults()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("stt: base URL is required")
	}
	return &Transcriber{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger.With("component", "stt"),
	}, nil
}

// Transcribe converts a complete utterance's audio into text. Callers
// provide the full buffer: this is a single blocking call, not a
// streaming API — partial audio is buffered upstream by the realtime
// multiplexer's voice state machine before this is invoked.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader, mimeType string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(audio, MaxAudioBytes+1))
	if err != nil {
		return "", fmt.Errorf("stt: read audio: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("stt: audio is empty")
	}
	if len(data) > MaxAudioBytes {
		return "", fmt.Errorf("stt: audio too large (%d bytes)", len(data))
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filenameForMimeType(mimeType))
	if err != nil {
		return "", fmt.Errorf("stt: create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("stt: write audio data: %w", err)
	}
	if err := writer.WriteField("model", t.model); err != nil {
		return "", fmt.Errorf("stt: write model field: %w", err)
	}
	if err := writer.WriteField("response_format", "text"); err != nil {
		return "", fmt.Errorf("stt: write response_format field: %w", err)
	}
	if t.language != "" {
		if err := writer.WriteField("language", t.language); err != nil {
			return "", fmt.Errorf("stt: write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("stt: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("stt: build request: %w", err)
	}
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	t.logger.Debug("transcribing audio", "size_bytes", len(data), "mime_type", mimeType)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		t.logger.Error("transcription API error", "status", resp.StatusCode, "response", string(errBody))
		return "", fmt.Errorf("stt: API error (status %d): %s", resp.StatusCode, errBody)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("stt: read response: %w", err)
	}
	text := strings.TrimSpace(string(respBody))
	t.logger.Debug("transcription complete", "text_length", len(text))
	return text, nil
}

func filenameForMimeType(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])) {
	case "audio/wav", "audio/x-wav":
		return "audio.wav"
	case "audio/webm":
		return "audio.webm"
	case "audio/ogg", "audio/opus":
		return "audio.ogg"
	case "audio/mpeg", "audio/mp3":
		return "audio.mp3"
	case "audio/flac":
		return "audio.flac"
	default:
		return "audio.wav"
	}
}
