// Package tts implements the TTS pipeline (C5): two synthesis engines,
// a two-tier audio cache, a per-response engine lock, and bounded
// parallel synthesis workers. Engine HTTP plumbing is adapted from the
// teacher's internal/tts/tts.go (openaiTTS/elevenlabsTTS request
// shapes); the worker-pool backpressure idiom is adapted from
// internal/agent/executor.go's buffered-channel semaphore.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Audio is one synthesized utterance.
type Audio struct {
	Bytes       []byte
	ContentType string
}

// Engine synthesizes one sentence of text into audio.
type Engine interface {
	Name() string
	Synthesize(ctx context.Context, text string) (Audio, error)
	Healthy(ctx context.Context) bool
}

// OpenAIEngine is the expressive primary engine, adapted from the
// teacher's openaiTTS: a direct HTTP call to the audio/speech endpoint.
type OpenAIEngine struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	voice      string
}

// OpenAIEngineConfig configures an OpenAIEngine.
type OpenAIEngineConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
}

// NewOpenAIEngine constructs the primary engine.
func NewOpenAIEngine(cfg OpenAIEngineConfig) *OpenAIEngine {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "tts-1-hd"
	}
	voice := cfg.Voice
	if voice == "" {
		voice = "alloy"
	}
	return &OpenAIEngine{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    baseURL, apiKey: cfg.APIKey, model: model, voice: voice,
	}
}

func (e *OpenAIEngine) Name() string { return "primary" }

func (e *OpenAIEngine) Synthesize(ctx context.Context, text string) (Audio, error) {
	body, err := json.Marshal(map[string]any{
		"model": e.model, "input": text, "voice": e.voice, "response_format": "wav",
	})
	if err != nil {
		return Audio{}, fmt.Errorf("tts: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return Audio{}, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("tts: primary engine request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return Audio{}, fmt.Errorf("tts: primary engine returned %s: %s", resp.Status, errBody)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("tts: read primary audio: %w", err)
	}
	return Audio{Bytes: data, ContentType: "audio/wav"}, nil
}

func (e *OpenAIEngine) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// EdgeEngine is the fast, less expressive fallback engine, adapted
// from the teacher's edgeTTS: a local piper/edge-tts-compatible HTTP
// bridge rather than the teacher's CLI subprocess, so it can run
// inside the same deadline/cancellation machinery as the primary
// engine without spawning a process per sentence.
type EdgeEngine struct {
	httpClient *http.Client
	baseURL    string
	voice      string
}

// EdgeEngineConfig configures an EdgeEngine.
type EdgeEngineConfig struct {
	BaseURL string
	Voice   string
}

// NewEdgeEngine constructs the fallback engine.
func NewEdgeEngine(cfg EdgeEngineConfig) *EdgeEngine {
	voice := cfg.Voice
	if voice == "" {
		voice = "en-US-AriaNeural"
	}
	return &EdgeEngine{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.BaseURL, voice: voice,
	}
}

func (e *EdgeEngine) Name() string { return "fallback" }

func (e *EdgeEngine) Synthesize(ctx context.Context, text string) (Audio, error) {
	body, err := json.Marshal(map[string]any{"text": text, "voice": e.voice})
	if err != nil {
		return Audio{}, fmt.Errorf("tts: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/speak", bytes.NewReader(body))
	if err != nil {
		return Audio{}, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("tts: fallback engine request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return Audio{}, fmt.Errorf("tts: fallback engine returned %s: %s", resp.Status, errBody)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("tts: read fallback audio: %w", err)
	}
	return Audio{Bytes: data, ContentType: "audio/wav"}, nil
}

func (e *EdgeEngine) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
