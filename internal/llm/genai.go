package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

// GenAIProvider is a conversational backend over Google's Gemini API,
// adapted from the teacher's providers.GoogleProvider. Tool definitions
// are never forwarded: conversational providers are brevity-first and
// carry no agentic capability (spec.md §4.7).
type GenAIProvider struct {
	client       *genai.Client
	defaultModel string
}

// GenAIConfig configures the provider.
type GenAIConfig struct {
	APIKey       string
	DefaultModel string
}

// NewGenAIProvider constructs a Gemini-backed conversational Provider.
func NewGenAIProvider(ctx context.Context, cfg GenAIConfig) (*GenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: genai API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("llm: genai client: %w", err)
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GenAIProvider{client: client, defaultModel: model}, nil
}

func (p *GenAIProvider) Name() string { return "genai" }
func (p *GenAIProvider) Kind() Kind   { return KindConversational }

func (p *GenAIProvider) Stream(ctx context.Context, messages []Message, systemPrompt string, tools []ToolDef, cb Callbacks) error {
	contents := convertGenAIMessages(messages)

	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}

	var usage Usage
	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.defaultModel, contents, config) {
		if err != nil {
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return fmt.Errorf("llm: genai stream: %w", err)
		}
		if resp == nil {
			continue
		}
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part != nil && part.Text != "" && cb.OnTextDelta != nil {
					cb.OnTextDelta(part.Text)
				}
			}
		}
		if resp.UsageMetadata != nil {
			usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
	}

	if cb.OnDone != nil {
		cb.OnDone(usage)
	}
	return nil
}

func convertGenAIMessages(messages []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			continue
		}
		role := genai.RoleUser
		if m.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		if m.Content == "" {
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}
	return out
}
