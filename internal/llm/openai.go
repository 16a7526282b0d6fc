package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

// OpenAIProvider is the conversational backend: a local llama.cpp
// instance speaking the OpenAI chat-completions wire format, adapted
// from the teacher's providers.OpenAIProvider. Conversational
// providers never receive tools (spec.md §4.7); brevity over
// capability.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIConfig configures the provider.
type OpenAIConfig struct {
	BaseURL      string // e.g. http://localhost:8080/v1, LLM_CONV_ENDPOINT
	APIKey       string // often unused by local servers but accepted
	DefaultModel string
}

// NewOpenAIProvider constructs a conversational Provider against an
// OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: conversational endpoint is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	model := cfg.DefaultModel
	if model == "" {
		model = "local"
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg), defaultModel: model}, nil
}

func (p *OpenAIProvider) Name() string { return "openai-compatible" }
func (p *OpenAIProvider) Kind() Kind   { return KindConversational }

func (p *OpenAIProvider) Stream(ctx context.Context, messages []Message, systemPrompt string, tools []ToolDef, cb Callbacks) error {
	chatMessages := convertOpenAIMessages(messages, systemPrompt)

	req := openai.ChatCompletionRequest{
		Model:    p.defaultModel,
		Messages: chatMessages,
		Stream:   true,
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return fmt.Errorf("llm: openai-compatible stream: %w", err)
	}
	defer stream.Close()

	var usage Usage
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return fmt.Errorf("llm: openai-compatible recv: %w", err)
		}
		if resp.Usage != nil {
			usage.InputTokens = resp.Usage.PromptTokens
			usage.OutputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if text := resp.Choices[0].Delta.Content; text != "" && cb.OnTextDelta != nil {
			cb.OnTextDelta(text)
		}
	}

	if cb.OnDone != nil {
		cb.OnDone(usage)
	}
	return nil
}

func convertOpenAIMessages(messages []Message, systemPrompt string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case models.RoleTool:
			// the conversational provider never issues tool calls, but
			// prior tool results folded into history read as assistant
			// context rather than a role the server won't recognize.
			role = openai.ChatMessageRoleAssistant
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
