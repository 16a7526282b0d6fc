package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/config"
	ctxmgr "github.com/jarvis-homelab/jarvis/internal/context"
	"github.com/jarvis-homelab/jarvis/internal/llm"
)

// retentionInterval/retentionMaxAge govern the storage retention
// sweeper (spec.md §4.4 supplemented feature).
const (
	retentionInterval = 6 * time.Hour
	retentionMaxAge   = 30 * 24 * time.Hour

	// contextTokenBudget is the sliding-window budget per session
	// (spec.md §4.10).
	contextTokenBudget = 8000
)

const systemPromptAgentic = "You are JARVIS, the voice-enabled command center for a four-node " +
	"Proxmox homelab. You may inspect and control cluster resources through the tools available " +
	"to you. Destructive or sensitive actions require operator confirmation before they run."

const systemPromptConversational = "You are JARVIS, a conversational assistant for a homelab operator. " +
	"You do not have tool access in this mode; answer from context and conversation history alone."

// buildAgenticProvider selects and constructs the C7 agentic backend
// named by cfg.AgenticProvider.
func buildAgenticProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch strings.ToLower(cfg.AgenticProvider) {
	case "", "anthropic":
		return llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:       cfg.LLMAgenticAPIKey,
			DefaultModel: cfg.AnthropicModel,
		})
	case "bedrock":
		return llm.NewBedrockProvider(ctx, llm.BedrockConfig{
			Region:       cfg.BedrockRegion,
			DefaultModel: cfg.BedrockModel,
		})
	default:
		return nil, fmt.Errorf("unknown agentic provider %q", cfg.AgenticProvider)
	}
}

// buildConversationalProvider selects and constructs the C7
// conversational backend named by cfg.ConversationalProvider.
func buildConversationalProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch strings.ToLower(cfg.ConversationalProvider) {
	case "", "openai":
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			BaseURL:      cfg.LLMConvEndpoint,
			DefaultModel: cfg.OpenAIModel,
		})
	case "genai":
		return llm.NewGenAIProvider(ctx, llm.GenAIConfig{
			APIKey:       cfg.GenAIAPIKey,
			DefaultModel: cfg.GenAIModel,
		})
	default:
		return nil, fmt.Errorf("unknown conversational provider %q", cfg.ConversationalProvider)
	}
}

// summarizerFor adapts a conversational Provider's streaming Stream
// call into the context manager's blocking Summarizer contract: run
// one turn with no tools, collect the text deltas, return the joined
// result.
func summarizerFor(provider llm.Provider) ctxmgr.Summarizer {
	return func(ctx context.Context, messages []llm.Message) (string, error) {
		var sb strings.Builder
		done := make(chan error, 1)
		cb := llm.Callbacks{
			OnTextDelta: func(text string) { sb.WriteString(text) },
			OnDone:      func(llm.Usage) { done <- nil },
			OnError:     func(err error) { done <- err },
		}
		const summarizePrompt = "Summarize the following conversation history concisely, " +
			"preserving facts the operator is likely to reference again."
		if err := provider.Stream(ctx, messages, summarizePrompt, nil, cb); err != nil {
			return "", err
		}
		select {
		case err := <-done:
			if err != nil {
				return "", err
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return sb.String(), nil
	}
}
