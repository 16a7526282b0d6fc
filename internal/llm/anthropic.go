package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jarvis-homelab/jarvis/internal/models"
)

// AnthropicProvider is the agentic provider backed by Claude, adapted
// from the teacher's providers.AnthropicProvider: streaming SSE events
// are translated into the spec's callback contract instead of a
// CompletionChunk channel.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures the provider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// NewAnthropicProvider constructs a Claude-backed agentic Provider.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: anthropic API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), defaultModel: model}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }
func (p *AnthropicProvider) Kind() Kind   { return KindAgentic }

func (p *AnthropicProvider) Stream(ctx context.Context, messages []Message, systemPrompt string, tools []ToolDef, cb Callbacks) error {
	msgs, err := convertMessages(messages)
	if err != nil {
		return err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.defaultModel),
		Messages:  msgs,
		MaxTokens: 4096,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: systemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	var toolID, toolName string
	var toolInput strings.Builder
	var usage Usage

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			usage.InputTokens = int(ms.Message.Usage.InputTokens)

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				toolID, toolName = tu.ID, tu.Name
				toolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" && cb.OnTextDelta != nil {
					cb.OnTextDelta(delta.Text)
				}
			case "input_json_delta":
				toolInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if toolName != "" {
				var args map[string]any
				_ = json.Unmarshal([]byte(toolInput.String()), &args)
				if cb.OnToolUse != nil {
					cb.OnToolUse(toolName, args, toolID, "")
				}
				toolName = ""
			}

		case "message_delta":
			md := event.AsMessageDelta()
			usage.OutputTokens = int(md.Usage.OutputTokens)
		}
	}

	if err := stream.Err(); err != nil {
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return err
	}
	if cb.OnDone != nil {
		cb.OnDone(usage)
	}
	return nil
}

func convertMessages(messages []Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolUseID, m.Content, m.IsError),
			))
		default:
			// system-role synthetic summaries are folded into history as
			// assistant text; the true system prompt is passed separately.
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out, nil
}

func convertTools(tools []ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Schema) > 0 {
			_ = json.Unmarshal(t.Schema, &schema)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, toolParam)
	}
	return out
}
