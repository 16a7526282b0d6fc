package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

// BedrockProvider is the second agentic backend (after Anthropic), adapted from the
// teacher's providers.BedrockProvider: the Converse streaming API
// replaces the teacher's CompletionChunk channel with direct callback
// dispatch (spec.md §4.7).
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
}

// BedrockConfig configures the provider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	DefaultModel    string
}

// NewBedrockProvider constructs a Bedrock-backed agentic Provider.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("llm: bedrock config: %w", err)
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	return &BedrockProvider{client: bedrockruntime.NewFromConfig(awsCfg), defaultModel: model}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }
func (p *BedrockProvider) Kind() Kind   { return KindAgentic }

func (p *BedrockProvider) Stream(ctx context.Context, messages []Message, systemPrompt string, tools []ToolDef, cb Callbacks) error {
	msgs, err := convertBedrockMessages(messages)
	if err != nil {
		return err
	}

	req := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(p.defaultModel),
		Messages: msgs,
	}
	if systemPrompt != "" {
		req.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: systemPrompt},
		}
	}
	if len(tools) > 0 {
		req.ToolConfig = convertBedrockTools(tools)
	}

	stream, err := p.client.ConverseStream(ctx, req)
	if err != nil {
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return fmt.Errorf("llm: bedrock converse stream: %w", err)
	}

	eventStream := stream.GetStream()
	defer eventStream.Close()

	var toolID, toolName string
	var toolInput strings.Builder
	var usage Usage

	for event := range eventStream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockStart:
			if tu, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
				toolID = aws.ToString(tu.Value.ToolUseId)
				toolName = aws.ToString(tu.Value.Name)
				toolInput.Reset()
			}

		case *types.ConverseStreamOutputMemberContentBlockDelta:
			switch delta := ev.Value.Delta.(type) {
			case *types.ContentBlockDeltaMemberText:
				if delta.Value != "" && cb.OnTextDelta != nil {
					cb.OnTextDelta(delta.Value)
				}
			case *types.ContentBlockDeltaMemberToolUse:
				if delta.Value.Input != nil {
					toolInput.WriteString(*delta.Value.Input)
				}
			}

		case *types.ConverseStreamOutputMemberContentBlockStop:
			if toolName != "" {
				var args map[string]any
				_ = json.Unmarshal([]byte(toolInput.String()), &args)
				if cb.OnToolUse != nil {
					cb.OnToolUse(toolName, args, toolID, "")
				}
				toolName = ""
			}

		case *types.ConverseStreamOutputMemberMessageStop:
			// final text complete; usage may still arrive as metadata

		case *types.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				usage.InputTokens = int(ev.Value.Usage.InputTokens)
				usage.OutputTokens = int(ev.Value.Usage.OutputTokens)
			}
		}
	}

	if err := eventStream.Err(); err != nil {
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return fmt.Errorf("llm: bedrock event stream: %w", err)
	}
	if cb.OnDone != nil {
		cb.OnDone(usage)
	}
	return nil
}

func convertBedrockMessages(messages []Message) ([]types.Message, error) {
	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleUser:
			out = append(out, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		case models.RoleAssistant:
			out = append(out, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		case models.RoleTool:
			status := types.ToolResultStatusSuccess
			if m.IsError {
				status = types.ToolResultStatusError
			}
			out = append(out, types.Message{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: aws.String(m.ToolUseID),
						Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Content}},
						Status:    status,
					},
				}},
			})
		default:
			out = append(out, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		}
	}
	return out, nil
}

func convertBedrockTools(tools []ToolDef) *types.ToolConfiguration {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		var schemaDoc any
		if err := json.Unmarshal(t.Schema, &schemaDoc); err != nil {
			schemaDoc = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaDoc)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}
}
