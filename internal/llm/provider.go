// Package llm provides a uniform streaming interface over the LLM
// providers JARVIS can route to: Anthropic, a local llama.cpp endpoint
// via the OpenAI-compatible API, AWS Bedrock, and Google GenAI
// (spec.md §4.7).
package llm

import (
	"context"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

// Message is one turn of conversation history handed to a provider.
type Message struct {
	Role       models.Role
	Content    string
	ToolUseID  string // set on role=tool messages: which call this answers
	IsError    bool
}

// ToolDef is the provider-facing shape of a tool: no handler, no
// confirmation-only parameters (those are never exposed to the model).
type ToolDef struct {
	Name        string
	Description string
	Schema      []byte
}

// Usage is token accounting reported at stream completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Callbacks is the streaming contract every provider drives in textual
// order (spec.md §4.7). onConfirmationNeeded implies no further
// callbacks for that branch until the caller resumes the loop.
type Callbacks struct {
	OnTextDelta         func(text string)
	OnToolUse           func(name string, args map[string]any, id string, tier models.Tier)
	OnToolResult        func(id string, result string, isError bool)
	OnConfirmationNeeded func(name string, args map[string]any, id string, tier models.Tier)
	OnBlocked           func(name string, reason string, tier models.Tier)
	OnDone              func(usage Usage)
	OnError             func(err error)
}

// Provider is a streaming LLM backend. Agentic providers accept Tools;
// conversational providers ignore them (Kind() reports which).
type Provider interface {
	Name() string
	Kind() Kind
	// Stream sends messages+systemPrompt to the model and drives cb in
	// order, blocking until the provider's turn is over (it may emit
	// many text deltas and at most a handful of tool-use blocks before
	// returning). Providers pass tools through as given and withhold
	// none for policy reasons — tier enforcement happens in C1/C8.
	Stream(ctx context.Context, messages []Message, systemPrompt string, tools []ToolDef, cb Callbacks) error
}

// Kind distinguishes agentic (tool-capable) from conversational
// (tool-less, brevity-first) providers.
type Kind int

const (
	KindAgentic Kind = iota
	KindConversational
)
