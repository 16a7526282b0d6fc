// Package models defines the shared data-model entities used across the
// JARVIS backend: tools, sessions, chat messages, memories, and the
// bookkeeping types for tool invocations and TTS delivery.
package models

import (
	"context"
	"time"
)

// Tier is the safety classification of a tool.
type Tier string

const (
	TierGreen  Tier = "GREEN"
	TierYellow Tier = "YELLOW"
	TierRed    Tier = "RED"
	TierOrange Tier = "ORANGE"
	TierBlack  Tier = "BLACK"
)

// Source identifies who originated a tool invocation.
type Source string

const (
	SourceLLM     Source = "llm"
	SourceUser    Source = "user"
	SourceMonitor Source = "monitor"
	SourceAPI     Source = "api"
)

// Role is a ChatMessage speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// MemoryTier classifies a Memory entry's retention behavior.
type MemoryTier string

const (
	MemorySemantic MemoryTier = "semantic"
	MemoryEpisodic MemoryTier = "episodic"
	MemoryWorking  MemoryTier = "working"
)

// ErrorKind enumerates the propagation-policy error categories from §7.
type ErrorKind string

const (
	ErrSafetyDenied   ErrorKind = "SafetyDenied"
	ErrUnauthenticated ErrorKind = "Unauthenticated"
	ErrUnauthorized   ErrorKind = "Unauthorized"
	ErrTimeout        ErrorKind = "Timeout"
	ErrUpstream       ErrorKind = "Upstream"
	ErrNotFound       ErrorKind = "NotFound"
	ErrInvalidArgument ErrorKind = "InvalidArgument"
	ErrConflict       ErrorKind = "Conflict"
	ErrInternal       ErrorKind = "Internal"
)

// Tool is a registry entry: a named, schema-validated, tiered handler.
type Tool struct {
	Name        string
	Description string
	Tier        Tier
	Schema      []byte // JSON schema, draft 2020-12
	Handler     ToolHandler
}

// ToolHandler executes a tool's effect given validated arguments.
type ToolHandler func(ctx context.Context, args map[string]any) (string, error)

// ProtectedResource holds the sets of cluster entities that are never
// touchable regardless of tier.
type ProtectedResource struct {
	Nodes    map[string]struct{}
	VMIDs    map[int]struct{}
	Services map[string]struct{}
	IPs      map[string]struct{}
}

// SafetyDecision is the outcome of evaluating a tool call against policy.
type SafetyDecision struct {
	Allowed              bool
	Reason               string
	Tier                 Tier
	RequiresConfirmation bool
}

// ToolInvocation is the immutable audit record of one tool execution.
type ToolInvocation struct {
	ID         string
	Name       string
	Args       map[string]any
	Source     Source
	Tier       Tier
	StartedAt  time.Time
	EndedAt    time.Time
	OK         bool
	ErrorKind  ErrorKind
	DurationMs int64
}

// Session is a conversation session.
type Session struct {
	ID        string
	CreatedAt time.Time
}

// ChatMessage is one append-only entry in a session's transcript.
type ChatMessage struct {
	SessionID string
	Role      Role
	Content   string
	Model     string
	Timestamp time.Time
	TokensIn  int
	TokensOut int
	CostUSD   float64
}

// Memory is a recorded fact with tiered expiry semantics.
type Memory struct {
	Tier           MemoryTier
	Category       string
	Key            string
	Content        string
	Source         string
	SessionID      string
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// CostEntry records the USD cost of one provider call.
type CostEntry struct {
	Provider  string
	TokensIn  int
	TokensOut int
	USD       float64
	Timestamp time.Time
}

// SentenceChunk is one speakable unit detected by the sentence streamer.
type SentenceChunk struct {
	Index int
	Text  string
}

// AudioChunk is the synthesized audio for one SentenceChunk.
type AudioChunk struct {
	SessionID   string
	Index       int
	ContentType string
	Bytes       []byte
}

// PendingConfirmation is an opaque continuation awaiting operator resolution.
type PendingConfirmation struct {
	ID           string
	SessionID    string
	ToolUseID    string
	ToolName     string
	Args         map[string]any
	Tier         Tier
	ProviderID   string
	Messages     []ChatMessage
	CreatedAt    time.Time
}

// VoiceState is a VoiceAgent lifecycle state.
type VoiceState string

const (
	VoiceIdle       VoiceState = "idle"
	VoiceListening  VoiceState = "listening"
	VoiceCapturing  VoiceState = "capturing"
	VoiceProcessing VoiceState = "processing"
	VoiceSpeaking   VoiceState = "speaking"
)

// VoiceAgent tracks one voice-channel connection's state machine.
type VoiceAgent struct {
	ID                string
	State             VoiceState
	ConnectedAt       time.Time
	LastInteractionAt time.Time
}
