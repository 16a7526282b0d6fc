// Package agent implements the agentic loop (spec.md §4.8): it drives
// an llm.Provider, intercepts tool-use blocks, enforces safety via the
// tooling executor, and packages RED/ORANGE calls awaiting operator
// confirmation into a resumable continuation. Adapted from the
// teacher's internal/agent/loop.go state machine.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/jarvis-homelab/jarvis/internal/llm"
	"github.com/jarvis-homelab/jarvis/internal/models"
	"github.com/jarvis-homelab/jarvis/internal/observability"
	"github.com/jarvis-homelab/jarvis/internal/safety"
	"github.com/jarvis-homelab/jarvis/internal/tooling"
)

// MaxIterations is the hard cap on tool-call rounds per response,
// preventing tool-calling oscillation (spec.md §4.8).
const MaxIterations = 10

// Callbacks mirrors llm.Callbacks plus the loop-level confirmation and
// blocked-tool events that a provider alone cannot produce.
type Callbacks struct {
	OnTextDelta          func(text string)
	OnToolUse            func(name string, args map[string]any, id string, tier models.Tier)
	OnToolResult         func(id string, result string, isError bool)
	OnConfirmationNeeded func(pending *models.PendingConfirmation)
	OnBlocked            func(name string, reason string, tier models.Tier)
	OnDone               func(usage llm.Usage)
	OnError              func(err error)
}

// Loop drives one provider through the tool-interception state
// machine. It holds no session-specific state between calls: all
// per-run state lives in Run's local variables, and PendingConfirmations live in a
// shared, mutex-guarded map so the multiplexer can resolve them from a
// different goroutine than the one that created them.
type Loop struct {
	executor *tooling.Executor
	registry *tooling.Registry
	policy   *safety.Policy
	tracer   *observability.Tracer

	mu      sync.Mutex
	pending map[string]*pendingState
}

// pendingState is the internal half of a PendingConfirmation: the
// exported struct is what crosses the wire to the operator; this
// holds what's needed to actually resume.
type pendingState struct {
	public   *models.PendingConfirmation
	provider llm.Provider
}

// NewLoop constructs a Loop. tracer may be nil, in which case spans are
// simply not opened (the loop runs identically either way).
func NewLoop(registry *tooling.Registry, executor *tooling.Executor, policy *safety.Policy, tracer *observability.Tracer) *Loop {
	return &Loop{
		executor: executor,
		registry: registry,
		policy:   policy,
		tracer:   tracer,
		pending:  make(map[string]*pendingState),
	}
}

// RunConfig is the per-invocation input to Run.
type RunConfig struct {
	Provider     llm.Provider
	Messages     []llm.Message
	SystemPrompt string
	Tools        []llm.ToolDef
	SessionID    string
	SafetyCtx    safety.Context
	Source       models.Source
}

// Run drives the loop to completion, to a blocking tool-confirmation
// point, or to the iteration cap. It returns nil once cb.OnDone or
// cb.OnConfirmationNeeded has fired — both are terminal for this call.
func (l *Loop) Run(ctx context.Context, cfg RunConfig, cb Callbacks) error {
	messages := append([]llm.Message(nil), cfg.Messages...)

	for iteration := 0; iteration < MaxIterations; iteration++ {
		final := iteration == MaxIterations-1
		tools := cfg.Tools
		if final {
			// withhold tools on the last iteration to force a text
			// completion rather than another tool round.
			tools = nil
		}

		iterCtx := ctx
		var span trace.Span
		if l.tracer != nil {
			iterCtx, span = l.tracer.TraceAgentLoop(ctx, cfg.SessionID, iteration)
		}

		var toolCalls []toolUse
		var usage llm.Usage
		streamErr := cfg.Provider.Stream(iterCtx, messages, cfg.SystemPrompt, tools, llm.Callbacks{
			OnTextDelta: cb.OnTextDelta,
			OnToolUse: func(name string, args map[string]any, id string, _ models.Tier) {
				toolCalls = append(toolCalls, toolUse{ID: id, Name: name, Args: args})
			},
			OnDone: func(u llm.Usage) { usage = u },
			OnError: cb.OnError,
		})
		if span != nil {
			if streamErr != nil && l.tracer != nil {
				l.tracer.RecordError(span, streamErr)
			}
			span.End()
		}
		if streamErr != nil {
			return streamErr
		}

		if len(toolCalls) == 0 {
			if cb.OnDone != nil {
				cb.OnDone(usage)
			}
			return nil
		}

		messages = append(messages, llm.Message{Role: models.RoleAssistant, Content: ""})

		for _, tc := range toolCalls {
			decl, known := l.registry.Lookup(tc.Name)
			tier := models.TierBlack
			isSSHLike := false
			if known {
				tier = decl.Tier
				isSSHLike = decl.IsSSHLike
			}

			// Run the full safety policy: sanitization, the protected-
			// resource filter, then tier enforcement, before ever
			// considering a confirmation round-trip. A protected target
			// (e.g. the management VM) must block immediately regardless
			// of tier; it must never reach the operator as a RED/ORANGE
			// confirmation prompt (spec.md section 8 scenario 3).
			decision := l.policy.Evaluate(tier, isSSHLike, tc.Args, cfg.SafetyCtx)
			if !decision.Allowed && !decision.RequiresConfirmation {
				if cb.OnBlocked != nil {
					cb.OnBlocked(tc.Name, decision.Reason, tier)
				}
				messages = append(messages, llm.Message{
					Role: models.RoleTool, Content: "BLOCKED: " + decision.Reason, ToolUseID: tc.ID, IsError: true,
				})
				continue
			}

			if decision.RequiresConfirmation && !cfg.SafetyCtx.Confirmed {
				pending := &models.PendingConfirmation{
					ID:         uuid.NewString(),
					SessionID:  cfg.SessionID,
					ToolUseID:  tc.ID,
					ToolName:   tc.Name,
					Args:       tc.Args,
					Tier:       tier,
					ProviderID: cfg.Provider.Name(),
					CreatedAt:  time.Now(),
				}
				l.mu.Lock()
				l.pending[pending.ID] = &pendingState{public: pending, provider: cfg.Provider}
				l.mu.Unlock()

				if cb.OnConfirmationNeeded != nil {
					cb.OnConfirmationNeeded(pending)
				}
				return nil
			}

			if cb.OnToolUse != nil {
				cb.OnToolUse(tc.Name, tc.Args, tc.ID, tier)
			}
			result, err := l.executor.Execute(iterCtx, tc.Name, tc.Args, cfg.Source, cfg.SafetyCtx)
			var content string
			var isErr bool
			if err != nil {
				content = err.Error()
				isErr = true
			} else {
				content = result.Content
				isErr = result.IsError
			}
			if cb.OnToolResult != nil {
				cb.OnToolResult(tc.ID, content, isErr)
			}
			messages = append(messages, llm.Message{Role: models.RoleTool, Content: content, ToolUseID: tc.ID, IsError: isErr})
		}
	}

	return fmt.Errorf("agent: reached max iterations (%d)", MaxIterations)
}

type toolUse struct {
	ID   string
	Name string
	Args map[string]any
}

// Pending returns the public PendingConfirmation for id, or false.
func (l *Loop) Pending(id string) (*models.PendingConfirmation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ps, ok := l.pending[id]
	if !ok {
		return nil, false
	}
	return ps.public, true
}

// ResumeAfterConfirmation resolves exactly once (invariant I5): it
// rebuilds the conversation from cfg.Messages supplied by the caller
// (the pending state keeps only the tool call and its provider, not the
// messages of the interrupted run), appends an empty assistant turn and
// a synthetic tool_result reflecting the operator's decision, executes
// the tool if confirmed, and re-enters the loop via Run.
func (l *Loop) ResumeAfterConfirmation(ctx context.Context, id string, confirmed bool, cfg RunConfig, cb Callbacks) error {
	l.mu.Lock()
	ps, ok := l.pending[id]
	if ok {
		delete(l.pending, id)
	}
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent: pending confirmation %s not found or already resolved", id)
	}

	pub := ps.public
	messages := append([]llm.Message(nil), cfg.Messages...)
	messages = append(messages, llm.Message{Role: models.RoleAssistant, Content: ""})

	if !confirmed {
		messages = append(messages, llm.Message{
			Role: models.RoleTool, Content: "the operator declined this action", ToolUseID: pub.ToolUseID, IsError: true,
		})
		return l.Run(ctx, RunConfig{
			Provider: ps.provider, Messages: messages, SystemPrompt: cfg.SystemPrompt, Tools: cfg.Tools,
			SessionID: cfg.SessionID, SafetyCtx: cfg.SafetyCtx, Source: cfg.Source,
		}, cb)
	}

	confirmedCtx := cfg.SafetyCtx
	confirmedCtx.Confirmed = true
	if cb.OnToolUse != nil {
		cb.OnToolUse(pub.ToolName, pub.Args, pub.ToolUseID, pub.Tier)
	}
	result, err := l.executor.Execute(ctx, pub.ToolName, pub.Args, cfg.Source, confirmedCtx)
	var content string
	var isErr bool
	if err != nil {
		content, isErr = err.Error(), true
	} else {
		content, isErr = result.Content, result.IsError
	}
	if cb.OnToolResult != nil {
		cb.OnToolResult(pub.ToolUseID, content, isErr)
	}
	messages = append(messages, llm.Message{Role: models.RoleTool, Content: content, ToolUseID: pub.ToolUseID, IsError: isErr})

	return l.Run(ctx, RunConfig{
		Provider: ps.provider, Messages: messages, SystemPrompt: cfg.SystemPrompt, Tools: cfg.Tools,
		SessionID: cfg.SessionID, SafetyCtx: confirmedCtx, Source: cfg.Source,
	}, cb)
}

// DiscardSession removes every pending confirmation belonging to a
// session, called on socket disconnect so none is ever executed late
// (invariant I5's "or discarded on session end" clause).
func (l *Loop) DiscardSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, ps := range l.pending {
		if ps.public.SessionID == sessionID {
			delete(l.pending, id)
		}
	}
}
