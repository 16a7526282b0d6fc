package agent

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/jarvis-homelab/jarvis/internal/llm"
	"github.com/jarvis-homelab/jarvis/internal/models"
	"github.com/jarvis-homelab/jarvis/internal/safety"
	"github.com/jarvis-homelab/jarvis/internal/tooling"
)

// stubProvider lets a test script a sequence of Stream behaviors by call index.
type stubProvider struct {
	calls int32
	steps []func(cb llm.Callbacks)
}

func (p *stubProvider) Name() string { return "stub" }
func (p *stubProvider) Kind() llm.Kind { return llm.KindAgentic }

func (p *stubProvider) Stream(ctx context.Context, messages []llm.Message, systemPrompt string, tools []llm.ToolDef, cb llm.Callbacks) error {
	i := int(atomic.AddInt32(&p.calls, 1)) - 1
	if i >= len(p.steps) {
		if cb.OnDone != nil {
			cb.OnDone(llm.Usage{})
		}
		return nil
	}
	p.steps[i](cb)
	if cb.OnDone != nil {
		cb.OnDone(llm.Usage{})
	}
	return nil
}

func newTestLoop(t *testing.T, tier models.Tier) (*Loop, *tooling.Registry) {
	t.Helper()
	reg := tooling.NewRegistry()
	err := tooling.Register(reg, tooling.Declaration{
		Name: "restart_vm", Tier: tier,
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "ok", nil },
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	policy := safety.NewPolicy(models.ProtectedResource{}, "confirm")
	executor := tooling.NewExecutor(reg, policy, nil, nil)
	return NewLoop(reg, executor, policy, nil), reg
}

func TestLoop_GreenToolRunsWithoutConfirmation(t *testing.T) {
	loop, _ := newTestLoop(t, models.TierGreen)
	provider := &stubProvider{steps: []func(llm.Callbacks){
		func(cb llm.Callbacks) { cb.OnToolUse("restart_vm", map[string]any{"vmid": 100}, "t1", "") },
		func(cb llm.Callbacks) { cb.OnTextDelta("done") },
	}}

	var toolResult string
	done := false
	err := loop.Run(context.Background(), RunConfig{
		Provider: provider, Source: models.SourceLLM,
	}, Callbacks{
		OnToolResult: func(id, result string, isError bool) { toolResult = result },
		OnDone:       func(llm.Usage) { done = true },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !done {
		t.Fatalf("expected OnDone to fire")
	}
	if toolResult != "ok" {
		t.Fatalf("expected tool result %q, got %q", "ok", toolResult)
	}
}

func TestLoop_RedToolRequiresConfirmation(t *testing.T) {
	loop, _ := newTestLoop(t, models.TierRed)
	provider := &stubProvider{steps: []func(llm.Callbacks){
		func(cb llm.Callbacks) { cb.OnToolUse("restart_vm", map[string]any{"vmid": 100}, "t1", "") },
	}}

	var pending *models.PendingConfirmation
	err := loop.Run(context.Background(), RunConfig{
		Provider: provider, SessionID: "s1", Source: models.SourceLLM,
	}, Callbacks{
		OnConfirmationNeeded: func(p *models.PendingConfirmation) { pending = p },
		OnToolResult:         func(string, string, bool) { t.Fatalf("tool must not execute before confirmation") },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pending == nil {
		t.Fatalf("expected a pending confirmation")
	}
	if pending.ToolName != "restart_vm" || pending.Tier != models.TierRed {
		t.Fatalf("unexpected pending confirmation: %+v", pending)
	}

	if _, ok := loop.Pending(pending.ID); !ok {
		t.Fatalf("expected pending confirmation to be retrievable")
	}

	var resolvedContent string
	err = loop.ResumeAfterConfirmation(context.Background(), pending.ID, true, RunConfig{
		Provider: provider, SessionID: "s1", Source: models.SourceLLM,
	}, Callbacks{
		OnToolResult: func(id, result string, isError bool) { resolvedContent = result },
	})
	if err != nil {
		t.Fatalf("ResumeAfterConfirmation: %v", err)
	}
	if resolvedContent != "ok" {
		t.Fatalf("expected resumed tool result %q, got %q", "ok", resolvedContent)
	}

	// invariant I5: a PendingConfirmation is resolved exactly once.
	if err := loop.ResumeAfterConfirmation(context.Background(), pending.ID, true, RunConfig{Provider: provider}, Callbacks{}); err == nil {
		t.Fatalf("expected error resolving an already-resolved confirmation")
	}
}

// TestLoop_ProtectedResourceBlocksBeforeConfirmation covers spec.md's
// §8 scenario 3: a RED-tier tool targeting a protected resource must be
// blocked immediately, never packaged as a pending confirmation.
func TestLoop_ProtectedResourceBlocksBeforeConfirmation(t *testing.T) {
	reg := tooling.NewRegistry()
	err := tooling.Register(reg, tooling.Declaration{
		Name: "stop_vm", Tier: models.TierRed,
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "ok", nil },
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	policy := safety.NewPolicy(models.ProtectedResource{VMIDs: map[int]struct{}{103: {}}}, "confirm")
	executor := tooling.NewExecutor(reg, policy, nil, nil)
	loop := NewLoop(reg, executor, policy, nil)

	provider := &stubProvider{steps: []func(llm.Callbacks){
		func(cb llm.Callbacks) { cb.OnToolUse("stop_vm", map[string]any{"vmid": 103}, "t1", "") },
	}}

	var blockedReason string
	err = loop.Run(context.Background(), RunConfig{Provider: provider, SessionID: "s1", Source: models.SourceLLM}, Callbacks{
		OnBlocked: func(name, reason string, tier models.Tier) { blockedReason = reason },
		OnConfirmationNeeded: func(*models.PendingConfirmation) {
			t.Fatalf("a protected resource must never reach confirmation")
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if blockedReason == "" {
		t.Fatalf("expected an immediate blocked reason")
	}
}

func TestLoop_BlackToolIsAlwaysDenied(t *testing.T) {
	loop, _ := newTestLoop(t, models.TierBlack)
	provider := &stubProvider{steps: []func(llm.Callbacks){
		func(cb llm.Callbacks) { cb.OnToolUse("restart_vm", map[string]any{}, "t1", "") },
	}}

	var blockedReason string
	err := loop.Run(context.Background(), RunConfig{Provider: provider}, Callbacks{
		OnBlocked: func(name, reason string, tier models.Tier) { blockedReason = reason },
		OnConfirmationNeeded: func(*models.PendingConfirmation) {
			t.Fatalf("BLACK tools must never reach confirmation")
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if blockedReason == "" {
		t.Fatalf("expected a blocked reason")
	}
}

func TestLoop_UnknownToolDefaultsToBlack(t *testing.T) {
	loop, _ := newTestLoop(t, models.TierGreen)
	provider := &stubProvider{steps: []func(llm.Callbacks){
		func(cb llm.Callbacks) { cb.OnToolUse("nonexistent_tool", map[string]any{}, "t1", "") },
	}}

	blocked := false
	err := loop.Run(context.Background(), RunConfig{Provider: provider}, Callbacks{
		OnBlocked: func(string, string, models.Tier) { blocked = true },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !blocked {
		t.Fatalf("expected unregistered tool to default to BLACK")
	}
}

func TestLoop_MaxIterationsWithholdsToolsOnFinalRound(t *testing.T) {
	loop, _ := newTestLoop(t, models.TierGreen)

	var steps []func(llm.Callbacks)
	for i := 0; i < MaxIterations-1; i++ {
		steps = append(steps, func(cb llm.Callbacks) { cb.OnToolUse("restart_vm", map[string]any{}, "t1", "") })
	}
	var toolsOnFinalCall []llm.ToolDef
	provider := &countingToolsProvider{
		record: func(tools []llm.ToolDef) { toolsOnFinalCall = tools },
		n:      len(steps),
	}

	err := loop.Run(context.Background(), RunConfig{
		Provider: provider,
		Tools:    []llm.ToolDef{{Name: "restart_vm"}},
	}, Callbacks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if toolsOnFinalCall != nil {
		t.Fatalf("expected tools to be withheld on the final iteration, got %v", toolsOnFinalCall)
	}
}

// countingToolsProvider always returns a tool-use until the final call,
// recording the tools slice it was invoked with each time.
type countingToolsProvider struct {
	calls  int32
	n      int
	record func(tools []llm.ToolDef)
}

func (p *countingToolsProvider) Name() string   { return "counting" }
func (p *countingToolsProvider) Kind() llm.Kind { return llm.KindAgentic }

func (p *countingToolsProvider) Stream(ctx context.Context, messages []llm.Message, systemPrompt string, tools []llm.ToolDef, cb llm.Callbacks) error {
	i := int(atomic.AddInt32(&p.calls, 1)) - 1
	p.record(tools)
	if i < p.n {
		cb.OnToolUse("restart_vm", map[string]any{}, "t1", "")
	} else if cb.OnTextDelta != nil {
		cb.OnTextDelta("final answer")
	}
	if cb.OnDone != nil {
		cb.OnDone(llm.Usage{})
	}
	return nil
}
