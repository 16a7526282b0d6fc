package tooling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/jarvis-homelab/jarvis/internal/models"
	"github.com/jarvis-homelab/jarvis/internal/observability"
	"github.com/jarvis-homelab/jarvis/internal/safety"
)

// DefaultTimeout is the per-tool execution deadline applied unless a
// declaration overrides it (spec.md §5: tool handler default 30s).
const DefaultTimeout = 30 * time.Second

// EventSink persists "action blocked" / "action executed" events and the
// immutable ToolInvocation audit record (C4's event + invocation surface).
type EventSink interface {
	RecordInvocation(ctx context.Context, inv models.ToolInvocation, decision models.SafetyDecision) error
}

// Result is the provider-facing shape of a tool's outcome.
type Result struct {
	Content string
	IsError bool
}

// Executor is the single execution entry point for C2: lookup tier,
// sanitize, evaluate safety, run the handler under a deadline, persist
// the audit trail, and return a provider-shaped result. Handlers
// themselves are pure with respect to Executor — they never log or
// persist.
type Executor struct {
	registry *Registry
	policy   *safety.Policy
	sink     EventSink
	tracer   *observability.Tracer
}

// NewExecutor wires a registry, safety policy, and persistence sink.
// tracer may be nil, in which case Execute simply opens no spans.
func NewExecutor(registry *Registry, policy *safety.Policy, sink EventSink, tracer *observability.Tracer) *Executor {
	return &Executor{registry: registry, policy: policy, sink: sink, tracer: tracer}
}

// Execute runs the named tool with args, on behalf of source, honoring
// safetyCtx (override key / approval keyword / confirmed flag state for
// the originating turn).
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, source models.Source, safetyCtx safety.Context) (*Result, error) {
	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.TraceToolExecution(ctx, name)
		defer span.End()
	}

	decl, known := e.registry.Lookup(name)
	tier := models.TierBlack
	isSSHLike := false
	if known {
		tier = decl.Tier
		isSSHLike = decl.IsSSHLike
	}

	inv := models.ToolInvocation{
		ID:        uuid.NewString(),
		Name:      name,
		Args:      args,
		Source:    source,
		Tier:      tier,
		StartedAt: time.Now(),
	}

	decision := e.policy.Evaluate(tier, isSSHLike, args, safetyCtx)
	if !decision.Allowed {
		inv.EndedAt = time.Now()
		inv.OK = false
		inv.ErrorKind = models.ErrSafetyDenied
		inv.DurationMs = inv.EndedAt.Sub(inv.StartedAt).Milliseconds()
		e.persist(ctx, inv, decision)
		if span != nil {
			e.tracer.RecordError(span, fmt.Errorf("safety denied: %s", decision.Reason))
		}
		return &Result{Content: denialMessage(name, decision), IsError: true}, nil
	}

	if !known {
		// Should be unreachable: unknown tools are forced to BLACK by
		// Evaluate above. Kept as a defensive fail-safe.
		inv.EndedAt = time.Now()
		inv.OK = false
		inv.ErrorKind = models.ErrNotFound
		e.persist(ctx, inv, decision)
		if span != nil {
			e.tracer.RecordError(span, fmt.Errorf("tool not found: %s", name))
		}
		return &Result{Content: "tool not found: " + name, IsError: true}, nil
	}

	if err := decl.Validate(args); err != nil {
		inv.EndedAt = time.Now()
		inv.OK = false
		inv.ErrorKind = models.ErrInvalidArgument
		inv.DurationMs = inv.EndedAt.Sub(inv.StartedAt).Milliseconds()
		e.persist(ctx, inv, decision)
		if span != nil {
			e.tracer.RecordError(span, err)
		}
		return &Result{Content: fmt.Sprintf("invalid arguments for %s: %v", name, err), IsError: true}, nil
	}

	timeout := DefaultTimeout
	if decl.Timeout > 0 {
		timeout = decl.Timeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := decl.Handler(hctx, args)
	inv.EndedAt = time.Now()
	inv.DurationMs = inv.EndedAt.Sub(inv.StartedAt).Milliseconds()

	if err != nil {
		inv.OK = false
		if span != nil {
			e.tracer.RecordError(span, err)
		}
		if hctx.Err() != nil {
			inv.ErrorKind = models.ErrTimeout
			e.persist(ctx, inv, decision)
			return &Result{Content: fmt.Sprintf("%s did not respond within %ds", name, int(timeout.Seconds())), IsError: true}, nil
		}
		inv.ErrorKind = models.ErrInternal
		e.persist(ctx, inv, decision)
		return &Result{Content: err.Error(), IsError: true}, nil
	}

	inv.OK = true
	e.persist(ctx, inv, decision)
	return &Result{Content: text}, nil
}

func (e *Executor) persist(ctx context.Context, inv models.ToolInvocation, decision models.SafetyDecision) {
	if e.sink == nil {
		return
	}
	// Best-effort: persistence failures never block the pipeline (§7).
	_ = e.sink.RecordInvocation(ctx, inv, decision)
}

func denialMessage(name string, d models.SafetyDecision) string {
	if d.RequiresConfirmation {
		return fmt.Sprintf("%s requires operator confirmation: %s", name, d.Reason)
	}
	return fmt.Sprintf("%s was blocked: %s", name, d.Reason)
}
