// Package tooling implements the static tool registry and the single
// execution entry point used by both the agentic loop (C8) and the
// REST API (POST /api/tools/execute). Registration happens once at
// startup; descriptions handed to LLM providers are derived from the
// same declaration used by the executor, so tiers and descriptions
// cannot drift (spec.md §4.2).
package tooling

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Declaration is the static description of one tool, shared by the
// executor (which owns Handler) and any provider-facing tool list
// (which strips Handler and Tier before exposing Name/Description/Schema).
type Declaration struct {
	Name        string
	Description string
	Tier        models.Tier
	IsSSHLike   bool
	Schema      json.RawMessage
	Handler     models.ToolHandler
	// Timeout overrides the executor's DefaultTimeout for this tool
	// (spec.md §5: "per-tool; default 30s"). Zero means DefaultTimeout.
	Timeout time.Duration

	schema *jsonschema.Schema
}

// Registry is the immutable-after-startup tool catalog.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Declaration
}

// NewRegistry returns an empty registry. Call Register for each tool
// during startup; Lookup/List are safe to call concurrently once
// startup registration is complete.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Declaration)}
}

// Register compiles the tool's JSON schema and adds it to the catalog.
// Intended to be called only during startup.
func Register(r *Registry, decl Declaration) error {
	if len(decl.Schema) > 0 {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(decl.Name+".json", bytes.NewReader(decl.Schema)); err != nil {
			return err
		}
		sch, err := compiler.Compile(decl.Name + ".json")
		if err != nil {
			return err
		}
		decl.schema = sch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d := decl
	r.tools[d.Name] = &d
	return nil
}

// Lookup returns the declaration for name, or false if unregistered
// (callers must then treat the tool as tier BLACK, fail-safe).
func (r *Registry) Lookup(name string) (*Declaration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// List returns all registered declarations, for building provider-facing
// tool descriptions and the GET /api/tools listing.
func (r *Registry) List() []*Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Declaration, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}

// TierOf looks up a tool's tier, defaulting unknown tools to BLACK
// (fail-safe unknown-tool handling, spec.md §3).
func (r *Registry) TierOf(name string) models.Tier {
	d, ok := r.Lookup(name)
	if !ok {
		return models.TierBlack
	}
	return d.Tier
}

// Validate checks args against the compiled schema, if one was supplied.
func (d *Declaration) Validate(args map[string]any) error {
	if d.schema == nil {
		return nil
	}
	return d.schema.ValidateInterface(args)
}
