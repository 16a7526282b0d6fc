package tooling

import "github.com/jarvis-homelab/jarvis/internal/llm"

// ToolDefs projects the registry into the provider-facing shape: no
// handler, no tier (tier enforcement happens in the loop and executor,
// never at the provider boundary).
func (r *Registry) ToolDefs() []llm.ToolDef {
	decls := r.List()
	out := make([]llm.ToolDef, 0, len(decls))
	for _, d := range decls {
		out = append(out, llm.ToolDef{Name: d.Name, Description: d.Description, Schema: d.Schema})
	}
	return out
}
