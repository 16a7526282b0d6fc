package api

import (
	"encoding/json"
	"net/http"

	"github.com/jarvis-homelab/jarvis/internal/models"
	"github.com/jarvis-homelab/jarvis/internal/safety"
)

type toolListing struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Tier        models.Tier  `json:"tier"`
}

// handleListTools serves GET /api/tools — the tier-annotated catalog the
// dashboard renders, stripped of each Declaration's Handler closure.
func (d Deps) handleListTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d.Registry == nil {
		writeJSON(w, http.StatusOK, []toolListing{})
		return
	}
	decls := d.Registry.List()
	out := make([]toolListing, 0, len(decls))
	for _, decl := range decls {
		out = append(out, toolListing{Name: decl.Name, Description: decl.Description, Tier: decl.Tier})
	}
	writeJSON(w, http.StatusOK, out)
}

type executeToolRequest struct {
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Confirmed bool           `json:"confirmed"`
}

type executeToolResponse struct {
	Content string `json:"content"`
	IsError bool   `json:"isError"`
}

type confirmationRequiredResponse struct {
	Error                string      `json:"error"`
	RequiresConfirmation bool        `json:"requiresConfirmation"`
	Tier                 models.Tier `json:"tier"`
	Reason               string      `json:"reason"`
}

// handleExecuteTool serves POST /api/tools/execute, running the same
// Executor pipeline a chat-initiated tool call uses with source "api"
// (spec.md §6). RED/ORANGE tools without confirmed:true come back as a
// 409 with the confirmation shape instead of running.
func (d Deps) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, "tool executor not configured")
		return
	}

	var req executeToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Tool == "" {
		writeError(w, http.StatusBadRequest, "tool name required")
		return
	}

	safetyCtx := safety.Context{Confirmed: req.Confirmed}
	result, err := d.Executor.Execute(r.Context(), req.Tool, req.Args, models.SourceAPI, safetyCtx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.IsError && !req.Confirmed {
		if tier := d.Registry.TierOf(req.Tool); tier == models.TierRed || tier == models.TierOrange {
			writeJSON(w, http.StatusConflict, confirmationRequiredResponse{
				Error:                result.Content,
				RequiresConfirmation: true,
				Tier:                 tier,
				Reason:               result.Content,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, executeToolResponse{Content: result.Content, IsError: result.IsError})
}
