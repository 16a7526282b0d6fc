package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/storage"
)

// handleEvents serves GET /api/memory/events?limit=&type=&node=&since=.
func (d Deps) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		d.handleCreateEvent(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}

	filter := storage.EventFilter{
		Type: r.URL.Query().Get("type"),
		Node: r.URL.Query().Get("node"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = n
		}
	}
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		if t, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			filter.Since = t
		}
	}

	events, err := d.Store.GetEvents(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleUnresolvedEvents serves GET /api/memory/events/unresolved.
func (d Deps) handleUnresolvedEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}

	events, err := d.Store.GetEvents(r.Context(), storage.EventFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	unresolved := make([]storage.Event, 0, len(events))
	for _, ev := range events {
		if !ev.Resolved {
			unresolved = append(unresolved, ev)
		}
	}
	writeJSON(w, http.StatusOK, unresolved)
}

type createEventRequest struct {
	Type   string `json:"type"`
	Node   string `json:"node"`
	Detail string `json:"detail"`
}

func (d Deps) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ev := storage.Event{
		Type:      req.Type,
		Node:      req.Node,
		Detail:    req.Detail,
		CreatedAt: time.Now(),
	}
	if err := d.Store.SaveEvent(r.Context(), ev); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// handlePreferences serves GET /api/memory/preferences?key=, a
// single-key lookup; writes go through handlePreferenceByKey (PUT).
func (d Deps) handlePreferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key query parameter required")
		return
	}
	value, err := d.Store.GetPreference(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

type setPreferenceRequest struct {
	Value string `json:"value"`
}

// handlePreferenceByKey serves PUT /api/memory/preferences/:key.
func (d Deps) handlePreferenceByKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	key := r.URL.Path[len("/api/memory/preferences/"):]
	if key == "" {
		writeError(w, http.StatusBadRequest, "preference key required")
		return
	}
	var req setPreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := d.Store.SetPreference(r.Context(), key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

// handleCosts serves GET /api/costs?range= — the cost-ledger roll-up
// supplemented feature (§8), grounded on the teacher's usage-accounting shape.
func (d Deps) handleCosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if d.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	rangeName := r.URL.Query().Get("range")
	if rangeName == "" {
		rangeName = "day"
	}
	summary, err := d.Store.SummarizeCost(r.Context(), rangeName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
