package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/auth"
	"github.com/jarvis-homelab/jarvis/internal/models"
	"github.com/jarvis-homelab/jarvis/internal/safety"
	"github.com/jarvis-homelab/jarvis/internal/storage"
	"github.com/jarvis-homelab/jarvis/internal/tooling"
)

func TestHandleLogin_SucceedsAndIssuesToken(t *testing.T) {
	svc := auth.NewService("0123456789abcdef0123456789abcdef", "hunter2", time.Hour)
	deps := Deps{Auth: svc}

	body, _ := json.Marshal(loginRequest{Password: "hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	deps.handleLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" {
		t.Error("expected a non-empty token")
	}
}

func TestHandleLogin_RejectsWrongPassword(t *testing.T) {
	svc := auth.NewService("0123456789abcdef0123456789abcdef", "hunter2", time.Hour)
	deps := Deps{Auth: svc}

	body, _ := json.Marshal(loginRequest{Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	deps.handleLogin(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandlePreferences_RoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	deps := Deps{Store: store}

	putReq := httptest.NewRequest(http.MethodPut, "/api/memory/preferences/wake_word",
		bytes.NewReader(mustJSON(setPreferenceRequest{Value: "jarvis"})))
	putRec := httptest.NewRecorder()
	deps.handlePreferenceByKey(putRec, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("PUT expected 200, got %d: %s", putRec.Code, putRec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/memory/preferences?key=wake_word", nil)
	getRec := httptest.NewRecorder()
	deps.handlePreferences(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("GET expected 200, got %d: %s", getRec.Code, getRec.Body.String())
	}
	var got map[string]string
	if err := json.Unmarshal(getRec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["value"] != "jarvis" {
		t.Errorf("expected value %q, got %q", "jarvis", got["value"])
	}
}

func TestHandleListTools_ReturnsTiersWithoutHandlers(t *testing.T) {
	registry := tooling.NewRegistry()
	if err := tooling.Register(registry, tooling.Declaration{
		Name: "service_restart", Tier: models.TierOrange,
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "", nil },
	}); err != nil {
		t.Fatal(err)
	}
	deps := Deps{Registry: registry}

	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	rec := httptest.NewRecorder()
	deps.handleListTools(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out []toolListing
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Tier != models.TierOrange {
		t.Errorf("unexpected tool listing: %+v", out)
	}
}

func TestHandleExecuteTool_RedWithoutConfirmationReturnsConflict(t *testing.T) {
	registry := tooling.NewRegistry()
	if err := tooling.Register(registry, tooling.Declaration{
		Name: "vm_stop", Tier: models.TierRed,
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "stopped", nil },
	}); err != nil {
		t.Fatal(err)
	}
	policy := safety.NewPolicy(models.ProtectedResource{}, "confirmed")
	executor := tooling.NewExecutor(registry, policy, nil, nil)
	deps := Deps{Registry: registry, Executor: executor}

	body, _ := json.Marshal(executeToolRequest{Tool: "vm_stop", Args: map[string]any{}})
	req := httptest.NewRequest(http.MethodPost, "/api/tools/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	deps.handleExecuteTool(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
