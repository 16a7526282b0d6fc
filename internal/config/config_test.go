package config

import "testing"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("JARVIS_PASSWORD", "hunter2")
}

func TestLoad_RejectsMissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JARVIS_PASSWORD", "hunter2")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing JWT_SECRET")
	}
}

func TestLoad_RejectsMissingPassword(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("JARVIS_PASSWORD", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing JARVIS_PASSWORD")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.AgenticProvider != "anthropic" {
		t.Errorf("expected default agentic provider anthropic, got %s", cfg.AgenticProvider)
	}
	if cfg.ConversationalProvider != "openai" {
		t.Errorf("expected default conversational provider openai, got %s", cfg.ConversationalProvider)
	}
	if cfg.TTSMaxParallel != 2 {
		t.Errorf("expected default TTS max parallel 2, got %d", cfg.TTSMaxParallel)
	}
}

func TestLoad_ParsesNodeHosts(t *testing.T) {
	setRequired(t)
	t.Setenv("NODE_HOSTS", "pve=10.0.0.10, PVE2 = 10.0.0.11")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NodeHosts["pve"] != "10.0.0.10" || cfg.NodeHosts["pve2"] != "10.0.0.11" {
		t.Errorf("unexpected node hosts: %+v", cfg.NodeHosts)
	}
}

func TestLoad_ParsesCORSOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("CORS_ORIGINS", "https://a.lan, https://b.lan")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("expected 2 origins, got %v", cfg.CORSOrigins)
	}
}
