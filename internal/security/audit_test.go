package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jarvis-homelab/jarvis/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		JWTSecret: "0123456789abcdef0123456789abcdef",
		DBPath:    "/nonexistent/jarvis.db",
	}
}

func TestRun_FlagsWorldReadableSSHKey(t *testing.T) {
	tmpDir := t.TempDir()
	keyPath := filepath.Join(tmpDir, "id_ed25519")
	if err := os.WriteFile(keyPath, []byte("fake key material"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := baseConfig()
	cfg.SSHKeyPath = keyPath

	report := Run(cfg)

	found := false
	for _, f := range report.Findings {
		if f.CheckID == "fs.world_readable" {
			found = true
			if f.Severity != SeverityCritical {
				t.Errorf("expected critical severity, got %s", f.Severity)
			}
		}
	}
	if !found {
		t.Error("expected a world_readable finding for the SSH key")
	}
}

func TestRun_SecureKeyPermsProduceNoFilesystemFindings(t *testing.T) {
	tmpDir := t.TempDir()
	keyPath := filepath.Join(tmpDir, "id_ed25519")
	if err := os.WriteFile(keyPath, []byte("fake key material"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := baseConfig()
	cfg.SSHKeyPath = keyPath

	report := Run(cfg)
	for _, f := range report.Findings {
		if f.CheckID == "fs.world_readable" || f.CheckID == "fs.world_writable" || f.CheckID == "fs.group_readable" {
			t.Errorf("unexpected finding on a 0600 file: %+v", f)
		}
	}
}

func TestRun_MissingFileProducesNoFindings(t *testing.T) {
	cfg := baseConfig()
	cfg.SSHKeyPath = "/nonexistent/path/id_ed25519"

	report := Run(cfg)
	for _, f := range report.Findings {
		if f.CheckID == "fs.world_readable" {
			t.Errorf("did not expect a filesystem finding for a missing path: %+v", f)
		}
	}
}

func TestRun_FlagsWeakJWTSecret(t *testing.T) {
	cfg := baseConfig()
	cfg.JWTSecret = "short"

	report := Run(cfg)

	found := false
	for _, f := range report.Findings {
		if f.CheckID == "config.weak_jwt_secret" {
			found = true
		}
	}
	if !found {
		t.Error("expected a weak JWT secret finding")
	}
}

func TestRun_FlagsDisabledTLSVerification(t *testing.T) {
	cfg := baseConfig()
	cfg.TLSInsecureSkipVerify = true

	report := Run(cfg)

	found := false
	for _, f := range report.Findings {
		if f.CheckID == "config.tls_verification_disabled" {
			found = true
		}
	}
	if !found {
		t.Error("expected a TLS verification disabled finding")
	}
}

func TestRun_HasCritical(t *testing.T) {
	tmpDir := t.TempDir()
	keyPath := filepath.Join(tmpDir, "id_ed25519")
	if err := os.WriteFile(keyPath, []byte("fake key material"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := baseConfig()
	cfg.SSHKeyPath = keyPath

	report := Run(cfg)
	if !report.HasCritical() {
		t.Error("expected HasCritical() to be true for a world-readable SSH key")
	}
}
