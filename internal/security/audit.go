// Package security provides a startup security posture audit: filesystem
// permission checks on sensitive files and configuration sanity checks.
// Narrowed from the teacher's internal/security (which also audited
// channel-platform policies and an edge daemon's auth mode) down to
// JARVIS's own surface: the SSH private key, the SQLite database file,
// and the handful of secrets in Config.
package security

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/config"
)

// Severity is the level of a single audit finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Finding is a single security audit result.
type Finding struct {
	CheckID     string   `json:"check_id"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Detail      string   `json:"detail"`
	Remediation string   `json:"remediation,omitempty"`
}

// Summary counts findings by severity.
type Summary struct {
	Critical int `json:"critical"`
	Warn     int `json:"warn"`
	Info     int `json:"info"`
}

// Report is the full result of one audit run.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Summary   Summary   `json:"summary"`
	Findings  []Finding `json:"findings"`
}

// HasCritical reports whether any finding is critical severity. The
// doctor subcommand (cmd/jarvis/doctor.go) uses this for its result.
func (r *Report) HasCritical() bool {
	return r.Summary.Critical > 0
}

const (
	worldReadable fs.FileMode = 0004
	worldWritable fs.FileMode = 0002
	groupReadable fs.FileMode = 0040
	groupWritable fs.FileMode = 0020
)

func isWorldWritable(mode fs.FileMode) bool { return mode&worldWritable != 0 }
func isWorldReadable(mode fs.FileMode) bool { return mode&worldReadable != 0 }
func isGroupWritable(mode fs.FileMode) bool { return mode&groupWritable != 0 }
func isGroupReadable(mode fs.FileMode) bool { return mode&groupReadable != 0 }

// Run performs a full audit of cfg's file and secret surface.
func Run(cfg *config.Config) *Report {
	report := &Report{Timestamp: time.Now()}

	report.Findings = append(report.Findings, auditSensitiveFile(cfg.SSHKeyPath, "SSH private key")...)
	report.Findings = append(report.Findings, auditSensitiveFile(cfg.DBPath, "SQLite database")...)
	report.Findings = append(report.Findings, auditSecrets(cfg)...)
	report.Findings = append(report.Findings, auditTLS(cfg)...)

	report.Summary = summarize(report.Findings)
	return report
}

func summarize(findings []Finding) Summary {
	var s Summary
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityWarn:
			s.Warn++
		case SeverityInfo:
			s.Info++
		}
	}
	return s
}

// auditSensitiveFile flags world- or group-readable/writable permissions
// on a file that is expected to hold private key material or other data
// no other local user should be able to touch.
func auditSensitiveFile(path, description string) []Finding {
	if path == "" {
		return nil
	}
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []Finding{{
			CheckID:  "fs.stat_error",
			Severity: SeverityWarn,
			Title:    fmt.Sprintf("Could not stat %s", description),
			Detail:   fmt.Sprintf("%s at %s: %v", description, path, err),
		}}
	}

	var findings []Finding
	mode := info.Mode().Perm()

	if isWorldWritable(mode) {
		findings = append(findings, Finding{
			CheckID:     "fs.world_writable",
			Severity:    SeverityCritical,
			Title:       fmt.Sprintf("%s is world-writable", description),
			Detail:      fmt.Sprintf("%s has permissions %o, allowing any local user to modify it.", path, mode),
			Remediation: fmt.Sprintf("Run: chmod 600 %s", path),
		})
	}
	if isWorldReadable(mode) {
		findings = append(findings, Finding{
			CheckID:     "fs.world_readable",
			Severity:    SeverityCritical,
			Title:       fmt.Sprintf("%s is world-readable", description),
			Detail:      fmt.Sprintf("%s has permissions %o, exposing it to any local user.", path, mode),
			Remediation: fmt.Sprintf("Run: chmod 600 %s", path),
		})
	}
	if isGroupWritable(mode) {
		findings = append(findings, Finding{
			CheckID:     "fs.group_writable",
			Severity:    SeverityWarn,
			Title:       fmt.Sprintf("%s is group-writable", description),
			Detail:      fmt.Sprintf("%s has permissions %o.", path, mode),
			Remediation: fmt.Sprintf("Run: chmod 600 %s", path),
		})
	}
	if isGroupReadable(mode) {
		findings = append(findings, Finding{
			CheckID:     "fs.group_readable",
			Severity:    SeverityInfo,
			Title:       fmt.Sprintf("%s is group-readable", description),
			Detail:      fmt.Sprintf("%s has permissions %o.", path, mode),
			Remediation: fmt.Sprintf("Run: chmod 600 %s", path),
		})
	}

	if info.Mode()&os.ModeSymlink != 0 {
		findings = append(findings, Finding{
			CheckID:     "fs.symlink",
			Severity:    SeverityWarn,
			Title:       fmt.Sprintf("%s is a symlink", description),
			Detail:      fmt.Sprintf("%s at %s is a symbolic link and may cross a trust boundary.", description, path),
			Remediation: "Replace the symlink with a real file.",
		})
	}

	return findings
}

// auditSecrets flags missing or weak shared secrets. JWT_SECRET and
// JARVIS_PASSWORD are required at config load time already; this catches
// the case where they're set but too short to resist brute force.
func auditSecrets(cfg *config.Config) []Finding {
	var findings []Finding

	if len(cfg.JWTSecret) < 32 {
		findings = append(findings, Finding{
			CheckID:     "config.weak_jwt_secret",
			Severity:    SeverityWarn,
			Title:       "JWT_SECRET is shorter than recommended",
			Detail:      fmt.Sprintf("JWT_SECRET is %d bytes; 32+ random bytes are recommended for HS256.", len(cfg.JWTSecret)),
			Remediation: "Generate a longer secret, e.g. openssl rand -hex 32.",
		})
	}

	if cfg.PVETokenSecret == "" {
		findings = append(findings, Finding{
			CheckID:  "config.pve_token_secret_unset",
			Severity: SeverityInfo,
			Title:    "PVE_TOKEN_SECRET is not set",
			Detail:   "Proxmox API calls will fail until a token secret is configured.",
		})
	}

	return findings
}

// auditTLS flags TLS verification disabled outside of what a private-LAN
// deployment tolerates. Proxmox nodes commonly serve self-signed certs, so
// this is informational rather than a hard failure.
func auditTLS(cfg *config.Config) []Finding {
	if !cfg.TLSInsecureSkipVerify {
		return nil
	}
	return []Finding{{
		CheckID:     "config.tls_verification_disabled",
		Severity:    SeverityInfo,
		Title:       "TLS certificate verification is disabled",
		Detail:      "NODE_TLS_REJECT_UNAUTHORIZED=0 accepts self-signed Proxmox certificates without verification. Acceptable on an isolated LAN, risky otherwise.",
		Remediation: "Import the cluster's CA certificate and remove NODE_TLS_REJECT_UNAUTHORIZED=0.",
	}}
}
