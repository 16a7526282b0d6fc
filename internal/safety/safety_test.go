package safety

import (
	"strings"
	"testing"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

func protectedFixture() models.ProtectedResource {
	return models.ProtectedResource{
		Nodes:    map[string]struct{}{"pve1": {}},
		VMIDs:    map[int]struct{}{100: {}},
		Services: map[string]struct{}{"pve-cluster": {}},
		IPs:      map[string]struct{}{"10.0.0.10": {}},
	}
}

func TestEvaluate_GreenYellowAutoAllow(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")
	for _, tier := range []models.Tier{models.TierGreen, models.TierYellow} {
		d := p.Evaluate(tier, false, map[string]any{"node": "pve2"}, Context{})
		if !d.Allowed {
			t.Errorf("tier %v: want allowed, got denied: %s", tier, d.Reason)
		}
	}
}

func TestEvaluate_BlackAlwaysDenies(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")
	d := p.Evaluate(models.TierBlack, false, map[string]any{}, Context{Confirmed: true, OverrideActive: true})
	if d.Allowed {
		t.Fatal("BLACK tier must never be allowed, even with confirmation and override")
	}
}

func TestEvaluate_UnknownTierFailsSafeAsBlack(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")
	d := p.Evaluate(models.Tier("UNKNOWN"), false, map[string]any{}, Context{Confirmed: true})
	if d.Allowed || d.Tier != models.TierBlack {
		t.Fatalf("unknown tier must deny and report as BLACK, got allowed=%v tier=%v", d.Allowed, d.Tier)
	}
}

func TestEvaluate_RedRequiresConfirmation(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")

	d := p.Evaluate(models.TierRed, false, map[string]any{"node": "pve2"}, Context{})
	if d.Allowed || !d.RequiresConfirmation {
		t.Fatalf("RED without confirmation must require confirmation, got %+v", d)
	}

	d = p.Evaluate(models.TierRed, false, map[string]any{"node": "pve2"}, Context{Confirmed: true})
	if !d.Allowed {
		t.Fatalf("RED with Confirmed=true must be allowed, got %+v", d)
	}

	d = p.Evaluate(models.TierRed, false, map[string]any{"node": "pve2"}, Context{OverrideActive: true})
	if !d.Allowed {
		t.Fatalf("RED with an active override key must be allowed, got %+v", d)
	}
}

func TestEvaluate_OrangeRequiresApprovalKeywordThenConfirmation(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")

	d := p.Evaluate(models.TierOrange, true, map[string]any{"command": "systemctl restart nginx"}, Context{})
	if d.Allowed || !d.RequiresConfirmation {
		t.Fatalf("ORANGE without the approval keyword must require confirmation, got %+v", d)
	}

	d = p.Evaluate(models.TierOrange, true, map[string]any{"command": "systemctl restart nginx"},
		Context{ApprovalKeywordSeen: true})
	if d.Allowed || !d.RequiresConfirmation {
		t.Fatalf("ORANGE with keyword seen but not yet confirmed must still require confirmation, got %+v", d)
	}

	d = p.Evaluate(models.TierOrange, true, map[string]any{"command": "systemctl restart nginx"},
		Context{ApprovalKeywordSeen: true, Confirmed: true})
	if !d.Allowed {
		t.Fatalf("ORANGE with keyword seen and confirmed must be allowed, got %+v", d)
	}

	d = p.Evaluate(models.TierOrange, true, map[string]any{"command": "systemctl restart nginx"},
		Context{OverrideActive: true})
	if !d.Allowed {
		t.Fatalf("ORANGE with an active override key must be allowed without the keyword, got %+v", d)
	}
}

func TestEvaluate_ProtectedNodeDeniesRegardlessOfTier(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")
	d := p.Evaluate(models.TierGreen, false, map[string]any{"node": "PVE1"}, Context{})
	if d.Allowed {
		t.Fatal("a protected node must deny even a GREEN-tier tool")
	}
}

func TestEvaluate_ProtectedVMIDAcrossNumericTypes(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")
	for _, v := range []any{100, int64(100), float64(100)} {
		d := p.Evaluate(models.TierYellow, false, map[string]any{"vmid": v}, Context{})
		if d.Allowed {
			t.Fatalf("protected vmid as %T must deny, got allowed", v)
		}
	}
}

func TestEvaluate_ProtectedServiceAndIP(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")

	d := p.Evaluate(models.TierOrange, true, map[string]any{"service": "pve-cluster"},
		Context{ApprovalKeywordSeen: true, Confirmed: true})
	if d.Allowed {
		t.Fatal("protected service must deny even with full confirmation")
	}

	d = p.Evaluate(models.TierYellow, true, map[string]any{"ip": "10.0.0.10"}, Context{})
	if d.Allowed {
		t.Fatal("protected ip must deny")
	}
}

func TestSanitize_RejectsNullAndControlBytes(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")

	d := p.Evaluate(models.TierGreen, false, map[string]any{"note": "hello\x00world"}, Context{})
	if d.Allowed {
		t.Fatal("null byte in argument must deny")
	}

	d = p.Evaluate(models.TierGreen, false, map[string]any{"note": "hello\x01world"}, Context{})
	if d.Allowed {
		t.Fatal("control character in argument must deny")
	}

	d = p.Evaluate(models.TierGreen, false, map[string]any{"note": "line one\nline two\ttabbed"}, Context{})
	if !d.Allowed {
		t.Fatalf("tab and newline are allowed control characters, got denied: %s", d.Reason)
	}
}

func TestSanitize_RejectsOversizedArgument(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")
	huge := strings.Repeat("a", MaxArgStringLen+1)
	d := p.Evaluate(models.TierGreen, false, map[string]any{"note": huge}, Context{})
	if d.Allowed {
		t.Fatal("oversized argument must deny")
	}
}

func TestSanitize_SSHLikeRejectsShellMetacharacters(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")
	for _, cmd := range []string{
		"systemctl restart nginx; rm -rf /",
		"systemctl status nginx && echo pwned",
		"systemctl status `whoami`",
		"systemctl status $(whoami)",
	} {
		d := p.Evaluate(models.TierYellow, true, map[string]any{"command": cmd}, Context{})
		if d.Allowed {
			t.Errorf("command %q containing shell metacharacters must deny", cmd)
		}
	}
}

func TestSanitize_SSHLikeRejectsNonAllowlistedCommand(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")
	d := p.Evaluate(models.TierYellow, true, map[string]any{"command": "curl http://example.com"}, Context{})
	if d.Allowed {
		t.Fatal("non-allowlisted binary must deny")
	}
}

func TestSanitize_SSHLikeAllowsAllowlistedCommand(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")
	d := p.Evaluate(models.TierYellow, true, map[string]any{"command": "systemctl status nginx"}, Context{})
	if !d.Allowed {
		t.Fatalf("allowlisted command must pass sanitization, got denied: %s", d.Reason)
	}
}

func TestSanitize_NonSSHLikeIgnoresCommandAllowlist(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")
	d := p.Evaluate(models.TierGreen, false, map[string]any{"command": "anything goes here"}, Context{})
	if !d.Allowed {
		t.Fatalf("non-SSH-like tools must not be subject to the command allowlist, got denied: %s", d.Reason)
	}
}

func TestSanitize_SSHLikeEmptyCommandPassesThrough(t *testing.T) {
	p := NewPolicy(protectedFixture(), "confirm")
	d := p.Evaluate(models.TierYellow, true, map[string]any{}, Context{})
	if !d.Allowed {
		t.Fatalf("SSH-like tool with no command argument should not be denied by the command check, got: %s", d.Reason)
	}
}
