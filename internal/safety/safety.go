// Package safety implements the JARVIS tool safety policy: input
// sanitization, protected-resource filtering, and tier enforcement.
// It composes three independent checks in order, following the same
// allow/deny Decision shape as the teacher's tools/policy resolver.
package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

// MaxArgStringLen caps any single string argument value (≈10 KiB).
const MaxArgStringLen = 10 * 1024

var shellMetacharacters = regexp.MustCompile("[;&`$]")

// allowlistedCommands is the set of binaries permitted for any SSH-like
// tool. Anything else fails sanitization regardless of tier.
var allowlistedCommands = map[string]struct{}{
	"systemctl": {},
	"journalctl": {},
	"uptime":    {},
	"hostname":  {},
	"df":        {},
	"free":      {},
	"ps":        {},
	"docker":    {},
	"pvesh":     {},
	"qm":        {},
	"pct":       {},
}

// Policy evaluates SafetyDecisions for tool invocations.
type Policy struct {
	protected       models.ProtectedResource
	approvalKeyword string
}

// NewPolicy constructs a Policy over the given protected-resource set and
// the configured ORANGE-tier approval keyword.
func NewPolicy(protected models.ProtectedResource, approvalKeyword string) *Policy {
	return &Policy{protected: protected, approvalKeyword: approvalKeyword}
}

// Context carries the per-turn facts that widen or narrow tier enforcement:
// whether the operator's override key was present, whether the approval
// keyword appeared in the originating turn, and whether the caller has
// already supplied an explicit confirmed=true side channel flag.
type Context struct {
	OverrideActive   bool
	ApprovalKeywordSeen bool
	Confirmed        bool
}

// Evaluate runs sanitization, the protected-resource filter, and tier
// enforcement in order, returning the first denial encountered.
func (p *Policy) Evaluate(tier models.Tier, isSSHLike bool, args map[string]any, ctx Context) models.SafetyDecision {
	if reason, ok := p.sanitize(isSSHLike, args); !ok {
		return models.SafetyDecision{Allowed: false, Reason: reason, Tier: tier}
	}
	if reason, ok := p.checkProtected(args); !ok {
		return models.SafetyDecision{Allowed: false, Reason: reason, Tier: tier}
	}
	return p.checkTier(tier, ctx)
}

// sanitize rejects (it does not strip) any string argument containing a
// null byte or control characters, enforces the length cap, and rejects
// shell metacharacters or non-allowlisted commands in any SSH-like
// tool's "command" argument.
func (p *Policy) sanitize(isSSHLike bool, args map[string]any) (string, bool) {
	for key, v := range args {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if strings.ContainsRune(s, 0) {
			return fmt.Sprintf("argument %q contains a null byte", key), false
		}
		if containsControl(s) {
			return fmt.Sprintf("argument %q contains control characters", key), false
		}
		if len(s) > MaxArgStringLen {
			return fmt.Sprintf("argument %q exceeds maximum length", key), false
		}
	}
	if !isSSHLike {
		return "", true
	}
	cmdVal, _ := args["command"].(string)
	if cmdVal == "" {
		return "", true
	}
	if shellMetacharacters.MatchString(cmdVal) {
		return "command contains disallowed shell metacharacters", false
	}
	bin := strings.Fields(cmdVal)
	if len(bin) == 0 {
		return "command is empty", false
	}
	if _, ok := allowlistedCommands[bin[0]]; !ok {
		return fmt.Sprintf("command %q is not allowlisted", bin[0]), false
	}
	return "", true
}

func containsControl(s string) bool {
	for _, r := range s {
		if r < 0x20 && r != '\t' && r != '\n' {
			return true
		}
	}
	return false
}

// checkProtected compares tool arguments against the protected set across
// node/vmid/service/ip fields, denying on any intersection irrespective of
// tier.
func (p *Policy) checkProtected(args map[string]any) (string, bool) {
	if node, ok := args["node"].(string); ok {
		if _, hit := p.protected.Nodes[strings.ToLower(node)]; hit {
			return fmt.Sprintf("node %q is protected", node), false
		}
	}
	if vmid, ok := toInt(args["vmid"]); ok {
		if _, hit := p.protected.VMIDs[vmid]; hit {
			return fmt.Sprintf("VMID %d is the management VM", vmid), false
		}
	}
	if svc, ok := args["service"].(string); ok {
		if _, hit := p.protected.Services[svc]; hit {
			return fmt.Sprintf("service %q is protected", svc), false
		}
	}
	if ip, ok := args["ip"].(string); ok {
		if _, hit := p.protected.IPs[ip]; hit {
			return fmt.Sprintf("host %q is protected", ip), false
		}
	}
	return "", true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// checkTier applies the tier enforcement rules: GREEN/YELLOW auto-allow;
// RED/ORANGE require an explicit confirmed flag (never LLM-sourced);
// BLACK always denies, including for unknown tools, which default to
// BLACK fail-safe. ORANGE additionally requires the approval keyword to
// have appeared in the user's turn. An active override key widens
// RED/ORANGE (never BLACK) for the remainder of the turn.
func (p *Policy) checkTier(tier models.Tier, ctx Context) models.SafetyDecision {
	switch tier {
	case models.TierGreen, models.TierYellow:
		return models.SafetyDecision{Allowed: true, Tier: tier}
	case models.TierBlack:
		return models.SafetyDecision{Allowed: false, Reason: "tool is blocked (tier BLACK)", Tier: tier}
	case models.TierOrange:
		if !ctx.ApprovalKeywordSeen && !ctx.OverrideActive {
			return models.SafetyDecision{Allowed: false, Tier: tier, RequiresConfirmation: true,
				Reason: "ORANGE tier requires the approval keyword"}
		}
		fallthrough
	case models.TierRed:
		if ctx.Confirmed || ctx.OverrideActive {
			return models.SafetyDecision{Allowed: true, Tier: tier}
		}
		return models.SafetyDecision{Allowed: false, Tier: tier, RequiresConfirmation: true,
			Reason: "requires operator confirmation"}
	default:
		// Unknown tier: fail-safe as BLACK.
		return models.SafetyDecision{Allowed: false, Reason: "unknown tier treated as BLACK", Tier: models.TierBlack}
	}
}
