// Package router implements the intent router (C9): a small
// keyword/follow-up decision tree choosing between the agentic and
// conversational provider kind per user message, grounded on the
// priority-ordered rule style of the teacher's
// multiagent.CapabilityRouter (score candidates, pick highest, log
// rationale) simplified from N-agent routing down to spec.md §4.9's
// two-kind decision.
package router

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/jarvis-homelab/jarvis/internal/llm"
)

// actionKeywords suggest tool use is likely needed.
var actionKeywords = []string{
	"start", "stop", "restart", "reboot", "shutdown", "show", "play",
	"search", "list", "status", "check", "run", "execute", "deploy",
}

// entityPattern matches node/VM/URL-shaped tokens that usually imply a
// tool call is coming (a VMID, a node name, a web address).
var entityPattern = regexp.MustCompile(`(?i)\b(vm\d+|vmid\s*\d+|node\d*|https?://\S+)\b`)

// shortTurnRunes is the follow-up heuristic's length threshold.
const shortTurnRunes = 40

// Decision is the router's output: which provider kind to use and why.
type Decision struct {
	Kind   llm.Kind
	Reason string
}

// State is the per-session context the router needs to apply the
// follow-up heuristic: whether the previous turn was agentic.
type State struct {
	PreviousKind llm.Kind
}

// Route decides {kind, reason} for one message, applying rules in
// priority order: override key, action keywords/entities, follow-up,
// default conversational.
func Route(message string, overrideActive bool, state State, logger *slog.Logger) Decision {
	var d Decision
	switch {
	case overrideActive:
		d = Decision{Kind: llm.KindAgentic, Reason: "operator override key present"}

	case containsActionKeyword(message) || entityPattern.MatchString(message):
		d = Decision{Kind: llm.KindAgentic, Reason: "message contains an action keyword or entity reference"}

	case state.PreviousKind == llm.KindAgentic && len([]rune(strings.TrimSpace(message))) <= shortTurnRunes:
		d = Decision{Kind: llm.KindAgentic, Reason: "short follow-up to a prior agentic turn"}

	default:
		d = Decision{Kind: llm.KindConversational, Reason: "no action signal detected"}
	}

	if logger != nil {
		logger.Debug("router decision", "kind", kindName(d.Kind), "reason", d.Reason)
	}
	return d
}

func containsActionKeyword(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range actionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func kindName(k llm.Kind) string {
	if k == llm.KindAgentic {
		return "agentic"
	}
	return "conversational"
}
