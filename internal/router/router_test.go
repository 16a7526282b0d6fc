package router

import (
	"testing"

	"github.com/jarvis-homelab/jarvis/internal/llm"
)

func TestRoute(t *testing.T) {
	cases := []struct {
		name           string
		message        string
		overrideActive bool
		state          State
		want           llm.Kind
	}{
		{"override key wins", "tell me a joke", true, State{}, llm.KindAgentic},
		{"action keyword", "restart the plex vm", false, State{}, llm.KindAgentic},
		{"entity pattern", "what's the load on node2", false, State{}, llm.KindAgentic},
		{"short follow-up after agentic", "yes do it", false, State{PreviousKind: llm.KindAgentic}, llm.KindAgentic},
		{"default conversational", "how's your day going", false, State{}, llm.KindConversational},
		{
			"long message after agentic turn is not a follow-up",
			"that's a very long message that exceeds the short follow-up threshold by quite a lot of characters",
			false, State{PreviousKind: llm.KindAgentic}, llm.KindConversational,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Route(tc.message, tc.overrideActive, tc.state, nil)
			if got.Kind != tc.want {
				t.Fatalf("Route(%q) = %v, want %v (reason: %s)", tc.message, got.Kind, tc.want, got.Reason)
			}
			if got.Reason == "" {
				t.Fatalf("expected a non-empty rationale")
			}
		})
	}
}
