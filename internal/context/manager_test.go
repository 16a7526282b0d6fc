package context

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/llm"
	"github.com/jarvis-homelab/jarvis/internal/models"
)

func TestManager_WindowTrimsToSize(t *testing.T) {
	m := NewManager(0, nil, nil)
	for i := 0; i < WindowSize+5; i++ {
		m.Append("s1", llm.Message{Role: models.RoleUser, Content: "hi"})
	}
	if got := len(m.Window("s1")); got != WindowSize {
		t.Fatalf("expected window trimmed to %d, got %d", WindowSize, got)
	}
}

func TestManager_CompactsInBackgroundWhenOverBudget(t *testing.T) {
	var mu sync.Mutex
	var calledWith int
	summarizer := func(ctx context.Context, messages []llm.Message) (string, error) {
		mu.Lock()
		calledWith = len(messages)
		mu.Unlock()
		return "summary of earlier turns", nil
	}

	m := NewManager(1, summarizer, nil) // budget of 1 token forces compaction immediately
	long := "this message is long enough to exceed a one token budget by a wide margin"
	for i := 0; i < 6; i++ {
		m.Append("s1", llm.Message{Role: models.RoleUser, Content: long})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := calledWith > 0
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if calledWith == 0 {
		t.Fatalf("expected background summarizer to run")
	}
}

func TestManager_Forget(t *testing.T) {
	m := NewManager(0, nil, nil)
	m.Append("s1", llm.Message{Role: models.RoleUser, Content: "hi"})
	m.Forget("s1")
	if got := len(m.Window("s1")); got != 0 {
		t.Fatalf("expected forgotten window to be empty, got %d", got)
	}
}
