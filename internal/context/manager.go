// Package context implements the context manager (C10): a per-session
// sliding window budgeted against a token target, with background,
// non-blocking summarization of the oldest half once the budget is
// exceeded. Token estimation and the chars/4 heuristic are adapted
// directly from the teacher's internal/compaction/compaction.go.
package context

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jarvis-homelab/jarvis/internal/llm"
)

// CharsPerToken is the approximate character-to-token ratio used for
// estimation (teacher's compaction.CharsPerToken).
const CharsPerToken = 4

// SafetyMargin buffers token estimation inaccuracy.
const SafetyMargin = 1.2

// WindowSize is the default number of turns kept in the sliding window.
const WindowSize = 20

// Summarizer compacts a slice of messages into one synthetic summary.
// The real implementation delegates to a conversational Provider.
type Summarizer func(ctx context.Context, messages []llm.Message) (string, error)

// EstimateTokens estimates the token count of one message.
func EstimateTokens(m llm.Message) int {
	chars := len(m.Content)
	return (chars + CharsPerToken - 1) / CharsPerToken
}

// EstimateMessagesTokens sums EstimateTokens over a slice, applying the
// safety margin.
func EstimateMessagesTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m)
	}
	return int(float64(total) * SafetyMargin)
}

// Manager holds each session's sliding window and drives background
// summarization. Safe for concurrent use: a summarization goroutine
// may be replacing the window while a new message is appended.
type Manager struct {
	mu         sync.Mutex
	windows    map[string][]llm.Message
	budget     int
	summarizer Summarizer
	logger     *slog.Logger
}

// NewManager constructs a Manager with a token budget (post
// system-prompt and memory-context subtraction is the caller's
// responsibility) and the summarizer used for background compaction.
func NewManager(tokenBudget int, summarizer Summarizer, logger *slog.Logger) *Manager {
	return &Manager{
		windows:    make(map[string][]llm.Message),
		budget:     tokenBudget,
		summarizer: summarizer,
		logger:     logger,
	}
}

// Append adds a message to a session's window, trims it to WindowSize,
// and — if the window exceeds the token budget — launches a
// non-blocking background compaction of the oldest half. The caller
// may continue to use the un-summarized window returned by Window for
// the message currently in flight; only the next call observes the
// compacted result.
func (m *Manager) Append(sessionID string, msg llm.Message) {
	m.mu.Lock()
	window := append(m.windows[sessionID], msg)
	if len(window) > WindowSize {
		window = window[len(window)-WindowSize:]
	}
	m.windows[sessionID] = window
	over := EstimateMessagesTokens(window) > m.budget && m.budget > 0
	m.mu.Unlock()

	if over && m.summarizer != nil {
		go m.compact(sessionID)
	}
}

// Window returns a copy of a session's current sliding window.
func (m *Manager) Window(sessionID string) []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Message(nil), m.windows[sessionID]...)
}

// compact summarizes the oldest half of a session's window and
// replaces it with a synthetic system summary message. Runs detached
// from the request path: the session's full un-summarized history
// remains recoverable from persistence regardless of this outcome.
func (m *Manager) compact(sessionID string) {
	m.mu.Lock()
	window := append([]llm.Message(nil), m.windows[sessionID]...)
	m.mu.Unlock()

	if len(window) < 4 {
		return
	}
	half := len(window) / 2
	oldest, newest := window[:half], window[half:]

	summary, err := m.summarizer(context.Background(), oldest)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("context compaction failed", "session_id", sessionID, "error", err)
		}
		return
	}

	compacted := append([]llm.Message{{Role: "system", Content: summary}}, newest...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[sessionID] = compacted
	if m.logger != nil {
		m.logger.Info("context compacted", "session_id", sessionID, "summarized_messages", len(oldest))
	}
}

// Forget discards a session's window, called on session end.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, sessionID)
}
