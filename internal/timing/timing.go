// Package timing implements the pipeline-timing component (C14):
// zero-allocation-on-the-happy-path ordered marks per chat/voice
// request, a single-line breakdown log, and the structured-logging
// idiom the teacher uses throughout internal/gateway applied to this
// narrower purpose.
package timing

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MarkName is one named point in a request's lifecycle.
type MarkName string

const (
	MarkReceived       MarkName = "t0_received"
	MarkRouted         MarkName = "t1_routed"
	MarkLLMStart       MarkName = "t2_llm_start"
	MarkFirstToken     MarkName = "t3_first_token"
	MarkLLMDone        MarkName = "t4_llm_done"
	MarkTTSQueued      MarkName = "t5_tts_queued"
	MarkTTSFirst       MarkName = "t6_tts_first"
	MarkAudioDelivered MarkName = "t7_audio_delivered"
)

type markEntry struct {
	name MarkName
	at   time.Time
}

// Trace records ordered marks for one request, relative to its own
// construction time. Safe for concurrent use: OnTextDelta and the TTS
// fan-out goroutines mark from different goroutines.
type Trace struct {
	mu    sync.Mutex
	start time.Time
	marks []markEntry
}

// NewTrace starts a trace at t0_received.
func NewTrace() *Trace {
	t := &Trace{start: time.Now(), marks: make([]markEntry, 0, 8)}
	t.marks = append(t.marks, markEntry{name: MarkReceived, at: t.start})
	return t
}

// Mark records name at the current time if it hasn't already been
// recorded — first writer wins, so a slower duplicate (e.g. a second
// TTS goroutine) never clobbers the real first-occurrence timing.
func (t *Trace) Mark(name MarkName) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.marks {
		if m.name == name {
			return
		}
	}
	t.marks = append(t.marks, markEntry{name: name, at: time.Now()})
}

// Breakdown returns each recorded mark's elapsed time in milliseconds
// relative to t0_received.
func (t *Trace) Breakdown() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.marks))
	for _, m := range t.marks {
		out[string(m.name)] = m.at.Sub(t.start).Milliseconds()
	}
	return out
}

func (t *Trace) msSince(name MarkName) int64 {
	for _, m := range t.marks {
		if m.name == name {
			return m.at.Sub(t.start).Milliseconds()
		}
	}
	return -1
}

// TotalMs is the elapsed time at the most recently recorded mark.
func (t *Trace) TotalMs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.marks) == 0 {
		return 0
	}
	return t.marks[len(t.marks)-1].at.Sub(t.start).Milliseconds()
}

// Summary renders the single-line "[Timing] route=… first_token=…
// tts_first=… total=…" form written to the log by Log. The chat:timing
// event sent to the frontend carries Breakdown and TotalMs instead.
func (t *Trace) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	route := t.msSince(MarkRouted)
	firstToken := t.msSince(MarkFirstToken)
	ttsFirst := t.msSince(MarkTTSFirst)
	var total int64
	if len(t.marks) > 0 {
		total = t.marks[len(t.marks)-1].at.Sub(t.start).Milliseconds()
	}
	return fmt.Sprintf("[Timing] route=%dms first_token=%dms tts_first=%dms total=%dms", route, firstToken, ttsFirst, total)
}

// Log emits the one-line breakdown at info level.
func (t *Trace) Log(logger *slog.Logger, sessionID string) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(t.Summary(), "session_id", sessionID)
}
