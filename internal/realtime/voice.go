package realtime

import (
	"bytes"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/agent"
	"github.com/jarvis-homelab/jarvis/internal/llm"
	"github.com/jarvis-homelab/jarvis/internal/models"
	"github.com/jarvis-homelab/jarvis/internal/router"
	"github.com/jarvis-homelab/jarvis/internal/safety"
	"github.com/jarvis-homelab/jarvis/internal/sentence"
)

const (
	voiceInactivityGuard = 2 * time.Second
	voiceHardCap         = 30 * time.Second
)

// voiceSession is the server-driven state machine for one utterance:
// idle -> listening -> capturing -> processing -> speaking -> idle.
// Capture ends on an inactivity gap, an explicit audio_end, or the
// hard cap, whichever comes first; finalizeOnce guarantees exactly one
// of those three triggers drives the turn.
type voiceSession struct {
	mu           sync.Mutex
	buf          bytes.Buffer
	mimeType     string
	finalizeOnce sync.Once
	inactivity   *time.Timer
	hardCap      *time.Timer
}

type voiceAudioChunkPayload struct {
	Seq   int    `json:"seq"`
	Audio string `json:"audio"`
}

type voiceAudioStartPayload struct {
	MimeType string `json:"mimeType"`
}

func (c *Connection) handleVoice(env *Envelope) {
	switch env.Event {
	case "voice:audio_start":
		var p voiceAudioStartPayload
		_ = unmarshalPayload(env.Payload, &p)
		c.startVoiceCapture(p.MimeType)

	case "voice:audio_chunk":
		var p voiceAudioChunkPayload
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return
		}
		raw, err := base64.StdEncoding.DecodeString(p.Audio)
		if err != nil {
			return
		}
		c.appendVoiceAudio(raw)

	case "voice:audio_end":
		c.mu.Lock()
		vs := c.voice
		c.mu.Unlock()
		if vs != nil {
			c.finalizeVoiceCapture(vs)
		}

	case "voice:ping":
		c.sendEvent("voice", "voice:pong", map[string]any{})
	}
}

func (c *Connection) startVoiceCapture(mimeType string) {
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	vs := &voiceSession{mimeType: mimeType}

	c.mu.Lock()
	prev := c.voice
	c.voice = vs
	c.mu.Unlock()
	if prev != nil {
		prev.stopTimers()
	}

	vs.hardCap = time.AfterFunc(voiceHardCap, func() { c.finalizeVoiceCapture(vs) })
	vs.inactivity = time.AfterFunc(voiceInactivityGuard, func() { c.finalizeVoiceCapture(vs) })

	c.sendEvent("voice", "voice:listening", map[string]any{})
}

func (c *Connection) appendVoiceAudio(raw []byte) {
	c.mu.Lock()
	vs := c.voice
	c.mu.Unlock()
	if vs == nil {
		return
	}
	vs.mu.Lock()
	vs.buf.Write(raw)
	if vs.inactivity != nil {
		vs.inactivity.Reset(voiceInactivityGuard)
	}
	vs.mu.Unlock()
}

func (vs *voiceSession) stopTimers() {
	if vs.inactivity != nil {
		vs.inactivity.Stop()
	}
	if vs.hardCap != nil {
		vs.hardCap.Stop()
	}
}

// finalizeVoiceCapture ends capture exactly once per session (the
// inactivity timer, the hard-cap timer, and an explicit audio_end all
// race to call this) and drives the transcribe -> route -> respond ->
// speak pipeline.
func (c *Connection) finalizeVoiceCapture(vs *voiceSession) {
	vs.finalizeOnce.Do(func() {
		vs.stopTimers()

		vs.mu.Lock()
		audio := append([]byte(nil), vs.buf.Bytes()...)
		mimeType := vs.mimeType
		vs.mu.Unlock()

		c.mu.Lock()
		if c.voice == vs {
			c.voice = nil
		}
		c.mu.Unlock()

		if len(audio) == 0 {
			c.sendEvent("voice", "voice:error", map[string]any{"message": "No audio received"})
			c.startVoiceCapture(mimeType)
			return
		}

		c.sendEvent("voice", "voice:processing", map[string]any{})
		c.runVoiceTurn(audio, mimeType)
	})
}

func (c *Connection) runVoiceTurn(audio []byte, mimeType string) {
	deps := c.hub.deps
	if deps.STT == nil {
		c.sendEvent("voice", "voice:error", map[string]any{"message": "speech-to-text is not configured"})
		return
	}

	transcript, err := deps.STT.Transcribe(c.ctx, bytes.NewReader(audio), mimeType)
	if err != nil {
		c.sendEvent("voice", "voice:error", map[string]any{"message": err.Error()})
		c.sendEvent("voice", "voice:listening", map[string]any{})
		return
	}

	c.sendEvent("voice", "voice:transcript", map[string]any{"text": transcript})

	sessionID := c.id
	c.mu.Lock()
	prior := c.routerState[sessionID]
	c.mu.Unlock()

	decision := router.Route(transcript, false, router.State{PreviousKind: prior.previousKind}, deps.Logger)

	var provider llm.Provider
	var tools []llm.ToolDef
	systemPrompt := deps.SystemPromptConversational
	if decision.Kind == llm.KindAgentic {
		provider = deps.Agentic
		tools = deps.Registry.ToolDefs()
		systemPrompt = deps.SystemPromptAgentic
	} else {
		provider = deps.Conversational
	}

	deps.Context.Append(sessionID, llm.Message{Role: models.RoleUser, Content: transcript})
	messages := deps.Context.Window(sessionID)

	cfg := agent.RunConfig{
		Provider:     provider,
		Messages:     messages,
		SystemPrompt: systemPrompt,
		Tools:        tools,
		SessionID:    sessionID,
		SafetyCtx:    safety.Context{},
		Source:       models.SourceLLM,
	}

	c.sendEvent("voice", "voice:thinking", map[string]any{})

	var textBuf strings.Builder
	var wg sync.WaitGroup
	streamer := sentence.NewStreamer(func(chunk models.SentenceChunk) {
		if deps.TTS == nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			audio, err := deps.TTS.Synthesize(c.ctx, sessionID, chunk, "default")
			if err != nil {
				c.logger().Warn("voice tts synthesis failed", "session_id", sessionID, "error", err)
				return
			}
			c.sendEvent("voice", "voice:tts_chunk", map[string]any{
				"index": audio.Index, "contentType": audio.ContentType, "audio": audio.Bytes,
			})
		}()
	})

	var cb agent.Callbacks
	cb = agent.Callbacks{
		OnTextDelta: func(text string) {
			textBuf.WriteString(text)
			streamer.Push(text)
		},
		// RED/ORANGE tool tiers require operator confirmation, which the
		// voice channel has no UI for: auto-decline and let the model's
		// next turn explain the refusal verbally (spec.md §4.12).
		OnConfirmationNeeded: func(pending *models.PendingConfirmation) {
			c.logger().Warn("voice: auto-declining tool requiring confirmation",
				"session_id", sessionID, "tool", pending.ToolName, "tier", pending.Tier)
			c.sendEvent("events", "tool:auto_declined", map[string]any{
				"sessionId": sessionID, "toolName": pending.ToolName, "tier": pending.Tier,
			})
			go func() {
				if err := deps.Loop.ResumeAfterConfirmation(c.ctx, pending.ID, false, cfg, cb); err != nil {
					c.sendEvent("voice", "voice:error", map[string]any{"message": err.Error()})
				}
			}()
		},
		OnError: func(err error) {
			wg.Wait()
			if deps.TTS != nil {
				deps.TTS.ReleaseSession(sessionID)
			}
			c.sendEvent("voice", "voice:error", map[string]any{"message": err.Error()})
		},
		OnDone: func(usage llm.Usage) {
			deps.Context.Append(sessionID, llm.Message{Role: models.RoleAssistant, Content: textBuf.String()})
			streamer.Flush()
			wg.Wait()
			// Response-scoped engine lock (spec.md §4.5): release it so a
			// fallback earlier in this utterance doesn't pin the next one.
			if deps.TTS != nil {
				deps.TTS.ReleaseSession(sessionID)
			}
			c.sendEvent("voice", "voice:tts_done", map[string]any{})
			c.sendEvent("voice", "voice:listening", map[string]any{})

			c.mu.Lock()
			c.routerState[sessionID] = routerEntry{previousKind: decision.Kind}
			c.mu.Unlock()
		},
	}

	if err := deps.Loop.Run(c.ctx, cfg, cb); err != nil {
		c.sendEvent("voice", "voice:error", map[string]any{"message": err.Error()})
	}
}
