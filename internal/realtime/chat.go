package realtime

import (
	"strings"
	"sync"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/agent"
	"github.com/jarvis-homelab/jarvis/internal/llm"
	"github.com/jarvis-homelab/jarvis/internal/models"
	"github.com/jarvis-homelab/jarvis/internal/router"
	"github.com/jarvis-homelab/jarvis/internal/safety"
	"github.com/jarvis-homelab/jarvis/internal/sentence"
	"github.com/jarvis-homelab/jarvis/internal/timing"
)

type chatSendPayload struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	VoiceMode bool   `json:"voiceMode"`
}

type chatConfirmPayload struct {
	SessionID string `json:"sessionId"`
	ToolUseID string `json:"toolUseId"`
	Confirmed bool   `json:"confirmed"`
}

func (c *Connection) handleChat(env *Envelope) {
	switch env.Event {
	case "chat:send":
		var p chatSendPayload
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			c.sendEvent("chat", "chat:error", map[string]any{"message": err.Error()})
			return
		}
		if strings.TrimSpace(p.Message) == "" {
			c.sendEvent("chat", "chat:error", map[string]any{"message": "message is required"})
			return
		}
		if p.SessionID == "" {
			p.SessionID = c.id
		}
		go c.runChatTurn(p)

	case "chat:confirm":
		var p chatConfirmPayload
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			c.sendEvent("chat", "chat:error", map[string]any{"message": err.Error()})
			return
		}
		go c.resumeChatTurn(p)
	}
}

// runChatTurn drives one chat:send request through persist → router →
// context window → agentic loop, fanning text deltas out to
// chat:token, sentence boundaries to C11/C5, and tool lifecycle events
// to chat:tool_use / chat:tool_result / chat:confirm_needed /
// chat:blocked, mirroring the control-flow description of spec.md §3.
func (c *Connection) runChatTurn(p chatSendPayload) {
	deps := c.hub.deps
	sessionID := p.SessionID
	trace := timing.NewTrace()

	userMsg := models.ChatMessage{SessionID: sessionID, Role: models.RoleUser, Content: p.Message, Timestamp: time.Now()}
	if deps.Store != nil {
		_ = deps.Store.SaveMessage(c.ctx, userMsg)
	}
	deps.Context.Append(sessionID, llm.Message{Role: models.RoleUser, Content: p.Message})

	overrideActive := deps.OverrideKey != "" && strings.Contains(p.Message, deps.OverrideKey)
	approvalSeen := deps.ApprovalKeyword != "" && strings.Contains(strings.ToLower(p.Message), strings.ToLower(deps.ApprovalKeyword))

	c.mu.Lock()
	prior := c.routerState[sessionID]
	c.mu.Unlock()

	decision := router.Route(p.Message, overrideActive, router.State{PreviousKind: prior.previousKind}, deps.Logger)
	trace.Mark(timing.MarkRouted)

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

	messages := deps.Context.Window(sessionID)

	cfg := agent.RunConfig{
		Provider:     provider,
		Messages:     messages,
		SystemPrompt: systemPrompt,
		Tools:        tools,
		SessionID:    sessionID,
		SafetyCtx:    safety.Context{OverrideActive: overrideActive, ApprovalKeywordSeen: approvalSeen},
		Source:       models.SourceLLM,
	}

	c.runLoop(sessionID, cfg, decision.Kind, p.VoiceMode, trace)
}

func (c *Connection) resumeChatTurn(p chatConfirmPayload) {
	deps := c.hub.deps
	cfg := agent.RunConfig{
		Messages:  deps.Context.Window(p.SessionID),
		SessionID: p.SessionID,
		Source:    models.SourceLLM,
	}
	cb := c.chatCallbacks(p.SessionID, false, timing.NewTrace())
	if err := deps.Loop.ResumeAfterConfirmation(c.ctx, p.ToolUseID, p.Confirmed, cfg, cb); err != nil {
		c.sendEvent("chat", "chat:error", map[string]any{"message": err.Error()})
	}
}

func (c *Connection) runLoop(sessionID string, cfg agent.RunConfig, kind llm.Kind, voiceMode bool, trace *timing.Trace) {
	cb := c.chatCallbacks(sessionID, voiceMode, trace)
	trace.Mark(timing.MarkLLMStart)
	if err := c.hub.deps.Loop.Run(c.ctx, cfg, cb); err != nil {
		c.sendEvent("chat", "chat:error", map[string]any{"message": err.Error()})
		return
	}
	c.mu.Lock()
	c.routerState[sessionID] = routerEntry{previousKind: kind}
	c.mu.Unlock()
}

// chatCallbacks wires one response's text/tool/audio lifecycle into
// the chat-channel wire events. The sentence streamer and TTS pipeline
// are only engaged when voiceMode is set — a text-only chat turn never
// pays for synthesis.
func (c *Connection) chatCallbacks(sessionID string, voiceMode bool, trace *timing.Trace) agent.Callbacks {
	var textBuf strings.Builder
	var streamer *sentence.Streamer
	var wg sync.WaitGroup

	if voiceMode && c.hub.deps.TTS != nil {
		streamer = sentence.NewStreamer(func(chunk models.SentenceChunk) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				audio, err := c.hub.deps.TTS.Synthesize(c.ctx, sessionID, chunk, "default")
				if err != nil {
					c.logger().Warn("tts synthesis failed", "session_id", sessionID, "error", err)
					return
				}
				trace.Mark(timing.MarkTTSFirst)
				c.sendEvent("chat", "chat:audio_chunk", map[string]any{
					"sessionId": sessionID, "index": audio.Index, "contentType": audio.ContentType, "audio": audio.Bytes,
				})
			}()
		})
	}

	return agent.Callbacks{
		OnTextDelta: func(text string) {
			trace.Mark(timing.MarkFirstToken)
			textBuf.WriteString(text)
			c.sendEvent("chat", "chat:token", map[string]any{"sessionId": sessionID, "text": text})
			if streamer != nil {
				trace.Mark(timing.MarkTTSQueued)
				streamer.Push(text)
			}
		},
		OnToolUse: func(name string, args map[string]any, id string, tier models.Tier) {
			c.sendEvent("chat", "chat:tool_use", map[string]any{"sessionId": sessionID, "toolUseId": id, "name": name, "args": args, "tier": tier})
		},
		OnToolResult: func(id string, result string, isError bool) {
			c.sendEvent("chat", "chat:tool_result", map[string]any{"sessionId": sessionID, "toolUseId": id, "result": result, "isError": isError})
		},
		OnConfirmationNeeded: func(pending *models.PendingConfirmation) {
			c.sendEvent("chat", "chat:confirm_needed", map[string]any{
				"sessionId": sessionID, "toolUseId": pending.ID, "toolName": pending.ToolName, "args": pending.Args, "tier": pending.Tier,
			})
		},
		OnBlocked: func(name string, reason string, tier models.Tier) {
			c.sendEvent("chat", "chat:blocked", map[string]any{"sessionId": sessionID, "name": name, "reason": reason, "tier": tier})
		},
		OnDone: func(usage llm.Usage) {
			trace.Mark(timing.MarkLLMDone)
			assistantMsg := models.ChatMessage{
				SessionID: sessionID, Role: models.RoleAssistant, Content: textBuf.String(),
				Timestamp: time.Now(), TokensIn: usage.InputTokens, TokensOut: usage.OutputTokens,
			}
			if c.hub.deps.Store != nil {
				_ = c.hub.deps.Store.SaveMessage(c.ctx, assistantMsg)
			}
			c.hub.deps.Context.Append(sessionID, llm.Message{Role: models.RoleAssistant, Content: textBuf.String()})

			if streamer != nil {
				streamer.Flush()
				wg.Wait()
				// The engine-lock is scoped to this one response (spec.md
				// §4.5): release it now so a transient primary failure
				// earlier in this response doesn't pin the next response
				// in the same session to the fallback voice.
				c.hub.deps.TTS.ReleaseSession(sessionID)
				trace.Mark(timing.MarkAudioDelivered)
				c.sendEvent("chat", "chat:audio_done", map[string]any{"sessionId": sessionID})
			}
			trace.Log(c.logger(), sessionID)
			c.sendEvent("chat", "chat:timing", map[string]any{"sessionId": sessionID, "breakdown": trace.Breakdown(), "totalMs": trace.TotalMs()})
			c.sendEvent("chat", "chat:done", map[string]any{"sessionId": sessionID, "tokensIn": usage.InputTokens, "tokensOut": usage.OutputTokens})
		},
		OnError: func(err error) {
			if streamer != nil {
				wg.Wait()
				c.hub.deps.TTS.ReleaseSession(sessionID)
			}
			c.sendEvent("chat", "chat:error", map[string]any{"sessionId": sessionID, "message": err.Error()})
		},
	}
}
