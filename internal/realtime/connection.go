package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jarvis-homelab/jarvis/internal/infra/sshpool"
	"github.com/jarvis-homelab/jarvis/internal/llm"
)

// routerEntry is the per-session follow-up state the chat channel
// needs from the intent router.
type routerEntry struct {
	previousKind llm.Kind
}

// Connection is one client's websocket session, multiplexing the five
// logical channels. Adapted from the teacher's wsSession: buffered
// send channel drained by a dedicated write goroutine, read loop owns
// deadline/pong bookkeeping.
type Connection struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	id     string

	mu          sync.Mutex
	routerState map[string]routerEntry
	terminalPTY *sshpool.PTY
	voice       *voiceSession
	clusterSent bool
}

func (c *Connection) run() {
	go c.writeLoop()
	c.sendInitialSnapshot()
	go c.startTicking()
	c.readLoop()
}

func (c *Connection) sendInitialSnapshot() {
	if c.hub.snapshot == nil {
		return
	}
	snap := c.hub.snapshot(c.ctx)
	c.mu.Lock()
	c.clusterSent = true
	c.mu.Unlock()
	c.sendEvent("cluster", "snapshot", snap)
}

func (c *Connection) readLoop() {
	defer c.cancel()
	c.conn.SetReadLimit(MaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		env, err := decodeEnvelope(data)
		if err != nil {
			c.sendEvent("events", "error", map[string]any{"message": err.Error()})
			continue
		}
		c.dispatch(env)
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (c *Connection) startTicking() {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *Connection) dispatch(env *Envelope) {
	switch env.Channel {
	case "cluster":
		c.handleCluster(env)
	case "terminal":
		c.handleTerminal(env)
	case "chat":
		c.handleChat(env)
	case "voice":
		c.handleVoice(env)
	case "events":
		// events is outbound-only; ignore any inbound frame.
	default:
		c.sendEvent("events", "error", map[string]any{"message": "unknown channel"})
	}
}

func (c *Connection) handleCluster(env *Envelope) {
	if env.Event != "requestRefresh" || c.hub.snapshot == nil {
		return
	}
	c.sendEvent("cluster", "snapshot", c.hub.snapshot(c.ctx))
}

// sendEvent marshals and enqueues one outbound envelope, dropping it
// (with a log) if the connection's send buffer is full rather than
// blocking the caller — a slow client never stalls the server.
func (c *Connection) sendEvent(channel, event string, payload any) {
	data, err := json.Marshal(Envelope{Channel: channel, Event: event, Payload: marshalPayload(payload)})
	if err != nil {
		c.logger().Warn("realtime: failed to marshal outbound envelope", "channel", channel, "event", event, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger().Warn("realtime: send buffer full, dropping event", "channel", channel, "event", event)
	}
}

func marshalPayload(payload any) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"error": "failed to encode payload"})
	}
	return data
}

func (c *Connection) logger() *slog.Logger {
	if c.hub.deps.Logger != nil {
		return c.hub.deps.Logger
	}
	return slog.Default()
}
