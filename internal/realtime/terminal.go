package realtime

import (
	"encoding/base64"
	"strings"

	"github.com/jarvis-homelab/jarvis/internal/infra/sshpool"
)

type terminalStartPayload struct {
	Node string `json:"node"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
	Term string `json:"term"`
}

type terminalDataPayload struct {
	Data string `json:"data"`
}

type terminalResizePayload struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// handleTerminal implements the terminal channel's one-PTY-per-connection
// contract: start resolves the node name against Deps.NodeHosts and
// acquires a pooled SSH shell; data/resize forward to it; stop (or
// socket disconnect, handled in Hub.unregister) closes the PTY without
// disposing the pooled SSH connection, so the next start reuses it.
func (c *Connection) handleTerminal(env *Envelope) {
	switch env.Event {
	case "terminal:start":
		var p terminalStartPayload
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			c.sendEvent("terminal", "terminal:error", map[string]any{"message": err.Error()})
			return
		}
		c.startTerminal(p)

	case "terminal:data":
		var p terminalDataPayload
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return
		}
		raw, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return
		}
		c.mu.Lock()
		pty := c.terminalPTY
		c.mu.Unlock()
		if pty == nil {
			return
		}
		select {
		case pty.Stdin <- raw:
		case <-c.ctx.Done():
		}

	case "terminal:resize":
		var p terminalResizePayload
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return
		}
		c.mu.Lock()
		pty := c.terminalPTY
		c.mu.Unlock()
		if pty != nil {
			_ = pty.Resize(p.Cols, p.Rows)
		}

	case "terminal:stop":
		c.stopTerminal()
	}
}

func (c *Connection) startTerminal(p terminalStartPayload) {
	host, ok := c.hub.deps.NodeHosts[strings.ToLower(p.Node)]
	if !ok {
		c.sendEvent("terminal", "terminal:error", map[string]any{"message": "unknown node: " + p.Node})
		return
	}

	c.mu.Lock()
	if c.terminalPTY != nil {
		_ = c.terminalPTY.Close()
		c.terminalPTY = nil
	}
	c.mu.Unlock()

	cols, rows := p.Cols, p.Rows
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	pty, err := c.hub.deps.SSH.OpenShell(c.ctx, host, sshpool.PTYOptions{Cols: cols, Rows: rows, Term: p.Term})
	if err != nil {
		c.sendEvent("terminal", "terminal:error", map[string]any{"message": err.Error()})
		return
	}

	c.mu.Lock()
	c.terminalPTY = pty
	c.mu.Unlock()

	c.sendEvent("terminal", "terminal:ready", map[string]any{"node": p.Node, "host": host})

	go c.pumpTerminalOutput(pty)
}

func (c *Connection) pumpTerminalOutput(pty *sshpool.PTY) {
	for {
		select {
		case chunk, ok := <-pty.Stdout:
			if !ok {
				c.mu.Lock()
				if c.terminalPTY == pty {
					c.terminalPTY = nil
				}
				c.mu.Unlock()
				c.sendEvent("terminal", "terminal:exit", map[string]any{})
				return
			}
			c.sendEvent("terminal", "terminal:data", map[string]any{"data": base64.StdEncoding.EncodeToString(chunk)})
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) stopTerminal() {
	c.mu.Lock()
	pty := c.terminalPTY
	c.terminalPTY = nil
	c.mu.Unlock()
	if pty != nil {
		_ = pty.Close()
	}
}
