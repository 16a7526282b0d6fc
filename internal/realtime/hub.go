package realtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jarvis-homelab/jarvis/internal/agent"
	ctxmgr "github.com/jarvis-homelab/jarvis/internal/context"
	"github.com/jarvis-homelab/jarvis/internal/infra/sshpool"
	"github.com/jarvis-homelab/jarvis/internal/llm"
	"github.com/jarvis-homelab/jarvis/internal/storage"
	"github.com/jarvis-homelab/jarvis/internal/tooling"
	"github.com/jarvis-homelab/jarvis/internal/tts"
)

const (
	pongWait   = 45 * time.Second
	writeWait  = 10 * time.Second
	tickPeriod = 15 * time.Second
)

// Deps is everything the multiplexer wires into connections: one
// instance shared across the process, immutable after startup.
type Deps struct {
	Loop           *agent.Loop
	Registry       *tooling.Registry
	Agentic        llm.Provider
	Conversational llm.Provider
	Context        *ctxmgr.Manager
	TTS            *tts.Pipeline
	STT            Transcriber
	SSH            *sshpool.Pool
	Store          storage.Store

	// NodeHosts maps a lowercased node name to its SSH-reachable host.
	NodeHosts map[string]string

	OverrideKey     string
	ApprovalKeyword string

	SystemPromptAgentic        string
	SystemPromptConversational string

	Logger *slog.Logger
}

// Transcriber is the subset of stt.Transcriber realtime depends on,
// named locally so tests can substitute a fake.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, mimeType string) (string, error)
}

// Hub accepts websocket upgrades and tracks live connections so the
// cluster/events channels can broadcast to every subscriber. Also
// implements telemetry.Publisher.
type Hub struct {
	deps     Deps
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*Connection

	snapshot func(ctx context.Context) map[string]any
}

// NewHub constructs a Hub. snapshotFn builds the full cluster snapshot
// sent to a connection immediately after it connects.
func NewHub(deps Deps, snapshotFn func(ctx context.Context) map[string]any) *Hub {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Hub{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:    make(map[string]*Connection),
		snapshot: snapshotFn,
	}
}

// ServeHTTP upgrades the request to a websocket and runs the
// connection's lifecycle until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &Connection{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, 64),
		ctx:         ctx,
		cancel:      cancel,
		id:          uuid.NewString(),
		routerState: make(map[string]routerEntry),
	}

	h.register(c)
	defer h.unregister(c)

	c.run()
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()

	h.deps.Loop.DiscardSession(c.id)
	if h.deps.TTS != nil {
		h.deps.TTS.ReleaseSession(c.id)
	}
	c.mu.Lock()
	if c.terminalPTY != nil {
		_ = c.terminalPTY.Close()
	}
	c.mu.Unlock()
}

// Publish implements telemetry.Publisher: fan the named cluster event
// out to every live connection.
func (h *Hub) Publish(event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		c.sendEvent("cluster", event, payload)
	}
}

// BroadcastAlert pushes an events-channel notification to every live
// connection (spec.md §7's alert:notification on cluster degradation).
func (h *Hub) BroadcastAlert(payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		c.sendEvent("events", "alert:notification", payload)
	}
}
