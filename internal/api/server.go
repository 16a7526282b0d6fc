// Package api assembles the thin HTTP surface (spec.md §6): bearer-auth
// login, the tool catalog and execute endpoint, memory/preference CRUD,
// and binary proxies to the Frigate NVR. Handlers here are intentionally
// thin — all pipeline logic lives in internal/tooling, internal/storage,
// internal/router and friends — matching spec.md's framing of "thin HTTP
// handlers" as an excluded, ambient concern. Grounded on the teacher's
// internal/gateway/http_server.go: a single http.ServeMux, a
// Prometheus handler mounted alongside business routes, and an
// http.Server wrapped for graceful shutdown.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jarvis-homelab/jarvis/internal/auth"
	"github.com/jarvis-homelab/jarvis/internal/infra/frigate"
	"github.com/jarvis-homelab/jarvis/internal/realtime"
	"github.com/jarvis-homelab/jarvis/internal/storage"
	"github.com/jarvis-homelab/jarvis/internal/timing"
	"github.com/jarvis-homelab/jarvis/internal/tooling"
)

// Deps wires every dependency a handler needs. Fields are nil-checked
// independently so routes degrade gracefully when a collaborator isn't
// configured (e.g. no Frigate instance on this deployment).
type Deps struct {
	Auth     *auth.Service
	Store    storage.Store
	Registry *tooling.Registry
	Executor *tooling.Executor
	Frigate  *frigate.Client
	Prober   *timing.Prober
	Hub      *realtime.Hub
	Metrics  prometheus.Gatherer
	Logger   *slog.Logger

	OverrideKey     string
	ApprovalKeyword string
}

// Server wraps an http.Server with a listener, for symmetric start/stop
// from cmd/jarvis/serve.go's signal-driven teardown.
type Server struct {
	deps     Deps
	httpSrv  *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// New builds the full route table.
func New(deps Deps) *Server {
	mux := http.NewServeMux()

	gatherer := deps.Metrics
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/health", deps.handleHealth)
	mux.HandleFunc("/api/auth/login", deps.handleLogin)

	mux.HandleFunc("/api/memory/events", deps.handleEvents)
	mux.HandleFunc("/api/memory/events/unresolved", deps.handleUnresolvedEvents)
	mux.HandleFunc("/api/memory/preferences", deps.handlePreferences)
	mux.HandleFunc("/api/memory/preferences/", deps.handlePreferenceByKey)

	mux.HandleFunc("/api/tools", deps.handleListTools)
	mux.HandleFunc("/api/tools/execute", deps.handleExecuteTool)

	mux.HandleFunc("/api/costs", deps.handleCosts)

	mux.HandleFunc("/api/cameras/", deps.handleCameraSnapshot)
	mux.HandleFunc("/api/events", deps.handleListNVREvents)
	mux.HandleFunc("/api/events/", deps.handleNVREventMedia)

	if deps.Hub != nil {
		mux.Handle("/ws", deps.Hub)
	}

	var handler http.Handler = mux
	if deps.Auth != nil {
		handler = auth.Middleware(deps.Auth, deps.Logger)(handler)
	}

	return &Server{
		deps:   deps,
		logger: deps.Logger,
		httpSrv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds addr and begins serving in the background.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.httpSrv.Addr = addr

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Error("http server error", "error", err)
			}
		}
	}()
	if s.logger != nil {
		s.logger.Info("api server listening", "addr", addr)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
