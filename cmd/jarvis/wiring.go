package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jarvis-homelab/jarvis/internal/agent"
	"github.com/jarvis-homelab/jarvis/internal/api"
	"github.com/jarvis-homelab/jarvis/internal/auth"
	ctxmgr "github.com/jarvis-homelab/jarvis/internal/context"
	"github.com/jarvis-homelab/jarvis/internal/config"
	"github.com/jarvis-homelab/jarvis/internal/infra/frigate"
	"github.com/jarvis-homelab/jarvis/internal/infra/proxmox"
	"github.com/jarvis-homelab/jarvis/internal/infra/sshpool"
	"github.com/jarvis-homelab/jarvis/internal/models"
	"github.com/jarvis-homelab/jarvis/internal/observability"
	"github.com/jarvis-homelab/jarvis/internal/realtime"
	"github.com/jarvis-homelab/jarvis/internal/safety"
	"github.com/jarvis-homelab/jarvis/internal/security"
	"github.com/jarvis-homelab/jarvis/internal/storage"
	"github.com/jarvis-homelab/jarvis/internal/stt"
	"github.com/jarvis-homelab/jarvis/internal/telemetry"
	"github.com/jarvis-homelab/jarvis/internal/timing"
	"github.com/jarvis-homelab/jarvis/internal/tooling"
	"github.com/jarvis-homelab/jarvis/internal/tools"
	"github.com/jarvis-homelab/jarvis/internal/tts"
)

// app holds every long-lived component built at startup plus what is
// needed to tear them down cleanly. Construction follows the teacher's
// "global singletons, explicit construction, one-shot teardown" rule
// (spec.md §7): nothing here is a package-level var.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store     storage.Store
	sshPool   *sshpool.Pool
	proxmox   *proxmox.Client
	frigate   *frigate.Client
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	tracerFn  func(context.Context) error
	prober    *timing.Prober
	retention *storage.RetentionSweeper
	telemetry *telemetry.Emitter
	hub       *realtime.Hub
	apiServer *api.Server
	stt       *stt.Transcriber
}

// build wires every component named in SPEC_FULL.md §4 against cfg. It
// never starts background goroutines beyond what construction itself
// needs (e.g. the retention sweeper's own Run is started by the
// caller); returning early on any wiring failure so partially built
// resources don't leak past the caller's control.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	promReg := prometheus.NewRegistry()
	a.registry = promReg
	a.metrics = observability.NewMetrics(promReg)

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "jarvis",
		ServiceVersion: version,
		Environment:    "homelab",
		Endpoint:       cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSampling,
	})
	a.tracer = tracer
	a.tracerFn = shutdownTracer

	store, err := storage.OpenSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("wiring: storage: %w", err)
	}
	a.store = store
	a.retention = storage.NewRetentionSweeper(store, retentionInterval, retentionMaxAge, logger)

	if cfg.SSHKeyPath != "" {
		pool, err := sshpool.New(cfg.SSHKeyPath)
		if err != nil {
			return nil, fmt.Errorf("wiring: ssh pool: %w", err)
		}
		a.sshPool = pool
	}

	var pve *proxmox.Client
	if cfg.PVETokenSecret != "" {
		pve = proxmox.New(proxmox.Config{
			BaseURL:            cfg.PVEBaseURL,
			TokenID:            cfg.PVETokenID,
			TokenSecret:        cfg.PVETokenSecret,
			InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
		})
	}
	a.proxmox = pve

	a.frigate = frigate.New(frigate.Config{BaseURL: cfg.FrigateBaseURL})

	registry := tooling.NewRegistry()
	if err := tools.Register(registry, tools.Deps{Proxmox: a.proxmox, SSH: a.sshPool, NodeHosts: cfg.NodeHosts}); err != nil {
		return nil, fmt.Errorf("wiring: tool catalog: %w", err)
	}

	protected := protectedResourcesFromConfig(cfg)
	policy := safety.NewPolicy(protected, cfg.ApprovalKeyword)
	executor := tooling.NewExecutor(registry, policy, nil, a.tracer)
	loop := agent.NewLoop(registry, executor, policy, a.tracer)

	agenticProvider, err := buildAgenticProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("wiring: agentic provider: %w", err)
	}
	conversationalProvider, err := buildConversationalProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("wiring: conversational provider: %w", err)
	}

	contextManager := ctxmgr.NewManager(contextTokenBudget, summarizerFor(conversationalProvider), logger)

	ttsCache, err := tts.NewCache(cfg.TTSCacheDir)
	if err != nil {
		return nil, fmt.Errorf("wiring: tts cache: %w", err)
	}
	primaryEngine := tts.NewOpenAIEngine(tts.OpenAIEngineConfig{BaseURL: cfg.TTSPrimaryEndpoint})
	fallbackEngine := tts.NewEdgeEngine(tts.EdgeEngineConfig{BaseURL: cfg.TTSFallbackEndpoint})
	ttsPipeline := tts.NewPipeline(tts.PipelineConfig{
		Primary:        primaryEngine,
		Fallback:       fallbackEngine,
		Cache:          ttsCache,
		MaxConcurrency: cfg.TTSMaxParallel,
		Logger:         logger,
	})
	authSvc := auth.NewService(cfg.JWTSecret, cfg.Password, config.TokenExpiry)

	if cfg.STTEndpoint != "" {
		transcriber, err := stt.New(stt.Config{BaseURL: cfg.STTEndpoint})
		if err != nil {
			return nil, fmt.Errorf("wiring: stt: %w", err)
		}
		a.stt = transcriber
	}

	var transcriber realtime.Transcriber
	if a.stt != nil {
		transcriber = a.stt
	}
	hub := realtime.NewHub(realtime.Deps{
		Loop:                       loop,
		Registry:                   registry,
		Agentic:                    agenticProvider,
		Conversational:             conversationalProvider,
		Context:                    contextManager,
		TTS:                        ttsPipeline,
		STT:                        transcriber,
		SSH:                        a.sshPool,
		Store:                      store,
		NodeHosts:                  cfg.NodeHosts,
		OverrideKey:                cfg.OverrideKey,
		ApprovalKeyword:            cfg.ApprovalKeyword,
		SystemPromptAgentic:        systemPromptAgentic,
		SystemPromptConversational: systemPromptConversational,
		Logger:                     logger,
	}, clusterSnapshotFn(pve))
	a.hub = hub

	if pve != nil {
		a.telemetry = telemetry.NewEmitter(pve, hub, nil, promReg, logger)
	}

	prober := timing.NewProber()
	if a.proxmox != nil {
		prober.Register("proxmox", func(ctx context.Context) error {
			_, err := a.proxmox.ClusterStatus(ctx)
			return err
		})
	}
	prober.Register("storage", func(ctx context.Context) error {
		_, err := store.GetPreference(ctx, "__health_probe__")
		if err != nil && err != storage.ErrNotFound {
			return err
		}
		return nil
	})
	a.prober = prober

	report := security.Run(cfg)
	for _, finding := range report.Findings {
		logger.Warn("security finding", "check", finding.CheckID, "severity", finding.Severity, "title", finding.Title)
	}

	a.apiServer = api.New(api.Deps{
		Auth:            authSvc,
		Store:           store,
		Registry:        registry,
		Executor:        executor,
		Frigate:         a.frigate,
		Prober:          prober,
		Hub:             hub,
		Metrics:         promReg,
		Logger:          logger,
		OverrideKey:     cfg.OverrideKey,
		ApprovalKeyword: cfg.ApprovalKeyword,
	})

	return a, nil
}

// shutdown tears down every resource build opened, logging failures
// rather than aborting partway (every component gets a chance to close).
func (a *app) shutdown(ctx context.Context) {
	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(ctx); err != nil {
			a.logger.Error("api server shutdown failed", "error", err)
		}
	}
	if a.sshPool != nil {
		a.sshPool.CloseAll()
	}
	if closer, ok := a.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.logger.Error("storage close failed", "error", err)
		}
	}
	if a.tracerFn != nil {
		if err := a.tracerFn(ctx); err != nil {
			a.logger.Error("tracer shutdown failed", "error", err)
		}
	}
}

// clusterSnapshotFn builds the one-shot snapshot realtime.Hub sends a
// newly connected "cluster" subscriber (spec.md §4.12: "On cluster
// subscriber connect, emits a full snapshot"). Returns an empty
// snapshot when no Proxmox client is configured rather than failing
// the connection.
func clusterSnapshotFn(pve *proxmox.Client) func(ctx context.Context) map[string]any {
	return func(ctx context.Context) map[string]any {
		if pve == nil {
			return map[string]any{}
		}
		resources, err := pve.ClusterResources(ctx)
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		status, err := pve.ClusterStatus(ctx)
		if err != nil {
			return map[string]any{"resources": resources, "error": err.Error()}
		}
		return map[string]any{"resources": resources, "status": status}
	}
}

// protectedResourcesFromConfig builds the PROTECTED set C1 checks every
// tool argument against, from the PROTECTED_* environment lists.
func protectedResourcesFromConfig(cfg *config.Config) models.ProtectedResource {
	nodes := make(map[string]struct{}, len(cfg.ProtectedNodes))
	for _, n := range cfg.ProtectedNodes {
		nodes[n] = struct{}{}
	}
	vmids := make(map[int]struct{}, len(cfg.ProtectedVMIDs))
	for _, v := range cfg.ProtectedVMIDs {
		vmids[v] = struct{}{}
	}
	services := make(map[string]struct{}, len(cfg.ProtectedServices))
	for _, s := range cfg.ProtectedServices {
		services[s] = struct{}{}
	}
	ips := make(map[string]struct{}, len(cfg.ProtectedIPs))
	for _, ip := range cfg.ProtectedIPs {
		ips[ip] = struct{}{}
	}
	return models.ProtectedResource{Nodes: nodes, VMIDs: vmids, Services: services, IPs: ips}
}
