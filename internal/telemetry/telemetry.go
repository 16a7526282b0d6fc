// Package telemetry implements the telemetry emitter (C13): staggered
// interval pollers over the Proxmox cluster, each independently
// error-boundary-wrapped so one failing poller never stalls the
// others. Grounded on the teacher's internal/cron/scheduler.go
// per-job goroutine+ticker pattern, narrowed from cron-expression jobs
// down to the fixed-interval pollers spec.md §4.13 names.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/infra/proxmox"
	"github.com/jarvis-homelab/jarvis/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Publisher fans out one named event with its payload to cluster-channel
// subscribers. Implemented by internal/realtime's Hub; telemetry never
// imports realtime directly so the dependency only runs one direction.
type Publisher interface {
	Publish(event string, payload any)
}

// VoiceAgentLister reports the live voice sessions, used by the
// voice-agents poller.
type VoiceAgentLister func() []models.VoiceAgent

// pollerSpec is one named, intervaled unit of work.
type pollerSpec struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

// Emitter drives the pollers for the lifetime of the process.
type Emitter struct {
	client    *proxmox.Client
	publisher Publisher
	agents    VoiceAgentLister
	logger    *slog.Logger

	pollDuration *prometheus.HistogramVec
	pollFailures *prometheus.CounterVec
}

// NewEmitter constructs an Emitter. agents may be nil if no voice
// sessions are tracked yet.
func NewEmitter(client *proxmox.Client, publisher Publisher, agents VoiceAgentLister, registry prometheus.Registerer, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Emitter{
		client: client, publisher: publisher, agents: agents, logger: logger.With("component", "telemetry"),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "jarvis_telemetry_poll_duration_seconds",
			Help: "Duration of each telemetry poller run.",
		}, []string{"poller"}),
		pollFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_telemetry_poll_failures_total",
			Help: "Count of telemetry poller failures.",
		}, []string{"poller"}),
	}
	if registry != nil {
		registry.MustRegister(e.pollDuration, e.pollFailures)
	}
	return e
}

// Run starts every poller as its own goroutine and blocks until ctx is
// cancelled, at which point every poller stops.
func (e *Emitter) Run(ctx context.Context) {
	specs := []pollerSpec{
		{"nodes", 10 * time.Second, e.pollNodes},
		{"quorum", 10 * time.Second, e.pollQuorum},
		{"vms", 15 * time.Second, e.pollVMs},
		{"storage", 30 * time.Second, e.pollStorage},
		{"temperature", 30 * time.Second, e.pollTemperature},
		{"voice_agents", 10 * time.Second, e.pollVoiceAgents},
	}
	for _, spec := range specs {
		go e.run(ctx, spec)
	}
	<-ctx.Done()
}

// Snapshot publishes an immediate full snapshot by running every poller
// once (spec.md §4.13). The realtime hub's on-connect snapshot does not
// use it; that one is built by clusterSnapshotFn in cmd/jarvis.
func (e *Emitter) Snapshot(ctx context.Context) {
	for _, fn := range []func(context.Context) error{
		e.pollNodes, e.pollQuorum, e.pollVMs, e.pollStorage, e.pollTemperature, e.pollVoiceAgents,
	} {
		_ = fn(ctx)
	}
}

// run wraps one poller spec in a ticker loop with a recover boundary:
// a panic or error in one poller is logged and never propagates, and
// never stalls the others' tickers.
func (e *Emitter) run(ctx context.Context, spec pollerSpec) {
	ticker := time.NewTicker(spec.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.safeRun(ctx, spec)
		}
	}
}

func (e *Emitter) safeRun(ctx context.Context, spec pollerSpec) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("telemetry poller panicked", "poller", spec.name, "recover", r)
			e.pollFailures.WithLabelValues(spec.name).Inc()
		}
	}()
	start := time.Now()
	if err := spec.fn(ctx); err != nil {
		e.logger.Warn("telemetry poller failed", "poller", spec.name, "error", err)
		e.pollFailures.WithLabelValues(spec.name).Inc()
	}
	e.pollDuration.WithLabelValues(spec.name).Observe(time.Since(start).Seconds())
}

func (e *Emitter) pollNodes(ctx context.Context) error {
	resources, err := e.client.ClusterResources(ctx)
	if err != nil {
		return err
	}
	nodes := make([]proxmox.ClusterResource, 0)
	for _, r := range resources {
		if r.Type == "node" {
			nodes = append(nodes, r)
		}
	}
	e.publisher.Publish("nodes", nodes)
	return nil
}

func (e *Emitter) pollQuorum(ctx context.Context) error {
	status, err := e.client.ClusterStatus(ctx)
	if err != nil {
		return err
	}
	e.publisher.Publish("quorum", status)
	return nil
}

func (e *Emitter) pollVMs(ctx context.Context) error {
	resources, err := e.client.ClusterResources(ctx)
	if err != nil {
		return err
	}
	vms := make([]proxmox.ClusterResource, 0)
	for _, r := range resources {
		if r.Type == "qemu" || r.Type == "lxc" {
			vms = append(vms, r)
		}
	}
	e.publisher.Publish("vms", vms)
	return nil
}

func (e *Emitter) pollStorage(ctx context.Context) error {
	resources, err := e.client.ClusterResources(ctx)
	if err != nil {
		return err
	}
	storage := make([]proxmox.ClusterResource, 0)
	for _, r := range resources {
		if r.Type == "storage" {
			storage = append(storage, r)
		}
	}
	e.publisher.Publish("storage", storage)
	return nil
}

func (e *Emitter) pollTemperature(ctx context.Context) error {
	status, err := e.client.ClusterStatus(ctx)
	if err != nil {
		return err
	}
	readings := make(map[string]proxmox.NodeStatus, len(status))
	for _, entry := range status {
		if entry.Type != "node" || !entry.Online {
			continue
		}
		ns, err := e.client.NodeStatus(ctx, entry.Name)
		if err != nil {
			e.logger.Warn("node status fetch failed", "node", entry.Name, "error", err)
			continue
		}
		readings[entry.Name] = ns
	}
	e.publisher.Publish("temperature", readings)
	return nil
}

func (e *Emitter) pollVoiceAgents(_ context.Context) error {
	if e.agents == nil {
		return nil
	}
	e.publisher.Publish("voice_agents", e.agents())
	return nil
}
