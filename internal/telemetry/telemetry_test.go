package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/infra/proxmox"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(event string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == event {
			n++
		}
	}
	return n
}

func newFakeProxmox(t *testing.T, failQuorum bool) *proxmox.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cluster/resources":
			w.Write([]byte(`{"data":[{"id":"node/pve1","type":"node","node":"pve1","status":"online"}]}`))
		case "/cluster/status":
			if failQuorum {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"data":[{"type":"node","id":"node/pve1","name":"pve1","online":true,"quorate":true}]}`))
		default:
			w.Write([]byte(`{"data":{}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return proxmox.New(proxmox.Config{BaseURL: srv.URL, TokenID: "t", TokenSecret: "s"})
}

func TestEmitter_PublishesEachPollerIndependently(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(newFakeProxmox(t, false), pub, nil, nil, nil)
	e.Snapshot(context.Background())

	for _, event := range []string{"nodes", "quorum", "vms", "storage", "temperature"} {
		if pub.count(event) == 0 {
			t.Errorf("expected at least one %q publish from Snapshot", event)
		}
	}
}

func TestEmitter_OneFailingPollerDoesNotBlockOthers(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(newFakeProxmox(t, true), pub, nil, nil, nil)
	e.Snapshot(context.Background())

	if pub.count("quorum") != 0 {
		t.Fatalf("expected quorum publish to be skipped on failure")
	}
	if pub.count("nodes") == 0 {
		t.Fatalf("expected nodes poller to still publish despite quorum failure")
	}
}

func TestEmitter_VoiceAgentsPollerIsOptional(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(newFakeProxmox(t, false), pub, nil, nil, nil)
	if err := e.pollVoiceAgents(context.Background()); err != nil {
		t.Fatalf("expected nil lister to be a no-op, got error: %v", err)
	}
}

func TestEmitter_RunStopsOnContextCancel(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(newFakeProxmox(t, false), pub, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to return promptly after context cancellation")
	}
}
