package tts

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

type fakeEngine struct {
	name     string
	fail     bool
	calls    int32
	sleep    time.Duration
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Synthesize(ctx context.Context, text string) (Audio, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.sleep > 0 {
		select {
		case <-time.After(f.sleep):
		case <-ctx.Done():
			return Audio{}, ctx.Err()
		}
	}
	if f.fail {
		return Audio{}, errors.New("fake engine failure")
	}
	return Audio{Bytes: []byte("audio:" + f.name + ":" + text), ContentType: "audio/wav"}, nil
}

func (f *fakeEngine) Healthy(ctx context.Context) bool { return !f.fail }

func newTestPipeline(t *testing.T, primary, fallback Engine) *Pipeline {
	t.Helper()
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return NewPipeline(PipelineConfig{
		Primary:         primary,
		Fallback:        fallback,
		Cache:           cache,
		MaxConcurrency:  2,
		PrimaryDeadline: time.Second,
	})
}

func TestPipeline_UsesPrimaryWhenHealthy(t *testing.T) {
	primary := &fakeEngine{name: "primary"}
	fallback := &fakeEngine{name: "fallback"}
	p := newTestPipeline(t, primary, fallback)

	got, err := p.Synthesize(context.Background(), "sess1", models.SentenceChunk{Index: 0, Text: "hello"}, "alloy")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got.Bytes) != "audio:primary:hello" {
		t.Fatalf("expected primary engine output, got %q", got.Bytes)
	}
}

func TestPipeline_FallsBackOnPrimaryFailureAndLocksEngine(t *testing.T) {
	primary := &fakeEngine{name: "primary", fail: true}
	fallback := &fakeEngine{name: "fallback"}
	p := newTestPipeline(t, primary, fallback)

	first, err := p.Synthesize(context.Background(), "sess1", models.SentenceChunk{Index: 0, Text: "one"}, "alloy")
	if err != nil {
		t.Fatalf("Synthesize first: %v", err)
	}
	if string(first.Bytes) != "audio:fallback:one" {
		t.Fatalf("expected fallback output, got %q", first.Bytes)
	}

	// Second sentence of the SAME response must stay on fallback even
	// if nothing re-checks primary health, per "once fallback, always
	// fallback" for the response.
	second, err := p.Synthesize(context.Background(), "sess1", models.SentenceChunk{Index: 1, Text: "two"}, "alloy")
	if err != nil {
		t.Fatalf("Synthesize second: %v", err)
	}
	if string(second.Bytes) != "audio:fallback:two" {
		t.Fatalf("expected fallback output for second sentence of same session, got %q", second.Bytes)
	}
	if atomic.LoadInt32(&primary.calls) != 1 {
		t.Fatalf("expected primary to be tried exactly once before lockout, got %d calls", primary.calls)
	}
}

func TestPipeline_ReleaseSessionClearsEngineLock(t *testing.T) {
	primary := &fakeEngine{name: "primary", fail: true}
	fallback := &fakeEngine{name: "fallback"}
	p := newTestPipeline(t, primary, fallback)

	if _, err := p.Synthesize(context.Background(), "sess1", models.SentenceChunk{Index: 0, Text: "one"}, "alloy"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	p.ReleaseSession("sess1")

	lock := p.lockFor("sess1")
	lock.mu.Lock()
	fellBack := lock.fellBack
	lock.mu.Unlock()
	if fellBack {
		t.Fatalf("expected fresh session lock after ReleaseSession, still marked fallen back")
	}
}

func TestPipeline_CacheHitSkipsEngineCall(t *testing.T) {
	primary := &fakeEngine{name: "primary"}
	p := newTestPipeline(t, primary, nil)

	ctx := context.Background()
	chunk := models.SentenceChunk{Index: 0, Text: "repeat me"}
	if _, err := p.Synthesize(ctx, "sess1", chunk, "alloy"); err != nil {
		t.Fatalf("first synth: %v", err)
	}
	if _, err := p.Synthesize(ctx, "sess2", chunk, "alloy"); err != nil {
		t.Fatalf("second synth: %v", err)
	}
	if atomic.LoadInt32(&primary.calls) != 1 {
		t.Fatalf("expected cache hit to avoid second engine call, got %d calls", primary.calls)
	}
}

func TestPipeline_BoundsConcurrencyToMaxWorkers(t *testing.T) {
	primary := &fakeEngine{name: "primary", sleep: 50 * time.Millisecond}
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	p := NewPipeline(PipelineConfig{Primary: primary, Cache: cache, MaxConcurrency: 1, PrimaryDeadline: time.Second})

	start := time.Now()
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			_, _ = p.Synthesize(context.Background(), "sess1", models.SentenceChunk{Index: i, Text: string(rune('a' + i))}, "alloy")
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 3; i++ {
		<-done
	}
	elapsed := time.Since(start)
	if elapsed < 140*time.Millisecond {
		t.Fatalf("expected serialized execution with MaxConcurrency=1 to take >=150ms, took %v", elapsed)
	}
}
