package tts

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Primary    Engine
	Fallback   Engine
	Cache      *Cache
	// MaxConcurrency bounds synthesis workers, adapted from the
	// teacher's ExecutorConfig.MaxConcurrency / sem chan struct{}
	// backpressure idiom.
	MaxConcurrency int
	// PrimaryDeadline bounds how long one synthesis attempt waits on
	// the primary engine before the fallback ladder proceeds.
	PrimaryDeadline time.Duration
	// CooldownAfterFailure gates how soon a failed engine is retried
	// once it has been locked out for a response.
	CooldownAfterFailure time.Duration
	// OpusPath is the path to an opus transcoder binary (e.g. opusenc).
	// Empty disables transcoding.
	OpusPath string
	Logger   *slog.Logger
}

func (c *PipelineConfig) applyDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 2
	}
	if c.PrimaryDeadline <= 0 {
		c.PrimaryDeadline = 6 * time.Second
	}
	if c.CooldownAfterFailure <= 0 {
		c.CooldownAfterFailure = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// sessionLock tracks the "once fallback, always fallback" rule for one
// voice response: once a response has fallen back to the secondary
// engine, every remaining sentence of that same response uses the
// fallback engine too, so a single response never mixes two voices.
// It is scoped to a single response (keyed by the caller's sessionID
// for the duration of one Run, then released via ReleaseSession once
// that response completes) rather than the lifetime of the socket, so
// a transient primary failure early in a session doesn't pin every
// later response to the fallback voice.
type sessionLock struct {
	mu       sync.Mutex
	fellBack bool
}

// Pipeline synthesizes sentence chunks into audio chunks with caching,
// bounded concurrency, and engine fallback.
type Pipeline struct {
	cfg PipelineConfig

	sem chan struct{}

	mu             sync.Mutex
	sessionLocks   map[string]*sessionLock
	primaryDownAt  time.Time
	primaryHealthy bool
}

// NewPipeline constructs a Pipeline. cfg.Primary and cfg.Cache are
// required; cfg.Fallback may be nil to disable the fallback ladder.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		cfg:            cfg,
		sem:            make(chan struct{}, cfg.MaxConcurrency),
		sessionLocks:   make(map[string]*sessionLock),
		primaryHealthy: true,
	}
}

// Synthesize converts one sentence chunk into an audio chunk, checking
// the cache, then the fallback ladder: primary-with-deadline, then
// cached-primary-fallback (if a previous identical text was cached
// under the primary engine, reuse it rather than re-dialing), then the
// fallback engine. Blocks on the bounded worker semaphore.
func (p *Pipeline) Synthesize(ctx context.Context, sessionID string, chunk models.SentenceChunk, voice string) (models.AudioChunk, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return models.AudioChunk{}, ctx.Err()
	}

	lock := p.lockFor(sessionID)
	lock.mu.Lock()
	useFallback := lock.fellBack
	lock.mu.Unlock()

	engine := p.cfg.Primary
	if useFallback || !p.isPrimaryHealthy() {
		engine = p.selectFallback()
	}

	// cached-primary-fallback: an unhealthy primary still serves audio it
	// cached earlier, unless this response is already locked to fallback.
	if engine != p.cfg.Primary && !useFallback {
		if cached, ok := p.cfg.Cache.Get(p.cfg.Primary.Name(), CacheKey(p.cfg.Primary.Name(), voice, chunk.Text)); ok {
			return models.AudioChunk{SessionID: sessionID, Index: chunk.Index, ContentType: cached.ContentType, Bytes: cached.Bytes}, nil
		}
	}

	key := CacheKey(engine.Name(), voice, chunk.Text)
	if cached, ok := p.cfg.Cache.Get(engine.Name(), key); ok {
		return models.AudioChunk{SessionID: sessionID, Index: chunk.Index, ContentType: cached.ContentType, Bytes: cached.Bytes}, nil
	}

	audio, produced, err := p.synthesizeWithLadder(ctx, engine, chunk.Text, lock)
	if err != nil {
		return models.AudioChunk{}, err
	}

	// Cache under the engine that actually produced the bytes, not the
	// engine originally selected: if this call fell back mid-ladder,
	// writing fallback audio under the primary's key/name would poison
	// later primary-path lookups (I4's engine-prefix guarantee).
	producedKey := key
	if produced != engine {
		producedKey = CacheKey(produced.Name(), voice, chunk.Text)
	}
	if putErr := p.cfg.Cache.Put(produced.Name(), producedKey, audio); putErr != nil {
		p.cfg.Logger.Warn("tts cache write failed", "engine", produced.Name(), "error", putErr)
	}
	return models.AudioChunk{SessionID: sessionID, Index: chunk.Index, ContentType: audio.ContentType, Bytes: audio.Bytes}, nil
}

// synthesizeWithLadder runs engine, falling back to cfg.Fallback when
// engine is the primary and it fails within its deadline. Returns the
// engine that actually produced the audio alongside the result, since
// that may differ from the engine the caller selected.
func (p *Pipeline) synthesizeWithLadder(ctx context.Context, engine Engine, text string, lock *sessionLock) (Audio, Engine, error) {
	if engine == p.cfg.Primary {
		dctx, cancel := context.WithTimeout(ctx, p.cfg.PrimaryDeadline)
		audio, err := p.cfg.Primary.Synthesize(dctx, text)
		cancel()
		if err == nil {
			return audio, p.cfg.Primary, nil
		}
		p.cfg.Logger.Warn("primary tts engine failed, falling back", "error", err)
		p.markPrimaryDown()

		lock.mu.Lock()
		lock.fellBack = true
		lock.mu.Unlock()

		if p.cfg.Fallback == nil {
			return Audio{}, engine, err
		}
		audio, err = p.cfg.Fallback.Synthesize(ctx, text)
		return audio, p.cfg.Fallback, err
	}
	audio, err := engine.Synthesize(ctx, text)
	return audio, engine, err
}

func (p *Pipeline) selectFallback() Engine {
	if p.cfg.Fallback != nil {
		return p.cfg.Fallback
	}
	return p.cfg.Primary
}

func (p *Pipeline) lockFor(sessionID string) *sessionLock {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.sessionLocks[sessionID]
	if !ok {
		l = &sessionLock{}
		p.sessionLocks[sessionID] = l
	}
	return l
}

// ReleaseSession drops the engine lock for a finished response. Callers
// invoke this once their response's OnDone/OnError fires (chat.go,
// voice.go) so the lock never outlives the response it guards; hub.go
// also calls it on socket disconnect as a backstop for a response that
// never reached a terminal callback.
func (p *Pipeline) ReleaseSession(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessionLocks, sessionID)
}

func (p *Pipeline) markPrimaryDown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.primaryHealthy = false
	p.primaryDownAt = time.Now()
}

func (p *Pipeline) isPrimaryHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.primaryHealthy {
		return true
	}
	return time.Since(p.primaryDownAt) > p.cfg.CooldownAfterFailure
}

// ProbeHealth restores the primary engine once its cooldown has
// elapsed and a live health check succeeds. Intended to be called
// periodically from a background ticker.
func (p *Pipeline) ProbeHealth(ctx context.Context) {
	p.mu.Lock()
	healthy := p.primaryHealthy
	downAt := p.primaryDownAt
	p.mu.Unlock()
	if healthy || time.Since(downAt) < p.cfg.CooldownAfterFailure {
		return
	}
	if p.cfg.Primary.Healthy(ctx) {
		p.mu.Lock()
		p.primaryHealthy = true
		p.mu.Unlock()
		p.cfg.Logger.Info("primary tts engine recovered")
	}
}

// PreWarm synthesizes a fixed set of common phrases at startup so the
// cache is warm before the first real voice session, absorbing engine
// cold-start latency outside the request path. Runs serially: it is
// meant to finish within a short grace period before traffic arrives,
// not to compete with in-flight requests for worker slots.
func (p *Pipeline) PreWarm(ctx context.Context, phrases []string, voice string) {
	for _, phrase := range phrases {
		key := CacheKey(p.cfg.Primary.Name(), voice, phrase)
		if _, ok := p.cfg.Cache.Get(p.cfg.Primary.Name(), key); ok {
			continue
		}
		dctx, cancel := context.WithTimeout(ctx, p.cfg.PrimaryDeadline)
		audio, err := p.cfg.Primary.Synthesize(dctx, phrase)
		cancel()
		if err != nil {
			p.cfg.Logger.Warn("tts prewarm failed", "phrase", phrase, "error", err)
			continue
		}
		if err := p.cfg.Cache.Put(p.cfg.Primary.Name(), key, audio); err != nil {
			p.cfg.Logger.Warn("tts prewarm cache write failed", "error", err)
		}
	}
}

// TranscodeToOpus converts wav bytes to Opus via an external encoder
// when configured. Failure is non-fatal: callers fall back to the
// original audio.
func TranscodeToOpus(ctx context.Context, opusPath string, wav []byte, outPath string) error {
	if opusPath == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, opusPath, "--quiet", "-", outPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	if _, err := stdin.Write(wav); err != nil {
		stdin.Close()
		_ = cmd.Wait()
		return err
	}
	stdin.Close()
	return cmd.Wait()
}
