package timing

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// ProbeFunc checks one dependency's reachability. A nil error means up.
type ProbeFunc func(ctx context.Context) error

// ComponentReport is one probed dependency's outcome.
type ComponentReport struct {
	Status     string `json:"status"`
	ResponseMs int64  `json:"responseMs"`
	Error      string `json:"error,omitempty"`
}

// Prober runs named component probes concurrently for the full
// /health report. Probes are fanned out with a plain sync.WaitGroup
// rather than golang.org/x/sync/errgroup: no teacher file imports
// errgroup, and this fan-out doesn't need its cancel-on-first-error
// behavior — every probe always runs and always reports, a failing
// probe must not hide the others' state.
type Prober struct {
	mu     sync.RWMutex
	probes map[string]ProbeFunc
}

// NewProber constructs an empty Prober; register components with Register.
func NewProber() *Prober {
	return &Prober{probes: make(map[string]ProbeFunc)}
}

// Register adds a named probe (TTS, LLM, persistence, Proxmox, ...).
func (p *Prober) Register(name string, fn ProbeFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes[name] = fn
}

// Check runs every registered probe concurrently with a shared
// deadline and returns each component's report plus the overall
// up/down verdict.
func (p *Prober) Check(ctx context.Context, timeout time.Duration) (map[string]ComponentReport, bool) {
	p.mu.RLock()
	probes := make(map[string]ProbeFunc, len(p.probes))
	for name, fn := range p.probes {
		probes[name] = fn
	}
	p.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reports := make(map[string]ComponentReport, len(probes))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, fn := range probes {
		wg.Add(1)
		go func(name string, fn ProbeFunc) {
			defer wg.Done()
			start := time.Now()
			err := fn(ctx)
			report := ComponentReport{ResponseMs: time.Since(start).Milliseconds()}
			if err != nil {
				report.Status = "down"
				report.Error = err.Error()
			} else {
				report.Status = "up"
			}
			mu.Lock()
			reports[name] = report
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	allUp := true
	for _, r := range reports {
		if r.Status != "up" {
			allUp = false
			break
		}
	}
	return reports, allUp
}

// Handler serves GET /api/health: ?liveness is a fast path that
// answers 200 without touching any dependency; otherwise every
// registered probe runs and the response is 200 only if all are up.
func (p *Prober) Handler(timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Has("liveness") {
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "up"})
			return
		}

		reports, allUp := p.Check(r.Context(), timeout)
		status := http.StatusOK
		if !allUp {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"components": reports})
	}
}
