package timing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTrace_MarkIsMonotonicAndIdempotent(t *testing.T) {
	tr := NewTrace()
	time.Sleep(5 * time.Millisecond)
	tr.Mark(MarkRouted)
	time.Sleep(5 * time.Millisecond)
	tr.Mark(MarkRouted) // should be a no-op, first writer wins
	time.Sleep(5 * time.Millisecond)
	tr.Mark(MarkFirstToken)

	bd := tr.Breakdown()
	if bd[string(MarkRouted)] <= 0 {
		t.Fatalf("expected route mark > 0ms, got %d", bd[string(MarkRouted)])
	}
	if bd[string(MarkFirstToken)] <= bd[string(MarkRouted)] {
		t.Fatalf("expected first_token mark after route mark")
	}
}

func TestTrace_SummaryFormat(t *testing.T) {
	tr := NewTrace()
	tr.Mark(MarkRouted)
	tr.Mark(MarkFirstToken)
	tr.Mark(MarkTTSFirst)

	s := tr.Summary()
	for _, want := range []string{"[Timing]", "route=", "first_token=", "tts_first=", "total="} {
		if !strings.Contains(s, want) {
			t.Errorf("summary %q missing %q", s, want)
		}
	}
}

func TestProber_AllUpReturnsTrue(t *testing.T) {
	p := NewProber()
	p.Register("tts", func(context.Context) error { return nil })
	p.Register("llm", func(context.Context) error { return nil })

	reports, allUp := p.Check(context.Background(), time.Second)
	if !allUp {
		t.Fatalf("expected allUp=true, got reports=%+v", reports)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 component reports, got %d", len(reports))
	}
}

func TestProber_OneDownMakesOverallDown(t *testing.T) {
	p := NewProber()
	p.Register("tts", func(context.Context) error { return nil })
	p.Register("proxmox", func(context.Context) error { return errors.New("unreachable") })

	reports, allUp := p.Check(context.Background(), time.Second)
	if allUp {
		t.Fatalf("expected allUp=false when one probe fails")
	}
	if reports["proxmox"].Status != "down" {
		t.Errorf("expected proxmox status down, got %q", reports["proxmox"].Status)
	}
	if reports["tts"].Status != "up" {
		t.Errorf("expected tts status up despite proxmox failure, got %q", reports["tts"].Status)
	}
}

func TestProber_SlowProbeDoesNotBlockOthers(t *testing.T) {
	p := NewProber()
	p.Register("slow", func(ctx context.Context) error {
		select {
		case <-time.After(50 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	p.Register("fast", func(context.Context) error { return nil })

	start := time.Now()
	reports, _ := p.Check(context.Background(), time.Second)
	elapsed := time.Since(start)

	if elapsed >= 100*time.Millisecond {
		t.Fatalf("expected concurrent probes to finish near the slowest one, took %s", elapsed)
	}
	if reports["fast"].ResponseMs > reports["slow"].ResponseMs {
		t.Errorf("expected fast probe to report a smaller duration than slow probe")
	}
}
