package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersWithoutPanicking(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	if m.LLMRequestCounter == nil {
		t.Fatal("expected LLMRequestCounter to be constructed")
	}
}

func TestMetrics_CounterIncrementIsObservable(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ToolExecutionCounter.WithLabelValues("proxmox_vm_start", "success").Inc()
	m.ToolExecutionCounter.WithLabelValues("proxmox_vm_start", "success").Inc()
	m.ToolExecutionCounter.WithLabelValues("ssh_exec", "error").Inc()

	if count := testutil.CollectAndCount(m.ToolExecutionCounter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
}

func TestMetrics_HistogramObserveDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.TTSSynthesisDuration.WithLabelValues("openai").Observe(0.42)
}
