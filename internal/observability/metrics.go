package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide Prometheus registration for this
// system's hot paths: LLM calls, tool execution, TTS synthesis, and
// the HTTP API. Narrowed from the teacher's channel/webhook/database
// metric surface (Metrics.MessageCounter, WebhookReceived, ...) down
// to what this system actually drives.
type Metrics struct {
	LLMRequestDuration *prometheus.HistogramVec
	LLMRequestCounter  *prometheus.CounterVec
	LLMTokensUsed      *prometheus.CounterVec

	ToolExecutionDuration *prometheus.HistogramVec
	ToolExecutionCounter  *prometheus.CounterVec

	TTSSynthesisDuration *prometheus.HistogramVec
	TTSSynthesisCounter  *prometheus.CounterVec
	TTSEngineFallbacks   *prometheus.CounterVec

	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestCounter  *prometheus.CounterVec

	ErrorCounter *prometheus.CounterVec
}

// NewMetrics registers every metric against reg. Pass
// prometheus.DefaultRegisterer in production, or a fresh
// prometheus.NewRegistry() in tests to avoid duplicate-registration
// panics across test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jarvis_llm_request_duration_seconds",
			Help:    "LLM provider call latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "kind"}),
		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_llm_requests_total",
			Help: "LLM provider calls by outcome.",
		}, []string{"provider", "kind", "status"}),
		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_llm_tokens_total",
			Help: "Token consumption by provider and direction.",
		}, []string{"provider", "direction"}),

		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jarvis_tool_execution_duration_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),
		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_tool_executions_total",
			Help: "Tool executions by outcome.",
		}, []string{"tool_name", "status"}),

		TTSSynthesisDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jarvis_tts_synthesis_duration_seconds",
			Help:    "TTS synthesis latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}, []string{"engine"}),
		TTSSynthesisCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_tts_syntheses_total",
			Help: "TTS syntheses by engine and outcome.",
		}, []string{"engine", "status"}),
		TTSEngineFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_tts_engine_fallbacks_total",
			Help: "Count of responses whose engine lock fell back from primary.",
		}, []string{"reason"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jarvis_http_request_duration_seconds",
			Help:    "HTTP API request latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path", "status_code"}),
		HTTPRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_http_requests_total",
			Help: "HTTP API requests.",
		}, []string{"method", "path", "status_code"}),

		ErrorCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_errors_total",
			Help: "Errors by originating component and error kind.",
		}, []string{"component", "error_kind"}),
	}
}
