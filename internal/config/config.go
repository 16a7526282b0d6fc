// Package config loads JARVIS runtime configuration from environment
// variables, matching the recognized options in spec.md §6.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, assembled once at startup
// and passed explicitly into every component (no package-level globals).
type Config struct {
	Port        string
	JWTSecret   string
	Password    string
	OverrideKey string
	ApprovalKeyword string

	PVEBaseURL     string
	PVETokenID     string
	PVETokenSecret string
	DBPath         string
	SSHKeyPath     string

	ProtectedNodes    []string
	ProtectedVMIDs    []int
	ProtectedServices []string
	ProtectedIPs      []string

	TTSPrimaryEndpoint  string
	TTSFallbackEndpoint string
	STTEndpoint         string
	LLMConvEndpoint     string
	LLMAgenticAPIKey    string

	// AgenticProvider selects the C7 agentic backend: "anthropic" (default)
	// or "bedrock".
	AgenticProvider string
	AnthropicModel  string
	BedrockRegion   string
	BedrockModel    string

	// ConversationalProvider selects the C7 conversational backend:
	// "openai" (the local llama.cpp-compatible endpoint, default) or
	// "genai".
	ConversationalProvider string
	OpenAIModel            string
	GenAIAPIKey            string
	GenAIModel             string

	OpusEnabled bool
	OpusBitrate int

	TTSCacheDir    string
	TTSCacheMax    int
	TTSMaxParallel int

	CORSOrigins []string

	TLSInsecureSkipVerify bool

	FrigateBaseURL string

	// NodeHosts maps a Proxmox node name to its SSH-reachable host
	// ("pve=10.0.0.10,pve2=10.0.0.11"), shared by the ssh_exec/
	// service_restart tools and the terminal channel (spec.md §4.12).
	NodeHosts map[string]string

	TracingEndpoint string
	TracingSampling float64
}

// Load reads Config from the process environment, applying the defaults
// documented in spec.md §4 and §6.
func Load() (*Config, error) {
	c := &Config{
		Port:                  getEnv("PORT", "8080"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		Password:              os.Getenv("JARVIS_PASSWORD"),
		OverrideKey:           os.Getenv("OVERRIDE_KEY"),
		ApprovalKeyword:       getEnv("APPROVAL_KEYWORD", "confirmed"),
		PVEBaseURL:            os.Getenv("PVE_BASE_URL"),
		PVETokenID:            os.Getenv("PVE_TOKEN_ID"),
		PVETokenSecret:        os.Getenv("PVE_TOKEN_SECRET"),
		DBPath:                getEnv("DB_PATH", "./jarvis.db"),
		SSHKeyPath:            os.Getenv("SSH_KEY_PATH"),
		ProtectedNodes:        splitCSV(os.Getenv("PROTECTED_NODES")),
		ProtectedVMIDs:        splitCSVInts(os.Getenv("PROTECTED_VMIDS")),
		ProtectedServices:     splitCSV(os.Getenv("PROTECTED_SERVICES")),
		ProtectedIPs:          splitCSV(os.Getenv("PROTECTED_IPS")),
		TTSPrimaryEndpoint:    os.Getenv("TTS_PRIMARY_ENDPOINT"),
		TTSFallbackEndpoint:   os.Getenv("TTS_FALLBACK_ENDPOINT"),
		STTEndpoint:           os.Getenv("STT_ENDPOINT"),
		LLMConvEndpoint:        os.Getenv("LLM_CONV_ENDPOINT"),
		LLMAgenticAPIKey:       os.Getenv("LLM_AGENTIC_API_KEY"),
		AgenticProvider:        getEnv("LLM_AGENTIC_PROVIDER", "anthropic"),
		AnthropicModel:         getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		BedrockRegion:          os.Getenv("BEDROCK_REGION"),
		BedrockModel:           os.Getenv("BEDROCK_MODEL"),
		ConversationalProvider: getEnv("LLM_CONVERSATIONAL_PROVIDER", "openai"),
		OpenAIModel:            getEnv("LLM_CONV_MODEL", "local"),
		GenAIAPIKey:            os.Getenv("GENAI_API_KEY"),
		GenAIModel:             getEnv("GENAI_MODEL", "gemini-2.0-flash"),
		OpusEnabled:            getBool("OPUS_ENABLED", false),
		OpusBitrate:            getInt("OPUS_BITRATE", 32000),
		TTSCacheDir:            getEnv("TTS_CACHE_DIR", "./tts-cache"),
		TTSCacheMax:            getInt("TTS_CACHE_MAX", 200),
		TTSMaxParallel:         getInt("TTS_MAX_PARALLEL", 2),
		CORSOrigins:            splitCSV(os.Getenv("CORS_ORIGINS")),
		TLSInsecureSkipVerify:  getEnv("NODE_TLS_REJECT_UNAUTHORIZED", "1") == "0",
		FrigateBaseURL:         os.Getenv("FRIGATE_BASE_URL"),
		NodeHosts:              splitKV(os.Getenv("NODE_HOSTS")),
		TracingEndpoint:        os.Getenv("TRACING_ENDPOINT"),
		TracingSampling:        getFloat("TRACING_SAMPLING_RATE", 0.1),
	}

	if c.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET must be set")
	}
	if c.Password == "" {
		return nil, fmt.Errorf("config: JARVIS_PASSWORD must be set")
	}
	return c, nil
}

// TokenExpiry is the JWT lifetime for /api/auth/login (spec.md §6: 7 days).
const TokenExpiry = 7 * 24 * time.Hour

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// splitKV parses a "key=value,key2=value2" string into a map, lowercasing
// keys so NODE_HOSTS lookups are case-insensitive.
func splitKV(v string) map[string]string {
	out := make(map[string]string)
	for _, pair := range splitCSV(v) {
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(val)
	}
	return out
}

// splitCSVInts parses a comma-separated list of VMIDs, silently
// skipping malformed entries (protected-set config is operator-edited
// and fails open to "not protected" rather than aborting startup).
func splitCSVInts(v string) []int {
	var out []int
	for _, p := range splitCSV(v) {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
