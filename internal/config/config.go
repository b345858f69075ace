package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentoven/actionrag/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the actionrag server.
type Config struct {
	Port      int
	Version   string
	Telemetry TelemetryConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Retrieval RetrievalConfig
	Pipeline  PipelineConfig
	Metrics   MetricsConfig
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	// Keys accepted in X-API-Key or "Authorization: Bearer". Empty disables
	// the check.
	APIKeys []string
}

// LLMConfig selects the model providers. ProvidersFile, when set, is a YAML
// list of providers and takes precedence over the single env provider.
type LLMConfig struct {
	ProvidersFile string
	Kind          string
	Model         string
	APIKey        string
	Endpoint      string
	Strategy      string
}

type RetrievalConfig struct {
	EmbeddingKind     string
	EmbeddingModel    string
	EmbeddingAPIKey   string
	EmbeddingEndpoint string
	VectorStoreKind   string
	VectorStoreURL    string
	MaxVectors        int
	DocsDir           string
	SchemaDir         string
	TopK              int
}

type PipelineConfig struct {
	PolicyFile     string
	AgentTimeout   time.Duration
	HTTPTimeout    time.Duration
	ComputeTimeout time.Duration
	MaxProgramSize int
}

type MetricsConfig struct {
	// Agents whose calls are logged; empty logs every agent.
	Agents      []string
	HistoryFile string // JSON Lines file; empty keeps history in memory only
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("ACTIONRAG_PORT", 8080),
		Version: envStr("ACTIONRAG_VERSION", "0.1.0"),
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "actionrag"),
		},
		Auth: AuthConfig{
			APIKeys: envList("ACTIONRAG_API_KEYS", nil),
		},
		LLM: LLMConfig{
			ProvidersFile: envStr("ACTIONRAG_PROVIDERS_FILE", ""),
			Kind:          envStr("ACTIONRAG_LLM_KIND", "openai"),
			Model:         envStr("ACTIONRAG_LLM_MODEL", "gpt-4o-mini"),
			APIKey:        envStr("ACTIONRAG_LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Endpoint:      envStr("ACTIONRAG_LLM_ENDPOINT", ""),
			Strategy:      envStr("ACTIONRAG_LLM_STRATEGY", string(models.RoutingFallback)),
		},
		Retrieval: RetrievalConfig{
			EmbeddingKind:     envStr("ACTIONRAG_EMBEDDING_KIND", "hash"),
			EmbeddingModel:    envStr("ACTIONRAG_EMBEDDING_MODEL", ""),
			EmbeddingAPIKey:   envStr("ACTIONRAG_EMBEDDING_API_KEY", os.Getenv("OPENAI_API_KEY")),
			EmbeddingEndpoint: envStr("ACTIONRAG_EMBEDDING_ENDPOINT", ""),
			VectorStoreKind:   envStr("ACTIONRAG_VECTORSTORE_KIND", "embedded"),
			VectorStoreURL:    envStr("ACTIONRAG_VECTORSTORE_URL", ""),
			MaxVectors:        envInt("ACTIONRAG_VECTORSTORE_MAX_VECTORS", 50000),
			DocsDir:           envStr("ACTIONRAG_DOCS_DIR", "docs"),
			SchemaDir:         envStr("ACTIONRAG_SCHEMA_DIR", "schemas"),
			TopK:              envInt("ACTIONRAG_TOP_K", 3),
		},
		Pipeline: PipelineConfig{
			PolicyFile:     envStr("ACTIONRAG_POLICY_FILE", ""),
			AgentTimeout:   envDuration("ACTIONRAG_AGENT_TIMEOUT", 60*time.Second),
			HTTPTimeout:    envDuration("ACTIONRAG_HTTP_TIMEOUT", 30*time.Second),
			ComputeTimeout: envDuration("ACTIONRAG_COMPUTE_TIMEOUT", 2*time.Second),
			MaxProgramSize: envInt("ACTIONRAG_COMPUTE_MAX_NODES", 2000),
		},
		Metrics: MetricsConfig{
			Agents:      envList("ACTIONRAG_METRICS_AGENTS", nil),
			HistoryFile: envStr("ACTIONRAG_METRICS_HISTORY_FILE", ""),
		},
	}
}

// Providers returns the model providers: the YAML providers file when one
// is configured, otherwise a single default provider built from env.
func (c LLMConfig) Providers() ([]models.ModelProvider, error) {
	if c.ProvidersFile != "" {
		return LoadProviders(c.ProvidersFile)
	}
	p := models.ModelProvider{
		Name:      c.Kind,
		Kind:      c.Kind,
		Endpoint:  c.Endpoint,
		IsDefault: true,
		Config:    map[string]interface{}{},
	}
	if c.Model != "" {
		p.Models = []string{c.Model}
	}
	if c.APIKey != "" {
		p.Config["api_key"] = c.APIKey
	}
	return []models.ModelProvider{p}, nil
}

type providersFile struct {
	Providers []models.ModelProvider `yaml:"providers"`
}

// LoadProviders reads a YAML file of the form
//
//	providers:
//	  - name: openai
//	    kind: openai
//	    models: [gpt-4o-mini]
//	    config: {api_key: ${OPENAI_API_KEY}}
//
// Environment references in the file are expanded before parsing.
func LoadProviders(filename string) ([]models.ModelProvider, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	var f providersFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse providers file %s: %w", filename, err)
	}
	if len(f.Providers) == 0 {
		return nil, fmt.Errorf("providers file %s lists no providers", filename)
	}
	for i, p := range f.Providers {
		if p.Name == "" || p.Kind == "" {
			return nil, fmt.Errorf("provider %d: name and kind are required", i)
		}
	}
	return f.Providers, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated value, dropping blanks.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
