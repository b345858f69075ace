package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("TopK = %d, want 3", cfg.Retrieval.TopK)
	}
	if cfg.Pipeline.ComputeTimeout != 2*time.Second {
		t.Errorf("ComputeTimeout = %v, want 2s", cfg.Pipeline.ComputeTimeout)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("ACTIONRAG_PORT", "9090")
	t.Setenv("ACTIONRAG_AGENT_TIMEOUT", "5s")
	t.Setenv("ACTIONRAG_API_KEYS", "a, b,,c")
	t.Setenv("ACTIONRAG_TOP_K", "not-a-number")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.AgentTimeout)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Auth.APIKeys)
	assert.Equal(t, 3, cfg.Retrieval.TopK, "invalid value falls back")
}

func TestLLMConfig_EnvProvider(t *testing.T) {
	c := LLMConfig{Kind: "ollama", Model: "llama3", Endpoint: "http://localhost:11434"}

	providers, err := c.Providers()
	require.NoError(t, err)
	require.Len(t, providers, 1)

	assert.Equal(t, "ollama", providers[0].Kind)
	assert.Equal(t, []string{"llama3"}, providers[0].Models)
	assert.True(t, providers[0].IsDefault)
	assert.NotContains(t, providers[0].Config, "api_key")
}

func TestLoadProviders(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "sk-123")
	file := filepath.Join(t.TempDir(), "providers.yaml")
	yml := `providers:
  - name: primary
    kind: openai
    models: [gpt-4o-mini]
    is_default: true
    config:
      api_key: ${TEST_PROVIDER_KEY}
      cost_per_1k_input: 0.00015
  - name: local
    kind: ollama
    models: [llama3]
`
	require.NoError(t, os.WriteFile(file, []byte(yml), 0o600))

	providers, err := LoadProviders(file)
	require.NoError(t, err)
	require.Len(t, providers, 2)

	assert.Equal(t, "sk-123", providers[0].Config["api_key"])
	assert.Equal(t, 0.00015, providers[0].Config["cost_per_1k_input"])
	assert.Equal(t, "local", providers[1].Name)
}

func TestLoadProviders_Invalid(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("providers: []\n"), 0o600))
	_, err := LoadProviders(empty)
	assert.Error(t, err)

	nameless := filepath.Join(dir, "nameless.yaml")
	require.NoError(t, os.WriteFile(nameless, []byte("providers:\n  - kind: openai\n"), 0o600))
	_, err = LoadProviders(nameless)
	assert.Error(t, err)

	_, err = LoadProviders(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
