// Package embeddings provides the embedding drivers used to index and query
// API documentation: OpenAI and Ollama over HTTP, plus a local hashing
// driver that needs no network.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/agentoven/actionrag/pkg/contracts"
	"github.com/rs/zerolog/log"
)

// Driver kinds accepted by New.
const (
	KindOpenAI = "openai"
	KindOllama = "ollama"
	KindHash   = "hash"
)

// Config selects and configures an embedding driver.
type Config struct {
	Kind     string
	Model    string
	APIKey   string
	Endpoint string
}

// New builds the driver named by cfg.Kind.
func New(cfg Config) (contracts.EmbeddingDriver, error) {
	var d contracts.EmbeddingDriver
	switch cfg.Kind {
	case KindOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embeddings: API key is required")
		}
		model := cfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		var opts []OpenAIOption
		if cfg.Endpoint != "" {
			opts = append(opts, WithOpenAIEndpoint(cfg.Endpoint))
		}
		d = NewOpenAIDriver(cfg.APIKey, model, opts...)
	case KindOllama:
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		d = NewOllamaDriver(cfg.Endpoint, model)
	case KindHash, "":
		d = NewHashDriver(DefaultHashDimensions)
	default:
		return nil, fmt.Errorf("unknown embedding driver kind: %s", cfg.Kind)
	}

	log.Info().Str("kind", d.Kind()).Int("dims", d.Dimensions()).Msg("Embedding driver configured")
	return d, nil
}

// EmbedAll embeds texts in batches no larger than the driver's limit.
func EmbedAll(ctx context.Context, d contracts.EmbeddingDriver, texts []string) ([][]float64, error) {
	size := d.MaxBatchSize()
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := d.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// postJSON sends in as a JSON POST and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
