package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaDriver embeds texts with a local Ollama server's /api/embed.
type OllamaDriver struct {
	endpoint   string
	model      string
	dimensions int
	batchSize  int
	client     *http.Client
}

var ollamaDimensions = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
	"all-minilm:l6-v2":  384,
}

// NewOllamaDriver creates an Ollama embedding driver. An empty endpoint means
// http://localhost:11434.
func NewOllamaDriver(endpoint, model string) *OllamaDriver {
	dims, ok := ollamaDimensions[model]
	if !ok {
		dims = 768
	}
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &OllamaDriver{
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		dimensions: dims,
		batchSize:  512,
		client:     &http.Client{Timeout: 120 * time.Second},
	}
}

func (d *OllamaDriver) Kind() string      { return KindOllama }
func (d *OllamaDriver) Dimensions() int   { return d.dimensions }
func (d *OllamaDriver) MaxBatchSize() int { return d.batchSize }

// Embed returns one vector per text, in input order.
func (d *OllamaDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > d.batchSize {
		return nil, fmt.Errorf("batch size %d exceeds max %d", len(texts), d.batchSize)
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	req := map[string]interface{}{"model": d.model, "input": texts}
	if err := postJSON(ctx, d.client, d.endpoint+"/api/embed", nil, req, &result); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}

// HealthCheck verifies Ollama is reachable and the model is pulled.
func (d *OllamaDriver) HealthCheck(ctx context.Context) error {
	_, err := d.Embed(ctx, []string{"health check"})
	return err
}
