// Package vectorstore stores documentation embeddings and answers nearest
// neighbour queries. Two drivers exist: an in-memory brute-force store and
// PostgreSQL with the pgvector extension.
package vectorstore

import (
	"context"
	"fmt"
	"math"

	"github.com/agentoven/actionrag/pkg/contracts"
)

// Driver kinds accepted by New.
const (
	KindEmbedded = "embedded"
	KindPgvector = "pgvector"
)

// Config selects and configures a vector store.
type Config struct {
	Kind       string
	URL        string // pgvector connection string
	Dimensions int
	MaxVectors int // embedded only
}

// New opens the store named by cfg.Kind. The caller closes stores that
// implement io.Closer-like Close().
func New(ctx context.Context, cfg Config) (contracts.VectorStoreDriver, error) {
	switch cfg.Kind {
	case KindEmbedded, "":
		var opts []EmbeddedOption
		if cfg.MaxVectors > 0 {
			opts = append(opts, WithMaxVectors(cfg.MaxVectors))
		}
		return NewEmbeddedStore(opts...), nil
	case KindPgvector:
		if cfg.URL == "" {
			return nil, fmt.Errorf("pgvector: connection URL is required")
		}
		return NewPgvectorStore(ctx, cfg.URL, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown vector store kind: %s", cfg.Kind)
	}
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
