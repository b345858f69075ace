// Package rag indexes API documentation files and retrieves the files most
// similar to a query.
//
// One documentation file becomes one vector. Its path is kept in metadata
// so callers can recover the route and method it documents.
package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/agentoven/actionrag/pkg/contracts"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/rs/zerolog/log"
)

// MetaPath is the metadata key holding a document's path.
const MetaPath = "path"

// Retriever answers similarity searches over ingested documentation.
type Retriever struct {
	embeddings contracts.EmbeddingDriver
	vectorDB   contracts.VectorStoreDriver
	minScore   float64
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithMinScore drops results scoring below s.
func WithMinScore(s float64) RetrieverOption {
	return func(r *Retriever) { r.minScore = s }
}

// NewRetriever creates a retriever over an embedding driver and vector store.
func NewRetriever(emb contracts.EmbeddingDriver, vs contracts.VectorStoreDriver, opts ...RetrieverOption) *Retriever {
	r := &Retriever{embeddings: emb, vectorDB: vs}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SimilaritySearchWithScore returns up to k documents, best first.
func (r *Retriever) SimilaritySearchWithScore(ctx context.Context, text string, k int) ([]models.ScoredDocument, error) {
	start := time.Now()

	vectors, err := r.embeddings.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}

	results, err := r.vectorDB.Search(ctx, vectors[0], k, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	docs := make([]models.ScoredDocument, 0, len(results))
	for _, res := range results {
		if res.Score < r.minScore {
			continue
		}
		docs = append(docs, models.ScoredDocument{
			Document: models.Document{Path: res.Doc.Metadata[MetaPath], Content: res.Doc.Content},
			Score:    res.Score,
		})
	}

	log.Debug().
		Int("k", k).
		Int("results", len(docs)).
		Dur("elapsed", time.Since(start)).
		Msg("Documentation retrieval complete")
	return docs, nil
}
