package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/agentoven/actionrag/internal/embeddings"
	"github.com/agentoven/actionrag/pkg/contracts"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// docNamespace seeds deterministic vector IDs, so re-ingesting a path
// replaces its previous vector.
var docNamespace = uuid.MustParse("6f1c7a52-3d0e-4b8e-9a61-2f4d5c9e8b17")

// Ingester embeds documentation files and upserts them into the vector store.
type Ingester struct {
	embeddings contracts.EmbeddingDriver
	vectorDB   contracts.VectorStoreDriver
	validate   *validator.Validate
}

// NewIngester creates a documentation ingester.
func NewIngester(emb contracts.EmbeddingDriver, vs contracts.VectorStoreDriver) *Ingester {
	return &Ingester{
		embeddings: emb,
		vectorDB:   vs,
		validate:   validator.New(),
	}
}

// DocumentID returns the vector ID used for a documentation path.
func DocumentID(path string) string {
	return uuid.NewSHA1(docNamespace, []byte(path)).String()
}

// Ingest embeds every document and stores one vector per document.
func (ing *Ingester) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error) {
	start := time.Now()

	if err := ing.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid ingest request: %w", err)
	}

	texts := make([]string, len(req.Documents))
	for i, d := range req.Documents {
		texts[i] = d.Content
	}
	vectors, err := embeddings.EmbedAll(ctx, ing.embeddings, texts)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	docs := make([]models.VectorDoc, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = models.VectorDoc{
			ID:        DocumentID(d.Path),
			Content:   d.Content,
			Metadata:  map[string]string{MetaPath: d.Path},
			Vector:    vectors[i],
			CreatedAt: now,
		}
	}
	if err := ing.vectorDB.Upsert(ctx, docs); err != nil {
		return nil, fmt.Errorf("upsert vectors: %w", err)
	}

	elapsed := time.Since(start)
	log.Info().
		Int("documents", len(req.Documents)).
		Dur("elapsed", elapsed).
		Msg("Ingestion complete")

	return &models.IngestResult{
		DocumentsProcessed: len(req.Documents),
		VectorsStored:      len(docs),
		ElapsedMs:          elapsed.Milliseconds(),
	}, nil
}
