// Package contracts defines the collaborator interfaces the actionrag
// orchestrator consumes.
//
// The orchestrator never talks to a vector database, a schema directory or a
// model provider directly; it goes through these interfaces so that each
// collaborator can be swapped (or faked in tests) in the wiring code.
package contracts

import (
	"context"

	"github.com/agentoven/actionrag/pkg/models"
)

// ── Model Router Service ────────────────────────────────────

// ModelRouterService routes LLM requests to configured providers.
// Implementation: internal/router.ModelRouter
type ModelRouterService interface {
	// Route sends a chat request and returns content plus metered usage.
	Route(ctx context.Context, req *models.RouteRequest) (*models.RouteResponse, error)
}

// ── Retrieval ───────────────────────────────────────────────

// Retriever returns the documents most similar to a text, best first.
// Implementation: internal/rag.Retriever
type Retriever interface {
	SimilaritySearchWithScore(ctx context.Context, text string, k int) ([]models.ScoredDocument, error)
}

// SchemaStore serves the declared request and response schemas of a route.
// Implementation: internal/schemastore.FileStore
type SchemaStore interface {
	// ResponseSchema returns the success response schema text for a route.
	ResponseSchema(ctx context.Context, route string) (string, error)

	// RequestSchema returns the parameter and body schema text for a route.
	// A route without a body schema returns an empty Body, not an error.
	RequestSchema(ctx context.Context, route string) (models.RequestSchema, error)
}

// ── Embeddings & Vector Store ───────────────────────────────

// EmbeddingDriver turns texts into vectors.
// Implementations: internal/embeddings.{OpenAIDriver,OllamaDriver,HashDriver}
type EmbeddingDriver interface {
	Kind() string
	Dimensions() int
	MaxBatchSize() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	HealthCheck(ctx context.Context) error
}

// VectorStoreDriver stores and searches embeddings.
// Implementations: internal/vectorstore.{EmbeddedStore,PgvectorStore}
type VectorStoreDriver interface {
	Kind() string
	Upsert(ctx context.Context, docs []models.VectorDoc) error
	Search(ctx context.Context, vector []float64, topK int, filter map[string]string) ([]models.SearchResult, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) error
}
