// Package server wires the actionrag components into a ready HTTP server.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/agentoven/actionrag/internal/agents"
	"github.com/agentoven/actionrag/internal/api"
	"github.com/agentoven/actionrag/internal/api/handlers"
	"github.com/agentoven/actionrag/internal/approval"
	"github.com/agentoven/actionrag/internal/compute"
	"github.com/agentoven/actionrag/internal/config"
	"github.com/agentoven/actionrag/internal/embeddings"
	"github.com/agentoven/actionrag/internal/executor"
	"github.com/agentoven/actionrag/internal/orchestrator"
	"github.com/agentoven/actionrag/internal/rag"
	modelrouter "github.com/agentoven/actionrag/internal/router"
	"github.com/agentoven/actionrag/internal/schemastore"
	"github.com/agentoven/actionrag/internal/store"
	"github.com/agentoven/actionrag/internal/telemetry"
	"github.com/agentoven/actionrag/internal/vectorstore"
	"github.com/agentoven/actionrag/pkg/contracts"
	"github.com/agentoven/actionrag/pkg/models"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized pipeline and its HTTP surface.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store holds the per-query metrics history.
	Store store.MetricsStore

	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc flushes telemetry and releases backends.
	ShutdownFunc func(context.Context) error
}

// New builds a Server from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig builds a Server from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	metricsStore := store.NewMemoryStore(cfg.Metrics.HistoryFile)

	providers, err := cfg.LLM.Providers()
	if err != nil {
		return nil, fmt.Errorf("load model providers: %w", err)
	}
	mr := modelrouter.NewModelRouter(providers)
	log.Info().Int("providers", len(providers)).Strs("drivers", mr.ListDrivers()).Msg("Model router initialized")

	suite := agents.NewSuite(mr,
		agents.WithModel(cfg.LLM.Model),
		agents.WithStrategy(models.RoutingStrategy(cfg.LLM.Strategy)),
		agents.WithTimeout(cfg.Pipeline.AgentTimeout),
	)

	emb, err := embeddings.New(embeddings.Config{
		Kind:     cfg.Retrieval.EmbeddingKind,
		Model:    cfg.Retrieval.EmbeddingModel,
		APIKey:   cfg.Retrieval.EmbeddingAPIKey,
		Endpoint: cfg.Retrieval.EmbeddingEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("init embeddings: %w", err)
	}
	vs, err := vectorstore.New(ctx, vectorstore.Config{
		Kind:       cfg.Retrieval.VectorStoreKind,
		URL:        cfg.Retrieval.VectorStoreURL,
		Dimensions: emb.Dimensions(),
		MaxVectors: cfg.Retrieval.MaxVectors,
	})
	if err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	log.Info().Str("kind", vs.Kind()).Msg("Vector store initialized")

	ingester := rag.NewIngester(emb, vs)
	indexDocs(ctx, ingester, cfg.Retrieval.DocsDir)

	policy, err := approval.LoadPolicy(cfg.Pipeline.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load approval policy: %w", err)
	}

	engine := compute.NewEngine(suite,
		compute.WithTimeout(cfg.Pipeline.ComputeTimeout),
		compute.WithMaxNodes(uint(cfg.Pipeline.MaxProgramSize)),
	)

	orch := orchestrator.New(orchestrator.Deps{
		Agents:      suite,
		Retriever:   rag.NewRetriever(emb, vs),
		Schemas:     schemastore.NewFileStore(cfg.Retrieval.SchemaDir),
		Executor:    executor.NewExecutor(&http.Client{Timeout: cfg.Pipeline.HTTPTimeout}),
		Gate:        approval.NewGate(policy),
		Store:       metricsStore,
		Engine:      engine,
		TopK:        cfg.Retrieval.TopK,
		MetricAllow: cfg.Metrics.Agents,
	})
	log.Info().Int("rules", len(policy.Rules)).Msg("Pipeline initialized")

	h := handlers.New(orch, metricsStore, ingester)

	return &Server{
		Handler: api.NewRouter(cfg, h),
		Store:   metricsStore,
		Config:  cfg,
		Port:    cfg.Port,
		ShutdownFunc: func(ctx context.Context) error {
			closeVectorStore(vs)
			return shutdownTelemetry(ctx)
		},
	}, nil
}

// indexDocs ingests the documentation tree at startup. A missing tree is
// not fatal: documents can still be pushed through /docs/ingest.
func indexDocs(ctx context.Context, ing *rag.Ingester, dir string) {
	docs, err := rag.LoadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("dir", dir).Msg("Documentation directory not found, starting with an empty index")
		} else {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to load documentation")
		}
		return
	}
	if len(docs) == 0 {
		log.Warn().Str("dir", dir).Msg("No documentation files found")
		return
	}
	res, err := ing.Ingest(ctx, models.IngestRequest{Documents: docs})
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Failed to index documentation")
		return
	}
	log.Info().
		Int("documents", res.DocumentsProcessed).
		Int("vectors", res.VectorsStored).
		Msg("Documentation indexed")
}

func closeVectorStore(vs contracts.VectorStoreDriver) {
	if c, ok := vs.(interface{ Close() }); ok {
		c.Close()
	}
}
