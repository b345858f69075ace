// Package orchestrator runs the query-to-action pipeline.
//
// A retrieval run rephrases the query, retrieves API documentation, resolves
// it into endpoints, lets the model pick one, synthesizes the request, checks
// the approval policy, executes the calls and answers from their responses.
// A drill-down run decides whether a query needs computation over a record
// set and, if so, evaluates a generated program over the redacted records.
//
// Every run owns a metrics.Run that each stage records into; the harvested
// QueryMetrics of completed retrieval runs are appended to the metrics store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentoven/actionrag/internal/agents"
	"github.com/agentoven/actionrag/internal/approval"
	"github.com/agentoven/actionrag/internal/compute"
	"github.com/agentoven/actionrag/internal/executor"
	"github.com/agentoven/actionrag/internal/metrics"
	"github.com/agentoven/actionrag/internal/resolver"
	"github.com/agentoven/actionrag/internal/store"
	"github.com/agentoven/actionrag/internal/telemetry"
	"github.com/agentoven/actionrag/pkg/contracts"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// ApprovalMessage is the answer of a run stopped by the approval gate.
const ApprovalMessage = "The action you are attempting requires approval. More information in the approval dialog."

// UnresolvedMessage is the answer of a run whose query matched no endpoint.
const UnresolvedMessage = "I could not find an API endpoint that answers this query. Try rephrasing it or asking about a different resource."

// DefaultTopK is the number of documents retrieved per query.
const DefaultTopK = 3

// ErrMissingCredentials is returned when a retrieval request carries no
// headers to forward to the API.
var ErrMissingCredentials = errors.New("request headers are required")

// Flow names used as metrics labels.
const (
	FlowRetrieve  = "retrieve"
	FlowDrillDown = "drill_down"
)

// Agents is the language-model surface the pipeline needs.
// Implementation: internal/agents.Suite
type Agents interface {
	Rephrase(ctx context.Context, run *metrics.Run, query string) (string, error)
	SelectEndpoints(ctx context.Context, run *metrics.Run, query, documentation string, offered []string) ([]string, error)
	SynthesizeRequest(ctx context.Context, run *metrics.Run, query string, schema models.RequestSchema) (params, body map[string]interface{}, err error)
	SynthesizeResponse(ctx context.Context, run *metrics.Run, query string, data interface{}) (string, error)
	DecideAction(ctx context.Context, run *metrics.Run, query string) (bool, error)
	GenerateProgram(ctx context.Context, run *metrics.Run, query string, fields []models.DatasetField) (string, error)
	SynthesizeWithComputed(ctx context.Context, run *metrics.Run, query string, value interface{}) (string, error)
	SynthesizeWithoutComputed(ctx context.Context, run *metrics.Run, query string) (string, error)
	FollowUps(ctx context.Context, run *metrics.Run, query string) ([]string, error)
}

// Executor issues the resolved HTTP calls.
// Implementation: internal/executor.Executor
type Executor interface {
	ExecuteAll(ctx context.Context, specs []models.RequestSpec, headers map[string]string) ([]models.ExecutionResult, error)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Agents    Agents
	Retriever contracts.Retriever
	Schemas   contracts.SchemaStore
	Executor  Executor
	Gate      *approval.Gate
	Store     store.MetricsStore

	// Optional
	Engine      *compute.Engine
	TopK        int
	MetricAllow []string
}

// Orchestrator runs retrieval and drill-down pipelines.
type Orchestrator struct {
	agents      Agents
	retriever   contracts.Retriever
	resolver    *resolver.Resolver
	synthesizer *resolver.Synthesizer
	executor    Executor
	gate        *approval.Gate
	engine      *compute.Engine
	store       store.MetricsStore
	topK        int
	allow       []string
}

// New creates an orchestrator. A nil Gate blocks nothing; a nil Engine gets
// one with default limits backed by d.Agents.
func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		agents:      d.Agents,
		retriever:   d.Retriever,
		resolver:    resolver.NewResolver(d.Schemas),
		synthesizer: resolver.NewSynthesizer(d.Schemas, d.Agents),
		executor:    d.Executor,
		gate:        d.Gate,
		engine:      d.Engine,
		store:       d.Store,
		topK:        d.TopK,
		allow:       d.MetricAllow,
	}
	if o.gate == nil {
		o.gate = approval.NewGate(nil)
	}
	if o.engine == nil {
		o.engine = compute.NewEngine(d.Agents)
	}
	if o.topK <= 0 {
		o.topK = DefaultTopK
	}
	return o
}

// ── Retrieval flow ──────────────────────────────────────────

// RetrieveRequest is one query against an API.
type RetrieveRequest struct {
	APIBase        string
	Query          string
	Headers        map[string]string
	ApprovalBypass bool
}

// RetrieveResult is the outcome of a retrieval run.
type RetrieveResult struct {
	RAGResponse string `json:"rag_response"`
	// Documents is the selected endpoint list for a run stopped by the
	// approval gate, and the AggregatedResponses otherwise.
	Documents        interface{}              `json:"documents"`
	QueryMetrics     *models.QueryMetrics     `json:"query_metrics,omitempty"`
	ApprovalRequired bool                     `json:"approval_required"`
	Approval         *models.ApprovalDecision `json:"approval,omitempty"`
	Error            *models.ErrorEnvelope    `json:"error,omitempty"`
}

// Retrieve runs the retrieval pipeline for one query.
//
// The returned error is non-nil only when the run aborted: missing
// credentials, an unsupported method in a synthesized request, a failed
// agent call or a cancelled context. An unresolvable query and failing API
// calls are reported in the result instead.
func (o *Orchestrator) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResult, error) {
	if len(req.Headers) == 0 {
		return nil, ErrMissingCredentials
	}

	run := metrics.NewRun(o.allow)
	logger := log.With().Str("run_id", run.ID()).Str("flow", FlowRetrieve).Logger()
	logger.Info().Str("query", req.Query).Str("api_base", req.APIBase).Msg("Retrieval started")

	res, err := o.retrieve(ctx, run, req)
	if err != nil {
		metrics.ObserveRun(FlowRetrieve, metrics.OutcomeFailed)
		logger.Error().Err(err).Msg("Retrieval failed")
		return res, err
	}

	logger.Info().
		Bool("approval_required", res.ApprovalRequired).
		Strs("agents", run.Agents()).
		Dur("elapsed", time.Since(run.Started())).
		Msg("Retrieval complete")
	return res, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, run *metrics.Run, req RetrieveRequest) (*RetrieveResult, error) {
	// 1. Rephrase
	var rephrased string
	err := o.stage(ctx, run, "rephrase", func(ctx context.Context) error {
		var err error
		rephrased, err = o.agents.Rephrase(ctx, run, req.Query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rephrase query: %w", err)
	}

	// 2. Retrieve documentation
	var docs []models.ScoredDocument
	err = o.stage(ctx, run, "retrieve", func(ctx context.Context) error {
		var err error
		docs, err = o.retriever.SimilaritySearchWithScore(ctx, rephrased, o.topK)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve documentation: %w", err)
	}

	// 3. Resolve into candidates
	var resolution *resolver.Resolution
	err = o.stage(ctx, run, "resolve", func(ctx context.Context) error {
		var err error
		resolution, err = o.resolver.Resolve(ctx, req.APIBase, docs)
		return err
	})
	if errors.Is(err, resolver.ErrResolutionEmpty) {
		return o.unresolved(run, err), nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve endpoints: %w", err)
	}

	// 4. Select endpoint
	var endpoints []string
	err = o.stage(ctx, run, "select", func(ctx context.Context) error {
		var err error
		endpoints, err = o.agents.SelectEndpoints(ctx, run, rephrased, resolution.Digest, resolution.URLs())
		return err
	})
	if errors.Is(err, agents.ErrInvalidSelection) || errors.Is(err, agents.ErrInvalidOutput) {
		return o.unresolved(run, err), nil
	}
	if err != nil {
		return nil, fmt.Errorf("select endpoint: %w", err)
	}
	run.SetRetrievedEndpoints(endpoints)

	// 5. Synthesize requests
	var specs []models.RequestSpec
	err = o.stage(ctx, run, "synthesize_request", func(ctx context.Context) error {
		var err error
		specs, err = o.synthesizer.SynthesizeAll(ctx, run, rephrased, resolution, endpoints)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize requests: %w", err)
	}

	// 6. Approval, strictly before any call
	decision := o.gate.Evaluate(specs, req.ApprovalBypass)
	if !approval.MayExecute(decision) {
		metrics.ObserveRun(FlowRetrieve, metrics.OutcomeApprovalRequired)
		log.Info().
			Str("run_id", run.ID()).
			Strs("blocking", decision.BlockingEndpoints).
			Msg("Run stopped for approval")
		return &RetrieveResult{
			RAGResponse:      ApprovalMessage,
			Documents:        endpoints,
			ApprovalRequired: true,
			Approval:         &decision,
		}, nil
	}

	// 7. Execute
	if err := executor.Validate(specs); err != nil {
		return &RetrieveResult{
			Approval: &decision,
			Error: &models.ErrorEnvelope{
				Kind:    models.ErrorKindExecution,
				Message: err.Error(),
				Status:  422,
			},
		}, err
	}
	var results []models.ExecutionResult
	execStart := time.Now()
	err = o.stage(ctx, run, "execute", func(ctx context.Context) error {
		var err error
		results, err = o.executor.ExecuteAll(ctx, specs, req.Headers)
		return err
	})
	execution := time.Since(execStart)
	if err != nil {
		return nil, fmt.Errorf("execute requests: %w", err)
	}

	aggregated := Aggregate(endpoints, specs, results)

	// 8. Answer from the raw responses
	var answer string
	err = o.stage(ctx, run, "synthesize_response", func(ctx context.Context) error {
		var err error
		answer, err = o.agents.SynthesizeResponse(ctx, run, req.Query, aggregated.Responses)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize response: %w", err)
	}

	// 9. Metrics
	qm := o.finish(ctx, run, execution)
	result := &RetrieveResult{
		RAGResponse:  answer,
		Documents:    aggregated,
		QueryMetrics: &qm,
		Approval:     &decision,
	}
	if env := firstFailure(results); env != nil {
		result.Error = env
	}
	metrics.ObserveRun(FlowRetrieve, metrics.OutcomeAnswered)
	return result, nil
}

// unresolved builds the graceful answer for a query no endpoint matches.
func (o *Orchestrator) unresolved(run *metrics.Run, cause error) *RetrieveResult {
	metrics.ObserveRun(FlowRetrieve, metrics.OutcomeUnresolved)
	log.Info().Err(cause).Str("run_id", run.ID()).Msg("No endpoint resolved for query")
	return &RetrieveResult{
		RAGResponse: UnresolvedMessage,
		Documents:   []string{},
		Error: &models.ErrorEnvelope{
			Kind:    models.ErrorKindResolution,
			Message: cause.Error(),
		},
	}
}

// finish harvests run metrics, appends them to the store and clears the run.
func (o *Orchestrator) finish(ctx context.Context, run *metrics.Run, execution time.Duration) models.QueryMetrics {
	total := time.Since(run.Started())
	qm := run.Harvest(total, execution)
	if o.store != nil {
		if _, err := o.store.Append(ctx, qm); err != nil {
			log.Error().Err(err).Str("run_id", run.ID()).Msg("Failed to store query metrics")
		}
	}
	run.Clear()
	return qm
}

// stage runs fn inside a traced, timed pipeline stage.
func (o *Orchestrator) stage(ctx context.Context, run *metrics.Run, name string, fn func(context.Context) error) error {
	ctx, end := telemetry.StartStage(ctx, name, run.ID(), attribute.Int("actionrag.agent_calls", len(run.Logs())))
	start := time.Now()
	err := fn(ctx)
	metrics.ObserveStage(name, time.Since(start))
	end(err)
	return err
}

// Aggregate assembles the documents handed to the response synthesizer.
// Responses holds each call's body, or its error envelope when it failed.
func Aggregate(endpoints []string, specs []models.RequestSpec, results []models.ExecutionResult) models.AggregatedResponses {
	agg := models.AggregatedResponses{
		Endpoints:            endpoints,
		DocumentationDetails: specs,
		Responses:            make([]interface{}, 0, len(results)),
		Results:              results,
	}
	for _, r := range results {
		if r.Error != nil {
			agg.Responses = append(agg.Responses, r.Error)
			continue
		}
		agg.Responses = append(agg.Responses, r.Response)
	}
	return agg
}

func firstFailure(results []models.ExecutionResult) *models.ErrorEnvelope {
	for _, r := range results {
		if r.Error != nil {
			return r.Error
		}
	}
	return nil
}
