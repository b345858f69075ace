// Package models defines the data types shared across the actionrag
// service: pipeline records, agent invocation telemetry, model router
// messages and vector store documents.
package models

import (
	"time"
)

// ── Pipeline Records ────────────────────────────────────────

// EndpointCandidate is a callable API route discovered from retrieved
// documentation. Candidates are keyed by their normalized URL.
type EndpointCandidate struct {
	URL            string `json:"url"`
	Route          string `json:"route"`
	Method         string `json:"method"`
	ResponseSchema string `json:"response_schema"`
	Documentation  string `json:"documentation"`
}

// RequestSpec is a fully resolved HTTP call for one endpoint.
type RequestSpec struct {
	URL        string                 `json:"url"`
	Method     string                 `json:"method"`
	Parameters map[string]interface{} `json:"parameters"`
	Body       map[string]interface{} `json:"body"`
}

// RequestSchema is the parameter/body schema text of a route.
// Body is empty when the route takes no request body.
type RequestSchema struct {
	Parameters string `json:"parameters"`
	Body       string `json:"body"`
}

// ApprovalState is the state of the approval gate for one run.
type ApprovalState string

const (
	ApprovalClear   ApprovalState = "CLEAR"
	ApprovalBlocked ApprovalState = "BLOCKED"
)

// ApprovalDecision records the gate evaluation for the resolved endpoints.
// Bypassed is kept for audit; it never changes State.
type ApprovalDecision struct {
	State             ApprovalState `json:"state"`
	RequiresApproval  bool          `json:"requires_approval"`
	BlockingEndpoints []string      `json:"blocking_endpoints,omitempty"`
	Bypassed          bool          `json:"bypassed"`
}

// ExecutionResult is the outcome of one RequestSpec.
type ExecutionResult struct {
	URL      string         `json:"url"`
	Method   string         `json:"method"`
	Status   int            `json:"status"`
	Response interface{}    `json:"response,omitempty"`
	Error    *ErrorEnvelope `json:"error,omitempty"`
}

// OK reports whether the call returned a 2xx status.
func (r ExecutionResult) OK() bool {
	return r.Error == nil && r.Status >= 200 && r.Status < 300
}

// AggregatedResponses is the document set handed to the response
// synthesizer once every request has run.
type AggregatedResponses struct {
	Endpoints            []string          `json:"endpoints"`
	DocumentationDetails []RequestSpec     `json:"documentation_details"`
	Responses            []interface{}     `json:"responses"`
	Results              []ExecutionResult `json:"results"`
}

// DatasetField declares one field a computation may read. Name doubles as
// a redaction path ("customer/name" reaches into nested mappings).
type DatasetField struct {
	Name        string `json:"name" validate:"required"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// GeneratedProgram is synthesized computation source, bound to one run.
type GeneratedProgram struct {
	RunID  string `json:"run_id"`
	Source string `json:"source"`
}

// ── Errors ──────────────────────────────────────────────────

// ErrorKind classifies failures surfaced to API callers.
type ErrorKind string

const (
	ErrorKindCredentials ErrorKind = "credentials"
	ErrorKindResolution  ErrorKind = "resolution"
	ErrorKindExecution   ErrorKind = "execution"
	ErrorKindComputation ErrorKind = "computation"
	ErrorKindInternal    ErrorKind = "internal"
)

// ErrorEnvelope is the structured error returned in API payloads.
type ErrorEnvelope struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Status  int       `json:"status,omitempty"`
}

// ── Metrics ─────────────────────────────────────────────────

// AgentInvocationLog is one metered agent call.
type AgentInvocationLog struct {
	Agent    string        `json:"agent"`
	Cost     float64       `json:"cost"`
	Tokens   int64         `json:"tokens"`
	Duration time.Duration `json:"duration"`
	Messages []string      `json:"messages"`
	Outputs  []string      `json:"outputs"`
}

// QueryMetrics is the telemetry summary of one pipeline run.
type QueryMetrics struct {
	RunID              string              `json:"run_id"`
	TokenUsage         int64               `json:"token_usage"`
	Cost               float64             `json:"cost"`
	Latency            float64             `json:"latency"`
	ExecutionTime      float64             `json:"execution_time"`
	TotalTime          float64             `json:"total_time"`
	RetrievedEndpoints []string            `json:"retrieved_endpoints"`
	AgentOutputs       map[string][]string `json:"agent_outputs"`
	CreatedAt          time.Time           `json:"created_at"`
}

// ── Model Router ────────────────────────────────────────────

// ChatMessage is a single message sent to a model provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RoutingStrategy selects provider ordering in the model router.
type RoutingStrategy string

const (
	RoutingFallback      RoutingStrategy = "fallback"
	RoutingCostOptimized RoutingStrategy = "cost-optimized"
	RoutingRoundRobin    RoutingStrategy = "round-robin"
)

// ModelProvider is a configured LLM backend.
type ModelProvider struct {
	Name      string                 `json:"name" yaml:"name"`
	Kind      string                 `json:"kind" yaml:"kind"` // openai, azure-openai, anthropic, ollama
	Endpoint  string                 `json:"endpoint,omitempty" yaml:"endpoint"`
	Models    []string               `json:"models" yaml:"models"`
	Config    map[string]interface{} `json:"config,omitempty" yaml:"config"`
	IsDefault bool                   `json:"is_default" yaml:"is_default"`
}

type RouteRequest struct {
	Messages  []ChatMessage   `json:"messages"`
	Model     string          `json:"model,omitempty"`
	Strategy  RoutingStrategy `json:"strategy,omitempty"`
	AgentRef  string          `json:"agent_ref,omitempty"`
	MaxTokens *int            `json:"max_tokens,omitempty"`
	JSONMode  bool            `json:"json_mode,omitempty"`
}

type RouteResponse struct {
	ID        string          `json:"id"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Strategy  RoutingStrategy `json:"strategy"`
	Content   string          `json:"content"`
	Usage     TokenUsage      `json:"usage"`
	LatencyMs int64           `json:"latency_ms"`
}

type TokenUsage struct {
	InputTokens   int64   `json:"input_tokens"`
	OutputTokens  int64   `json:"output_tokens"`
	TotalTokens   int64   `json:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost_usd"`
}

// ── Retrieval ───────────────────────────────────────────────

// Document is a retrieved API documentation file. Path encodes
// "<root>/<route segments>/<method>.<ext>".
type Document struct {
	Path    string `json:"path" validate:"required"`
	Content string `json:"content"`
}

// ScoredDocument pairs a retrieved document with its similarity score.
type ScoredDocument struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// VectorDoc is a stored embedding with its source text and metadata.
type VectorDoc struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Vector    []float64         `json:"vector"`
	CreatedAt time.Time         `json:"created_at"`
}

// SearchResult is a single vector search result.
type SearchResult struct {
	Doc   VectorDoc `json:"doc"`
	Score float64   `json:"score"`
}

// IngestRequest carries documentation files to index.
type IngestRequest struct {
	Documents []Document `json:"documents" validate:"required,dive"`
}

// IngestResult summarizes an ingestion run.
type IngestResult struct {
	DocumentsProcessed int   `json:"documents_processed"`
	VectorsStored      int   `json:"vectors_stored"`
	ElapsedMs          int64 `json:"elapsed_ms"`
}
