// Package handlers implements the actionrag HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/agentoven/actionrag/internal/executor"
	"github.com/agentoven/actionrag/internal/orchestrator"
	"github.com/agentoven/actionrag/internal/store"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Pipeline runs queries.
// Implementation: internal/orchestrator.Orchestrator
type Pipeline interface {
	Retrieve(ctx context.Context, req orchestrator.RetrieveRequest) (*orchestrator.RetrieveResult, error)
	DrillDown(ctx context.Context, req orchestrator.DrillDownRequest) (*orchestrator.DrillDownResult, error)
	FollowUps(ctx context.Context, query string) ([]string, error)
}

// Ingester indexes API documentation.
// Implementation: internal/rag.Ingester
type Ingester interface {
	Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error)
}

// Handlers holds the dependencies of every endpoint.
type Handlers struct {
	Pipeline Pipeline
	Metrics  store.MetricsStore
	Ingester Ingester
	validate *validator.Validate
}

// New creates a new Handlers instance with all dependencies.
func New(p Pipeline, m store.MetricsStore, ing Ingester) *Handlers {
	return &Handlers{
		Pipeline: p,
		Metrics:  m,
		Ingester: ing,
		validate: validator.New(),
	}
}

// ── Query ───────────────────────────────────────────────────

// Retrieve handles POST /query/retrieve?API_BASE=&query=&approval_bypass=
//
// The body is the header map forwarded to the API, either bare or wrapped
// as {"headers": {...}}.
func (h *Handlers) Retrieve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("query"))
	if query == "" {
		respondError(w, http.StatusBadRequest, models.ErrorKindInternal, "query is required")
		return
	}
	apiBase := q.Get("API_BASE")
	if apiBase == "" {
		respondError(w, http.StatusBadRequest, models.ErrorKindInternal, "API_BASE is required")
		return
	}
	bypass := false
	if v := q.Get("approval_bypass"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, models.ErrorKindInternal, "approval_bypass must be a boolean")
			return
		}
		bypass = b
	}

	headers, err := decodeHeaders(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, models.ErrorKindCredentials, err.Error())
		return
	}

	res, err := h.Pipeline.Retrieve(r.Context(), orchestrator.RetrieveRequest{
		APIBase:        apiBase,
		Query:          query,
		Headers:        headers,
		ApprovalBypass: bypass,
	})
	switch {
	case errors.Is(err, orchestrator.ErrMissingCredentials):
		respondError(w, http.StatusBadRequest, models.ErrorKindCredentials, "Token header is required")
	case errors.Is(err, executor.ErrUnsupportedMethod):
		if res == nil {
			respondError(w, http.StatusUnprocessableEntity, models.ErrorKindExecution, err.Error())
			return
		}
		respondJSON(w, http.StatusUnprocessableEntity, res)
	case err != nil:
		log.Error().Err(err).Str("query", query).Msg("Retrieval failed")
		respondError(w, http.StatusInternalServerError, models.ErrorKindInternal, err.Error())
	default:
		respondJSON(w, http.StatusOK, res)
	}
}

// decodeHeaders reads the forwarded header map. Non-string values are
// formatted; an empty or missing map is an error.
func decodeHeaders(r *http.Request) (map[string]string, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, errors.New("request body must be a JSON object of headers")
	}
	if inner, ok := raw["headers"].(map[string]interface{}); ok && len(raw) == 1 {
		raw = inner
	}
	if len(raw) == 0 {
		return nil, errors.New("Token header is required")
	}
	headers := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			headers[k] = s
			continue
		}
		headers[k] = fmt.Sprint(v)
	}
	return headers, nil
}

// GetMetrics handles GET /query/metrics?index=
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, models.ErrorKindInternal, "index must be an integer")
		return
	}

	m, err := h.Metrics.Get(r.Context(), index)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, models.ErrorKindInternal, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, models.ErrorKindInternal, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// Compute handles POST /query/compute
func (h *Handlers) Compute(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.DrillDownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrorKindInternal, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrorKindInternal, err.Error())
		return
	}

	res, err := h.Pipeline.DrillDown(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Msg("Drill-down failed")
		respondError(w, http.StatusInternalServerError, models.ErrorKindInternal, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// FollowUps handles GET /query/follow-ups?query=
func (h *Handlers) FollowUps(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		respondError(w, http.StatusBadRequest, models.ErrorKindInternal, "query is required")
		return
	}
	out, err := h.Pipeline.FollowUps(r.Context(), query)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrorKindInternal, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"follow_up": out})
}

// ── Helpers ─────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, kind models.ErrorKind, message string) {
	respondJSON(w, status, map[string]*models.ErrorEnvelope{
		"error": {Kind: kind, Message: message, Status: status},
	})
}
