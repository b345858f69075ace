// Package agents wraps each language-model task of the pipeline behind a
// typed method.
//
// Every call sends a system prompt plus a JSON input document through the
// model router, parses the JSON answer and validates it before returning.
// Usage is recorded on the caller's metrics.Run.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentoven/actionrag/internal/metrics"
	"github.com/agentoven/actionrag/pkg/contracts"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Agent names, used as metrics labels and in the run log allow-list.
const (
	Rephraser           = "rephraser"
	EndpointSelector    = "endpoint-selector"
	RequestSynthesizer  = "request-synthesizer"
	ActionDecider       = "action-decider"
	ProgramGenerator    = "program-generator"
	ResponseSynthesizer = "response-synthesizer"
	FollowUpGenerator   = "follow-up-generator"
)

// DefaultTimeout bounds one agent call.
const DefaultTimeout = 60 * time.Second

var (
	// ErrInvalidOutput is returned when a model answer is not valid JSON or
	// fails validation.
	ErrInvalidOutput = errors.New("invalid agent output")

	// ErrInvalidSelection is returned when endpoint selection does not name
	// exactly one URL from the offered documentation.
	ErrInvalidSelection = errors.New("invalid endpoint selection")
)

// Suite runs the pipeline's agents through a model router.
type Suite struct {
	router   contracts.ModelRouterService
	validate *validator.Validate
	model    string
	strategy models.RoutingStrategy
	timeout  time.Duration
}

// Option configures a Suite.
type Option func(*Suite)

// WithModel pins every call to a model name.
func WithModel(model string) Option {
	return func(s *Suite) { s.model = model }
}

// WithTimeout bounds each agent call.
func WithTimeout(d time.Duration) Option {
	return func(s *Suite) { s.timeout = d }
}

// WithStrategy sets the provider ordering used for every call.
func WithStrategy(st models.RoutingStrategy) Option {
	return func(s *Suite) {
		if st != "" {
			s.strategy = st
		}
	}
}

// NewSuite creates an agent suite.
func NewSuite(router contracts.ModelRouterService, opts ...Option) *Suite {
	s := &Suite{
		router:   router,
		validate: validator.New(),
		strategy: models.RoutingFallback,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ── Agent calls ─────────────────────────────────────────────

type rephraseOutput struct {
	RephrasedQuery string `json:"rephrased_query" validate:"required"`
}

// Rephrase restates query in documentation style.
func (s *Suite) Rephrase(ctx context.Context, run *metrics.Run, query string) (string, error) {
	var out rephraseOutput
	if err := s.invoke(ctx, run, Rephraser, promptRephrase, map[string]interface{}{"query": query}, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.RephrasedQuery), nil
}

type selectOutput struct {
	Endpoints []string `json:"endpoints" validate:"required,dive,required"`
}

// SelectEndpoints asks the model for the endpoint that answers query. The
// answer must be exactly one URL, byte-identical to one of offered.
func (s *Suite) SelectEndpoints(ctx context.Context, run *metrics.Run, query, documentation string, offered []string) ([]string, error) {
	var out selectOutput
	input := map[string]interface{}{"documentation": documentation, "query": query}
	if err := s.invoke(ctx, run, EndpointSelector, promptSelectEndpoints, input, &out); err != nil {
		return nil, err
	}
	if err := CheckSelection(out.Endpoints, offered); err != nil {
		return nil, err
	}
	return out.Endpoints, nil
}

// CheckSelection verifies a selection holds exactly one URL that appears
// verbatim in offered.
func CheckSelection(selected, offered []string) error {
	if len(selected) != 1 {
		return fmt.Errorf("%w: want exactly one URL, got %d", ErrInvalidSelection, len(selected))
	}
	for _, u := range offered {
		if u == selected[0] {
			return nil
		}
	}
	return fmt.Errorf("%w: %q is not a documented endpoint", ErrInvalidSelection, selected[0])
}

type requestOutput struct {
	Parameters map[string]interface{} `json:"request_parameters"`
	Body       map[string]interface{} `json:"request_body"`
}

// SynthesizeRequest extracts parameters and body for one endpoint call.
// Neither returned map is nil.
func (s *Suite) SynthesizeRequest(ctx context.Context, run *metrics.Run, query string, schema models.RequestSchema) (params, body map[string]interface{}, err error) {
	var out requestOutput
	input := map[string]interface{}{
		"request_parameters_schema": schema.Parameters,
		"request_body_schema":       schema.Body,
		"query":                     query,
	}
	if err := s.invoke(ctx, run, RequestSynthesizer, promptSynthesizeRequest, input, &out); err != nil {
		return nil, nil, err
	}
	if out.Parameters == nil {
		out.Parameters = map[string]interface{}{}
	}
	if out.Body == nil {
		out.Body = map[string]interface{}{}
	}
	return out.Parameters, out.Body, nil
}

type actionOutput struct {
	NeedsAction *bool `json:"needs_action" validate:"required"`
}

// DecideAction reports whether query needs a computation over the data.
func (s *Suite) DecideAction(ctx context.Context, run *metrics.Run, query string) (bool, error) {
	var out actionOutput
	if err := s.invoke(ctx, run, ActionDecider, promptDecideAction, map[string]interface{}{"query": query}, &out); err != nil {
		return false, err
	}
	return *out.NeedsAction, nil
}

type programOutput struct {
	Code string `json:"code" validate:"required"`
}

// GenerateProgram writes an expr program computing query over records with
// the given fields.
func (s *Suite) GenerateProgram(ctx context.Context, run *metrics.Run, query string, fields []models.DatasetField) (string, error) {
	for i := range fields {
		if err := s.validate.Struct(fields[i]); err != nil {
			return "", fmt.Errorf("dataset field %d: %w", i, err)
		}
	}
	var out programOutput
	input := map[string]interface{}{"query": query, "dataset_fields": fields}
	if err := s.invoke(ctx, run, ProgramGenerator, promptGenerateProgram, input, &out); err != nil {
		return "", err
	}
	return out.Code, nil
}

type answerOutput struct {
	Answer string `json:"answer" validate:"required"`
}

// SynthesizeResponse answers query from context (API responses or records).
func (s *Suite) SynthesizeResponse(ctx context.Context, run *metrics.Run, query string, data interface{}) (string, error) {
	input := map[string]interface{}{"query": query, "context": data}
	return s.answer(ctx, run, promptSynthesizeResponse, input)
}

// SynthesizeWithComputed explains a computed value.
func (s *Suite) SynthesizeWithComputed(ctx context.Context, run *metrics.Run, query string, value interface{}) (string, error) {
	input := map[string]interface{}{"query": query, "computed": value}
	return s.answer(ctx, run, promptSynthesizeComputed, input)
}

// SynthesizeWithoutComputed answers when no value could be computed.
func (s *Suite) SynthesizeWithoutComputed(ctx context.Context, run *metrics.Run, query string) (string, error) {
	return s.answer(ctx, run, promptSynthesizeNotComputed, map[string]interface{}{"query": query})
}

func (s *Suite) answer(ctx context.Context, run *metrics.Run, prompt string, input interface{}) (string, error) {
	var out answerOutput
	if err := s.invoke(ctx, run, ResponseSynthesizer, prompt, input, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

type followUpOutput struct {
	FollowUps []string `json:"follow_up" validate:"len=3,dive,required"`
}

// FollowUps suggests three related queries.
func (s *Suite) FollowUps(ctx context.Context, run *metrics.Run, query string) ([]string, error) {
	var out followUpOutput
	if err := s.invoke(ctx, run, FollowUpGenerator, promptFollowUps, map[string]interface{}{"query": query}, &out); err != nil {
		return nil, err
	}
	return out.FollowUps, nil
}

// ── Transport ───────────────────────────────────────────────

// invoke sends one agent call and decodes the validated answer into out.
func (s *Suite) invoke(ctx context.Context, run *metrics.Run, agent, system string, input, out interface{}) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("%s: encode input: %w", agent, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	messages := []models.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: string(payload)},
	}
	start := time.Now()
	resp, err := s.router.Route(ctx, &models.RouteRequest{
		Messages: messages,
		Model:    s.model,
		Strategy: s.strategy,
		AgentRef: agent,
		JSONMode: true,
	})
	elapsed := time.Since(start)
	if err != nil {
		return fmt.Errorf("%s: %w", agent, err)
	}

	if run != nil {
		run.Add(models.AgentInvocationLog{
			Agent:    agent,
			Cost:     resp.Usage.EstimatedCost,
			Tokens:   resp.Usage.TotalTokens,
			Duration: elapsed,
			Messages: []string{system, string(payload)},
			Outputs:  []string{resp.Content},
		})
	}

	if err := json.Unmarshal([]byte(ExtractJSON(resp.Content)), out); err != nil {
		log.Warn().Str("agent", agent).Str("content", truncate(resp.Content, 200)).Msg("Agent returned malformed JSON")
		return fmt.Errorf("%s: %w: %v", agent, ErrInvalidOutput, err)
	}
	if err := s.validate.Struct(out); err != nil {
		return fmt.Errorf("%s: %w: %v", agent, ErrInvalidOutput, err)
	}

	log.Debug().
		Str("agent", agent).
		Str("provider", resp.Provider).
		Int64("tokens", resp.Usage.TotalTokens).
		Dur("latency", elapsed).
		Msg("Agent call complete")
	return nil
}

// ExtractJSON returns the outermost JSON object in s, dropping code fences
// and any prose around it. s is returned unchanged when no object is found.
func ExtractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
