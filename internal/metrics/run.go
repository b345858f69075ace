// Package metrics records per-run agent telemetry and exports process-wide
// Prometheus metrics for the query pipeline.
//
// A Run is created by the orchestrator for one query and handed explicitly
// to every stage that calls an agent. Nothing is shared between runs; the
// finished summary is appended to the history store by the caller.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/agentoven/actionrag/pkg/models"
	"github.com/google/uuid"
)

// Run accumulates agent invocation logs for a single pipeline run.
type Run struct {
	id      string
	allowed map[string]bool
	started time.Time

	mu        sync.Mutex
	logs      []models.AgentInvocationLog
	endpoints []string
}

// NewRun starts a run. When allow is non-empty only agents named in it are
// recorded; otherwise every agent is.
func NewRun(allow []string) *Run {
	r := &Run{
		id:      uuid.New().String(),
		started: time.Now(),
	}
	if len(allow) > 0 {
		r.allowed = make(map[string]bool, len(allow))
		for _, a := range allow {
			r.allowed[a] = true
		}
	}
	return r
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Started returns the time the run was created.
func (r *Run) Started() time.Time { return r.started }

// Add records one agent invocation. Calls from agents outside the
// allow-list are dropped.
func (r *Run) Add(entry models.AgentInvocationLog) {
	if r.allowed != nil && !r.allowed[entry.Agent] {
		return
	}
	r.mu.Lock()
	r.logs = append(r.logs, entry)
	r.mu.Unlock()

	agentTokens.WithLabelValues(entry.Agent).Add(float64(entry.Tokens))
	agentCost.WithLabelValues(entry.Agent).Add(entry.Cost)
}

// SetRetrievedEndpoints records the endpoints the run resolved.
func (r *Run) SetRetrievedEndpoints(endpoints []string) {
	r.mu.Lock()
	r.endpoints = append([]string(nil), endpoints...)
	r.mu.Unlock()
}

// Logs returns a copy of the recorded invocations in arrival order.
func (r *Run) Logs() []models.AgentInvocationLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AgentInvocationLog(nil), r.logs...)
}

// Totals sums cost, tokens and agent time over the recorded invocations.
func (r *Run) Totals() (cost float64, tokens int64, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		cost += l.Cost
		tokens += l.Tokens
		elapsed += l.Duration
	}
	return cost, tokens, elapsed
}

// Clear drops every recorded invocation.
func (r *Run) Clear() {
	r.mu.Lock()
	r.logs = nil
	r.endpoints = nil
	r.mu.Unlock()
}

// Harvest builds the run summary. Latency is total minus execution time,
// clamped at zero.
func (r *Run) Harvest(total, execution time.Duration) models.QueryMetrics {
	cost, tokens, _ := r.Totals()

	r.mu.Lock()
	outputs := make(map[string][]string)
	for _, l := range r.logs {
		outputs[l.Agent] = append(outputs[l.Agent], l.Outputs...)
	}
	endpoints := append([]string{}, r.endpoints...)
	r.mu.Unlock()

	latency := total - execution
	if latency < 0 {
		latency = 0
	}

	return models.QueryMetrics{
		RunID:              r.id,
		TokenUsage:         tokens,
		Cost:               cost,
		Latency:            latency.Seconds(),
		ExecutionTime:      execution.Seconds(),
		TotalTime:          total.Seconds(),
		RetrievedEndpoints: endpoints,
		AgentOutputs:       outputs,
		CreatedAt:          time.Now().UTC(),
	}
}

// Agents returns the distinct agent names recorded so far, sorted.
func (r *Run) Agents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var names []string
	for _, l := range r.logs {
		if !seen[l.Agent] {
			seen[l.Agent] = true
			names = append(names, l.Agent)
		}
	}
	sort.Strings(names)
	return names
}
