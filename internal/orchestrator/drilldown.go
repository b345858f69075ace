package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentoven/actionrag/internal/compute"
	"github.com/agentoven/actionrag/internal/metrics"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/rs/zerolog/log"
)

// DrillDownRequest asks a question about a set of records, typically the
// responses of an earlier retrieval run.
type DrillDownRequest struct {
	Query   string                `json:"query" validate:"required"`
	Fields  []models.DatasetField `json:"dataset_fields" validate:"dive"`
	Records []interface{}         `json:"records"`
}

// DrillDownResult is the outcome of a drill-down run.
type DrillDownResult struct {
	Response     string                   `json:"response"`
	NeedsAction  bool                     `json:"needs_action"`
	Computed     interface{}              `json:"computed,omitempty"`
	Program      *models.GeneratedProgram `json:"program,omitempty"`
	ComputeError *models.ErrorEnvelope    `json:"compute_error,omitempty"`
	QueryMetrics *models.QueryMetrics     `json:"query_metrics,omitempty"`
}

// DrillDown answers a query over records. When the query needs a
// computation, a generated program is evaluated over the records redacted
// to the declared fields; a program that fails or returns nil leads to an
// answer that says no value could be computed.
func (o *Orchestrator) DrillDown(ctx context.Context, req DrillDownRequest) (*DrillDownResult, error) {
	run := metrics.NewRun(o.allow)

	var needsAction bool
	err := o.stage(ctx, run, "decide_action", func(ctx context.Context) error {
		var err error
		needsAction, err = o.agents.DecideAction(ctx, run, req.Query)
		return err
	})
	if err != nil {
		metrics.ObserveRun(FlowDrillDown, metrics.OutcomeFailed)
		return nil, fmt.Errorf("decide action: %w", err)
	}

	res := &DrillDownResult{NeedsAction: needsAction}
	outcome := metrics.OutcomeAnswered

	var execution time.Duration
	if !needsAction {
		err = o.stage(ctx, run, "synthesize_response", func(ctx context.Context) error {
			var err error
			res.Response, err = o.agents.SynthesizeResponse(ctx, run, req.Query, req.Records)
			return err
		})
	} else {
		var computed *compute.Result
		start := time.Now()
		_ = o.stage(ctx, run, "compute", func(ctx context.Context) error {
			computed = o.engine.Compute(ctx, run, req.Query, req.Fields, req.Records)
			return computed.Err
		})
		execution = time.Since(start)

		if computed.Program.Source != "" {
			prog := computed.Program
			res.Program = &prog
		}
		if computed.Err != nil {
			res.ComputeError = &models.ErrorEnvelope{
				Kind:    models.ErrorKindComputation,
				Message: computed.Err.Error(),
			}
		}
		if ctx.Err() != nil {
			metrics.ObserveRun(FlowDrillDown, metrics.OutcomeFailed)
			return nil, fmt.Errorf("compute: %w", ctx.Err())
		}

		if computed.Insufficient() {
			outcome = metrics.OutcomeNotComputed
			err = o.stage(ctx, run, "synthesize_response", func(ctx context.Context) error {
				var err error
				res.Response, err = o.agents.SynthesizeWithoutComputed(ctx, run, req.Query)
				return err
			})
		} else {
			outcome = metrics.OutcomeComputed
			res.Computed = computed.Value
			err = o.stage(ctx, run, "synthesize_response", func(ctx context.Context) error {
				var err error
				res.Response, err = o.agents.SynthesizeWithComputed(ctx, run, req.Query, computed.Value)
				return err
			})
		}
	}
	if err != nil {
		metrics.ObserveRun(FlowDrillDown, metrics.OutcomeFailed)
		return nil, fmt.Errorf("synthesize response: %w", err)
	}

	qm := run.Harvest(time.Since(run.Started()), execution)
	run.Clear()
	res.QueryMetrics = &qm
	metrics.ObserveRun(FlowDrillDown, outcome)

	log.Info().
		Str("run_id", run.ID()).
		Bool("needs_action", needsAction).
		Bool("computed", res.Computed != nil).
		Msg("Drill-down complete")
	return res, nil
}

// FollowUps suggests three queries related to query.
func (o *Orchestrator) FollowUps(ctx context.Context, query string) ([]string, error) {
	if query == "" {
		return nil, errors.New("query is required")
	}
	run := metrics.NewRun(o.allow)
	var out []string
	err := o.stage(ctx, run, "follow_ups", func(ctx context.Context) error {
		var err error
		out, err = o.agents.FollowUps(ctx, run, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("follow-ups: %w", err)
	}
	return out, nil
}
