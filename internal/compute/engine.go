// Package compute runs synthesized computations over retrieved records.
//
// A computation is generated by a model as a program in the expr language
// (github.com/expr-lang/expr). The program sees exactly one variable,
// `records`, holding the redacted record sequence, and its value is the
// result. A nil result means the data was insufficient.
//
// Programs are compiled in memory for a single run and never touch the
// filesystem: expr has no I/O builtins, unknown identifiers fail to compile,
// and evaluation is bounded by a node limit and a timeout.
//
// Records are redacted to the declared dataset fields before the program
// sees them (internal/redact); that is the access boundary. The compile-time
// check that member accesses name declared fields only catches mistakes
// early: builtins such as keys, values or toPairs and computed keys are not
// inspected by it.
package compute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentoven/actionrag/internal/metrics"
	"github.com/agentoven/actionrag/internal/redact"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"
)

// RecordsVar is the uniform entry point every generated program reads.
const RecordsVar = "records"

const (
	DefaultTimeout  = 2 * time.Second
	DefaultMaxNodes = 2000
)

// ErrGeneratedProgram wraps every failure of a synthesized program: generation,
// compilation, field checks, runtime errors and timeouts.
var ErrGeneratedProgram = errors.New("generated program failure")

// ProgramGenerator produces program source for a computation request.
// Implementation: internal/agents.Suite
type ProgramGenerator interface {
	GenerateProgram(ctx context.Context, run *metrics.Run, query string, fields []models.DatasetField) (string, error)
}

// Program is a compiled computation bound to one run.
type Program struct {
	models.GeneratedProgram
	compiled *vm.Program
}

// Result is the outcome of one computation.
type Result struct {
	Program  models.GeneratedProgram `json:"program"`
	Value    interface{}             `json:"value"`
	Redacted []interface{}           `json:"-"`
	Err      error                   `json:"-"`
}

// Insufficient reports whether the computation produced no usable value,
// either because the program returned nil or because it failed.
func (r *Result) Insufficient() bool {
	return r.Err != nil || r.Value == nil
}

// Engine generates, compiles and evaluates computations.
type Engine struct {
	generator ProgramGenerator
	timeout   time.Duration
	maxNodes  uint
}

// Option configures the engine.
type Option func(*Engine)

// WithTimeout bounds program evaluation time.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithMaxNodes bounds program size.
func WithMaxNodes(n uint) Option {
	return func(e *Engine) { e.maxNodes = n }
}

// NewEngine creates a computation engine backed by the given generator.
func NewEngine(gen ProgramGenerator, opts ...Option) *Engine {
	e := &Engine{
		generator: gen,
		timeout:   DefaultTimeout,
		maxNodes:  DefaultMaxNodes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute generates a program for query, redacts records down to fields and
// evaluates the program over them. Program failures are reported in
// Result.Err rather than returned, so callers can fall back to the
// "no computed output" path.
func (e *Engine) Compute(ctx context.Context, run *metrics.Run, query string, fields []models.DatasetField, records []interface{}) *Result {
	res := &Result{Program: models.GeneratedProgram{RunID: run.ID()}}

	src, err := e.generator.GenerateProgram(ctx, run, query, fields)
	if err != nil {
		res.Err = fmt.Errorf("%w: generate: %v", ErrGeneratedProgram, err)
		return res
	}
	src = StripFence(src)
	res.Program.Source = src

	prog, err := e.Compile(run.ID(), src, fields)
	if err != nil {
		res.Err = err
		log.Warn().Err(err).Str("run_id", run.ID()).Msg("Generated program rejected")
		return res
	}

	res.Redacted = redact.RetainAll(records, fields)

	value, err := e.Run(ctx, prog, res.Redacted)
	if err != nil {
		res.Err = err
		log.Warn().Err(err).Str("run_id", run.ID()).Msg("Generated program failed")
		return res
	}
	res.Value = value

	log.Debug().
		Str("run_id", run.ID()).
		Int("records", len(records)).
		Bool("insufficient", value == nil).
		Msg("Computation complete")
	return res
}

// Compile parses and checks src, then compiles it for runID.
func (e *Engine) Compile(runID, src string, fields []models.DatasetField) (*Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty program", ErrGeneratedProgram)
	}

	tree, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrGeneratedProgram, err)
	}
	checker := newFieldChecker(fields)
	ast.Walk(&tree.Node, checker)
	if len(checker.unknown) > 0 {
		return nil, fmt.Errorf("%w: undeclared fields referenced: %s", ErrGeneratedProgram, strings.Join(checker.unknown, ", "))
	}

	env := map[string]interface{}{RecordsVar: []interface{}{}}
	compiled, err := expr.Compile(src, expr.Env(env), expr.MaxNodes(e.maxNodes))
	if err != nil {
		return nil, fmt.Errorf("%w: compile: %v", ErrGeneratedProgram, err)
	}

	return &Program{
		GeneratedProgram: models.GeneratedProgram{RunID: runID, Source: src},
		compiled:         compiled,
	}, nil
}

// Run evaluates a compiled program over records, bounded by the engine
// timeout and ctx. On timeout Run returns immediately, but the evaluating
// goroutine keeps running until the program ends: the expr VM cannot be
// interrupted.
func (e *Engine) Run(ctx context.Context, p *Program, records []interface{}) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: panic: %v", ErrGeneratedProgram, r)}
			}
		}()
		v, err := expr.Run(p.compiled, map[string]interface{}{RecordsVar: records})
		if err != nil {
			err = fmt.Errorf("%w: run: %v", ErrGeneratedProgram, err)
		}
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrGeneratedProgram, ctx.Err())
	}
}

// StripFence removes a Markdown code fence around generated source. When the
// first line is a fence marker the first and last lines are dropped;
// otherwise the text is returned unchanged.
func StripFence(src string) string {
	lines := strings.Split(strings.TrimRight(src, " \t\r\n"), "\n")
	if len(lines) == 0 || !strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		return src
	}
	if len(lines) < 2 {
		return ""
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}

// ── Field checks ────────────────────────────────────────────

// fieldChecker collects member names that are not segments of a declared
// dataset field.
type fieldChecker struct {
	allowed map[string]bool
	unknown []string
	seen    map[string]bool
}

func newFieldChecker(fields []models.DatasetField) *fieldChecker {
	c := &fieldChecker{
		allowed: make(map[string]bool),
		seen:    make(map[string]bool),
	}
	for _, f := range fields {
		for _, seg := range redact.Normalize(f.Name) {
			c.allowed[seg] = true
		}
	}
	return c
}

func (c *fieldChecker) Visit(node *ast.Node) {
	member, ok := (*node).(*ast.MemberNode)
	if !ok {
		return
	}
	name, ok := member.Property.(*ast.StringNode)
	if !ok {
		return
	}
	if !c.allowed[name.Value] && !c.seen[name.Value] {
		c.seen[name.Value] = true
		c.unknown = append(c.unknown, name.Value)
	}
}
