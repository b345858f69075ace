package compute_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/agentoven/actionrag/internal/compute"
	"github.com/agentoven/actionrag/internal/metrics"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	src string
	err error
}

func (g *stubGenerator) GenerateProgram(_ context.Context, _ *metrics.Run, _ string, _ []models.DatasetField) (string, error) {
	return g.src, g.err
}

const novemberAverage = "```expr\n" +
	"let nov = filter(records, hasPrefix(.created_at, \"2024-11\"));\n" +
	"len(nov) == 0 ? 0 : sum(map(nov, .total_amount)) / len(nov)\n" +
	"```"

var orderFields = []models.DatasetField{
	{Name: "created_at", Type: "string"},
	{Name: "total_amount", Type: "number"},
}

func orders() []interface{} {
	return []interface{}{
		map[string]interface{}{"created_at": "2024-11-01", "total_amount": 100.0, "extra": "x"},
		map[string]interface{}{"created_at": "2024-10-01", "total_amount": 50.0, "extra": "y"},
	}
}

func TestCompute_NovemberAverage(t *testing.T) {
	engine := compute.NewEngine(&stubGenerator{src: novemberAverage})

	res := engine.Compute(context.Background(), metrics.NewRun(nil), "average November order", orderFields, orders())

	require.NoError(t, res.Err)
	assert.False(t, res.Insufficient())
	assert.EqualValues(t, 100.0, res.Value)
	for _, r := range res.Redacted {
		assert.NotContains(t, r, "extra")
	}
}

func TestCompute_WholeRecordBuiltinsSeeDeclaredFieldsOnly(t *testing.T) {
	engine := compute.NewEngine(&stubGenerator{src: "sort(keys(records[0]))"})
	records := []interface{}{
		map[string]interface{}{
			"created_at":   "2024-11-01",
			"total_amount": 100.0,
			"meta.secret":  "s",
			"":             "blank",
			"x/y":          "z",
		},
	}

	res := engine.Compute(context.Background(), metrics.NewRun(nil), "which fields", orderFields, records)
	if res.Err != nil {
		t.Fatalf("Compute() error = %v", res.Err)
	}

	want := []interface{}{"created_at", "total_amount"}
	if !reflect.DeepEqual(res.Value, want) {
		t.Errorf("Compute() value = %v, want %v", res.Value, want)
	}
}

func TestCompute_NoMatchesIsZero(t *testing.T) {
	engine := compute.NewEngine(&stubGenerator{src: novemberAverage})
	records := []interface{}{
		map[string]interface{}{"created_at": "2024-10-01", "total_amount": 50.0},
	}

	res := engine.Compute(context.Background(), metrics.NewRun(nil), "average November order", orderFields, records)

	require.NoError(t, res.Err)
	assert.EqualValues(t, 0, res.Value)
}

func TestCompute_NilIsInsufficient(t *testing.T) {
	engine := compute.NewEngine(&stubGenerator{src: "len(records) > 10 ? len(records) : nil"})

	res := engine.Compute(context.Background(), metrics.NewRun(nil), "q", orderFields, orders())

	assert.NoError(t, res.Err)
	assert.Nil(t, res.Value)
	assert.True(t, res.Insufficient())
}

func TestCompute_FailuresFollowNilPath(t *testing.T) {
	tests := []struct {
		name string
		gen  *stubGenerator
	}{
		{"generator error", &stubGenerator{err: errors.New("model unavailable")}},
		{"syntax error", &stubGenerator{src: "records[[["}},
		{"undeclared field", &stubGenerator{src: "map(records, .extra)"}},
		{"unknown identifier", &stubGenerator{src: "readFile(\"/etc/passwd\")"}},
		{"empty program", &stubGenerator{src: "```expr\n```"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := compute.NewEngine(tt.gen)

			res := engine.Compute(context.Background(), metrics.NewRun(nil), "q", orderFields, orders())

			require.Error(t, res.Err)
			assert.ErrorIs(t, res.Err, compute.ErrGeneratedProgram)
			assert.True(t, res.Insufficient())
		})
	}
}

func TestCompute_RuntimeErrorIsCaught(t *testing.T) {
	engine := compute.NewEngine(&stubGenerator{src: "records[5].total_amount"})

	res := engine.Compute(context.Background(), metrics.NewRun(nil), "q", orderFields, orders())

	assert.ErrorIs(t, res.Err, compute.ErrGeneratedProgram)
	assert.True(t, res.Insufficient())
}

func TestCompute_ProgramBoundToRun(t *testing.T) {
	engine := compute.NewEngine(&stubGenerator{src: "len(records)"})
	run := metrics.NewRun(nil)

	res := engine.Compute(context.Background(), run, "q", orderFields, orders())

	assert.Equal(t, run.ID(), res.Program.RunID)
	assert.Equal(t, "len(records)", res.Program.Source)
	assert.EqualValues(t, 2, res.Value)
}

func TestCompile_MaxNodes(t *testing.T) {
	engine := compute.NewEngine(nil, compute.WithMaxNodes(3))

	_, err := engine.Compile("run", "1 + 2 + 3 + 4 + 5", nil)

	assert.ErrorIs(t, err, compute.ErrGeneratedProgram)
}

func TestRun_Timeout(t *testing.T) {
	engine := compute.NewEngine(nil, compute.WithTimeout(time.Millisecond))
	// Nine million predicate calls over one shared range.
	prog, err := engine.Compile("run", "let r = 1..3000; all(r, {all(r, {# > 0})})", nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	start := time.Now()
	_, err = engine.Run(context.Background(), prog, nil)
	elapsed := time.Since(start)

	if !errors.Is(err, compute.ErrGeneratedProgram) {
		t.Fatalf("Run() error = %v, want ErrGeneratedProgram", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
	if elapsed > time.Second {
		t.Errorf("Run() returned after %v, want about the 1ms timeout", elapsed)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	engine := compute.NewEngine(nil)
	prog, err := engine.Compile("run", "let r = 1..3000; all(r, {all(r, {# > 0})})", nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = engine.Run(ctx, prog, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```expr\nlen(records)\n```", "len(records)"},
		{"```\na\nb\n```\n", "a\nb"},
		{"len(records)", "len(records)"},
		{"len(records)\n```", "len(records)\n```"},
	}
	for _, tt := range tests {
		if got := compute.StripFence(tt.in); got != tt.want {
			t.Errorf("StripFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
