package redact_test

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/agentoven/actionrag/internal/redact"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"a/b/c", []string{"a", "b", "c"}},
		{"#/a/b/c", []string{"a", "b", "c"}},
		{"#a/b/c", []string{"#a", "b", "c"}},
		{"a.b", []string{"a", "b"}},
		{"single", []string{"single"}},
		{"", nil},
		{"   ", nil},
	}
	for _, tt := range tests {
		if got := redact.Normalize(tt.path); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Normalize(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestNormalize_MarkerOnlyAffectsFirstSegment(t *testing.T) {
	plain := redact.Normalize("a/b/c")
	marked := redact.Normalize("#a/b/c")

	require.Len(t, marked, len(plain))
	assert.Equal(t, "#"+plain[0], marked[0])
	assert.Equal(t, plain[1:], marked[1:])
}

func TestApply_RemovesTopLevelKey(t *testing.T) {
	record := map[string]interface{}{"a": 1.0, "b": "keep"}

	got := redact.Apply(record, []string{"a"})

	want := map[string]interface{}{"b": "keep"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply() = %v, want %v", got, want)
	}
	if _, ok := record["a"]; !ok {
		t.Error("Apply() mutated its input")
	}
}

func TestApply_NestedPath(t *testing.T) {
	record := map[string]interface{}{
		"user": map[string]interface{}{
			"name":  "ada",
			"email": "ada@example.com",
		},
	}

	got := redact.Apply(record, []string{"user/email"})

	assert.Equal(t, map[string]interface{}{
		"user": map[string]interface{}{"name": "ada"},
	}, got)
}

func TestApply_FindsKeyBelowRoot(t *testing.T) {
	record := map[string]interface{}{
		"data": map[string]interface{}{
			"order": map[string]interface{}{"id": 1.0, "secret": "x"},
		},
	}

	got := redact.Apply(record, []string{"order/secret"})

	assert.Equal(t, map[string]interface{}{
		"data": map[string]interface{}{
			"order": map[string]interface{}{"id": 1.0},
		},
	}, got)
}

func TestApply_SequenceIndex(t *testing.T) {
	record := map[string]interface{}{
		"items": []interface{}{"a", "b", "c"},
	}

	got := redact.Apply(record, []string{"items/1"})
	assert.Equal(t, map[string]interface{}{"items": []interface{}{"a", "c"}}, got)

	got = redact.Apply(record, []string{"items/7"})
	assert.Equal(t, record, got, "out of range index is a no-op")

	got = redact.Apply(record, []string{"items/-1"})
	assert.Equal(t, record, got, "negative index is a no-op")
}

func TestApply_OnlyFirstMatchPerPath(t *testing.T) {
	records := []interface{}{
		map[string]interface{}{"id": 1.0, "extra": "x"},
		map[string]interface{}{"id": 2.0, "extra": "y"},
	}

	got := redact.Apply(records, []string{"extra"}).([]interface{})

	assert.NotContains(t, got[0], "extra")
	assert.Contains(t, got[1], "extra")
}

func TestApply_MissingPathIsNoop(t *testing.T) {
	record := map[string]interface{}{
		"a": map[string]interface{}{"b": []interface{}{1.0, 2.0}},
	}

	got := redact.Apply(record, []string{"a/c", "zz", "", "a/b/x"})

	if !reflect.DeepEqual(got, record) {
		t.Errorf("Apply() = %v, want unchanged %v", got, record)
	}
}

func TestRetain_RemovesUndeclaredField(t *testing.T) {
	fields := []models.DatasetField{
		{Name: "created_at", Type: "string"},
		{Name: "total_amount", Type: "number"},
	}
	record := map[string]interface{}{
		"created_at":   "2024-11-01",
		"total_amount": 100.0,
		"x":            "undeclared",
	}

	got := redact.Retain(record, fields)

	want := map[string]interface{}{
		"created_at":   "2024-11-01",
		"total_amount": 100.0,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Retain() = %v, want %v", got, want)
	}
}

func TestRetain_KeysWithSeparators(t *testing.T) {
	tests := []struct {
		name   string
		fields []models.DatasetField
		record map[string]interface{}
		want   map[string]interface{}
	}{
		{
			name:   "dotted slashed and empty keys",
			fields: []models.DatasetField{{Name: "created_at"}, {Name: "total_amount"}},
			record: map[string]interface{}{
				"created_at":   "2024-11-01",
				"total_amount": 100.0,
				"meta.secret":  "s",
				"":             "blank",
				"x/y":          "z",
			},
			want: map[string]interface{}{"created_at": "2024-11-01", "total_amount": 100.0},
		},
		{
			name:   "dotted key does not reach into declared subtree",
			fields: []models.DatasetField{{Name: "a"}},
			record: map[string]interface{}{
				"a.b": 1.0,
				"a":   map[string]interface{}{"b": 2.0},
			},
			want: map[string]interface{}{"a": map[string]interface{}{"b": 2.0}},
		},
		{
			name:   "separator keys inside a partially declared mapping",
			fields: []models.DatasetField{{Name: "customer/name"}},
			record: map[string]interface{}{
				"customer": map[string]interface{}{"name": "ada", "name.raw": "ADA", "": "x"},
			},
			want: map[string]interface{}{"customer": map[string]interface{}{"name": "ada"}},
		},
	}
	for _, tt := range tests {
		got := redact.Retain(tt.record, tt.fields)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: Retain() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRetain_NestedDeclarations(t *testing.T) {
	fields := []models.DatasetField{
		{Name: "customer/name"},
		{Name: "items/price"},
		{Name: "meta"},
	}
	record := map[string]interface{}{
		"customer": map[string]interface{}{"name": "ada", "email": "a@x.io"},
		"items": []interface{}{
			map[string]interface{}{"price": 3.0, "sku": "A1"},
			map[string]interface{}{"price": 4.0, "sku": "B2"},
		},
		"meta":     map[string]interface{}{"anything": true},
		"password": "hunter2",
	}

	got := redact.Retain(record, fields)

	assert.Equal(t, map[string]interface{}{
		"customer": map[string]interface{}{"name": "ada"},
		"items": []interface{}{
			map[string]interface{}{"price": 3.0},
			map[string]interface{}{"price": 4.0},
		},
		"meta": map[string]interface{}{"anything": true},
	}, got)
}

func TestRetainAll_EachRecordCleaned(t *testing.T) {
	fields := []models.DatasetField{{Name: "created_at"}, {Name: "total_amount"}}
	records := []interface{}{
		map[string]interface{}{"created_at": "2024-11-01", "total_amount": 100.0, "extra": "x"},
		map[string]interface{}{"created_at": "2024-10-01", "total_amount": 50.0, "extra": "y"},
	}

	got := redact.RetainAll(records, fields)

	require.Len(t, got, 2)
	for i, r := range got {
		m := r.(map[string]interface{})
		assert.NotContains(t, m, "extra", "record %d", i)
		assert.Len(t, m, 2, "record %d", i)
	}
}

// ── Properties ──────────────────────────────────────────────

func genTree(depth int) *rapid.Generator[interface{}] {
	return rapid.Custom(func(t *rapid.T) interface{} {
		kind := 0
		if depth > 0 {
			kind = rapid.IntRange(0, 2).Draw(t, "kind")
		}
		switch kind {
		case 1:
			n := rapid.IntRange(0, 3).Draw(t, "fields")
			m := make(map[string]interface{}, n)
			for i := 0; i < n; i++ {
				k := rapid.SampledFrom([]string{"a", "b", "c", "d"}).Draw(t, "key")
				m[k] = genTree(depth-1).Draw(t, "value")
			}
			return m
		case 2:
			n := rapid.IntRange(0, 3).Draw(t, "items")
			s := make([]interface{}, n)
			for i := range s {
				s[i] = genTree(depth-1).Draw(t, "item")
			}
			return s
		default:
			return rapid.Float64Range(-100, 100).Draw(t, "scalar")
		}
	})
}

func TestApply_AbsentPathIsIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := genTree(3).Draw(t, "tree")
		tail := rapid.SampledFrom([]string{"", "/a", "/b/0"}).Draw(t, "tail")
		path := "zz" + tail

		got := redact.Apply(tree, []string{path})

		if fmt.Sprint(got) != fmt.Sprint(tree) {
			t.Fatalf("Apply(%v, %q) = %v, want unchanged", tree, path, got)
		}
	})
}

func TestApply_NeverMutatesInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := genTree(3).Draw(t, "tree")
		before := fmt.Sprint(tree)
		path := rapid.SampledFrom([]string{"a", "b/c", "a/0", "#/d"}).Draw(t, "path")

		redact.Apply(tree, []string{path})

		if fmt.Sprint(tree) != before {
			t.Fatalf("input mutated by Apply(_, %q): %s -> %v", path, before, tree)
		}
	})
}
