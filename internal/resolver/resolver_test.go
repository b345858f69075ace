package resolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/agentoven/actionrag/internal/metrics"
	"github.com/agentoven/actionrag/internal/resolver"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSchemas struct {
	responses map[string]string
	requests  map[string]models.RequestSchema
}

func (m *mapSchemas) ResponseSchema(_ context.Context, route string) (string, error) {
	s, ok := m.responses[route]
	if !ok {
		return "", errors.New("missing")
	}
	return s, nil
}

func (m *mapSchemas) RequestSchema(_ context.Context, route string) (models.RequestSchema, error) {
	s, ok := m.requests[route]
	if !ok {
		return models.RequestSchema{}, errors.New("missing")
	}
	return s, nil
}

func doc(path, content string, score float64) models.ScoredDocument {
	return models.ScoredDocument{Document: models.Document{Path: path, Content: content}, Score: score}
}

func TestResolve_DigestAndCandidates(t *testing.T) {
	schemas := &mapSchemas{responses: map[string]string{"orders/history": `{"type":"array"}`}}
	r := resolver.NewResolver(schemas)

	res, err := r.Resolve(context.Background(), "http://127.0.0.1:8000/", []models.ScoredDocument{
		doc("docs/orders/history/get.txt", "List past orders", 0.9),
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	assert.Equal(t, "http://127.0.0.1:8000/orders/history", c.URL)
	assert.Equal(t, "orders/history", c.Route)
	assert.Equal(t, "GET", c.Method)
	assert.Equal(t,
		"Endpoint URL: http://127.0.0.1:8000/orders/history: List past orders\nResponse Schema of orders/history\n{\"type\":\"array\"}\n",
		res.Digest)
}

func TestResolve_SkipsNoneAndDuplicates(t *testing.T) {
	r := resolver.NewResolver(&mapSchemas{})

	res, err := r.Resolve(context.Background(), "http://api", []models.ScoredDocument{
		doc("docs/cart/add/post.txt", "Add to cart (best)", 0.9),
		doc("docs/cart/add/post.md", "Add to cart (worse)", 0.5),
		doc("docs/cart/view/get.txt", "None", 0.4),
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "Add to cart (best)", res.Candidates[0].Documentation)
	assert.Empty(t, res.Candidates[0].ResponseSchema, "missing schema is empty")
	assert.Equal(t, []string{"http://api/cart/add"}, res.URLs())
}

func TestResolve_Empty(t *testing.T) {
	r := resolver.NewResolver(&mapSchemas{})

	res, err := r.Resolve(context.Background(), "http://api", []models.ScoredDocument{doc("docs/x/get.txt", "None", 1)})

	assert.ErrorIs(t, err, resolver.ErrResolutionEmpty)
	require.NotNil(t, res)
	assert.Empty(t, res.Digest)
}

func TestParseDocPath(t *testing.T) {
	tests := []struct {
		path, route, method string
		ok                  bool
	}{
		{"docs/orders/history/get.txt", "orders/history", "GET", true},
		{"root/products/search/Post.txt", "products/search", "POST", true},
		{"docs/delete.txt", "", "DELETE", true},
		{"get.txt", "", "", false},
	}
	for _, tt := range tests {
		route, method, ok := resolver.ParseDocPath(tt.path)
		if route != tt.route || method != tt.method || ok != tt.ok {
			t.Errorf("ParseDocPath(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.path, route, method, ok, tt.route, tt.method, tt.ok)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://127.0.0.1:8000/orders?limit=5", "http://127.0.0.1:8000/orders"},
		{"HTTP://API.Example.com/a#frag", "http://api.example.com/a"},
		{"http://api/a?", "http://api/a"},
		{"/relative?x=1", "/relative"},
	}
	for _, tt := range tests {
		if got := resolver.NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type stubAgent struct {
	params, body map[string]interface{}
	gotSchema    models.RequestSchema
}

func (s *stubAgent) SynthesizeRequest(_ context.Context, _ *metrics.Run, _ string, schema models.RequestSchema) (map[string]interface{}, map[string]interface{}, error) {
	s.gotSchema = schema
	return s.params, s.body, nil
}

func TestSynthesize(t *testing.T) {
	schemas := &mapSchemas{requests: map[string]models.RequestSchema{
		"cart/add": {Parameters: "{}", Body: `{"product_id":"int"}`},
	}}
	agent := &stubAgent{body: map[string]interface{}{"product_id": 7.0}}
	s := resolver.NewSynthesizer(schemas, agent)

	spec, err := s.Synthesize(context.Background(), metrics.NewRun(nil), "add item 7", models.EndpointCandidate{
		URL: "http://api/cart/add?x=1", Route: "cart/add", Method: "POST",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://api/cart/add", spec.URL)
	assert.Equal(t, "POST", spec.Method)
	assert.NotNil(t, spec.Parameters)
	assert.Equal(t, 7.0, spec.Body["product_id"])
	assert.Equal(t, `{"product_id":"int"}`, agent.gotSchema.Body)
}

func TestSynthesizeAll_UnknownURL(t *testing.T) {
	s := resolver.NewSynthesizer(&mapSchemas{}, &stubAgent{})
	res := &resolver.Resolution{Candidates: []models.EndpointCandidate{{URL: "http://api/a"}}}

	_, err := s.SynthesizeAll(context.Background(), metrics.NewRun(nil), "q", res, []string{"http://api/b"})

	assert.ErrorIs(t, err, resolver.ErrResolutionEmpty)
}
