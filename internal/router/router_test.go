package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentoven/actionrag/internal/router"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDriver is a test ProviderDriver.
type mockDriver struct {
	kind  string
	fail  map[string]bool
	calls []string
}

func (d *mockDriver) Kind() string { return d.kind }
func (d *mockDriver) Call(ctx context.Context, provider *models.ModelProvider, req *models.RouteRequest) (*models.RouteResponse, error) {
	d.calls = append(d.calls, provider.Name)
	if d.fail[provider.Name] {
		return nil, errors.New("provider down")
	}
	return &models.RouteResponse{
		Provider: provider.Name,
		Model:    req.Model,
		Content:  "mock response from " + d.kind,
	}, nil
}
func (d *mockDriver) HealthCheck(ctx context.Context, provider *models.ModelProvider) error {
	if d.fail[provider.Name] {
		return errors.New("unhealthy")
	}
	return nil
}

func TestBuiltinDriversRegistered(t *testing.T) {
	mr := router.NewModelRouter(nil)

	drivers := mr.ListDrivers()
	expected := []string{"openai", "azure-openai", "anthropic", "ollama"}

	for _, exp := range expected {
		found := false
		for _, d := range drivers {
			if d == exp {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in driver %q not found in %v", exp, drivers)
		}
	}
}

func TestRegisterDriver_Overrides(t *testing.T) {
	mr := router.NewModelRouter(nil)
	mr.RegisterDriver(&mockDriver{kind: "openai"})

	got := mr.GetDriver("openai")
	if got == nil {
		t.Fatal("GetDriver() returned nil after override")
	}
	resp, err := got.Call(context.Background(), &models.ModelProvider{Name: "test"}, &models.RouteRequest{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp.Content != "mock response from openai" {
		t.Errorf("Call().Content = %q, want %q", resp.Content, "mock response from openai")
	}
}

func TestGetDriver_NotFound(t *testing.T) {
	mr := router.NewModelRouter(nil)
	if got := mr.GetDriver("nonexistent"); got != nil {
		t.Errorf("GetDriver() for nonexistent should return nil, got %v", got)
	}
}

func TestRoute_NoProviders(t *testing.T) {
	_, err := router.NewModelRouter(nil).Route(context.Background(), &models.RouteRequest{})
	assert.ErrorIs(t, err, router.ErrNoProviders)
}

func TestRoute_FallbackOrder(t *testing.T) {
	mock := &mockDriver{kind: "mock", fail: map[string]bool{"primary": true}}
	mr := router.NewModelRouter([]models.ModelProvider{
		{Name: "zeta", Kind: "mock", Models: []string{"m"}},
		{Name: "primary", Kind: "mock", Models: []string{"m"}, IsDefault: true},
		{Name: "alpha", Kind: "mock", Models: []string{"m"}},
	})
	mr.RegisterDriver(mock)

	resp, err := mr.Route(context.Background(), &models.RouteRequest{})
	require.NoError(t, err)

	assert.Equal(t, []string{"primary", "alpha"}, mock.calls)
	assert.Equal(t, "alpha", resp.Provider)
	assert.Equal(t, "m", resp.Model, "first provider model used when none requested")
	assert.Equal(t, models.RoutingFallback, resp.Strategy)
}

func TestRoute_AllFail(t *testing.T) {
	mock := &mockDriver{kind: "mock", fail: map[string]bool{"a": true, "b": true}}
	mr := router.NewModelRouter([]models.ModelProvider{{Name: "a", Kind: "mock"}, {Name: "b", Kind: "mock"}})
	mr.RegisterDriver(mock)

	_, err := mr.Route(context.Background(), &models.RouteRequest{})

	assert.ErrorContains(t, err, "all providers failed")
	assert.Len(t, mock.calls, 2)
}

func TestRoute_CostOptimized(t *testing.T) {
	mock := &mockDriver{kind: "mock"}
	mr := router.NewModelRouter([]models.ModelProvider{
		{Name: "pricey", Kind: "mock", Models: []string{"x"}, Config: map[string]interface{}{"cost_per_1k_input": 0.01}},
		{Name: "cheap", Kind: "mock", Models: []string{"y"}, Config: map[string]interface{}{"cost_per_1k_input": 0.0001}},
	})
	mr.RegisterDriver(mock)

	resp, err := mr.Route(context.Background(), &models.RouteRequest{Strategy: models.RoutingCostOptimized})
	require.NoError(t, err)
	assert.Equal(t, "cheap", resp.Provider)
}

func TestRoute_RoundRobinRotates(t *testing.T) {
	mock := &mockDriver{kind: "mock"}
	mr := router.NewModelRouter([]models.ModelProvider{{Name: "a", Kind: "mock"}, {Name: "b", Kind: "mock"}})
	mr.RegisterDriver(mock)

	first, err := mr.Route(context.Background(), &models.RouteRequest{Strategy: models.RoutingRoundRobin})
	require.NoError(t, err)
	second, err := mr.Route(context.Background(), &models.RouteRequest{Strategy: models.RoutingRoundRobin})
	require.NoError(t, err)

	assert.NotEqual(t, first.Provider, second.Provider)
}

func TestRoute_ModelFilter(t *testing.T) {
	mock := &mockDriver{kind: "mock"}
	mr := router.NewModelRouter([]models.ModelProvider{
		{Name: "a", Kind: "mock", Models: []string{"small"}, IsDefault: true},
		{Name: "b", Kind: "mock", Models: []string{"large"}},
	})
	mr.RegisterDriver(mock)

	resp, err := mr.Route(context.Background(), &models.RouteRequest{Model: "large"})
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Provider)
}

func TestOpenAIDriver_JSONModeAndCost(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"message":{"content":"{\"ok\":true}"}}],
			"usage":{"prompt_tokens":1000,"completion_tokens":1000,"total_tokens":2000}}`))
	}))
	defer srv.Close()

	mr := router.NewModelRouter([]models.ModelProvider{{
		Name: "oai", Kind: "openai", Endpoint: srv.URL, Models: []string{"gpt-4o-mini"},
		Config: map[string]interface{}{"api_key": "sk-test"},
	}}, router.WithHTTPClient(srv.Client()))

	resp, err := mr.Route(context.Background(), &models.RouteRequest{
		Messages: []models.ChatMessage{{Role: "user", Content: "hi"}},
		JSONMode: true,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"type": "json_object"}, got["response_format"])
	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, int64(2000), resp.Usage.TotalTokens)
	assert.InDelta(t, 0.00075, resp.Usage.EstimatedCost, 1e-9)
	assert.GreaterOrEqual(t, mr.Latency("oai"), int64(0))
}

func TestOpenAIDriver_MissingKey(t *testing.T) {
	mr := router.NewModelRouter([]models.ModelProvider{{Name: "oai", Kind: "openai"}})
	_, err := mr.Route(context.Background(), &models.RouteRequest{})
	assert.ErrorContains(t, err, "api_key not configured")
}

func TestAnthropicDriver_SystemOutOfBand(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"m1","content":[{"type":"text","text":"{}"}],"usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer srv.Close()

	mr := router.NewModelRouter([]models.ModelProvider{{
		Name: "claude", Kind: "anthropic", Endpoint: srv.URL, Models: []string{"claude-3-5-haiku-20241022"},
		Config: map[string]interface{}{"api_key": "k"},
	}}, router.WithHTTPClient(srv.Client()))

	resp, err := mr.Route(context.Background(), &models.RouteRequest{Messages: []models.ChatMessage{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	}})
	require.NoError(t, err)

	assert.Equal(t, "be terse", got["system"])
	assert.Len(t, got["messages"], 1)
	assert.Equal(t, int64(7), resp.Usage.TotalTokens)
}

func TestOllamaDriver_Format(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}],"usage":{"total_tokens":5}}`))
	}))
	defer srv.Close()

	mr := router.NewModelRouter([]models.ModelProvider{{Name: "local", Kind: "ollama", Endpoint: srv.URL, Models: []string{"llama3"}}},
		router.WithHTTPClient(srv.Client()))

	resp, err := mr.Route(context.Background(), &models.RouteRequest{JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, "json", got["format"])
	assert.Zero(t, resp.Usage.EstimatedCost)
	assert.NotEmpty(t, resp.ID)
}

func TestHealthCheck(t *testing.T) {
	mr := router.NewModelRouter([]models.ModelProvider{
		{Name: "up", Kind: "mock"},
		{Name: "down", Kind: "mock"},
		{Name: "odd", Kind: "unknown"},
	})
	mr.RegisterDriver(&mockDriver{kind: "mock", fail: map[string]bool{"down": true}})

	result := mr.HealthCheck(context.Background())

	assert.Equal(t, "", result["up"])
	assert.Equal(t, "unhealthy", result["down"])
	assert.Contains(t, result["odd"], "no driver")
}
