package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentoven/actionrag/internal/api"
	"github.com/agentoven/actionrag/internal/api/handlers"
	"github.com/agentoven/actionrag/internal/config"
	"github.com/agentoven/actionrag/internal/orchestrator"
	"github.com/agentoven/actionrag/internal/store"
	"github.com/stretchr/testify/assert"
)

type stubPipeline struct{}

func (stubPipeline) Retrieve(context.Context, orchestrator.RetrieveRequest) (*orchestrator.RetrieveResult, error) {
	return &orchestrator.RetrieveResult{RAGResponse: "ok"}, nil
}

func (stubPipeline) DrillDown(context.Context, orchestrator.DrillDownRequest) (*orchestrator.DrillDownResult, error) {
	return &orchestrator.DrillDownResult{}, nil
}

func (stubPipeline) FollowUps(context.Context, string) ([]string, error) {
	return []string{"a", "b", "c"}, nil
}

func newServer(t *testing.T, keys ...string) *httptest.Server {
	t.Helper()
	s := store.NewMemoryStore("")
	t.Cleanup(func() { s.Close() })
	cfg := &config.Config{Version: "test", Auth: config.AuthConfig{APIKeys: keys}}
	srv := httptest.NewServer(api.NewRouter(cfg, handlers.New(stubPipeline{}, s, nil)))
	t.Cleanup(srv.Close)
	return srv
}

func TestRoutes(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/version", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodPost, "/query/retrieve?API_BASE=http://api/&query=x", `{"a":"b"}`, http.StatusOK},
		{http.MethodGet, "/query/metrics?index=0", "", http.StatusNotFound},
		{http.MethodGet, "/query/follow-ups?query=x", "", http.StatusOK},
		{http.MethodPost, "/docs/ingest", `{"documents":[{"path":"docs/a/get.txt","content":"x"}]}`, http.StatusServiceUnavailable},
		{http.MethodGet, "/query/retrieve", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tt.method, tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, resp.StatusCode, tt.status)
		}
	}
}

func TestRoutes_APIKey(t *testing.T) {
	srv := newServer(t, "secret")

	resp, err := srv.Client().Get(srv.URL + "/query/follow-ups?query=x")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/query/follow-ups?query=x", nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err = srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
