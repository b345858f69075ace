package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/agentoven/actionrag/pkg/models"
	"github.com/google/uuid"
)

// postJSON sends body to url and decodes a 200 answer into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return fmt.Errorf("status %d: %s", httpResp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func getOK(ctx context.Context, client *http.Client, url string, headers map[string]string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// ── OpenAI / Azure OpenAI ───────────────────────────────────

type responseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string               `json:"model"`
	Messages       []models.ChatMessage `json:"messages"`
	MaxTokens      *int                 `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat      `json:"response_format,omitempty"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

type openAIDriver struct {
	kind   string
	client *http.Client
}

func (d *openAIDriver) Kind() string { return d.kind }

func (d *openAIDriver) endpoint(p *models.ModelProvider) string {
	if p.Endpoint != "" {
		return strings.TrimRight(p.Endpoint, "/")
	}
	return "https://api.openai.com/v1"
}

func (d *openAIDriver) headers(p *models.ModelProvider) (map[string]string, error) {
	apiKey := configString(p, "api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("%s: api_key not configured for provider %s", d.kind, p.Name)
	}
	// Azure OpenAI uses a different auth header
	if d.kind == "azure-openai" {
		return map[string]string{"api-key": apiKey}, nil
	}
	return map[string]string{"Authorization": "Bearer " + apiKey}, nil
}

func (d *openAIDriver) Call(ctx context.Context, p *models.ModelProvider, req *models.RouteRequest) (*models.RouteResponse, error) {
	headers, err := d.headers(p)
	if err != nil {
		return nil, err
	}
	body := openAIRequest{Model: req.Model, Messages: req.Messages, MaxTokens: req.MaxTokens}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var out openAIResponse
	if err := postJSON(ctx, d.client, d.endpoint(p)+"/chat/completions", headers, body, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", d.kind, err)
	}
	return openAIRouteResponse(p, req.Model, out.ID, &out), nil
}

func (d *openAIDriver) HealthCheck(ctx context.Context, p *models.ModelProvider) error {
	headers, err := d.headers(p)
	if err != nil {
		return err
	}
	return getOK(ctx, d.client, d.endpoint(p)+"/models", headers)
}

func openAIRouteResponse(p *models.ModelProvider, model, id string, out *openAIResponse) *models.RouteResponse {
	content := ""
	if len(out.Choices) > 0 {
		content = out.Choices[0].Message.Content
	}
	return &models.RouteResponse{
		ID:       id,
		Provider: p.Name,
		Model:    model,
		Content:  content,
		Usage: models.TokenUsage{
			InputTokens:   out.Usage.PromptTokens,
			OutputTokens:  out.Usage.CompletionTokens,
			TotalTokens:   out.Usage.TotalTokens,
			EstimatedCost: estimateCost(p, model, out.Usage.PromptTokens, out.Usage.CompletionTokens),
		},
	}
}

// ── Anthropic ───────────────────────────────────────────────

type anthropicRequest struct {
	Model     string               `json:"model"`
	System    string               `json:"system,omitempty"`
	Messages  []models.ChatMessage `json:"messages"`
	MaxTokens int                  `json:"max_tokens"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicDriver struct {
	client *http.Client
}

func (d *anthropicDriver) Kind() string { return "anthropic" }

func (d *anthropicDriver) endpoint(p *models.ModelProvider) string {
	if p.Endpoint != "" {
		return strings.TrimRight(p.Endpoint, "/")
	}
	return "https://api.anthropic.com"
}

func (d *anthropicDriver) headers(p *models.ModelProvider) (map[string]string, error) {
	apiKey := configString(p, "api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: api_key not configured for provider %s", p.Name)
	}
	return map[string]string{"x-api-key": apiKey, "anthropic-version": "2023-06-01"}, nil
}

func (d *anthropicDriver) Call(ctx context.Context, p *models.ModelProvider, req *models.RouteRequest) (*models.RouteResponse, error) {
	headers, err := d.headers(p)
	if err != nil {
		return nil, err
	}

	maxTokens := 4096
	if mt, ok := configFloat(p, "max_tokens"); ok {
		maxTokens = int(mt)
	}
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	// The Messages API takes system prompts out of band.
	body := anthropicRequest{Model: req.Model, MaxTokens: maxTokens}
	var system []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		body.Messages = append(body.Messages, m)
	}
	if req.JSONMode {
		system = append(system, "Respond with a single JSON object and nothing else.")
	}
	body.System = strings.Join(system, "\n\n")

	var out anthropicResponse
	if err := postJSON(ctx, d.client, d.endpoint(p)+"/v1/messages", headers, body, &out); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	var content strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			content.WriteString(c.Text)
		}
	}
	return &models.RouteResponse{
		ID:       out.ID,
		Provider: p.Name,
		Model:    req.Model,
		Content:  content.String(),
		Usage: models.TokenUsage{
			InputTokens:   out.Usage.InputTokens,
			OutputTokens:  out.Usage.OutputTokens,
			TotalTokens:   out.Usage.InputTokens + out.Usage.OutputTokens,
			EstimatedCost: estimateCost(p, req.Model, out.Usage.InputTokens, out.Usage.OutputTokens),
		},
	}, nil
}

func (d *anthropicDriver) HealthCheck(ctx context.Context, p *models.ModelProvider) error {
	headers, err := d.headers(p)
	if err != nil {
		return err
	}
	return getOK(ctx, d.client, d.endpoint(p)+"/v1/models", headers)
}

// ── Ollama ──────────────────────────────────────────────────

type ollamaRequest struct {
	openAIRequest
	Format string `json:"format,omitempty"`
}

type ollamaDriver struct {
	client *http.Client
}

func (d *ollamaDriver) Kind() string { return "ollama" }

func (d *ollamaDriver) endpoint(p *models.ModelProvider) string {
	if p.Endpoint != "" {
		return strings.TrimRight(p.Endpoint, "/")
	}
	return "http://localhost:11434"
}

func (d *ollamaDriver) Call(ctx context.Context, p *models.ModelProvider, req *models.RouteRequest) (*models.RouteResponse, error) {
	body := ollamaRequest{openAIRequest: openAIRequest{Model: req.Model, Messages: req.Messages, MaxTokens: req.MaxTokens}}
	if req.JSONMode {
		body.Format = "json"
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var out openAIResponse
	if err := postJSON(ctx, d.client, d.endpoint(p)+"/v1/chat/completions", nil, body, &out); err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return openAIRouteResponse(p, req.Model, uuid.New().String(), &out), nil
}

func (d *ollamaDriver) HealthCheck(ctx context.Context, p *models.ModelProvider) error {
	if err := getOK(ctx, d.client, d.endpoint(p)+"/api/tags", nil); err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	return nil
}
