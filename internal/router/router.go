// Package router sends agent prompts to the configured language-model
// providers.
//
// Providers are ordered by the request's strategy (fallback, cost-optimized,
// round-robin) and tried in turn until one answers. Each provider kind is
// served by a ProviderDriver; the built-in drivers speak the OpenAI, Azure
// OpenAI, Anthropic and Ollama chat APIs.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentoven/actionrag/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrNoProviders is returned when the router has nothing to route to.
var ErrNoProviders = errors.New("no model providers configured")

// ProviderDriver calls one kind of model provider.
type ProviderDriver interface {
	Kind() string
	Call(ctx context.Context, provider *models.ModelProvider, req *models.RouteRequest) (*models.RouteResponse, error)
	HealthCheck(ctx context.Context, provider *models.ModelProvider) error
}

// ModelRouter routes chat requests to configured providers.
type ModelRouter struct {
	providers []models.ModelProvider

	driversMu sync.RWMutex
	drivers   map[string]ProviderDriver

	// Round-robin counter (atomic)
	rrCounter uint64

	// provider name → rolling avg ms
	latencyMu sync.RWMutex
	latencies map[string]int64
}

// Option configures a ModelRouter.
type Option func(*routerOptions)

type routerOptions struct {
	client *http.Client
}

// WithHTTPClient sets the client used by the built-in drivers.
func WithHTTPClient(c *http.Client) Option {
	return func(o *routerOptions) { o.client = c }
}

// NewModelRouter creates a router over providers with the built-in drivers
// registered.
func NewModelRouter(providers []models.ModelProvider, opts ...Option) *ModelRouter {
	o := routerOptions{client: &http.Client{Timeout: 120 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}

	mr := &ModelRouter{
		providers: append([]models.ModelProvider(nil), providers...),
		drivers:   make(map[string]ProviderDriver),
		latencies: make(map[string]int64),
	}
	mr.RegisterDriver(&openAIDriver{kind: "openai", client: o.client})
	mr.RegisterDriver(&openAIDriver{kind: "azure-openai", client: o.client})
	mr.RegisterDriver(&anthropicDriver{client: o.client})
	mr.RegisterDriver(&ollamaDriver{client: o.client})
	return mr
}

// RegisterDriver adds or replaces the driver for d.Kind().
func (mr *ModelRouter) RegisterDriver(d ProviderDriver) {
	mr.driversMu.Lock()
	defer mr.driversMu.Unlock()
	mr.drivers[d.Kind()] = d
}

// GetDriver returns the driver for kind, or nil.
func (mr *ModelRouter) GetDriver(kind string) ProviderDriver {
	mr.driversMu.RLock()
	defer mr.driversMu.RUnlock()
	return mr.drivers[kind]
}

// ListDrivers returns the registered driver kinds, sorted.
func (mr *ModelRouter) ListDrivers() []string {
	mr.driversMu.RLock()
	defer mr.driversMu.RUnlock()
	kinds := make([]string, 0, len(mr.drivers))
	for k := range mr.drivers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Providers returns a copy of the configured providers.
func (mr *ModelRouter) Providers() []models.ModelProvider {
	return append([]models.ModelProvider(nil), mr.providers...)
}

// Route sends a request through the router using the requested strategy.
func (mr *ModelRouter) Route(ctx context.Context, req *models.RouteRequest) (*models.RouteResponse, error) {
	if len(mr.providers) == 0 {
		return nil, ErrNoProviders
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = models.RoutingFallback
	}
	ordered := mr.orderProviders(mr.Providers(), strategy, req.Model)

	var lastErr error
	for i := range ordered {
		provider := &ordered[i]
		resp, err := mr.callProvider(ctx, provider, req, strategy)
		if err != nil {
			log.Warn().
				Str("provider", provider.Name).
				Str("kind", provider.Kind).
				Str("agent", req.AgentRef).
				Err(err).
				Msg("Provider call failed, trying next")
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("all providers failed, last error: %w", lastErr)
}

// orderProviders sorts providers based on the routing strategy.
func (mr *ModelRouter) orderProviders(providers []models.ModelProvider, strategy models.RoutingStrategy, requestedModel string) []models.ModelProvider {
	if requestedModel != "" {
		var filtered []models.ModelProvider
		for _, p := range providers {
			for _, m := range p.Models {
				if m == requestedModel {
					filtered = append(filtered, p)
					break
				}
			}
		}
		if len(filtered) > 0 {
			providers = filtered
		}
	}

	switch strategy {
	case models.RoutingCostOptimized:
		sort.SliceStable(providers, func(i, j int) bool {
			return providerCostPer1K(providers[i]) < providerCostPer1K(providers[j])
		})

	case models.RoutingRoundRobin:
		idx := atomic.AddUint64(&mr.rrCounter, 1)
		n := len(providers)
		rotated := make([]models.ModelProvider, n)
		for i := 0; i < n; i++ {
			rotated[i] = providers[(int(idx)+i)%n]
		}
		return rotated

	default:
		// Default providers first, then by name
		sort.SliceStable(providers, func(i, j int) bool {
			if providers[i].IsDefault != providers[j].IsDefault {
				return providers[i].IsDefault
			}
			return providers[i].Name < providers[j].Name
		})
	}

	return providers
}

// callProvider sends the request to a specific provider and records its
// latency.
func (mr *ModelRouter) callProvider(ctx context.Context, provider *models.ModelProvider, req *models.RouteRequest, strategy models.RoutingStrategy) (*models.RouteResponse, error) {
	driver := mr.GetDriver(provider.Kind)
	if driver == nil {
		// Unknown kinds are assumed OpenAI-compatible
		driver = mr.GetDriver("openai")
	}

	call := *req
	if call.Model == "" && len(provider.Models) > 0 {
		call.Model = provider.Models[0]
	}

	start := time.Now()
	resp, err := driver.Call(ctx, provider, &call)
	if err != nil {
		return nil, err
	}

	latencyMs := time.Since(start).Milliseconds()
	resp.LatencyMs = latencyMs
	resp.Strategy = strategy
	if resp.Model == "" {
		resp.Model = call.Model
	}

	mr.latencyMu.Lock()
	prev := mr.latencies[provider.Name]
	if prev == 0 {
		mr.latencies[provider.Name] = latencyMs
	} else {
		// Exponential moving average
		mr.latencies[provider.Name] = (prev*7 + latencyMs*3) / 10
	}
	mr.latencyMu.Unlock()

	return resp, nil
}

// Latency returns the rolling average latency of a provider in ms, or zero
// when it has not answered yet.
func (mr *ModelRouter) Latency(provider string) int64 {
	mr.latencyMu.RLock()
	defer mr.latencyMu.RUnlock()
	return mr.latencies[provider]
}

// HealthCheck checks every configured provider with its driver. The result
// maps provider name to an error message, empty when healthy.
func (mr *ModelRouter) HealthCheck(ctx context.Context) map[string]string {
	result := make(map[string]string, len(mr.providers))
	for i := range mr.providers {
		p := &mr.providers[i]
		driver := mr.GetDriver(p.Kind)
		if driver == nil {
			result[p.Name] = fmt.Sprintf("no driver for kind %q", p.Kind)
			continue
		}
		if err := driver.HealthCheck(ctx, p); err != nil {
			result[p.Name] = err.Error()
			continue
		}
		result[p.Name] = ""
	}
	return result
}

// ── Cost estimation ─────────────────────────────────────────

// defaultCosts holds USD per 1K tokens for well-known models.
var defaultCosts = map[string]map[string]float64{
	"gpt-4o":                    {"input": 0.0025, "output": 0.01},
	"gpt-4o-mini":               {"input": 0.00015, "output": 0.0006},
	"gpt-4-turbo":               {"input": 0.01, "output": 0.03},
	"claude-sonnet-4-20250514":  {"input": 0.003, "output": 0.015},
	"claude-3-5-haiku-20241022": {"input": 0.001, "output": 0.005},
}

func modelCost(provider *models.ModelProvider, model, direction string) float64 {
	if v, ok := configFloat(provider, "cost_per_1k_"+direction); ok {
		return v
	}
	if costs, ok := defaultCosts[model]; ok {
		return costs[direction]
	}
	if provider.Kind == "ollama" {
		return 0
	}
	return 0.001
}

func estimateCost(provider *models.ModelProvider, model string, in, out int64) float64 {
	return float64(in)/1000*modelCost(provider, model, "input") +
		float64(out)/1000*modelCost(provider, model, "output")
}

func providerCostPer1K(provider models.ModelProvider) float64 {
	if len(provider.Models) > 0 {
		return modelCost(&provider, provider.Models[0], "input")
	}
	return 1.0
}

// configFloat reads a numeric provider setting. YAML decodes integers as int.
func configFloat(provider *models.ModelProvider, key string) (float64, bool) {
	switch v := provider.Config[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func configString(provider *models.ModelProvider, key string) string {
	s, _ := provider.Config[key].(string)
	return s
}
