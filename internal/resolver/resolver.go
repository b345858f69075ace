// Package resolver turns retrieved API documentation into callable endpoint
// candidates and synthesizes the request for a chosen endpoint.
//
// A documentation file lives at "<root>/<route segments>/<method>.<ext>".
// The route is the segments between root and file name, the method is the
// upper-cased file stem, and the endpoint URL is the API base plus the route.
// Every candidate's response schema is pulled from the schema store so the
// endpoint selector sees documentation and response shape together.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/agentoven/actionrag/internal/metrics"
	"github.com/agentoven/actionrag/pkg/contracts"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrResolutionEmpty is returned when no retrieved document yields a
// candidate endpoint.
var ErrResolutionEmpty = errors.New("no endpoint could be resolved")

// emptyContent marks documentation placeholders that carry no endpoint.
const emptyContent = "None"

// Resolution is the outcome of one resolver pass.
type Resolution struct {
	// Candidates are unique by URL, in retrieval order.
	Candidates []models.EndpointCandidate
	// Digest is the documentation text offered to the endpoint selector.
	Digest string
}

// URLs returns the candidate URLs in order.
func (r *Resolution) URLs() []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.URL
	}
	return out
}

// Lookup finds a candidate by URL.
func (r *Resolution) Lookup(u string) (models.EndpointCandidate, bool) {
	for _, c := range r.Candidates {
		if c.URL == u {
			return c, true
		}
	}
	return models.EndpointCandidate{}, false
}

// Resolver builds endpoint candidates from scored documents.
type Resolver struct {
	schemas contracts.SchemaStore
}

// NewResolver creates a resolver backed by a schema store.
func NewResolver(schemas contracts.SchemaStore) *Resolver {
	return &Resolver{schemas: schemas}
}

// Resolve converts docs into candidates. When two documents map to the same
// URL the first one (the better scoring) wins. An empty result is reported
// as ErrResolutionEmpty alongside the (empty) resolution.
func (r *Resolver) Resolve(ctx context.Context, apiBase string, docs []models.ScoredDocument) (*Resolution, error) {
	res := &Resolution{}
	seen := make(map[string]bool)
	var digest strings.Builder

	for _, d := range docs {
		if strings.TrimSpace(d.Document.Content) == emptyContent {
			continue
		}
		route, method, ok := ParseDocPath(d.Document.Path)
		if !ok {
			log.Warn().Str("path", d.Document.Path).Msg("Skipping document with unrecognized path")
			continue
		}
		endpoint := NormalizeURL(JoinURL(apiBase, route))
		if seen[endpoint] {
			continue
		}
		seen[endpoint] = true

		schema, err := r.schemas.ResponseSchema(ctx, route)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("response schema for %s: %w", route, ctx.Err())
			}
			log.Warn().Err(err).Str("route", route).Msg("Response schema unavailable")
			schema = ""
		}

		res.Candidates = append(res.Candidates, models.EndpointCandidate{
			URL:            endpoint,
			Route:          route,
			Method:         method,
			ResponseSchema: schema,
			Documentation:  d.Document.Content,
		})
		fmt.Fprintf(&digest, "Endpoint URL: %s: %s\nResponse Schema of %s\n%s\n", endpoint, d.Document.Content, route, schema)
	}

	res.Digest = digest.String()
	if len(res.Candidates) == 0 {
		return res, ErrResolutionEmpty
	}
	return res, nil
}

// ParseDocPath splits "<root>/<route...>/<method>.<ext>" into route and
// upper-cased method.
func ParseDocPath(p string) (route, method string, ok bool) {
	parts := strings.Split(strings.Trim(path.Clean("/"+p), "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	file := parts[len(parts)-1]
	stem := strings.TrimSuffix(file, path.Ext(file))
	if stem == "" {
		return "", "", false
	}
	return strings.Join(parts[1:len(parts)-1], "/"), strings.ToUpper(stem), true
}

// JoinURL appends route to base with exactly one separating slash.
func JoinURL(base, route string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(route, "/")
}

// NormalizeURL reduces a URL to scheme://host/path, lower-casing scheme and
// host and dropping query and fragment. Unparseable input is returned with
// everything from the first '?' or '#' removed.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			raw = raw[:i]
		}
		return strings.TrimSpace(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	return u.String()
}

// ── Request synthesis ───────────────────────────────────────

// RequestAgent extracts parameters and body for a call from a query.
// Implementation: internal/agents.Suite
type RequestAgent interface {
	SynthesizeRequest(ctx context.Context, run *metrics.Run, query string, schema models.RequestSchema) (params, body map[string]interface{}, err error)
}

// Synthesizer builds RequestSpecs for selected endpoints.
type Synthesizer struct {
	schemas contracts.SchemaStore
	agent   RequestAgent
}

// NewSynthesizer creates a request synthesizer.
func NewSynthesizer(schemas contracts.SchemaStore, agent RequestAgent) *Synthesizer {
	return &Synthesizer{schemas: schemas, agent: agent}
}

// Synthesize produces the RequestSpec for candidate c. A route without a
// request schema is synthesized against empty schemas.
func (s *Synthesizer) Synthesize(ctx context.Context, run *metrics.Run, query string, c models.EndpointCandidate) (models.RequestSpec, error) {
	schema, err := s.schemas.RequestSchema(ctx, c.Route)
	if err != nil {
		if ctx.Err() != nil {
			return models.RequestSpec{}, fmt.Errorf("request schema for %s: %w", c.Route, ctx.Err())
		}
		log.Warn().Err(err).Str("route", c.Route).Msg("Request schema unavailable")
		schema = models.RequestSchema{}
	}

	params, body, err := s.agent.SynthesizeRequest(ctx, run, query, schema)
	if err != nil {
		return models.RequestSpec{}, fmt.Errorf("synthesize request for %s: %w", c.URL, err)
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	if body == nil {
		body = map[string]interface{}{}
	}

	return models.RequestSpec{
		URL:        NormalizeURL(c.URL),
		Method:     c.Method,
		Parameters: params,
		Body:       body,
	}, nil
}

// SynthesizeAll builds one RequestSpec per selected URL, in order. Every URL
// must be a candidate of res.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, run *metrics.Run, query string, res *Resolution, selected []string) ([]models.RequestSpec, error) {
	specs := make([]models.RequestSpec, 0, len(selected))
	for _, u := range selected {
		c, ok := res.Lookup(u)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrResolutionEmpty, u)
		}
		spec, err := s.Synthesize(ctx, run, query, c)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
