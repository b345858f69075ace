// Package executor issues the resolved API calls of a pipeline run.
//
// Calls run sequentially in resolution order. Every method is checked before
// the first call goes out, so a run with an unsupported method issues no
// calls at all. A non-2xx response is recorded on that endpoint's result and
// the remaining calls still run.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agentoven/actionrag/internal/metrics"
	"github.com/agentoven/actionrag/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single outbound call.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 10 << 20

// ErrUnsupportedMethod is returned when a request uses a method other than
// GET, POST, PUT or DELETE.
var ErrUnsupportedMethod = errors.New("unsupported HTTP method")

// ExecutionError describes a call that returned a non-2xx status or never
// produced a response (Status 0).
type ExecutionError struct {
	URL    string
	Method string
	Status int
	Body   string
}

func (e *ExecutionError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s failed: %s", e.Method, e.URL, e.Body)
	}
	return fmt.Sprintf("%s %s returned HTTP %d", e.Method, e.URL, e.Status)
}

// Envelope converts the error to its API form.
func (e *ExecutionError) Envelope() *models.ErrorEnvelope {
	return &models.ErrorEnvelope{
		Kind:    models.ErrorKindExecution,
		Message: e.Error(),
		Status:  e.Status,
	}
}

// Executor sends RequestSpecs over HTTP.
type Executor struct {
	client *http.Client
}

// NewExecutor creates an executor. A nil client gets DefaultTimeout.
func NewExecutor(client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Executor{client: client}
}

// Validate checks that every spec uses a supported method.
func Validate(specs []models.RequestSpec) error {
	for _, s := range specs {
		if !supported(s.Method) {
			return fmt.Errorf("%w: %q for %s", ErrUnsupportedMethod, s.Method, s.URL)
		}
	}
	return nil
}

// ExecuteAll runs specs in order and returns one result per spec. headers are
// sent with every call. The returned error is non-nil only when the run must
// abort: an unsupported method (before any call) or a cancelled context.
func (e *Executor) ExecuteAll(ctx context.Context, specs []models.RequestSpec, headers map[string]string) ([]models.ExecutionResult, error) {
	if err := Validate(specs); err != nil {
		return nil, err
	}

	results := make([]models.ExecutionResult, 0, len(specs))
	for _, s := range specs {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("execution aborted: %w", err)
		}
		results = append(results, e.Execute(ctx, s, headers))
	}
	return results, nil
}

// Execute performs one call. Failures are reported in the result's Error.
func (e *Executor) Execute(ctx context.Context, spec models.RequestSpec, headers map[string]string) models.ExecutionResult {
	method := strings.ToUpper(spec.Method)
	result := models.ExecutionResult{URL: spec.URL, Method: method}

	req, err := buildRequest(ctx, method, spec)
	if err != nil {
		result.Error = (&ExecutionError{URL: spec.URL, Method: method, Body: err.Error()}).Envelope()
		return result
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		metrics.ObserveCall(method, 0)
		log.Warn().Err(err).Str("method", method).Str("url", spec.URL).Msg("API call failed")
		result.Error = (&ExecutionError{URL: spec.URL, Method: method, Body: err.Error()}).Envelope()
		return result
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	result.Status = resp.StatusCode
	result.Response = decodeBody(raw)
	metrics.ObserveCall(method, resp.StatusCode)

	log.Debug().
		Str("method", method).
		Str("url", spec.URL).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("API call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		execErr := &ExecutionError{URL: spec.URL, Method: method, Status: resp.StatusCode, Body: string(raw)}
		result.Error = execErr.Envelope()
	}
	return result
}

func buildRequest(ctx context.Context, method string, spec models.RequestSpec) (*http.Request, error) {
	u, err := url.Parse(spec.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if len(spec.Parameters) > 0 {
		q := u.Query()
		for _, k := range sortedKeys(spec.Parameters) {
			addParam(q, k, spec.Parameters[k])
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if (method == http.MethodPost || method == http.MethodPut) && spec.Body != nil {
		data, err := json.Marshal(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func addParam(q url.Values, key string, v interface{}) {
	switch t := v.(type) {
	case nil:
	case []interface{}:
		for _, item := range t {
			q.Add(key, paramString(item))
		}
	case []string:
		for _, item := range t {
			q.Add(key, item)
		}
	case map[string]interface{}:
		data, _ := json.Marshal(t)
		q.Add(key, string(data))
	default:
		q.Add(key, paramString(t))
	}
}

// paramString formats a scalar for a query string. Decoded JSON numbers are
// float64; they are written without an exponent so 1000000 stays 1000000.
func paramString(v interface{}) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case json.Number:
		return n.String()
	default:
		return fmt.Sprint(v)
	}
}

// decodeBody returns parsed JSON when possible, otherwise the raw text.
func decodeBody(raw []byte) interface{} {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func supported(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
