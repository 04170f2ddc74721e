// Package executor performs the actual HTTP round trip for the client layer.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/storeguard/internal/core/domain"
	"github.com/vietddude/storeguard/internal/infra/client/errs"
	"github.com/vietddude/storeguard/internal/telemetry/metrics"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 10 << 20

// HealthStatus summarizes recent executor outcomes.
type HealthStatus struct {
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
}

// HTTP implements domain.Executor against a REST/JSON API.
type HTTP struct {
	baseURL    string
	httpClient *http.Client

	mu           sync.RWMutex
	token        string
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
}

// NewHTTP creates an executor for baseURL. Per-call deadlines come from
// the caller's context; timeout is only an upper bound for the transport.
func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SetToken sets the bearer token sent with every request; empty clears it.
func (h *HTTP) SetToken(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

// Execute makes a single call. Non-2xx responses return *errs.StatusError.
func (h *HTTP) Execute(ctx context.Context, r *domain.Request) (*domain.Response, error) {
	start := time.Now()
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := h.newRequest(ctx, method, r)
	if err != nil {
		h.recordFailure()
		return nil, err
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.recordFailure()
		return nil, fmt.Errorf("%s %s: %w", method, r.Endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		h.recordFailure()
		return nil, fmt.Errorf("read response: %w", err)
	}

	latency := time.Since(start)
	metrics.RequestLatency.WithLabelValues(method, metrics.Route(r.Endpoint)).Observe(latency.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.recordFailure()
		return nil, &errs.StatusError{StatusCode: resp.StatusCode, Body: body}
	}

	h.recordSuccess(latency)
	return &domain.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Latency:    latency,
	}, nil
}

func (h *HTTP) newRequest(ctx context.Context, method string, r *domain.Request) (*http.Request, error) {
	target := h.baseURL + "/" + strings.TrimLeft(r.Endpoint, "/")

	var body io.Reader
	switch {
	case len(r.Body) > 0:
		body = bytes.NewReader(r.Body)
	case r.IsMutation() && len(r.Params) > 0:
		data, err := json.Marshal(r.Params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		body = bytes.NewReader(data)
	case len(r.Params) > 0:
		q := url.Values{}
		for k, v := range r.Params {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	h.mu.RLock()
	token := h.token
	h.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// Health returns the executor's recent health.
func (h *HTTP) Health() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.health
}

// Close cleans up resources.
func (h *HTTP) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}

func (h *HTTP) recordSuccess(latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.successCount++
	h.totalLatency += latency
	h.health.LastSuccessAt = time.Now()
	h.health.Latency = h.totalLatency / time.Duration(h.successCount)
	h.health.ErrorRate = float64(h.failureCount) / float64(h.successCount+h.failureCount)
}

func (h *HTTP) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failureCount++
	h.health.LastFailureAt = time.Now()
	h.health.ErrorRate = float64(h.failureCount) / float64(h.successCount+h.failureCount)
}
