package domain

import (
	"context"
	"net/http"
	"time"
)

// Request describes one call from the UI layer to the remote API.
type Request struct {
	Endpoint string
	Method   string
	Params   map[string]string
	Body     []byte

	// Cacheable responses are stored in the TTL cache on success.
	Cacheable bool
	CacheTTL  time.Duration // 0 = cache default

	// Batchable calls go through the batch coalescer.
	Batchable bool

	// OfflineTolerant failures may be handed to the retry queue.
	OfflineTolerant bool

	Priority int
}

// IsMutation reports whether the request changes server state.
func (r *Request) IsMutation() bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// LimitKey is the admission key used by the rate limiter.
func (r *Request) LimitKey() string {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + r.Endpoint
}

// Response is the raw result of an executed request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Latency    time.Duration
}

// Executor performs the actual transport call.
// The context carries cancellation and the per-call deadline.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
