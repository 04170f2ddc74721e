// Package client is the single call surface the UI layer uses to reach the
// remote API. It layers caching, admission control, batching and offline
// retries over a domain.Executor.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/storeguard/internal/core/domain"
	"github.com/vietddude/storeguard/internal/events"
	"github.com/vietddude/storeguard/internal/infra/client/batch"
	"github.com/vietddude/storeguard/internal/infra/client/cache"
	"github.com/vietddude/storeguard/internal/infra/client/errs"
	"github.com/vietddude/storeguard/internal/infra/client/executor"
	"github.com/vietddude/storeguard/internal/infra/client/limiter"
	"github.com/vietddude/storeguard/internal/infra/client/network"
	"github.com/vietddude/storeguard/internal/infra/client/retry"
	"github.com/vietddude/storeguard/internal/telemetry/metrics"
)

// Config holds orchestrator configuration.
type Config struct {
	RequestTimeout time.Duration
}

// DefaultConfig returns sensible client defaults.
func DefaultConfig() Config {
	return Config{RequestTimeout: 10 * time.Second}
}

// Deps are the services the client orchestrates. Nil limiter, cache,
// batcher or queue get defaults; Network and Events are optional.
type Deps struct {
	Limiter *limiter.SlidingWindow
	Cache   *cache.TTLCache[*domain.Response]
	Batcher *batch.Coalescer
	Queue   *retry.Queue
	Network *network.Monitor
	Events  *events.Bus
}

// Stats is the combined view served on /status.
type Stats struct {
	Cache       cache.Stats          `json:"cache"`
	Queue       retry.Status         `json:"queue"`
	Batch       batch.Stats          `json:"batch"`
	Network     domain.NetworkStatus `json:"network"`
	LimiterKeys int                  `json:"limiter_keys"`
	// Executor is set when the executor reports its own health.
	Executor *executor.HealthStatus `json:"executor,omitempty"`
}

type healthReporter interface {
	Health() executor.HealthStatus
}

// Client orchestrates every outgoing call.
type Client struct {
	executor domain.Executor
	cfg      Config
	log      *slog.Logger

	limiter *limiter.SlidingWindow
	cache   *cache.TTLCache[*domain.Response]
	batcher *batch.Coalescer
	queue   *retry.Queue
	network *network.Monitor
	bus     *events.Bus

	group singleflight.Group

	// runCtx bounds work the client starts on its own, such as queue
	// cycles after reconnect.
	runCtx    context.Context
	cancel    context.CancelFunc
	unsubNet  func()
	closeOnce sync.Once

	mu        sync.Mutex
	wasOnline bool
	// queued holds the pending retry of each shared cacheable read, so
	// callers that shared a failed dispatch also share one queue entry.
	queued map[string]*retry.Operation
}

// New creates a client over executor.
func New(executor domain.Executor, cfg Config, deps Deps) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if deps.Limiter == nil {
		deps.Limiter = limiter.New(limiter.DefaultConfig())
	}
	if deps.Cache == nil {
		deps.Cache = cache.New[*domain.Response](cache.DefaultConfig())
	}
	if deps.Batcher == nil {
		deps.Batcher = batch.New(batch.DefaultConfig())
	}
	if deps.Queue == nil {
		deps.Queue = retry.New(retry.DefaultConfig())
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		executor:  executor,
		cfg:       cfg,
		log:       slog.Default(),
		limiter:   deps.Limiter,
		cache:     deps.Cache,
		batcher:   deps.Batcher,
		queue:     deps.Queue,
		network:   deps.Network,
		bus:       deps.Events,
		runCtx:    ctx,
		cancel:    cancel,
		wasOnline: true,
		queued:    make(map[string]*retry.Operation),
	}

	c.cache.OnEvict(func(string) {
		metrics.CacheEvents.WithLabelValues("evict").Inc()
	})
	c.queue.OnStatus(func(s retry.Status) {
		metrics.RetryQueueLength.Set(float64(s.Length))
		c.publish(domain.EventQueueStatus, domain.QueueStatus{Length: s.Length, Processing: s.Processing})
	})
	if c.network != nil {
		st := c.network.Status()
		c.wasOnline = st.Online
		metrics.NetworkQuality.Set(float64(st.Quality.Rank()))
		c.unsubNet = c.network.Subscribe(c.onNetworkChange)
	}
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(log *slog.Logger) *Client {
	c.log = log
	return c
}

// Call runs one request through cache, limiter, dispatch and retry.
// Failures are always *errs.NormalizedError. A returned Response may be
// shared with other callers and must not be modified.
func (c *Client) Call(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if req == nil || req.Endpoint == "" {
		return nil, errs.New(errs.KindValidation, "request has no endpoint")
	}
	method := req.Method
	if method == "" {
		method = "GET"
	}

	route := metrics.Route(req.Endpoint)

	var key string
	if req.Cacheable && !req.IsMutation() {
		key = cache.Key(req.Endpoint, req.Params)
		if resp, ok := c.cache.Get(key); ok {
			metrics.CacheEvents.WithLabelValues("hit").Inc()
			metrics.RequestsTotal.WithLabelValues(method, route, "cache_hit").Inc()
			return resp, nil
		}
		metrics.CacheEvents.WithLabelValues("miss").Inc()
	}

	limitKey := req.LimitKey()
	if res := c.limiter.Check(limitKey); !res.Allowed {
		metrics.RateLimitHits.WithLabelValues(method, route).Inc()
		metrics.RequestsTotal.WithLabelValues(method, route, "rate_limited").Inc()
		c.publish(domain.EventRateLimitHit, domain.RateLimitHit{Key: limitKey, ResetAt: res.ResetAt})

		ne := errs.New(errs.KindRateLimit, fmt.Sprintf("rate limit exceeded for %s", limitKey))
		ne.Details = map[string]any{"limit": res.Limit, "reset_at": res.ResetAt}
		return nil, ne
	}

	resp, err := c.dispatchShared(ctx, key, req)
	if err != nil {
		ne := errs.Normalize(err)
		if !ne.Retryable() || !req.OfflineTolerant || ctx.Err() != nil {
			metrics.RequestsTotal.WithLabelValues(method, route, "error").Inc()
			return nil, ne
		}
		metrics.RequestsTotal.WithLabelValues(method, route, "queued").Inc()
		resp, err = c.enqueue(ctx, key, req, ne)
		if err != nil {
			return nil, errs.Normalize(err)
		}
		c.store(key, req, resp)
	}

	metrics.RequestsTotal.WithLabelValues(method, route, "success").Inc()
	if req.IsMutation() {
		c.invalidate(req.Endpoint)
	}
	return resp, nil
}

// CallJSON is Call followed by decoding the response body into out.
func (c *Client) CallJSON(ctx context.Context, req *domain.Request, out any) error {
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return errs.Wrap(errs.KindUnknown, fmt.Errorf("decode %s: %w", req.Endpoint, err))
	}
	return nil
}

// dispatchShared collapses identical in-flight cacheable reads into one
// dispatch. The shared dispatch is detached from any single caller's
// cancellation; each caller still stops waiting when its own ctx ends.
func (c *Client) dispatchShared(ctx context.Context, key string, req *domain.Request) (*domain.Response, error) {
	if key == "" {
		return c.dispatch(ctx, req)
	}

	ch := c.group.DoChan(key, func() (any, error) {
		resp, err := c.dispatch(context.WithoutCancel(ctx), req)
		if err != nil {
			return nil, err
		}
		c.store(key, req, resp)
		return resp, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*domain.Response), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) store(key string, req *domain.Request, resp *domain.Response) {
	if key == "" {
		return
	}
	if err := c.cache.Set(key, resp, req.CacheTTL); err != nil {
		c.log.Debug("Response not cached", "endpoint", req.Endpoint, "error", err)
	}
}

func (c *Client) dispatch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if !req.Batchable {
		return c.execute(ctx, req)
	}
	v, err := c.batcher.Enqueue(ctx, func(ctx context.Context) (any, error) {
		return c.execute(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Response), nil
}

// execute is the only place the executor is called. Each attempt gets its
// own RequestTimeout deadline.
func (c *Client) execute(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	return c.executor.Execute(ctx, req)
}

// enqueue hands a failed call to the retry queue and waits for its outcome.
// Calls sharing a cache key join the operation already queued for it.
func (c *Client) enqueue(ctx context.Context, key string, req *domain.Request, cause *errs.NormalizedError) (*domain.Response, error) {
	op := c.queuedOp(key, req, cause)
	if c.online() {
		go c.queue.Process(c.runCtx)
	}

	v, err := op.Wait(ctx)
	if err != nil {
		if errors.Is(err, retry.ErrQueueCleared) || errors.Is(err, retry.ErrQueueClosed) {
			return nil, errs.Wrap(errs.KindNetwork, err)
		}
		return nil, err
	}
	return v.(*domain.Response), nil
}

func (c *Client) queuedOp(key string, req *domain.Request, cause *errs.NormalizedError) *retry.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key != "" {
		if op, ok := c.queued[key]; ok {
			return op
		}
	}

	c.log.Info("Queueing call for retry",
		"endpoint", req.Endpoint, "method", req.Method, "kind", cause.Kind)
	op := c.queue.Enqueue(req.LimitKey(), req.Priority, func(ctx context.Context) (any, error) {
		return c.execute(ctx, req)
	})
	if key != "" {
		c.queued[key] = op
		go func() {
			// every operation settles, at the latest when the queue closes
			_, _ = op.Wait(context.Background())
			c.mu.Lock()
			if c.queued[key] == op {
				delete(c.queued, key)
			}
			c.mu.Unlock()
		}()
	}
	return op
}

// invalidate drops cached reads of endpoint and of its parent collection,
// so PUT /stores/7 clears both /stores/7 and /stores.
func (c *Client) invalidate(endpoint string) {
	endpoint = strings.TrimSuffix(endpoint, "/")
	n := c.cache.DeletePrefix(cache.EndpointPrefix(endpoint))
	if parent := path.Dir(endpoint); parent != "." && parent != "/" && parent != endpoint {
		n += c.cache.DeletePrefix(cache.EndpointPrefix(parent))
	}
	if n > 0 {
		c.log.Debug("Invalidated cached reads", "endpoint", endpoint, "entries", n)
	}
}

func (c *Client) onNetworkChange(s domain.NetworkStatus) {
	metrics.NetworkQuality.Set(float64(s.Quality.Rank()))
	c.publish(domain.EventNetworkStatusChanged, s)

	c.mu.Lock()
	restored := s.Online && !c.wasOnline
	c.wasOnline = s.Online
	c.mu.Unlock()

	if restored && c.runCtx.Err() == nil {
		c.log.Info("Connectivity restored, resuming retry queue", "queued", c.queue.Status().Length)
		go c.queue.Process(c.runCtx)
	}
}

func (c *Client) online() bool {
	return c.network == nil || c.network.IsOnline()
}

func (c *Client) publish(t domain.EventType, payload any) {
	if c.bus != nil {
		c.bus.Publish(t, payload)
	}
}

// PublishCacheStats emits the current cache statistics.
func (c *Client) PublishCacheStats() cache.Stats {
	s := c.cache.Stats()
	c.publish(domain.EventCacheStats, s)
	return s
}

// Stats returns a combined snapshot of every orchestrated service.
func (c *Client) Stats() Stats {
	s := Stats{
		Cache:       c.cache.Stats(),
		Queue:       c.queue.Status(),
		Batch:       c.batcher.Stats(),
		LimiterKeys: c.limiter.Keys(),
	}
	if c.network != nil {
		s.Network = c.network.Status()
	} else {
		s.Network = domain.NetworkStatus{Online: true, Quality: domain.QualityUnknown}
	}
	if hr, ok := c.executor.(healthReporter); ok {
		h := hr.Health()
		s.Executor = &h
	}
	return s
}

// RateLimit reports the limiter state of key, such as "GET /stores",
// without consuming a slot.
func (c *Client) RateLimit(key string) limiter.Result {
	return c.limiter.Peek(key)
}

// Cache exposes the response cache, e.g. for snapshots.
func (c *Client) Cache() *cache.TTLCache[*domain.Response] { return c.cache }

// Queue exposes the retry queue.
func (c *Client) Queue() *retry.Queue { return c.queue }

// Limiter exposes the rate limiter.
func (c *Client) Limiter() *limiter.SlidingWindow { return c.limiter }

// Close stops background work, fails pending batched calls and closes the
// retry queue. It does not persist anything.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.unsubNet != nil {
			c.unsubNet()
		}
		c.batcher.Clear()
		c.queue.Close()
	})
}
