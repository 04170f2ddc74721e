// Package batch coalesces calls issued within a short window into a single
// dispatch cycle. Each caller still receives its own result.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/storeguard/internal/infra/client/errs"
)

// Config holds coalescer configuration.
type Config struct {
	Delay          time.Duration // window opened by the first pending call
	MaxSize        int           // flush early once this many calls are pending
	MaxConcurrency int           // thunks run at once per flush; <= 0 means unbounded
}

// DefaultConfig returns sensible coalescer defaults.
func DefaultConfig() Config {
	return Config{
		Delay:          50 * time.Millisecond,
		MaxSize:        10,
		MaxConcurrency: 10,
	}
}

// Thunk is a deferred call. It runs with the enqueuing caller's context.
type Thunk func(ctx context.Context) (any, error)

type result struct {
	value any
	err   error
}

type item struct {
	ctx   context.Context
	thunk Thunk
	done  chan result
}

// Stats reports coalescer activity.
type Stats struct {
	Batches  uint64 `json:"batches"`
	Items    uint64 `json:"items"`
	Pending  int    `json:"pending"`
	Flushing bool   `json:"flushing"`
}

// Coalescer groups thunks and flushes them concurrently.
type Coalescer struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	pending  []*item
	timer    *time.Timer
	flushing bool
	batches  uint64
	items    uint64
}

// New creates a coalescer.
func New(cfg Config) *Coalescer {
	def := DefaultConfig()
	if cfg.Delay <= 0 {
		cfg.Delay = def.Delay
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	return &Coalescer{cfg: cfg, log: slog.Default()}
}

// WithLogger sets the logger.
func (c *Coalescer) WithLogger(log *slog.Logger) *Coalescer {
	c.log = log
	return c
}

// Enqueue adds thunk to the current batch and blocks until it has settled
// or ctx ends. A thunk whose caller gave up still runs; its result is dropped.
func (c *Coalescer) Enqueue(ctx context.Context, thunk Thunk) (any, error) {
	it := &item{ctx: ctx, thunk: thunk, done: make(chan result, 1)}

	c.mu.Lock()
	c.pending = append(c.pending, it)
	switch {
	case len(c.pending) >= c.cfg.MaxSize:
		c.stopTimerLocked()
		go c.flush()
	case c.timer == nil:
		c.timer = time.AfterFunc(c.cfg.Delay, c.flush)
	}
	c.mu.Unlock()

	select {
	case r := <-it.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flush dispatches up to MaxSize pending thunks. A flush already in progress
// reschedules whatever accumulated when it finishes.
func (c *Coalescer) flush() {
	c.mu.Lock()
	c.timer = nil
	if c.flushing || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	n := min(len(c.pending), c.cfg.MaxSize)
	batch := c.pending[:n:n]
	c.pending = append([]*item(nil), c.pending[n:]...)
	c.flushing = true
	c.batches++
	c.items += uint64(n)
	c.mu.Unlock()

	c.log.Debug("Flushing batch", "size", n)

	var g errgroup.Group
	if c.cfg.MaxConcurrency > 0 {
		g.SetLimit(c.cfg.MaxConcurrency)
	}
	for _, it := range batch {
		g.Go(func() error {
			v, err := run(it)
			it.done <- result{value: v, err: err}
			// one failure must not cancel its siblings
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	c.flushing = false
	switch {
	case len(c.pending) >= c.cfg.MaxSize:
		c.stopTimerLocked()
		go c.flush()
	case len(c.pending) > 0 && c.timer == nil:
		c.timer = time.AfterFunc(c.cfg.Delay, c.flush)
	}
	c.mu.Unlock()
}

func run(it *item) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batched call panicked: %v", r)
		}
	}()
	if err := it.ctx.Err(); err != nil {
		return nil, err
	}
	return it.thunk(it.ctx)
}

// Clear fails every call that has not been dispatched yet with
// errs.ErrBatchCleared and stops the pending window. Calls already in a
// running flush are unaffected.
func (c *Coalescer) Clear() int {
	c.mu.Lock()
	c.stopTimerLocked()
	dropped := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, it := range dropped {
		it.done <- result{err: errs.ErrBatchCleared}
	}
	if len(dropped) > 0 {
		c.log.Info("Cleared pending batch", "dropped", len(dropped))
	}
	return len(dropped)
}

// Stats returns a snapshot of coalescer activity.
func (c *Coalescer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Batches:  c.batches,
		Items:    c.items,
		Pending:  len(c.pending),
		Flushing: c.flushing,
	}
}

func (c *Coalescer) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
