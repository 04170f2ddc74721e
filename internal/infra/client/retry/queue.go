// Package retry holds operations that failed with a retryable error and
// replays them in FIFO order with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/storeguard/internal/infra/client/errs"
)

var (
	ErrQueueOverflow = errors.New("retry queue overflow: operation dropped")
	ErrQueueCleared  = errors.New("retry queue cleared")
	ErrQueueClosed   = errors.New("retry queue closed")
)

// Config defines retry queue behavior.
type Config struct {
	MaxQueueSize int
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize: 100,
		MaxRetries:   3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Exec performs one attempt of a queued operation.
type Exec func(ctx context.Context) (any, error)

// Status reports queue length and whether a cycle is running.
type Status struct {
	Length     int  `json:"length"`
	Processing bool `json:"processing"`
}

type outcome struct {
	value any
	err   error
}

// Operation is a pending or retrying call. Callers keep the handle
// returned by Enqueue and Wait on it.
type Operation struct {
	ID            string
	Name          string
	Priority      int
	EnqueuedAt    time.Time
	RetryCount    int
	NextAttemptAt time.Time

	exec Exec
	done chan outcome
	once sync.Once
}

// Wait blocks until the operation settles or ctx ends.
func (o *Operation) Wait(ctx context.Context) (any, error) {
	select {
	case r := <-o.done:
		// leave the outcome for any other waiter
		o.done <- r
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Operation) resolve(v any, err error) {
	o.once.Do(func() { o.done <- outcome{value: v, err: err} })
}

// Queue is a bounded FIFO of operations awaiting another attempt.
type Queue struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	ops        []*Operation
	processing bool
	resume     *time.Timer
	onStatus   func(Status)
}

// New creates a queue. Timer-driven cycles run until Close.
func New(cfg Config) *Queue {
	def := DefaultConfig()
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:    cfg,
		log:    slog.Default(),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithLogger sets the logger.
func (q *Queue) WithLogger(log *slog.Logger) *Queue {
	q.log = log
	return q
}

// WithClock overrides the time source used for timestamps.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// OnStatus registers fn to receive every status change.
func (q *Queue) OnStatus(fn func(Status)) {
	q.mu.Lock()
	q.onStatus = fn
	q.mu.Unlock()
}

// Enqueue appends an operation. When the queue is full the oldest entry is
// dropped and settles with ErrQueueOverflow.
func (q *Queue) Enqueue(name string, priority int, exec Exec) *Operation {
	op := &Operation{
		ID:         uuid.NewString(),
		Name:       name,
		Priority:   priority,
		EnqueuedAt: q.now(),
		exec:       exec,
		done:       make(chan outcome, 1),
	}

	q.mu.Lock()
	var dropped *Operation
	if len(q.ops) >= q.cfg.MaxQueueSize {
		dropped = q.ops[0]
		q.ops = q.ops[1:]
	}
	q.ops = append(q.ops, op)
	q.mu.Unlock()

	if dropped != nil {
		q.log.Warn("Retry queue full, dropping oldest",
			"dropped", dropped.ID, "name", dropped.Name, "max", q.cfg.MaxQueueSize)
		dropped.resolve(nil, ErrQueueOverflow)
	}
	q.notify()
	return op
}

// Process drains the queue in FIFO order. It returns early when the head
// fails with a retryable error; a resume timer continues after the backoff.
// Concurrent calls while a cycle is running are no-ops.
func (q *Queue) Process(ctx context.Context) {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.mu.Unlock()
	q.notify()

	for {
		op, wait := q.next()
		if op == nil {
			// next already ended the cycle
			q.notify()
			if wait > 0 {
				q.armResume(wait)
			}
			return
		}

		v, err := attempt(ctx, op)
		if err == nil {
			op.resolve(v, nil)
			q.notify()
			continue
		}

		if ctx.Err() != nil {
			// shutdown mid-attempt, keep the op for the next cycle
			q.requeue(op)
			return
		}

		ne := errs.Normalize(err)
		if !ne.Retryable() || op.RetryCount >= q.cfg.MaxRetries {
			q.log.Warn("Operation failed permanently",
				"id", op.ID, "name", op.Name, "retries", op.RetryCount, "kind", ne.Kind)
			op.resolve(nil, ne)
			q.notify()
			continue
		}

		op.RetryCount++
		delay := Backoff(q.cfg.BaseDelay, q.cfg.MaxDelay, op.RetryCount)
		op.NextAttemptAt = q.now().Add(delay)
		q.log.Debug("Operation requeued",
			"id", op.ID, "name", op.Name, "retry", op.RetryCount, "delay", delay, "kind", ne.Kind)
		q.requeue(op)
		q.armResume(delay)
		return
	}
}

// next pops the head if it is due. Otherwise it reports how long until it
// is and ends the processing cycle under the same lock, so an Enqueue
// racing with the end of a cycle can always start a new one.
func (q *Queue) next() (*Operation, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) == 0 {
		q.processing = false
		return nil, 0
	}
	head := q.ops[0]
	if wait := head.NextAttemptAt.Sub(q.now()); wait > 0 {
		q.processing = false
		return nil, wait
	}
	q.ops = q.ops[1:]
	return head, 0
}

// requeue puts op back at the head and ends the processing cycle in the
// same critical section.
func (q *Queue) requeue(op *Operation) {
	q.mu.Lock()
	q.processing = false
	var dropped *Operation
	if len(q.ops) >= q.cfg.MaxQueueSize {
		// op is the oldest entry; the bound wins
		dropped = op
	} else {
		q.ops = append([]*Operation{op}, q.ops...)
	}
	q.mu.Unlock()

	if dropped != nil {
		dropped.resolve(nil, ErrQueueOverflow)
	}
	q.notify()
}

func (q *Queue) armResume(delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx.Err() != nil {
		return
	}
	if q.resume != nil {
		q.resume.Stop()
	}
	q.resume = time.AfterFunc(delay, func() { q.Process(q.ctx) })
}

func attempt(ctx context.Context, op *Operation) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queued operation panicked: %v", r)
		}
	}()
	return op.exec(ctx)
}

// Backoff returns min(base * 2^(retry-1), ceiling) for retry >= 1.
func Backoff(base, ceiling time.Duration, retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := base
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= ceiling || delay <= 0 {
			return ceiling
		}
	}
	return min(delay, ceiling)
}

// Status returns the current length and processing flag.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{Length: len(q.ops), Processing: q.processing}
}

// Pending returns copies of queued operation metadata in queue order.
func (q *Queue) Pending() []OperationInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]OperationInfo, len(q.ops))
	for i, op := range q.ops {
		out[i] = infoOf(op)
	}
	return out
}

// Clear empties the queue. Every removed operation settles with
// ErrQueueCleared; none of them runs again.
func (q *Queue) Clear() int {
	q.mu.Lock()
	cleared := q.ops
	q.ops = nil
	if q.resume != nil {
		q.resume.Stop()
		q.resume = nil
	}
	q.mu.Unlock()

	for _, op := range cleared {
		op.resolve(nil, ErrQueueCleared)
	}
	q.notify()
	return len(cleared)
}

// Close stops timer-driven processing and settles whatever is still queued
// with ErrQueueClosed.
func (q *Queue) Close() {
	q.cancel()
	q.mu.Lock()
	if q.resume != nil {
		q.resume.Stop()
		q.resume = nil
	}
	remaining := q.ops
	q.ops = nil
	q.mu.Unlock()

	for _, op := range remaining {
		op.resolve(nil, ErrQueueClosed)
	}
}

func (q *Queue) notify() {
	q.mu.Lock()
	fn := q.onStatus
	st := Status{Length: len(q.ops), Processing: q.processing}
	q.mu.Unlock()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("Queue status listener panicked", "panic", r)
		}
	}()
	fn(st)
}
