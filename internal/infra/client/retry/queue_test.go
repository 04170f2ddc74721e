package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/storeguard/internal/infra/client/errs"
	"github.com/vietddude/storeguard/internal/infra/storage/memory"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func serverError() error { return &errs.StatusError{StatusCode: 503} }

func TestQueue_SurfacesAfterMaxRetries(t *testing.T) {
	q := New(Config{MaxQueueSize: 10, MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
	defer q.Close()

	var attempts atomic.Int32
	op := q.Enqueue("GET /stores", 0, func(ctx context.Context) (any, error) {
		attempts.Add(1)
		return nil, serverError()
	})
	q.Process(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := op.Wait(ctx)

	var ne *errs.NormalizedError
	if !errors.As(err, &ne) || ne.Kind != errs.KindServer {
		t.Fatalf("err = %v, want server_error", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if op.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", op.RetryCount)
	}
	waitFor(t, func() bool { return q.Status() == Status{} })
}

func TestQueue_RetryThenSuccess(t *testing.T) {
	q := New(Config{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	defer q.Close()

	var attempts atomic.Int32
	op := q.Enqueue("GET /ratings", 0, func(ctx context.Context) (any, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		return "ok", nil
	})
	q.Process(context.Background())

	v, err := op.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if v != "ok" {
		t.Errorf("value = %v", v)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestQueue_FatalNotRetried(t *testing.T) {
	q := New(Config{MaxRetries: 5, BaseDelay: time.Hour})
	defer q.Close()

	var attempts atomic.Int32
	bad := q.Enqueue("POST /ratings", 0, func(ctx context.Context) (any, error) {
		attempts.Add(1)
		return nil, &errs.StatusError{StatusCode: 422}
	})
	good := q.Enqueue("GET /stores", 0, func(ctx context.Context) (any, error) {
		return 1, nil
	})
	q.Process(context.Background())

	_, err := bad.Wait(context.Background())
	var ne *errs.NormalizedError
	if !errors.As(err, &ne) || ne.Kind != errs.KindValidation {
		t.Errorf("err = %v, want validation_error", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("fatal op attempted %d times", attempts.Load())
	}
	if v, err := good.Wait(context.Background()); err != nil || v != 1 {
		t.Errorf("next op = %v, %v", v, err)
	}
}

func TestQueue_RetryableStopsCycle(t *testing.T) {
	q := New(Config{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour})
	defer q.Close()

	var order []string
	q.Enqueue("first", 0, func(ctx context.Context) (any, error) {
		order = append(order, "first")
		return nil, serverError()
	})
	q.Enqueue("second", 0, func(ctx context.Context) (any, error) {
		order = append(order, "second")
		return nil, nil
	})
	q.Process(context.Background())

	if len(order) != 1 || order[0] != "first" {
		t.Fatalf("order = %v, want only first", order)
	}
	pending := q.Pending()
	if len(pending) != 2 || pending[0].Name != "first" || pending[0].RetryCount != 1 {
		t.Errorf("pending = %+v, want first requeued at head", pending)
	}

	// head is not due yet, so another trigger does nothing
	q.Process(context.Background())
	if len(order) != 1 {
		t.Errorf("early trigger ran %v", order)
	}
}

func TestQueue_DropOldestOnOverflow(t *testing.T) {
	const limit = 3
	q := New(Config{MaxQueueSize: limit})
	defer q.Close()

	noop := func(ctx context.Context) (any, error) { return nil, nil }
	ops := make([]*Operation, limit+1)
	for i := range ops {
		ops[i] = q.Enqueue("op", 0, noop)
	}

	if got := q.Status().Length; got != limit {
		t.Errorf("length = %d, want %d", got, limit)
	}
	if _, err := ops[0].Wait(context.Background()); !errors.Is(err, ErrQueueOverflow) {
		t.Errorf("oldest err = %v, want overflow", err)
	}
	pending := q.Pending()
	for i, info := range pending {
		if info.ID != ops[i+1].ID {
			t.Errorf("pending[%d] = %s, want %s", i, info.ID, ops[i+1].ID)
		}
	}
}

func TestQueue_Clear(t *testing.T) {
	q := New(Config{})
	defer q.Close()

	var ran atomic.Bool
	op := q.Enqueue("op", 0, func(ctx context.Context) (any, error) {
		ran.Store(true)
		return nil, nil
	})
	if n := q.Clear(); n != 1 {
		t.Errorf("Clear() = %d", n)
	}
	if _, err := op.Wait(context.Background()); !errors.Is(err, ErrQueueCleared) {
		t.Errorf("err = %v, want cleared", err)
	}
	q.Process(context.Background())
	if ran.Load() {
		t.Error("cleared op ran")
	}
}

func TestQueue_StatusNotifications(t *testing.T) {
	q := New(Config{})
	defer q.Close()

	var seen []Status
	q.OnStatus(func(s Status) { seen = append(seen, s) })

	q.Enqueue("op", 0, func(ctx context.Context) (any, error) { return nil, nil })
	q.Process(context.Background())

	if len(seen) == 0 {
		t.Fatal("no notifications")
	}
	if seen[0] != (Status{Length: 1}) {
		t.Errorf("first = %+v", seen[0])
	}
	var sawProcessing bool
	for _, s := range seen {
		sawProcessing = sawProcessing || s.Processing
	}
	if !sawProcessing {
		t.Error("never reported processing")
	}
	if last := seen[len(seen)-1]; last != (Status{}) {
		t.Errorf("last = %+v, want idle and empty", last)
	}
}

func TestQueue_CycleEndAdmitsNewCycle(t *testing.T) {
	q := New(Config{})
	defer q.Close()

	var late *Operation
	q.OnStatus(func(s Status) {
		if late != nil || s != (Status{}) {
			return
		}
		// the cycle has just ended: a new one must be able to start
		late = q.Enqueue("late", 0, func(ctx context.Context) (any, error) { return "late", nil })
		q.Process(context.Background())
	})

	q.Enqueue("first", 0, func(ctx context.Context) (any, error) { return nil, nil })
	q.Process(context.Background())

	if late == nil {
		t.Fatal("idle status never reported")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if v, err := late.Wait(ctx); err != nil || v != "late" {
		t.Errorf("late op = %v, %v", v, err)
	}
}

func TestQueue_EnqueueRacingCycleEnd(t *testing.T) {
	for i := 0; i < 200; i++ {
		q := New(Config{})

		first := q.Enqueue("first", 0, func(ctx context.Context) (any, error) { return nil, nil })
		go q.Process(context.Background())

		second := q.Enqueue("second", 0, func(ctx context.Context) (any, error) { return nil, nil })
		go q.Process(context.Background())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		for _, op := range []*Operation{first, second} {
			if _, err := op.Wait(ctx); err != nil {
				cancel()
				q.Close()
				t.Fatalf("iteration %d: %s stranded: %v", i, op.Name, err)
			}
		}
		cancel()
		q.Close()
	}
}

func TestQueue_PanickingListener(t *testing.T) {
	q := New(Config{})
	defer q.Close()
	q.OnStatus(func(Status) { panic("listener") })

	op := q.Enqueue("op", 0, func(ctx context.Context) (any, error) { return 7, nil })
	q.Process(context.Background())
	if v, err := op.Wait(context.Background()); err != nil || v != 7 {
		t.Errorf("got %v, %v", v, err)
	}
}

func TestBackoff(t *testing.T) {
	base, ceiling := 100*time.Millisecond, time.Second

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{60, time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(base, ceiling, tt.retry); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}

	prev := time.Duration(0)
	for r := 1; r <= 200; r++ {
		d := Backoff(base, ceiling, r)
		if d < prev {
			t.Fatalf("retry %d: %v < previous %v", r, d, prev)
		}
		if d > ceiling {
			t.Fatalf("retry %d: %v exceeds cap", r, d)
		}
		prev = d
	}
}

func TestPersistAndLoad(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewMemoryStorage()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	q := New(Config{}).WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	defer q.Close()

	noop := func(ctx context.Context) (any, error) { return nil, nil }
	a := q.Enqueue("POST /ratings", 2, noop)
	b := q.Enqueue("PUT /users/1", 0, noop)

	if err := q.Persist(ctx, backend); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	infos, err := LoadPersisted(ctx, backend)
	if err != nil {
		t.Fatalf("LoadPersisted: %v", err)
	}
	if len(infos) != 2 || infos[0].ID != a.ID || infos[1].ID != b.ID {
		t.Fatalf("infos = %+v", infos)
	}
	if infos[0].Priority != 2 || infos[0].Name != "POST /ratings" {
		t.Errorf("first = %+v", infos[0])
	}

	q.Clear()
	if err := q.Persist(ctx, backend); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if infos, _ := LoadPersisted(ctx, backend); len(infos) != 0 {
		t.Errorf("stale entries after persist: %+v", infos)
	}
}
