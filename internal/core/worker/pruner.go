package worker

import (
	"context"
	"log/slog"
	"time"
)

// Task is one periodic maintenance step. It reports how many items it
// touched.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Pruner runs maintenance tasks on a fixed interval: dropping idle limiter
// keys, purging expired cache entries, snapshotting state.
type Pruner struct {
	interval time.Duration
	tasks    []Task
	log      *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(interval time.Duration, log *slog.Logger, tasks ...Task) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		interval: interval,
		tasks:    tasks,
		log:      log,
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.interval <= 0 || len(p.tasks) == 0 {
		return // disabled
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes every task once. A failing task does not stop the rest.
func (p *Pruner) RunOnce(ctx context.Context) {
	for _, t := range p.tasks {
		n, err := t.Run(ctx)
		if err != nil {
			p.log.Error("Maintenance task failed", "task", t.Name, "error", err)
			continue
		}
		if n > 0 {
			p.log.Debug("Maintenance task done", "task", t.Name, "count", n)
		}
	}
}
