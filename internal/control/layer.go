package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/storeguard/internal/access/permission"
	"github.com/vietddude/storeguard/internal/core/config"
	"github.com/vietddude/storeguard/internal/core/domain"
	"github.com/vietddude/storeguard/internal/core/worker"
	"github.com/vietddude/storeguard/internal/events"
	"github.com/vietddude/storeguard/internal/health"
	"github.com/vietddude/storeguard/internal/infra/client"
	"github.com/vietddude/storeguard/internal/infra/client/batch"
	"github.com/vietddude/storeguard/internal/infra/client/cache"
	"github.com/vietddude/storeguard/internal/infra/client/executor"
	"github.com/vietddude/storeguard/internal/infra/client/limiter"
	"github.com/vietddude/storeguard/internal/infra/client/network"
	"github.com/vietddude/storeguard/internal/infra/client/retry"
	"github.com/vietddude/storeguard/internal/infra/storage"
)

// maintenanceInterval paces limiter pruning and cache purging when no
// snapshot interval is configured.
const maintenanceInterval = time.Minute

// recentEvents is how many events the status server can show.
const recentEvents = 100

// Layer owns every service of the client layer. It is created once at
// bootstrap and torn down with Stop.
type Layer struct {
	cfg      *config.AppConfig
	log      *slog.Logger
	backend  storage.Backend
	executor *executor.HTTP
	monitor  *network.Monitor
	bus      *events.Bus
	client   *client.Client
	perms    *permission.Engine
	server   *health.Server
	pruner   *worker.Pruner

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLayer creates a Layer with all dependencies initialized.
func NewLayer(ctx context.Context, cfg *config.AppConfig) (*Layer, error) {
	log := slog.Default()

	// 1. Permissions
	matrix := permission.DefaultMatrix()
	if cfg.Permissions.MatrixFile != "" {
		m, err := permission.LoadMatrix(cfg.Permissions.MatrixFile)
		if err != nil {
			return nil, err
		}
		matrix = m
	}
	log.Info("Permission matrix loaded", "version", matrix.Version(), "roles", len(matrix.Roles()))

	// 2. Storage
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 3. Transport and network
	exec := executor.NewHTTP(cfg.Client.BaseURL, cfg.Client.RequestTimeout)
	exec.SetToken(cfg.Client.Token)

	monitor := network.NewMonitor(exec, network.Config{
		HealthURL:      cfg.Network.HealthURL,
		ProbeTimeout:   cfg.Network.ProbeTimeout,
		ProbeInterval:  cfg.Network.ProbeInterval,
		ExcellentBelow: cfg.Network.ExcellentBelow,
		GoodBelow:      cfg.Network.GoodBelow,
		FairBelow:      cfg.Network.FairBelow,
		MinProbeGap:    cfg.Network.MinProbeGap,
	}, true).WithLogger(log)

	bus := events.NewBus(log, recentEvents)

	// 4. Orchestrated services
	respCache := cache.New[*domain.Response](cache.Config{
		DefaultTTL:   cfg.Cache.DefaultTTL,
		MaxSize:      cfg.Cache.MaxSize,
		FullPolicy:   cache.FullPolicy(cfg.Cache.FullPolicy),
		ActiveExpiry: cfg.Cache.ActiveExpiry,
	})
	queue := retry.New(retry.Config{
		MaxQueueSize: cfg.Retry.MaxQueueSize,
		MaxRetries:   cfg.Retry.MaxRetries,
		BaseDelay:    cfg.Retry.BaseDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
	}).WithLogger(log)

	c := client.New(exec, client.Config{RequestTimeout: cfg.Client.RequestTimeout}, client.Deps{
		Limiter: limiter.New(limiter.Config{MaxRequests: cfg.Limiter.MaxRequests, Window: cfg.Limiter.Window}),
		Cache:   respCache,
		Batcher: batch.New(batch.Config{
			Delay:          cfg.Batch.Delay,
			MaxSize:        cfg.Batch.MaxSize,
			MaxConcurrency: cfg.Batch.MaxConcurrency,
		}).WithLogger(log),
		Queue:   queue,
		Network: monitor,
		Events:  bus,
	}).WithLogger(log)

	perms := permission.NewEngine(matrix)
	server := health.NewServer(c, bus, perms, cfg.Retry.MaxQueueSize, cfg.Server.Port)

	l := &Layer{
		cfg:      cfg,
		log:      log,
		backend:  backend,
		executor: exec,
		monitor:  monitor,
		bus:      bus,
		client:   c,
		perms:    perms,
		server:   server,
	}

	interval := cfg.Storage.SnapshotInterval
	if interval <= 0 {
		interval = maintenanceInterval
	}
	l.pruner = worker.NewPruner(interval, log, l.maintenanceTasks()...)
	return l, nil
}

func (l *Layer) maintenanceTasks() []worker.Task {
	tasks := []worker.Task{
		{Name: "limiter_prune", Run: func(context.Context) (int, error) {
			return l.client.Limiter().Prune(), nil
		}},
		{Name: "cache_purge", Run: func(context.Context) (int, error) {
			n := l.client.Cache().PurgeExpired()
			l.client.PublishCacheStats()
			return n, nil
		}},
	}
	if l.cfg.Storage.SnapshotInterval > 0 {
		tasks = append(tasks,
			worker.Task{Name: "cache_snapshot", Run: func(ctx context.Context) (int, error) {
				return l.client.Cache().Snapshot(ctx, l.backend)
			}},
			worker.Task{Name: "queue_persist", Run: func(ctx context.Context) (int, error) {
				return l.client.Queue().Status().Length, l.client.Queue().Persist(ctx, l.backend)
			}},
		)
	}
	return tasks
}

// Start restores persisted cache entries and starts background work.
func (l *Layer) Start(ctx context.Context) error {
	n, err := l.client.Cache().Restore(ctx, l.backend)
	if err != nil {
		l.log.Warn("Failed to restore cache snapshot", "error", err)
	} else if n > 0 {
		l.log.Info("Restored cached responses", "count", n)
	}

	if pending, err := retry.LoadPersisted(ctx, l.backend); err == nil && len(pending) > 0 {
		// executors are not persisted, so these cannot be replayed
		l.log.Warn("Previous run left unfinished operations", "count", len(pending))
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	// Start Status Server
	go func() {
		if err := l.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Error("Status server failed", "error", err)
		}
	}()

	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		l.monitor.Run(ctx)
	}()
	go func() {
		defer l.wg.Done()
		l.pruner.Start(ctx)
	}()

	l.log.Info("Storeguard layer started", "port", l.cfg.Server.Port, "base_url", l.cfg.Client.BaseURL)
	return nil
}

// Stop snapshots the cache, persists the retry queue and releases every
// resource. It is safe to call without Start.
func (l *Layer) Stop(ctx context.Context) error {
	l.log.Info("Stopping storeguard layer...")
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()

	var errs []error
	if n, err := l.client.Cache().Snapshot(ctx, l.backend); err != nil {
		errs = append(errs, fmt.Errorf("snapshot cache: %w", err))
	} else {
		l.log.Info("Cache snapshot written", "entries", n)
	}
	if err := l.client.Queue().Persist(ctx, l.backend); err != nil {
		errs = append(errs, fmt.Errorf("persist queue: %w", err))
	}

	l.client.Close()
	_ = l.bus.Close()
	_ = l.executor.Close()

	if err := l.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	if err := l.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop status server: %w", err))
	}
	return errors.Join(errs...)
}

// Client returns the orchestrator.
func (l *Layer) Client() *client.Client { return l.client }

// Permissions returns the authorization engine.
func (l *Layer) Permissions() *permission.Engine { return l.perms }

// Events returns the event bus for UI subscribers.
func (l *Layer) Events() *events.Bus { return l.bus }

// Network returns the connectivity monitor, so the platform can feed
// online/offline signals.
func (l *Layer) Network() *network.Monitor { return l.monitor }
