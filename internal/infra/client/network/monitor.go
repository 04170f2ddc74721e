// Package network tracks connectivity and classifies probe latency into
// quality tiers.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/storeguard/internal/core/domain"
)

// Config holds monitor configuration.
type Config struct {
	HealthURL     string
	ProbeTimeout  time.Duration
	ProbeInterval time.Duration

	// Latency upper bounds for each tier; anything slower is Poor.
	ExcellentBelow time.Duration
	GoodBelow      time.Duration
	FairBelow      time.Duration

	// MinProbeGap paces probes triggered by connectivity flapping; 0 disables pacing.
	MinProbeGap time.Duration
}

// DefaultConfig returns sensible monitor defaults.
func DefaultConfig() Config {
	return Config{
		HealthURL:      "/health",
		ProbeTimeout:   5 * time.Second,
		ProbeInterval:  30 * time.Second,
		ExcellentBelow: 100 * time.Millisecond,
		GoodBelow:      300 * time.Millisecond,
		FairBelow:      time.Second,
		MinProbeGap:    2 * time.Second,
	}
}

// Listener receives every status change.
type Listener func(domain.NetworkStatus)

// Monitor owns the NetworkStatus. Only probe completions and connectivity
// signals mutate it.
type Monitor struct {
	executor domain.Executor
	cfg      Config
	pacer    *rate.Limiter
	log      *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	status    domain.NetworkStatus
	listeners map[uint64]Listener
	nextID    uint64
	deferred  *time.Timer // pending paced probe, if any
}

// NewMonitor creates a monitor. online is the platform's reported
// connectivity at start; quality stays Unknown until the first probe.
func NewMonitor(executor domain.Executor, cfg Config, online bool) *Monitor {
	def := DefaultConfig()
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if cfg.ExcellentBelow <= 0 {
		cfg.ExcellentBelow = def.ExcellentBelow
	}
	if cfg.GoodBelow <= 0 {
		cfg.GoodBelow = def.GoodBelow
	}
	if cfg.FairBelow <= 0 {
		cfg.FairBelow = def.FairBelow
	}
	if cfg.HealthURL == "" {
		cfg.HealthURL = def.HealthURL
	}

	quality := domain.QualityUnknown
	if !online {
		quality = domain.QualityOffline
	}

	return &Monitor{
		executor:  executor,
		cfg:       cfg,
		pacer:     rate.NewLimiter(rate.Every(cfg.MinProbeGap), 1),
		log:       slog.Default(),
		now:       time.Now,
		status:    domain.NetworkStatus{Online: online, Quality: quality},
		listeners: make(map[uint64]Listener),
	}
}

// WithLogger sets the logger used for listener failures.
func (m *Monitor) WithLogger(l *slog.Logger) *Monitor {
	m.log = l
	return m
}

// WithClock replaces the time source used to measure latency. Intended for tests.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Status returns the current assessment.
func (m *Monitor) Status() domain.NetworkStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsOnline reports the connectivity flag.
func (m *Monitor) IsOnline() bool {
	return m.Status().Online
}

// Subscribe registers fn and returns a function that unregisters it.
func (m *Monitor) Subscribe(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// SetOnline handles a connectivity signal from the platform. Losing
// connectivity moves to Offline at once; regaining it triggers a probe.
// When a probe ran within MinProbeGap the new one is deferred until the
// gap has passed.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	if !online {
		m.update(func(s *domain.NetworkStatus) {
			s.Online = false
			s.Quality = domain.QualityOffline
		})
		return
	}

	changed := m.update(func(s *domain.NetworkStatus) {
		if !s.Online {
			s.Online = true
			s.Quality = domain.QualityUnknown
		}
	})
	if !changed {
		return
	}

	m.mu.Lock()
	if m.deferred != nil {
		// a paced probe is already scheduled and will see this reconnect
		m.mu.Unlock()
		return
	}
	delay := m.pacer.Reserve().Delay()
	if delay > 0 {
		m.log.Debug("Deferring probe, connectivity is flapping", "delay", delay)
		probeCtx := context.WithoutCancel(ctx)
		m.deferred = time.AfterFunc(delay, func() {
			m.mu.Lock()
			m.deferred = nil
			m.mu.Unlock()
			m.probeAfterReconnect(probeCtx)
		})
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.probeAfterReconnect(ctx)
}

func (m *Monitor) probeAfterReconnect(ctx context.Context) {
	if _, err := m.Probe(ctx); err != nil {
		m.log.Debug("Probe after reconnect failed", "error", err)
	}
}

// Stop cancels a deferred reconnect probe.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deferred != nil {
		m.deferred.Stop()
		m.deferred = nil
	}
}

// Probe sends a HEAD request to the health URL and classifies latency.
// A failed probe while online degrades quality to Poor. The returned
// error is the probe failure, if any; the status is updated either way.
func (m *Monitor) Probe(ctx context.Context) (domain.NetworkStatus, error) {
	if !m.IsOnline() {
		return m.Status(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	start := m.now()
	_, err := m.executor.Execute(ctx, &domain.Request{
		Endpoint: m.cfg.HealthURL,
		Method:   http.MethodHead,
	})
	latency := m.now().Sub(start)

	quality := m.Classify(latency)
	if err != nil {
		quality = domain.QualityPoor
		err = fmt.Errorf("probe %s: %w", m.cfg.HealthURL, err)
	}

	m.update(func(s *domain.NetworkStatus) {
		// connectivity may have dropped while the probe was in flight
		if !s.Online {
			return
		}
		s.Quality = quality
		s.LastCheckedAt = m.now()
	})
	return m.Status(), err
}

// Classify buckets a round-trip latency.
func (m *Monitor) Classify(latency time.Duration) domain.Quality {
	switch {
	case latency < m.cfg.ExcellentBelow:
		return domain.QualityExcellent
	case latency < m.cfg.GoodBelow:
		return domain.QualityGood
	case latency < m.cfg.FairBelow:
		return domain.QualityFair
	default:
		return domain.QualityPoor
	}
}

// Run probes every ProbeInterval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()
	defer m.Stop()

	if _, err := m.Probe(ctx); err != nil {
		m.log.Warn("Network probe failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Probe(ctx); err != nil {
				m.log.Warn("Network probe failed", "error", err)
			}
		}
	}
}

// update applies fn under the lock and notifies listeners if the online
// flag or quality changed. LastCheckedAt alone is not a change.
func (m *Monitor) update(fn func(s *domain.NetworkStatus)) bool {
	m.mu.Lock()
	before := m.status
	fn(&m.status)
	after := m.status
	changed := before.Online != after.Online || before.Quality != after.Quality

	var listeners []Listener
	if changed {
		listeners = make([]Listener, 0, len(m.listeners))
		for _, l := range m.listeners {
			listeners = append(listeners, l)
		}
	}
	m.mu.Unlock()

	for _, l := range listeners {
		m.notify(l, after)
	}
	return changed
}

func (m *Monitor) notify(l Listener, status domain.NetworkStatus) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Network listener panicked", "panic", r)
		}
	}()
	l(status)
}
