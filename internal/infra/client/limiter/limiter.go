// Package limiter implements per-key admission control over an exact
// trailing time window.
package limiter

import (
	"sync"
	"time"
)

// Config holds limiter configuration.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultConfig returns sensible limiter defaults.
func DefaultConfig() Config {
	return Config{
		MaxRequests: 60,
		Window:      time.Minute,
	}
}

// Result is the outcome of a single Check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// SlidingWindow keeps, per key, the admission timestamps that fall inside
// the trailing window. It never admits more than MaxRequests events in any
// Window-wide interval.
type SlidingWindow struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	max    int
	window time.Duration
	now    func() time.Time
}

// New creates a sliding window limiter.
func New(cfg Config) *SlidingWindow {
	def := DefaultConfig()
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &SlidingWindow{
		windows: make(map[string][]time.Time),
		max:     cfg.MaxRequests,
		window:  cfg.Window,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	l.now = now
	return l
}

// Check evaluates and, when admitted, records one event for key.
// Pruning and recording happen under the same lock.
func (l *SlidingWindow) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stamps := l.pruneLocked(key, now)

	if len(stamps) < l.max {
		stamps = append(stamps, now)
		l.windows[key] = stamps
		return Result{
			Allowed:   true,
			Remaining: l.max - len(stamps),
			Limit:     l.max,
			ResetAt:   stamps[0].Add(l.window),
		}
	}

	return Result{
		Allowed:   false,
		Remaining: 0,
		Limit:     l.max,
		ResetAt:   stamps[0].Add(l.window),
	}
}

// Peek reports the state for key without recording an event.
func (l *SlidingWindow) Peek(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stamps := l.pruneLocked(key, now)

	res := Result{
		Allowed:   len(stamps) < l.max,
		Remaining: l.max - len(stamps),
		Limit:     l.max,
		ResetAt:   now,
	}
	if len(stamps) > 0 {
		res.ResetAt = stamps[0].Add(l.window)
	}
	return res
}

// Reset clears the history of one key.
func (l *SlidingWindow) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// ClearAll empties every key.
func (l *SlidingWindow) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string][]time.Time)
}

// Prune drops keys whose history has fully aged out and returns how many
// keys were removed.
func (l *SlidingWindow) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key := range l.windows {
		if len(l.pruneLocked(key, now)) == 0 {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Keys returns the number of tracked keys.
func (l *SlidingWindow) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// pruneLocked discards timestamps at or before now-window.
// Timestamps are appended in order, so the retained ones are a suffix.
func (l *SlidingWindow) pruneLocked(key string, now time.Time) []time.Time {
	stamps := l.windows[key]
	cutoff := now.Add(-l.window)

	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		stamps = append(stamps[:0:0], stamps[i:]...)
		l.windows[key] = stamps
	}
	return stamps
}
