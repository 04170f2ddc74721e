// Package cache provides a size-bounded key/value store with per-entry TTL.
package cache

import (
	"container/list"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrCacheFull is returned by Set under PolicyReject when no room is left
// after expired entries were purged.
var ErrCacheFull = errors.New("cache full")

// FullPolicy decides what happens when Set finds the store full.
type FullPolicy string

const (
	// PolicyEvictOldest drops the least recently inserted entry.
	PolicyEvictOldest FullPolicy = "evict_oldest"
	// PolicyReject refuses the new entry.
	PolicyReject FullPolicy = "reject"
)

// Config holds cache configuration.
type Config struct {
	DefaultTTL   time.Duration
	MaxSize      int
	FullPolicy   FullPolicy
	ActiveExpiry bool // arm a timer per entry; lazy expiry on Get always applies
}

// DefaultConfig returns sensible cache defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:   5 * time.Minute,
		MaxSize:      500,
		FullPolicy:   PolicyEvictOldest,
		ActiveExpiry: true,
	}
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Total     int    `json:"total"`
	Valid     int    `json:"valid"`
	Expired   int    `json:"expired"`
	MaxSize   int    `json:"max_size"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

type entry[V any] struct {
	key       string
	value     V
	createdAt time.Time
	ttl       time.Duration
	seq       uint64
	timer     *time.Timer
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// TTLCache stores values with a creation time and TTL. A value is never
// returned once now-createdAt exceeds its TTL.
type TTLCache[V any] struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // insertion order, front = oldest
	cfg     Config
	seq     uint64
	now     func() time.Time
	onEvict func(key string)

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a TTL cache.
func New[V any](cfg Config) *TTLCache[V] {
	def := DefaultConfig()
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.FullPolicy == "" {
		cfg.FullPolicy = def.FullPolicy
	}
	return &TTLCache[V]{
		items: make(map[string]*list.Element),
		order: list.New(),
		cfg:   cfg,
		now:   time.Now,
	}
}

// WithClock replaces the time source used for expiry checks. Intended for tests.
func (c *TTLCache[V]) WithClock(now func() time.Time) *TTLCache[V] {
	c.now = now
	return c
}

// OnEvict registers a callback invoked (outside the lock) when an entry is
// evicted to make room.
func (c *TTLCache[V]) OnEvict(fn func(key string)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

// Set stores value under key. A ttl <= 0 uses the default TTL.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	return c.insert(key, value, c.now(), ttl)
}

func (c *TTLCache[V]) insert(key string, value V, createdAt time.Time, ttl time.Duration) error {
	c.mu.Lock()

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}

	var evicted []string
	if len(c.items) >= c.cfg.MaxSize {
		c.purgeExpiredLocked(c.now())
	}
	if len(c.items) >= c.cfg.MaxSize {
		if c.cfg.FullPolicy == PolicyReject {
			c.mu.Unlock()
			return ErrCacheFull
		}
		for len(c.items) >= c.cfg.MaxSize {
			oldest := c.order.Front()
			evicted = append(evicted, oldest.Value.(*entry[V]).key)
			c.removeLocked(oldest)
			c.evictions++
		}
	}

	c.seq++
	e := &entry[V]{
		key:       key,
		value:     value,
		createdAt: createdAt,
		ttl:       ttl,
		seq:       c.seq,
	}
	if c.cfg.ActiveExpiry {
		remaining := ttl - c.now().Sub(createdAt)
		if remaining < 0 {
			remaining = 0
		}
		seq := e.seq
		e.timer = time.AfterFunc(remaining, func() { c.expire(key, seq) })
	}
	c.items[key] = c.order.PushBack(e)
	onEvict := c.onEvict
	c.mu.Unlock()

	if onEvict != nil {
		for _, k := range evicted {
			onEvict(k)
		}
	}
	return nil
}

// Get returns the value for key. An expired entry is removed and reported
// as a miss.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[V])
	if e.expired(c.now()) {
		c.removeLocked(el)
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Delete removes key.
func (c *TTLCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// DeletePrefix removes every key starting with prefix and returns the count.
func (c *TTLCache[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(el)
			n++
		}
	}
	return n
}

// Clear removes every entry and stops pending expiry timers.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, el := range c.items {
		if t := el.Value.(*entry[V]).timer; t != nil {
			t.Stop()
		}
	}
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// PurgeExpired removes all expired entries and returns how many were removed.
func (c *TTLCache[V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpiredLocked(c.now())
}

// Stats reports counts without mutating the store.
func (c *TTLCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := Stats{
		Total:     len(c.items),
		MaxSize:   c.cfg.MaxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	for _, el := range c.items {
		if el.Value.(*entry[V]).expired(now) {
			s.Expired++
		} else {
			s.Valid++
		}
	}
	return s
}

// Len returns the number of stored entries, expired or not.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *TTLCache[V]) expire(key string, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return
	}
	// the key may have been replaced since this timer was armed
	if el.Value.(*entry[V]).seq != seq {
		return
	}
	c.removeLocked(el)
}

func (c *TTLCache[V]) purgeExpiredLocked(now time.Time) int {
	n := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry[V]).expired(now) {
			c.removeLocked(el)
			n++
		}
		el = next
	}
	return n
}

func (c *TTLCache[V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[V])
	if e.timer != nil {
		e.timer.Stop()
	}
	c.order.Remove(el)
	delete(c.items, e.key)
}
