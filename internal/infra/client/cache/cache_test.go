package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/storeguard/internal/infra/storage/memory"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Set(ms int)     { c.t = time.Unix(0, 0).Add(time.Duration(ms) * time.Millisecond) }

func newTestCache(cfg Config) (*TTLCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cfg.ActiveExpiry = false
	return New[string](cfg).WithClock(clock.Now), clock
}

func TestTTLScenario(t *testing.T) {
	c, clock := newTestCache(Config{MaxSize: 10})

	clock.Set(0)
	if err := c.Set("a", "v", 500*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	clock.Set(100)
	if v, ok := c.Get("a"); !ok || v != "v" {
		t.Fatalf("Get at t=100 = %q, %v", v, ok)
	}

	clock.Set(600)
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get at t=600 should miss")
	}
	if total := c.Stats().Total; total != 0 {
		t.Errorf("expired entry should be removed, Total = %d", total)
	}
}

func TestExpiryBoundary(t *testing.T) {
	c, clock := newTestCache(Config{MaxSize: 10})

	c.Set("a", "v", time.Second)
	clock.Set(1000)
	if _, ok := c.Get("a"); !ok {
		t.Error("entry is still valid at exactly its TTL")
	}
	clock.Set(1001)
	if _, ok := c.Get("a"); ok {
		t.Error("entry must miss once TTL is exceeded")
	}
}

func TestDefaultTTL(t *testing.T) {
	c, clock := newTestCache(Config{MaxSize: 10, DefaultTTL: 200 * time.Millisecond})

	c.Set("a", "v", 0)
	clock.Set(150)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit within default TTL")
	}
	clock.Set(250)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss after default TTL")
	}
}

func TestStatsCountsValidAndExpired(t *testing.T) {
	c, clock := newTestCache(Config{MaxSize: 10})

	c.Set("short", "1", 100*time.Millisecond)
	c.Set("long", "2", time.Minute)
	clock.Set(200)

	s := c.Stats()
	if s.Total != 2 || s.Valid != 1 || s.Expired != 1 || s.MaxSize != 10 {
		t.Errorf("Stats = %+v", s)
	}

	c.Get("long")
	c.Get("nope")
	s = c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Hits=%d Misses=%d", s.Hits, s.Misses)
	}
}

func TestFullPurgesExpiredFirst(t *testing.T) {
	for _, policy := range []FullPolicy{PolicyEvictOldest, PolicyReject} {
		c, clock := newTestCache(Config{MaxSize: 2, FullPolicy: policy})

		c.Set("stale", "1", 100*time.Millisecond)
		c.Set("fresh", "2", time.Minute)
		clock.Set(200)

		if err := c.Set("new", "3", time.Minute); err != nil {
			t.Fatalf("%s: Set failed: %v", policy, err)
		}
		if _, ok := c.Get("fresh"); !ok {
			t.Errorf("%s: fresh entry should survive", policy)
		}
		if _, ok := c.Get("new"); !ok {
			t.Errorf("%s: new entry should be stored", policy)
		}
		if c.Stats().Evictions != 0 {
			t.Errorf("%s: purging expired entries is not an eviction", policy)
		}
	}
}

func TestFullEvictOldest(t *testing.T) {
	c, _ := newTestCache(Config{MaxSize: 2, FullPolicy: PolicyEvictOldest})

	var evicted []string
	c.OnEvict(func(key string) { evicted = append(evicted, key) })

	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)
	c.Get("a") // reads do not affect insertion order
	if err := c.Set("c", "3", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry a should have been evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("b should remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be stored")
	}
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Errorf("evicted = %v", evicted)
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Evictions = %d", c.Stats().Evictions)
	}
}

func TestFullReject(t *testing.T) {
	c, _ := newTestCache(Config{MaxSize: 2, FullPolicy: PolicyReject})

	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)
	if err := c.Set("c", "3", time.Minute); !errors.Is(err, ErrCacheFull) {
		t.Fatalf("expected ErrCacheFull, got %v", err)
	}
	if _, ok := c.Get("c"); ok {
		t.Error("rejected entry must not be stored")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("existing entries must be kept")
	}

	// Replacing an existing key never counts against capacity.
	if err := c.Set("a", "1b", time.Minute); err != nil {
		t.Errorf("overwrite should succeed when full: %v", err)
	}
}

func TestDeleteAndClear(t *testing.T) {
	c, _ := newTestCache(Config{MaxSize: 10})

	c.Set("/stores#1", "a", time.Minute)
	c.Set("/stores#2", "b", time.Minute)
	c.Set("/ratings#1", "c", time.Minute)

	if !c.Delete("/ratings#1") || c.Delete("/ratings#1") {
		t.Error("Delete should report whether the key existed")
	}
	if n := c.DeletePrefix("/stores#"); n != 2 {
		t.Errorf("DeletePrefix = %d", n)
	}

	c.Set("x", "y", time.Minute)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
}

func TestActiveExpiryRemovesEntry(t *testing.T) {
	c := New[string](Config{MaxSize: 10, ActiveExpiry: true})
	c.Set("a", "v", 20*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("entry was not removed by its expiry timer")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestActiveExpiryIgnoresReplacedEntry(t *testing.T) {
	c := New[string](Config{MaxSize: 10, ActiveExpiry: true})
	c.Set("a", "old", 20*time.Millisecond)
	c.Set("a", "new", time.Minute)

	time.Sleep(60 * time.Millisecond)
	if v, ok := c.Get("a"); !ok || v != "new" {
		t.Errorf("Get = %q, %v; the stale timer must not delete the new entry", v, ok)
	}
	c.Clear()
}

func TestKeyIsOrderIndependent(t *testing.T) {
	a := Key("/stores", map[string]string{"page": "2", "sort": "rating", "q": "cafe"})
	b := Key("/stores", map[string]string{"q": "cafe", "sort": "rating", "page": "2"})
	if a != b {
		t.Errorf("keys differ: %s vs %s", a, b)
	}

	tests := []struct {
		endpoint string
		params   map[string]string
	}{
		{"/stores", map[string]string{"page": "3", "sort": "rating", "q": "cafe"}},
		{"/ratings", map[string]string{"page": "2", "sort": "rating", "q": "cafe"}},
		{"/stores", map[string]string{"page": "2&sort=rating", "q": "cafe"}},
		{"/stores", nil},
	}
	for _, tt := range tests {
		if Key(tt.endpoint, tt.params) == a {
			t.Errorf("collision for %s %v", tt.endpoint, tt.params)
		}
	}

	if Key("/stores/", nil) != Key("/stores", nil) {
		t.Error("trailing slash should not change the key")
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewMemoryStorage()
	src, clock := newTestCache(Config{MaxSize: 10})

	src.Set("a", "alpha", time.Second)
	src.Set("b", "beta", 100*time.Millisecond)
	clock.Set(200)

	n, err := src.Snapshot(ctx, backend)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Snapshot wrote %d entries, want 1", n)
	}

	dst := New[string](Config{MaxSize: 10}).WithClock(clock.Now)
	restored, err := dst.Restore(ctx, backend)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored != 1 {
		t.Errorf("restored %d entries", restored)
	}
	if v, ok := dst.Get("a"); !ok || v != "alpha" {
		t.Errorf("Get(a) = %q, %v", v, ok)
	}

	// creation time is preserved, so the entry still expires on schedule
	clock.Set(1100)
	if _, ok := dst.Get("a"); ok {
		t.Error("restored entry should expire at its original deadline")
	}
	dst.Clear()
}
