package redis

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/vietddude/storeguard/internal/infra/storage"
)

func setupRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c, err := NewClient(Config{URL: "redis://" + s.Addr(), KeyPrefix: "test:"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, s := setupRedis(t)

	if err := c.Set(ctx, "cache:abc", []byte("payload")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !s.Exists("test:cache:abc") {
		t.Error("expected key to be namespaced with the prefix")
	}

	got, err := c.Get(ctx, "cache:abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get = %q", got)
	}

	if err := c.Remove(ctx, "cache:abc"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := c.Get(ctx, "cache:abc"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClientKeysStripsPrefix(t *testing.T) {
	ctx := context.Background()
	c, s := setupRedis(t)

	_ = s.Set("other:ignored", "x")
	for _, k := range []string{"queue:1", "queue:2", "cache:a"} {
		if err := c.Set(ctx, k, []byte("v")); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}

	keys, err := c.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	sort.Strings(keys)
	want := []string{"cache:a", "queue:1", "queue:2"}
	if len(keys) != len(want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestNewClientBadURL(t *testing.T) {
	if _, err := NewClient(Config{URL: "not-a-url"}); err == nil {
		t.Error("expected error for invalid URL")
	}
}
