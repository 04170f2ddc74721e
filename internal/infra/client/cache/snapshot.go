package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/storeguard/internal/infra/storage"
)

// SnapshotPrefix namespaces cache blobs in the storage backend.
const SnapshotPrefix = "cache:"

type record[V any] struct {
	Key       string        `json:"key"`
	Value     V             `json:"value"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// Snapshot writes every valid entry to b and removes stale blobs left from
// earlier snapshots. It returns the number of entries written.
func (c *TTLCache[V]) Snapshot(ctx context.Context, b storage.Backend) (int, error) {
	c.mu.Lock()
	now := c.now()
	records := make([]record[V], 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[V])
		if e.expired(now) {
			continue
		}
		records = append(records, record[V]{
			Key:       e.key,
			Value:     e.value,
			CreatedAt: e.createdAt,
			TTL:       e.ttl,
		})
	}
	c.mu.Unlock()

	if _, err := storage.RemovePrefix(ctx, b, SnapshotPrefix); err != nil {
		return 0, fmt.Errorf("clear old snapshot: %w", err)
	}

	for _, r := range records {
		data, err := storage.Encode(r)
		if err != nil {
			return 0, err
		}
		if err := b.Set(ctx, SnapshotPrefix+r.Key, data); err != nil {
			return 0, fmt.Errorf("write %s: %w", r.Key, err)
		}
	}
	return len(records), nil
}

// Restore loads entries from b that have not yet expired, keeping their
// original creation time. Undecodable blobs are skipped.
func (c *TTLCache[V]) Restore(ctx context.Context, b storage.Backend) (int, error) {
	keys, err := storage.KeysWithPrefix(ctx, b, SnapshotPrefix)
	if err != nil {
		return 0, fmt.Errorf("list snapshot: %w", err)
	}

	restored := 0
	for _, k := range keys {
		data, err := b.Get(ctx, k)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return restored, fmt.Errorf("read %s: %w", k, err)
		}

		var r record[V]
		if err := storage.Decode(data, &r); err != nil {
			slog.Warn("Skipping unreadable cache blob", "key", k, "error", err)
			continue
		}
		if c.now().Sub(r.CreatedAt) > r.TTL {
			continue
		}
		if err := c.insert(r.Key, r.Value, r.CreatedAt, r.TTL); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}
