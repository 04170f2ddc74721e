// Package storage defines the opaque key/value backend used to persist
// cache snapshots and pending retry operations across restarts.
package storage

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a key doesn't exist
	ErrNotFound = errors.New("key not found")
)

// Backend stores serialized blobs by key.
type Backend interface {
	// Get returns the stored blob or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a blob, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes a key; removing a missing key is not an error
	Remove(ctx context.Context, key string) error

	// Keys lists every stored key
	Keys(ctx context.Context) ([]string, error)

	// Close releases backend resources
	Close() error
}

// KeysWithPrefix lists the keys of b that start with prefix.
func KeysWithPrefix(ctx context.Context, b Backend, prefix string) ([]string, error) {
	keys, err := b.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// BatchRemover is implemented by backends that delete many keys at once.
type BatchRemover interface {
	RemoveMany(ctx context.Context, keys []string) error
}

// RemovePrefix deletes every key of b that starts with prefix.
func RemovePrefix(ctx context.Context, b Backend, prefix string) (int, error) {
	keys, err := KeysWithPrefix(ctx, b, prefix)
	if err != nil {
		return 0, err
	}
	if br, ok := b.(BatchRemover); ok {
		if err := br.RemoveMany(ctx, keys); err != nil {
			return 0, err
		}
		return len(keys), nil
	}
	for _, k := range keys {
		if err := b.Remove(ctx, k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}
