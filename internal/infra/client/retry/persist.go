package retry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vietddude/storeguard/internal/infra/storage"
)

// KeyPrefix namespaces persisted queue entries in a storage backend.
const KeyPrefix = "queue:"

// OperationInfo is the serializable part of an Operation. Executors are
// not persisted; a restored record is informational.
type OperationInfo struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Priority      int       `json:"priority"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	RetryCount    int       `json:"retry_count"`
	NextAttemptAt time.Time `json:"next_attempt_at,omitzero"`
}

func infoOf(op *Operation) OperationInfo {
	return OperationInfo{
		ID:            op.ID,
		Name:          op.Name,
		Priority:      op.Priority,
		EnqueuedAt:    op.EnqueuedAt,
		RetryCount:    op.RetryCount,
		NextAttemptAt: op.NextAttemptAt,
	}
}

// Persist replaces the stored queue snapshot with the current entries.
func (q *Queue) Persist(ctx context.Context, b storage.Backend) error {
	if _, err := storage.RemovePrefix(ctx, b, KeyPrefix); err != nil {
		return fmt.Errorf("clear persisted queue: %w", err)
	}
	for _, info := range q.Pending() {
		data, err := storage.Encode(info)
		if err != nil {
			return fmt.Errorf("encode operation %s: %w", info.ID, err)
		}
		if err := b.Set(ctx, KeyPrefix+info.ID, data); err != nil {
			return fmt.Errorf("persist operation %s: %w", info.ID, err)
		}
	}
	return nil
}

// LoadPersisted reads a stored queue snapshot ordered by enqueue time.
func LoadPersisted(ctx context.Context, b storage.Backend) ([]OperationInfo, error) {
	keys, err := storage.KeysWithPrefix(ctx, b, KeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]OperationInfo, 0, len(keys))
	for _, k := range keys {
		data, err := b.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", k, err)
		}
		var info OperationInfo
		if err := storage.Decode(data, &info); err != nil {
			return nil, fmt.Errorf("decode %s: %w", k, err)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out, nil
}
