package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/storeguard/internal/core/config"
	redisclient "github.com/vietddude/storeguard/internal/infra/redis"
	"github.com/vietddude/storeguard/internal/infra/storage"
	"github.com/vietddude/storeguard/internal/infra/storage/memory"
	"github.com/vietddude/storeguard/internal/infra/storage/postgres"
)

// OpenBackend opens the storage backend named in cfg. The postgres backend
// runs its migrations before use.
func OpenBackend(ctx context.Context, cfg *config.AppConfig) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		slog.Info("Using Memory storage")
		return memory.NewMemoryStorage(), nil

	case "redis":
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		slog.Info("Using Redis storage", "prefix", cfg.Redis.KeyPrefix)
		return client, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
		slog.Info("Using PostgreSQL storage")
		return postgres.NewKVStore(db), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}
