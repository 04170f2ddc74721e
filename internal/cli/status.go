package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/storeguard/internal/control"
	"github.com/vietddude/storeguard/internal/infra/client/cache"
	"github.com/vietddude/storeguard/internal/infra/client/retry"
	"github.com/vietddude/storeguard/internal/infra/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted cache and retry queue footprint",
	Run:   runStatus,
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete persisted cache snapshots and queue metadata",
	Run:   runPurge,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(purgeCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	backend, err := control.OpenBackend(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = backend.Close()
	}()

	cached, err := storage.KeysWithPrefix(ctx, backend, cache.SnapshotPrefix)
	if err != nil {
		slog.Error("Failed to list cache snapshot", "error", err)
		os.Exit(1)
	}
	ops, err := retry.LoadPersisted(ctx, backend)
	if err != nil {
		slog.Error("Failed to load queue snapshot", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Backend: %s\nCached responses: %d\nQueued operations: %d\n\n",
		cfg.Storage.Backend, len(cached), len(ops))
	if len(ops) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tOPERATION\tPRIORITY\tRETRIES\tENQUEUED")
	for _, op := range ops {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			op.ID, op.Name, op.Priority, op.RetryCount, op.EnqueuedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}

func runPurge(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	backend, err := control.OpenBackend(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = backend.Close()
	}()

	total := 0
	for _, prefix := range []string{cache.SnapshotPrefix, retry.KeyPrefix} {
		n, err := storage.RemovePrefix(ctx, backend, prefix)
		if err != nil {
			slog.Error("Failed to purge", "prefix", prefix, "error", err)
			os.Exit(1)
		}
		total += n
	}
	fmt.Printf("Removed %d persisted entries\n", total)
}
