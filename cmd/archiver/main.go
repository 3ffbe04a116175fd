// Command archiver enforces data retention: terminal delivery log rows and
// expired idempotency claims past their retention window are purged from the
// database and written to compressed JSONL archives. Intended to run as a
// daily scheduled job.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"mizan/internal/config"
	"mizan/internal/db"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).
		With("service", cfg.Service, "component", "archiver")

	ctx := context.Background()

	repos, err := db.NewRegistry(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer repos.Close()

	if err := os.MkdirAll(cfg.Archive.Dir, 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	now := time.Now().UTC()
	stamp := now.Format("20060102T150405")

	// Delivery log: only terminal rows leave the hot table; in-flight
	// deliveries keep their audit trail until reconciliation settles them.
	deliveryCutoff := now.Add(-cfg.Archive.DeliveryLogRetention)
	entries, err := repos.DeliveryLog().PurgeTerminalOlderThan(ctx, deliveryCutoff)
	if err != nil {
		return fmt.Errorf("purging delivery log: %w", err)
	}
	if len(entries) > 0 {
		path := filepath.Join(cfg.Archive.Dir, "delivery_log_"+stamp+".jsonl.zst")
		if err := writeArchive(path, toRows(entries)); err != nil {
			return fmt.Errorf("archiving delivery log: %w", err)
		}
		logger.Info("delivery log archived", "rows", len(entries), "path", path)
	}

	// Idempotency claims only need to outlive the provider's redelivery
	// horizon; past that they are dead weight on the unique index.
	claimCutoff := now.Add(-cfg.Archive.ProcessedIDRetention)
	claims, err := repos.ProcessedMessages().PurgeOlderThan(ctx, claimCutoff)
	if err != nil {
		return fmt.Errorf("purging processed message ids: %w", err)
	}
	if len(claims) > 0 {
		path := filepath.Join(cfg.Archive.Dir, "processed_messages_"+stamp+".jsonl.zst")
		if err := writeArchive(path, toRows(claims)); err != nil {
			return fmt.Errorf("archiving processed message ids: %w", err)
		}
		logger.Info("processed message ids archived", "rows", len(claims), "path", path)
	}

	logger.Info("retention pass complete",
		"delivery_rows", len(entries),
		"claim_rows", len(claims),
	)
	return nil
}

// toRows erases the element type for writeArchive.
func toRows[T any](items []T) []any {
	rows := make([]any, len(items))
	for i := range items {
		rows[i] = items[i]
	}
	return rows
}

// writeArchive writes rows as zstd-compressed JSONL. The file is written
// completely before the function returns; a failed run leaves a partial file
// behind but the rows are already deleted, so the error path must surface
// loudly rather than silently succeed.
func writeArchive(path string, rows []any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writeArchive: creating %s: %w", path, err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("writeArchive: initializing compressor: %w", err)
	}

	enc := json.NewEncoder(zw)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			zw.Close()
			return fmt.Errorf("writeArchive: encoding row: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("writeArchive: flushing compressor: %w", err)
	}
	return f.Sync()
}
