// Package worker contains the daemon's background loops.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/walletbase/walletsync/internal/snapshot"
)

// SnapshotCapableStore represents a store that can produce a consistent
// snapshot of the database file.
type SnapshotCapableStore interface {
	GenerateSnapshot(ctx context.Context) error
	GetSnapshotPath(ctx context.Context) (string, error)
}

// BackupCoordinator periodically snapshots the local database and uploads
// the copy off-device. Backup is best-effort: the local database stays valid
// whether or not an upload succeeds.
type BackupCoordinator struct {
	store    SnapshotCapableStore
	uploader snapshot.Uploader
	deviceID string
	interval time.Duration
}

// NewBackupCoordinator creates a coordinator. The uploader decides whether
// anything leaves the device; a NoopUploader keeps backups local-only.
func NewBackupCoordinator(store SnapshotCapableStore, uploader snapshot.Uploader, deviceID string, interval time.Duration) *BackupCoordinator {
	return &BackupCoordinator{
		store:    store,
		uploader: uploader,
		deviceID: deviceID,
		interval: interval,
	}
}

// Run starts the coordinator loop.
func (c *BackupCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "backup-coordinator",
		"action", "worker_started",
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Take a backup immediately on start
	c.backup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "backup-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.backup(ctx)
		}
	}
}

func (c *BackupCoordinator) backup(ctx context.Context) {
	start := time.Now()

	if err := c.store.GenerateSnapshot(ctx); err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown, don't log as error
		}
		slog.Warn("snapshot generation failed",
			"component", "worker",
			"worker", "backup-coordinator",
			"action", "backup_failed",
			"error", err,
		)
		return
	}

	path, err := c.store.GetSnapshotPath(ctx)
	if err != nil {
		slog.Warn("failed to locate snapshot for upload",
			"component", "worker",
			"worker", "backup-coordinator",
			"action", "backup_failed",
			"error", err,
		)
		return
	}

	if err := c.uploader.Upload(ctx, c.deviceID, path); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("snapshot upload failed",
			"component", "worker",
			"worker", "backup-coordinator",
			"action", "backup_upload_failed",
			"error", err,
		)
		return
	}

	slog.Info("backup cycle completed",
		"component", "worker",
		"worker", "backup-coordinator",
		"action", "backup_complete",
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
