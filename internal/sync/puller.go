package sync

import (
	"context"
	"log/slog"
	"time"
)

// Puller runs the pull stage of a sync cycle: fetch remote changes since the
// checkpoint, filter and reorder them, apply them to the local store, and
// only then advance the persisted checkpoint.
type Puller struct {
	remote      RemoteClient
	store       LocalStore
	checkpoints CheckpointStore
	notifier    Notifier

	// OnApply, when set, is called after the remote response arrives and
	// before the local apply begins. The orchestrator uses it to flip its
	// observable state from pulling to applying.
	OnApply func()
}

// NewPuller creates a pull stage. notifier may be nil.
func NewPuller(remote RemoteClient, store LocalStore, checkpoints CheckpointStore, notifier Notifier) *Puller {
	return &Puller{remote: remote, store: store, checkpoints: checkpoints, notifier: notifier}
}

// Pull executes one pull. On any failure the checkpoint is left untouched so
// the next cycle re-pulls the same window; the local apply is idempotent per
// record id, so repeating a window is safe.
func (p *Puller) Pull(ctx context.Context) error {
	start := time.Now()

	cp, err := p.checkpoints.Checkpoint(ctx)
	if err != nil {
		return &ApplyError{Err: err}
	}

	migration, err := p.store.PendingMigration(ctx)
	if err != nil {
		return &ApplyError{Err: err}
	}

	result, err := p.remote.Pull(ctx, cp, migration)
	if err != nil {
		return err
	}

	ordered := Reorder(result.Changes)

	slog.Debug("pull response received",
		"component", "sync",
		"action", "pull_received",
		"tables", len(ordered),
		"items", ordered.Count(),
		"timestamp", int64(result.Timestamp),
	)

	if p.OnApply != nil {
		p.OnApply()
	}
	if err := p.store.ApplyRemoteChanges(ctx, ordered); err != nil {
		return &ApplyError{Err: err}
	}

	// The checkpoint only moves once the apply has landed. A crash between
	// apply and persist re-pulls the same window, which converges.
	if err := p.checkpoints.SetCheckpoint(ctx, result.Timestamp); err != nil {
		return &ApplyError{Err: err}
	}

	for _, msg := range result.Messages {
		slog.Warn("server diagnostic",
			"component", "sync",
			"action", "pull_message",
			"message", msg,
		)
		if p.notifier != nil {
			p.notifier.Notify(msg)
		}
	}

	slog.Info("pull completed",
		"component", "sync",
		"action", "pull_complete",
		"items", ordered.Count(),
		"checkpoint", int64(result.Timestamp),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
