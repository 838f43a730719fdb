package sync

import (
	"context"
	"log/slog"
	"time"
)

// Pusher runs the push stage of a sync cycle: collect local changes since the
// checkpoint, filter and order them, and ship them to the remote service in
// bounded batches.
type Pusher struct {
	remote      RemoteClient
	store       LocalStore
	checkpoints CheckpointStore
	threshold   int
}

// NewPusher creates a push stage using the default batch threshold.
func NewPusher(remote RemoteClient, store LocalStore, checkpoints CheckpointStore) *Pusher {
	return &Pusher{remote: remote, store: store, checkpoints: checkpoints, threshold: BatchThreshold}
}

// Push executes one push cycle. Batches go out strictly sequentially, each
// carrying the checkpoint captured before the cycle began. On a batch
// failure, no further batches are sent; batches already accepted are durable
// on the remote side, and the store has already marked their rows synced, so
// the next cycle recomputes a smaller changeset.
func (p *Pusher) Push(ctx context.Context, schemaVersion int) error {
	start := time.Now()

	cp, err := p.checkpoints.Checkpoint(ctx)
	if err != nil {
		return &ApplyError{Err: err}
	}

	cs, err := p.store.ChangesSince(ctx, cp)
	if err != nil {
		return &ApplyError{Err: err}
	}

	ordered := Reorder(cs)
	total := ordered.Count()
	if total == 0 {
		slog.Debug("nothing to push", "component", "sync", "action", "push_skip")
		return nil
	}

	if total <= p.threshold {
		// Single-request passthrough: the whole filtered changeset, every
		// table normalized to carry all three arrays.
		normalized := ordered.ChangeSet()
		if err := p.remote.Push(ctx, normalized, cp, schemaVersion); err != nil {
			return err
		}
		if err := p.store.MarkSynced(ctx, normalized); err != nil {
			return &ApplyError{Err: err}
		}
		slog.Info("push completed",
			"component", "sync",
			"action", "push_complete",
			"items", total,
			"batches", 1,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	batches := SplitBatches(ordered, p.threshold)
	for i, batch := range batches {
		payload := batch.ChangeSet()
		if err := p.remote.Push(ctx, payload, cp, schemaVersion); err != nil {
			slog.Warn("push aborted mid-sequence",
				"component", "sync",
				"action", "push_partial",
				"sent", i,
				"total", len(batches),
				"error", err,
			)
			return &PartialPushError{SentBatches: i, TotalBatches: len(batches), Err: err}
		}
		// The remote has durably applied this batch; drop its rows from
		// the needs-push state before sending the next one.
		if err := p.store.MarkSynced(ctx, payload); err != nil {
			return &PartialPushError{SentBatches: i + 1, TotalBatches: len(batches), Err: err}
		}
	}

	slog.Info("push completed",
		"component", "sync",
		"action", "push_complete",
		"items", total,
		"batches", len(batches),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
