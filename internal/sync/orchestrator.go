package sync

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// State is the orchestrator's observable position in a sync cycle.
type State string

const (
	StateIdle     State = "idle"
	StatePulling  State = "pulling"
	StateApplying State = "applying"
	StatePushing  State = "pushing"
	StateError    State = "error"
)

// Orchestrator sequences the pull and push stages of a cycle and serializes
// concurrent invocations. A cycle requested while another is running is
// dropped, not queued: the scheduler ticks often enough that a skipped
// cycle is picked up shortly after.
type Orchestrator struct {
	puller *Puller
	pusher *Pusher
	store  LocalStore

	mu    sync.Mutex // held for the duration of a cycle
	state atomic.Value

	lastError atomic.Value // string; "" when the last cycle succeeded
}

// NewOrchestrator wires the two stages together.
func NewOrchestrator(puller *Puller, pusher *Pusher, store LocalStore) *Orchestrator {
	o := &Orchestrator{puller: puller, pusher: pusher, store: store}
	o.state.Store(StateIdle)
	o.lastError.Store("")
	puller.OnApply = func() { o.state.Store(StateApplying) }
	return o
}

// State returns the current cycle state.
func (o *Orchestrator) State() State {
	return o.state.Load().(State)
}

// LastError returns the failure message of the most recent cycle, or the
// empty string if it succeeded.
func (o *Orchestrator) LastError() string {
	return o.lastError.Load().(string)
}

// Sync runs one full cycle: pull, apply, then push. Returns
// ErrSyncInProgress when another cycle holds the lock.
func (o *Orchestrator) Sync(ctx context.Context) error {
	return o.run(ctx, true)
}

// PushOnly runs a push-only cycle, skipping the pull and apply stages.
func (o *Orchestrator) PushOnly(ctx context.Context) error {
	return o.run(ctx, false)
}

func (o *Orchestrator) run(ctx context.Context, withPull bool) error {
	if !o.mu.TryLock() {
		return ErrSyncInProgress
	}
	defer o.mu.Unlock()

	session := ulid.Make().String()
	mode := "push_only"
	if withPull {
		mode = "full"
	}
	slog.Info("sync cycle started",
		"component", "sync",
		"action", "cycle_start",
		"session", session,
		"mode", mode,
	)

	if err := o.cycle(ctx, withPull); err != nil {
		o.state.Store(StateError)
		o.lastError.Store(err.Error())
		slog.Warn("sync cycle failed",
			"component", "sync",
			"action", "cycle_failed",
			"session", session,
			"mode", mode,
			"error", err,
		)
		// Error is transient: the orchestrator returns to Idle so the
		// next tick starts fresh. No retry happens within the cycle.
		o.state.Store(StateIdle)
		return err
	}

	o.lastError.Store("")
	o.state.Store(StateIdle)
	slog.Info("sync cycle completed",
		"component", "sync",
		"action", "cycle_complete",
		"session", session,
		"mode", mode,
	)
	return nil
}

func (o *Orchestrator) cycle(ctx context.Context, withPull bool) error {
	if withPull {
		o.state.Store(StatePulling)
		if err := o.puller.Pull(ctx); err != nil {
			return err
		}
	}

	o.state.Store(StatePushing)

	migration, err := o.store.PendingMigration(ctx)
	if err != nil {
		return &ApplyError{Err: err}
	}
	return o.pusher.Push(ctx, migration.ToVersion)
}
