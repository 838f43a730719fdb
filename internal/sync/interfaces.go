package sync

import "context"

// LocalStore is the embedded database's change-tracking surface consumed by
// the engine. The store tracks its own needs-push state: a row reported by
// ChangesSince keeps being reported until MarkSynced is called for it, and a
// write landing mid-push simply shows up in the next cycle's changeset.
type LocalStore interface {
	// ChangesSince returns all local mutations not yet durably pushed.
	ChangesSince(ctx context.Context, cp Checkpoint) (ChangeSet, error)

	// ApplyRemoteChanges applies a pulled, table-ordered changeset. The
	// apply is idempotent per record id so a re-pull of the same window
	// after a crash converges to the same state.
	ApplyRemoteChanges(ctx context.Context, changes OrderedChanges) error

	// MarkSynced records that the given rows were durably accepted by the
	// remote service and should drop out of future ChangesSince results.
	MarkSynced(ctx context.Context, changes ChangeSet) error

	// PendingMigration reports schema changes made locally since the last
	// pulled schema version. A zero descriptor means no migration occurred.
	PendingMigration(ctx context.Context) (MigrationDescriptor, error)
}

// CheckpointStore owns the persisted pull checkpoint. It is a separate,
// injected state cell so tests can fake it and so the orchestrator never
// touches a module-level variable.
type CheckpointStore interface {
	Checkpoint(ctx context.Context) (Checkpoint, error)
	SetCheckpoint(ctx context.Context, cp Checkpoint) error
}

// RemoteClient is the pre-authenticated transport to the sync service.
type RemoteClient interface {
	// Pull fetches all remote changes newer than cp.
	Pull(ctx context.Context, cp Checkpoint, migration MigrationDescriptor) (*PullResult, error)

	// Push ships one batch of local changes. The checkpoint is the value
	// captured before the push cycle began, used by the server only for
	// conflict bookkeeping.
	Push(ctx context.Context, changes ChangeSet, cp Checkpoint, schemaVersion int) error
}

// Notifier surfaces server diagnostics embedded in a successful pull.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(message string)

// Notify calls f(message).
func (f NotifierFunc) Notify(message string) { f(message) }
