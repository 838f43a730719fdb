package sync

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when a cycle is requested while another cycle
// holds the sync lock. The request is dropped, never queued.
var ErrSyncInProgress = errors.New("sync already in progress")

// TransportError wraps a network-level or HTTP-level failure talking to the
// remote service. Transport failures are never retried inline; the next
// scheduled tick starts a fresh cycle.
type TransportError struct {
	Op         string // "pull" or "push"
	StatusCode int    // 0 when the request never completed
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: remote returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplyError wraps a local store rejection of a remote changeset, such as a
// constraint violation or schema mismatch. The checkpoint is not advanced and
// the same window is re-pulled on the next tick.
type ApplyError struct {
	Err error
}

func (e *ApplyError) Error() string { return fmt.Sprintf("apply remote changes: %v", e.Err) }

func (e *ApplyError) Unwrap() error { return e.Err }

// PartialPushError reports a multi-batch push that failed partway through.
// Batches sent before the failure are durably applied by the remote service
// and are not rolled back; the next cycle recomputes a smaller changeset.
type PartialPushError struct {
	SentBatches  int
	TotalBatches int
	Err          error
}

func (e *PartialPushError) Error() string {
	return fmt.Sprintf("push failed after %d/%d batches: %v", e.SentBatches, e.TotalBatches, e.Err)
}

func (e *PartialPushError) Unwrap() error { return e.Err }
