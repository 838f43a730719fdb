package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Scheduler drives the orchestrator with two independent timers while the
// application is foregrounded: a full pull+push cycle on a slow interval and
// a more frequent push-only cycle. Both timers stop when the app backgrounds
// and restart, with an immediate tick, on return to foreground.
//
// There is no backoff: a failed cycle simply waits for its next tick. A tick
// that lands while a cycle is running is skipped, never queued.
type Scheduler struct {
	orchestrator *Orchestrator
	fullInterval time.Duration
	pushInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc // non-nil while foregrounded
	wg     sync.WaitGroup
}

// NewScheduler creates a stopped scheduler. Call Resume to start ticking.
func NewScheduler(orchestrator *Orchestrator, fullInterval, pushInterval time.Duration) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		fullInterval: fullInterval,
		pushInterval: pushInterval,
	}
}

// Resume starts both timers, firing an immediate full-sync tick rather than
// waiting out the first interval. Calling Resume while already running is a
// no-op.
func (s *Scheduler) Resume(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	slog.Info("sync scheduler resumed",
		"component", "scheduler",
		"action", "resumed",
		"full_interval", s.fullInterval.String(),
		"push_interval", s.pushInterval.String(),
	)

	s.wg.Add(2)
	go s.loop(runCtx, "full", s.fullInterval, true, s.orchestrator.Sync)
	go s.loop(runCtx, "push_only", s.pushInterval, false, s.orchestrator.PushOnly)
}

// Pause cancels both timers. In-flight network calls are not interrupted;
// the scheduler merely stops issuing further ticks. Calling Pause while
// already stopped is a no-op.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	slog.Info("sync scheduler paused", "component", "scheduler", "action", "paused")
}

// Running reports whether the timers are active (application foregrounded).
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, immediate bool, tick func(context.Context) error) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if immediate {
		s.fire(ctx, name, tick)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, name, tick)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, name string, tick func(context.Context) error) {
	err := tick(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress):
		slog.Debug("tick skipped, cycle in progress",
			"component", "scheduler",
			"action", "tick_skipped",
			"timer", name,
		)
	default:
		if ctx.Err() != nil {
			return
		}
		// No inline retry; the failure waits for the next tick.
		slog.Warn("scheduled cycle failed",
			"component", "scheduler",
			"action", "tick_failed",
			"timer", name,
			"error", err,
		)
	}
}
