// Package api implements the localhost control surface of the sync daemon.
// The UI layer calls it to inspect sync status, trigger cycles manually, and
// report application foreground/background transitions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	syncengine "github.com/walletbase/walletsync/internal/sync"
)

// Store is the subset of the local store the control API reads.
type Store interface {
	Checkpoint(ctx context.Context) (syncengine.Checkpoint, error)
	PendingCounts(ctx context.Context) (map[string]int, error)
}

// Lifecycle is the scheduler surface driven by app state notifications.
type Lifecycle interface {
	Resume(ctx context.Context)
	Pause()
	Running() bool
}

// Handler holds dependencies for all control endpoints.
type Handler struct {
	orchestrator *syncengine.Orchestrator
	scheduler    Lifecycle
	store        Store
	token        string
	version      string

	// baseCtx outlives individual requests; lifecycle resumes must not be
	// tied to the HTTP request that delivered them.
	baseCtx context.Context
}

// NewHandler creates a Handler with all dependencies.
func NewHandler(baseCtx context.Context, orchestrator *syncengine.Orchestrator, scheduler Lifecycle, store Store, token, version string) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		scheduler:    scheduler,
		store:        store,
		token:        token,
		version:      version,
		baseCtx:      baseCtx,
	}
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// statusResponse is the wire shape of GET /api/v1/sync/status.
type statusResponse struct {
	State        string         `json:"state"`
	LastError    string         `json:"last_error,omitempty"`
	Checkpoint   int64          `json:"checkpoint"`
	Foregrounded bool           `json:"foregrounded"`
	Pending      map[string]int `json:"pending"`
}

// Status handles GET /api/v1/sync/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cp, err := h.store.Checkpoint(ctx)
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Failed to read checkpoint")
		return
	}
	pending, err := h.store.PendingCounts(ctx)
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Failed to count pending changes")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		State:        string(h.orchestrator.State()),
		LastError:    h.orchestrator.LastError(),
		Checkpoint:   int64(cp),
		Foregrounded: h.scheduler.Running(),
		Pending:      pending,
	})
}

// triggerRequest is the wire shape of POST /api/v1/sync/trigger.
type triggerRequest struct {
	Mode string `json:"mode"` // "full" (default) or "push"
}

// Trigger handles POST /api/v1/sync/trigger. The cycle runs inline; the
// response reports its outcome.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
			return
		}
	}

	var err error
	switch req.Mode {
	case "", "full":
		err = h.orchestrator.Sync(r.Context())
	case "push":
		err = h.orchestrator.PushOnly(r.Context())
	default:
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Unknown mode %q", req.Mode))
		return
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
	case errors.Is(err, syncengine.ErrSyncInProgress):
		WriteProblem(w, r, http.StatusConflict, "A sync cycle is already running")
	default:
		WriteProblem(w, r, http.StatusBadGateway, err.Error())
	}
}

// appStateRequest is the wire shape of POST /api/v1/app/state.
type appStateRequest struct {
	State string `json:"state"` // "foreground" or "background"
}

// AppState handles POST /api/v1/app/state: foreground starts the scheduler
// timers (with an immediate tick), background stops them.
func (h *Handler) AppState(w http.ResponseWriter, r *http.Request) {
	var req appStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return
	}

	switch req.State {
	case "foreground":
		h.scheduler.Resume(h.baseCtx)
	case "background":
		h.scheduler.Pause()
	default:
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Unknown app state %q", req.State))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
