package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	syncengine "github.com/walletbase/walletsync/internal/sync"
)

const testToken = "test-token"

type fakeStore struct {
	checkpoint syncengine.Checkpoint
	pending    map[string]int
}

func (f *fakeStore) Checkpoint(context.Context) (syncengine.Checkpoint, error) {
	return f.checkpoint, nil
}

func (f *fakeStore) PendingCounts(context.Context) (map[string]int, error) {
	return f.pending, nil
}

type fakeLifecycle struct {
	running bool
	resumed int
	paused  int
}

func (f *fakeLifecycle) Resume(context.Context) { f.resumed++; f.running = true }
func (f *fakeLifecycle) Pause()                 { f.paused++; f.running = false }
func (f *fakeLifecycle) Running() bool          { return f.running }

// engineStore adapts fakeStore-ish behavior to the engine's LocalStore so a
// real orchestrator can back the handlers.
type engineStore struct {
	changes syncengine.ChangeSet
}

func (e *engineStore) ChangesSince(context.Context, syncengine.Checkpoint) (syncengine.ChangeSet, error) {
	return e.changes, nil
}

func (e *engineStore) ApplyRemoteChanges(context.Context, syncengine.OrderedChanges) error {
	return nil
}

func (e *engineStore) MarkSynced(context.Context, syncengine.ChangeSet) error { return nil }

func (e *engineStore) PendingMigration(context.Context) (syncengine.MigrationDescriptor, error) {
	return syncengine.MigrationDescriptor{}, nil
}

type engineCheckpoints struct{ cp syncengine.Checkpoint }

func (e *engineCheckpoints) Checkpoint(context.Context) (syncengine.Checkpoint, error) {
	return e.cp, nil
}

func (e *engineCheckpoints) SetCheckpoint(_ context.Context, cp syncengine.Checkpoint) error {
	e.cp = cp
	return nil
}

type engineRemote struct {
	pullErr error
	blockOn chan struct{}
}

func (e *engineRemote) Pull(ctx context.Context, cp syncengine.Checkpoint, _ syncengine.MigrationDescriptor) (*syncengine.PullResult, error) {
	if e.blockOn != nil {
		<-e.blockOn
	}
	if e.pullErr != nil {
		return nil, e.pullErr
	}
	return &syncengine.PullResult{Changes: syncengine.ChangeSet{}, Timestamp: cp + 1}, nil
}

func (e *engineRemote) Push(context.Context, syncengine.ChangeSet, syncengine.Checkpoint, int) error {
	return nil
}

func newTestHandler(remote syncengine.RemoteClient) (*Handler, *fakeLifecycle) {
	store := &engineStore{changes: syncengine.ChangeSet{}}
	cps := &engineCheckpoints{}
	puller := syncengine.NewPuller(remote, store, cps, nil)
	pusher := syncengine.NewPusher(remote, store, cps)
	orch := syncengine.NewOrchestrator(puller, pusher, store)
	lc := &fakeLifecycle{running: true}
	h := NewHandler(context.Background(), orch, lc,
		&fakeStore{checkpoint: 1700000000, pending: map[string]int{"accounts": 2}},
		testToken, "test")
	return h, lc
}

func doRequest(t *testing.T, h *Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)
	return rec
}

func TestHealth_NoAuthRequired(t *testing.T) {
	h, _ := newTestHandler(&engineRemote{})
	rec := doRequest(t, h, http.MethodGet, "/healthz", "", false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStatus_RequiresAuth(t *testing.T) {
	h, _ := newTestHandler(&engineRemote{})
	rec := doRequest(t, h, http.MethodGet, "/api/v1/sync/status", "", false)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content-type = %s", ct)
	}
}

func TestStatus_WrongTokenRejected(t *testing.T) {
	h, _ := newTestHandler(&engineRemote{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestStatus_ReportsEngineState(t *testing.T) {
	h, _ := newTestHandler(&engineRemote{})
	rec := doRequest(t, h, http.MethodGet, "/api/v1/sync/status", "", true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		State        string         `json:"state"`
		Checkpoint   int64          `json:"checkpoint"`
		Foregrounded bool           `json:"foregrounded"`
		Pending      map[string]int `json:"pending"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.State != "idle" {
		t.Errorf("state = %s", body.State)
	}
	if body.Checkpoint != 1700000000 {
		t.Errorf("checkpoint = %d", body.Checkpoint)
	}
	if !body.Foregrounded {
		t.Error("foregrounded = false")
	}
	if body.Pending["accounts"] != 2 {
		t.Errorf("pending = %v", body.Pending)
	}
}

func TestTrigger_FullCycle(t *testing.T) {
	h, _ := newTestHandler(&engineRemote{})
	rec := doRequest(t, h, http.MethodPost, "/api/v1/sync/trigger", `{"mode":"full"}`, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
}

func TestTrigger_EmptyBodyDefaultsToFull(t *testing.T) {
	h, _ := newTestHandler(&engineRemote{})
	rec := doRequest(t, h, http.MethodPost, "/api/v1/sync/trigger", "", true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
}

func TestTrigger_UnknownModeRejected(t *testing.T) {
	h, _ := newTestHandler(&engineRemote{})
	rec := doRequest(t, h, http.MethodPost, "/api/v1/sync/trigger", `{"mode":"pull"}`, true)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTrigger_ConflictWhileRunning(t *testing.T) {
	remote := &engineRemote{blockOn: make(chan struct{})}
	h, _ := newTestHandler(remote)

	started := make(chan struct{})
	done := make(chan *httptest.ResponseRecorder)
	go func() {
		close(started)
		done <- doRequest(t, h, http.MethodPost, "/api/v1/sync/trigger", `{"mode":"full"}`, true)
	}()
	<-started

	// Wait for the first cycle to hold the lock, then trigger again.
	var rec *httptest.ResponseRecorder
	for i := 0; i < 200; i++ {
		rec = doRequest(t, h, http.MethodPost, "/api/v1/sync/trigger", `{"mode":"full"}`, true)
		if rec.Code == http.StatusConflict {
			break
		}
	}
	close(remote.blockOn)
	<-done

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 while a cycle runs", rec.Code)
	}
}

func TestTrigger_TransportFailureIsBadGateway(t *testing.T) {
	h, _ := newTestHandler(&engineRemote{
		pullErr: &syncengine.TransportError{Op: "pull", StatusCode: http.StatusServiceUnavailable},
	})
	rec := doRequest(t, h, http.MethodPost, "/api/v1/sync/trigger", `{"mode":"full"}`, true)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestAppState_ForegroundResumes(t *testing.T) {
	h, lc := newTestHandler(&engineRemote{})
	lc.running = false

	rec := doRequest(t, h, http.MethodPost, "/api/v1/app/state", `{"state":"foreground"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if lc.resumed != 1 || !lc.running {
		t.Errorf("resumed=%d running=%v", lc.resumed, lc.running)
	}
}

func TestAppState_BackgroundPauses(t *testing.T) {
	h, lc := newTestHandler(&engineRemote{})

	rec := doRequest(t, h, http.MethodPost, "/api/v1/app/state", `{"state":"background"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if lc.paused != 1 || lc.running {
		t.Errorf("paused=%d running=%v", lc.paused, lc.running)
	}
}

func TestAppState_UnknownStateRejected(t *testing.T) {
	h, _ := newTestHandler(&engineRemote{})
	rec := doRequest(t, h, http.MethodPost, "/api/v1/app/state", `{"state":"hibernate"}`, true)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
