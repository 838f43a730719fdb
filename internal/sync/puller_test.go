package sync

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestPuller_AdvancesCheckpointAfterApply(t *testing.T) {
	store := newMockStore()
	cps := &mockCheckpoints{cp: 100}
	remote := &mockRemote{pullResults: []PullResult{
		{Changes: ChangeSet{"accounts": {Created: records("acc", 2)}}, Timestamp: 250},
	}}

	p := NewPuller(remote, store, cps, nil)
	if err := p.Pull(context.Background()); err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	if cps.cp != 250 {
		t.Errorf("checkpoint = %d, want 250", cps.cp)
	}
	if len(remote.pulledAt) != 1 || remote.pulledAt[0] != 100 {
		t.Errorf("pull called with checkpoint %v, want [100]", remote.pulledAt)
	}
	if len(store.rows["accounts"]) != 2 {
		t.Errorf("applied %d account rows, want 2", len(store.rows["accounts"]))
	}
}

func TestPuller_CheckpointMonotonicAcrossCycles(t *testing.T) {
	store := newMockStore()
	cps := &mockCheckpoints{}
	remote := &mockRemote{pullResults: []PullResult{
		{Timestamp: 10}, {Timestamp: 20}, {Timestamp: 30},
	}}

	p := NewPuller(remote, store, cps, nil)
	for i := 0; i < 3; i++ {
		if err := p.Pull(context.Background()); err != nil {
			t.Fatalf("pull %d failed: %v", i, err)
		}
	}

	if cps.cp != 30 {
		t.Errorf("checkpoint = %d, want timestamp of last pull (30)", cps.cp)
	}
	want := []Checkpoint{0, 10, 20}
	if !reflect.DeepEqual(remote.pulledAt, want) {
		t.Errorf("pull checkpoints = %v, want %v", remote.pulledAt, want)
	}
}

func TestPuller_TransportFailureLeavesCheckpoint(t *testing.T) {
	store := newMockStore()
	cps := &mockCheckpoints{cp: 100}
	remote := &mockRemote{pullErr: &TransportError{Op: "pull", StatusCode: 503}}

	p := NewPuller(remote, store, cps, nil)
	err := p.Pull(context.Background())

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if cps.cp != 100 {
		t.Errorf("checkpoint moved to %d on failed pull", cps.cp)
	}
	if store.applyCalls != 0 {
		t.Error("apply must not run when the pull failed")
	}
}

func TestPuller_ApplyFailureLeavesCheckpoint(t *testing.T) {
	store := newMockStore()
	store.applyErr = errors.New("FOREIGN KEY constraint failed")
	cps := &mockCheckpoints{cp: 100}
	remote := &mockRemote{pullResults: []PullResult{
		{Changes: ChangeSet{"accounts": {Created: records("acc", 1)}}, Timestamp: 200},
	}}

	p := NewPuller(remote, store, cps, nil)
	err := p.Pull(context.Background())

	var ae *ApplyError
	if !errors.As(err, &ae) {
		t.Fatalf("expected ApplyError, got %v", err)
	}
	if cps.cp != 100 {
		t.Errorf("checkpoint moved to %d after failed apply", cps.cp)
	}
}

func TestPuller_IdempotentReapply(t *testing.T) {
	// Simulates a crash after apply but before the checkpoint persisted:
	// the same window is pulled and applied again and the store converges
	// to the same observable state.
	result := PullResult{
		Changes: ChangeSet{
			"accounts":     {Created: records("acc", 3), Deleted: []string{"acc-gone"}},
			"transactions": {Updated: records("txn", 2)},
		},
		Timestamp: 500,
	}
	store := newMockStore()
	cps := &mockCheckpoints{}
	remote := &mockRemote{pullResults: []PullResult{result, result}}

	p := NewPuller(remote, store, cps, nil)
	if err := p.Pull(context.Background()); err != nil {
		t.Fatalf("first pull: %v", err)
	}
	once := snapshotRows(store)

	if err := p.Pull(context.Background()); err != nil {
		t.Fatalf("second pull: %v", err)
	}
	twice := snapshotRows(store)

	if !reflect.DeepEqual(once, twice) {
		t.Error("re-applying the same pull response changed observable state")
	}
}

func TestPuller_ExcludedTablesNeverApplied(t *testing.T) {
	store := newMockStore()
	cps := &mockCheckpoints{}
	remote := &mockRemote{pullResults: []PullResult{
		{Changes: ChangeSet{
			"categories": {Created: records("cat", 4)},
			"accounts":   {Created: records("acc", 1)},
		}, Timestamp: 50},
	}}

	p := NewPuller(remote, store, cps, nil)
	if err := p.Pull(context.Background()); err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	if _, ok := store.rows["categories"]; ok {
		t.Error("excluded table reached the local store")
	}
}

func TestPuller_SurfacesServerMessages(t *testing.T) {
	store := newMockStore()
	cps := &mockCheckpoints{}
	remote := &mockRemote{pullResults: []PullResult{
		{Timestamp: 75, Messages: []string{"your app version is outdated"}},
	}}

	var notified []string
	p := NewPuller(remote, store, cps, NotifierFunc(func(msg string) {
		notified = append(notified, msg)
	}))
	if err := p.Pull(context.Background()); err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	if len(notified) != 1 || notified[0] != "your app version is outdated" {
		t.Errorf("notified = %v", notified)
	}
	if cps.cp != 75 {
		t.Error("diagnostics must not block checkpoint advancement")
	}
}

func TestPuller_SendsPendingMigration(t *testing.T) {
	store := newMockStore()
	store.migration = MigrationDescriptor{
		FromVersion:  1,
		ToVersion:    2,
		NewTables:    []string{"budgets"},
		AddedColumns: map[string][]string{"transactions": {"note"}},
	}
	cps := &mockCheckpoints{}
	remote := &mockRemote{pullResults: []PullResult{{Timestamp: 5}}}

	p := NewPuller(remote, store, cps, nil)
	if err := p.Pull(context.Background()); err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	if len(remote.migrations) != 1 || !reflect.DeepEqual(remote.migrations[0], store.migration) {
		t.Errorf("migration descriptor not forwarded: %+v", remote.migrations)
	}
}

func snapshotRows(m *mockStore) map[string]map[string]Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]map[string]Record, len(m.rows))
	for table, rows := range m.rows {
		copied := make(map[string]Record, len(rows))
		for id, rec := range rows {
			copied[id] = rec
		}
		out[table] = copied
	}
	return out
}
