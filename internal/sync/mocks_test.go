package sync

import (
	"context"
	"fmt"
	"sync"
)

// mockStore implements LocalStore with an in-memory table of rows keyed by
// id, so idempotency of repeated applies is observable.
type mockStore struct {
	mu sync.Mutex

	rows    map[string]map[string]Record // table -> id -> record
	changes ChangeSet                    // returned by ChangesSince
	synced  []ChangeSet                  // MarkSynced invocations

	applyCalls int
	applyErr   error
	changesErr error
	markErr    error

	migration MigrationDescriptor
}

func newMockStore() *mockStore {
	return &mockStore{rows: make(map[string]map[string]Record)}
}

func (m *mockStore) ChangesSince(ctx context.Context, _ Checkpoint) (ChangeSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.changesErr != nil {
		return nil, m.changesErr
	}
	return m.changes, nil
}

func (m *mockStore) ApplyRemoteChanges(ctx context.Context, changes OrderedChanges) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.applyErr != nil {
		return m.applyErr
	}
	for _, entry := range changes {
		table := m.rows[entry.Table]
		if table == nil {
			table = make(map[string]Record)
			m.rows[entry.Table] = table
		}
		for _, rec := range append(append([]Record{}, entry.Changes.Created...), entry.Changes.Updated...) {
			id, _ := rec.ID()
			table[id] = rec
		}
		for _, id := range entry.Changes.Deleted {
			delete(table, id)
		}
	}
	return nil
}

func (m *mockStore) MarkSynced(ctx context.Context, cs ChangeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.synced = append(m.synced, cs)
	return nil
}

func (m *mockStore) PendingMigration(ctx context.Context) (MigrationDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.migration, nil
}

// mockCheckpoints is an in-memory checkpoint cell.
type mockCheckpoints struct {
	mu sync.Mutex
	cp Checkpoint
}

func (m *mockCheckpoints) Checkpoint(ctx context.Context) (Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cp, nil
}

func (m *mockCheckpoints) SetCheckpoint(ctx context.Context, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp = cp
	return nil
}

// pushCall records one Push invocation.
type pushCall struct {
	changes       ChangeSet
	checkpoint    Checkpoint
	schemaVersion int
}

// mockRemote implements RemoteClient.
type mockRemote struct {
	mu sync.Mutex

	pullResults []PullResult // consumed in order
	pullErr     error
	pullCalls   int
	pulledAt    []Checkpoint
	migrations  []MigrationDescriptor

	pushCalls []pushCall
	pushErr   error
	failAfter int // fail pushes once len(pushCalls) reaches this, if > 0
}

func (m *mockRemote) Pull(ctx context.Context, cp Checkpoint, migration MigrationDescriptor) (*PullResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulledAt = append(m.pulledAt, cp)
	m.migrations = append(m.migrations, migration)
	if m.pullErr != nil {
		return nil, m.pullErr
	}
	result := PullResult{Changes: ChangeSet{}}
	if m.pullCalls < len(m.pullResults) {
		result = m.pullResults[m.pullCalls]
	}
	m.pullCalls++
	return &result, nil
}

func (m *mockRemote) Push(ctx context.Context, changes ChangeSet, cp Checkpoint, schemaVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter > 0 && len(m.pushCalls) >= m.failAfter {
		return m.pushErr
	}
	if m.failAfter == 0 && m.pushErr != nil {
		return m.pushErr
	}
	m.pushCalls = append(m.pushCalls, pushCall{changes: changes, checkpoint: cp, schemaVersion: schemaVersion})
	return nil
}

// records builds n records with sequential ids under the given prefix.
func records(prefix string, n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = Record{"id": fmt.Sprintf("%s-%03d", prefix, i), "amount": float64(i)}
	}
	return out
}
