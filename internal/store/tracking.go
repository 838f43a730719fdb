package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/walletbase/walletsync/internal/schema"
	"github.com/walletbase/walletsync/internal/sync"
	"github.com/walletbase/walletsync/internal/validation"
)

// Row lifecycle states stored in the _status column of synchronized tables.
const (
	statusCreated = "created"
	statusUpdated = "updated"
	statusSynced  = "synced"
)

// ChangesSince returns all local mutations not yet durably pushed. The
// checkpoint parameter names the sync window but the needs-push state itself
// lives in the rows: a row keeps its created/updated status and a delete
// keeps its pending_deletes entry until MarkSynced clears them.
func (s *SQLiteStore) ChangesSince(ctx context.Context, _ sync.Checkpoint) (sync.ChangeSet, error) {
	cs := make(sync.ChangeSet)
	read := make(map[string]map[string]int64)

	for _, table := range schema.DependencyOrder() {
		tc, versions, err := s.tableChanges(ctx, table)
		if err != nil {
			return nil, err
		}
		if !tc.IsEmpty() {
			cs[table] = tc
		}
		if len(versions) > 0 {
			read[table] = versions
		}
	}

	s.mu.Lock()
	s.readVersions = read
	s.mu.Unlock()
	return cs, nil
}

func (s *SQLiteStore) tableChanges(ctx context.Context, table string) (sync.TableChanges, map[string]int64, error) {
	var tc sync.TableChanges

	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		return tc, nil, err
	}
	wire := wireColumns(cols)

	query := fmt.Sprintf(`SELECT %s, _status, _version FROM %q WHERE _status != ?`,
		quoteColumns(wire), table)
	rows, err := s.db.QueryContext(ctx, query, statusSynced)
	if err != nil {
		return tc, nil, fmt.Errorf("query pending rows of %s: %w", table, err)
	}
	defer rows.Close()

	versions := make(map[string]int64)
	for rows.Next() {
		values := make([]any, len(wire)+2)
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return tc, nil, fmt.Errorf("scan pending row of %s: %w", table, err)
		}

		record := make(sync.Record, len(wire))
		for i, col := range wire {
			record[col] = normalizeValue(values[i])
		}
		status, _ := values[len(wire)].(string)
		version, _ := values[len(wire)+1].(int64)

		id, ok := record.ID()
		if !ok {
			return tc, nil, fmt.Errorf("%w: table %s", ErrMissingID, table)
		}
		versions[id] = version

		switch status {
		case statusCreated:
			tc.Created = append(tc.Created, record)
		case statusUpdated:
			tc.Updated = append(tc.Updated, record)
		}
	}
	if err := rows.Err(); err != nil {
		return tc, nil, err
	}

	deleted, err := s.pendingDeletes(ctx, table)
	if err != nil {
		return tc, nil, err
	}
	tc.Deleted = deleted
	return tc, versions, nil
}

func (s *SQLiteStore) pendingDeletes(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id FROM pending_deletes WHERE table_name = ? ORDER BY deleted_at, record_id`, table)
	if err != nil {
		return nil, fmt.Errorf("query pending deletes of %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending delete of %s: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkSynced records that the remote service durably accepted the given
// changes. A row is only flipped to synced when its version still matches the
// one read by the last ChangesSince; a local write that landed mid-push keeps
// its pending status and rides the next cycle.
func (s *SQLiteStore) MarkSynced(ctx context.Context, cs sync.ChangeSet) error {
	s.mu.Lock()
	read := s.readVersions
	s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for table, tc := range cs {
		versions := read[table]
		for _, rec := range append(append([]sync.Record{}, tc.Created...), tc.Updated...) {
			id, ok := rec.ID()
			if !ok {
				continue
			}
			version, tracked := versions[id]
			if !tracked {
				continue
			}
			_, err := tx.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %q SET _status = ? WHERE id = ? AND _version = ?`, table),
				statusSynced, id, version)
			if err != nil {
				return fmt.Errorf("mark %s row synced: %w", table, err)
			}
		}
		for _, id := range tc.Deleted {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM pending_deletes WHERE table_name = ? AND record_id = ?`, table, id)
			if err != nil {
				return fmt.Errorf("clear pending delete of %s: %w", table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark synced: %w", err)
	}
	return nil
}

// CreateRecord inserts a locally authored row in needs-push state. When the
// record has no id, a ULID is assigned and the stored record returned.
func (s *SQLiteStore) CreateRecord(ctx context.Context, table string, record sync.Record) (sync.Record, error) {
	if schema.IsExcluded(table) {
		return nil, fmt.Errorf("%s is not a synchronized table", table)
	}
	if err := validation.ValidateRecord(record); err != nil {
		return nil, err
	}
	if _, ok := record.ID(); !ok {
		record = cloneRecord(record)
		record["id"] = ulid.Make().String()
	}

	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	names, args := recordArgs(record, wireColumns(cols))
	query := fmt.Sprintf(`INSERT INTO %q (%s, _status, _version) VALUES (%s, ?, 1)`,
		table, quoteColumns(names), placeholders(len(names)))
	if _, err := s.db.ExecContext(ctx, query, append(args, statusCreated)...); err != nil {
		return nil, fmt.Errorf("create %s row: %w", table, err)
	}
	return record, nil
}

// UpdateRecord overwrites a row's wire columns and marks it needing a push.
// A row still in created state stays created: the remote has never seen it.
func (s *SQLiteStore) UpdateRecord(ctx context.Context, table string, record sync.Record) error {
	id, ok := record.ID()
	if !ok {
		return ErrMissingID
	}
	if err := validation.ValidateRecord(record); err != nil {
		return err
	}

	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		return err
	}
	names, args := recordArgs(record, wireColumns(cols))

	sets := make([]string, 0, len(names))
	for _, col := range names {
		if col == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%q = ?", col))
	}
	setArgs := make([]any, 0, len(args))
	for i, col := range names {
		if col == "id" {
			continue
		}
		setArgs = append(setArgs, args[i])
	}

	query := fmt.Sprintf(
		`UPDATE %q SET %s, _status = CASE _status WHEN ? THEN ? ELSE ? END, _version = _version + 1 WHERE id = ?`,
		table, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query,
		append(setArgs, statusCreated, statusCreated, statusUpdated, id)...)
	if err != nil {
		return fmt.Errorf("update %s row: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRecord removes a row locally and queues the deletion for push. A row
// the remote never saw (still in created state) just disappears; there is
// nothing to tell the server about.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, table, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT _status FROM %q WHERE id = ?`, table), id).Scan(&status)
	if err != nil {
		return fmt.Errorf("load %s row status: %w", table, err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, table), id); err != nil {
		return fmt.Errorf("delete %s row: %w", table, err)
	}

	if status != statusCreated {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pending_deletes (table_name, record_id, deleted_at) VALUES (?, ?, ?)
			 ON CONFLICT(table_name, record_id) DO NOTHING`,
			table, id, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("queue pending delete: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// PendingCounts returns, per table, how many local changes await a push.
func (s *SQLiteStore) PendingCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range schema.DependencyOrder() {
		var n int
		err := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %q WHERE _status != ?`, table), statusSynced).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("count pending rows of %s: %w", table, err)
		}
		var d int
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM pending_deletes WHERE table_name = ?`, table).Scan(&d)
		if err != nil {
			return nil, fmt.Errorf("count pending deletes of %s: %w", table, err)
		}
		if n+d > 0 {
			counts[table] = n + d
		}
	}
	return counts, nil
}

func cloneRecord(r sync.Record) sync.Record {
	out := make(sync.Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// recordArgs intersects a record's keys with the table's wire columns,
// returning matched column names and values in column order. Keys the local
// schema does not know are dropped; schema evolution may hand the client
// columns it has not migrated to yet.
func recordArgs(record sync.Record, cols []string) ([]string, []any) {
	names := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		v, ok := record[col]
		if !ok {
			continue
		}
		names = append(names, col)
		args = append(args, v)
	}
	return names, args
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// normalizeValue maps driver scan values onto the wire's scalar vocabulary.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return v
	}
}
