package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/walletbase/walletsync/internal/sync"
)

// ApplyRemoteChanges applies a pulled, table-ordered changeset inside one
// transaction. Upserts are keyed on id, so re-applying the same window after
// a crash converges to the same state. UI writes can contend for the write
// lock at any moment; SQLITE_BUSY is retried with a short fibonacci backoff
// since the contention is local and brief, unlike network failures which are
// never retried inline.
func (s *SQLiteStore) ApplyRemoteChanges(ctx context.Context, changes sync.OrderedChanges) error {
	if changes.Count() == 0 {
		return nil
	}

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.applyTx(ctx, changes)
		if err != nil && isBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *SQLiteStore) applyTx(ctx context.Context, changes sync.OrderedChanges) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, entry := range changes {
		if err := s.applyTable(ctx, tx, entry.Table, entry.Changes); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remote changes: %w", err)
	}
	return nil
}

func (s *SQLiteStore) applyTable(ctx context.Context, tx *sql.Tx, table string, tc sync.TableChanges) error {
	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		if errors.Is(err, ErrUnknownTable) {
			// The server schema can run ahead of a client that has not
			// migrated yet; its rows are re-pulled after the migration.
			slog.Warn("skipping remote changes for unknown table",
				"component", "store",
				"action", "apply_skip_table",
				"table", table,
			)
			return nil
		}
		return err
	}
	wire := wireColumns(cols)

	for _, record := range append(append([]sync.Record{}, tc.Created...), tc.Updated...) {
		if err := s.upsertRemote(ctx, tx, table, wire, record); err != nil {
			return err
		}
	}

	for _, id := range tc.Deleted {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, table), id); err != nil {
			return fmt.Errorf("apply remote delete on %s: %w", table, err)
		}
		// A row deleted on both sides needs no push of its own.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM pending_deletes WHERE table_name = ? AND record_id = ?`, table, id); err != nil {
			return fmt.Errorf("clear pending delete on %s: %w", table, err)
		}
	}
	return nil
}

// upsertRemote writes one remote row. Remote rows land in synced state: the
// conflict policy is last-writer-wins with the server as the arbiter, so a
// remote row overwrites local content including any pending local edit.
func (s *SQLiteStore) upsertRemote(ctx context.Context, tx *sql.Tx, table string, wire []string, record sync.Record) error {
	if _, ok := record.ID(); !ok {
		return fmt.Errorf("%w: remote row in table %s", ErrMissingID, table)
	}

	names, args := recordArgs(record, wire)
	sets := make([]string, 0, len(names)+2)
	for _, col := range names {
		if col == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%q = excluded.%q", col, col))
	}
	sets = append(sets, "_status = 'synced'", "_version = _version + 1")

	query := fmt.Sprintf(
		`INSERT INTO %q (%s, _status, _version) VALUES (%s, 'synced', 1)
		 ON CONFLICT(id) DO UPDATE SET %s`,
		table, quoteColumns(names), placeholders(len(names)), strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("apply remote row on %s: %w", table, err)
	}
	return nil
}

// isBusy reports whether err is SQLite write-lock contention.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
