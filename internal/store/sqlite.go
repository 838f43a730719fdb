// Package store implements the embedded SQLite database backing the finance
// tracker: the domain tables the UI reads, the change tracking that feeds the
// sync engine, and the persisted sync checkpoint.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed local database.
type SQLiteStore struct {
	db   *sql.DB
	path string

	mu      sync.Mutex
	columns map[string][]string // table -> column names, PRAGMA cache

	// versions read by the last ChangesSince call, keyed by table then id.
	// MarkSynced clears a row's needs-push flag only when its version is
	// still the one that was read, so a write landing mid-push survives
	// into the next cycle instead of being silently dropped.
	readVersions map[string]map[string]int64
}

// Open opens (creating if necessary) the database at dbPath, applies pragmas,
// and runs any pending schema migrations.
func Open(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &SQLiteStore{
		db:           db,
		path:         dbPath,
		columns:      make(map[string][]string),
		readVersions: make(map[string]map[string]int64),
	}
	if err := s.initSchemaVersion(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// tableColumns returns the table's column names, cached after first lookup.
// Returns ErrUnknownTable when the table does not exist locally.
func (s *SQLiteStore) tableColumns(ctx context.Context, table string) ([]string, error) {
	s.mu.Lock()
	cols, ok := s.columns[table]
	s.mu.Unlock()
	if ok {
		return cols, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	s.mu.Lock()
	s.columns[table] = cols
	s.mu.Unlock()
	return cols, nil
}

// wireColumns filters a table's columns down to the set that crosses the
// wire, dropping the underscore-prefixed sync bookkeeping columns.
func wireColumns(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if strings.HasPrefix(c, "_") {
			continue
		}
		out = append(out, c)
	}
	return out
}

// GenerateSnapshot writes a consistent copy of the database next to the live
// file using VACUUM INTO. The previous snapshot, if any, is replaced.
func (s *SQLiteStore) GenerateSnapshot(ctx context.Context) error {
	snapPath := s.snapshotPath()
	if err := os.Remove(snapPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", snapPath); err != nil {
		return fmt.Errorf("vacuum into snapshot: %w", err)
	}
	return nil
}

// GetSnapshotPath returns the path the snapshot is written to.
func (s *SQLiteStore) GetSnapshotPath(ctx context.Context) (string, error) {
	snapPath := s.snapshotPath()
	if _, err := os.Stat(snapPath); err != nil {
		return "", fmt.Errorf("snapshot not generated: %w", err)
	}
	return snapPath, nil
}

func (s *SQLiteStore) snapshotPath() string {
	return s.path + ".snapshot"
}
