package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/pressly/goose/v3"

	"github.com/walletbase/walletsync/internal/schema"
	"github.com/walletbase/walletsync/internal/sync"
	"github.com/walletbase/walletsync/migrations"
)

// RunMigrations applies all pending database migrations using goose and the
// embedded SQL files from the migrations package.
func RunMigrations(db *sql.DB) error {
	// Disable goose's default logging to avoid stdout noise
	goose.SetLogger(goose.NopLogger())

	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// SchemaChange records what one schema version added, in the vocabulary the
// remote pull endpoint understands: new tables and new columns on existing
// tables. The SQL in migrations/ is the source of truth; this registry is the
// wire-facing summary of it and must be extended together with every new
// migration file.
type SchemaChange struct {
	Version      int
	NewTables    []string
	AddedColumns map[string][]string
}

// schemaChanges lists every schema version shipped so far. Version 1 is the
// initial schema and is never reported as a migration.
var schemaChanges = []SchemaChange{
	{Version: 1},
	{
		Version:   2,
		NewTables: []string{schema.TableBudgets},
		AddedColumns: map[string][]string{
			schema.TableTransactions: {"note"},
		},
	},
}

// CurrentSchemaVersion is the version the local schema is at after all
// migrations have run.
const CurrentSchemaVersion = 2

// PendingMigration reports the schema changes the remote service has not yet
// been told about: everything added between the schema version at the last
// successful pull and the current one. Changes touching excluded tables never
// cross the wire.
//
// When the app skipped several versions between pulls, the descriptor
// aggregates all of them and reports the full span, which reduces to the
// single-step from = to-1 shape when exactly one version elapsed.
func (s *SQLiteStore) PendingMigration(ctx context.Context) (sync.MigrationDescriptor, error) {
	from, err := s.lastPulledSchemaVersion(ctx)
	if err != nil {
		return sync.MigrationDescriptor{}, err
	}

	desc := sync.MigrationDescriptor{
		FromVersion:  from,
		ToVersion:    CurrentSchemaVersion,
		NewTables:    []string{},
		AddedColumns: map[string][]string{},
	}
	if from >= CurrentSchemaVersion {
		return desc, nil
	}

	for _, change := range schemaChanges {
		if change.Version <= from || change.Version > CurrentSchemaVersion {
			continue
		}
		for _, table := range change.NewTables {
			if schema.IsExcluded(table) {
				continue
			}
			desc.NewTables = append(desc.NewTables, table)
		}
		for table, cols := range change.AddedColumns {
			if schema.IsExcluded(table) {
				continue
			}
			desc.AddedColumns[table] = append(desc.AddedColumns[table], cols...)
		}
	}
	sort.Strings(desc.NewTables)
	return desc, nil
}

// initSchemaVersion seeds the last-pulled schema version on first open. A
// fresh install has never pulled, so there is nothing to report as a
// migration; the first pull at checkpoint zero fetches everything anyway.
func (s *SQLiteStore) initSchemaVersion(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		metaSchemaVersion, fmt.Sprint(CurrentSchemaVersion))
	if err != nil {
		return fmt.Errorf("seed schema version: %w", err)
	}
	return nil
}
