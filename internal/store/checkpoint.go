package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/oklog/ulid/v2"

	"github.com/walletbase/walletsync/internal/sync"
)

// sync_meta keys.
const (
	metaLastPulledAt  = "last_pulled_at"
	metaSchemaVersion = "last_pulled_schema_version"
	metaDeviceID      = "device_id"
)

// Checkpoint returns the persisted pull checkpoint, zero if the client has
// never synced.
func (s *SQLiteStore) Checkpoint(ctx context.Context) (sync.Checkpoint, error) {
	value, err := s.getMeta(ctx, metaLastPulledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse checkpoint %q: %w", value, err)
	}
	return sync.Checkpoint(ts), nil
}

// SetCheckpoint persists the checkpoint after a successful pull. The
// last-pulled schema version advances in the same transaction: once the
// server has seen the migration descriptor for a pull, it must not be
// re-announced on the next one.
func (s *SQLiteStore) SetCheckpoint(ctx context.Context, cp sync.Checkpoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.ExecContext(ctx, upsert, metaLastPulledAt, strconv.FormatInt(int64(cp), 10)); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, metaSchemaVersion, fmt.Sprint(CurrentSchemaVersion)); err != nil {
		return fmt.Errorf("persist schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) lastPulledSchemaVersion(ctx context.Context) (int, error) {
	value, err := s.getMeta(ctx, metaSchemaVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CurrentSchemaVersion, nil
		}
		return 0, err
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", value, err)
	}
	return v, nil
}

// DeviceID returns this installation's stable identifier, generating and
// persisting one on first call. Only one device instance owns a given local
// store, so the id doubles as the backup object prefix.
func (s *SQLiteStore) DeviceID(ctx context.Context) (string, error) {
	value, err := s.getMeta(ctx, metaDeviceID)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	id := ulid.Make().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		metaDeviceID, id)
	if err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	// A concurrent writer may have won the insert; read back the winner.
	return s.getMeta(ctx, metaDeviceID)
}

func (s *SQLiteStore) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}
