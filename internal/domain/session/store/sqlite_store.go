// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/savesync/internal/domain/session/model"
	"github.com/ManuGH/savesync/internal/persistence/sqlite"
)

const (
	schemaVersion = 1
)

// SqliteStore implements MetadataStore using SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore initializes a new SQLite metadata store.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("metadata store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS entity_metadata (
		name TEXT PRIMARY KEY,
		last_saved_at_ms INTEGER NOT NULL DEFAULT 0,
		synced_at_ms INTEGER,
		downloaded_at_ms INTEGER,
		remote_version TEXT NOT NULL DEFAULT ''
	);`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func toMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMs(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func ptrMs(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(r rowScanner) (model.EntitySaveMetadata, error) {
	var (
		m                  model.EntitySaveMetadata
		lastSaved          int64
		synced, downloaded sql.NullInt64
	)
	if err := r.Scan(&m.Name, &lastSaved, &synced, &downloaded, &m.RemoteVersion); err != nil {
		return m, err
	}
	m.LastSavedAt = fromMs(lastSaved)
	m.SyncedAt = ptrMs(synced)
	m.DownloadedAt = ptrMs(downloaded)
	return m, nil
}

const selectColumns = `SELECT name, last_saved_at_ms, synced_at_ms, downloaded_at_ms, remote_version FROM entity_metadata`

func (s *SqliteStore) Load(ctx context.Context, entity string) (*model.EntitySaveMetadata, error) {
	m, err := scanMetadata(s.DB.QueryRowContext(ctx, selectColumns+` WHERE name = ?`, entity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SqliteStore) Save(ctx context.Context, meta model.EntitySaveMetadata) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO entity_metadata (name, last_saved_at_ms, synced_at_ms, downloaded_at_ms, remote_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_saved_at_ms = excluded.last_saved_at_ms,
			synced_at_ms = excluded.synced_at_ms,
			downloaded_at_ms = excluded.downloaded_at_ms,
			remote_version = excluded.remote_version`,
		meta.Name, toMs(meta.LastSavedAt), nullMs(meta.SyncedAt), nullMs(meta.DownloadedAt), meta.RemoteVersion)
	return err
}

func (s *SqliteStore) UpdateSyncedAt(ctx context.Context, entity string, at time.Time, version string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO entity_metadata (name, synced_at_ms, remote_version) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET synced_at_ms = excluded.synced_at_ms, remote_version = excluded.remote_version`,
		entity, at.UnixMilli(), version)
	return err
}

func (s *SqliteStore) UpdateDownloadedAt(ctx context.Context, entity string, at time.Time, version string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO entity_metadata (name, downloaded_at_ms, remote_version) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET downloaded_at_ms = excluded.downloaded_at_ms, remote_version = excluded.remote_version`,
		entity, at.UnixMilli(), version)
	return err
}

func (s *SqliteStore) Delete(ctx context.Context, entity string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM entity_metadata WHERE name = ?`, entity)
	return err
}

func (s *SqliteStore) List(ctx context.Context) ([]model.EntitySaveMetadata, error) {
	rows, err := s.DB.QueryContext(ctx, selectColumns+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.EntitySaveMetadata
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
