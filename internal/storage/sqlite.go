// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteSchema holds one row per thread; data is the JSON snapshot.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS thread_snapshots (
    thread_id  TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    updated_at INTEGER NOT NULL  -- Unix milliseconds
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_thread_snapshots_updated ON thread_snapshots(updated_at);
`

// =============================================================================
// SQLITE PERSISTER
// =============================================================================

// SQLitePersister keeps thread snapshots in a single SQLite database.
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister opens (creating if needed) the database at path.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLitePersister{db: db}, nil
}

// Save upserts the snapshot row.
func (p *SQLitePersister) Save(ctx context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO thread_snapshots (thread_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		snap.ThreadID, string(data), updated.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot row. Missing rows return ErrThreadNotFound.
func (p *SQLitePersister) Load(ctx context.Context, threadID string) (*Snapshot, error) {
	var data string
	err := p.db.QueryRowContext(ctx,
		"SELECT data FROM thread_snapshots WHERE thread_id = ?", threadID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return decodeSnapshot([]byte(data))
}

// Delete removes a snapshot row. Missing rows return ErrThreadNotFound.
func (p *SQLitePersister) Delete(ctx context.Context, threadID string) error {
	res, err := p.db.ExecContext(ctx, "DELETE FROM thread_snapshots WHERE thread_id = ?", threadID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrThreadNotFound
	}
	return nil
}

// Prune deletes snapshots not updated since before.
func (p *SQLitePersister) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, "DELETE FROM thread_snapshots WHERE updated_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored snapshots.
func (p *SQLitePersister) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM thread_snapshots").Scan(&n)
	return n, err
}

// Close closes the database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
