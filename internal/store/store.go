// Package store persists danny artifacts in a SQLite database: id
// mappings, the visit index, matrix rows, similarity results and a log of
// batch runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested artifact is absent.
var ErrNotFound = errors.New("not found")

// Store wraps a SQLite database connection
type Store struct {
	conn *sql.DB
	Path string
}

const schema = `
CREATE TABLE IF NOT EXISTS user_ids (
	raw TEXT PRIMARY KEY,
	id  INTEGER NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS entity_ids (
	raw TEXT PRIMARY KEY,
	id  INTEGER NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS visits (
	user_id   INTEGER NOT NULL,
	entity_id INTEGER NOT NULL,
	weight    INTEGER NOT NULL CHECK (weight >= 1),
	PRIMARY KEY (user_id, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_visits_entity ON visits(entity_id);
CREATE TABLE IF NOT EXISTS matrix_meta (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	rows       INTEGER NOT NULL,
	cols       INTEGER NOT NULL,
	sparse     INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS matrix_rows (
	row_id INTEGER PRIMARY KEY,
	cols   BLOB NOT NULL,
	vals   BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	mode        TEXT NOT NULL,
	user_cap    INTEGER NOT NULL,
	workers     INTEGER NOT NULL,
	sparse      INTEGER NOT NULL,
	threshold   REAL NOT NULL,
	seed        INTEGER NOT NULL,
	subjects    INTEGER NOT NULL DEFAULT 0,
	pairs       INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	error       TEXT
);
CREATE TABLE IF NOT EXISTS similarities (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	user_id      INTEGER NOT NULL,
	candidate_id INTEGER NOT NULL,
	score        REAL NOT NULL,
	PRIMARY KEY (run_id, user_id, candidate_id)
);
`

// Open opens a SQLite database with WAL mode and foreign keys enabled and
// creates any missing tables.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{conn: conn, Path: path}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}
