package statestore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sessionStateSchema = `
CREATE TABLE IF NOT EXISTS session_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	blob BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore implements Store on top of a SQLite database. The blob lives
// in a single-row table so Save is an upsert and Load never scans.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// session_state table exists. Session state can carry authentication
// material, so the file is created with private permissions.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		if err := ensurePrivateFile(dbPath); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer, occasional reader; WAL still avoids writer stalls
	// during the auto-save sweep.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(sessionStateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session_state table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func ensurePrivateFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat database path: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("failed to create database file: %w", err)
	}
	return f.Close()
}

// Load returns the saved blob, or ErrNotFound if the row is absent.
func (s *SQLiteStore) Load() ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT blob FROM session_state WHERE id = 1`).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}
	if len(blob) == 0 {
		return nil, ErrNotFound
	}
	return blob, nil
}

// Save upserts the saved blob.
func (s *SQLiteStore) Save(blob []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO session_state (id, blob, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET blob = excluded.blob, updated_at = CURRENT_TIMESTAMP
	`, blob)
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

// Delete removes the saved blob.
func (s *SQLiteStore) Delete() error {
	if _, err := s.db.Exec(`DELETE FROM session_state WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
