package statestore

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileStore implements Store using a single file on disk.
// Writes go through a temp file and rename so a crash mid-save never
// leaves a truncated blob behind.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at the given path.
// If path is empty, defaults to ~/.qrpost/session-state.json
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".qrpost", "session-state.json")
	}

	return &FileStore{path: path}, nil
}

// Load returns the saved blob, or ErrNotFound if the file does not exist.
func (s *FileStore) Load() ([]byte, error) {
	blob, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}
	if len(blob) == 0 {
		return nil, ErrNotFound
	}
	return blob, nil
}

// Save replaces the saved blob atomically.
func (s *FileStore) Save(blob []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, blob, 0600); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp state file: %w", err)
	}

	return nil
}

// Delete removes the saved blob.
func (s *FileStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}

// Path returns the file path of the store.
func (s *FileStore) Path() string {
	return s.path
}
