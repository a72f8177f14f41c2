package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	data := map[string]interface{}{
		"listen_addr": "127.0.0.1:9000",
		"headless":    false,
	}
	if err := store.SetSection("server", data); err != nil {
		t.Fatalf("SetSection failed: %v", err)
	}

	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Reopen and verify the data survived
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore (reopen) failed: %v", err)
	}

	loaded, err := reopened.GetSection("server")
	if err != nil {
		t.Fatalf("GetSection failed: %v", err)
	}

	if loaded["listen_addr"] != "127.0.0.1:9000" {
		t.Errorf("Expected listen_addr to round-trip, got %v", loaded["listen_addr"])
	}
	if loaded["headless"] != false {
		t.Errorf("Expected headless to round-trip, got %v", loaded["headless"])
	}
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	data, err := store.GetSection("anything")
	if err != nil {
		t.Fatalf("GetSection failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected empty section, got %v", data)
	}
}

func TestFileStore_CorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := NewFileStore(path); err == nil {
		t.Error("Expected error for corrupt config file")
	}
}

func TestFileStore_SaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	store.SetSection("s", map[string]interface{}{"k": "v"})
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file left behind after save")
	}
}

func TestFileStore_CopyOnRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	store.SetSection("s", map[string]interface{}{"k": "v"})

	data, _ := store.GetSection("s")
	data["k"] = "mutated"

	again, _ := store.GetSection("s")
	if again["k"] != "v" {
		t.Error("GetSection should return a copy, not the internal map")
	}
}
