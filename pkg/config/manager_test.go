package config

import (
	"fmt"
	"testing"
)

// mockSection is a test implementation of the Section interface
type mockSection struct {
	id          string
	title       string
	description string
	data        map[string]interface{}
	validateErr error
}

func (m *mockSection) ID() string                                { return m.id }
func (m *mockSection) Title() string                             { return m.title }
func (m *mockSection) Description() string                       { return m.description }
func (m *mockSection) Data() map[string]interface{}              { return m.data }
func (m *mockSection) SetData(data map[string]interface{}) error { m.data = data; return nil }
func (m *mockSection) Validate() error                           { return m.validateErr }
func (m *mockSection) Reset()                                    { m.data = make(map[string]interface{}) }

// mockStore is a test implementation of the Store interface
type mockStore struct {
	sections map[string]map[string]interface{}
	loadErr  error
	saveErr  error
	saved    bool
}

func newMockStore() *mockStore {
	return &mockStore{
		sections: make(map[string]map[string]interface{}),
	}
}

func (m *mockStore) Load() error {
	return m.loadErr
}

func (m *mockStore) Save() error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = true
	return nil
}

func (m *mockStore) GetSection(sectionID string) (map[string]interface{}, error) {
	if data, exists := m.sections[sectionID]; exists {
		return data, nil
	}
	return make(map[string]interface{}), nil
}

func (m *mockStore) SetSection(sectionID string, data map[string]interface{}) error {
	m.sections[sectionID] = data
	return nil
}

func TestNewManager(t *testing.T) {
	store := newMockStore()
	manager := NewManager(store)

	if manager == nil {
		t.Fatal("NewManager returned nil")
	}

	if manager.Store() != store {
		t.Error("Manager does not reference correct store")
	}

	sections := manager.GetSections()
	if len(sections) != 0 {
		t.Error("New manager should have no sections")
	}
}

func TestManager_RegisterSection(t *testing.T) {
	t.Run("registers section successfully", func(t *testing.T) {
		manager := NewManager(newMockStore())
		section := &mockSection{id: "test", title: "Test"}

		err := manager.RegisterSection(section)
		if err != nil {
			t.Fatalf("RegisterSection failed: %v", err)
		}

		retrieved, ok := manager.GetSection("test")
		if !ok {
			t.Fatal("Section not found after registration")
		}

		if retrieved.ID() != "test" {
			t.Error("Retrieved section has wrong ID")
		}
	})

	t.Run("prevents duplicate registration", func(t *testing.T) {
		manager := NewManager(newMockStore())
		section1 := &mockSection{id: "test", title: "Test 1"}
		section2 := &mockSection{id: "test", title: "Test 2"}

		if err := manager.RegisterSection(section1); err != nil {
			t.Fatalf("First registration failed: %v", err)
		}

		err := manager.RegisterSection(section2)
		if err == nil {
			t.Error("Expected error for duplicate registration")
		}
	})

	t.Run("maintains registration order", func(t *testing.T) {
		manager := NewManager(newMockStore())

		manager.RegisterSection(&mockSection{id: "first"})
		manager.RegisterSection(&mockSection{id: "second"})
		manager.RegisterSection(&mockSection{id: "third"})

		sections := manager.GetSections()
		if len(sections) != 3 {
			t.Fatalf("Expected 3 sections, got %d", len(sections))
		}

		if sections[0].ID() != "first" || sections[1].ID() != "second" || sections[2].ID() != "third" {
			t.Error("Sections not in registration order")
		}
	})
}

func TestManager_LoadAll(t *testing.T) {
	t.Run("loads all sections from store", func(t *testing.T) {
		store := newMockStore()
		store.sections["test"] = map[string]interface{}{
			"key": "value",
		}

		manager := NewManager(store)
		section := &mockSection{
			id:   "test",
			data: make(map[string]interface{}),
		}
		manager.RegisterSection(section)

		if err := manager.LoadAll(); err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}

		if section.data["key"] != "value" {
			t.Error("Section data not loaded correctly")
		}
	})

	t.Run("handles store load error", func(t *testing.T) {
		store := newMockStore()
		store.loadErr = fmt.Errorf("load error")

		manager := NewManager(store)

		err := manager.LoadAll()
		if err == nil {
			t.Error("Expected error from store")
		}
	})

	t.Run("sections without persisted data keep defaults", func(t *testing.T) {
		store := newMockStore()
		manager := NewManager(store)

		section := &mockSection{
			id:   "untouched",
			data: map[string]interface{}{"default": true},
		}
		manager.RegisterSection(section)

		if err := manager.LoadAll(); err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}

		if section.data["default"] != true {
			t.Error("Defaults should survive when store has no data for the section")
		}
	})
}

func TestManager_SaveAll(t *testing.T) {
	store := newMockStore()
	manager := NewManager(store)

	section := &mockSection{
		id:   "test",
		data: map[string]interface{}{"key": "value"},
	}
	manager.RegisterSection(section)

	if err := manager.SaveAll(); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	if !store.saved {
		t.Error("Store.Save was not called")
	}

	if store.sections["test"]["key"] != "value" {
		t.Error("Section data not staged to store")
	}
}

func TestManager_ValidateAll(t *testing.T) {
	manager := NewManager(newMockStore())

	good := &mockSection{id: "good"}
	bad := &mockSection{id: "bad", validateErr: fmt.Errorf("broken")}

	manager.RegisterSection(good)
	manager.RegisterSection(bad)

	err := manager.ValidateAll()
	if err == nil {
		t.Error("Expected validation error")
	}
}
