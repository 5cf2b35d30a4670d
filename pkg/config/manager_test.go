package config

import (
	"fmt"
	"testing"
)

// mockSection is a test implementation of the Section interface
type mockSection struct {
	id          string
	data        map[string]interface{}
	validateErr error
}

func (m *mockSection) ID() string                                { return m.id }
func (m *mockSection) Title() string                             { return m.id }
func (m *mockSection) Description() string                       { return "" }
func (m *mockSection) Data() map[string]interface{}              { return m.data }
func (m *mockSection) SetData(data map[string]interface{}) error { m.data = data; return nil }
func (m *mockSection) Validate() error                           { return m.validateErr }
func (m *mockSection) Reset()                                    { m.data = make(map[string]interface{}) }

// mockStore is a test implementation of the Store interface
type mockStore struct {
	sections map[string]map[string]interface{}
	loadErr  error
	saveErr  error
	saved    int
}

func newMockStore() *mockStore {
	return &mockStore{sections: make(map[string]map[string]interface{})}
}

func (m *mockStore) Load() error { return m.loadErr }

func (m *mockStore) Save() error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved++
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

func (m *mockStore) GetAll() (map[string]map[string]interface{}, error) {
	return m.sections, nil
}

func (m *mockStore) SetAll(data map[string]map[string]interface{}) error {
	m.sections = data
	return nil
}

func TestManager_RegisterSection(t *testing.T) {
	manager := NewManager(newMockStore())

	if err := manager.RegisterSection(&mockSection{id: "budget"}); err != nil {
		t.Fatalf("RegisterSection failed: %v", err)
	}
	if err := manager.RegisterSection(&mockSection{id: "healing"}); err != nil {
		t.Fatalf("RegisterSection failed: %v", err)
	}
	if err := manager.RegisterSection(&mockSection{id: "budget"}); err == nil {
		t.Error("Expected error for duplicate registration")
	}

	sections := manager.GetSections()
	if len(sections) != 2 || sections[0].ID() != "budget" || sections[1].ID() != "healing" {
		t.Error("Sections not in registration order")
	}
	if _, ok := manager.GetSection("missing"); ok {
		t.Error("Should return false for non-existent section")
	}
}

func TestManager_LoadAll(t *testing.T) {
	t.Run("applies stored data", func(t *testing.T) {
		store := newMockStore()
		store.sections["budget"] = map[string]interface{}{"max_llm_calls_per_run": 3}
		manager := NewManager(store)
		section := &mockSection{id: "budget", data: map[string]interface{}{"keep": true}}
		manager.RegisterSection(section)

		if err := manager.LoadAll(); err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}
		if section.data["max_llm_calls_per_run"] != 3 {
			t.Error("Section data not loaded correctly")
		}
	})

	t.Run("keeps defaults when nothing is stored", func(t *testing.T) {
		manager := NewManager(newMockStore())
		section := &mockSection{id: "healing", data: map[string]interface{}{"min_confidence": 0.6}}
		manager.RegisterSection(section)

		if err := manager.LoadAll(); err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}
		if section.data["min_confidence"] != 0.6 {
			t.Error("Defaults should survive an empty store")
		}
	})

	t.Run("reports store and validation errors", func(t *testing.T) {
		store := newMockStore()
		store.loadErr = fmt.Errorf("load error")
		if err := NewManager(store).LoadAll(); err == nil {
			t.Error("Expected error from store")
		}

		store = newMockStore()
		store.sections["llm"] = map[string]interface{}{"model": "x"}
		manager := NewManager(store)
		manager.RegisterSection(&mockSection{id: "llm", validateErr: fmt.Errorf("bad")})
		if err := manager.LoadAll(); err == nil {
			t.Error("Expected validation error")
		}
	})
}

func TestManager_SaveAll(t *testing.T) {
	t.Run("saves every section", func(t *testing.T) {
		store := newMockStore()
		manager := NewManager(store)
		manager.RegisterSection(&mockSection{id: "a", data: map[string]interface{}{"k": "v"}})
		manager.RegisterSection(&mockSection{id: "b", data: map[string]interface{}{"k": "w"}})

		if err := manager.SaveAll(); err != nil {
			t.Fatalf("SaveAll failed: %v", err)
		}
		if store.sections["a"]["k"] != "v" || store.sections["b"]["k"] != "w" {
			t.Error("Section data not saved correctly")
		}
		if store.saved != 1 {
			t.Errorf("Save called %d times, want 1", store.saved)
		}
	})

	t.Run("writes nothing when a section is invalid", func(t *testing.T) {
		store := newMockStore()
		manager := NewManager(store)
		manager.RegisterSection(&mockSection{id: "a", data: map[string]interface{}{"k": "v"}})
		manager.RegisterSection(&mockSection{id: "b", validateErr: fmt.Errorf("validation error")})

		if err := manager.SaveAll(); err == nil {
			t.Fatal("Expected validation error")
		}
		if len(store.sections) != 0 || store.saved != 0 {
			t.Error("Nothing should be written when validation fails")
		}
	})

	t.Run("handles store save error", func(t *testing.T) {
		store := newMockStore()
		store.saveErr = fmt.Errorf("save error")
		manager := NewManager(store)
		manager.RegisterSection(&mockSection{id: "a", data: map[string]interface{}{}})

		if err := manager.SaveAll(); err == nil {
			t.Error("Expected error from store")
		}
	})
}

func TestManager_ResetAll(t *testing.T) {
	manager := NewManager(newMockStore())
	section := &mockSection{id: "a", data: map[string]interface{}{"k": "v"}}
	manager.RegisterSection(section)

	manager.ResetAll()

	if len(section.data) != 0 {
		t.Error("Section not reset")
	}
}

func TestManager_ConcurrentRegistration(t *testing.T) {
	manager := NewManager(newMockStore())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(i int) {
			manager.RegisterSection(&mockSection{id: fmt.Sprintf("section%d", i)})
			manager.GetSections()
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if got := len(manager.GetSections()); got != 10 {
		t.Errorf("Expected 10 sections, got %d", got)
	}
}
