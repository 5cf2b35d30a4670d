// Package config holds persistent user settings and per-run configuration.
//
// Persistent settings live in ~/.forge-recipe/config.json as named sections
// (budget, healing, authoring, llm, checkpoint) managed by a Manager. A run
// is described by a YAML file loaded with LoadRunConfig; its values start from
// the persistent sections and override them.
package config

import (
	"sync"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// Initialize creates the global manager, registers every section and loads
// the file at configPath (DefaultPath when empty).
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager := NewManager(store)
	for _, section := range []Section{
		NewBudgetSection(),
		NewHealingSection(),
		NewAuthoringSection(),
		NewLLMSection(),
		NewCheckpointSection(),
	} {
		if err := manager.RegisterSection(section); err != nil {
			return err
		}
	}

	if err := manager.LoadAll(); err != nil {
		return err
	}

	globalManager = manager
	return nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}
	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// globalSection returns the registered section id as T, or the zero T.
func globalSection[T Section](id string) T {
	var zero T
	if !IsInitialized() {
		return zero
	}
	section, ok := Global().GetSection(id)
	if !ok {
		return zero
	}
	typed, ok := section.(T)
	if !ok {
		return zero
	}
	return typed
}

// GetBudget returns the budget section, or nil before Initialize.
func GetBudget() *BudgetSection {
	return globalSection[*BudgetSection](SectionIDBudget)
}

// GetHealing returns the healing section, or nil before Initialize.
func GetHealing() *HealingSection {
	return globalSection[*HealingSection](SectionIDHealing)
}

// GetAuthoring returns the authoring section, or nil before Initialize.
func GetAuthoring() *AuthoringSection {
	return globalSection[*AuthoringSection](SectionIDAuthoring)
}

// GetLLM returns the LLM section, or nil before Initialize.
func GetLLM() *LLMSection {
	return globalSection[*LLMSection](SectionIDLLM)
}

// GetCheckpoint returns the checkpoint section, or nil before Initialize.
func GetCheckpoint() *CheckpointSection {
	return globalSection[*CheckpointSection](SectionIDCheckpoint)
}
