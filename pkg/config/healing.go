package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/entrhq/forge-recipe/pkg/healing"
)

// SectionIDHealing is the identifier for the healing memory section.
const SectionIDHealing = "healing"

// HealingSettings locate and tune the healing memory store.
type HealingSettings struct {
	// Path of the store. Empty means ~/.forge-recipe/healing.json.
	Path            string        `json:"path" yaml:"path"`
	MinConfidence   float64       `json:"min_confidence" yaml:"min_confidence" default:"0.6" validate:"gte=0,lte=1"`
	PruneConfidence float64       `json:"prune_confidence" yaml:"prune_confidence" default:"0.3" validate:"gte=0,lte=1"`
	MaxAge          time.Duration `json:"max_age" yaml:"max_age" default:"720h" validate:"gte=0"`
}

// DefaultHealingSettings returns the built-in healing settings.
func DefaultHealingSettings() HealingSettings {
	return HealingSettings{
		MinConfidence:   healing.DefaultMinConfidence,
		PruneConfidence: healing.DefaultPruneConfidence,
		MaxAge:          30 * 24 * time.Hour,
	}
}

// StorePath resolves Path, falling back to the default location.
func (h HealingSettings) StorePath() (string, error) {
	if h.Path != "" {
		return h.Path, nil
	}
	home, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".forge-recipe", "healing.json"), nil
}

// HealingSection manages HealingSettings.
type HealingSection struct {
	settings HealingSettings
	mu       sync.RWMutex
}

// NewHealingSection creates a healing section with default settings.
func NewHealingSection() *HealingSection {
	return &HealingSection{settings: DefaultHealingSettings()}
}

// ID returns the section identifier.
func (s *HealingSection) ID() string {
	return SectionIDHealing
}

// Title returns the section title.
func (s *HealingSection) Title() string {
	return "Healing Memory"
}

// Description returns the section description.
func (s *HealingSection) Description() string {
	return "Where remembered heals are stored, the confidence a heal needs before it is replayed, and when stale heals are pruned."
}

// Data returns the current configuration data.
func (s *HealingSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return encodeSection(s.settings, map[string]time.Duration{"max_age": s.settings.MaxAge})
}

// SetData merges data into the current settings.
func (s *HealingSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	if err := decodeSection(data, &next); err != nil {
		return err
	}
	s.settings = next
	return nil
}

// Validate checks confidence ranges.
func (s *HealingSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := validate.Struct(s.settings); err != nil {
		return fmt.Errorf("healing: invalid settings: %w", err)
	}
	return nil
}

// Reset restores the default settings.
func (s *HealingSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = DefaultHealingSettings()
}

// Settings returns a copy of the current settings.
func (s *HealingSection) Settings() HealingSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}
