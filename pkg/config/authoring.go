package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/creasty/defaults"

	"github.com/entrhq/forge-recipe/pkg/authoring"
)

// SectionIDAuthoring is the identifier for the authoring service section.
const SectionIDAuthoring = "authoring"

// DefaultAuthoringConfig returns the client defaults from its struct tags.
func DefaultAuthoringConfig() authoring.Config {
	var c authoring.Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("authoring: default tags: %v", err))
	}
	return c
}

// AuthoringSection manages the authoring service client settings.
type AuthoringSection struct {
	cfg authoring.Config
	mu  sync.RWMutex
}

// NewAuthoringSection creates an authoring section with default settings.
func NewAuthoringSection() *AuthoringSection {
	return &AuthoringSection{cfg: DefaultAuthoringConfig()}
}

// ID returns the section identifier.
func (s *AuthoringSection) ID() string {
	return SectionIDAuthoring
}

// Title returns the section title.
func (s *AuthoringSection) Title() string {
	return "Authoring Service"
}

// Description returns the section description.
func (s *AuthoringSection) Description() string {
	return "Base URL, timeout and retry policy for the service that proposes recipe patches."
}

// Data returns the current configuration data.
func (s *AuthoringSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return encodeSection(s.cfg, map[string]time.Duration{"timeout": s.cfg.Timeout})
}

// SetData merges data into the current settings.
func (s *AuthoringSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	if err := decodeSection(data, &next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// Validate checks the base URL and retry bounds.
func (s *AuthoringSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := validate.Struct(s.cfg); err != nil {
		return fmt.Errorf("authoring: invalid settings: %w", err)
	}
	return nil
}

// Reset restores the default settings.
func (s *AuthoringSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = DefaultAuthoringConfig()
}

// Config returns a copy of the client settings.
func (s *AuthoringSection) Config() authoring.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}
