package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/forge-recipe/pkg/checkpoint"
)

// SectionIDCheckpoint is the identifier for the checkpoint section.
const SectionIDCheckpoint = "checkpoint"

// DefaultApprovalTimeout bounds how long a checkpoint waits for a human.
const DefaultApprovalTimeout = 5 * time.Minute

// CheckpointSettings control human checkpoints.
type CheckpointSettings struct {
	// ApprovalTimeout is how long a checkpoint waits before answering NOT_GO.
	ApprovalTimeout time.Duration `json:"approval_timeout" yaml:"approval_timeout" default:"5m" validate:"gt=0"`

	// AutoApproveDomains are globs such as "*.staging.example.com" answered GO without asking.
	AutoApproveDomains []string `json:"auto_approve_domains" yaml:"auto_approve_domains"`
}

// CheckpointSection manages CheckpointSettings.
type CheckpointSection struct {
	settings CheckpointSettings
	mu       sync.RWMutex
}

// NewCheckpointSection creates a checkpoint section with default settings.
func NewCheckpointSection() *CheckpointSection {
	return &CheckpointSection{settings: CheckpointSettings{ApprovalTimeout: DefaultApprovalTimeout}}
}

// ID returns the section identifier.
func (s *CheckpointSection) ID() string {
	return SectionIDCheckpoint
}

// Title returns the section title.
func (s *CheckpointSection) Title() string {
	return "Checkpoints"
}

// Description returns the section description.
func (s *CheckpointSection) Description() string {
	return "How long checkpoints wait for a decision, and which domains are approved automatically."
}

// Data returns the current configuration data.
func (s *CheckpointSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"approval_timeout":     s.settings.ApprovalTimeout.String(),
		"auto_approve_domains": append([]string{}, s.settings.AutoApproveDomains...),
	}
}

// SetData merges data into the current settings.
func (s *CheckpointSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	if _, ok := data["auto_approve_domains"]; ok {
		next.AutoApproveDomains = nil
	}
	if err := decodeSection(data, &next); err != nil {
		return err
	}
	s.settings = next
	return nil
}

// Validate checks the timeout and compiles every domain pattern.
func (s *CheckpointSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Validate()
}

// Validate checks the timeout and compiles every domain pattern.
func (c CheckpointSettings) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("checkpoint: invalid settings: %w", err)
	}
	if _, err := checkpoint.NewAutoApprover(c.AutoApproveDomains, nil); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Reset restores the default settings.
func (s *CheckpointSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = CheckpointSettings{ApprovalTimeout: DefaultApprovalTimeout}
}

// Settings returns a copy of the current settings.
func (s *CheckpointSection) Settings() CheckpointSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.settings
	c.AutoApproveDomains = append([]string(nil), s.settings.AutoApproveDomains...)
	return c
}

// IsDomainAutoApproved reports whether domain matches an auto-approve pattern.
func (s *CheckpointSection) IsDomainAutoApproved(domain string) bool {
	approver, err := checkpoint.NewAutoApprover(s.Settings().AutoApproveDomains, nil)
	if err != nil {
		return false
	}
	return approver.Matches(domain)
}
