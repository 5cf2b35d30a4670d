package config

import (
	"sync"

	"github.com/entrhq/forge-recipe/pkg/budget"
)

// SectionIDBudget is the identifier for the budget section.
const SectionIDBudget = "budget"

// BudgetSection holds the per-run recovery ceilings.
type BudgetSection struct {
	cfg budget.Config
	mu  sync.RWMutex
}

// NewBudgetSection creates a budget section with the built-in ceilings.
func NewBudgetSection() *BudgetSection {
	return &BudgetSection{cfg: budget.DefaultConfig()}
}

// ID returns the section identifier.
func (s *BudgetSection) ID() string {
	return SectionIDBudget
}

// Title returns the section title.
func (s *BudgetSection) Title() string {
	return "Recovery Budget"
}

// Description returns the section description.
func (s *BudgetSection) Description() string {
	return "Per-run ceilings for language model calls, authoring service calls, prompt size and screenshots, and the order downgrades are issued in once a ceiling is hit."
}

// Data returns the current configuration data.
func (s *BudgetSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return encodeSection(s.cfg, nil)
}

// SetData merges data into the current ceilings.
func (s *BudgetSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	if _, ok := data["downgrade_order"]; ok {
		next.DowngradeOrder = nil
	}
	if err := decodeSection(data, &next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// Validate checks ranges and the downgrade order.
func (s *BudgetSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Validate()
}

// Reset restores the built-in ceilings.
func (s *BudgetSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = budget.DefaultConfig()
}

// Config returns a copy of the ceilings.
func (s *BudgetSection) Config() budget.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cfg
	c.DowngradeOrder = append([]budget.Downgrade(nil), s.cfg.DowngradeOrder...)
	return c
}
