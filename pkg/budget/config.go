// Package budget governs how much costly recovery a single run may spend.
//
// A Guard counts language-model calls, authoring-service calls, prompt
// characters and screenshots against a Config. Once a ceiling is reached it
// stops approving the matching resource and hands out downgrades, one at a
// time, in the configured order.
package budget

import (
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Downgrade is a resource-saving adjustment issued once the run is over budget.
type Downgrade string

const (
	DowngradeTrimDOM                Downgrade = "trim_dom"
	DowngradeDropHistory            Downgrade = "drop_history"
	DowngradeObserveScopeNarrow     Downgrade = "observe_scope_narrow"
	DowngradeRequireHumanCheckpoint Downgrade = "require_human_checkpoint"
)

// DefaultDowngradeOrder shrinks context first and ends at a human checkpoint.
var DefaultDowngradeOrder = []Downgrade{
	DowngradeTrimDOM,
	DowngradeDropHistory,
	DowngradeObserveScopeNarrow,
	DowngradeRequireHumanCheckpoint,
}

// Valid reports whether d is a known downgrade.
func (d Downgrade) Valid() bool {
	for _, known := range DefaultDowngradeOrder {
		if d == known {
			return true
		}
	}
	return false
}

// Config holds per-run ceilings. It is fixed for the lifetime of a run.
type Config struct {
	MaxLLMCallsPerRun              int         `json:"max_llm_calls_per_run" yaml:"max_llm_calls_per_run" default:"10" validate:"gte=0"`
	MaxPromptChars                 int         `json:"max_prompt_chars" yaml:"max_prompt_chars" default:"40000" validate:"gte=0"`
	MaxDOMSnippetChars             int         `json:"max_dom_snippet_chars" yaml:"max_dom_snippet_chars" default:"8000" validate:"gte=0"`
	MaxScreenshotPerFailure        int         `json:"max_screenshot_per_failure" yaml:"max_screenshot_per_failure" default:"1" validate:"gte=0"`
	MaxScreenshotPerCheckpoint     int         `json:"max_screenshot_per_checkpoint" yaml:"max_screenshot_per_checkpoint" default:"2" validate:"gte=0"`
	MaxAuthoringServiceCallsPerRun int         `json:"max_authoring_service_calls_per_run" yaml:"max_authoring_service_calls_per_run" default:"3" validate:"gte=0"`
	AuthoringServiceTimeoutMs      int         `json:"authoring_service_timeout_ms" yaml:"authoring_service_timeout_ms" default:"12000" validate:"gt=0"`
	DowngradeOrder                 []Downgrade `json:"downgrade_order" yaml:"downgrade_order" default:"[\"trim_dom\",\"drop_history\",\"observe_scope_narrow\",\"require_human_checkpoint\"]"`
}

// DefaultConfig returns the built-in ceilings.
func DefaultConfig() Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		// Only reachable if the struct tags above are malformed.
		panic(fmt.Sprintf("budget: default tags: %v", err))
	}
	return c
}

// Validate checks ranges and the downgrade order.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("budget: invalid config: %w", err)
	}
	seen := make(map[Downgrade]bool, len(c.DowngradeOrder))
	var problems []string
	for _, d := range c.DowngradeOrder {
		if !d.Valid() {
			problems = append(problems, fmt.Sprintf("unknown downgrade %q", d))
			continue
		}
		if seen[d] {
			problems = append(problems, fmt.Sprintf("duplicate downgrade %q", d))
		}
		seen[d] = true
	}
	if len(problems) > 0 {
		return fmt.Errorf("budget: invalid downgrade order: %s", strings.Join(problems, "; "))
	}
	return nil
}
