// Package recipe models versioned browser-automation recipes and their on-disk layout.
package recipe

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/entrhq/forge-recipe/pkg/types"
)

var (
	ErrNotFound        = errors.New("recipe: not found")
	ErrVersionExists   = errors.New("recipe: version already exists")
	ErrInvalidVersion  = errors.New("recipe: invalid version")
	ErrStepNotFound    = errors.New("recipe: step not found")
	ErrInvalidDocument = errors.New("recipe: invalid document")
)

var validate = validator.New()

// StepOp is the kind of work a workflow step performs.
type StepOp string

const (
	StepGoto        StepOp = "goto"
	StepActCached   StepOp = "act_cached"
	StepActTemplate StepOp = "act_template"
	StepExtract     StepOp = "extract"
	StepChoose      StepOp = "choose"
	StepCheckpoint  StepOp = "checkpoint"
	StepWait        StepOp = "wait"
)

// ExpectKind is the kind of post-step assertion.
type ExpectKind string

const (
	ExpectURLContains     ExpectKind = "url_contains"
	ExpectSelectorVisible ExpectKind = "selector_visible"
	ExpectTextContains    ExpectKind = "text_contains"
	ExpectTitleContains   ExpectKind = "title_contains"
)

// Expectation is checked after its step runs.
type Expectation struct {
	Kind  ExpectKind `json:"kind" validate:"required,oneof=url_contains selector_visible text_contains title_contains"`
	Value string     `json:"value"`
}

// WorkflowStep is one instruction of a workflow.
type WorkflowStep struct {
	ID        string                 `json:"id" validate:"required"`
	Op        StepOp                 `json:"op" validate:"required,oneof=goto act_cached act_template extract choose checkpoint wait"`
	TargetKey string                 `json:"targetKey,omitempty"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Expect    []Expectation          `json:"expect,omitempty" validate:"dive"`
	OnFail    string                 `json:"onFail,omitempty"`
}

// Workflow is the ordered step list of a recipe.
type Workflow struct {
	ID      string                 `json:"id" validate:"required"`
	Version string                 `json:"version,omitempty"`
	Vars    map[string]interface{} `json:"vars,omitempty"`
	Steps   []WorkflowStep         `json:"steps" validate:"required,dive"`
}

// ActionEntry is the recorded way to act on a target key.
type ActionEntry struct {
	Instruction string          `json:"instruction"`
	Preferred   types.ActionRef `json:"preferred"`
	ObservedAt  string          `json:"observedAt"`
}

// SelectorEntry is the recorded way to locate a target key.
type SelectorEntry struct {
	Primary   string   `json:"primary"`
	Fallbacks []string `json:"fallbacks"`
	Strategy  string   `json:"strategy"`
}

// Candidates returns the primary selector followed by its fallbacks.
func (s SelectorEntry) Candidates() []string {
	out := make([]string, 0, 1+len(s.Fallbacks))
	if s.Primary != "" {
		out = append(out, s.Primary)
	}
	for _, f := range s.Fallbacks {
		if f != "" && f != s.Primary {
			out = append(out, f)
		}
	}
	return out
}

// PolicyCondition compares one field of a candidate.
type PolicyCondition struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// PolicyScoreRule adds Add to a candidate's score when When holds.
type PolicyScoreRule struct {
	When PolicyCondition `json:"when"`
	Add  float64         `json:"add"`
}

// Policy decides between candidates in a choose step.
type Policy struct {
	Hard     []PolicyCondition `json:"hard"`
	Score    []PolicyScoreRule `json:"score"`
	TieBreak []string          `json:"tie_break"`
	Pick     string            `json:"pick"`
}

// Fingerprint recognizes the page a recipe was recorded against.
type Fingerprint struct {
	MustText      []string `json:"mustText,omitempty"`
	MustSelectors []string `json:"mustSelectors,omitempty"`
	URLContains   string   `json:"urlContains,omitempty"`
}

// Recipe is one immutable version of a (domain, flow) automation.
type Recipe struct {
	Domain       string                   `json:"domain" validate:"required"`
	Flow         string                   `json:"flow" validate:"required"`
	Version      string                   `json:"version" validate:"required"`
	Workflow     Workflow                 `json:"workflow"`
	Actions      map[string]ActionEntry   `json:"actions"`
	Selectors    map[string]SelectorEntry `json:"selectors"`
	Policies     map[string]Policy        `json:"policies"`
	Fingerprints map[string]Fingerprint   `json:"fingerprints"`
}

// Validate checks the recipe's identity and workflow shape.
func (r *Recipe) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if _, err := ParseVersion(r.Version); err != nil {
		return err
	}
	seen := make(map[string]bool, len(r.Workflow.Steps))
	for _, s := range r.Workflow.Steps {
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate step id %q", ErrInvalidDocument, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Step returns the step with the given id.
func (r *Recipe) Step(id string) (*WorkflowStep, error) {
	for i := range r.Workflow.Steps {
		if r.Workflow.Steps[i].ID == id {
			return &r.Workflow.Steps[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrStepNotFound, id)
}

// Action looks up the action entry for a target key.
func (r *Recipe) Action(targetKey string) (ActionEntry, bool) {
	a, ok := r.Actions[targetKey]
	return a, ok
}

// Selector looks up the selector entry for a target key.
func (r *Recipe) Selector(targetKey string) (SelectorEntry, bool) {
	s, ok := r.Selectors[targetKey]
	return s, ok
}

func (r *Recipe) String() string {
	return fmt.Sprintf("%s/%s@%s", r.Domain, r.Flow, r.Version)
}
