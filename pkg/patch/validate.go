package patch

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/entrhq/forge-recipe/pkg/types"
)

var (
	ErrUnknownOp     = errors.New("patch: unknown op")
	ErrRejected      = errors.New("patch: rejected at checkpoint")
	ErrInvalidPatch  = errors.New("patch: invalid payload")
	ErrEmptyPayload  = errors.New("patch: payload has no ops")
	ErrTargetMissing = errors.New("patch: target missing")
)

var validate = validator.New()

// overlyGenericSelectors match too much of a page to be trusted as a heal.
var overlyGenericSelectors = map[string]bool{
	"*": true, "div": true, "span": true, "body": true, "html": true,
	"a": true, "p": true, "input": true, "button": true,
}

// ValidationError lists every problem found in a payload.
type ValidationError struct {
	Problems []string

	unknownOp bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid patch: %s", strings.Join(e.Problems, "; "))
}

// Unwrap lets callers match ErrInvalidPatch, and ErrUnknownOp when an op
// type was not recognized, with errors.Is.
func (e *ValidationError) Unwrap() []error {
	if e.unknownOp {
		return []error{ErrInvalidPatch, ErrUnknownOp}
	}
	return []error{ErrInvalidPatch}
}

// Validate checks a payload before it is graded or applied.
// All problems are collected; ops are reported as patch[i].
func Validate(payload types.PatchPayload) error {
	var problems []string

	if strings.TrimSpace(payload.Reason) == "" {
		problems = append(problems, "patch response must include a non-empty reason")
	}
	if len(payload.Patch) == 0 {
		problems = append(problems, ErrEmptyPayload.Error())
	}
	if err := validate.Struct(payload); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	unknownOp := false
	for i, op := range payload.Patch {
		if !op.Op.Known() {
			unknownOp = true
		}
		for _, p := range validateOp(op) {
			problems = append(problems, fmt.Sprintf("patch[%d]: %s", i, p))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems, unknownOp: unknownOp}
	}
	return nil
}

func validateOp(op types.PatchOp) []string {
	var problems []string

	if !op.Op.Known() {
		allowed := make([]string, len(types.PatchOpTypes))
		for i, t := range types.PatchOpTypes {
			allowed[i] = string(t)
		}
		sort.Strings(allowed)
		problems = append(problems, fmt.Sprintf("invalid op type '%s'. Allowed: %v", op.Op, allowed))
	}

	name := string(op.Op)
	if strings.HasPrefix(name, "actions.") || strings.HasPrefix(name, "selectors.") {
		if op.Key == "" {
			problems = append(problems, fmt.Sprintf("op '%s' requires a 'key' field", op.Op))
		}
	}
	if op.Op == types.OpWorkflowUpdateExpect && op.Step == "" {
		problems = append(problems, fmt.Sprintf("op '%s' requires a 'step' field", op.Op))
	}
	if op.Op == types.OpPoliciesUpdate && op.Key == "" {
		problems = append(problems, fmt.Sprintf("op '%s' requires a 'key' field", op.Op))
	}

	raw := strings.TrimSpace(string(op.Value))
	if raw == "" || raw == "null" {
		problems = append(problems, fmt.Sprintf("op '%s' requires a 'value' field", op.Op))
		return problems
	}

	var obj map[string]json.RawMessage
	if json.Unmarshal(op.Value, &obj) != nil {
		return problems
	}
	field := ""
	if _, ok := obj["selector"]; ok {
		field = "selector"
	} else if _, ok := obj["primary"]; ok {
		field = "primary"
	} else if pref, ok := obj["preferred"]; ok {
		// Action entries nest the selector one level down.
		var inner map[string]json.RawMessage
		if json.Unmarshal(pref, &inner) == nil {
			if sel, ok := inner["selector"]; ok {
				obj, field = map[string]json.RawMessage{"selector": sel}, "selector"
			}
		}
	}
	if field != "" {
		var selector string
		_ = json.Unmarshal(obj[field], &selector)
		selector = strings.TrimSpace(selector)
		switch {
		case selector == "":
			problems = append(problems, "selector must not be empty")
		case overlyGenericSelectors[selector]:
			problems = append(problems, fmt.Sprintf("selector '%s' is too generic and may match unintended elements", selector))
		}
	}
	return problems
}
