package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/entrhq/forge-recipe/pkg/recipe"
	"github.com/entrhq/forge-recipe/pkg/types"
)

// Apply mutates r in place with one op. Callers apply to a clone.
func Apply(r *recipe.Recipe, op types.PatchOp, now time.Time) error {
	switch op.Op {
	case types.OpActionsReplace, types.OpActionsAdd:
		return applyAction(r, op, now)
	case types.OpSelectorsAdd, types.OpSelectorsReplace:
		return applySelector(r, op)
	case types.OpWorkflowUpdateExpect:
		return applyExpect(r, op)
	case types.OpPoliciesUpdate:
		return applyPolicy(r, op)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, op.Op)
	}
}

// applyAction accepts either a full action entry or a bare action ref.
func applyAction(r *recipe.Recipe, op types.PatchOp, now time.Time) error {
	var entry recipe.ActionEntry
	if hasField(op.Value, "preferred") {
		if err := json.Unmarshal(op.Value, &entry); err != nil {
			return fmt.Errorf("%w: %s value: %v", ErrInvalidPatch, op.Op, err)
		}
	} else {
		var ref types.ActionRef
		if err := json.Unmarshal(op.Value, &ref); err != nil {
			return fmt.Errorf("%w: %s value: %v", ErrInvalidPatch, op.Op, err)
		}
		entry.Preferred = ref
		if prev, ok := r.Actions[op.Key]; ok {
			entry.Instruction = prev.Instruction
		} else {
			entry.Instruction = ref.Description
		}
	}
	if entry.Preferred.Selector == "" {
		return fmt.Errorf("%w: %s %q has no selector", ErrInvalidPatch, op.Op, op.Key)
	}
	if entry.ObservedAt == "" {
		entry.ObservedAt = now.UTC().Format(time.RFC3339)
	}
	if r.Actions == nil {
		r.Actions = make(map[string]recipe.ActionEntry)
	}
	r.Actions[op.Key] = entry
	return nil
}

// applySelector accepts a selector entry or a bare selector string. A bare
// string becomes the new primary and the old selectors become fallbacks.
func applySelector(r *recipe.Recipe, op types.PatchOp) error {
	var entry recipe.SelectorEntry
	var bare string
	if err := json.Unmarshal(op.Value, &bare); err == nil {
		prev := r.Selectors[op.Key]
		entry = recipe.SelectorEntry{Primary: bare, Strategy: prev.Strategy}
		for _, s := range prev.Candidates() {
			if s != bare {
				entry.Fallbacks = append(entry.Fallbacks, s)
			}
		}
	} else if err := json.Unmarshal(op.Value, &entry); err != nil {
		return fmt.Errorf("%w: %s value: %v", ErrInvalidPatch, op.Op, err)
	}
	if entry.Primary == "" {
		return fmt.Errorf("%w: %s %q has no primary selector", ErrInvalidPatch, op.Op, op.Key)
	}
	if entry.Fallbacks == nil {
		entry.Fallbacks = []string{}
	}
	if r.Selectors == nil {
		r.Selectors = make(map[string]recipe.SelectorEntry)
	}
	r.Selectors[op.Key] = entry
	return nil
}

// applyExpect replaces the named step's expectations. A single object is
// treated as a one-element list.
func applyExpect(r *recipe.Recipe, op types.PatchOp) error {
	step, err := r.Step(op.Step)
	if err != nil {
		return err
	}
	var expect []recipe.Expectation
	if bytes.HasPrefix(bytes.TrimSpace(op.Value), []byte("{")) {
		var one recipe.Expectation
		if err := json.Unmarshal(op.Value, &one); err != nil {
			return fmt.Errorf("%w: %s value: %v", ErrInvalidPatch, op.Op, err)
		}
		expect = []recipe.Expectation{one}
	} else if err := json.Unmarshal(op.Value, &expect); err != nil {
		return fmt.Errorf("%w: %s value: %v", ErrInvalidPatch, op.Op, err)
	}
	step.Expect = expect
	return nil
}

func applyPolicy(r *recipe.Recipe, op types.PatchOp) error {
	var policy recipe.Policy
	if err := json.Unmarshal(op.Value, &policy); err != nil {
		return fmt.Errorf("%w: %s value: %v", ErrInvalidPatch, op.Op, err)
	}
	if r.Policies == nil {
		r.Policies = make(map[string]recipe.Policy)
	}
	r.Policies[op.Key] = policy
	return nil
}

func hasField(raw json.RawMessage, field string) bool {
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) != nil {
		return false
	}
	_, ok := obj[field]
	return ok
}
