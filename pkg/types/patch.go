package types

import (
	"encoding/json"
	"fmt"
)

// PatchOpType names a recipe mutation proposed by the authoring service.
type PatchOpType string

const (
	OpActionsReplace       PatchOpType = "actions.replace"        // OpActionsReplace overwrites an action entry by key.
	OpActionsAdd           PatchOpType = "actions.add"            // OpActionsAdd inserts an action entry by key.
	OpSelectorsAdd         PatchOpType = "selectors.add"          // OpSelectorsAdd inserts a selector entry by key.
	OpSelectorsReplace     PatchOpType = "selectors.replace"      // OpSelectorsReplace overwrites a selector entry by key.
	OpWorkflowUpdateExpect PatchOpType = "workflow.update_expect" // OpWorkflowUpdateExpect replaces a step's expectations.
	OpPoliciesUpdate       PatchOpType = "policies.update"        // OpPoliciesUpdate replaces a named policy.
)

// PatchOpTypes lists every supported op type.
var PatchOpTypes = []PatchOpType{
	OpActionsReplace,
	OpActionsAdd,
	OpSelectorsAdd,
	OpSelectorsReplace,
	OpWorkflowUpdateExpect,
	OpPoliciesUpdate,
}

// Known reports whether t is a supported op type.
func (t PatchOpType) Known() bool {
	for _, known := range PatchOpTypes {
		if t == known {
			return true
		}
	}
	return false
}

// PatchOp is one proposed change. Value is kept raw until the op is applied.
type PatchOp struct {
	Op    PatchOpType     `json:"op" validate:"required"`
	Key   string          `json:"key,omitempty"`
	Step  string          `json:"step,omitempty"`
	Value json.RawMessage `json:"value"`
}

// NewPatchOp builds an op, encoding value as JSON.
func NewPatchOp(op PatchOpType, key, step string, value interface{}) (PatchOp, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return PatchOp{}, fmt.Errorf("encode %s value: %w", op, err)
	}
	return PatchOp{Op: op, Key: key, Step: step, Value: raw}, nil
}

// PatchPayload bundles the ops the authoring service proposed for one failure.
type PatchPayload struct {
	RequestID string    `json:"requestId,omitempty"`
	Patch     []PatchOp `json:"patch" validate:"dive"`
	Reason    string    `json:"reason"`
}

// Severity gates whether a patch needs human sign-off.
type Severity string

const (
	SeverityMinor Severity = "minor"
	SeverityMajor Severity = "major"
)
