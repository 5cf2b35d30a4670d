package patch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/forge-recipe/pkg/checkpoint"
	"github.com/entrhq/forge-recipe/pkg/recipe"
	"github.com/entrhq/forge-recipe/pkg/types"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingGate struct {
	decision checkpoint.Decision
	err      error
	calls    []checkpoint.Request
}

func (g *recordingGate) RequestApproval(_ context.Context, req checkpoint.Request) (checkpoint.Decision, error) {
	g.calls = append(g.calls, req)
	return g.decision, g.err
}

func baseRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		Domain:  "shop.example.com",
		Flow:    "checkout",
		Version: "v001",
		Workflow: recipe.Workflow{
			ID: "checkout",
			Steps: []recipe.WorkflowStep{
				{ID: "open", Op: recipe.StepGoto},
				{ID: "pay", Op: recipe.StepActCached, TargetKey: "pay_button",
					Expect: []recipe.Expectation{{Kind: recipe.ExpectURLContains, Value: "/confirm"}}},
			},
		},
		Actions: map[string]recipe.ActionEntry{
			"pay_button": {
				Instruction: "click pay",
				Preferred:   types.ActionRef{Selector: "#pay", Method: "click", Description: "Pay"},
				ObservedAt:  "2025-01-01T00:00:00Z",
			},
		},
		Selectors: map[string]recipe.SelectorEntry{
			"total": {Primary: ".total", Fallbacks: []string{"#total"}, Strategy: "css"},
		},
		Policies:     map[string]recipe.Policy{},
		Fingerprints: map[string]recipe.Fingerprint{},
	}
}

func op(t *testing.T, kind types.PatchOpType, key, step string, value interface{}) types.PatchOp {
	t.Helper()
	o, err := types.NewPatchOp(kind, key, step, value)
	require.NoError(t, err)
	return o
}

func TestClassifyPatch(t *testing.T) {
	ref := types.ActionRef{Selector: "#x", Method: "click"}
	tests := []struct {
		name string
		ops  []types.PatchOp
		want types.Severity
	}{
		{name: "actions.replace", ops: []types.PatchOp{op(t, types.OpActionsReplace, "k", "", ref)}, want: types.SeverityMinor},
		{name: "actions.add", ops: []types.PatchOp{op(t, types.OpActionsAdd, "k", "", ref)}, want: types.SeverityMinor},
		{name: "selectors.add", ops: []types.PatchOp{op(t, types.OpSelectorsAdd, "k", "", "#x")}, want: types.SeverityMinor},
		{name: "selectors.replace", ops: []types.PatchOp{op(t, types.OpSelectorsReplace, "k", "", "#x")}, want: types.SeverityMinor},
		{name: "workflow.update_expect", ops: []types.PatchOp{op(t, types.OpWorkflowUpdateExpect, "", "pay", []interface{}{})}, want: types.SeverityMajor},
		{name: "policies.update", ops: []types.PatchOp{op(t, types.OpPoliciesUpdate, "p", "", recipe.Policy{})}, want: types.SeverityMajor},
		{name: "two minor ops", ops: []types.PatchOp{
			op(t, types.OpActionsReplace, "k", "", ref),
			op(t, types.OpSelectorsAdd, "k", "", "#x"),
		}, want: types.SeverityMajor},
		{name: "empty", ops: nil, want: types.SeverityMajor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPatch(types.PatchPayload{Patch: tt.ops, Reason: "r"}))
		})
	}
}

func TestApplyAndVersionUpMinorSkipsGate(t *testing.T) {
	store := recipe.NewStore(t.TempDir())
	gate := &recordingGate{decision: checkpoint.NotGO}
	w := NewWorkflow(store, gate, WithClock(func() time.Time { return fixedNow }))

	orig := baseRecipe()
	payload := types.PatchPayload{
		Reason: "pay button id changed",
		Patch: []types.PatchOp{op(t, types.OpActionsReplace, "pay_button", "",
			types.ActionRef{Selector: "[data-test=pay]", Method: "click", Description: "Pay now"})},
	}

	updated, err := w.ApplyAndVersionUp(context.Background(), orig, payload)
	require.NoError(t, err)
	assert.Empty(t, gate.calls, "minor patches never consult the gate")

	assert.Equal(t, "v002", updated.Version)
	assert.Equal(t, "v002", updated.Workflow.Version)
	assert.Equal(t, "[data-test=pay]", updated.Actions["pay_button"].Preferred.Selector)
	assert.Equal(t, "click pay", updated.Actions["pay_button"].Instruction, "instruction survives a bare ref")
	assert.Equal(t, "2025-06-01T12:00:00Z", updated.Actions["pay_button"].ObservedAt)

	assert.Equal(t, "v001", orig.Version)
	assert.Equal(t, "#pay", orig.Actions["pay_button"].Preferred.Selector)

	loaded, err := store.Load("shop.example.com", "checkout", "v002")
	require.NoError(t, err)
	assert.Equal(t, updated.Actions, loaded.Actions)
}

func TestApplyAndVersionUpMajorRejected(t *testing.T) {
	root := t.TempDir()
	store := recipe.NewStore(root)
	gate := &recordingGate{decision: checkpoint.NotGO}
	w := NewWorkflow(store, gate)

	orig := baseRecipe()
	snapshot := orig.Clone()
	payload := types.PatchPayload{
		Reason: "confirmation page moved",
		Patch: []types.PatchOp{op(t, types.OpWorkflowUpdateExpect, "", "pay",
			[]recipe.Expectation{{Kind: recipe.ExpectURLContains, Value: "/thanks"}})},
	}

	updated, err := w.ApplyAndVersionUp(context.Background(), orig, payload)
	assert.Nil(t, updated)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Equal(t, snapshot, orig, "rejected patch leaves the recipe untouched")

	require.Len(t, gate.calls, 1)
	assert.Contains(t, gate.calls[0].Message, "confirmation page moved")
	assert.Equal(t, "shop.example.com", gate.calls[0].Domain)
	assert.Equal(t, "pay", gate.calls[0].StepID)
	assert.Contains(t, gate.calls[0].Detail, "workflow.update_expect")

	_, err = os.Stat(filepath.Join(root, "shop.example.com", "checkout", "v002"))
	assert.True(t, os.IsNotExist(err), "nothing is written on rejection")
}

func TestApplyAndVersionUpMajorGateError(t *testing.T) {
	gate := &recordingGate{decision: checkpoint.NotGO, err: context.DeadlineExceeded}
	w := NewWorkflow(nil, gate)

	payload := types.PatchPayload{
		Reason: "r",
		Patch:  []types.PatchOp{op(t, types.OpPoliciesUpdate, "cheapest", "", recipe.Policy{Pick: "argmin"})},
	}
	_, err := w.ApplyAndVersionUp(context.Background(), baseRecipe(), payload)
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestApplyAndVersionUpMajorApproved(t *testing.T) {
	store := recipe.NewStore(t.TempDir())
	gate := &recordingGate{decision: checkpoint.GO}
	w := NewWorkflow(store, gate)

	payload := types.PatchPayload{
		Reason: "new layout",
		Patch: []types.PatchOp{
			op(t, types.OpWorkflowUpdateExpect, "", "pay", recipe.Expectation{Kind: recipe.ExpectTitleContains, Value: "Thanks"}),
			op(t, types.OpPoliciesUpdate, "cheapest", "", recipe.Policy{Pick: "argmin", TieBreak: []string{"price"}}),
			op(t, types.OpSelectorsReplace, "total", "", "[data-total]"),
		},
	}

	updated, err := w.ApplyAndVersionUp(context.Background(), baseRecipe(), payload)
	require.NoError(t, err)
	require.Len(t, gate.calls, 1)

	step, err := updated.Step("pay")
	require.NoError(t, err)
	assert.Equal(t, []recipe.Expectation{{Kind: recipe.ExpectTitleContains, Value: "Thanks"}}, step.Expect)
	assert.Equal(t, "argmin", updated.Policies["cheapest"].Pick)
	assert.Equal(t, recipe.SelectorEntry{
		Primary:   "[data-total]",
		Fallbacks: []string{".total", "#total"},
		Strategy:  "css",
	}, updated.Selectors["total"])

	versions, err := store.Versions("shop.example.com", "checkout")
	require.NoError(t, err)
	assert.Equal(t, []string{"v002"}, versions)
}

func TestApplyAndVersionUpNilGateRejectsMajor(t *testing.T) {
	w := NewWorkflow(nil, nil)
	payload := types.PatchPayload{
		Reason: "r",
		Patch:  []types.PatchOp{op(t, types.OpPoliciesUpdate, "p", "", recipe.Policy{})},
	}
	_, err := w.ApplyAndVersionUp(context.Background(), baseRecipe(), payload)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestApplyAndVersionUpUnknownOp(t *testing.T) {
	gate := &recordingGate{decision: checkpoint.GO}
	w := NewWorkflow(nil, gate)
	payload := types.PatchPayload{
		Reason: "r",
		Patch:  []types.PatchOp{{Op: "dom.rewrite", Key: "k", Value: json.RawMessage(`{"x":1}`)}},
	}

	_, err := w.ApplyAndVersionUp(context.Background(), baseRecipe(), payload)
	assert.ErrorIs(t, err, ErrUnknownOp)
	assert.ErrorIs(t, err, ErrInvalidPatch)
	assert.Empty(t, gate.calls)

	w = NewWorkflow(nil, gate, WithoutValidation())
	_, err = w.ApplyAndVersionUp(context.Background(), baseRecipe(), payload)
	assert.ErrorIs(t, err, ErrUnknownOp, "the apply switch rejects unknown ops on its own")
}

func TestApplyAndVersionUpUnknownStep(t *testing.T) {
	gate := &recordingGate{decision: checkpoint.GO}
	w := NewWorkflow(nil, gate)
	payload := types.PatchPayload{
		Reason: "r",
		Patch:  []types.PatchOp{op(t, types.OpWorkflowUpdateExpect, "", "nope", []recipe.Expectation{})},
	}
	_, err := w.ApplyAndVersionUp(context.Background(), baseRecipe(), payload)
	assert.ErrorIs(t, err, recipe.ErrStepNotFound)
}

func TestApplyAndVersionUpInvalidVersion(t *testing.T) {
	w := NewWorkflow(nil, nil)
	r := baseRecipe()
	r.Version = "latest"
	payload := types.PatchPayload{
		Reason: "r",
		Patch:  []types.PatchOp{op(t, types.OpSelectorsAdd, "k", "", "#k")},
	}
	_, err := w.ApplyAndVersionUp(context.Background(), r, payload)
	assert.ErrorIs(t, err, recipe.ErrInvalidVersion)
}

func TestApplyActionEntryValue(t *testing.T) {
	r := baseRecipe()
	entry := recipe.ActionEntry{
		Instruction: "search",
		Preferred:   types.ActionRef{Selector: "#q", Method: "fill"},
		ObservedAt:  "2025-02-02T00:00:00Z",
	}
	require.NoError(t, Apply(r, op(t, types.OpActionsAdd, "search", "", entry), fixedNow))
	assert.Equal(t, entry, r.Actions["search"])
}

func TestApplySelectorEntryValue(t *testing.T) {
	r := baseRecipe()
	entry := recipe.SelectorEntry{Primary: "#new", Strategy: "css"}
	require.NoError(t, Apply(r, op(t, types.OpSelectorsAdd, "fresh", "", entry), fixedNow))
	assert.Equal(t, "#new", r.Selectors["fresh"].Primary)
	assert.Equal(t, []string{}, r.Selectors["fresh"].Fallbacks)
}
