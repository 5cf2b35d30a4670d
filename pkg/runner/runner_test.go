package runner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/forge-recipe/pkg/budget"
	"github.com/entrhq/forge-recipe/pkg/checkpoint"
	"github.com/entrhq/forge-recipe/pkg/healing"
	"github.com/entrhq/forge-recipe/pkg/patch"
	"github.com/entrhq/forge-recipe/pkg/recipe"
	"github.com/entrhq/forge-recipe/pkg/types"
)

const cartURL = "https://shop.example.com/cart"

func newMemory(t *testing.T) *healing.Memory {
	t.Helper()
	return healing.New(filepath.Join(t.TempDir(), "healing.json"))
}

func TestRunHappyPath(t *testing.T) {
	engine := newFakeEngine("#pay")
	engine.text[".total"] = "$42.00"
	events := &eventLog{}

	res, err := New(engine, nil, WithEventEmitter(events.emit)).Run(context.Background(), testRecipe())
	require.NoError(t, err)

	assert.Equal(t, []string{cartURL}, engine.navigated)
	assert.Equal(t, []string{"click #pay"}, engine.actedOn())
	assert.Equal(t, "$42.00", res.Extracted["order_total"])
	assert.Len(t, res.Steps, 3)
	assert.Zero(t, res.Recovered())
	assert.Equal(t, "v001", res.Recipe.Version)
	assert.Len(t, events.ofType(types.EventTypeStepSucceeded), 3)
}

func TestRecoverBySelectorFallbackRemembersHeal(t *testing.T) {
	engine := newFakeEngine("[data-test=pay]")
	engine.text[".total"] = "$42.00"
	memory := newMemory(t)

	r := New(engine, nil, WithHealingMemory(memory, 0))
	res, err := r.Run(context.Background(), testRecipe())
	require.NoError(t, err)

	require.Equal(t, 1, res.Recovered())
	outcome := res.Steps[1].Outcome
	require.NotNil(t, outcome)
	assert.Equal(t, OutcomeRecovered, outcome.Status)
	assert.Equal(t, types.ActionSelectorFallback, outcome.Action)
	assert.Equal(t, types.ErrorKindTargetNotFound, outcome.Plan.Context.ErrorKind)
	assert.Equal(t, []types.RecoveryAction{
		types.ActionRetry, types.ActionObserveRefresh, types.ActionSelectorFallback,
	}, outcome.Attempts)

	ref, ok := memory.FindMatch("pay_button", cartURL, healing.DefaultMinConfidence)
	require.True(t, ok)
	assert.Equal(t, "[data-test=pay]", ref.Selector)

	records := memory.Records("pay_button")
	require.Len(t, records, 1)
	assert.Equal(t, "#pay", records[0].Evidence.OriginalSelector)
	assert.Equal(t, healing.MethodSelectorFallback, records[0].Evidence.HealingMethod)
}

func TestRecoverFromHealingMemory(t *testing.T) {
	engine := newFakeEngine("#pay-new")
	engine.text[".total"] = "$42.00"
	memory := newMemory(t)
	require.NoError(t, memory.Record("pay_button",
		types.ActionRef{Selector: "#pay-new", Method: "click"}, cartURL,
		healing.Evidence{OriginalSelector: "#pay", HealedSelector: "#pay-new", HealingMethod: healing.MethodLLM}))

	rec := testRecipe()
	rec.Selectors["pay_button"] = recipe.SelectorEntry{Primary: "#pay"}

	res, err := New(engine, nil, WithHealingMemory(memory, 0)).Run(context.Background(), rec)
	require.NoError(t, err)

	outcome := res.Steps[1].Outcome
	require.NotNil(t, outcome)
	assert.Equal(t, types.ActionHealingMemory, outcome.Action)
	require.NotNil(t, outcome.Binding)
	assert.Equal(t, "#pay-new", outcome.Binding.Selector)

	records := memory.Records("pay_button")
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].SuccessCount)
	assert.Equal(t, healing.MethodLLM, records[0].Evidence.HealingMethod)
}

func TestHealingMemoryMissRecordsFailureAndAborts(t *testing.T) {
	engine := newFakeEngine()
	memory := newMemory(t)
	require.NoError(t, memory.Record("pay_button",
		types.ActionRef{Selector: "#stale", Method: "click"}, cartURL, healing.Evidence{}))
	events := &eventLog{}

	rec := testRecipe()
	rec.Selectors["pay_button"] = recipe.SelectorEntry{Primary: "#pay"}

	res, err := New(engine, nil, WithHealingMemory(memory, 0), WithEventEmitter(events.emit)).
		Run(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAborted))

	records := memory.Records("pay_button")
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].FailCount)
	assert.InDelta(t, 0.5, records[0].Confidence, 1e-9)

	require.Len(t, res.Steps, 2)
	assert.Equal(t, OutcomeAborted, res.Steps[1].Outcome.Status)
	assert.Len(t, events.ofType(types.EventTypeRunAborted), 1)
}

func TestRetryWithAlternativeMethod(t *testing.T) {
	engine := newFakeEngine("#pay")
	engine.refuse["#pay"] = map[string]error{"click": errNotVisible}
	engine.text[".total"] = "$42.00"
	memory := newMemory(t)

	res, err := New(engine, nil, WithHealingMemory(memory, 0)).Run(context.Background(), testRecipe())
	require.NoError(t, err)

	outcome := res.Steps[1].Outcome
	require.NotNil(t, outcome)
	assert.Equal(t, types.ErrorKindNotActionable, outcome.Plan.Context.ErrorKind)
	assert.Equal(t, types.ActionRetry, outcome.Action)
	require.NotNil(t, outcome.Binding)
	assert.Equal(t, "focus", outcome.Binding.Method)

	records := memory.Records("pay_button")
	require.Len(t, records, 1)
	assert.Equal(t, healing.MethodRetry, records[0].Evidence.HealingMethod)
}

func TestCaptchaGoesStraightToCheckpoint(t *testing.T) {
	tests := []struct {
		name     string
		decision checkpoint.Decision
		wantErr  bool
	}{
		{name: "approved", decision: checkpoint.GO},
		{name: "declined", decision: checkpoint.NotGO, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine()
			engine.refuse["#pay"] = map[string]error{"click": errors.New("reCAPTCHA challenge appeared")}
			engine.text[".total"] = "$42.00"
			gate := &recordingGate{decision: tt.decision}

			res, err := New(engine, nil, WithCheckpointGate(gate)).Run(context.Background(), testRecipe())

			require.Len(t, gate.requests, 1)
			assert.Equal(t, "pay", gate.requests[0].StepID)
			assert.Equal(t, "shop.example.com", gate.requests[0].Domain)

			outcome := res.Steps[1].Outcome
			require.NotNil(t, outcome)
			assert.Equal(t, []types.RecoveryAction{types.ActionCheckpoint}, outcome.Attempts)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrAborted))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, OutcomeApproved, outcome.Status)
			assert.Equal(t, "$42.00", res.Extracted["order_total"])
		})
	}
}

func TestAuthoringPatchVersionsRecipeUp(t *testing.T) {
	engine := newFakeEngine("#pay-v2")
	engine.text[".total"] = "$42.00"
	store := recipe.NewStore(t.TempDir())
	events := &eventLog{}

	value := []byte(`{"selector": "#pay-v2", "method": "click"}`)
	planner := &fakePlanner{payload: types.PatchPayload{
		Patch:  []types.PatchOp{{Op: types.OpActionsReplace, Key: "pay_button", Value: value}},
		Reason: "pay button id changed",
	}}

	rec := testRecipe()
	rec.Selectors["pay_button"] = recipe.SelectorEntry{Primary: "#pay"}

	r := New(engine, nil,
		WithPatchWorkflow(planner, patch.NewWorkflow(store, nil)),
		WithEventEmitter(events.emit))
	res, err := r.Run(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 1, planner.calls)
	assert.Equal(t, "pay", planner.got.StepID)
	assert.Equal(t, types.ErrorKindTargetNotFound, planner.got.ErrorKind)
	assert.Equal(t, "#pay", planner.got.FailedSelector)
	assert.NotEmpty(t, planner.got.DOMSnippet)

	assert.Equal(t, "v002", res.Recipe.Version)
	assert.Equal(t, "v001", rec.Version, "the original version is never modified")
	assert.Equal(t, types.ActionAuthoringPatch, res.Steps[1].Outcome.Action)

	versions, err := store.Versions("shop.example.com", "checkout")
	require.NoError(t, err)
	assert.Equal(t, []string{"v002"}, versions)

	applied := events.ofType(types.EventTypePatchApplied)
	require.Len(t, applied, 1)
	assert.Equal(t, "v002", applied[0].Message)
	assert.Equal(t, 1, res.Usage.AuthoringCalls)
}

func TestAuthoringTimeoutHandsOverToHuman(t *testing.T) {
	engine := newFakeEngine()
	engine.text[".total"] = "$42.00"
	planner := &fakePlanner{err: errors.New("authoring: authoring service timed out")}
	gate := &recordingGate{decision: checkpoint.GO}

	rec := testRecipe()
	rec.Selectors["pay_button"] = recipe.SelectorEntry{Primary: "#pay"}

	res, err := New(engine, nil,
		WithPatchWorkflow(planner, patch.NewWorkflow(nil, nil)),
		WithCheckpointGate(gate)).Run(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, 1, planner.calls)
	assert.Len(t, gate.requests, 1)
	assert.Equal(t, OutcomeApproved, res.Steps[1].Outcome.Status)
}

func TestAuthoringTimeoutDoesNotSkipLaterLadders(t *testing.T) {
	engine := newFakeEngine()
	engine.text[".sum"] = "$42.00"
	planner := &fakePlanner{err: errors.New("authoring: authoring service timed out")}
	gate := &recordingGate{decision: checkpoint.GO}

	rec := testRecipe()
	rec.Selectors["pay_button"] = recipe.SelectorEntry{Primary: "#pay"}
	rec.Selectors["total"] = recipe.SelectorEntry{Primary: ".total", Fallbacks: []string{".sum"}, Strategy: "css"}

	res, err := New(engine, nil,
		WithPatchWorkflow(planner, patch.NewWorkflow(nil, nil)),
		WithCheckpointGate(gate)).Run(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, OutcomeApproved, res.Steps[1].Outcome.Status)
	assert.Len(t, gate.requests, 1)

	outcome := res.Steps[2].Outcome
	require.NotNil(t, outcome)
	assert.Equal(t, OutcomeRecovered, outcome.Status)
	assert.Equal(t, types.ActionSelectorFallback, outcome.Action)
	assert.Equal(t, "$42.00", res.Extracted["order_total"])
	assert.Equal(t, 1, planner.calls)
}

func TestDowngradeForcesCheckpoint(t *testing.T) {
	engine := newFakeEngine("#pay-new")
	engine.text[".total"] = "$42.00"
	memory := newMemory(t)
	require.NoError(t, memory.Record("pay_button",
		types.ActionRef{Selector: "#pay-new", Method: "click"}, cartURL, healing.Evidence{}))
	gate := &recordingGate{decision: checkpoint.GO}
	events := &eventLog{}

	cfg := budget.DefaultConfig()
	cfg.MaxLLMCallsPerRun = 0
	cfg.DowngradeOrder = []budget.Downgrade{budget.DowngradeRequireHumanCheckpoint}

	res, err := New(engine, budget.NewGuard(cfg),
		WithHealingMemory(memory, 0),
		WithCheckpointGate(gate),
		WithEventEmitter(events.emit)).Run(context.Background(), testRecipe())
	require.NoError(t, err)

	outcome := res.Steps[1].Outcome
	require.NotNil(t, outcome)
	assert.Equal(t, OutcomeApproved, outcome.Status)
	assert.Equal(t, []types.RecoveryAction{
		types.ActionRetry, types.ActionObserveRefresh, types.ActionCheckpoint,
	}, outcome.Attempts)

	downgrades := events.ofType(types.EventTypeDowngrade)
	require.Len(t, downgrades, 1)
	assert.Equal(t, "require_human_checkpoint", downgrades[0].Message)
	assert.Len(t, events.ofType(types.EventTypeRungSkipped), 4, "observe_refresh plus the three bypassed rungs")
}

func TestObserveRefreshFallsBackToLocator(t *testing.T) {
	engine := newFakeEngine("#pay-llm")
	engine.text[".total"] = "$42.00"
	locator := &fakeLocator{ref: types.ActionRef{Selector: "#pay-llm", Method: "click"}}
	memory := newMemory(t)

	cfg := budget.DefaultConfig()
	cfg.MaxLLMCallsPerRun = 1
	r := New(engine, budget.NewGuard(cfg), WithLocator(locator), WithHealingMemory(memory, 0))

	res, err := r.Run(context.Background(), testRecipe())
	require.NoError(t, err)

	require.Len(t, locator.calls, 1)
	req := locator.calls[0]
	assert.Equal(t, "pay_button", req.TargetKey)
	assert.Equal(t, "#pay", req.FailedSelector)
	assert.Equal(t, "click", req.Method)
	assert.Equal(t, "click the pay button", req.Instruction)
	assert.False(t, req.Canvas)

	assert.Equal(t, types.ActionObserveRefresh, res.Steps[1].Outcome.Action)
	assert.Equal(t, 1, res.Usage.LLMCalls)
	assert.Equal(t, 100, res.Usage.PromptChars)

	records := memory.Records("pay_button")
	require.Len(t, records, 1)
	assert.Equal(t, healing.MethodLLM, records[0].Evidence.HealingMethod)
}

func TestCanvasNetworkParseRecoversExtraction(t *testing.T) {
	engine := newFakeEngine("#pay")
	engine.extractErr[".total"] = errors.New("canvas element has no text")
	canvas := &fakeCanvas{value: "42.00"}

	res, err := New(engine, nil, WithCanvasSolver(canvas)).Run(context.Background(), testRecipe())
	require.NoError(t, err)

	outcome := res.Steps[2].Outcome
	require.NotNil(t, outcome)
	assert.Equal(t, types.ErrorKindCanvasDetected, outcome.Plan.Context.ErrorKind)
	assert.Equal(t, types.ActionNetworkParse, outcome.Action)
	assert.Equal(t, "42.00", res.Extracted["order_total"])
}

func TestCanvasCoordinateClick(t *testing.T) {
	engine := newFakeEngine()
	engine.refuse["#pay"] = map[string]error{"click": errors.New("target is rendered inside a canvas")}
	engine.text[".total"] = "$42.00"
	canvas := &fakeCanvas{ref: types.ActionRef{Method: "click_at", Arguments: []string{"120", "48"}}}

	res, err := New(engine, nil, WithCanvasSolver(canvas)).Run(context.Background(), testRecipe())
	require.NoError(t, err)

	outcome := res.Steps[1].Outcome
	require.NotNil(t, outcome)
	assert.Equal(t, types.ActionCVCoordinate, outcome.Action)
	assert.Equal(t, []types.RecoveryAction{types.ActionNetworkParse, types.ActionCVCoordinate}, outcome.Attempts)
	assert.Contains(t, engine.actedOn(), "click_at ")
}

func TestExpectationFailureAbortsWithoutGate(t *testing.T) {
	engine := newFakeEngine("#pay")
	rec := testRecipe()
	rec.Workflow.Steps[1].Expect = []recipe.Expectation{{Kind: recipe.ExpectURLContains, Value: "/done"}}

	res, err := New(engine, nil).Run(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAborted))

	outcome := res.Steps[1].Outcome
	require.NotNil(t, outcome)
	assert.Equal(t, types.ErrorKindExpectationFailed, outcome.Plan.Context.ErrorKind)
	assert.Equal(t, OutcomeAborted, outcome.Status)
}

func TestCheckpointStepDeclined(t *testing.T) {
	engine := newFakeEngine("#pay")
	rec := testRecipe()
	rec.Workflow.Steps = append([]recipe.WorkflowStep{
		{ID: "confirm", Op: recipe.StepCheckpoint, Args: map[string]interface{}{"message": "Really pay?"}},
	}, rec.Workflow.Steps...)
	gate := &recordingGate{decision: checkpoint.NotGO}

	res, err := New(engine, nil, WithCheckpointGate(gate)).Run(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Empty(t, res.Steps)
	require.Len(t, gate.requests, 1)
	assert.Equal(t, "Really pay?", gate.requests[0].Message)
	assert.Empty(t, engine.navigated)
}

func TestRecoverOutsideRun(t *testing.T) {
	_, err := New(newFakeEngine(), nil).Recover(context.Background(), StepFailure{Err: errors.New("x")})
	assert.Error(t, err)
}

func TestChoose(t *testing.T) {
	candidates := []types.ActionRef{
		{Selector: "#a", Description: "Standard shipping $9", Method: "click"},
		{Selector: "#b", Description: "Express shipping $25", Method: "click"},
		{Selector: "#c", Description: "Pickup (unavailable)", Method: "click"},
		{Selector: "#d", Description: "Economy shipping $5", Method: "click"},
	}

	policy := recipe.Policy{
		Hard:  []recipe.PolicyCondition{{Field: "text", Op: "not_contains", Value: "unavailable"}},
		Score: []recipe.PolicyScoreRule{{When: recipe.PolicyCondition{Field: "text", Op: "lt", Value: 10}, Add: 1}},
	}
	got, ok := Choose(policy, candidates)
	require.True(t, ok)
	assert.Equal(t, "#a", got.Selector, "equal scores keep document order")

	policy.TieBreak = []string{"text"}
	got, _ = Choose(policy, candidates)
	assert.Equal(t, "#d", got.Selector, "tie broken by text ascending")

	policy.Pick = "last"
	got, _ = Choose(policy, candidates)
	assert.Equal(t, "#b", got.Selector)

	_, ok = Choose(recipe.Policy{Hard: []recipe.PolicyCondition{{Field: "method", Op: "eq", Value: "fill"}}}, candidates)
	assert.False(t, ok)
}
