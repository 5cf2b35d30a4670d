package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/entrhq/forge-recipe/pkg/budget"
	"github.com/entrhq/forge-recipe/pkg/checkpoint"
	"github.com/entrhq/forge-recipe/pkg/healing"
	"github.com/entrhq/forge-recipe/pkg/llm"
	"github.com/entrhq/forge-recipe/pkg/recipe"
	"github.com/entrhq/forge-recipe/pkg/recovery"
	"github.com/entrhq/forge-recipe/pkg/types"
)

// errSkipped marks a rung that was not eligible to run.
var errSkipped = errors.New("rung skipped")

// StepFailure is a failed step handed to Recover.
type StepFailure struct {
	Step recipe.WorkflowStep
	Err  error

	// Action is the binding that was attempted, if the step had one.
	Action *types.ActionRef
}

// OutcomeStatus says how a recovery ended.
type OutcomeStatus string

const (
	OutcomeRecovered OutcomeStatus = "recovered" // OutcomeRecovered means an automated rung fixed the step.
	OutcomeApproved  OutcomeStatus = "approved"  // OutcomeApproved means a human resolved the step at a checkpoint.
	OutcomeAborted   OutcomeStatus = "aborted"   // OutcomeAborted means the ladder ran out.
)

// Outcome describes a finished recovery.
type Outcome struct {
	Status OutcomeStatus
	Plan   types.RecoveryPlan

	// Action is the rung that resolved the step.
	Action types.RecoveryAction

	// Binding is the action that worked, for rungs that found one.
	Binding *types.ActionRef

	// Value is the extracted text for extract steps.
	Value string

	// Attempts lists the rungs tried, in order.
	Attempts []types.RecoveryAction
}

// rungResult is what a successful rung produced.
type rungResult struct {
	binding *types.ActionRef
	value   string
	status  OutcomeStatus
}

// Recover classifies f, routes it and walks the ladder until a rung succeeds.
// It returns ErrAborted when the ladder is exhausted or reaches abort.
func (r *Runner) Recover(ctx context.Context, f StepFailure) (Outcome, error) {
	if r.recipe == nil {
		return Outcome{}, errors.New("runner: Recover called outside a run")
	}

	fc := r.failureContext(ctx, f)
	fc.ErrorKind = recovery.Classify(f.Err, recovery.ClassifyContext{
		Selector:  fc.Selector(),
		SourceURL: fc.URL,
	})
	plan := recovery.Plan(fc)
	r.history = nil

	r.emitEvent(types.NewStepFailedEvent(f.Step.ID, fc.ErrorKind, f.Err))
	r.logger.Infof("step %s: %s", f.Step.ID, plan)

	outcome := Outcome{Plan: plan}
	authoringDown := false
	for i := 0; i < len(plan.Actions); i++ {
		action := plan.Actions[i]

		if (r.forceCheckpoint || authoringDown) && !action.IsTerminal() {
			r.emitEvent(types.NewRungEvent(types.EventTypeRungSkipped, f.Step.ID, fc.ErrorKind, action, errSkipped))
			continue
		}
		if action == types.ActionAbort {
			break
		}

		outcome.Attempts = append(outcome.Attempts, action)
		r.emitEvent(types.NewRungEvent(types.EventTypeRungStart, f.Step.ID, fc.ErrorKind, action, nil))

		res, err := r.attempt(ctx, action, f, fc)
		switch {
		case err == nil:
			r.emitEvent(types.NewRungEvent(types.EventTypeRungSucceeded, f.Step.ID, fc.ErrorKind, action, nil))
			outcome.Status = res.status
			outcome.Action = action
			outcome.Binding = res.binding
			outcome.Value = res.value
			r.logger.Infof("step %s recovered by %s", f.Step.ID, action)
			return outcome, nil
		case errors.Is(err, errSkipped):
			r.emitEvent(types.NewRungEvent(types.EventTypeRungSkipped, f.Step.ID, fc.ErrorKind, action, err))
		default:
			r.emitEvent(types.NewRungEvent(types.EventTypeRungFailed, f.Step.ID, fc.ErrorKind, action, err))
			r.logger.Debugf("step %s: %s failed: %v", f.Step.ID, action, err)
		}
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}

		if isCostly(action) {
			r.applyDowngrade(f.Step.ID)
		}
		if errors.Is(err, errAuthoringUnavailable) {
			// The planner is unreachable; only a human can help this step now.
			authoringDown = true
		}
	}

	outcome.Status = OutcomeAborted
	outcome.Action = types.ActionAbort
	r.emitEvent(types.NewRunAbortedEvent(f.Step.ID, fc.ErrorKind, f.Err))
	return outcome, fmt.Errorf("%w: step %s (%s): %v", ErrAborted, f.Step.ID, fc.ErrorKind, f.Err)
}

// attempt runs one rung. It returns errSkipped when the rung is not eligible.
func (r *Runner) attempt(ctx context.Context, action types.RecoveryAction, f StepFailure, fc types.FailureContext) (rungResult, error) {
	switch action {
	case types.ActionRetry:
		return r.retry(ctx, f, fc)
	case types.ActionObserveRefresh:
		return r.observeRefresh(ctx, f, fc)
	case types.ActionSelectorFallback:
		return r.selectorFallback(ctx, f, fc)
	case types.ActionHealingMemory:
		return r.healingMemory(ctx, f, fc)
	case types.ActionAuthoringPatch:
		return r.authoringPatch(ctx, f, fc)
	case types.ActionCheckpoint:
		return r.checkpoint(ctx, f, fc)
	case types.ActionNetworkParse:
		return r.networkParse(ctx, f, fc)
	case types.ActionCVCoordinate:
		return r.cvCoordinate(ctx, f, fc)
	case types.ActionCanvasLLMFallback:
		return r.canvasLLM(ctx, f, fc)
	case types.ActionAbort:
		return rungResult{}, ErrAborted
	}
	return rungResult{}, fmt.Errorf("unknown recovery action %q", action)
}

func isCostly(a types.RecoveryAction) bool {
	switch a {
	case types.ActionObserveRefresh, types.ActionAuthoringPatch, types.ActionCanvasLLMFallback:
		return true
	}
	return false
}

// failureContext snapshots the page for f. DOM and screenshot capture are
// best effort.
func (r *Runner) failureContext(ctx context.Context, f StepFailure) types.FailureContext {
	fc := types.FailureContext{
		StepID: f.Step.ID,
		URL:    r.engine.CurrentURL(),
		Title:  r.engine.CurrentTitle(),
	}
	if f.Action != nil {
		a := f.Action.Clone()
		if a.TargetKey == "" {
			a.TargetKey = f.Step.TargetKey
		}
		fc.FailedAction = &a
		fc.FailedSelector = a.Selector
	}

	if snippet, err := r.engine.DOMSnippet(ctx, fc.FailedSelector, r.domLimit); err == nil {
		fc.DOMSnippet = budget.TrimToChars(snippet, r.domLimit)
	} else {
		r.logger.Debugf("step %s: no DOM snippet: %v", f.Step.ID, err)
	}

	if path, ok := r.screenshot(ctx, f.Step.ID, false); ok {
		fc.ScreenshotRef = path
	}
	return fc
}

func (r *Runner) screenshot(ctx context.Context, stepID string, isCheckpoint bool) (string, bool) {
	if r.screenshotDir == "" || !r.guard.CanTakeScreenshot(isCheckpoint) {
		return "", false
	}
	kind := "failure"
	if isCheckpoint {
		kind = "checkpoint"
	}
	path := filepath.Join(r.screenshotDir, fmt.Sprintf("%s-%s-%d.png", stepID, kind, time.Now().UnixNano()))
	if err := r.engine.Screenshot(ctx, path); err != nil {
		r.logger.Warnf("screenshot for %s failed: %v", stepID, err)
		return "", false
	}
	r.guard.RecordScreenshot(isCheckpoint)
	return path, true
}

// targetKey is the logical target of the failing step.
func targetKey(f StepFailure, fc types.FailureContext) string {
	if f.Step.TargetKey != "" {
		return f.Step.TargetKey
	}
	return fc.TargetKey()
}

// needsBinding reports whether the step acts on an element.
func needsBinding(step recipe.WorkflowStep) bool {
	switch step.Op {
	case recipe.StepActCached, recipe.StepActTemplate, recipe.StepChoose, recipe.StepExtract:
		return true
	}
	return false
}

// tryBinding re-runs the step with ref and, on success, remembers ref.
func (r *Runner) tryBinding(ctx context.Context, f StepFailure, fc types.FailureContext, ref types.ActionRef, method healing.Method) (rungResult, error) {
	ref.TargetKey = targetKey(f, fc)
	value, err := r.runStep(ctx, f.Step, &ref)
	if err != nil {
		return rungResult{}, err
	}
	r.remember(f, fc, ref, method)
	return rungResult{binding: &ref, value: value, status: OutcomeRecovered}, nil
}

// tryCandidates tries each binding in order and returns the first that works.
func (r *Runner) tryCandidates(ctx context.Context, f StepFailure, fc types.FailureContext, refs []types.ActionRef, method healing.Method) (rungResult, error) {
	var errs []error
	tried := 0
	for _, ref := range refs {
		if ref.Selector == "" || ref.Selector == fc.Selector() {
			continue
		}
		tried++
		res, err := r.tryBinding(ctx, f, fc, ref, method)
		if err == nil {
			return res, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", ref.Selector, err))
		if ctx.Err() != nil {
			break
		}
	}
	if tried == 0 {
		return rungResult{}, fmt.Errorf("%w: no new candidates", errSkipped)
	}
	return rungResult{}, errors.Join(errs...)
}

// remember records a successful heal. The unchanged original binding is not a heal.
func (r *Runner) remember(f StepFailure, fc types.FailureContext, ref types.ActionRef, method healing.Method) {
	if r.memory == nil || f.Step.Op == recipe.StepGoto {
		return
	}
	if f.Action != nil && ref.Selector == f.Action.Selector && ref.Method == f.Action.Method {
		return
	}
	ev := healing.Evidence{
		OriginalSelector: fc.Selector(),
		HealedSelector:   ref.Selector,
		DOMContext:       budget.TrimToChars(fc.DOMSnippet, 500),
		PageTitle:        fc.Title,
		PageURL:          fc.URL,
		HealingMethod:    method,
	}
	if err := r.memory.Record(targetKey(f, fc), ref, fc.URL, ev); err != nil {
		r.logger.Warnf("healing memory: record %s: %v", targetKey(f, fc), err)
	}
}

// askHuman requests a checkpoint decision. A missing gate or a gate error is NOT_GO.
func (r *Runner) askHuman(ctx context.Context, stepID, message, reason string) bool {
	if r.gate == nil {
		r.logger.Warnf("checkpoint %s: no gate configured", stepID)
		return false
	}
	req := checkpoint.Request{
		Message: message,
		Reason:  reason,
		Domain:  r.recipe.Domain,
		StepID:  stepID,
	}
	if path, ok := r.screenshot(ctx, stepID, true); ok {
		req.ScreenshotRef = path
	}
	decision, err := r.gate.RequestApproval(ctx, req)
	if err != nil {
		r.logger.Warnf("checkpoint %s: %v", stepID, err)
		return false
	}
	return decision.Approved()
}

func (r *Runner) locateRequest(f StepFailure, fc types.FailureContext, canvas bool) llm.LocateRequest {
	req := llm.LocateRequest{
		TargetKey:      targetKey(f, fc),
		FailedSelector: fc.Selector(),
		URL:            fc.URL,
		Title:          fc.Title,
		DOMSnippet:     budget.TrimToChars(fc.DOMSnippet, r.domLimit),
		Canvas:         canvas,
		History:        r.history,
	}
	if fc.FailedAction != nil {
		req.Method = fc.FailedAction.Method
	}
	if entry, ok := r.recipe.Action(req.TargetKey); ok {
		req.Instruction = entry.Instruction
	}
	return req
}

// suggest asks the locator for a binding, charging the budget for the call.
func (r *Runner) suggest(ctx context.Context, req llm.LocateRequest) (types.ActionRef, error) {
	if r.locator == nil {
		return types.ActionRef{}, fmt.Errorf("%w: no locator", errSkipped)
	}
	if !r.guard.CanCallLLM() {
		return types.ActionRef{}, fmt.Errorf("%w: llm budget exhausted", errSkipped)
	}

	ref, usage, err := r.locator.SuggestSelector(ctx, req)
	r.guard.RecordLLMCall(usage.PromptChars)
	r.logger.Debugf("locator: %d prompt chars, %d tokens", usage.PromptChars, usage.PromptTokens)
	if err != nil {
		return types.ActionRef{}, err
	}
	r.history = append(r.history,
		llm.NewUserMessage(fmt.Sprintf("Locate %s (failed selector %s)", req.TargetKey, req.FailedSelector)),
		llm.NewAssistantMessage(fmt.Sprintf(`{"selector": %q, "method": %q}`, ref.Selector, ref.Method)))
	return ref, nil
}
