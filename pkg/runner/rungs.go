package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/forge-recipe/pkg/healing"
	"github.com/entrhq/forge-recipe/pkg/recovery"
	"github.com/entrhq/forge-recipe/pkg/types"
)

// errAuthoringUnavailable marks a planner failure that classifies as an
// authoring-service timeout.
var errAuthoringUnavailable = errors.New("authoring service unavailable")

// methodAlternatives lists interactions worth trying when an element refuses
// the recorded one.
var methodAlternatives = map[string][]string{
	"click": {"focus", "press"},
	"fill":  {"type", "press"},
	"type":  {"fill", "press"},
	"press": {"click", "fill"},
	"focus": {"click"},
}

// retry re-runs the step as recorded. For NotActionable failures the same
// element is then tried with alternative methods.
func (r *Runner) retry(ctx context.Context, f StepFailure, fc types.FailureContext) (rungResult, error) {
	value, err := r.runStep(ctx, f.Step, f.Action)
	if err == nil {
		res := rungResult{value: value, status: OutcomeRecovered}
		if f.Action != nil {
			ref := f.Action.Clone()
			res.binding = &ref
		}
		return res, nil
	}
	if fc.ErrorKind != types.ErrorKindNotActionable || f.Action == nil {
		return rungResult{}, err
	}

	errs := []error{err}
	for _, method := range methodAlternatives[f.Action.Method] {
		ref := f.Action.Clone()
		ref.Method = method
		if method == "press" && len(ref.Arguments) == 0 {
			ref.Arguments = []string{"Enter"}
		}
		res, altErr := r.tryBinding(ctx, f, fc, ref, healing.MethodRetry)
		if altErr == nil {
			return res, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", method, altErr))
	}
	return rungResult{}, errors.Join(errs...)
}

// observeRefresh re-discovers the target on the live page, falling back to
// the language model when local discovery finds nothing that works.
func (r *Runner) observeRefresh(ctx context.Context, f StepFailure, fc types.FailureContext) (rungResult, error) {
	if !needsBinding(f.Step) {
		return rungResult{}, fmt.Errorf("%w: step has no target", errSkipped)
	}

	instruction := targetKey(f, fc)
	if entry, ok := r.recipe.Action(instruction); ok && entry.Instruction != "" {
		instruction = entry.Instruction
	}
	scope := ""
	if r.narrowObserve {
		scope = fc.Selector()
	}

	var observeErr error
	candidates, err := r.engine.Observe(ctx, instruction, scope)
	if err != nil {
		observeErr = err
	} else {
		res, tryErr := r.tryCandidates(ctx, f, fc, r.adaptCandidates(f, candidates), healing.MethodObserveRefresh)
		if tryErr == nil {
			return res, nil
		}
		observeErr = tryErr
	}

	ref, err := r.suggest(ctx, r.locateRequest(f, fc, false))
	if err != nil {
		if errors.Is(err, errSkipped) {
			return rungResult{}, observeErr
		}
		return rungResult{}, errors.Join(observeErr, err)
	}
	res, err := r.tryCandidates(ctx, f, fc, r.adaptCandidates(f, []types.ActionRef{ref}), healing.MethodLLM)
	if err != nil {
		return rungResult{}, errors.Join(observeErr, err)
	}
	return res, nil
}

// adaptCandidates carries the failed action's method over to each candidate,
// and its arguments where the candidate has none.
func (r *Runner) adaptCandidates(f StepFailure, refs []types.ActionRef) []types.ActionRef {
	out := make([]types.ActionRef, 0, len(refs))
	for _, ref := range refs {
		if f.Action != nil {
			if f.Action.Method != "" {
				ref.Method = f.Action.Method
			}
			if len(ref.Arguments) == 0 {
				ref.Arguments = append([]string(nil), f.Action.Arguments...)
			}
		}
		out = append(out, ref)
	}
	return out
}

// selectorFallback tries the recipe's recorded alternates for the target.
func (r *Runner) selectorFallback(ctx context.Context, f StepFailure, fc types.FailureContext) (rungResult, error) {
	if !needsBinding(f.Step) {
		return rungResult{}, fmt.Errorf("%w: step has no target", errSkipped)
	}
	entry, ok := r.recipe.Selector(targetKey(f, fc))
	if !ok {
		return rungResult{}, fmt.Errorf("%w: no recorded selectors", errSkipped)
	}

	refs := make([]types.ActionRef, 0, len(entry.Candidates()))
	for _, sel := range entry.Candidates() {
		ref := types.ActionRef{Selector: sel, Method: "click"}
		if f.Action != nil {
			ref = f.Action.Clone()
			ref.Selector = sel
		}
		refs = append(refs, ref)
	}
	return r.tryCandidates(ctx, f, fc, refs, healing.MethodSelectorFallback)
}

// healingMemory replays a remembered binding. A replay that fails counts
// against every record for the target on this page.
func (r *Runner) healingMemory(ctx context.Context, f StepFailure, fc types.FailureContext) (rungResult, error) {
	if r.memory == nil {
		return rungResult{}, fmt.Errorf("%w: no healing memory", errSkipped)
	}
	if !needsBinding(f.Step) {
		return rungResult{}, fmt.Errorf("%w: step has no target", errSkipped)
	}

	key := targetKey(f, fc)
	ref, ok := r.memory.FindMatch(key, fc.URL, r.minConfidence)
	if !ok {
		return rungResult{}, fmt.Errorf("%w: no confident match for %s", errSkipped, key)
	}

	method := healing.MethodObserveRefresh
	for _, rec := range r.memory.Records(key) {
		if rec.Action.Selector == ref.Selector && rec.Evidence.HealingMethod != "" {
			method = rec.Evidence.HealingMethod
			break
		}
	}

	if f.Action != nil && len(ref.Arguments) == 0 {
		ref.Arguments = append([]string(nil), f.Action.Arguments...)
	}
	ref.TargetKey = key
	value, err := r.runStep(ctx, f.Step, &ref)
	if err != nil {
		if ferr := r.memory.RecordFailure(key, fc.URL); ferr != nil {
			r.logger.Warnf("healing memory: record failure %s: %v", key, ferr)
		}
		return rungResult{}, err
	}
	r.remember(f, fc, ref, method)
	return rungResult{binding: &ref, value: value, status: OutcomeRecovered}, nil
}

// authoringPatch asks the authoring service for a patch, versions the recipe
// up and re-runs the step against the new version.
func (r *Runner) authoringPatch(ctx context.Context, f StepFailure, fc types.FailureContext) (rungResult, error) {
	if r.planner == nil || r.patches == nil {
		return rungResult{}, fmt.Errorf("%w: no authoring service", errSkipped)
	}
	if !r.guard.CanCallAuthoring() {
		return rungResult{}, fmt.Errorf("%w: authoring budget exhausted", errSkipped)
	}

	r.guard.RecordAuthoringCall()
	payload, err := r.planner.PlanForFailure(ctx, fc)
	if err != nil {
		kind := recovery.Classify(err, recovery.ClassifyContext{Message: "authoring plan-patch", SourceURL: fc.URL})
		if kind == types.ErrorKindAuthoringServiceTimeout {
			return rungResult{}, fmt.Errorf("%w: %w", errAuthoringUnavailable, err)
		}
		return rungResult{}, err
	}
	if len(payload.Patch) == 0 {
		return rungResult{}, fmt.Errorf("authoring service proposed no patch: %s", payload.Reason)
	}

	updated, err := r.patches.ApplyAndVersionUp(ctx, r.recipe, payload)
	if err != nil {
		return rungResult{}, err
	}
	r.recipe = updated
	r.emitEvent(types.NewPatchAppliedEvent(f.Step.ID, updated.Version))

	step, err := updated.Step(f.Step.ID)
	if err != nil {
		return rungResult{}, err
	}
	patched := f
	patched.Step = *step

	var ref *types.ActionRef
	if needsBinding(*step) {
		ref = r.bindingFor(*step)
	}
	value, err := r.runStep(ctx, *step, ref)
	if err != nil {
		return rungResult{}, fmt.Errorf("patched step still fails: %w", err)
	}
	if ref != nil {
		r.remember(patched, fc, *ref, healing.MethodAuthoringPatch)
	}
	return rungResult{binding: ref, value: value, status: OutcomeRecovered}, nil
}

// checkpoint hands the failure to a human. GO means the human fixed the page.
func (r *Runner) checkpoint(ctx context.Context, f StepFailure, fc types.FailureContext) (rungResult, error) {
	msg := fmt.Sprintf("Step %s failed (%s) on %s. Fix it in the browser and approve to continue.",
		f.Step.ID, fc.ErrorKind, fc.URL)
	if !r.askHuman(ctx, f.Step.ID, msg, fmt.Sprint(f.Err)) {
		return rungResult{}, errors.New("checkpoint declined")
	}
	return rungResult{status: OutcomeApproved}, nil
}

func (r *Runner) networkParse(ctx context.Context, f StepFailure, fc types.FailureContext) (rungResult, error) {
	if r.canvas == nil {
		return rungResult{}, fmt.Errorf("%w: no canvas solver", errSkipped)
	}
	value, ok, err := r.canvas.ParseNetwork(ctx, fc)
	if err != nil {
		return rungResult{}, err
	}
	if !ok {
		return rungResult{}, errors.New("no usable network response")
	}
	return rungResult{value: value, status: OutcomeRecovered}, nil
}

func (r *Runner) cvCoordinate(ctx context.Context, f StepFailure, fc types.FailureContext) (rungResult, error) {
	if r.canvas == nil {
		return rungResult{}, fmt.Errorf("%w: no canvas solver", errSkipped)
	}
	ref, ok, err := r.canvas.LocateByCoordinates(ctx, fc)
	if err != nil {
		return rungResult{}, err
	}
	if !ok {
		return rungResult{}, errors.New("target not located on canvas")
	}
	return r.actCanvas(ctx, f, fc, ref, healing.MethodCanvas)
}

func (r *Runner) canvasLLM(ctx context.Context, f StepFailure, fc types.FailureContext) (rungResult, error) {
	ref, err := r.suggest(ctx, r.locateRequest(f, fc, true))
	if err != nil {
		return rungResult{}, err
	}
	return r.actCanvas(ctx, f, fc, ref, healing.MethodLLM)
}

// actCanvas performs a canvas binding directly; coordinates cannot be
// extracted from, so expectations are the only check.
func (r *Runner) actCanvas(ctx context.Context, f StepFailure, fc types.FailureContext, ref types.ActionRef, method healing.Method) (rungResult, error) {
	ref.TargetKey = targetKey(f, fc)
	if err := r.engine.Act(ctx, ref); err != nil {
		return rungResult{}, err
	}
	if err := r.checkExpectations(ctx, f.Step); err != nil {
		return rungResult{}, err
	}
	r.remember(f, fc, ref, method)
	return rungResult{binding: &ref, status: OutcomeRecovered}, nil
}
