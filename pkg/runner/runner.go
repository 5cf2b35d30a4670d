// Package runner executes recipes and walks the recovery ladder when a step fails.
//
// A Runner owns the per-run state the recovery engine needs: the budget guard
// (reset at the start of every Run), the recipe version currently in force
// (patches replace it mid-run), the language model history for the failure
// being recovered, and the downgrades issued so far.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/forge-recipe/pkg/budget"
	"github.com/entrhq/forge-recipe/pkg/checkpoint"
	"github.com/entrhq/forge-recipe/pkg/healing"
	"github.com/entrhq/forge-recipe/pkg/llm"
	"github.com/entrhq/forge-recipe/pkg/logging"
	"github.com/entrhq/forge-recipe/pkg/patch"
	"github.com/entrhq/forge-recipe/pkg/recipe"
	"github.com/entrhq/forge-recipe/pkg/types"
)

// ErrAborted is returned when a recovery ladder ends without recovering the step.
var ErrAborted = errors.New("runner: run aborted")

// maxWait caps wait steps.
const maxWait = 30 * time.Second

// Runner runs recipes on an Engine.
type Runner struct {
	engine  Engine
	guard   *budget.Guard
	memory  *healing.Memory
	patches *patch.Workflow
	planner PatchPlanner
	locator Locator
	canvas  CanvasSolver
	gate    checkpoint.Gate
	emit    types.EventEmitter
	logger  logging.Logger

	minConfidence float64
	screenshotDir string

	// per-run state, reset by Run
	recipe          *recipe.Recipe
	history         []*llm.Message
	domLimit        int
	narrowObserve   bool
	forceCheckpoint bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithHealingMemory enables the healing_memory rung and records successful heals.
func WithHealingMemory(m *healing.Memory, minConfidence float64) Option {
	return func(r *Runner) {
		r.memory = m
		if minConfidence > 0 {
			r.minConfidence = minConfidence
		}
	}
}

// WithPatchWorkflow enables the authoring_patch rung.
func WithPatchWorkflow(planner PatchPlanner, w *patch.Workflow) Option {
	return func(r *Runner) {
		r.planner = planner
		r.patches = w
	}
}

// WithLocator lets observe_refresh and canvas_llm_fallback consult a language model.
func WithLocator(l Locator) Option {
	return func(r *Runner) {
		r.locator = l
	}
}

// WithCanvasSolver enables the network_parse and cv_coordinate rungs.
func WithCanvasSolver(s CanvasSolver) Option {
	return func(r *Runner) {
		r.canvas = s
	}
}

// WithCheckpointGate sets the gate used by checkpoint steps and rungs.
// Without one every checkpoint is answered NOT_GO.
func WithCheckpointGate(g checkpoint.Gate) Option {
	return func(r *Runner) {
		r.gate = g
	}
}

// WithEventEmitter receives recovery events.
func WithEventEmitter(emit types.EventEmitter) Option {
	return func(r *Runner) {
		r.emit = emit
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithScreenshotDir stores failure and checkpoint screenshots under dir.
// Without it no screenshots are taken.
func WithScreenshotDir(dir string) Option {
	return func(r *Runner) {
		r.screenshotDir = dir
	}
}

// New creates a Runner. guard may be nil, in which case the default budget applies.
func New(engine Engine, guard *budget.Guard, opts ...Option) *Runner {
	if guard == nil {
		guard = budget.NewGuard(budget.DefaultConfig())
	}
	r := &Runner{
		engine:        engine,
		guard:         guard,
		logger:        logging.Nop(),
		minConfidence: healing.DefaultMinConfidence,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StepResult reports how one step finished.
type StepResult struct {
	StepID string

	// Outcome is set when the step needed recovery.
	Outcome *Outcome
}

// Result summarizes a run.
type Result struct {
	// Recipe is the version in force at the end of the run.
	Recipe *recipe.Recipe

	// Extracted maps extract step ids (or their "as" argument) to values.
	Extracted map[string]string

	Steps []StepResult
	Usage budget.Usage
}

// Recovered counts steps that needed the recovery ladder.
func (res Result) Recovered() int {
	n := 0
	for _, s := range res.Steps {
		if s.Outcome != nil {
			n++
		}
	}
	return n
}

// Run executes every step of rec in order, recovering failures as they occur.
// The returned Result is populated up to the failing step when err is non-nil.
func (r *Runner) Run(ctx context.Context, rec *recipe.Recipe) (result Result, err error) {
	r.guard.Reset()
	r.recipe = rec
	r.history = nil
	r.domLimit = r.guard.Config().MaxDOMSnippetChars
	r.narrowObserve = false
	r.forceCheckpoint = false

	result = Result{Recipe: rec, Extracted: make(map[string]string)}
	defer func() {
		result.Usage = r.guard.Usage()
	}()

	r.logger.Infof("run %s: %d steps", rec, len(rec.Workflow.Steps))
	for i := range rec.Workflow.Steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		// A patch may have replaced the recipe; step order never changes.
		step := r.recipe.Workflow.Steps[i]
		r.emitEvent(types.NewStepStartEvent(step.ID))

		value, err := r.runStep(ctx, step, nil)
		if err == nil {
			r.storeValue(result.Extracted, step, value)
			result.Steps = append(result.Steps, StepResult{StepID: step.ID})
			r.emitEvent(types.NewStepSucceededEvent(step.ID))
			continue
		}
		if errors.Is(err, ErrAborted) || ctx.Err() != nil {
			result.Recipe = r.recipe
			return result, err
		}

		r.logger.Warnf("step %s failed: %v", step.ID, err)
		outcome, rerr := r.Recover(ctx, StepFailure{Step: step, Err: err, Action: r.bindingFor(step)})
		result.Recipe = r.recipe
		result.Steps = append(result.Steps, StepResult{StepID: step.ID, Outcome: &outcome})
		if rerr != nil {
			return result, rerr
		}
		r.storeValue(result.Extracted, step, outcome.Value)
	}
	result.Recipe = r.recipe
	return result, nil
}

// Recipe returns the recipe version currently in force.
func (r *Runner) Recipe() *recipe.Recipe {
	return r.recipe
}

// runStep performs step once. A non-nil override replaces the recorded binding.
func (r *Runner) runStep(ctx context.Context, step recipe.WorkflowStep, override *types.ActionRef) (string, error) {
	var value string
	switch step.Op {
	case recipe.StepGoto:
		url := stringArg(step.Args, "url")
		if url == "" {
			return "", fmt.Errorf("goto step %s has no url", step.ID)
		}
		if err := r.engine.Navigate(ctx, url); err != nil {
			return "", err
		}

	case recipe.StepActCached, recipe.StepActTemplate, recipe.StepChoose:
		ref := override
		if ref == nil {
			resolved, err := r.resolveAction(ctx, step)
			if err != nil {
				return "", err
			}
			ref = &resolved
		}
		if err := r.engine.Act(ctx, *ref); err != nil {
			return "", err
		}

	case recipe.StepExtract:
		selector := ""
		if override != nil {
			selector = override.Selector
		} else if ref := r.bindingFor(step); ref != nil {
			selector = ref.Selector
		}
		if selector == "" {
			return "", fmt.Errorf("extract step %s: target %q not found in recipe", step.ID, step.TargetKey)
		}
		text, err := r.engine.Extract(ctx, selector)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("extraction empty for %s", selector)
		}
		value = text

	case recipe.StepWait:
		if err := wait(ctx, durationArg(step.Args, "ms")); err != nil {
			return "", err
		}

	case recipe.StepCheckpoint:
		msg := stringArg(step.Args, "message")
		if msg == "" {
			msg = fmt.Sprintf("Checkpoint %s reached. Continue?", step.ID)
		}
		if !r.askHuman(ctx, step.ID, msg, "recipe checkpoint") {
			return "", fmt.Errorf("%w: checkpoint %s declined", ErrAborted, step.ID)
		}

	default:
		return "", fmt.Errorf("step %s: unsupported op %q", step.ID, step.Op)
	}

	if err := r.checkExpectations(ctx, step); err != nil {
		return "", err
	}
	return value, nil
}

// resolveAction picks the binding for an action step.
func (r *Runner) resolveAction(ctx context.Context, step recipe.WorkflowStep) (types.ActionRef, error) {
	switch step.Op {
	case recipe.StepActTemplate:
		instruction := stringArg(step.Args, "instruction")
		candidates, err := r.engine.Observe(ctx, instruction, "")
		if err != nil {
			return types.ActionRef{}, err
		}
		if len(candidates) == 0 {
			return types.ActionRef{}, fmt.Errorf("no element found for %q", instruction)
		}
		return withStepArgs(candidates[0], step), nil

	case recipe.StepChoose:
		return r.choose(ctx, step)
	}

	if ref := r.bindingFor(step); ref != nil {
		return *ref, nil
	}
	return types.ActionRef{}, fmt.Errorf("act step %s: target %q not found in recipe", step.ID, step.TargetKey)
}

// bindingFor returns the recorded binding for step's target, or nil.
func (r *Runner) bindingFor(step recipe.WorkflowStep) *types.ActionRef {
	if step.TargetKey == "" {
		return nil
	}
	if entry, ok := r.recipe.Action(step.TargetKey); ok && entry.Preferred.Selector != "" {
		ref := withStepArgs(entry.Preferred.Clone(), step)
		return &ref
	}
	if sel, ok := r.recipe.Selector(step.TargetKey); ok && sel.Primary != "" {
		method := "click"
		if step.Op == recipe.StepExtract {
			method = "extract"
		}
		ref := withStepArgs(types.ActionRef{Selector: sel.Primary, Method: method}, step)
		return &ref
	}
	return nil
}

// withStepArgs stamps the target key and a step-level value onto ref.
func withStepArgs(ref types.ActionRef, step recipe.WorkflowStep) types.ActionRef {
	ref.TargetKey = step.TargetKey
	if v := stringArg(step.Args, "value"); v != "" {
		ref.Arguments = []string{v}
	}
	return ref
}

func (r *Runner) checkExpectations(ctx context.Context, step recipe.WorkflowStep) error {
	for _, exp := range step.Expect {
		ok, err := r.expectationHolds(ctx, exp)
		if err != nil {
			return fmt.Errorf("expectation %s %q: %w", exp.Kind, exp.Value, err)
		}
		if !ok {
			return fmt.Errorf("expectation %s %q not met", exp.Kind, exp.Value)
		}
	}
	return nil
}

func (r *Runner) expectationHolds(ctx context.Context, exp recipe.Expectation) (bool, error) {
	switch exp.Kind {
	case recipe.ExpectURLContains:
		return strings.Contains(r.engine.CurrentURL(), exp.Value), nil
	case recipe.ExpectTitleContains:
		return strings.Contains(r.engine.CurrentTitle(), exp.Value), nil
	case recipe.ExpectSelectorVisible:
		return r.engine.Exists(ctx, exp.Value)
	case recipe.ExpectTextContains:
		body, err := r.engine.Extract(ctx, "body")
		if err != nil {
			return false, err
		}
		return strings.Contains(body, exp.Value), nil
	}
	return false, fmt.Errorf("unknown expectation kind %q", exp.Kind)
}

func (r *Runner) storeValue(into map[string]string, step recipe.WorkflowStep, value string) {
	if step.Op != recipe.StepExtract || value == "" {
		return
	}
	key := stringArg(step.Args, "as")
	if key == "" {
		key = step.ID
	}
	into[key] = value
}

func (r *Runner) emitEvent(event *types.RecoveryEvent) {
	if r.emit != nil {
		r.emit(event)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if d > maxWait {
		d = maxWait
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		if v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

func durationArg(args map[string]interface{}, key string) time.Duration {
	switch v := args[key].(type) {
	case float64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	}
	return 0
}
