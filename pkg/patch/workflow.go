package patch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/entrhq/forge-recipe/pkg/checkpoint"
	"github.com/entrhq/forge-recipe/pkg/recipe"
	"github.com/entrhq/forge-recipe/pkg/types"
)

// Workflow validates, gates, applies and persists patches.
type Workflow struct {
	store *recipe.Store
	gate  checkpoint.Gate
	now   func() time.Time

	skipValidation bool
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock overrides the time source used for ObservedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		w.now = now
	}
}

// WithoutValidation applies payloads that were already validated upstream.
func WithoutValidation() Option {
	return func(w *Workflow) {
		w.skipValidation = true
	}
}

// NewWorkflow creates a Workflow. A nil gate rejects every major patch.
// A nil store skips persistence.
func NewWorkflow(store *recipe.Store, gate checkpoint.Gate, opts ...Option) *Workflow {
	w := &Workflow{store: store, gate: gate, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ApplyAndVersionUp applies payload to a copy of r and saves it as the next version.
// r itself is never modified. Major payloads are applied only after a GO from
// the gate; any other answer returns ErrRejected and nothing is written.
func (w *Workflow) ApplyAndVersionUp(ctx context.Context, r *recipe.Recipe, payload types.PatchPayload) (*recipe.Recipe, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil recipe", ErrTargetMissing)
	}
	if !w.skipValidation {
		if err := Validate(payload); err != nil {
			return nil, err
		}
	}
	if len(payload.Patch) == 0 {
		return nil, ErrEmptyPayload
	}

	next, err := recipe.NextVersion(r.Version)
	if err != nil {
		return nil, err
	}

	severity := ClassifyPatch(payload)
	if severity == types.SeverityMajor {
		if err := w.approve(ctx, r, payload); err != nil {
			return nil, err
		}
	}

	updated := r.Clone()
	now := w.now()
	for i, op := range payload.Patch {
		if err := Apply(updated, op, now); err != nil {
			return nil, fmt.Errorf("patch[%d]: %w", i, err)
		}
	}
	updated.Version = next
	updated.Workflow.Version = next

	if w.store != nil {
		if err := w.store.Save(updated); err != nil {
			return nil, fmt.Errorf("persist %s: %w", updated, err)
		}
	}
	slog.Info("patch: recipe versioned up",
		"recipe", r.String(), "version", next, "severity", severity, "ops", len(payload.Patch))
	return updated, nil
}

func (w *Workflow) approve(ctx context.Context, r *recipe.Recipe, payload types.PatchPayload) error {
	if w.gate == nil {
		return fmt.Errorf("%w: no checkpoint gate configured", ErrRejected)
	}

	req := checkpoint.Request{
		Message: fmt.Sprintf("Apply major patch to %s: %s", r, payload.Reason),
		Reason:  payload.Reason,
		Domain:  r.Domain,
	}
	for _, op := range payload.Patch {
		if op.Step != "" {
			req.StepID = op.Step
			break
		}
	}
	if detail, err := json.Marshal(payload); err == nil {
		req.Detail = string(detail)
	}

	decision, err := w.gate.RequestApproval(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if !decision.Approved() {
		return fmt.Errorf("%w: decision %s", ErrRejected, decision)
	}
	return nil
}
