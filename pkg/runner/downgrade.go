package runner

import (
	"github.com/entrhq/forge-recipe/pkg/budget"
	"github.com/entrhq/forge-recipe/pkg/types"
)

// minDOMLimit is the smallest excerpt trim_dom shrinks to.
const minDOMLimit = 500

// applyDowngrade pulls the next downgrade from the guard, if any, and adjusts
// the run to it.
func (r *Runner) applyDowngrade(stepID string) {
	d, ok := r.guard.DowngradeAction()
	if !ok {
		return
	}

	switch d {
	case budget.DowngradeTrimDOM:
		if r.domLimit <= 0 {
			r.domLimit = budget.DefaultConfig().MaxDOMSnippetChars
		}
		r.domLimit /= 2
		if r.domLimit < minDOMLimit {
			r.domLimit = minDOMLimit
		}
	case budget.DowngradeDropHistory:
		r.history = nil
	case budget.DowngradeObserveScopeNarrow:
		r.narrowObserve = true
	case budget.DowngradeRequireHumanCheckpoint:
		r.forceCheckpoint = true
	}

	r.logger.Infof("budget exceeded at step %s: %s", stepID, d)
	r.emitEvent(types.NewDowngradeEvent(stepID, string(d)))
}
