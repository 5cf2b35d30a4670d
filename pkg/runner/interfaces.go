package runner

import (
	"context"

	"github.com/entrhq/forge-recipe/pkg/llm"
	"github.com/entrhq/forge-recipe/pkg/types"
)

// Engine performs steps against the live page. pkg/browser.Engine implements it.
type Engine interface {
	Navigate(ctx context.Context, url string) error
	Act(ctx context.Context, ref types.ActionRef) error

	// Observe lists candidate bindings for instruction, limited to scope when
	// scope is a non-empty selector.
	Observe(ctx context.Context, instruction, scope string) ([]types.ActionRef, error)

	Extract(ctx context.Context, selector string) (string, error)
	Exists(ctx context.Context, selector string) (bool, error)
	Screenshot(ctx context.Context, path string) error
	CurrentURL() string
	CurrentTitle() string
	DOMSnippet(ctx context.Context, selector string, maxChars int) (string, error)
}

// PatchPlanner asks the authoring service for a fix. pkg/authoring.Client implements it.
type PatchPlanner interface {
	PlanForFailure(ctx context.Context, fc types.FailureContext) (types.PatchPayload, error)
}

// Locator asks a language model for a replacement binding. pkg/llm.Locator implements it.
type Locator interface {
	SuggestSelector(ctx context.Context, req llm.LocateRequest) (types.ActionRef, llm.Usage, error)
}

// CanvasSolver recovers steps whose target is drawn on a canvas.
// Each method reports ok=false when it has nothing to offer.
type CanvasSolver interface {
	// ParseNetwork reads the step's value from already-captured traffic.
	ParseNetwork(ctx context.Context, fc types.FailureContext) (value string, ok bool, err error)

	// LocateByCoordinates finds the target by pixel geometry and returns a
	// click_at binding.
	LocateByCoordinates(ctx context.Context, fc types.FailureContext) (ref types.ActionRef, ok bool, err error)
}
