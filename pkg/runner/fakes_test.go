package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/forge-recipe/pkg/checkpoint"
	"github.com/entrhq/forge-recipe/pkg/llm"
	"github.com/entrhq/forge-recipe/pkg/recipe"
	"github.com/entrhq/forge-recipe/pkg/types"
)

// fakeEngine acts successfully only on selectors listed in working.
type fakeEngine struct {
	mu sync.Mutex

	url     string
	title   string
	working map[string]bool
	// refuse maps a selector to the error returned for the given method.
	refuse     map[string]map[string]error
	text       map[string]string
	extractErr map[string]error
	visible    map[string]bool
	candidates []types.ActionRef

	acts      []types.ActionRef
	navigated []string
}

func newFakeEngine(working ...string) *fakeEngine {
	e := &fakeEngine{
		url:        "https://shop.example.com/cart",
		title:      "Cart",
		working:    make(map[string]bool),
		refuse:     make(map[string]map[string]error),
		text:       make(map[string]string),
		extractErr: make(map[string]error),
		visible:    make(map[string]bool),
	}
	for _, s := range working {
		e.working[s] = true
	}
	return e
}

func (e *fakeEngine) Navigate(_ context.Context, url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.navigated = append(e.navigated, url)
	e.url = url
	return nil
}

func (e *fakeEngine) Act(_ context.Context, ref types.ActionRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.acts = append(e.acts, ref)
	if byMethod, ok := e.refuse[ref.Selector]; ok {
		if err, ok := byMethod[ref.Method]; ok {
			return err
		}
	}
	if ref.Method == "click_at" || e.working[ref.Selector] {
		return nil
	}
	return fmt.Errorf("Timeout 5000ms exceeded waiting for locator(%q)", ref.Selector)
}

func (e *fakeEngine) Observe(context.Context, string, string) ([]types.ActionRef, error) {
	return e.candidates, nil
}

func (e *fakeEngine) Extract(_ context.Context, selector string) (string, error) {
	if err, ok := e.extractErr[selector]; ok {
		return "", err
	}
	if text, ok := e.text[selector]; ok {
		return text, nil
	}
	return "", fmt.Errorf("Timeout 5000ms exceeded waiting for locator(%q)", selector)
}

func (e *fakeEngine) Exists(_ context.Context, selector string) (bool, error) {
	return e.visible[selector], nil
}

func (e *fakeEngine) Screenshot(context.Context, string) error { return nil }
func (e *fakeEngine) CurrentURL() string                      { return e.url }
func (e *fakeEngine) CurrentTitle() string                    { return e.title }

func (e *fakeEngine) DOMSnippet(context.Context, string, int) (string, error) {
	return `<button id="pay-2">Pay</button>`, nil
}

func (e *fakeEngine) actedOn() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.acts))
	for i, a := range e.acts {
		out[i] = a.Method + " " + a.Selector
	}
	return out
}

type fakePlanner struct {
	payload types.PatchPayload
	err     error
	calls   int
	got     types.FailureContext
}

func (p *fakePlanner) PlanForFailure(_ context.Context, fc types.FailureContext) (types.PatchPayload, error) {
	p.calls++
	p.got = fc
	return p.payload, p.err
}

type fakeLocator struct {
	ref   types.ActionRef
	err   error
	calls []llm.LocateRequest
}

func (l *fakeLocator) SuggestSelector(_ context.Context, req llm.LocateRequest) (types.ActionRef, llm.Usage, error) {
	l.calls = append(l.calls, req)
	return l.ref, llm.Usage{PromptChars: 100, PromptTokens: 25}, l.err
}

type fakeCanvas struct {
	value string
	ref   types.ActionRef
}

func (c *fakeCanvas) ParseNetwork(context.Context, types.FailureContext) (string, bool, error) {
	return c.value, c.value != "", nil
}

func (c *fakeCanvas) LocateByCoordinates(context.Context, types.FailureContext) (types.ActionRef, bool, error) {
	return c.ref, c.ref.Method != "", nil
}

// recordingGate answers every request with decision.
type recordingGate struct {
	decision checkpoint.Decision
	requests []checkpoint.Request
}

func (g *recordingGate) RequestApproval(_ context.Context, req checkpoint.Request) (checkpoint.Decision, error) {
	g.requests = append(g.requests, req)
	return g.decision, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []*types.RecoveryEvent
}

func (l *eventLog) emit(e *types.RecoveryEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofType(t types.RecoveryEventType) []*types.RecoveryEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*types.RecoveryEvent
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

var errNotVisible = errors.New("element is not visible")

func testRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		Domain:  "shop.example.com",
		Flow:    "checkout",
		Version: "v001",
		Workflow: recipe.Workflow{
			ID: "checkout",
			Steps: []recipe.WorkflowStep{
				{ID: "open", Op: recipe.StepGoto, Args: map[string]interface{}{"url": "https://shop.example.com/cart"}},
				{ID: "pay", Op: recipe.StepActCached, TargetKey: "pay_button"},
				{ID: "total", Op: recipe.StepExtract, TargetKey: "total", Args: map[string]interface{}{"as": "order_total"}},
			},
		},
		Actions: map[string]recipe.ActionEntry{
			"pay_button": {
				Instruction: "click the pay button",
				Preferred:   types.ActionRef{Selector: "#pay", Description: "Pay", Method: "click"},
			},
		},
		Selectors: map[string]recipe.SelectorEntry{
			"pay_button": {Primary: "#pay", Fallbacks: []string{"[data-test=pay]"}, Strategy: "css"},
			"total":      {Primary: ".total", Strategy: "css"},
		},
	}
}
