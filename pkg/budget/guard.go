package budget

import (
	"sync"
	"unicode/utf8"
)

// Usage is the consumption so far in the current run.
type Usage struct {
	LLMCalls              int `json:"llm_calls"`
	AuthoringCalls        int `json:"authoring_calls"`
	PromptChars           int `json:"prompt_chars"`
	Screenshots           int `json:"screenshots"`
	FailureScreenshots    int `json:"failure_screenshots"`
	CheckpointScreenshots int `json:"checkpoint_screenshots"`
}

// Guard tracks Usage against a Config. It never returns errors.
// Create one per run, or call Reset at the start of each run.
type Guard struct {
	cfg Config

	mu     sync.Mutex
	usage  Usage
	cursor int
}

// NewGuard returns a Guard enforcing cfg.
func NewGuard(cfg Config) *Guard {
	cfg.DowngradeOrder = append([]Downgrade(nil), cfg.DowngradeOrder...)
	return &Guard{cfg: cfg}
}

// Config returns the ceilings the guard enforces.
func (g *Guard) Config() Config {
	c := g.cfg
	c.DowngradeOrder = append([]Downgrade(nil), g.cfg.DowngradeOrder...)
	return c
}

// CanCallLLM reports whether another language-model call fits the budget.
func (g *Guard) CanCallLLM() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage.LLMCalls < g.cfg.MaxLLMCallsPerRun
}

// CanCallAuthoring reports whether another authoring-service call fits the budget.
func (g *Guard) CanCallAuthoring() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage.AuthoringCalls < g.cfg.MaxAuthoringServiceCallsPerRun
}

// CanTakeScreenshot checks the failure or checkpoint screenshot allowance.
func (g *Guard) CanTakeScreenshot(isCheckpoint bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if isCheckpoint {
		return g.usage.CheckpointScreenshots < g.cfg.MaxScreenshotPerCheckpoint
	}
	return g.usage.FailureScreenshots < g.cfg.MaxScreenshotPerFailure
}

// RecordLLMCall counts one call and its prompt size.
func (g *Guard) RecordLLMCall(promptChars int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usage.LLMCalls++
	if promptChars > 0 {
		g.usage.PromptChars += promptChars
	}
}

// RecordAuthoringCall counts one authoring-service call.
func (g *Guard) RecordAuthoringCall() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usage.AuthoringCalls++
}

// RecordScreenshot counts one screenshot against the matching allowance.
func (g *Guard) RecordScreenshot(isCheckpoint bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usage.Screenshots++
	if isCheckpoint {
		g.usage.CheckpointScreenshots++
	} else {
		g.usage.FailureScreenshots++
	}
}

// IsOverBudget reports whether any call or prompt ceiling has been reached.
func (g *Guard) IsOverBudget() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.overBudget()
}

func (g *Guard) overBudget() bool {
	return g.usage.LLMCalls >= g.cfg.MaxLLMCallsPerRun ||
		g.usage.AuthoringCalls >= g.cfg.MaxAuthoringServiceCallsPerRun ||
		g.usage.PromptChars >= g.cfg.MaxPromptChars
}

// DowngradeAction issues the next configured downgrade while the run is over
// budget. Each downgrade is issued at most once per run; calls made under
// budget or after the order is exhausted return false and do not advance.
func (g *Guard) DowngradeAction() (Downgrade, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.overBudget() || g.cursor >= len(g.cfg.DowngradeOrder) {
		return "", false
	}
	d := g.cfg.DowngradeOrder[g.cursor]
	g.cursor++
	return d, true
}

// Reset zeroes usage and the downgrade cursor for a new run.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usage = Usage{}
	g.cursor = 0
}

// Usage returns a snapshot of consumption.
func (g *Guard) Usage() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage
}

// TrimDOM cuts snippet to MaxDOMSnippetChars runes. A zero limit disables trimming.
func (g *Guard) TrimDOM(snippet string) string {
	return TrimToChars(snippet, g.cfg.MaxDOMSnippetChars)
}

// TrimToChars cuts s to at most limit runes without splitting a character.
func TrimToChars(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
