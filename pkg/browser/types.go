package browser

import (
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session represents an active browser session with its associated resources.
type Session struct {
	// Name is the unique identifier for this session
	Name string

	// Browser is the Playwright browser instance
	Browser playwright.Browser

	// Context is the browser context (isolated session)
	Context playwright.BrowserContext

	// Page is the current active page
	Page playwright.Page

	Headless   bool
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// Timeout sets the default timeout for operations (in milliseconds)
	Timeout float64

	// StorageState optionally restores cookies and local storage from a file,
	// which lets recipes start behind a login.
	StorageState string
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// EngineOptions tunes how an Engine talks to its page.
type EngineOptions struct {
	// ActionTimeout bounds a single act/extract call, in milliseconds.
	ActionTimeout float64

	// WaitUntil is the navigation readiness state: load, domcontentloaded or networkidle.
	WaitUntil string

	// MaxCandidates caps what Observe returns.
	MaxCandidates int
}

// Default values for sessions and engine calls.
const (
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultActionTimeout  = 5000.0
	DefaultSnippetChars   = 8000
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxSessions    = 3
	DefaultMaxCandidates  = 5
	DefaultWaitUntil      = "domcontentloaded"
)

func (o EngineOptions) withDefaults() EngineOptions {
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = DefaultActionTimeout
	}
	if o.WaitUntil == "" {
		o.WaitUntil = DefaultWaitUntil
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	return o
}
