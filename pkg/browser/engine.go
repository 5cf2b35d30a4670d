package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/entrhq/forge-recipe/pkg/types"
	"github.com/playwright-community/playwright-go"
)

// ErrUnsupportedMethod is returned by Act for methods the engine cannot perform.
var ErrUnsupportedMethod = errors.New("browser: unsupported action method")

// Engine performs recipe steps on a single session's page.
type Engine struct {
	session *Session
	opts    EngineOptions
}

// NewEngine binds an Engine to session.
func NewEngine(session *Session, opts EngineOptions) *Engine {
	return &Engine{session: session, opts: opts.withDefaults()}
}

func (e *Engine) page(ctx context.Context) (playwright.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.session.LastUsedAt = time.Now()
	return e.session.Page, nil
}

// Navigate loads url and waits for the configured readiness state.
func (e *Engine) Navigate(ctx context.Context, url string) error {
	page, err := e.page(ctx)
	if err != nil {
		return err
	}
	waitUntil := playwright.WaitUntilState(e.opts.WaitUntil)
	if _, err := page.Goto(url, playwright.PageGotoOptions{WaitUntil: &waitUntil}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Act performs ref.Method on ref.Selector. The click_at method takes page
// coordinates from ref.Arguments and needs no selector.
func (e *Engine) Act(ctx context.Context, ref types.ActionRef) error {
	page, err := e.page(ctx)
	if err != nil {
		return err
	}

	method := strings.ToLower(ref.Method)
	if method == "" {
		method = "click"
	}
	if method == "click_at" {
		return e.clickAt(page, ref.Arguments)
	}
	if ref.Selector == "" {
		return fmt.Errorf("%s: no selector", method)
	}

	timeout := playwright.Float(e.opts.ActionTimeout)
	loc := page.Locator(ref.Selector).First()
	arg := firstArgument(ref.Arguments)

	switch method {
	case "click":
		err = loc.Click(playwright.LocatorClickOptions{Timeout: timeout})
	case "dblclick":
		err = loc.Dblclick(playwright.LocatorDblclickOptions{Timeout: timeout})
	case "fill":
		err = loc.Fill(arg, playwright.LocatorFillOptions{Timeout: timeout})
	case "type":
		err = loc.PressSequentially(arg, playwright.LocatorPressSequentiallyOptions{Timeout: timeout})
	case "press":
		if arg == "" {
			arg = "Enter"
		}
		err = loc.Press(arg, playwright.LocatorPressOptions{Timeout: timeout})
	case "focus":
		err = loc.Focus(playwright.LocatorFocusOptions{Timeout: timeout})
	case "hover":
		err = loc.Hover(playwright.LocatorHoverOptions{Timeout: timeout})
	case "check":
		err = loc.Check(playwright.LocatorCheckOptions{Timeout: timeout})
	case "uncheck":
		err = loc.Uncheck(playwright.LocatorUncheckOptions{Timeout: timeout})
	case "select":
		_, err = loc.SelectOption(playwright.SelectOptionValues{Values: &[]string{arg}},
			playwright.LocatorSelectOptionOptions{Timeout: timeout})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedMethod, ref.Method)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, ref.Selector, err)
	}
	return nil
}

func (e *Engine) clickAt(page playwright.Page, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("click_at: need x and y, got %d arguments", len(args))
	}
	x, errX := strconv.ParseFloat(args[0], 64)
	y, errY := strconv.ParseFloat(args[1], 64)
	if errX != nil || errY != nil {
		return fmt.Errorf("click_at: invalid coordinates %q, %q", args[0], args[1])
	}
	if err := page.Mouse().Click(x, y); err != nil {
		return fmt.Errorf("click_at %.0f,%.0f: %w", x, y, err)
	}
	return nil
}

// Observe lists candidate bindings for instruction. A non-empty scope limits
// the search to the first element matching that selector.
func (e *Engine) Observe(ctx context.Context, instruction, scope string) ([]types.ActionRef, error) {
	markup, err := e.markup(ctx, scope)
	if err != nil {
		return nil, err
	}
	candidates, err := FindCandidates(markup, instruction, e.opts.MaxCandidates)
	if err != nil {
		return nil, err
	}
	refs := make([]types.ActionRef, len(candidates))
	for i, c := range candidates {
		refs[i] = c.Action
	}
	return refs, nil
}

// Extract returns the trimmed inner text of the first element matching selector.
func (e *Engine) Extract(ctx context.Context, selector string) (string, error) {
	page, err := e.page(ctx)
	if err != nil {
		return "", err
	}
	text, err := page.Locator(selector).First().InnerText(playwright.LocatorInnerTextOptions{
		Timeout: playwright.Float(e.opts.ActionTimeout),
	})
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

// Exists reports whether selector matches a visible element.
func (e *Engine) Exists(ctx context.Context, selector string) (bool, error) {
	page, err := e.page(ctx)
	if err != nil {
		return false, err
	}
	visible, err := page.Locator(selector).First().IsVisible()
	if err != nil {
		return false, fmt.Errorf("visibility check %s: %w", selector, err)
	}
	return visible, nil
}

// Screenshot writes a PNG of the viewport to path.
func (e *Engine) Screenshot(ctx context.Context, path string) error {
	page, err := e.page(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{Path: playwright.String(path)}); err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	return nil
}

// CurrentURL returns the page URL.
func (e *Engine) CurrentURL() string {
	return e.session.Page.URL()
}

// CurrentTitle returns the page title, or "" if it cannot be read.
func (e *Engine) CurrentTitle() string {
	title, err := e.session.Page.Title()
	if err != nil {
		return ""
	}
	return title
}

// DOMSnippet returns a cleaned excerpt around selector, or of the whole page
// when selector is empty or no longer matches.
func (e *Engine) DOMSnippet(ctx context.Context, selector string, maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = DefaultSnippetChars
	}
	markup, err := e.markup(ctx, selector)
	if err != nil {
		return "", err
	}
	snippet, err := CleanHTML(markup, maxChars)
	if err != nil {
		return "", err
	}
	return snippet.HTML, nil
}

// markup returns the outer HTML of the scope element's parent, or the page.
func (e *Engine) markup(ctx context.Context, scope string) (string, error) {
	page, err := e.page(ctx)
	if err != nil {
		return "", err
	}
	if scope != "" {
		loc := page.Locator(scope).First()
		if n, countErr := page.Locator(scope).Count(); countErr == nil && n > 0 {
			out, evalErr := loc.Evaluate("el => (el.parentElement || el).outerHTML", nil,
				playwright.LocatorEvaluateOptions{Timeout: playwright.Float(e.opts.ActionTimeout)})
			if s, ok := out.(string); evalErr == nil && ok {
				return s, nil
			}
		}
	}
	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return content, nil
}

func firstArgument(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
