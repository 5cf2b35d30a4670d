// Package recovery classifies step failures and maps them to fallback ladders.
//
// Both halves are pure: Classify is a total function from failure text to an
// ErrorKind, and Route is a total function from ErrorKind to an ordered list of
// recovery actions. Neither touches the network, the filesystem, or the budget.
package recovery

import (
	"errors"
	"strings"

	"github.com/entrhq/forge-recipe/pkg/types"
)

// ClassifyContext carries optional situational detail about a failure.
type ClassifyContext struct {
	// Selector is the selector the failed step was acting on.
	Selector string

	// SourceURL is the URL of the resource or page involved.
	SourceURL string

	// Message is extra free-form context (e.g. which collaborator was called).
	Message string
}

// classificationRule matches normalized failure text to a kind.
type classificationRule struct {
	kind  types.ErrorKind
	match func(text string, ctx ClassifyContext) bool
}

var (
	captchaPatterns = []string{
		"captcha", "2fa", "two-factor", "two factor", "verification code",
		"mfa", "authenticator", "one-time code", "one-time password",
	}
	canvasPatterns  = []string{"canvas", "webgl"}
	timeoutPhrases  = []string{"timeout", "timed out"}
	abortPhrases    = []string{"aborterror", "aborted", "the operation was aborted"}
	notFoundPhrases = []string{
		"timeout", "timed out", "not found", "no element", "strict mode violation",
		"waiting for selector", "waiting for locator", "resolved to 0 elements",
	}
	notActionablePatterns = []string{
		"not visible", "not enabled", "disabled", "not editable",
		"intercepts pointer events", "outside of the viewport", "not attached",
		"detached", "not stable", "not actionable", "obscured",
	}
	extractionPatterns = []string{
		"extraction empty", "extract returned empty", "no data extracted",
		"empty result", "extracted nothing", "no content",
	}
	expectationPatterns = []string{
		"expect", "assertion", "mismatch", "url_contains", "title_contains",
		"text_contains",
	}
)

// rules is evaluated in order; the first match wins.
var rules = []classificationRule{
	{kind: types.ErrorKindCaptchaOr2FA, match: func(text string, _ ClassifyContext) bool {
		return containsAny(text, captchaPatterns)
	}},
	{kind: types.ErrorKindCanvasDetected, match: func(text string, _ ClassifyContext) bool {
		return containsAny(text, canvasPatterns)
	}},
	{kind: types.ErrorKindAuthoringServiceTimeout, match: matchAuthoringTimeout},
	{kind: types.ErrorKindTargetNotFound, match: matchTargetNotFound},
	{kind: types.ErrorKindNotActionable, match: func(text string, _ ClassifyContext) bool {
		return containsAny(text, notActionablePatterns)
	}},
	{kind: types.ErrorKindExtractionEmpty, match: func(text string, _ ClassifyContext) bool {
		return containsAny(text, extractionPatterns)
	}},
	{kind: types.ErrorKindExpectationFailed, match: func(text string, _ ClassifyContext) bool {
		return containsAny(text, expectationPatterns)
	}},
}

// Classify maps a failure to exactly one ErrorKind. It never fails.
//
// failure may be an error, a string, or nil. When nothing matches, failures tied
// to a selector are assumed to be target-location problems and everything else
// an assertion failure.
func Classify(failure interface{}, ctx ClassifyContext) types.ErrorKind {
	text := normalize(failure, ctx)

	for _, rule := range rules {
		if rule.match(text, ctx) {
			return rule.kind
		}
	}

	if ctx.Selector != "" {
		return types.ErrorKindTargetNotFound
	}
	return types.ErrorKindExpectationFailed
}

func matchAuthoringTimeout(text string, ctx ClassifyContext) bool {
	// An aborted fetch only counts when the text or source URL names the authoring call.
	if containsAny(text, abortPhrases) {
		origin := text + " " + strings.ToLower(ctx.SourceURL)
		return strings.Contains(origin, "authoring")
	}
	return strings.Contains(text, "authoring") && containsAny(text, timeoutPhrases)
}

func matchTargetNotFound(text string, ctx ClassifyContext) bool {
	if !containsAny(text, notFoundPhrases) {
		return false
	}
	if containsAny(text, notActionablePatterns) {
		// A timeout on a detached or unstable element is ambiguous; a known
		// selector tips it to TargetNotFound.
		return ctx.Selector != "" && !unambiguouslyNotActionable(text)
	}
	return true
}

// unambiguouslyNotActionable reports text that names an actionability check
// rather than merely waiting on one.
func unambiguouslyNotActionable(text string) bool {
	for _, p := range []string{"not visible", "not enabled", "disabled", "not editable", "intercepts pointer events", "not actionable", "obscured"} {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func normalize(failure interface{}, ctx ClassifyContext) string {
	var sb strings.Builder
	switch f := failure.(type) {
	case nil:
	case string:
		sb.WriteString(f)
	case error:
		sb.WriteString(f.Error())
		var named interface{ Name() string }
		if errors.As(f, &named) {
			sb.WriteString(" ")
			sb.WriteString(named.Name())
		}
	case interface{ String() string }:
		sb.WriteString(f.String())
	}
	if ctx.Message != "" {
		sb.WriteString(" ")
		sb.WriteString(ctx.Message)
	}
	return strings.ToLower(sb.String())
}

func containsAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
