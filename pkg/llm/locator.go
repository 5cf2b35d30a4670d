package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/entrhq/forge-recipe/pkg/llm/tokenizer"
	"github.com/entrhq/forge-recipe/pkg/types"
)

// ErrNoSuggestion is returned when the model reply holds no usable selector.
var ErrNoSuggestion = errors.New("llm: no selector suggested")

const locatorSystemPrompt = `You repair browser automation. Given a page excerpt and a target that ` +
	`could not be found, reply with one JSON object and nothing else:
{"selector": "<css or playwright selector>", "method": "<click|fill|type|press|focus|hover>", ` +
	`"description": "<what the element is>", "arguments": ["<optional>"]}
Prefer stable attributes (data-test*, aria-label, id, name) over positional selectors. ` +
	`Never answer with a bare tag name such as "div" or "button".`

const canvasSystemPrompt = `You operate a canvas-rendered page that has no DOM for its controls. ` +
	`Given the page excerpt and target, reply with one JSON object and nothing else, either
{"selector": "<selector>", "method": "click"} when a DOM element can still be used, or
{"x": <number>, "y": <number>, "method": "click_at", "description": "<what is at that point>"} ` +
	`with page coordinates in CSS pixels.`

// LocateRequest describes the element the model should find.
type LocateRequest struct {
	TargetKey      string
	Instruction    string
	FailedSelector string
	Method         string
	URL            string
	Title          string
	DOMSnippet     string

	// Canvas asks for coordinates when the target is drawn on a canvas.
	Canvas bool

	// History carries earlier turns for the same failure. Callers drop it
	// when the budget asks for smaller prompts.
	History []*Message
}

// Usage reports what a call sent to the model.
type Usage struct {
	PromptChars  int
	PromptTokens int
}

// Locator asks a Provider to suggest a replacement binding for a lost target.
type Locator struct {
	provider  Provider
	tokenizer *tokenizer.Tokenizer
}

// NewLocator creates a Locator. Token counts fall back to an estimate when
// no tokenizer can be loaded for the provider's model.
func NewLocator(provider Provider) *Locator {
	tok, err := tokenizer.ForModel(provider.GetModel())
	if err != nil {
		tok = nil
	}
	return &Locator{provider: provider, tokenizer: tok}
}

// BuildMessages renders the conversation for req.
func BuildMessages(req LocateRequest) []*Message {
	system := locatorSystemPrompt
	if req.Canvas {
		system = canvasSystemPrompt
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s\n", req.TargetKey)
	if req.Instruction != "" {
		fmt.Fprintf(&b, "Instruction: %s\n", req.Instruction)
	}
	if req.FailedSelector != "" {
		fmt.Fprintf(&b, "Selector that failed: %s\n", req.FailedSelector)
	}
	if req.Method != "" {
		fmt.Fprintf(&b, "Intended method: %s\n", req.Method)
	}
	if req.URL != "" {
		fmt.Fprintf(&b, "Page: %s", req.URL)
		if req.Title != "" {
			fmt.Fprintf(&b, " (%s)", req.Title)
		}
		b.WriteString("\n")
	}
	if req.DOMSnippet != "" {
		b.WriteString("\nPage excerpt:\n")
		b.WriteString(req.DOMSnippet)
		b.WriteString("\n")
	}

	messages := make([]*Message, 0, len(req.History)+2)
	messages = append(messages, NewSystemMessage(system))
	messages = append(messages, req.History...)
	messages = append(messages, NewUserMessage(b.String()))
	return messages
}

// SuggestSelector asks the model for a binding. Usage is returned even when
// the reply cannot be used, so callers can charge the budget either way.
func (l *Locator) SuggestSelector(ctx context.Context, req LocateRequest) (types.ActionRef, Usage, error) {
	messages := BuildMessages(req)

	contents := make([]string, len(messages))
	for i, m := range messages {
		contents[i] = m.Content
	}
	usage := Usage{
		PromptChars:  PromptChars(messages),
		PromptTokens: l.tokenizer.CountMessagesTokens(contents),
	}

	reply, err := l.provider.Complete(ctx, messages)
	if err != nil {
		return types.ActionRef{}, usage, fmt.Errorf("llm: locate %s: %w", req.TargetKey, err)
	}

	ref, err := ParseSuggestion(reply.Content)
	if err != nil {
		return types.ActionRef{}, usage, err
	}
	ref.TargetKey = req.TargetKey
	if ref.Method == "" {
		ref.Method = req.Method
	}
	return ref, usage, nil
}

var (
	thinkingBlock = regexp.MustCompile(`(?s)<thinking>.*?</thinking>`)
	codeFence     = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

type suggestion struct {
	Selector    string   `json:"selector"`
	Method      string   `json:"method"`
	Description string   `json:"description"`
	Arguments   []string `json:"arguments"`
	X           *float64 `json:"x"`
	Y           *float64 `json:"y"`
}

// ParseSuggestion extracts a binding from a model reply. Reasoning blocks and
// markdown fences around the JSON object are ignored.
func ParseSuggestion(reply string) (types.ActionRef, error) {
	text := thinkingBlock.ReplaceAllString(reply, "")
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return types.ActionRef{}, fmt.Errorf("%w: reply has no JSON object", ErrNoSuggestion)
	}

	var s suggestion
	if err := json.Unmarshal([]byte(text[start:end+1]), &s); err != nil {
		return types.ActionRef{}, fmt.Errorf("%w: %v", ErrNoSuggestion, err)
	}

	ref := types.ActionRef{
		Selector:    strings.TrimSpace(s.Selector),
		Method:      s.Method,
		Description: s.Description,
		Arguments:   s.Arguments,
	}
	if ref.Selector == "" && s.X != nil && s.Y != nil {
		ref.Method = "click_at"
		ref.Arguments = []string{
			strconv.FormatFloat(*s.X, 'f', -1, 64),
			strconv.FormatFloat(*s.Y, 'f', -1, 64),
		}
		return ref, nil
	}
	if ref.Selector == "" {
		return types.ActionRef{}, fmt.Errorf("%w: empty selector", ErrNoSuggestion)
	}
	return ref, nil
}
