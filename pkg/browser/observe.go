package browser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/entrhq/forge-recipe/pkg/types"
	"golang.org/x/net/html"
)

// Candidate is an interactive element that may satisfy an instruction.
type Candidate struct {
	Action types.ActionRef
	Score  int
}

var interactiveRoles = map[string]bool{
	"button": true, "link": true, "checkbox": true, "radio": true, "tab": true,
	"menuitem": true, "option": true, "switch": true, "textbox": true, "combobox": true,
}

var testIDAttributes = []string{"data-testid", "data-test", "data-test-id", "data-qa", "data-cy"}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "on": true, "in": true, "of": true,
	"and": true, "or": true, "for": true, "with": true, "click": true, "press": true,
	"button": true, "link": true, "field": true, "enter": true, "type": true, "fill": true,
	"select": true, "into": true, "input": true, "open": true, "go": true, "tap": true,
}

var cssIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// FindCandidates lists interactive elements of rawHTML ranked against instruction.
// With an empty instruction every interactive element is returned in document order.
func FindCandidates(rawHTML, instruction string, limit int) ([]Candidate, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	terms := instructionTerms(instruction)
	var found []Candidate
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if skippedElements[tag] {
				return
			}
			if isInteractive(n, tag) {
				ref := describe(n, tag)
				if ref.Selector != "" && !seen[ref.Selector] {
					seen[ref.Selector] = true
					score := scoreElement(n, terms)
					if len(terms) == 0 || score > 0 {
						found = append(found, Candidate{Action: ref, Score: score})
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	sort.SliceStable(found, func(i, j int) bool { return found[i].Score > found[j].Score })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func isInteractive(n *html.Node, tag string) bool {
	switch tag {
	case "button", "select", "textarea", "summary":
		return true
	case "a":
		return attr(n, "href") != ""
	case "input":
		return attr(n, "type") != "hidden"
	}
	if interactiveRoles[strings.ToLower(attr(n, "role"))] {
		return true
	}
	return attr(n, "onclick") != "" || attr(n, "contenteditable") == "true"
}

// describe builds the most stable selector available for n.
func describe(n *html.Node, tag string) types.ActionRef {
	ref := types.ActionRef{
		Method:      methodFor(n, tag),
		Description: label(n),
	}

	for _, key := range testIDAttributes {
		if v := attr(n, key); v != "" {
			ref.Selector = fmt.Sprintf(`[%s=%q]`, key, v)
			return ref
		}
	}
	if id := attr(n, "id"); id != "" {
		if cssIdent.MatchString(id) {
			ref.Selector = "#" + id
		} else {
			ref.Selector = fmt.Sprintf(`[id=%q]`, id)
		}
		return ref
	}
	if name := attr(n, "name"); name != "" {
		ref.Selector = fmt.Sprintf(`%s[name=%q]`, tag, name)
		return ref
	}
	if aria := attr(n, "aria-label"); aria != "" {
		ref.Selector = fmt.Sprintf(`%s[aria-label=%q]`, tag, aria)
		return ref
	}
	if text := textContent(n); text != "" {
		ref.Selector = fmt.Sprintf(`%s:has-text(%q)`, tag, truncateRunes(text, 60))
		return ref
	}
	if ph := attr(n, "placeholder"); ph != "" {
		ref.Selector = fmt.Sprintf(`%s[placeholder=%q]`, tag, ph)
	}
	return ref
}

func methodFor(n *html.Node, tag string) string {
	switch tag {
	case "textarea":
		return "fill"
	case "select":
		return "select"
	case "input":
		switch strings.ToLower(attr(n, "type")) {
		case "checkbox", "radio":
			return "check"
		case "submit", "button", "reset", "image":
			return "click"
		}
		return "fill"
	}
	if attr(n, "contenteditable") == "true" {
		return "fill"
	}
	return "click"
}

func label(n *html.Node) string {
	for _, key := range []string{"aria-label", "title", "placeholder", "alt", "value"} {
		if v := attr(n, key); v != "" {
			return v
		}
	}
	return truncateRunes(textContent(n), 80)
}

func scoreElement(n *html.Node, terms []string) int {
	if len(terms) == 0 {
		return 0
	}
	haystack := strings.ToLower(strings.Join([]string{
		textContent(n), attr(n, "aria-label"), attr(n, "placeholder"), attr(n, "name"),
		attr(n, "id"), attr(n, "title"), attr(n, "value"), attr(n, "alt"),
		attr(n, "data-testid"), attr(n, "data-test"),
	}, " "))

	score := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			score++
		}
	}
	return score
}

func instructionTerms(instruction string) []string {
	fields := strings.FieldsFunc(strings.ToLower(instruction), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		if n.Type == html.ElementNode && skippedElements[strings.ToLower(n.Data)] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
