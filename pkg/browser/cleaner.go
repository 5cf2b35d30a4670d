package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Snippet is a cleaned page excerpt.
type Snippet struct {
	HTML      string
	Title     string
	Truncated bool
}

// CleanHTML strips noise from rawHTML while keeping semantic structure and
// targeting attributes. The result holds at most maxChars characters of markup
// and text; maxChars <= 0 means no limit.
func CleanHTML(rawHTML string, maxChars int) (*Snippet, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	c := &cleaner{limit: maxChars}
	c.node(doc, 0)

	return &Snippet{
		HTML:      strings.TrimSpace(c.out.String()),
		Title:     findTitle(doc),
		Truncated: c.truncated,
	}, nil
}

type cleaner struct {
	out       strings.Builder
	used      int
	limit     int
	truncated bool
}

func (c *cleaner) full() bool {
	return c.limit > 0 && c.used >= c.limit
}

// write appends s, cutting it at the character limit.
func (c *cleaner) write(s string) {
	if c.truncated {
		return
	}
	n := utf8.RuneCountInString(s)
	if c.limit > 0 && c.used+n > c.limit {
		s = string([]rune(s)[:c.limit-c.used])
		n = c.limit - c.used
		c.truncated = true
	}
	c.out.WriteString(s)
	c.used += n
}

func (c *cleaner) node(n *html.Node, depth int) {
	if c.full() {
		c.truncated = true
		return
	}

	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			c.write(text)
		}
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if skippedElements[tag] {
			return
		}
		// head only contributes the title, which is reported separately.
		if tag == "head" {
			return
		}
		if tag == "html" || tag == "body" {
			c.children(n, depth)
			return
		}
		c.element(n, tag, depth)
		return
	}
	c.children(n, depth)
}

func (c *cleaner) children(n *html.Node, depth int) {
	for child := n.FirstChild; child != nil && !c.truncated; child = child.NextSibling {
		c.node(child, depth)
	}
}

func (c *cleaner) element(n *html.Node, tag string, depth int) {
	if blockElements[tag] {
		c.write("\n" + strings.Repeat("  ", depth))
	}

	var open strings.Builder
	open.WriteString("<" + tag)
	for _, attr := range n.Attr {
		if keepAttribute(tag, attr.Key) {
			fmt.Fprintf(&open, ` %s="%s"`, strings.ToLower(attr.Key), html.EscapeString(attr.Val))
		}
	}
	open.WriteString(">")
	c.write(open.String())

	c.children(n, depth+1)

	if !voidElements[tag] && !c.truncated {
		if blockElements[tag] && n.FirstChild != nil {
			c.write("\n" + strings.Repeat("  ", depth))
		}
		c.write("</" + tag + ">")
	}
}

var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
	"embed": true, "object": true, "svg": true, "template": true,
}

var blockElements = map[string]bool{
	"div": true, "p": true, "section": true, "article": true, "header": true,
	"footer": true, "nav": true, "main": true, "aside": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "ul": true,
	"ol": true, "li": true, "table": true, "tr": true, "td": true, "th": true,
	"form": true, "fieldset": true, "dialog": true,
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// keepAttribute reports attributes useful for building selectors.
func keepAttribute(tag, name string) bool {
	name = strings.ToLower(name)
	switch name {
	case "id", "class", "role", "name", "title", "for":
		return true
	}
	if strings.HasPrefix(name, "data-") || strings.HasPrefix(name, "aria-") {
		return true
	}
	switch tag {
	case "a":
		return name == "href"
	case "img":
		return name == "alt"
	case "input", "textarea", "select":
		return name == "type" || name == "placeholder" || name == "value"
	case "button":
		return name == "type"
	case "form":
		return name == "action" || name == "method"
	}
	return false
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		return ""
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if title := findTitle(child); title != "" {
			return title
		}
	}
	return ""
}
