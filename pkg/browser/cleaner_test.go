package browser

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanHTML(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxChars  int
		wantTitle string
		wantHTML  []string // substrings that should be present
		wantNot   []string // substrings that should NOT be present
		truncated bool
	}{
		{
			name: "drops scripts and styles",
			input: `<html>
				<head>
					<title>Checkout</title>
					<script>alert('x');</script>
					<style>body { color: red; }</style>
				</head>
				<body>
					<h1 id="title">Your cart</h1>
					<!-- promo banner -->
					<button data-testid="pay" onclick="pay()">Pay now</button>
				</body>
			</html>`,
			maxChars:  10000,
			wantTitle: "Checkout",
			wantHTML:  []string{`<h1 id="title">`, "Your cart", `<button data-testid="pay">`, "Pay now"},
			wantNot:   []string{"<script>", "alert", "color: red", "promo banner", "onclick", "<head>"},
		},
		{
			name: "keeps targeting attributes",
			input: `<form action="/login" method="post">
				<input type="email" name="email" placeholder="Email" aria-label="Email address" style="x">
				<label for="pw">Password</label>
			</form>`,
			maxChars: 10000,
			wantHTML: []string{
				`<form action="/login" method="post">`,
				`type="email"`,
				`name="email"`,
				`placeholder="Email"`,
				`aria-label="Email address"`,
				`<label for="pw">`,
			},
			wantNot: []string{`style=`, "</input>"},
		},
		{
			name:      "truncates at the limit",
			input:     `<body><p>` + strings.Repeat("word ", 100) + `</p></body>`,
			maxChars:  40,
			wantHTML:  []string{"<p>"},
			truncated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanHTML(tt.input, tt.maxChars)
			if err != nil {
				t.Fatalf("CleanHTML() error = %v", err)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			for _, want := range tt.wantHTML {
				if !strings.Contains(got.HTML, want) {
					t.Errorf("HTML missing %q\n%s", want, got.HTML)
				}
			}
			for _, not := range tt.wantNot {
				if strings.Contains(got.HTML, not) {
					t.Errorf("HTML should not contain %q\n%s", not, got.HTML)
				}
			}
			if got.Truncated != tt.truncated {
				t.Errorf("Truncated = %v, want %v", got.Truncated, tt.truncated)
			}
			if tt.maxChars > 0 && utf8.RuneCountInString(got.HTML) > tt.maxChars {
				t.Errorf("HTML has %d chars, limit %d", utf8.RuneCountInString(got.HTML), tt.maxChars)
			}
		})
	}
}

func TestCleanHTMLMultibyteTruncation(t *testing.T) {
	got, err := CleanHTML(`<p>`+strings.Repeat("日本語", 20)+`</p>`, 10)
	if err != nil {
		t.Fatalf("CleanHTML() error = %v", err)
	}
	if !utf8.ValidString(got.HTML) {
		t.Errorf("truncation split a rune: %q", got.HTML)
	}
}
