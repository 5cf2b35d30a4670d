// Package tokenizer estimates prompt sizes in model tokens.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when the model has no registered encoding.
const DefaultEncoding = "cl100k_base"

// perMessageOverhead approximates the role and separator tokens of a chat message.
const perMessageOverhead = 4

// Tokenizer counts tokens with a tiktoken encoding.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New returns a Tokenizer for the default encoding.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load %s: %w", DefaultEncoding, err)
	}
	return &Tokenizer{encoding: enc}, nil
}

// ForModel returns a Tokenizer for model, falling back to the default encoding.
func ForModel(model string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return New()
	}
	return &Tokenizer{encoding: enc}, nil
}

// CountTokens returns the token count of text.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.encoding == nil {
		return Estimate(text)
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountMessagesTokens returns the token count of a conversation given each message's content.
func (t *Tokenizer) CountMessagesTokens(contents []string) int {
	total := 0
	for _, c := range contents {
		total += perMessageOverhead + t.CountTokens(c)
	}
	return total
}

// Estimate approximates tokens as one per four characters.
func Estimate(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
