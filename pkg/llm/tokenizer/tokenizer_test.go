package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("abc"))
	assert.Equal(t, 2, Estimate("abcdefgh"))
}

func TestNilTokenizerFallsBack(t *testing.T) {
	var tok *Tokenizer
	assert.Equal(t, Estimate("hello world"), tok.CountTokens("hello world"))
}

func TestCountMessagesTokens(t *testing.T) {
	// Encoding data may be unavailable offline; the estimate path is still exercised.
	tok, err := New()
	if err != nil {
		t.Logf("tokenizer initialization failed (expected in some environments): %v", err)
		tok = nil
	}

	messages := []string{"You locate elements.", "Find the checkout button."}
	count := tok.CountMessagesTokens(messages)
	assert.Greater(t, count, 2*perMessageOverhead)
}
