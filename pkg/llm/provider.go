// Package llm provides the language-model plumbing used when cheaper recovery fails.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o-mini"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	locator := llm.NewLocator(provider)
//	ref, usage, err := locator.SuggestSelector(ctx, llm.LocateRequest{
//	    TargetKey:  "checkout_button",
//	    DOMSnippet: snippet,
//	})
package llm

import "context"

// MessageRole is the author of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// Provider sends a conversation to a model and returns its reply.
type Provider interface {
	// Complete returns the assistant's full reply to messages.
	Complete(ctx context.Context, messages []*Message) (*Message, error)

	// GetModel returns the model name being used.
	GetModel() string
}

// PromptChars counts the characters a conversation sends to the model.
func PromptChars(messages []*Message) int {
	n := 0
	for _, m := range messages {
		n += len([]rune(m.Content))
	}
	return n
}
