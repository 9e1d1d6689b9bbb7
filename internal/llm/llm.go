// Package llm talks to the chat backend that generates answers.
package llm

import "context"

// Message is one turn of a chat exchange. Role is one of "system", "user"
// or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client generates an answer from an ordered list of chat messages.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
