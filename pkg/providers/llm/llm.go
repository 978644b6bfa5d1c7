// Package llm provides chat-completion client shims usable as a
// generator backend when no standalone bridge process is configured.
package llm

import (
	"context"
	"errors"
)

// errNoChoices is returned when a provider's response body decodes
// cleanly but carries no completion choices.
var errNoChoices = errors.New("no choices returned")

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider completes a conversation and returns the assistant's reply.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Name() string
}
