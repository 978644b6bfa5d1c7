// Package generator provides the conversational response backend: a
// call takes a transcript in and gets assistant text back, optionally
// carrying a continuation token across turns.
package generator

import "context"

// Generator turns a transcript into a response. conversationID, when
// non-empty, asks the backend to continue a prior exchange; the
// returned conversationID (possibly different, possibly empty for
// backends that manage their own continuity) is what the caller
// should echo on the next turn.
//
// prompt already carries any one-shot outbound-call context and the
// channel trust preamble, assembled by the caller; a Generator must
// not prepend anything further to it.
type Generator interface {
	Send(ctx context.Context, callID, prompt, conversationID string) (text, newConversationID string, err error)
	Name() string
}
