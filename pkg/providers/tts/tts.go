// Package tts provides text-to-speech client shims. Every
// implementation's Synthesize contract is raw mu-law, 8kHz mono,
// ready for the wire — callers never see the provider's native
// encoding.
package tts

import (
	"context"
	"strings"
)

// Provider synthesizes text to mu-law audio.
type Provider interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Name() string
}

// MaxChars is the default per-request character budget before text
// must be split across multiple synthesis calls.
const MaxChars = 2000

// SplitText breaks text into chunks of at most maxChars, preferring
// to cut at the right-most sentence boundary (". ", "! ", "? ")
// within the window; falling back to a hard cut when no boundary
// exists. Leading whitespace on each remainder is trimmed.
func SplitText(text string, maxChars int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxChars {
		window := remaining[:maxChars]
		cut := lastSentenceBoundary(window)
		if cut == -1 {
			cut = maxChars
		}
		chunks = append(chunks, remaining[:cut])
		remaining = strings.TrimLeft(remaining[cut:], " \t\n")
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func lastSentenceBoundary(window string) int {
	best := -1
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, sep); idx != -1 {
			end := idx + len(sep)
			if end > best {
				best = end
			}
		}
	}
	return best
}
