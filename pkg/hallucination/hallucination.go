// Package hallucination filters known Whisper hallucinations: short
// phrases the model tends to emit from silence or background noise
// rather than actual speech.
package hallucination

import "strings"

// phrases are matched case-insensitively and exactly (not substring).
var phrases = map[string]struct{}{
	"thank you":               {},
	"thank you.":              {},
	"thanks for watching":     {},
	"thanks for watching.":    {},
	"thank you for watching":  {},
	"thank you for watching.": {},
	"subscribe":               {},
	"like and subscribe":      {},
	"bye":                     {},
	"bye.":                    {},
	"bye bye":                 {},
	"bye bye.":                {},
	"you":                     {},
	"you.":                    {},
	"the end":                 {},
	"the end.":                {},
	"so":                      {},
	"...":                     {},
	"eh":                      {},
	"hmm":                     {},
	"uh":                      {},
	"oh":                      {},
	"amen":                    {},
	"amen.":                   {},
}

// IsHallucination reports whether transcript, trimmed and
// lower-cased, matches a known hallucinated phrase exactly.
func IsHallucination(transcript string) bool {
	_, ok := phrases[strings.ToLower(strings.TrimSpace(transcript))]
	return ok
}
