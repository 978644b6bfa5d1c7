// Package greeting selects a time-of-day-aware opening line for the
// agent to speak when a call connects.
package greeting

import (
	"math/rand/v2"
	"strings"
)

var anytime = []string{
	"Hey, it's {name}",
	"Hi there, {name} here",
	"Hello, this is {name}",
	"{name} here, what's up?",
}

var morning = []string{
	"Good morning, {name} here",
	"Morning! It's {name}",
}

var afternoon = []string{
	"Good afternoon, it's {name}",
	"Hey, good afternoon, {name} here",
}

var evening = []string{
	"Good evening, this is {name}",
	"Evening! {name} here",
}

var night = []string{
	"Hey, it's late, but {name}'s here",
	"{name} here, burning the midnight oil?",
}

// timePool returns the time-specific greeting pool for an hour in
// [0, 23]: 5-11 morning, 12-16 afternoon, 17-20 evening, else night.
func timePool(hour int) []string {
	switch {
	case hour >= 5 && hour <= 11:
		return morning
	case hour >= 12 && hour <= 16:
		return afternoon
	case hour >= 17 && hour <= 20:
		return evening
	default:
		return night
	}
}

// Select picks a random greeting appropriate for hour, combining the
// anytime pool with the time-specific one, and substitutes name in
// for the {name} placeholder.
func Select(hour int, name string) string {
	pool := make([]string, 0, len(anytime)+4)
	pool = append(pool, anytime...)
	pool = append(pool, timePool(hour)...)

	template := pool[rand.IntN(len(pool))]
	return strings.ReplaceAll(template, "{name}", name)
}
