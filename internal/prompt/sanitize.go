// Package prompt builds and sanitizes the launch prompt handed to a worker
// session. Sanitization is a pure string-transform pipeline, kept separate
// from session plumbing so it can be tested on its own: strip tag-like
// markup, neutralize a deny-list of prompt-injection trigger phrases, then
// truncate to a fixed maximum length.
package prompt

import (
	"regexp"
	"strings"
)

// MaxLength caps the sanitized user prompt. Truncation is applied after
// sanitization so stripped markup cannot push real content over the limit.
const MaxLength = 4000

// markupPattern matches tag-like sequences such as <system> or </instructions>.
var markupPattern = regexp.MustCompile(`<[^<>]*>`)

// injectionPhrases is the deny-list of instruction-override language. Matches
// are case-insensitive and replaced with a neutral marker rather than
// removed, so the surrounding text still reads coherently in the log.
var injectionPhrases = []string{
	"ignore all previous instructions",
	"ignore previous instructions",
	"ignore the above instructions",
	"disregard all previous instructions",
	"disregard previous instructions",
	"forget your instructions",
	"forget all previous instructions",
	"override your instructions",
	"you are now a",
	"new system prompt",
	"system prompt:",
}

const neutralizedMarker = "[filtered]"

// Sanitize runs the full pipeline: StripMarkup, NeutralizeInjection, then
// Truncate to MaxLength.
func Sanitize(input string) string {
	return Truncate(NeutralizeInjection(StripMarkup(input)), MaxLength)
}

// StripMarkup removes tag-like markup sequences from the input.
func StripMarkup(input string) string {
	return markupPattern.ReplaceAllString(input, "")
}

// NeutralizeInjection replaces deny-listed override phrases with a neutral
// marker, case-insensitively.
func NeutralizeInjection(input string) string {
	lower := strings.ToLower(input)
	for _, phrase := range injectionPhrases {
		for {
			idx := strings.Index(lower, phrase)
			if idx < 0 {
				break
			}
			input = input[:idx] + neutralizedMarker + input[idx+len(phrase):]
			lower = lower[:idx] + neutralizedMarker + lower[idx+len(phrase):]
		}
	}
	return input
}

// Truncate caps the input at max characters. Truncation happens on rune
// boundaries so multi-byte characters are never split.
func Truncate(input string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(input)
	if len(runes) <= max {
		return input
	}
	return string(runes[:max])
}
