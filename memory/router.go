package memory

import (
	"regexp"
	"strings"
)

// Mode selects which index answers a recall.
type Mode string

const (
	// ModeAuto lets Classify pick per query.
	ModeAuto Mode = "auto"
	// ModeStructured answers from the structured index only.
	ModeStructured Mode = "structured"
	// ModeSemantic answers by vector similarity, falling back to
	// structured when the vector side cannot serve.
	ModeSemantic Mode = "semantic"
)

// ParseMode normalizes a caller-supplied mode string. Anything that is not
// an explicit structured/semantic choice resolves to ModeAuto.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStructured:
		return ModeStructured
	case ModeSemantic:
		return ModeSemantic
	default:
		return ModeAuto
	}
}

// Temporal cues: relative and absolute time expressions. Checked before the
// exact-lookup cues; first match wins.
var temporalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
	regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`),
	regexp.MustCompile(`\b(yesterday|today|tonight)\b`),
	regexp.MustCompile(`\b(last|this)\s+(week|month|year)\b`),
	regexp.MustCompile(`\b\d{1,2}:\d{2}\b`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\bwhen\s+did\b`),
	regexp.MustCompile(`\b(at|on|during|before|after)\s+\d`),
}

// Exact-lookup cues: the caller names the thing instead of describing it.
var exactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bwhat\s+(is|are|was|were)\s+(my|the)\b`),
	regexp.MustCompile(`\bexact(ly)?\b`),
	regexp.MustCompile(`\bid[:=]`),
}

// Classify routes a query string to the structured or the semantic index.
// This is a heuristic, not a trained classifier: any temporal or
// exact-lookup pattern firing resolves to structured, everything else is
// semantic. Callers with an explicit mode bypass it entirely.
func Classify(query string) Mode {
	q := strings.ToLower(query)

	for _, p := range temporalPatterns {
		if p.MatchString(q) {
			return ModeStructured
		}
	}
	for _, p := range exactPatterns {
		if p.MatchString(q) {
			return ModeStructured
		}
	}
	return ModeSemantic
}
