// Package reply classifies free-text customer replies into a tri-state
// verdict. Pure functions, no I/O.
package reply

import "strings"

type Verdict string

const (
	Yes     Verdict = "yes"
	No      Verdict = "no"
	Unknown Verdict = "unknown"
)

var (
	affirmative = []string{"yes", "y", "confirm", "ok", "okay", "sure", "correct", "1"}
	negative    = []string{"no", "n", "cancel", "wrong", "incorrect", "not", "0"}
)

// Classify maps reply text to yes/no/unknown. The affirmative set is checked
// before the negative one. Multi-character keywords match by containment;
// single-character keywords ("y", "n", "1", "0") match only as a standalone
// word, otherwise almost any sentence would trip them.
func Classify(text string) Verdict {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Unknown
	}
	fields := strings.Fields(lower)

	if matchesAny(lower, fields, affirmative) {
		return Yes
	}
	if matchesAny(lower, fields, negative) {
		return No
	}
	return Unknown
}

func matchesAny(text string, fields []string, keywords []string) bool {
	for _, kw := range keywords {
		if len(kw) == 1 {
			for _, f := range fields {
				if f == kw {
					return true
				}
			}
			continue
		}
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
