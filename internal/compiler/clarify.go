package compiler

import (
	"fmt"

	"github.com/arbiterhq/arbiter/internal/rules"
)

// buildClarifications turns flagged ambiguities into closed-form questions.
// Every clarification is required: synthesis will not run while any is
// unanswered.
func buildClarifications(ambiguities []Ambiguity) []rules.Clarification {
	out := make([]rules.Clarification, 0, len(ambiguities))
	for i, a := range ambiguities {
		out = append(out, rules.Clarification{
			ID:                fmt.Sprintf("clar-%03d", i+1),
			Question:          questionFor(a),
			ResolvedAmbiguity: a.Phrase,
			Required:          true,
		})
	}
	return out
}

func questionFor(a Ambiguity) string {
	where := a.Phrase
	if a.Context != "" {
		where = fmt.Sprintf("%q (in: %q)", a.Phrase, a.Context)
	}
	switch a.Hint {
	case HintNumericThreshold:
		return fmt.Sprintf("What is the maximum acceptable number of seconds for %s?", where)
	case HintTone:
		return fmt.Sprintf("For %s: how much may a speaker's negative-sentiment ratio exceed their baseline before it counts as a violation (0.0–1.0)?", where)
	default:
		return fmt.Sprintf("Which exact phrases satisfy (or violate) %s? List required and/or forbidden phrases.", where)
	}
}
