package compiler

import (
	"context"
	"fmt"
	"strings"
)

// analyze runs the fixed lexicon pass and augments it with model-proposed
// candidates. The heuristic pass stands alone: a model failure degrades
// analysis, it does not block the session.
func (c *Compiler) analyze(ctx context.Context, policyText, categoryNotes string) []Ambiguity {
	flagged := c.lexicon.Scan(policyText + "\n" + categoryNotes)

	if c.llm != nil {
		var resp struct {
			Ambiguities []Ambiguity `json:"ambiguities"`
		}
		user := fmt.Sprintf(analyzeUserPrompt, policyText, categoryNotes)
		if err := c.llm.CompleteJSON(ctx, analyzeSystemPrompt, user, 4096, &resp); err != nil {
			c.logger.Warn("ambiguity analysis model call failed, heuristics only", "error", err)
		} else {
			flagged = mergeAmbiguities(flagged, resp.Ambiguities)
		}
	}
	return flagged
}

// mergeAmbiguities appends model candidates that the lexicon did not already
// flag, keyed by normalized phrase. Heuristic hits come first so their order
// stays stable.
func mergeAmbiguities(heuristic, proposed []Ambiguity) []Ambiguity {
	seen := make(map[string]struct{}, len(heuristic))
	for _, a := range heuristic {
		seen[strings.ToLower(strings.TrimSpace(a.Phrase))] = struct{}{}
	}
	out := heuristic
	for _, a := range proposed {
		key := strings.ToLower(strings.TrimSpace(a.Phrase))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		switch a.Hint {
		case HintNumericThreshold, HintPhraseList, HintTone:
		default:
			a.Hint = HintPhraseList
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}
