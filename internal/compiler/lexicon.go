package compiler

import (
	"strings"
	"unicode/utf8"
)

// Hint classifies how a vague phrase should be pinned down; it selects the
// clarifying-question template.
type Hint string

const (
	HintNumericThreshold Hint = "numeric_threshold"
	HintPhraseList       Hint = "phrase_list"
	HintTone             Hint = "tone"
)

// Ambiguity is one vague or unquantified statement flagged during analysis.
// It is never a rule; it only seeds a clarifying question.
type Ambiguity struct {
	Phrase  string `json:"phrase"`
	Context string `json:"context,omitempty"`
	Hint    Hint   `json:"hint"`
}

// defaultLexicon maps known vague terms to clarification hints. The fixed
// heuristic pass runs regardless of model availability, so analysis never
// depends on the LLM alone. Deployments extend the list via config.
var defaultLexicon = map[string]Hint{
	"quickly":       HintNumericThreshold,
	"promptly":      HintNumericThreshold,
	"immediately":   HintNumericThreshold,
	"soon":          HintNumericThreshold,
	"timely":        HintNumericThreshold,
	"without delay": HintNumericThreshold,
	"regularly":     HintNumericThreshold,

	"warmly":     HintTone,
	"empathy":    HintTone,
	"empathetic": HintTone,
	"friendly":   HintTone,
	"calm":       HintTone,
	"patient":    HintTone,

	"politely":      HintPhraseList,
	"professional":  HintPhraseList,
	"appropriate":   HintPhraseList,
	"appropriately": HintPhraseList,
	"properly":      HintPhraseList,
	"clearly":       HintPhraseList,
	"courteous":     HintPhraseList,
}

// Lexicon is the vague-term table for one compiler instance.
type Lexicon struct {
	terms map[string]Hint
}

// NewLexicon builds the lexicon from the defaults plus deployment extras.
// Extras default to the phrase-list hint.
func NewLexicon(extraTerms []string) *Lexicon {
	terms := make(map[string]Hint, len(defaultLexicon)+len(extraTerms))
	for t, h := range defaultLexicon {
		terms[t] = h
	}
	for _, t := range extraTerms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, exists := terms[t]; !exists {
			terms[t] = HintPhraseList
		}
	}
	return &Lexicon{terms: terms}
}

// Scan flags every lexicon term occurring in the text, with a short
// surrounding excerpt as context. Output order follows text order.
func (l *Lexicon) Scan(text string) []Ambiguity {
	lower := strings.ToLower(text)
	type hit struct {
		pos  int
		term string
		hint Hint
	}
	var hits []hit
	for term, h := range l.terms {
		if idx := strings.Index(lower, term); idx >= 0 {
			hits = append(hits, hit{pos: idx, term: term, hint: h})
		}
	}
	// Deterministic ordering: by position, then term.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && (hits[j].pos < hits[j-1].pos ||
			(hits[j].pos == hits[j-1].pos && hits[j].term < hits[j-1].term)); j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	out := make([]Ambiguity, 0, len(hits))
	for _, h := range hits {
		out = append(out, Ambiguity{
			Phrase:  h.term,
			Context: excerpt(text, h.pos, len(h.term)),
			Hint:    h.hint,
		})
	}
	return out
}

// excerpt returns up to 40 bytes of context either side of the matched
// term, widened to rune boundaries so the slice is always valid UTF-8.
func excerpt(text string, pos, length int) string {
	start := pos - 40
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := pos + length + 40
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return strings.TrimSpace(text[start:end])
}
