package engine

import "strings"

// normalize lowercases and collapses whitespace so matching is insensitive to
// case and formatting.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// matches reports whether phrase occurs in text. Default mode is
// case-insensitive substring. Fuzzy mode additionally accepts word windows of
// the text within FuzzyMaxDistance edits of the phrase, for phrases of at
// least FuzzyMinPhraseLen runes.
func (e *Engine) matches(text, phrase string, fuzzy bool) bool {
	nt, np := normalize(text), normalize(phrase)
	if np == "" {
		return false
	}
	if strings.Contains(nt, np) {
		return true
	}
	if !fuzzy || len([]rune(np)) < e.cfg.FuzzyMinPhraseLen {
		return false
	}
	words := strings.Fields(nt)
	n := len(strings.Fields(np))
	if n == 0 || n > len(words) {
		return false
	}
	for i := 0; i+n <= len(words); i++ {
		window := strings.Join(words[i:i+n], " ")
		if levenshtein(window, np) <= e.cfg.FuzzyMaxDistance {
			return true
		}
	}
	return false
}

// matchesAny reports whether any of the phrases occurs in text.
func (e *Engine) matchesAny(text string, phrases []string, fuzzy bool) bool {
	for _, p := range phrases {
		if e.matches(text, p, fuzzy) {
			return true
		}
	}
	return false
}

// levenshtein computes edit distance over runes with a two-row matrix.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
