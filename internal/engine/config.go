package engine

// Config holds the deterministic tunables for an evaluation run. Values are
// fixed per run; two runs with identical config, rule set and input produce
// identical output.
type Config struct {
	// FuzzyMaxDistance is the maximum Levenshtein distance for fuzzy phrase
	// matching. Fuzzy matching is opt-in per rule.
	FuzzyMaxDistance int

	// FuzzyMinPhraseLen is the minimum phrase length (in runes) for fuzzy
	// matching; shorter phrases always match exactly.
	FuzzyMinPhraseLen int

	// MaxEvidencePerRule caps the evidence items attached to one result.
	MaxEvidencePerRule int
}

func DefaultConfig() Config {
	return Config{
		FuzzyMaxDistance:   2,
		FuzzyMinPhraseLen:  6,
		MaxEvidencePerRule: 3,
	}
}
