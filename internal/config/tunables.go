package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arbiterhq/arbiter/internal/engine"
)

// Tunables is the optional YAML file pinning down the behaviours the rule
// schema leaves configurable: fuzzy matching, evidence caps, and extra
// vague terms for the compiler's lexicon.
type Tunables struct {
	FuzzyMaxDistance   int      `yaml:"fuzzy_max_distance"`
	FuzzyMinPhraseLen  int      `yaml:"fuzzy_min_phrase_len"`
	MaxEvidencePerRule int      `yaml:"max_evidence_per_rule"`
	VagueTerms         []string `yaml:"vague_terms"`
}

func DefaultTunables() Tunables {
	cfg := engine.DefaultConfig()
	return Tunables{
		FuzzyMaxDistance:   cfg.FuzzyMaxDistance,
		FuzzyMinPhraseLen:  cfg.FuzzyMinPhraseLen,
		MaxEvidencePerRule: cfg.MaxEvidencePerRule,
	}
}

// LoadTunables reads the YAML file, filling absent fields from defaults.
// An empty path returns the defaults.
func LoadTunables(path string) (Tunables, error) {
	t := DefaultTunables()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tunables: %w", err)
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("parse tunables: %w", err)
	}
	if t.FuzzyMaxDistance < 0 || t.FuzzyMinPhraseLen < 1 || t.MaxEvidencePerRule < 1 {
		return t, fmt.Errorf("tunables out of range in %s", path)
	}
	return t, nil
}

// Engine maps the tunables to an engine config.
func (t Tunables) Engine() engine.Config {
	return engine.Config{
		FuzzyMaxDistance:   t.FuzzyMaxDistance,
		FuzzyMinPhraseLen:  t.FuzzyMinPhraseLen,
		MaxEvidencePerRule: t.MaxEvidencePerRule,
	}
}
