package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// canonicalContent is the hashed subset of a RuleSet: the fields that define
// its evaluation semantics. Approval metadata, ids and timestamps are
// excluded so that two sets with identical rules hash identically.
type canonicalContent struct {
	PolicyID   string      `json:"policy_id"`
	Categories []string    `json:"categories"`
	Rules      []Rule      `json:"rules"`
	ScoreBands []ScoreBand `json:"score_bands,omitempty"`
}

// ContentHash returns the hex SHA-256 of the canonical JSON encoding of the
// set's rules. encoding/json emits struct fields in declaration order and
// sorts map keys, so the encoding is stable for identical content.
func ContentHash(rs *RuleSet) (string, error) {
	b, err := json.Marshal(canonicalContent{
		PolicyID:   rs.PolicyID,
		Categories: rs.Categories,
		Rules:      rs.Rules,
		ScoreBands: rs.ScoreBands,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize rule set: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Rehash recomputes and stores the content hash on a draft.
func (rs *RuleSet) Rehash() error {
	h, err := ContentHash(rs)
	if err != nil {
		return err
	}
	rs.ContentHash = h
	return nil
}
