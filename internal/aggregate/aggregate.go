// Package aggregate turns per-rule verdicts into the category-level summary
// consumed by the scoring layer and the downstream nuance classifier. It
// emits structured facts only: no final score, no raw transcript, no policy
// text. Identical input always yields identical output.
package aggregate

import (
	"sort"

	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/rules"
)

// FailedRule is one violation within a category.
type FailedRule struct {
	RuleID   string         `json:"rule_id"`
	Severity rules.Severity `json:"severity"`
	Critical bool           `json:"critical"`
}

// CategorySummary collects a category's violations and their penalty weight.
type CategorySummary struct {
	Category           string       `json:"category"`
	Failed             []FailedRule `json:"failed"`
	PenaltyWeight      float64      `json:"penalty_weight"`
	HasCriticalFailure bool         `json:"has_critical_failure"`
}

// Summary is the engine's sole downstream output.
type Summary struct {
	RuleResults          []engine.RuleResult        `json:"rule_results"`
	ViolationsByCategory map[string]CategorySummary `json:"violations_by_category"`
	CriticalFailures     []string                   `json:"critical_failures"`
	RulesCheckedCount    int                        `json:"rules_checked_count"`
	RulesSkippedCount    int                        `json:"rules_skipped_count"`
}

// SeverityWeight returns the penalty contribution of one failed rule.
func SeverityWeight(s rules.Severity) float64 {
	switch s {
	case rules.SeverityMinor:
		return 0.05
	case rules.SeverityModerate:
		return 0.10
	case rules.SeverityMajor:
		return 0.20
	case rules.SeverityCritical:
		return 0.40
	default:
		return 0.05
	}
}

// Summarize groups results by category. Every skipped rule counts toward
// RulesSkippedCount, so RulesCheckedCount + RulesSkippedCount equals the
// number of enabled rules: nothing is silently dropped.
func Summarize(results []engine.RuleResult) Summary {
	s := Summary{
		RuleResults:          results,
		ViolationsByCategory: make(map[string]CategorySummary),
	}

	for _, r := range results {
		if r.Skipped() {
			s.RulesSkippedCount++
		} else {
			s.RulesCheckedCount++
		}
		if r.Passed || r.Skipped() {
			continue
		}

		cs := s.ViolationsByCategory[r.Category]
		cs.Category = r.Category
		cs.Failed = append(cs.Failed, FailedRule{
			RuleID:   r.RuleID,
			Severity: r.Severity,
			Critical: r.Critical,
		})
		cs.PenaltyWeight = clamp(cs.PenaltyWeight + SeverityWeight(r.Severity))
		if r.Critical {
			cs.HasCriticalFailure = true
			s.CriticalFailures = append(s.CriticalFailures, r.RuleID)
		}
		s.ViolationsByCategory[r.Category] = cs
	}

	return s
}

// HasCriticalFailure reports whether any critical rule failed; a critical
// failure can force an overall fail regardless of aggregate score.
func (s Summary) HasCriticalFailure() bool {
	return len(s.CriticalFailures) > 0
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CategoryDigest is the narrow view handed to the downstream nuance
// classifier: violation counts and severities per category plus a short set
// of evidentiary excerpts. Rule definitions and policy text never appear.
type CategoryDigest struct {
	Category       string                  `json:"category"`
	ViolationCount int                     `json:"violation_count"`
	Severities     map[rules.Severity]int  `json:"severities"`
	CriticalFailed bool                    `json:"critical_failed"`
	Evidence       []engine.Evidence       `json:"evidence,omitempty"`
}

// Digest derives the classifier digest, capping evidence per category at
// maxEvidence. Output is sorted by category for determinism.
func Digest(s Summary, maxEvidence int) []CategoryDigest {
	evidenceByCategory := make(map[string][]engine.Evidence)
	for _, r := range s.RuleResults {
		if r.Passed || r.Skipped() {
			continue
		}
		evidenceByCategory[r.Category] = append(evidenceByCategory[r.Category], r.Evidence...)
	}

	out := make([]CategoryDigest, 0, len(s.ViolationsByCategory))
	for cat, cs := range s.ViolationsByCategory {
		d := CategoryDigest{
			Category:       cat,
			ViolationCount: len(cs.Failed),
			Severities:     make(map[rules.Severity]int),
			CriticalFailed: cs.HasCriticalFailure,
		}
		for _, f := range cs.Failed {
			d.Severities[f.Severity]++
		}
		ev := evidenceByCategory[cat]
		if len(ev) > maxEvidence {
			ev = ev[:maxEvidence]
		}
		d.Evidence = ev
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
