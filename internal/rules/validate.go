package rules

import (
	"fmt"
	"sort"
	"strings"
)

var validKinds = map[Kind]struct{}{
	KindBoolean: {}, KindNumeric: {}, KindPhrase: {}, KindList: {},
	KindConditional: {}, KindMultiStep: {}, KindToneBased: {}, KindResolution: {},
}

var validSeverities = map[Severity]struct{}{
	SeverityMinor: {}, SeverityModerate: {}, SeverityMajor: {}, SeverityCritical: {},
}

var validComparators = map[Comparator]struct{}{
	CompLE: {}, CompLT: {}, CompGE: {}, CompGT: {}, CompEQ: {},
}

var validListFields = map[string]struct{}{
	"closing_phrase":  {},
	"greeting_phrase": {},
}

// Validate checks a candidate rule set for structural and semantic defects.
// It returns a *ValidationError for schema problems, a *ConflictError for
// direct contradictions, and nil for a clean set. Validation happens at
// compile time only; an approved set is guaranteed to pass.
func Validate(rs *RuleSet) error {
	var issues []Issue

	if rs.PolicyID == "" {
		issues = append(issues, Issue{Field: "policy_id", Message: "must not be empty"})
	}
	if len(rs.Categories) == 0 {
		issues = append(issues, Issue{Field: "categories", Message: "at least one category must be declared"})
	}
	if len(rs.Rules) == 0 {
		issues = append(issues, Issue{Field: "rules", Message: "rule set has no rules"})
	}

	categories := make(map[string]struct{}, len(rs.Categories))
	for _, c := range rs.Categories {
		categories[c] = struct{}{}
	}

	seen := make(map[string]struct{}, len(rs.Rules))
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.ID == "" {
			issues = append(issues, Issue{Field: "id", Message: fmt.Sprintf("rule at index %d has no id", i)})
		} else if _, dup := seen[r.ID]; dup {
			issues = append(issues, Issue{RuleID: r.ID, Field: "id", Message: "duplicate rule id"})
		} else {
			seen[r.ID] = struct{}{}
		}

		if _, ok := categories[r.Category]; !ok {
			issues = append(issues, Issue{RuleID: r.ID, Field: "category",
				Message: fmt.Sprintf("category %q is not declared by the policy", r.Category)})
		}
		if _, ok := validSeverities[r.Severity]; !ok {
			issues = append(issues, Issue{RuleID: r.ID, Field: "severity",
				Message: fmt.Sprintf("invalid severity %q", r.Severity)})
		}
		if r.Critical && r.Severity != SeverityCritical {
			issues = append(issues, Issue{RuleID: r.ID, Field: "critical",
				Message: "critical rules must have severity critical"})
		}

		issues = append(issues, validateKindPayload(r, false)...)
	}

	issues = append(issues, validateScoreBands(rs.ScoreBands)...)

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}

	if conflicts := detectConflicts(rs); len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}
	return nil
}

// validateKindPayload checks that exactly the payload matching r.Kind is set
// and that its required fields are present. inner marks the then_rule of a
// conditional, for which nesting another conditional is rejected.
func validateKindPayload(r *Rule, inner bool) []Issue {
	var issues []Issue

	if _, ok := validKinds[r.Kind]; !ok {
		return []Issue{{RuleID: r.ID, Field: "type", Message: fmt.Sprintf("unknown rule type %q", r.Kind)}}
	}

	set := countPayloads(r)
	if set != 1 {
		issues = append(issues, Issue{RuleID: r.ID,
			Message: fmt.Sprintf("exactly one type payload must be set, found %d", set)})
		return issues
	}

	missing := func(field, msg string) {
		issues = append(issues, Issue{RuleID: r.ID, Field: field, Message: msg})
	}

	switch r.Kind {
	case KindBoolean:
		if r.Boolean == nil {
			missing("boolean", "payload does not match type")
		} else if len(r.Boolean.EvidencePatterns) == 0 {
			missing("boolean.evidence_patterns", "must list at least one pattern")
		}
	case KindNumeric:
		if r.Numeric == nil {
			missing("numeric", "payload does not match type")
			break
		}
		if _, ok := validComparators[r.Numeric.Comparator]; !ok {
			missing("numeric.comparator", fmt.Sprintf("invalid comparator %q", r.Numeric.Comparator))
		}
		if r.Numeric.MeasurementField == "" {
			missing("numeric.measurement_field", "must name a measurement")
		}
		if r.Numeric.Unit == "" {
			missing("numeric.unit", "must name a unit")
		}
	case KindPhrase:
		if r.Phrase == nil {
			missing("phrase", "payload does not match type")
		} else if len(r.Phrase.Phrases) == 0 {
			missing("phrase.phrases", "must list at least one phrase")
		}
	case KindList:
		if r.List == nil {
			missing("list", "payload does not match type")
			break
		}
		if _, ok := validListFields[r.List.Field]; !ok {
			missing("list.field", fmt.Sprintf("unknown list field %q", r.List.Field))
		}
		if len(r.List.Allowed) == 0 {
			missing("list.allowed", "must enumerate at least one allowed value")
		}
	case KindConditional:
		if inner {
			missing("conditional", "conditional rules cannot nest")
			break
		}
		if r.Conditional == nil {
			missing("conditional", "payload does not match type")
			break
		}
		c := r.Conditional
		if c.Condition.Field == "" {
			missing("conditional.condition.field", "must name a field")
		}
		if _, ok := validComparators[c.Condition.Operator]; !ok {
			missing("conditional.condition.operator", fmt.Sprintf("invalid operator %q", c.Condition.Operator))
		}
		if c.Then == nil {
			missing("conditional.then_rule", "must contain an inner rule")
		} else {
			innerRule := *c.Then
			if innerRule.ID == "" {
				innerRule.ID = r.ID + ".then"
			}
			issues = append(issues, validateKindPayload(&innerRule, true)...)
		}
	case KindMultiStep:
		if r.MultiStep == nil {
			missing("multi_step", "payload does not match type")
			break
		}
		if len(r.MultiStep.Steps) == 0 {
			missing("multi_step.steps", "must list at least one step")
		}
		for i, s := range r.MultiStep.Steps {
			if len(s.Phrases) == 0 {
				missing(fmt.Sprintf("multi_step.steps[%d].phrases", i), "must list at least one phrase")
			}
		}
		if r.MultiStep.MaxGapSeconds != nil && *r.MultiStep.MaxGapSeconds <= 0 {
			missing("multi_step.max_gap_seconds", "must be positive when set")
		}
	case KindToneBased:
		if r.Tone == nil {
			missing("tone_based", "payload does not match type")
			break
		}
		if r.Tone.SpeakerRole == "" {
			missing("tone_based.speaker_role", "must name a speaker role")
		}
		if r.Tone.MaxNegativeDeviation <= 0 || r.Tone.MaxNegativeDeviation > 1 {
			missing("tone_based.max_negative_deviation", "must be in (0, 1]")
		}
	case KindResolution:
		if r.Resolution == nil {
			missing("resolution", "payload does not match type")
			break
		}
		if len(r.Resolution.Markers) == 0 {
			missing("resolution.markers", "must list at least one marker")
		}
		if r.Resolution.MaxElapsedSeconds != nil && *r.Resolution.MaxElapsedSeconds <= 0 {
			missing("resolution.max_elapsed_seconds", "must be positive when set")
		}
	}

	return issues
}

func countPayloads(r *Rule) int {
	n := 0
	if r.Boolean != nil {
		n++
	}
	if r.Numeric != nil {
		n++
	}
	if r.Phrase != nil {
		n++
	}
	if r.List != nil {
		n++
	}
	if r.Conditional != nil {
		n++
	}
	if r.MultiStep != nil {
		n++
	}
	if r.Tone != nil {
		n++
	}
	if r.Resolution != nil {
		n++
	}
	return n
}

func validateScoreBands(bands []ScoreBand) []Issue {
	var issues []Issue
	byLabel := make(map[string][]ScoreBand)
	for _, b := range bands {
		if b.Min > b.Max {
			issues = append(issues, Issue{Field: "score_bands",
				Message: fmt.Sprintf("band %q has min > max", b.Label)})
		}
		byLabel[b.Label] = append(byLabel[b.Label], b)
	}
	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		bs := byLabel[l]
		sort.Slice(bs, func(i, j int) bool { return bs[i].Min < bs[j].Min })
		for i := 1; i < len(bs); i++ {
			if bs[i].Min < bs[i-1].Max {
				issues = append(issues, Issue{Field: "score_bands",
					Message: fmt.Sprintf("bands for %q overlap: [%g,%g] and [%g,%g]",
						l, bs[i-1].Min, bs[i-1].Max, bs[i].Min, bs[i].Max)})
			}
		}
	}
	return issues
}

// phraseStance records which rule requires or forbids a normalized phrase
// within a category.
type phraseStance struct {
	ruleID   string
	required bool
}

// detectConflicts flags pairs of rules where one requires and another forbids
// the same phrase in the same category. The contradiction is surfaced, never
// resolved in favour of either rule.
func detectConflicts(rs *RuleSet) []Conflict {
	stances := make(map[string][]phraseStance)

	record := func(category, ruleID string, phrases []string, required bool) {
		for _, p := range phrases {
			key := category + "\x00" + normalizePhrase(p)
			stances[key] = append(stances[key], phraseStance{ruleID: ruleID, required: required})
		}
	}

	for _, r := range rs.Rules {
		switch r.Kind {
		case KindPhrase:
			if r.Phrase != nil {
				record(r.Category, r.ID, r.Phrase.Phrases, r.Phrase.Required)
			}
		case KindBoolean:
			if r.Boolean != nil {
				record(r.Category, r.ID, r.Boolean.EvidencePatterns, r.Boolean.Required)
			}
		}
	}

	var conflicts []Conflict
	keys := make([]string, 0, len(stances))
	for k := range stances {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		list := stances[key]
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				if list[i].required != list[j].required {
					parts := strings.SplitN(key, "\x00", 2)
					a, b := list[i], list[j]
					if !a.required {
						a, b = b, a
					}
					conflicts = append(conflicts, Conflict{
						RuleA:    a.ruleID,
						RuleB:    b.ruleID,
						Category: parts[0],
						Phrase:   parts[1],
					})
				}
			}
		}
	}
	return conflicts
}

func normalizePhrase(p string) string {
	return strings.Join(strings.Fields(strings.ToLower(p)), " ")
}
