package engine

import (
	"strconv"
	"strings"

	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

// evalConditional gates an inner rule on a condition over the input. Three
// outcomes are representable and kept distinct for audit:
//
//   - condition data missing → skip (passed=false, reason set)
//   - condition false → pass-by-inapplicability (passed=true, reason
//     condition_not_met)
//   - condition true → the inner rule's verdict, under the outer rule's
//     identity, category and severity
func (e *Engine) evalConditional(base RuleResult, spec *rules.ConditionalSpec, in *transcript.Input) (RuleResult, error) {
	holds, ok := conditionHolds(spec.Condition, in)
	if !ok {
		base.SkippedReason = SkipConditionDataUnavailable
		return base, nil
	}
	if !holds {
		base.Passed = true
		base.SkippedReason = SkipConditionNotMet
		return base, nil
	}

	inner := *spec.Then
	inner.ID = base.RuleID
	inner.Category = base.Category
	inner.Severity = base.Severity
	inner.Critical = base.Critical
	return e.evaluateRule(&inner, in)
}

// conditionHolds resolves the condition field against the input. Sentiment
// fields ("<role>_sentiment") compare labels; any other field is resolved as
// a numeric measurement. ok is false when the field cannot be resolved.
func conditionHolds(c rules.Condition, in *transcript.Input) (holds, ok bool) {
	if role, isSentiment := strings.CutSuffix(c.Field, "_sentiment"); isSentiment {
		label, present := in.SentimentBySpeaker[role]
		if !present {
			return false, false
		}
		switch c.Operator {
		case rules.CompEQ:
			return strings.EqualFold(label, c.Value), true
		default:
			return false, false
		}
	}

	measured, present := in.Measurement(c.Field)
	if !present {
		return false, false
	}
	threshold, err := strconv.ParseFloat(c.Value, 64)
	if err != nil {
		return false, false
	}
	return compare(c.Operator, measured, threshold), true
}
