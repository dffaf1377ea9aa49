package engine

import (
	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

func compare(cmp rules.Comparator, measured, threshold float64) bool {
	switch cmp {
	case rules.CompLE:
		return measured <= threshold
	case rules.CompLT:
		return measured < threshold
	case rules.CompGE:
		return measured >= threshold
	case rules.CompGT:
		return measured > threshold
	case rules.CompEQ:
		return measured == threshold
	}
	return false
}

// evalNumeric compares a named measurement against the rule's threshold.
// Missing measurements skip the rule; they never default to a pass.
func (e *Engine) evalNumeric(res *RuleResult, spec *rules.NumericSpec, in *transcript.Input) {
	measured, ok := in.Measurement(spec.MeasurementField)
	if !ok {
		res.SkippedReason = SkipMeasurementUnavailable
		return
	}

	res.Passed = compare(spec.Comparator, measured, spec.Value)
	if res.Passed {
		return
	}
	res.Evidence = e.capEvidence(numericEvidence(spec.MeasurementField, in))
}

// numericEvidence anchors a failed numeric verdict to the transcript span the
// measurement was derived from. Pre-computed fields with no transcript anchor
// yield no excerpt; the measured value itself is the caller's data.
func numericEvidence(field string, in *transcript.Input) []Evidence {
	switch field {
	case transcript.FieldGreetingLatency:
		for _, iu := range in.BySpeaker(transcript.RoleAgent) {
			return []Evidence{evidenceFrom(iu.Utterance)}
		}
	case transcript.FieldTotalSilence, transcript.FieldLongestSilence:
		if before, after, ok := in.LongestSilenceSpan(); ok {
			return []Evidence{evidenceFrom(before), evidenceFrom(after)}
		}
	case transcript.FieldCallDuration:
		if n := len(in.Utterances); n > 0 {
			return []Evidence{evidenceFrom(in.Utterances[n-1])}
		}
	case transcript.FieldAgentTalkRatio:
		if n := len(in.Utterances); n > 0 {
			return []Evidence{evidenceFrom(in.Utterances[0])}
		}
	}
	return nil
}
