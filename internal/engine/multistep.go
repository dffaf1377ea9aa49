package engine

import (
	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

// evalMultiStep checks an ordered sequence of sub-checks. Ordered (the
// default) requires each step's match to start at or after the previous
// match; unordered only requires every step to appear somewhere. When
// MaxGapSeconds is set, consecutive matches must fall within that many
// seconds of each other. Partial satisfaction is recorded per step.
func (e *Engine) evalMultiStep(res *RuleResult, spec *rules.MultiStepSpec, in *transcript.Input) {
	role := speakerOrAgent(spec.SpeakerRole)
	spoken := in.BySpeaker(role)
	if len(spoken) == 0 {
		res.SkippedReason = SkipNoSpeakerUtterances
		return
	}

	ordered := spec.Ordered == nil || *spec.Ordered

	res.Steps = make([]StepResult, len(spec.Steps))
	allSatisfied := true
	var prevMatch *transcript.Utterance
	minStart := 0.0

	for i, step := range spec.Steps {
		res.Steps[i] = StepResult{Name: step.Name}

		var match *transcript.Utterance
		for _, iu := range spoken {
			if ordered && iu.Utterance.StartTime < minStart {
				continue
			}
			if e.matchesAny(iu.Utterance.Text, step.Phrases, false) {
				u := iu.Utterance
				match = &u
				break
			}
		}

		if match == nil {
			allSatisfied = false
			continue
		}
		if spec.MaxGapSeconds != nil && prevMatch != nil &&
			match.StartTime-prevMatch.EndTime > *spec.MaxGapSeconds {
			allSatisfied = false
			continue
		}

		ev := evidenceFrom(*match)
		res.Steps[i].Satisfied = true
		res.Steps[i].Evidence = &ev
		prevMatch = match
		if ordered {
			minStart = match.StartTime
		}
	}

	res.Passed = allSatisfied
	if !allSatisfied {
		// Evidence on failure: the steps that were satisfied, anchoring how
		// far the sequence got.
		var ev []Evidence
		for _, s := range res.Steps {
			if s.Satisfied && s.Evidence != nil {
				ev = append(ev, *s.Evidence)
			}
		}
		if len(ev) == 0 {
			ev = []Evidence{evidenceFrom(spoken[0].Utterance)}
		}
		res.Evidence = e.capEvidence(ev)
	}
}
