package engine

import (
	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

// evalResolution looks for explicit resolution evidence in agent speech,
// optionally bounded by a maximum elapsed time. A marker spoken after the
// bound does not count as resolution; it becomes the failure evidence.
func (e *Engine) evalResolution(res *RuleResult, spec *rules.ResolutionSpec, in *transcript.Input) {
	agent := in.BySpeaker(transcript.RoleAgent)
	if len(agent) == 0 {
		res.SkippedReason = SkipNoSpeakerUtterances
		return
	}

	var lateMatch *transcript.Utterance
	for _, iu := range agent {
		if !e.matchesAny(iu.Utterance.Text, spec.Markers, false) {
			continue
		}
		if spec.MaxElapsedSeconds != nil && iu.Utterance.EndTime > *spec.MaxElapsedSeconds {
			if lateMatch == nil {
				u := iu.Utterance
				lateMatch = &u
			}
			continue
		}
		res.Passed = true
		return
	}

	res.Passed = false
	if lateMatch != nil {
		res.Evidence = []Evidence{evidenceFrom(*lateMatch)}
		return
	}
	res.Evidence = []Evidence{evidenceFrom(agent[len(agent)-1].Utterance)}
}
