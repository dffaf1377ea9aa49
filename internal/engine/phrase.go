package engine

import (
	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

// findMatch returns the first utterance of the given speaker, in
// chronological order, containing any of the phrases. The first match is the
// tie-break: it becomes the evidence item.
func (e *Engine) findMatch(in *transcript.Input, role string, phrases []string, fuzzy bool) (transcript.Utterance, bool) {
	for _, iu := range in.BySpeaker(role) {
		if e.matchesAny(iu.Utterance.Text, phrases, fuzzy) {
			return iu.Utterance, true
		}
	}
	return transcript.Utterance{}, false
}

// presenceCheck implements the shared required/forbidden semantics of boolean
// and phrase rules.
//
// required=true fails when no phrase appears; the evidence on failure is the
// speaker's first utterance, anchoring where the phrase was expected.
// required=false fails on the first occurrence, with that utterance as
// evidence. When the speaker never spoke, the rule is skipped rather than
// defaulted.
func (e *Engine) presenceCheck(res *RuleResult, in *transcript.Input, role string, phrases []string, required, fuzzy bool) {
	spoken := in.BySpeaker(role)
	if len(spoken) == 0 {
		res.SkippedReason = SkipNoSpeakerUtterances
		return
	}

	match, found := e.findMatch(in, role, phrases, fuzzy)
	switch {
	case required && found:
		res.Passed = true
	case required && !found:
		res.Passed = false
		res.Evidence = []Evidence{evidenceFrom(spoken[0].Utterance)}
	case !required && found:
		res.Passed = false
		res.Evidence = []Evidence{evidenceFrom(match)}
	default: // forbidden and absent
		res.Passed = true
	}
}

func (e *Engine) evalBoolean(res *RuleResult, spec *rules.BooleanSpec, in *transcript.Input) {
	e.presenceCheck(res, in, speakerOrAgent(spec.SpeakerRole), spec.EvidencePatterns, spec.Required, spec.Fuzzy)
}

func (e *Engine) evalPhrase(res *RuleResult, spec *rules.PhraseSpec, in *transcript.Input) {
	e.presenceCheck(res, in, speakerOrAgent(spec.SpeakerRole), spec.Phrases, spec.Required, spec.Fuzzy)
}

// evalList checks that a derived textual value is one of the enumerated set.
func (e *Engine) evalList(res *RuleResult, spec *rules.ListSpec, in *transcript.Input) {
	agent := in.BySpeaker(transcript.RoleAgent)
	if len(agent) == 0 {
		res.SkippedReason = SkipNoSpeakerUtterances
		return
	}

	var target transcript.Utterance
	switch spec.Field {
	case "greeting_phrase":
		target = agent[0].Utterance
	case "closing_phrase":
		target = agent[len(agent)-1].Utterance
	default:
		// Unreachable post-validation; treat as missing data, not a pass.
		res.SkippedReason = SkipMeasurementUnavailable
		return
	}

	if e.matchesAny(target.Text, spec.Allowed, spec.Fuzzy) {
		res.Passed = true
		return
	}
	res.Passed = false
	res.Evidence = []Evidence{evidenceFrom(target)}
}
