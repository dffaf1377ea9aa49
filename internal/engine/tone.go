package engine

import (
	"strings"

	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

// evalTone compares a speaker's observed negative-sentiment ratio in this
// call against their baseline ratio, firing only when the deviation exceeds
// the rule's threshold. Comparing against the baseline keeps a naturally
// intense voice from being flagged as a violation. Both a baseline and
// per-utterance sentiment are required; otherwise the rule is skipped.
func (e *Engine) evalTone(res *RuleResult, spec *rules.ToneSpec, in *transcript.Input) {
	baseline, haveBaseline := in.BaselineBySpeaker[spec.SpeakerRole]
	if !haveBaseline || len(in.UtteranceSentiments) != len(in.Utterances) || len(in.UtteranceSentiments) == 0 {
		res.SkippedReason = SkipSentimentUnavailable
		return
	}

	var total, negative int
	var negativeUtterances []transcript.Utterance
	for i, u := range in.Utterances {
		if u.SpeakerRole != spec.SpeakerRole {
			continue
		}
		total++
		if strings.EqualFold(in.UtteranceSentiments[i].Label, "negative") {
			negative++
			negativeUtterances = append(negativeUtterances, u)
		}
	}
	if total == 0 {
		res.SkippedReason = SkipNoSpeakerUtterances
		return
	}

	observed := float64(negative) / float64(total)
	deviation := observed - baseline.Negative
	if deviation <= spec.MaxNegativeDeviation {
		res.Passed = true
		return
	}

	res.Passed = false
	ev := make([]Evidence, 0, len(negativeUtterances))
	for _, u := range negativeUtterances {
		ev = append(ev, evidenceFrom(u))
	}
	res.Evidence = e.capEvidence(ev)
}
