package transcript

// Derivable measurement fields the engine computes from utterance timestamps.
// Anything not in this set must arrive pre-computed in Input.Measurements.
const (
	FieldGreetingLatency = "greeting_latency_seconds"
	FieldTotalSilence    = "total_silence_seconds"
	FieldLongestSilence  = "longest_silence_seconds"
	FieldCallDuration    = "call_duration_seconds"
	FieldAgentTalkRatio  = "agent_talk_ratio"
)

// DerivableFields lists the recognised derivable measurements.
var DerivableFields = []string{
	FieldGreetingLatency,
	FieldTotalSilence,
	FieldLongestSilence,
	FieldCallDuration,
	FieldAgentTalkRatio,
}

// Measurement resolves a named numeric field. Caller-supplied values take
// precedence over derivation so a deployment can override the simple
// timestamp arithmetic with audio-derived values. The second return is false
// when the field is neither supplied nor derivable from this input.
func (in *Input) Measurement(field string) (float64, bool) {
	if v, ok := in.Measurements[field]; ok {
		return v, true
	}
	return in.derive(field)
}

func (in *Input) derive(field string) (float64, bool) {
	if len(in.Utterances) == 0 {
		return 0, false
	}
	switch field {
	case FieldGreetingLatency:
		for _, u := range in.Utterances {
			if u.SpeakerRole == RoleAgent {
				return u.StartTime, true
			}
		}
		return 0, false
	case FieldTotalSilence:
		total := 0.0
		for i := 1; i < len(in.Utterances); i++ {
			if gap := in.Utterances[i].StartTime - in.Utterances[i-1].EndTime; gap > 0 {
				total += gap
			}
		}
		return total, true
	case FieldLongestSilence:
		longest := 0.0
		for i := 1; i < len(in.Utterances); i++ {
			if gap := in.Utterances[i].StartTime - in.Utterances[i-1].EndTime; gap > longest {
				longest = gap
			}
		}
		return longest, true
	case FieldCallDuration:
		end := 0.0
		for _, u := range in.Utterances {
			if u.EndTime > end {
				end = u.EndTime
			}
		}
		return end, true
	case FieldAgentTalkRatio:
		agent, total := 0.0, 0.0
		for _, u := range in.Utterances {
			d := u.EndTime - u.StartTime
			total += d
			if u.SpeakerRole == RoleAgent {
				agent += d
			}
		}
		if total == 0 {
			return 0, false
		}
		return agent / total, true
	}
	return 0, false
}

// LongestSilenceSpan returns the utterances bounding the longest gap, for
// evidence extraction. ok is false when there is no positive gap.
func (in *Input) LongestSilenceSpan() (before, after Utterance, ok bool) {
	longest := 0.0
	idx := -1
	for i := 1; i < len(in.Utterances); i++ {
		if gap := in.Utterances[i].StartTime - in.Utterances[i-1].EndTime; gap > longest {
			longest = gap
			idx = i
		}
	}
	if idx < 0 {
		return Utterance{}, Utterance{}, false
	}
	return in.Utterances[idx-1], in.Utterances[idx], true
}
