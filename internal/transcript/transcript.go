// Package transcript models the engine's runtime input: the
// speaker-role-tagged utterance stream produced by the transcription
// collaborator, plus optional sentiment data from the voice-sentiment
// collaborator and caller-supplied pre-computed measurements.
//
// Timestamps are seconds relative to call start. The engine never mutates an
// Input.
package transcript

import (
	"fmt"
	"strings"
)

const (
	RoleAgent    = "agent"
	RoleCustomer = "customer"
)

type Utterance struct {
	SpeakerRole string  `json:"speaker_role"`
	Text        string  `json:"text"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
	Confidence  float64 `json:"confidence"`
}

// Sentiment is a per-utterance label/score pair from the voice-sentiment
// service. Label is one of "positive", "negative", "neutral".
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Baseline is a speaker's baseline sentiment ratio triple. The three ratios
// sum to 1.
type Baseline struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

type Input struct {
	Utterances []Utterance `json:"utterances"`

	// UtteranceSentiments is parallel to Utterances when present; empty when
	// the sentiment collaborator did not run.
	UtteranceSentiments []Sentiment `json:"utterance_sentiments,omitempty"`

	// SentimentBySpeaker is an overall label per speaker role, used by
	// conditional rules (e.g. field "customer_sentiment").
	SentimentBySpeaker map[string]string `json:"sentiment_by_speaker,omitempty"`

	// BaselineBySpeaker holds per-speaker baseline sentiment ratios for
	// tone_based rules.
	BaselineBySpeaker map[string]Baseline `json:"baseline_by_speaker,omitempty"`

	// Measurements carries pre-computed numeric fields the engine cannot
	// derive from timestamps itself (e.g. hold_duration_seconds).
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

// StructuralError marks input that cannot be evaluated at all, as opposed to
// input that merely forces individual rules to skip. Fatal for the run,
// surfaced to the caller, never retried.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return "transcript is structurally invalid: " + e.Reason
}

// Validate checks the invariants every evaluation depends on: at least one
// utterance, every utterance role-tagged, timestamps non-negative and
// well-ordered, and sentiment parallelism when sentiments are supplied.
func (in *Input) Validate() error {
	if len(in.Utterances) == 0 {
		return &StructuralError{Reason: "no utterances"}
	}
	if len(in.UtteranceSentiments) != 0 && len(in.UtteranceSentiments) != len(in.Utterances) {
		return &StructuralError{Reason: fmt.Sprintf(
			"sentiment count %d does not match utterance count %d",
			len(in.UtteranceSentiments), len(in.Utterances))}
	}
	prevStart := 0.0
	for i, u := range in.Utterances {
		if strings.TrimSpace(u.SpeakerRole) == "" {
			return &StructuralError{Reason: fmt.Sprintf("utterance %d has no speaker role", i)}
		}
		if u.StartTime < 0 || u.EndTime < u.StartTime {
			return &StructuralError{Reason: fmt.Sprintf(
				"utterance %d has invalid timing [%g, %g]", i, u.StartTime, u.EndTime)}
		}
		if u.StartTime < prevStart {
			return &StructuralError{Reason: fmt.Sprintf(
				"utterance %d starts before its predecessor", i)}
		}
		prevStart = u.StartTime
	}
	return nil
}

// BySpeaker returns the utterances for one speaker role, chronological, with
// their original indices.
func (in *Input) BySpeaker(role string) []IndexedUtterance {
	var out []IndexedUtterance
	for i, u := range in.Utterances {
		if u.SpeakerRole == role {
			out = append(out, IndexedUtterance{Index: i, Utterance: u})
		}
	}
	return out
}

type IndexedUtterance struct {
	Index     int
	Utterance Utterance
}
