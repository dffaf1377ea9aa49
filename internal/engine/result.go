package engine

import (
	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

// Skip reasons. A skip is an explicit "not evaluable" outcome, distinct from
// pass and fail; rules never silently default to passed on missing data.
const (
	// SkipConditionNotMet marks pass-by-inapplicability on a conditional
	// rule: the result also has Passed=true, distinguishing it from both a
	// pass-by-satisfaction (empty reason) and a data-missing skip.
	SkipConditionNotMet = "condition_not_met"

	SkipMeasurementUnavailable   = "measurement_unavailable"
	SkipSentimentUnavailable     = "sentiment_data_unavailable"
	SkipNoSpeakerUtterances      = "no_speaker_utterances"
	SkipConditionDataUnavailable = "condition_data_unavailable"
)

// Evidence is a transcript excerpt justifying a verdict.
type Evidence struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Speaker   string  `json:"speaker"`
}

func evidenceFrom(u transcript.Utterance) Evidence {
	return Evidence{
		Text:      u.Text,
		StartTime: u.StartTime,
		EndTime:   u.EndTime,
		Speaker:   u.SpeakerRole,
	}
}

// StepResult records per-step satisfaction of a multi_step rule.
type StepResult struct {
	Name      string    `json:"name"`
	Satisfied bool      `json:"satisfied"`
	Evidence  *Evidence `json:"evidence,omitempty"`
}

// RuleResult is one rule's verdict for one evaluation.
type RuleResult struct {
	RuleID        string         `json:"rule_id"`
	Passed        bool           `json:"passed"`
	Severity      rules.Severity `json:"severity"`
	Category      string         `json:"category"`
	Critical      bool           `json:"critical"`
	Evidence      []Evidence     `json:"evidence,omitempty"`
	SkippedReason string         `json:"skipped_reason,omitempty"`
	Steps         []StepResult   `json:"steps,omitempty"`
}

// Skipped reports whether the rule could not be evaluated against this input
// (missing data or unmet condition).
func (r RuleResult) Skipped() bool {
	return r.SkippedReason != ""
}
