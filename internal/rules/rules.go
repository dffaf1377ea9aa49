// Package rules defines the typed rule vocabulary, the RuleSet lifecycle,
// and compile-time validation. Everything downstream of the compiler works
// only with these types: free policy text never crosses this boundary.
package rules

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the eight rule types. The set is closed; the engine
// dispatches with an exhaustive switch so a new kind is a compile-time change.
type Kind string

const (
	KindBoolean     Kind = "boolean"
	KindNumeric     Kind = "numeric"
	KindPhrase      Kind = "phrase"
	KindList        Kind = "list"
	KindConditional Kind = "conditional"
	KindMultiStep   Kind = "multi_step"
	KindToneBased   Kind = "tone_based"
	KindResolution  Kind = "resolution"
)

// Kinds lists every valid rule kind, in schema order.
var Kinds = []Kind{
	KindBoolean, KindNumeric, KindPhrase, KindList,
	KindConditional, KindMultiStep, KindToneBased, KindResolution,
}

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

type Comparator string

const (
	CompLE Comparator = "le"
	CompLT Comparator = "lt"
	CompGE Comparator = "ge"
	CompGT Comparator = "gt"
	CompEQ Comparator = "eq"
)

// Rule is the atomic policy unit. Exactly one kind payload must be set,
// matching Kind. Description is for human audit only and is never evaluated.
type Rule struct {
	ID          string   `json:"id"`
	Kind        Kind     `json:"type"`
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Enabled     bool     `json:"enabled"`
	Critical    bool     `json:"critical"`
	Description string   `json:"description,omitempty"`

	// Traceability back to the compile session. Audit only.
	SourcePhrase    string `json:"source_phrase,omitempty"`
	ClarificationID string `json:"clarification_id,omitempty"`

	Boolean     *BooleanSpec     `json:"boolean,omitempty"`
	Numeric     *NumericSpec     `json:"numeric,omitempty"`
	Phrase      *PhraseSpec      `json:"phrase,omitempty"`
	List        *ListSpec        `json:"list,omitempty"`
	Conditional *ConditionalSpec `json:"conditional,omitempty"`
	MultiStep   *MultiStepSpec   `json:"multi_step,omitempty"`
	Tone        *ToneSpec        `json:"tone_based,omitempty"`
	Resolution  *ResolutionSpec  `json:"resolution,omitempty"`
}

// BooleanSpec checks presence or absence of a behaviour via phrase variants.
type BooleanSpec struct {
	EvidencePatterns []string `json:"evidence_patterns"`
	Required         bool     `json:"required"`
	Fuzzy            bool     `json:"fuzzy,omitempty"`
	SpeakerRole      string   `json:"speaker_role,omitempty"` // default "agent"
}

// NumericSpec compares a named measurement against a threshold. The
// measurement is either supplied pre-computed by the caller or derived from
// utterance timestamps when the field is one of the recognised derivable set.
type NumericSpec struct {
	Comparator       Comparator `json:"comparator"`
	Value            float64    `json:"value"`
	Unit             string     `json:"unit"`
	MeasurementField string     `json:"measurement_field"`
}

type PhraseSpec struct {
	Phrases     []string `json:"phrases"`
	Required    bool     `json:"required"`
	Fuzzy       bool     `json:"fuzzy,omitempty"`
	SpeakerRole string   `json:"speaker_role,omitempty"` // default "agent"
}

// ListSpec requires a derived textual value to be one of an enumerated set.
// Field is one of "closing_phrase" (last agent utterance) or
// "greeting_phrase" (first agent utterance).
type ListSpec struct {
	Field   string   `json:"field"`
	Allowed []string `json:"allowed"`
	Fuzzy   bool     `json:"fuzzy,omitempty"`
}

type Condition struct {
	Field    string     `json:"field"`
	Operator Comparator `json:"operator"`
	Value    string     `json:"value"`
}

// ConditionalSpec evaluates Then only when Condition holds. Then may be any
// kind except conditional (no nesting).
type ConditionalSpec struct {
	Condition Condition `json:"condition"`
	Then      *Rule     `json:"then_rule"`
}

type Step struct {
	Name    string   `json:"name"`
	Phrases []string `json:"phrases"`
}

// MultiStepSpec is an ordered sequence of sub-checks. Ordered defaults to
// true; set "ordered": false for all-present-within-window semantics.
// MaxGapSeconds, when set, bounds the elapsed time between consecutive steps.
type MultiStepSpec struct {
	Steps         []Step   `json:"steps"`
	MaxGapSeconds *float64 `json:"max_gap_seconds,omitempty"`
	Ordered       *bool    `json:"ordered,omitempty"`
	SpeakerRole   string   `json:"speaker_role,omitempty"`
}

// ToneSpec fires when a speaker's observed negative-sentiment ratio exceeds
// their baseline by more than MaxNegativeDeviation. Requires both baseline
// and per-utterance sentiment; skipped when either is absent.
type ToneSpec struct {
	SpeakerRole          string  `json:"speaker_role"`
	MaxNegativeDeviation float64 `json:"max_negative_deviation"`
}

type ResolutionSpec struct {
	Markers           []string `json:"markers"`
	MaxElapsedSeconds *float64 `json:"max_elapsed_seconds,omitempty"`
}

// ScoreBand is a declared severity/score band; bands on the same label axis
// must not overlap.
type ScoreBand struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
)

type GenerationMethod string

const (
	GeneratedByAI     GenerationMethod = "ai"
	GeneratedManually GenerationMethod = "manual"
)

// RuleSet is an ordered collection of rules for one policy. Drafts mutate
// freely; approval freezes the set, and any later change is a new version.
type RuleSet struct {
	ID               uuid.UUID        `json:"id"`
	PolicyID         string           `json:"policy_id"`
	Version          int              `json:"version"`
	Status           Status           `json:"status"`
	Categories       []string         `json:"categories"`
	Rules            []Rule           `json:"rules"`
	ScoreBands       []ScoreBand      `json:"score_bands,omitempty"`
	ContentHash      string           `json:"content_hash"`
	GenerationMethod GenerationMethod `json:"generation_method"`
	ApprovedBy       string           `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Frozen reports whether the set has been approved and is immutable.
func (rs *RuleSet) Frozen() bool {
	return rs.Status == StatusApproved && rs.ApprovedAt != nil
}

// EnabledRules returns the enabled rules in declaration order.
func (rs *RuleSet) EnabledRules() []Rule {
	out := make([]Rule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Clarification is a question/answer pair raised during compilation. It lives
// only inside a compile session; resolved clarifications are audit-logged at
// approval time and then discarded.
type Clarification struct {
	ID                string  `json:"id"`
	Question          string  `json:"question"`
	Answer            *string `json:"answer,omitempty"`
	ResolvedAmbiguity string  `json:"resolved_ambiguity"`
	Required          bool    `json:"required"`
}

// Answered reports whether the clarification has a non-empty answer.
func (c Clarification) Answered() bool {
	return c.Answer != nil && *c.Answer != ""
}
