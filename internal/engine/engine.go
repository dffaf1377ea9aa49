// Package engine executes an approved rule set against one call's transcript.
//
// Evaluation is a pure function: no network, no clock, no randomness, no
// shared mutable state. The same (rule set, input, config) always produces
// byte-identical results, which is what makes historical evaluations
// reproducible and parallel runs safe without locking.
package engine

import (
	"fmt"

	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

// InconsistencyError marks a rule that should have been impossible
// post-approval: the validator guarantees well-formed rules, so hitting this
// at evaluation time indicates a validator defect, not bad input data.
type InconsistencyError struct {
	RuleID string
	Reason string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("rule %q is internally inconsistent (validator defect): %s", e.RuleID, e.Reason)
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate runs every enabled rule in declaration order and returns one
// result per rule. It either completes fully or returns a structural error;
// there is no partial state. The input is never mutated.
func (e *Engine) Evaluate(rs *rules.RuleSet, in *transcript.Input) ([]RuleResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	enabled := rs.EnabledRules()
	results := make([]RuleResult, 0, len(enabled))
	for i := range enabled {
		res, err := e.evaluateRule(&enabled[i], in)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) evaluateRule(r *rules.Rule, in *transcript.Input) (RuleResult, error) {
	base := RuleResult{
		RuleID:   r.ID,
		Severity: r.Severity,
		Category: r.Category,
		Critical: r.Critical,
	}

	switch r.Kind {
	case rules.KindBoolean:
		e.evalBoolean(&base, r.Boolean, in)
	case rules.KindNumeric:
		e.evalNumeric(&base, r.Numeric, in)
	case rules.KindPhrase:
		e.evalPhrase(&base, r.Phrase, in)
	case rules.KindList:
		e.evalList(&base, r.List, in)
	case rules.KindConditional:
		return e.evalConditional(base, r.Conditional, in)
	case rules.KindMultiStep:
		e.evalMultiStep(&base, r.MultiStep, in)
	case rules.KindToneBased:
		e.evalTone(&base, r.Tone, in)
	case rules.KindResolution:
		e.evalResolution(&base, r.Resolution, in)
	default:
		return RuleResult{}, &InconsistencyError{RuleID: r.ID, Reason: fmt.Sprintf("unknown rule type %q", r.Kind)}
	}
	return base, nil
}

func speakerOrAgent(role string) string {
	if role == "" {
		return transcript.RoleAgent
	}
	return role
}

// capEvidence trims an evidence slice to the configured maximum.
func (e *Engine) capEvidence(ev []Evidence) []Evidence {
	if len(ev) > e.cfg.MaxEvidencePerRule {
		return ev[:e.cfg.MaxEvidencePerRule]
	}
	return ev
}
