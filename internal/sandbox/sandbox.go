// Package sandbox runs rule sets against sample transcripts for
// authoring-time preview. Nothing here persists or publishes: the harness is
// the engine plus the aggregator and nothing else, so authors can iterate on
// a draft without leaving a trace in the version history.
package sandbox

import (
	"github.com/arbiterhq/arbiter/internal/aggregate"
	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

type Harness struct {
	eng *engine.Engine
}

func New(cfg engine.Config) *Harness {
	return &Harness{eng: engine.New(cfg)}
}

// Run validates the rule set (drafts included: a preview against an invalid
// set would be meaningless) and evaluates it against the sample input.
func (h *Harness) Run(rs *rules.RuleSet, in *transcript.Input) (*aggregate.Summary, error) {
	if err := rules.Validate(rs); err != nil {
		return nil, err
	}
	results, err := h.eng.Evaluate(rs, in)
	if err != nil {
		return nil, err
	}
	summary := aggregate.Summarize(results)
	return &summary, nil
}
