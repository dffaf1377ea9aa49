package rules

import (
	"fmt"
	"strings"
)

// Issue is a single validation finding, tied to a rule where applicable.
type Issue struct {
	RuleID  string `json:"rule_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	switch {
	case i.RuleID != "" && i.Field != "":
		return fmt.Sprintf("rule %q, field %q: %s", i.RuleID, i.Field, i.Message)
	case i.RuleID != "":
		return fmt.Sprintf("rule %q: %s", i.RuleID, i.Message)
	default:
		return i.Message
	}
}

// ValidationError reports schema or semantic defects in a candidate rule set.
// Always recoverable by re-synthesis or manual edit; never reaches the engine.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, iss := range e.Issues {
		msgs[i] = iss.String()
	}
	return fmt.Sprintf("rule set validation failed: %s", strings.Join(msgs, "; "))
}

// Conflict is a pair of rules that directly contradict each other.
type Conflict struct {
	RuleA    string `json:"rule_a"`
	RuleB    string `json:"rule_b"`
	Category string `json:"category"`
	Phrase   string `json:"phrase"`
}

// ConflictError reports direct contradictions between rules. It blocks
// approval until a human resolves the contradiction; it is never silently
// resolved in favour of either rule.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	msgs := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		msgs[i] = fmt.Sprintf("rules %q and %q contradict on phrase %q in category %q",
			c.RuleA, c.RuleB, c.Phrase, c.Category)
	}
	return "rule set conflict: " + strings.Join(msgs, "; ")
}
