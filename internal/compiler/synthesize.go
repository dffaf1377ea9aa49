package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/rules"
)

// SynthesisError is returned when synthesis failed validation twice in a
// row. The raw candidate and the validation errors are surfaced so a human
// can repair it manually; an unvalidated rule set is never used as fallback.
type SynthesisError struct {
	RawCandidate string
	Cause        error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("rule synthesis failed after retry: %v", e.Cause)
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

// candidate is the exact JSON shape the model must return.
type candidate struct {
	Categories []string     `json:"categories"`
	Rules      []rules.Rule `json:"rules"`
}

// Synthesize runs stage 3: one model call producing a candidate rule set,
// re-validated before anyone sees it. A validation failure triggers exactly
// one retry carrying the defects back to the model; a second failure
// surfaces the raw candidate for manual repair. The hard gate of stage 2
// applies: unanswered required clarifications abort before any model call.
func (c *Compiler) Synthesize(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	c.mu.Lock()
	live, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	// Model calls run outside the lock; work from a deep copy so a
	// concurrent Answer cannot mutate what we read.
	s := snapshot(live)
	c.mu.Unlock()

	if open := unanswered(s); len(open) > 0 {
		c.publishBlocked(s, "clarifications_unanswered", strings.Join(open, ", "))
		return nil, &UnansweredError{ClarificationIDs: open}
	}
	if c.llm == nil {
		return nil, fmt.Errorf("no model configured; submit a manual draft instead")
	}

	user := fmt.Sprintf(synthesizeUserPrompt,
		s.PolicyText,
		strings.Join(s.Categories, ", "),
		formatClarifications(s.Clarifications),
	)

	draft, rawCandidate, err := c.attemptSynthesis(ctx, s, user)
	if err != nil {
		c.logger.Warn("synthesis attempt failed, retrying once",
			"session_id", s.ID, "error", err)
		if c.metrics != nil {
			c.metrics.SynthesisRetries.Inc()
		}
		retryUser := user + fmt.Sprintf(synthesizeRetryNote, err.Error(), rawCandidate)
		draft, rawCandidate, err = c.attemptSynthesis(ctx, s, retryUser)
		if err != nil {
			if c.metrics != nil {
				c.metrics.CompileFailures.Inc()
			}
			c.publishBlocked(s, "validation_failed", err.Error())
			return nil, &SynthesisError{RawCandidate: rawCandidate, Cause: err}
		}
	}

	if err := c.store.CreateDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("persist draft: %w", err)
	}

	c.mu.Lock()
	if live, ok := c.sessions[sessionID]; ok {
		live.Draft = draft
		live.Stage = StageSynthesized
		s = snapshot(live)
	} else {
		// Session approved away mid-synthesis; the draft is persisted,
		// return it on the stale copy.
		s.Draft = draft
		s.Stage = StageSynthesized
	}
	c.mu.Unlock()

	c.logger.Info("candidate rule set synthesized",
		"session_id", s.ID,
		"policy_id", s.PolicyID,
		"version", draft.Version,
		"rules", len(draft.Rules),
		"content_hash", draft.ContentHash,
	)
	return s, nil
}

// attemptSynthesis makes one model call and validates the result. The raw
// candidate text is returned alongside any error for the retry prompt and
// for manual repair.
func (c *Compiler) attemptSynthesis(ctx context.Context, s *Session, user string) (*rules.RuleSet, string, error) {
	var cand candidate
	if err := c.llm.CompleteJSON(ctx, synthesizeSystemPrompt, user, 8192, &cand); err != nil {
		return nil, "", fmt.Errorf("model synthesis: %w", err)
	}
	raw, _ := json.Marshal(cand)

	draft := &rules.RuleSet{
		ID:               uuid.New(),
		PolicyID:         s.PolicyID,
		Status:           rules.StatusDraft,
		Categories:       s.Categories,
		Rules:            cand.Rules,
		GenerationMethod: rules.GeneratedByAI,
		CreatedAt:        time.Now().UTC(),
	}
	stampTraceability(draft, s)

	if err := rules.Validate(draft); err != nil {
		if c.metrics != nil {
			c.metrics.ValidationFailures.Inc()
		}
		return nil, string(raw), err
	}
	if err := draft.Rehash(); err != nil {
		return nil, string(raw), err
	}
	return draft, string(raw), nil
}

// stampTraceability backfills clarification references the model omitted, by
// matching each rule's source phrase against the resolved ambiguities.
// Matching order is longest phrase first so a source phrase containing both
// "response time" and "time" stamps the more specific clarification; the
// stamped id feeds the content hash, so the order must be deterministic.
func stampTraceability(draft *rules.RuleSet, s *Session) {
	type ref struct {
		phrase string
		id     string
	}
	refs := make([]ref, 0, len(s.Clarifications))
	for _, cl := range s.Clarifications {
		if p := strings.ToLower(cl.ResolvedAmbiguity); p != "" {
			refs = append(refs, ref{phrase: p, id: cl.ID})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if len(refs[i].phrase) != len(refs[j].phrase) {
			return len(refs[i].phrase) > len(refs[j].phrase)
		}
		return refs[i].phrase < refs[j].phrase
	})
	for i := range draft.Rules {
		r := &draft.Rules[i]
		if r.ClarificationID != "" || r.SourcePhrase == "" {
			continue
		}
		lower := strings.ToLower(r.SourcePhrase)
		for _, ref := range refs {
			if strings.Contains(lower, ref.phrase) {
				r.ClarificationID = ref.id
				break
			}
		}
	}
}

func formatClarifications(cls []rules.Clarification) string {
	if len(cls) == 0 {
		return "(none were needed)"
	}
	var sb strings.Builder
	for _, cl := range cls {
		answer := "(unanswered)"
		if cl.Answer != nil {
			answer = *cl.Answer
		}
		fmt.Fprintf(&sb, "- [%s] %s → %s\n", cl.ID, cl.Question, answer)
	}
	return sb.String()
}
