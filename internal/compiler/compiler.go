// Package compiler is the human-gated pipeline that turns free policy text
// into a validated RuleSet: analyze → clarify → synthesize → approve. The
// generative model participates only in analysis (proposing ambiguities) and
// synthesis (proposing rules); every proposal passes the same validator a
// manual edit would, and only a human approval freezes a version.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/events"
	"github.com/arbiterhq/arbiter/internal/metrics"
	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/store"
)

type Stage string

const (
	StageAwaitingAnswers Stage = "awaiting_answers"
	StageReadyToSynth    Stage = "ready_to_synthesize"
	StageSynthesized     Stage = "synthesized"
	StageApproved        Stage = "approved"
)

// Completer is the generative-model dependency; *llm.Client satisfies it.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string, maxTokens int, v any) error
}

// Publisher is the event-bus dependency; *events.Client satisfies it.
type Publisher interface {
	Publish(subject string, data any) error
}

// Session is one in-flight compilation. Sessions live in memory until
// approval; the draft rule set itself is persisted on synthesis.
type Session struct {
	ID             uuid.UUID             `json:"id"`
	PolicyID       string                `json:"policy_id"`
	PolicyText     string                `json:"policy_text"`
	Categories     []string              `json:"categories"`
	CategoryNotes  string                `json:"category_notes,omitempty"`
	Ambiguities    []Ambiguity           `json:"ambiguities"`
	Clarifications []rules.Clarification `json:"clarifications"`
	Draft          *rules.RuleSet        `json:"draft,omitempty"`
	Stage          Stage                 `json:"stage"`
	CreatedAt      time.Time             `json:"created_at"`
}

type Compiler struct {
	llm     Completer
	store   store.VersionStore
	lexicon *Lexicon
	logger  *slog.Logger
	metrics *metrics.Metrics
	bus     Publisher

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func New(llm Completer, st store.VersionStore, lexicon *Lexicon, logger *slog.Logger, m *metrics.Metrics) *Compiler {
	if lexicon == nil {
		lexicon = NewLexicon(nil)
	}
	return &Compiler{
		llm:      llm,
		store:    st,
		lexicon:  lexicon,
		logger:   logger,
		metrics:  m,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// SetPublisher attaches the event bus. Called once during wiring, before
// any session exists; a nil bus disables compile-blocked events.
func (c *Compiler) SetPublisher(bus Publisher) {
	c.bus = bus
}

// publishBlocked announces a session stuck at a gate. Best effort: the
// session itself already holds everything needed for repair.
func (c *Compiler) publishBlocked(s *Session, reason, detail string) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(events.SubjectCompileBlocked, map[string]any{
		"session_id": s.ID,
		"policy_id":  s.PolicyID,
		"reason":     reason,
		"detail":     detail,
	}); err != nil {
		c.logger.Warn("failed to publish compile-blocked event",
			"session_id", s.ID, "error", err)
	}
}

// ErrSessionNotFound is returned for unknown or already-approved sessions.
var ErrSessionNotFound = fmt.Errorf("compile session not found")

// UnansweredError blocks synthesis while required clarifications are open.
// This is the hard gate of stage 2: there is no way past it but answering.
type UnansweredError struct {
	ClarificationIDs []string
}

func (e *UnansweredError) Error() string {
	return fmt.Sprintf("clarifications unanswered: %s", strings.Join(e.ClarificationIDs, ", "))
}

// StartSession runs the analyze and clarify stages and registers the session.
func (c *Compiler) StartSession(ctx context.Context, policyID, policyText, categoryNotes string, categories []string) (*Session, error) {
	if policyID == "" || strings.TrimSpace(policyText) == "" {
		return nil, fmt.Errorf("policy id and policy text are required")
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("at least one category is required")
	}

	ambiguities := c.analyze(ctx, policyText, categoryNotes)
	clarifications := buildClarifications(ambiguities)

	s := &Session{
		ID:             uuid.New(),
		PolicyID:       policyID,
		PolicyText:     policyText,
		CategoryNotes:  categoryNotes,
		Categories:     categories,
		Ambiguities:    ambiguities,
		Clarifications: clarifications,
		Stage:          StageAwaitingAnswers,
		CreatedAt:      time.Now().UTC(),
	}
	if len(clarifications) == 0 {
		s.Stage = StageReadyToSynth
	}

	c.mu.Lock()
	c.sessions[s.ID] = s
	c.mu.Unlock()

	c.logger.Info("compile session started",
		"session_id", s.ID,
		"policy_id", policyID,
		"ambiguities", len(ambiguities),
		"clarifications", len(clarifications),
	)
	return snapshot(s), nil
}

// Get returns a copy of the session.
func (c *Compiler) Get(sessionID uuid.UUID) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return snapshot(s), nil
}

// Answer records an answer to one clarification.
func (c *Compiler) Answer(sessionID uuid.UUID, clarificationID, answer string) (*Session, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("answer must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	found := false
	for i := range s.Clarifications {
		if s.Clarifications[i].ID == clarificationID {
			a := answer
			s.Clarifications[i].Answer = &a
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("clarification %q not found in session", clarificationID)
	}

	if unanswered(s) == nil {
		s.Stage = StageReadyToSynth
	}
	return snapshot(s), nil
}

// Approve freezes the session's draft as a new immutable version via the
// store's compare-and-set, audit-logs the resolved clarifications, and
// discards the session. A concurrent approval loses with a version conflict.
func (c *Compiler) Approve(ctx context.Context, sessionID uuid.UUID, approvedBy, expectedHash string) (*rules.RuleSet, error) {
	c.mu.Lock()
	live, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	// Store calls run outside the lock; work from a deep copy so a
	// concurrent Answer cannot mutate what we read.
	s := snapshot(live)
	c.mu.Unlock()

	if s.Draft == nil {
		return nil, fmt.Errorf("session %s has no synthesized draft to approve", sessionID)
	}
	if approvedBy == "" {
		return nil, fmt.Errorf("approved_by is required")
	}

	approved, err := c.store.Approve(ctx, s.Draft.ID, approvedBy, expectedHash)
	if err != nil {
		return nil, err
	}

	if err := c.store.LogClarifications(ctx, approved.ID, s.Clarifications); err != nil {
		// The version is already frozen; a failed audit write is logged, not
		// unwound.
		c.logger.Error("failed to audit-log clarifications", "ruleset_id", approved.ID, "error", err)
	}

	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()

	c.logger.Info("rule set approved",
		"policy_id", approved.PolicyID,
		"version", approved.Version,
		"content_hash", approved.ContentHash,
		"approved_by", approvedBy,
	)
	return approved, nil
}

func unanswered(s *Session) []string {
	var ids []string
	for _, cl := range s.Clarifications {
		if cl.Required && !cl.Answered() {
			ids = append(ids, cl.ID)
		}
	}
	return ids
}

func snapshot(s *Session) *Session {
	cp := *s
	cp.Ambiguities = append([]Ambiguity(nil), s.Ambiguities...)
	cp.Clarifications = append([]rules.Clarification(nil), s.Clarifications...)
	if s.Draft != nil {
		d := *s.Draft
		d.Rules = append([]rules.Rule(nil), s.Draft.Rules...)
		cp.Draft = &d
	}
	return &cp
}
