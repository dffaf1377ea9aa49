// Package service orchestrates evaluations: transcript-ready events in,
// persisted summaries and digest events out. All the real work happens in
// the pure engine; this layer only loads the right frozen snapshot and moves
// results to their consumers, so concurrent evaluations need no locking.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/aggregate"
	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/events"
	"github.com/arbiterhq/arbiter/internal/metrics"
	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/store"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

// digestEvidenceLimit caps excerpts per category in the classifier digest.
const digestEvidenceLimit = 5

// TranscriptReadyEvent is the payload of qa.transcript.ready.
type TranscriptReadyEvent struct {
	CallID   string `json:"call_id"`
	PolicyID string `json:"policy_id"`

	// RuleSetVersion pins a historical version for regression runs;
	// 0 means the policy's active version.
	RuleSetVersion int `json:"ruleset_version,omitempty"`

	Transcript transcript.Input `json:"transcript"`
}

// Publisher is the event-bus dependency; *events.Client satisfies it.
type Publisher interface {
	Publish(subject string, data any) error
}

type Service struct {
	store   store.VersionStore
	bus     Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics

	eng atomic.Pointer[engine.Engine]
}

func New(st store.VersionStore, cfg engine.Config, bus Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	s := &Service{
		store:   st,
		bus:     bus,
		logger:  logger,
		metrics: m,
	}
	s.eng.Store(engine.New(cfg))
	return s
}

// SetEngineConfig swaps the engine tunables; in-flight evaluations keep the
// engine they started with.
func (s *Service) SetEngineConfig(cfg engine.Config) {
	s.eng.Store(engine.New(cfg))
	s.logger.Info("engine config reloaded",
		"fuzzy_max_distance", cfg.FuzzyMaxDistance,
		"max_evidence_per_rule", cfg.MaxEvidencePerRule,
	)
}

// HandleTranscriptReady is the NATS handler for qa.transcript.ready.
func (s *Service) HandleTranscriptReady(subject string, data []byte) {
	ctx := context.Background()

	var evt TranscriptReadyEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		s.logger.Error("failed to parse transcript event", "error", err)
		return
	}

	rec, err := s.Evaluate(ctx, &evt)
	if err != nil {
		s.logger.Error("evaluation failed",
			"call_id", evt.CallID,
			"policy_id", evt.PolicyID,
			"error", err,
		)
		if s.bus != nil {
			_ = s.bus.Publish(events.SubjectEvaluationFailed, map[string]any{
				"call_id":   evt.CallID,
				"policy_id": evt.PolicyID,
				"error":     err.Error(),
			})
		}
		return
	}

	s.logger.Info("evaluation completed",
		"call_id", rec.CallID,
		"policy_id", rec.PolicyID,
		"ruleset_version", rec.RuleSetVersion,
		"checked", rec.Summary.RulesCheckedCount,
		"skipped", rec.Summary.RulesSkippedCount,
		"critical_failures", len(rec.Summary.CriticalFailures),
	)
}

// Evaluate runs one call against the requested (or active) rule set version,
// persists the summary, and publishes the category digest.
func (s *Service) Evaluate(ctx context.Context, evt *TranscriptReadyEvent) (*store.EvaluationRecord, error) {
	if evt.CallID == "" || evt.PolicyID == "" {
		return nil, fmt.Errorf("call_id and policy_id are required")
	}

	rs, err := s.loadRuleSet(ctx, evt)
	if err != nil {
		return nil, err
	}
	if !rs.Frozen() {
		return nil, fmt.Errorf("rule set version %d of policy %q is not approved", rs.Version, evt.PolicyID)
	}

	started := time.Now()
	results, err := s.eng.Load().Evaluate(rs, &evt.Transcript)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EvaluationErrors.Inc()
		}
		return nil, err
	}
	summary := aggregate.Summarize(results)

	if s.metrics != nil {
		s.metrics.EvaluationsTotal.Inc()
		s.metrics.EvaluationSeconds.Observe(time.Since(started).Seconds())
		s.metrics.RulesSkippedTotal.Add(float64(summary.RulesSkippedCount))
	}

	rec := &store.EvaluationRecord{
		ID:             uuid.New(),
		CallID:         evt.CallID,
		PolicyID:       evt.PolicyID,
		RuleSetVersion: rs.Version,
		ContentHash:    rs.ContentHash,
		Summary:        summary,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.SaveEvaluation(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist evaluation: %w", err)
	}

	if s.bus != nil {
		if err := s.bus.Publish(events.SubjectEvaluationCompleted, map[string]any{
			"evaluation_id":        rec.ID.String(),
			"call_id":              rec.CallID,
			"policy_id":            rec.PolicyID,
			"ruleset_version":      rec.RuleSetVersion,
			"content_hash":         rec.ContentHash,
			"has_critical_failure": summary.HasCriticalFailure(),
			"categories":           aggregate.Digest(summary, digestEvidenceLimit),
		}); err != nil {
			s.logger.Warn("failed to publish evaluation completed", "error", err)
		}
	}

	return rec, nil
}

func (s *Service) loadRuleSet(ctx context.Context, evt *TranscriptReadyEvent) (*rules.RuleSet, error) {
	if evt.RuleSetVersion > 0 {
		return s.store.GetByVersion(ctx, evt.PolicyID, evt.RuleSetVersion)
	}
	return s.store.Active(ctx, evt.PolicyID)
}
