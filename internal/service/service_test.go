package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/events"
	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/store"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

type recordingBus struct {
	mu        sync.Mutex
	published []publishedEvent
}

type publishedEvent struct {
	Subject string
	Data    any
}

func (b *recordingBus) Publish(subject string, data any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedEvent{Subject: subject, Data: data})
	return nil
}

func (b *recordingBus) bySubject(subject string) []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publishedEvent
	for _, e := range b.published {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approvedRuleSet(t *testing.T, st store.VersionStore, policyID string) *rules.RuleSet {
	t.Helper()
	ctx := context.Background()
	rs := &rules.RuleSet{
		ID:         uuid.New(),
		PolicyID:   policyID,
		Categories: []string{"greeting"},
		Rules: []rules.Rule{{
			ID: "r-greet", Kind: rules.KindBoolean, Category: "greeting",
			Severity: rules.SeverityMinor, Enabled: true,
			Boolean: &rules.BooleanSpec{
				EvidencePatterns: []string{"thank you for calling"},
				Required:         true,
			},
		}},
		GenerationMethod: rules.GeneratedManually,
	}
	require.NoError(t, rs.Rehash())
	require.NoError(t, st.CreateDraft(ctx, rs))
	approved, err := st.Approve(ctx, rs.ID, "reviewer@acme.test", rs.ContentHash)
	require.NoError(t, err)
	require.NoError(t, st.SetActive(ctx, policyID, approved.Version, 0))
	return approved
}

func sampleEvent(policyID string) *TranscriptReadyEvent {
	return &TranscriptReadyEvent{
		CallID:   "call-1029",
		PolicyID: policyID,
		Transcript: transcript.Input{
			Utterances: []transcript.Utterance{
				{SpeakerRole: "customer", Text: "Hi there.", StartTime: 0, EndTime: 2},
				{SpeakerRole: "agent", Text: "Thank you for calling Acme.", StartTime: 3, EndTime: 5},
			},
		},
	}
}

func TestEvaluatePersistsAndPublishes(t *testing.T) {
	st := store.NewMemory()
	approvedRuleSet(t, st, "acme")
	bus := &recordingBus{}
	svc := New(st, engine.DefaultConfig(), bus, testLogger(), nil)

	rec, err := svc.Evaluate(context.Background(), sampleEvent("acme"))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RuleSetVersion, "active version resolved")
	assert.Equal(t, 1, rec.Summary.RulesCheckedCount)
	assert.Equal(t, 0, rec.Summary.RulesSkippedCount)

	stored, err := st.GetEvaluation(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ContentHash, stored.ContentHash,
		"the record pins the exact frozen snapshot")

	completed := bus.bySubject(events.SubjectEvaluationCompleted)
	require.Len(t, completed, 1)
	payload := completed[0].Data.(map[string]any)
	assert.Equal(t, "call-1029", payload["call_id"])
	assert.Equal(t, false, payload["has_critical_failure"])
}

func TestEvaluatePinnedVersion(t *testing.T) {
	st := store.NewMemory()
	v1 := approvedRuleSet(t, st, "acme")

	// A second approved version becomes active.
	ctx := context.Background()
	v2 := &rules.RuleSet{
		ID:               uuid.New(),
		PolicyID:         "acme",
		Categories:       []string{"greeting"},
		Rules:            append([]rules.Rule(nil), v1.Rules...),
		GenerationMethod: rules.GeneratedManually,
	}
	v2.Rules[0].Severity = rules.SeverityModerate
	require.NoError(t, v2.Rehash())
	require.NoError(t, st.CreateDraft(ctx, v2))
	_, err := st.Approve(ctx, v2.ID, "reviewer@acme.test", v2.ContentHash)
	require.NoError(t, err)
	require.NoError(t, st.SetActive(ctx, "acme", 2, 1))

	svc := New(st, engine.DefaultConfig(), nil, testLogger(), nil)

	evt := sampleEvent("acme")
	evt.RuleSetVersion = 1
	rec, err := svc.Evaluate(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RuleSetVersion, "pinned version wins over the active pointer")
	assert.Equal(t, v1.ContentHash, rec.ContentHash)
}

func TestEvaluateRejectsUnapprovedAndMissing(t *testing.T) {
	st := store.NewMemory()
	svc := New(st, engine.DefaultConfig(), nil, testLogger(), nil)
	ctx := context.Background()

	_, err := svc.Evaluate(ctx, sampleEvent("acme"))
	assert.ErrorIs(t, err, store.ErrNotFound, "no active version")

	_, err = svc.Evaluate(ctx, &TranscriptReadyEvent{PolicyID: "acme"})
	assert.Error(t, err, "call_id is required")

	// A draft pinned by version is rejected: only frozen snapshots evaluate.
	draft := &rules.RuleSet{
		ID:         uuid.New(),
		PolicyID:   "acme",
		Categories: []string{"greeting"},
		Rules: []rules.Rule{{
			ID: "r", Kind: rules.KindBoolean, Category: "greeting",
			Severity: rules.SeverityMinor, Enabled: true,
			Boolean: &rules.BooleanSpec{EvidencePatterns: []string{"hi"}, Required: true},
		}},
	}
	require.NoError(t, draft.Rehash())
	require.NoError(t, st.CreateDraft(ctx, draft))

	evt := sampleEvent("acme")
	evt.RuleSetVersion = 1
	_, err = svc.Evaluate(ctx, evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not approved")
}

func TestHandleTranscriptReadyPublishesFailure(t *testing.T) {
	st := store.NewMemory()
	bus := &recordingBus{}
	svc := New(st, engine.DefaultConfig(), bus, testLogger(), nil)

	evt := sampleEvent("ghost-policy")
	data, err := json.Marshal(evt)
	require.NoError(t, err)

	svc.HandleTranscriptReady(events.SubjectTranscriptReady, data)

	failed := bus.bySubject(events.SubjectEvaluationFailed)
	require.Len(t, failed, 1)
	payload := failed[0].Data.(map[string]any)
	assert.Equal(t, "call-1029", payload["call_id"])

	// Garbage payloads are logged and dropped, not published.
	svc.HandleTranscriptReady(events.SubjectTranscriptReady, []byte("{broken"))
	assert.Len(t, bus.bySubject(events.SubjectEvaluationFailed), 1)
}

func TestSetEngineConfigSwapsEngine(t *testing.T) {
	st := store.NewMemory()
	approvedRuleSet(t, st, "acme")
	svc := New(st, engine.DefaultConfig(), nil, testLogger(), nil)

	before := svc.eng.Load()
	cfg := engine.DefaultConfig()
	cfg.MaxEvidencePerRule = 1
	svc.SetEngineConfig(cfg)
	assert.NotSame(t, before, svc.eng.Load())

	// Evaluations still work against the swapped engine.
	_, err := svc.Evaluate(context.Background(), sampleEvent("acme"))
	assert.NoError(t, err)
}
