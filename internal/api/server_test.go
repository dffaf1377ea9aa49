package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/compiler"
	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/sandbox"
	"github.com/arbiterhq/arbiter/internal/service"
	"github.com/arbiterhq/arbiter/internal/store"
)

const testToken = "test-token"

// stubModel answers analysis calls with no ambiguities and synthesis calls
// with one fixed valid rule.
type stubModel struct{}

func (stubModel) CompleteJSON(_ context.Context, system, _ string, _ int, v any) error {
	payload := `{"ambiguities": []}`
	if strings.Contains(system, "eight types") {
		payload = `{
			"categories": ["greeting"],
			"rules": [{
				"id": "r-greet",
				"type": "boolean",
				"category": "greeting",
				"severity": "minor",
				"enabled": true,
				"boolean": {
					"evidence_patterns": ["thank you for calling"],
					"required": true
				}
			}]
		}`
	}
	return json.Unmarshal([]byte(payload), v)
}

func newTestServer(t *testing.T) (*httptest.Server, store.VersionStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	comp := compiler.New(stubModel{}, st, nil, logger, nil)
	svc := service.New(st, engine.DefaultConfig(), nil, logger, nil)

	srv := NewServer(0, testToken, Deps{
		Compiler: comp,
		Service:  svc,
		Harness:  sandbox.New(engine.DefaultConfig()),
		Store:    st,
		Logger:   logger,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, respBody
}

func TestHealthNoAuth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/v1/policies/acme/rulesets")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCompileLifecycle(t *testing.T) {
	ts, st := newTestServer(t)

	// Start a session. The stub model proposes no extra ambiguities, so the
	// only clarification comes from the lexicon ("promptly").
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/compile/sessions", map[string]any{
		"policy_id":   "acme",
		"policy_text": "Agents must greet callers promptly.",
		"categories":  []string{"greeting"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var session compiler.Session
	require.NoError(t, json.Unmarshal(body, &session))
	require.Len(t, session.Clarifications, 1)
	sessionURL := fmt.Sprintf("%s/api/v1/compile/sessions/%s", ts.URL, session.ID)

	// Synthesis is gated while the clarification is open.
	resp, body = doJSON(t, http.MethodPost, sessionURL+"/synthesize", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))

	// Answer it.
	resp, _ = doJSON(t, http.MethodPost, sessionURL+"/answers", map[string]any{
		"clarification_id": session.Clarifications[0].ID,
		"answer":           "within 10 seconds",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Synthesize a draft.
	resp, body = doJSON(t, http.MethodPost, sessionURL+"/synthesize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &session))
	require.NotNil(t, session.Draft)
	assert.Equal(t, rules.StatusDraft, session.Draft.Status)

	// Approve with a stale hash conflicts; the right hash freezes.
	resp, _ = doJSON(t, http.MethodPost, sessionURL+"/approve", map[string]any{
		"approved_by":  "reviewer@acme.test",
		"content_hash": "stale",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, sessionURL+"/approve", map[string]any{
		"approved_by":  "reviewer@acme.test",
		"content_hash": session.Draft.ContentHash,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var approved rules.RuleSet
	require.NoError(t, json.Unmarshal(body, &approved))
	assert.True(t, approved.Frozen())

	// The session is gone, the version is queryable.
	resp, _ = doJSON(t, http.MethodGet, sessionURL, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	stored, err := st.GetByVersion(context.Background(), "acme", 1)
	require.NoError(t, err)
	assert.Equal(t, approved.ContentHash, stored.ContentHash)
}

func TestVersionEndpoints(t *testing.T) {
	ts, st := newTestServer(t)
	ctx := context.Background()

	rs := approvedFixture(t, st, "acme")

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/policies/acme/rulesets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Versions []store.VersionInfo `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	require.Len(t, listing.Versions, 1)
	assert.Equal(t, rules.StatusApproved, listing.Versions[0].Status)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/policies/acme/rulesets/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got rules.RuleSet
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, rs.ContentHash, got.ContentHash)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/rulesets/hash/"+rs.ContentHash, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/policies/acme/rulesets/9", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Activate, then read back.
	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/api/v1/policies/acme/active", map[string]any{
		"version":          1,
		"expected_current": 0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/policies/acme/active", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 1, got.Version)

	// Stale pointer CAS conflicts.
	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/api/v1/policies/acme/active", map[string]any{
		"version":          1,
		"expected_current": 5,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, err := st.Active(ctx, "acme")
	assert.NoError(t, err)
}

func TestEvaluateEndpoint(t *testing.T) {
	ts, st := newTestServer(t)

	approvedFixture(t, st, "acme")
	require.NoError(t, st.SetActive(context.Background(), "acme", 1, 0))

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/evaluate", map[string]any{
		"call_id":   "call-1029",
		"policy_id": "acme",
		"transcript": map[string]any{
			"utterances": []map[string]any{
				{"speaker_role": "agent", "text": "Thank you for calling Acme.", "start_time": 0, "end_time": 3},
			},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var rec store.EvaluationRecord
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, 1, rec.Summary.RulesCheckedCount)

	// Structurally invalid transcripts are a 400.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/evaluate", map[string]any{
		"call_id":    "call-1030",
		"policy_id":  "acme",
		"transcript": map[string]any{"utterances": []map[string]any{}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSandboxEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	ruleset := map[string]any{
		"policy_id":  "acme",
		"status":     "draft",
		"categories": []string{"greeting"},
		"rules": []map[string]any{{
			"id":       "r-greet",
			"type":     "boolean",
			"category": "greeting",
			"severity": "minor",
			"enabled":  true,
			"boolean": map[string]any{
				"evidence_patterns": []string{"thank you for calling"},
				"required":          true,
			},
		}},
	}
	body := map[string]any{
		"ruleset": ruleset,
		"transcript": map[string]any{
			"utterances": []map[string]any{
				{"speaker_role": "agent", "text": "Hello there.", "start_time": 0, "end_time": 2},
			},
		},
	}

	resp, respBody := doJSON(t, http.MethodPost, ts.URL+"/api/v1/sandbox/evaluate", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(respBody))

	var summary struct {
		RulesCheckedCount    int            `json:"rules_checked_count"`
		ViolationsByCategory map[string]any `json:"violations_by_category"`
	}
	require.NoError(t, json.Unmarshal(respBody, &summary))
	assert.Equal(t, 1, summary.RulesCheckedCount)
	assert.Contains(t, summary.ViolationsByCategory, "greeting")

	// An invalid inline rule set is a 422 with the issues attached.
	ruleset["rules"].([]map[string]any)[0]["severity"] = "fatal"
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/sandbox/evaluate", body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Neither ruleset nor session_id is a 400.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/sandbox/evaluate", map[string]any{
		"transcript": map[string]any{"utterances": []map[string]any{}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func approvedFixture(t *testing.T, st store.VersionStore, policyID string) *rules.RuleSet {
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
	return approved
}
