package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arbiterhq/arbiter/internal/rules"
)

func testNotifier(t *testing.T, handler http.HandlerFunc) *Notifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	n := New("xoxb-test", "#policy-review", slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.SetTestTransport(server.URL)
	return n
}

func approvedSet() *rules.RuleSet {
	return &rules.RuleSet{
		PolicyID:    "acme-support",
		Version:     3,
		ContentHash: "abc123",
		ApprovedBy:  "reviewer@acme.test",
	}
}

func TestDraftReady(t *testing.T) {
	var got struct {
		Channel string `json:"channel"`
		Text    string `json:"text"`
	}
	n := testNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer xoxb-test" {
			t.Errorf("expected bearer token, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	rs := approvedSet()
	rs.Rules = []rules.Rule{{ID: "r1"}, {ID: "r2"}}
	if err := n.DraftReady(context.Background(), rs, "sess-42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Channel != "#policy-review" {
		t.Errorf("expected channel #policy-review, got %q", got.Channel)
	}
	if !strings.Contains(got.Text, "acme-support") || !strings.Contains(got.Text, "2 rules") {
		t.Errorf("unexpected message text: %q", got.Text)
	}
	if !strings.Contains(got.Text, "sess-42") {
		t.Errorf("expected session reference in text: %q", got.Text)
	}
}

func TestApproved(t *testing.T) {
	var text string
	n := testNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		text, _ = body["text"].(string)
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	if err := n.Approved(context.Background(), approvedSet()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "version 3") || !strings.Contains(text, "reviewer@acme.test") {
		t.Errorf("unexpected message text: %q", text)
	}
}

func TestSlackError(t *testing.T) {
	n := testNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
	})

	err := n.Approved(context.Background(), approvedSet())
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected channel_not_found error, got %v", err)
	}
}
