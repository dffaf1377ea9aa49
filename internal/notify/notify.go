// Package notify posts one-way Slack notifications to the policy review
// channel. It carries no approval authority: approving a draft goes through
// the version store's compare-and-set, never through Slack.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arbiterhq/arbiter/internal/rules"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Notifier struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func New(token, channel string, logger *slog.Logger) *Notifier {
	return &Notifier{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// SetTestTransport points the notifier at a test server.
func (n *Notifier) SetTestTransport(url string) {
	n.apiURL = url
}

// DraftReady announces a synthesized candidate awaiting human review.
func (n *Notifier) DraftReady(ctx context.Context, rs *rules.RuleSet, sessionID string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Candidate rule set ready for review*\n")
	fmt.Fprintf(&sb, "Policy: %s | draft version %d | %d rules\n", rs.PolicyID, rs.Version, len(rs.Rules))
	fmt.Fprintf(&sb, "Content hash: `%s`\n", rs.ContentHash)
	fmt.Fprintf(&sb, "Session: %s — review and approve via the compile API.", sessionID)
	return n.post(ctx, sb.String())
}

// Approved announces a frozen version.
func (n *Notifier) Approved(ctx context.Context, rs *rules.RuleSet) error {
	text := fmt.Sprintf("*Rule set approved*\nPolicy: %s | version %d | hash `%s` | approved by %s",
		rs.PolicyID, rs.Version, rs.ContentHash, rs.ApprovedBy)
	return n.post(ctx, text)
}

func (n *Notifier) post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]any{
		"channel": n.channel,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return nil
}
