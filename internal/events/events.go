// Package events is the NATS surface: transcript-ready events trigger
// evaluations, and compile/evaluation outcomes are published for
// collaborators (the scoring aggregator and the nuance classifier consume
// the completed-evaluation digest, never raw transcripts or policy text).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectTranscriptReady carries a transcribed call ready for evaluation.
	SubjectTranscriptReady = "qa.transcript.ready"

	// SubjectRuleSetApproved announces a newly frozen rule set version.
	SubjectRuleSetApproved = "qa.ruleset.approved"

	// SubjectEvaluationCompleted carries the category digest of a finished
	// evaluation.
	SubjectEvaluationCompleted = "qa.evaluation.completed"

	// SubjectEvaluationFailed reports a structural failure for one call.
	SubjectEvaluationFailed = "qa.evaluation.failed"

	// SubjectCompileBlocked reports a compile session stuck at a gate:
	// unanswered required clarifications, or synthesis that failed
	// validation twice and needs manual repair.
	SubjectCompileBlocked = "qa.compile.blocked"
)

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
