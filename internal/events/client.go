// Package events connects the back-fill engine to the NATS bus: run
// summaries and manual-review flags go out, session-completed notifications
// come in.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hale-dev/chainfill/internal/backfill"
)

const (
	// SubjectRunSummary carries the structured summary of each run.
	SubjectRunSummary = "chainfill.run.summary"
	// SubjectReviewRequest carries pairs flagged for manual review.
	SubjectReviewRequest = "chainfill.validation.review"
	// SubjectSessionCompleted is published by the ingestion system when a
	// session's transcript is finished.
	SubjectSessionCompleted = "ingest.session.completed"
)

// SessionCompleted is the inbound notification payload.
type SessionCompleted struct {
	SessionID string `json:"session_id"`
}

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

// PublishRunSummary emits the run summary for downstream dashboards.
func (c *Client) PublishRunSummary(_ context.Context, s backfill.Summary) error {
	return c.publish(SubjectRunSummary, s)
}

// PublishReviewRequest flags a low-consistency pair for human review.
func (c *Client) PublishReviewRequest(_ context.Context, req backfill.ReviewRequest) error {
	return c.publish(SubjectReviewRequest, req)
}

func (c *Client) publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// SubscribeSessionCompleted invokes handler for each completed-session
// notification. Malformed payloads are logged and dropped.
func (c *Client) SubscribeSessionCompleted(handler func(sessionID string)) error {
	sub, err := c.conn.Subscribe(SubjectSessionCompleted, func(msg *nats.Msg) {
		var ev SessionCompleted
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.logger.Warn("malformed session-completed event", "error", err)
			return
		}
		if ev.SessionID == "" {
			c.logger.Warn("session-completed event without session_id")
			return
		}
		handler(ev.SessionID)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectSessionCompleted, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", SubjectSessionCompleted)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
