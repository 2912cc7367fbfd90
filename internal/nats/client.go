package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Event types
const (
	EventAccountCreated    = "access.account.created"
	EventAccountActivated  = "access.account.activated"
	EventTokenGenerated    = "access.token.generated"
	EventTokenRevoked      = "access.token.revoked"
	EventMemberDeactivated = "access.member.deactivated"
)

// AccountEvent is published on account lifecycle transitions
type AccountEvent struct {
	EventType string    `json:"event_type"`
	AccountID string    `json:"account_id"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// TokenEvent is published on post-sale token lifecycle transitions.
// It never carries the token secret.
type TokenEvent struct {
	EventType string    `json:"event_type"`
	TokenID   string    `json:"token_id"`
	Email     string    `json:"email"`
	CreatedBy string    `json:"created_by"`
	Timestamp time.Time `json:"timestamp"`
}

// MemberEvent is published when a membership is deactivated
type MemberEvent struct {
	EventType string    `json:"event_type"`
	AccountID string    `json:"account_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// Client wraps the NATS connection
type Client struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Entry
}

// NewClient creates a new NATS client and ensures the events stream exists
func NewClient(url string, logger *logrus.Logger) (*Client, error) {
	log := logger.WithField("component", "nats")

	opts := []nats.Option{
		nats.Name("account-access-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("Reconnected to NATS")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// LimitsPolicy so multiple downstream consumers can read the stream.
	_, err = js.AddStream(&nats.StreamConfig{
		Name:        "ACCESS_EVENTS",
		Description: "Stream for account access lifecycle events",
		Subjects:    []string{"access.>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      24 * time.Hour * 7,
		MaxMsgs:     100000,
		Discard:     nats.DiscardOld,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		log.WithError(err).Warn("Could not create stream (may already exist)")
	}

	log.WithField("url", url).Info("Connected to NATS")

	return &Client{conn: conn, js: js, logger: log}, nil
}

// PublishAccountEvent publishes an account lifecycle event with retry.
// Nil-safe: a missing client skips the publish.
func (c *Client) PublishAccountEvent(ctx context.Context, eventType string, event *AccountEvent) error {
	if c == nil || c.js == nil {
		return nil
	}
	event.EventType = eventType
	event.Timestamp = time.Now().UTC()
	return c.publish(ctx, eventType, event)
}

// PublishTokenEvent publishes a token lifecycle event with retry
func (c *Client) PublishTokenEvent(ctx context.Context, eventType string, event *TokenEvent) error {
	if c == nil || c.js == nil {
		return nil
	}
	event.EventType = eventType
	event.Timestamp = time.Now().UTC()
	return c.publish(ctx, eventType, event)
}

// PublishMemberEvent publishes a membership lifecycle event with retry
func (c *Client) PublishMemberEvent(ctx context.Context, eventType string, event *MemberEvent) error {
	if c == nil || c.js == nil {
		return nil
	}
	event.EventType = eventType
	event.Timestamp = time.Now().UTC()
	return c.publish(ctx, eventType, event)
}

func (c *Client) publish(ctx context.Context, subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var ack *nats.PubAck
	maxRetries := 3
	for attempt := 1; attempt <= maxRetries; attempt++ {
		ack, err = c.js.Publish(subject, data)
		if err == nil {
			break
		}
		c.logger.WithError(err).WithFields(logrus.Fields{
			"subject": subject,
			"attempt": attempt,
		}).Warn("Failed to publish event")
		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while retrying publish: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	if err != nil {
		return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, err)
	}

	c.logger.WithFields(logrus.Fields{
		"subject":  subject,
		"sequence": ack.Sequence,
	}).Debug("Published event")
	return nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c != nil && c.conn != nil {
		c.conn.Close()
	}
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}
