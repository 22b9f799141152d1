package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/nursecall-backend/pkg/logger"
)

const emailPasswordReset = "email.password_reset"

// Mailer delivers out-of-band messages such as reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// LogMailer writes reset links to the log. Used in development.
type LogMailer struct {
	logg *logger.Logger
}

func NewLogMailer(logg *logger.Logger) *LogMailer {
	return &LogMailer{logg: logg}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	if m.logg != nil {
		m.logg.Info(m.logg.WithFields(ctx, map[string]any{"to": to, "link": link}), emailPasswordReset)
	}
	return nil
}

type topicPublisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
}

// MailRequest is the message a mail worker consumes.
type MailRequest struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Link string `json:"link"`
}

// PubSubMailer hands messages to a mail worker over Pub/Sub.
type PubSubMailer struct {
	client topicPublisher
	topic  string
}

func NewPubSubMailer(client topicPublisher, topic string) (*PubSubMailer, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("mail topic is required")
	}
	return &PubSubMailer{client: client, topic: topic}, nil
}

func (m *PubSubMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	data, err := json.Marshal(MailRequest{Type: emailPasswordReset, To: to, Link: link})
	if err != nil {
		return fmt.Errorf("marshal mail request: %w", err)
	}
	if _, err := m.client.Publish(ctx, m.topic, data, map[string]string{"event_type": emailPasswordReset}); err != nil {
		return fmt.Errorf("publish %s: %w", emailPasswordReset, err)
	}
	return nil
}
