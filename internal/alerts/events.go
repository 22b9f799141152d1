package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/nursecall-backend/pkg/pubsub"
)

const (
	EventRaised  = "alert.raised"
	EventHandled = "alert.handled"
)

// Event is the message published when an alert changes.
type Event struct {
	Type      string `json:"type"`
	AlertID   string `json:"alert_id"`
	Patient   string `json:"patient"`
	Source    string `json:"source,omitempty"`
	Timestamp int64  `json:"timestamp"`
	HandledBy string `json:"handled_by,omitempty"`
}

// EventPublisher fans alert events out to other systems.
type EventPublisher interface {
	PublishAlertEvent(ctx context.Context, event Event) error
}

type nopPublisher struct{}

func (nopPublisher) PublishAlertEvent(context.Context, Event) error { return nil }

// NopPublisher discards events.
func NopPublisher() EventPublisher { return nopPublisher{} }

type topicPublisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
}

// PubSubPublisher publishes events as JSON to a Pub/Sub topic.
type PubSubPublisher struct {
	client topicPublisher
	topic  string
}

// NewPubSubPublisher builds a publisher for topic.
func NewPubSubPublisher(client topicPublisher, topic string) (*PubSubPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("alerts topic is required")
	}
	return &PubSubPublisher{client: client, topic: topic}, nil
}

func (p *PubSubPublisher) PublishAlertEvent(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}
	attrs := map[string]string{"event_type": event.Type, "alert_id": event.AlertID}
	// raised must reach consumers before handled
	attrs[pubsub.OrderingKeyAttr] = event.AlertID
	if _, err := p.client.Publish(ctx, p.topic, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
