// Package pubsub publishes alert events and outbound mail to Google Cloud
// Pub/Sub for downstream consumers.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/angelmondragon/nursecall-backend/pkg/config"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// OrderingKeyAttr, when present in Publish attributes, becomes the
// message ordering key and is not sent as an attribute. Messages sharing a
// key are delivered in publish order.
const OrderingKeyAttr = "ordering_key"

var (
	ErrTopicMissing      = errors.New("pubsub topic does not exist")
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errClosed            = errors.New("pubsub client not initialized")
)

type Client struct {
	ps      *pubsub.Client
	project string
	cfg     config.PubSubConfig
	logg    *logger.Logger

	mu   sync.Mutex
	pubs map[string]*pubsub.Publisher
}

// NewClient connects and fails fast when a configured topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	ps, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("pubsub: connect: %w", err)
	}
	c := &Client{ps: ps, project: project, cfg: cfg, logg: logg, pubs: map[string]*pubsub.Publisher{}}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": project, "topics": topicNames(cfg)}), "pubsub.connected")
	}
	return c, nil
}

func (c *Client) AlertsTopic() string { return c.cfg.AlertsTopic }

func (c *Client) MailTopic() string { return c.cfg.MailTopic }

// Ping checks that every configured topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errClosed
	}
	names := topicNames(c.cfg)
	if len(names) == 0 {
		return errNoTopics
	}
	for _, name := range names {
		_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topicResourceName(c.project, name)})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("%w: %s", ErrTopicMissing, name)
		case err != nil:
			return fmt.Errorf("pubsub: get topic %s: %w", name, err)
		}
	}
	return nil
}

// Publish sends one message and waits for the server-assigned id.
func (c *Client) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	pub, err := c.publisher(topic)
	if err != nil {
		return "", err
	}
	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if key := attrs[OrderingKeyAttr]; key != "" {
		msg.OrderingKey = key
		msg.Attributes = maps.Clone(attrs)
		delete(msg.Attributes, OrderingKeyAttr)
	}
	id, err := pub.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		// a failed ordered publish pauses its key until resumed
		pub.ResumePublish(msg.OrderingKey)
	}
	return id, err
}

func (c *Client) publisher(topic string) (*pubsub.Publisher, error) {
	if c == nil || c.ps == nil {
		return nil, errClosed
	}
	name := topicResourceName(c.project, topic)
	if name == "" {
		return nil, fmt.Errorf("pubsub: topic %q not configured", topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.pubs[name]
	if !ok {
		pub = c.ps.Publisher(name)
		pub.EnableMessageOrdering = true
		c.pubs[name] = pub
	}
	return pub, nil
}

// Close flushes pending messages before releasing the connection.
func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	c.mu.Lock()
	pubs := c.pubs
	c.pubs = map[string]*pubsub.Publisher{}
	c.mu.Unlock()
	for _, pub := range pubs {
		pub.Stop()
	}
	return c.ps.Close()
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.AlertsTopic, cfg.MailTopic} {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// topicResourceName expands a short topic id; full resource names pass
// through.
func topicResourceName(project, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	if project = strings.TrimSpace(project); project == "" {
		return ""
	}
	return "projects/" + project + "/topics/" + name
}
