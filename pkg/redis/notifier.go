package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/notify"
)

// Notifier fans change announcements out over Redis pub/sub so every API
// instance sees writes made by its peers.
type Notifier struct {
	client *Client
	logg   *logger.Logger
}

var _ notify.Notifier = (*Notifier)(nil)

// NewNotifier builds a pub/sub notifier on top of the shared client.
func NewNotifier(client *Client, logg *logger.Logger) (*Notifier, error) {
	if client.ready() != nil {
		return nil, errors.New("redis client is required")
	}
	return &Notifier{client: client, logg: logg}, nil
}

// Publish sends payload on the namespaced channel for topic.
func (n *Notifier) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := n.client.rdb.Publish(ctx, n.client.ChannelName(topic), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Listen opens a dedicated pub/sub connection for topic.
func (n *Notifier) Listen(ctx context.Context, topic string, fn notify.Handler) (func(), error) {
	channel := n.client.ChannelName(topic)
	ps := n.client.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			fn([]byte(msg.Payload))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := ps.Close(); err != nil && n.logg != nil {
				n.logg.Warn(n.logg.WithField(context.Background(), "channel", channel), "redis unsubscribe failed: "+err.Error())
			}
			<-done
		})
	}, nil
}
