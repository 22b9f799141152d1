// Package mqtt wraps the Paho client for the call-button bridge.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/nursecall-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250
)

// MessageHandler processes one message. A retryable error leaves the message
// unacknowledged so the broker delivers it again; any other error drops it.
type MessageHandler func(ctx context.Context, topic string, payload []byte) error

// Client is a connected MQTT session.
type Client struct {
	client paho.Client
	logg   *logger.Logger
}

// NewClient connects to the configured broker.
func NewClient(ctx context.Context, cfg config.MQTTConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt broker url is required")
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(false).
		SetConnectTimeout(connectTimeout).
		SetAutoAckDisabled(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if logg != nil {
		opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
			logg.Warn(ctx, "mqtt connection lost: "+err.Error())
		})
		opts.SetOnConnectHandler(func(paho.Client) {
			logg.Info(logg.WithField(ctx, "broker", cfg.BrokerURL), "mqtt connected")
		})
	}

	c := paho.NewClient(opts)
	if err := wait(ctx, c.Connect()); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", err)
	}
	return &Client{client: c, logg: logg}, nil
}

// Subscribe routes messages on topic to handler, using ctx for every call.
func (c *Client) Subscribe(ctx context.Context, topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		c.deliver(ctx, msg, handler)
	})
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *Client) deliver(ctx context.Context, msg paho.Message, handler MessageHandler) {
	err := handler(ctx, msg.Topic(), msg.Payload())
	retry := pkgerrors.Retryable(err)
	if !retry {
		msg.Ack()
	}
	if err == nil || c.logg == nil {
		return
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"topic":      msg.Topic(),
		"message_id": msg.MessageID(),
		"redeliver":  retry,
	})
	if retry {
		c.logg.Error(logCtx, "mqtt.handle_failed", err)
		return
	}
	c.logg.Warn(logCtx, "mqtt.message_dropped: "+err.Error())
}

// Publish sends payload on topic.
func (c *Client) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	if err := wait(ctx, c.client.Publish(topic, qos, retained, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe stops delivery for topics.
func (c *Client) Unsubscribe(ctx context.Context, topics ...string) error {
	if err := wait(ctx, c.client.Unsubscribe(topics...)); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// Ping reports whether the session is connected.
func (c *Client) Ping(context.Context) error {
	if !c.client.IsConnectionOpen() {
		return errors.New("mqtt not connected")
	}
	return nil
}

// Close disconnects, letting in-flight work finish briefly.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesce)
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
