// Package callbuttons turns bedside button presses received over MQTT into
// alerts.
package callbuttons

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/nursecall-backend/internal/alerts"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/mqtt"
)

const (
	topicPrefix = "nursecall/buttons/"
	topicSuffix = "/press"

	dedupeScope = "callbutton"
	dedupeTTL   = 10 * time.Minute
)

// ErrBadTopic reports a topic outside nursecall/buttons/{patient}/press.
var ErrBadTopic = errors.New("not a call-button topic")

type raiser interface {
	Raise(ctx context.Context, req alerts.RaiseAlertRequest, source string) (*alerts.Alert, error)
}

type subscriber interface {
	Subscribe(ctx context.Context, topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(ctx context.Context, topics ...string) error
}

type deduper interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(ctx context.Context, keys ...string) error
}

// Press is the optional JSON body of a press message.
type Press struct {
	PressID string `json:"press_id"`
	Patient string `json:"patient"`
}

// Options configures a Consumer.
type Options struct {
	Alerts     raiser
	Subscriber subscriber
	Dedupe     deduper
	Logger     *logger.Logger
	Topic      string
	QoS        byte
}

// Consumer raises an alert for every distinct press.
type Consumer struct {
	alerts raiser
	sub    subscriber
	dedupe deduper
	logg   *logger.Logger
	topic  string
	qos    byte
}

// NewConsumer validates opts. Dedupe is optional.
func NewConsumer(opts Options) (*Consumer, error) {
	if opts.Alerts == nil {
		return nil, fmt.Errorf("alerts service is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.New(logger.Options{ServiceName: "callbuttons", Output: io.Discard})
	}
	if opts.Topic == "" {
		opts.Topic = topicPrefix + "+" + topicSuffix
	}
	return &Consumer{
		alerts: opts.Alerts,
		sub:    opts.Subscriber,
		dedupe: opts.Dedupe,
		logg:   opts.Logger,
		topic:  opts.Topic,
		qos:    opts.QoS,
	}, nil
}

// Run subscribes and blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if c.sub == nil {
		return fmt.Errorf("mqtt subscriber is required")
	}
	if err := c.sub.Subscribe(ctx, c.topic, c.qos, c.Handle); err != nil {
		return err
	}
	c.logg.Info(c.logg.WithField(ctx, "topic", c.topic), "callbutton.subscribed")
	<-ctx.Done()
	if err := c.sub.Unsubscribe(context.WithoutCancel(ctx), c.topic); err != nil {
		c.logg.Warn(ctx, "callbutton.unsubscribe_failed: "+err.Error())
	}
	return nil
}

// Handle raises the alert for one message. A repeated press_id is ignored.
// Malformed messages fail with a validation error so they are not retried.
func (c *Consumer) Handle(ctx context.Context, topic string, payload []byte) error {
	patient, err := PatientFromTopic(topic)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse topic")
	}

	var press Press
	if len(strings.TrimSpace(string(payload))) > 0 {
		if err := json.Unmarshal(payload, &press); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode press")
		}
	}
	if p := strings.TrimSpace(press.Patient); p != "" {
		patient = p
	}

	ctx = c.logg.WithFields(ctx, map[string]any{"patient": patient, "press_id": press.PressID})
	var dedupeKey string
	if press.PressID != "" && c.dedupe != nil {
		dedupeKey = c.dedupe.IdempotencyKey(dedupeScope, press.PressID)
		first, err := c.dedupe.SetNX(ctx, dedupeKey, patient, dedupeTTL)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dedupe press")
		}
		if !first {
			c.logg.Info(ctx, "callbutton.duplicate")
			return nil
		}
	}

	alert, err := c.alerts.Raise(ctx, alerts.RaiseAlertRequest{Patient: patient}, alerts.SourceCallButton)
	if err != nil {
		// a redelivered press must not be swallowed as a duplicate
		if dedupeKey != "" {
			_ = c.dedupe.Del(context.WithoutCancel(ctx), dedupeKey)
		}
		return err
	}
	c.logg.Info(c.logg.WithField(ctx, "alert_id", alert.ID), "callbutton.press")
	return nil
}

// PatientFromTopic extracts the patient name from a press topic.
func PatientFromTopic(topic string) (string, error) {
	if !strings.HasPrefix(topic, topicPrefix) || !strings.HasSuffix(topic, topicSuffix) {
		return "", ErrBadTopic
	}
	segment := strings.TrimSuffix(strings.TrimPrefix(topic, topicPrefix), topicSuffix)
	if segment == "" || strings.Contains(segment, "/") {
		return "", ErrBadTopic
	}
	patient, err := url.PathUnescape(segment)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadTopic, err)
	}
	patient = strings.TrimSpace(patient)
	if patient == "" {
		return "", ErrBadTopic
	}
	return patient, nil
}
