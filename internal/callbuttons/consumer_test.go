package callbuttons

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/angelmondragon/nursecall-backend/internal/alerts"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore/docstoretest"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
	"github.com/angelmondragon/nursecall-backend/pkg/mqtt"
	pkgredis "github.com/angelmondragon/nursecall-backend/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	topic        string
	handler      mqtt.MessageHandler
	unsubscribed []string
}

func (f *fakeSubscriber) Subscribe(_ context.Context, topic string, _ byte, handler mqtt.MessageHandler) error {
	f.topic = topic
	f.handler = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(_ context.Context, topics ...string) error {
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

func newAlerts(t *testing.T) alerts.Service {
	t.Helper()
	store := docstoretest.New(t)
	svc, err := alerts.NewService(alerts.ServiceParams{Store: store, Source: mirror.FromStore(store)})
	require.NoError(t, err)
	return svc
}

func newDedupe(t *testing.T) *pkgredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return pkgredis.Wrap(raw)
}

func TestPatientFromTopic(t *testing.T) {
	cases := []struct {
		topic   string
		want    string
		wantErr bool
	}{
		{topic: "nursecall/buttons/Patient%20101/press", want: "Patient 101"},
		{topic: "nursecall/buttons/bed-4/press", want: "bed-4"},
		{topic: "nursecall/buttons//press", wantErr: true},
		{topic: "nursecall/buttons/a/b/press", wantErr: true},
		{topic: "nursecall/rooms/bed-4/press", wantErr: true},
		{topic: "nursecall/buttons/bed-4/release", wantErr: true},
		{topic: "nursecall/buttons/%zz/press", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.topic, func(t *testing.T) {
			got, err := PatientFromTopic(tc.topic)
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrBadTopic), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHandleRaisesCallButtonAlert(t *testing.T) {
	svc := newAlerts(t)
	consumer, err := NewConsumer(Options{Alerts: svc})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, consumer.Handle(ctx, "nursecall/buttons/Patient%20101/press", nil))

	history, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Patient 101", history[0].Patient)
	assert.Equal(t, alerts.SourceCallButton, history[0].Source)
	assert.Equal(t, alerts.StatusUnhandled, history[0].Status)
}

func TestHandlePayloadPatientOverridesTopic(t *testing.T) {
	svc := newAlerts(t)
	consumer, err := NewConsumer(Options{Alerts: svc})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, consumer.Handle(ctx, "nursecall/buttons/bed-4/press", []byte(`{"patient":"Patient 7"}`)))

	history, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Patient 7", history[0].Patient)
}

func TestHandleIgnoresRepeatedPressID(t *testing.T) {
	svc := newAlerts(t)
	consumer, err := NewConsumer(Options{Alerts: svc, Dedupe: newDedupe(t)})
	require.NoError(t, err)

	ctx := context.Background()
	payload := []byte(`{"press_id":"p-1"}`)
	require.NoError(t, consumer.Handle(ctx, "nursecall/buttons/bed-4/press", payload))
	require.NoError(t, consumer.Handle(ctx, "nursecall/buttons/bed-4/press", payload))
	require.NoError(t, consumer.Handle(ctx, "nursecall/buttons/bed-4/press", []byte(`{"press_id":"p-2"}`)))

	count, err := svc.CountUnhandled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	consumer, err := NewConsumer(Options{Alerts: newAlerts(t)})
	require.NoError(t, err)
	err = consumer.Handle(context.Background(), "nursecall/buttons/bed-4/press", []byte("{"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	assert.False(t, pkgerrors.Retryable(err))

	err = consumer.Handle(context.Background(), "nursecall/rooms/3", nil)
	assert.False(t, pkgerrors.Retryable(err), "bad topics are dropped, got %v", err)
}

type failingRaiser struct {
	calls int
}

func (f *failingRaiser) Raise(context.Context, alerts.RaiseAlertRequest, string) (*alerts.Alert, error) {
	f.calls++
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "store unavailable")
}

func TestHandleReleasesPressIDWhenRaiseFails(t *testing.T) {
	raiser := &failingRaiser{}
	consumer, err := NewConsumer(Options{Alerts: raiser, Dedupe: newDedupe(t)})
	require.NoError(t, err)

	ctx := context.Background()
	payload := []byte(`{"press_id":"p-9"}`)
	err = consumer.Handle(ctx, "nursecall/buttons/bed-4/press", payload)
	require.Error(t, err)
	assert.True(t, pkgerrors.Retryable(err))

	require.Error(t, consumer.Handle(ctx, "nursecall/buttons/bed-4/press", payload))
	assert.Equal(t, 2, raiser.calls, "redelivery must reach the alert service again")
}

func TestRunSubscribesUntilCanceled(t *testing.T) {
	sub := &fakeSubscriber{}
	svc := newAlerts(t)
	consumer, err := NewConsumer(Options{Alerts: svc, Subscriber: sub})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return sub.handler != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "nursecall/buttons/+/press", sub.topic)
	require.NoError(t, sub.handler(context.Background(), "nursecall/buttons/bed-9/press", nil))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Equal(t, []string{"nursecall/buttons/+/press"}, sub.unsubscribed)

	count, err := svc.CountUnhandled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
