package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/pkg/messaging"
	"github.com/jwalitptl/hospital-admin/pkg/metrics"
)

type published struct {
	channel string
	msg     messaging.Message
}

type fakeBroker struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (b *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, published{channel, message.(messaging.Message)})
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBroker) Close() error { return nil }

func TestNotifyCollectsAndPublishes(t *testing.T) {
	broker := &fakeBroker{}
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	svc := NewService(broker, m, nil)

	c := NewCollector()
	ctx := WithCollector(context.Background(), c)

	svc.Notify(ctx, "Doctor invited", model.SeveritySuccess, 3*time.Second)

	got := c.Notifications()
	require.Len(t, got, 1)
	assert.Equal(t, "Doctor invited", got[0].Message)
	assert.Equal(t, model.SeveritySuccess, got[0].Severity)
	assert.Equal(t, int64(3000), got[0].DurationMs)

	require.Len(t, broker.sent, 1)
	assert.Equal(t, messaging.ChannelOperatorNotifications, broker.sent[0].channel)
	assert.Equal(t, model.MessageTypeNotification, broker.sent[0].msg.Type)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Notifications.WithLabelValues("success")))
}

func TestPresentCredentials(t *testing.T) {
	broker := &fakeBroker{}
	svc := NewService(broker, nil, nil)

	c := NewCollector()
	ctx := WithCollector(context.Background(), c)
	creds := model.Credentials{DoctorID: "p1", Email: "d@x.com", Password: "Ab12Cd", Reason: "offline"}

	svc.PresentCredentials(ctx, creds)

	assert.Equal(t, []model.Credentials{creds}, c.Fallback())
	assert.Empty(t, c.Notifications())
	require.Len(t, broker.sent, 1)
	assert.Equal(t, model.MessageTypeManualFallback, broker.sent[0].msg.Type)
	assert.Equal(t, creds, broker.sent[0].msg.Payload)
}

func TestNotifyWithoutCollectorOrBroker(t *testing.T) {
	svc := NewService(nil, nil, nil)
	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), "hello", model.SeverityInfo, 0)
		svc.PresentCredentials(context.Background(), model.Credentials{})
	})
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	svc := NewService(&fakeBroker{err: errors.New("redis down")}, nil, nil)

	c := NewCollector()
	ctx := WithCollector(context.Background(), c)
	svc.Notify(ctx, "still shown", model.SeverityWarning, time.Second)

	assert.Len(t, c.Notifications(), 1)
}

func TestCollectorFromEmptyContext(t *testing.T) {
	_, ok := CollectorFrom(context.Background())
	assert.False(t, ok)
}
