package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/pkg/logger"
	"github.com/jwalitptl/hospital-admin/pkg/messaging"
	"github.com/jwalitptl/hospital-admin/pkg/metrics"
)

type channelSubscriber struct {
	ch  chan []byte
	err error
}

func (s *channelSubscriber) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ch, nil
}

type sentMail struct {
	to, subject, content string
}

type recordingMailer struct {
	mu       sync.Mutex
	sent     []sentMail
	failures int
}

func (m *recordingMailer) SendCustom(ctx context.Context, to, subject, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, sentMail{to, subject, content})
	return nil
}

func (m *recordingMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

func encode(t *testing.T, msgType string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(messaging.Message{Type: msgType, Payload: payload})
	require.NoError(t, err)
	return raw
}

func newMailer(t *testing.T, sub Subscriber, mailer Mailer) (*FallbackMailer, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	w, err := NewFallbackMailer(sub, mailer, FallbackMailerConfig{
		Mailbox:       "ops@example.com",
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, logger.Nop(), m)
	require.NoError(t, err)
	return w, m
}

func TestNewFallbackMailerRequiresMailbox(t *testing.T) {
	_, err := NewFallbackMailer(&channelSubscriber{}, &recordingMailer{}, FallbackMailerConfig{}, logger.Nop(), nil)
	assert.Error(t, err)
}

func TestHandleMailsCredentials(t *testing.T) {
	mailer := &recordingMailer{}
	w, m := newMailer(t, &channelSubscriber{}, mailer)

	creds := model.Credentials{
		DoctorID: "doc-1",
		Name:     "Jane <Doe>",
		Email:    "jane@example.com",
		Password: "s3cret!",
		Reason:   "account creation failed",
	}
	require.NoError(t, w.handle(context.Background(), encode(t, model.MessageTypeManualFallback, creds)))

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ops@example.com", sent[0].to)
	assert.Contains(t, sent[0].subject, "Jane <Doe>")
	assert.Contains(t, sent[0].content, "Jane &lt;Doe&gt;")
	assert.Contains(t, sent[0].content, "s3cret!")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbackMailsSent))
}

func TestHandleRetriesThenFails(t *testing.T) {
	mailer := &recordingMailer{failures: 5}
	w, m := newMailer(t, &channelSubscriber{}, mailer)

	err := w.handle(context.Background(), encode(t, model.MessageTypeManualFallback, model.Credentials{DoctorID: "doc-1"}))
	require.Error(t, err)
	assert.Empty(t, mailer.Sent())
	assert.Equal(t, 3, mailer.failures)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbackMailsFailed))
}

func TestHandleRetrySucceeds(t *testing.T) {
	mailer := &recordingMailer{failures: 1}
	w, _ := newMailer(t, &channelSubscriber{}, mailer)

	require.NoError(t, w.handle(context.Background(), encode(t, model.MessageTypeManualFallback, model.Credentials{DoctorID: "doc-1"})))
	assert.Len(t, mailer.Sent(), 1)
}

func TestHandleIgnoresNotifications(t *testing.T) {
	mailer := &recordingMailer{}
	w, _ := newMailer(t, &channelSubscriber{}, mailer)

	n := model.Notification{Message: "doctor invited", Severity: model.SeveritySuccess}
	require.NoError(t, w.handle(context.Background(), encode(t, model.MessageTypeNotification, n)))
	require.NoError(t, w.handle(context.Background(), encode(t, "something_else", nil)))
	assert.Empty(t, mailer.Sent())

	assert.Error(t, w.handle(context.Background(), []byte("not json")))
}

func TestStartConsumesUntilChannelCloses(t *testing.T) {
	sub := &channelSubscriber{ch: make(chan []byte, 2)}
	mailer := &recordingMailer{}
	w, _ := newMailer(t, sub, mailer)

	sub.ch <- encode(t, model.MessageTypeManualFallback, model.Credentials{DoctorID: "doc-1"})
	sub.ch <- []byte("garbage")
	close(sub.ch)

	require.NoError(t, w.Start(context.Background()))
	assert.Len(t, mailer.Sent(), 1)
}

func TestStartSubscribeError(t *testing.T) {
	w, _ := newMailer(t, &channelSubscriber{err: errors.New("redis down")}, &recordingMailer{})
	assert.Error(t, w.Start(context.Background()))
}
