package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/pkg/messaging"
	"github.com/jwalitptl/hospital-admin/pkg/metrics"
)

// Service presents outcomes to the operator. Both calls are fire-and-forget:
// delivery problems are logged and never reach the caller.
type Service interface {
	Notify(ctx context.Context, message string, severity model.Severity, duration time.Duration)
	PresentCredentials(ctx context.Context, creds model.Credentials)
}

type service struct {
	broker  messaging.Broker
	metrics *metrics.Metrics
	logger  *zerolog.Logger
	now     func() time.Time
}

// NewService builds the presenter. broker and m may be nil.
func NewService(broker messaging.Broker, m *metrics.Metrics, logger *zerolog.Logger) Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &service{
		broker:  broker,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *service) Notify(ctx context.Context, message string, severity model.Severity, duration time.Duration) {
	n := model.Notification{
		Message:    message,
		Severity:   severity,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  s.now().UTC(),
	}

	s.event(severity).Str("severity", string(severity)).Msg(message)

	if c, ok := CollectorFrom(ctx); ok {
		c.addNotification(n)
	}
	if s.metrics != nil {
		s.metrics.Notifications.WithLabelValues(string(severity)).Inc()
	}
	s.publish(ctx, model.MessageTypeNotification, n)
}

func (s *service) PresentCredentials(ctx context.Context, creds model.Credentials) {
	s.logger.Warn().
		Str("doctor_id", creds.DoctorID).
		Str("email", creds.Email).
		Str("reason", creds.Reason).
		Msg("manual credential hand-off required")

	if c, ok := CollectorFrom(ctx); ok {
		c.addFallback(creds)
	}
	s.publish(ctx, model.MessageTypeManualFallback, creds)
}

func (s *service) publish(ctx context.Context, msgType string, payload interface{}) {
	if s.broker == nil {
		return
	}
	msg := messaging.Message{Type: msgType, Payload: payload}
	if err := s.broker.Publish(context.WithoutCancel(ctx), messaging.ChannelOperatorNotifications, msg); err != nil {
		s.logger.Error().Err(err).Str("type", msgType).Msg("failed to publish operator notification")
	}
}

func (s *service) event(severity model.Severity) *zerolog.Event {
	switch severity {
	case model.SeverityError:
		return s.logger.Error()
	case model.SeverityWarning:
		return s.logger.Warn()
	default:
		return s.logger.Info()
	}
}
