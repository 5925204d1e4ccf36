package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"time"

	"github.com/jwalitptl/hospital-admin/internal/model"
	"github.com/jwalitptl/hospital-admin/pkg/logger"
	"github.com/jwalitptl/hospital-admin/pkg/messaging"
	"github.com/jwalitptl/hospital-admin/pkg/metrics"
)

// Subscriber is the receiving half of messaging.Broker.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Mailer sends a free-form email.
type Mailer interface {
	SendCustom(ctx context.Context, to, subject, content string) error
}

type FallbackMailerConfig struct {
	// Mailbox receives a copy of every manual credential hand-off.
	Mailbox       string
	RetryAttempts int
	RetryDelay    time.Duration
}

// FallbackMailer listens on the operator channel and mails manual hand-off
// credentials to the operator mailbox, so they survive a closed browser tab.
type FallbackMailer struct {
	sub     Subscriber
	mailer  Mailer
	config  FallbackMailerConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewFallbackMailer(
	sub Subscriber,
	mailer Mailer,
	config FallbackMailerConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*FallbackMailer, error) {
	if config.Mailbox == "" {
		return nil, fmt.Errorf("fallback mailer: mailbox is required")
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}

	return &FallbackMailer{
		sub:     sub,
		mailer:  mailer,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Start blocks until ctx is done or the subscription closes.
func (w *FallbackMailer) Start(ctx context.Context) error {
	messages, err := w.sub.Subscribe(ctx, messaging.ChannelOperatorNotifications)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	w.logger.Info("Starting fallback mailer", "mailbox", w.config.Mailbox)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down fallback mailer")
			return nil
		case raw, ok := <-messages:
			if !ok {
				w.logger.Warn("Operator channel closed")
				return nil
			}
			if err := w.handle(ctx, raw); err != nil {
				w.logger.Error(err, "Failed to handle operator message")
			}
		}
	}
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (w *FallbackMailer) handle(ctx context.Context, raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}

	switch env.Type {
	case model.MessageTypeManualFallback:
		var creds model.Credentials
		if err := json.Unmarshal(env.Payload, &creds); err != nil {
			return fmt.Errorf("failed to decode credentials: %w", err)
		}
		return w.deliver(ctx, creds)
	case model.MessageTypeNotification:
		var n model.Notification
		if err := json.Unmarshal(env.Payload, &n); err != nil {
			return fmt.Errorf("failed to decode notification: %w", err)
		}
		w.logger.Debug("Operator notification", "severity", string(n.Severity), "message", n.Message)
		return nil
	default:
		w.logger.Warn("Ignoring unknown operator message", "type", env.Type)
		return nil
	}
}

func (w *FallbackMailer) deliver(ctx context.Context, creds model.Credentials) error {
	subject := fmt.Sprintf("Manual onboarding required: %s", creds.Name)
	err := retry(ctx, w.config.RetryAttempts, w.config.RetryDelay, func() error {
		return w.mailer.SendCustom(ctx, w.config.Mailbox, subject, credentialsBody(creds))
	})
	if err != nil {
		if w.metrics != nil {
			w.metrics.FallbackMailsFailed.Inc()
		}
		return fmt.Errorf("failed to mail credentials for doctor %s: %w", creds.DoctorID, err)
	}

	if w.metrics != nil {
		w.metrics.FallbackMailsSent.Inc()
	}
	w.logger.Info("Mailed manual hand-off", "doctor_id", creds.DoctorID)
	return nil
}

func credentialsBody(creds model.Credentials) string {
	return fmt.Sprintf(`<p>The automated invitation for <strong>%s</strong> did not complete.</p>
<p>Reason: %s</p>
<p>Email: %s<br>Temporary password: <code>%s</code></p>
<p>Share these credentials with the doctor through a secure channel.</p>`,
		html.EscapeString(creds.Name),
		html.EscapeString(creds.Reason),
		html.EscapeString(creds.Email),
		html.EscapeString(creds.Password),
	)
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
