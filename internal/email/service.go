package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/hospital-admin/internal/config"
)

type Service interface {
	SendVerification(ctx context.Context, to string, link string) error
	SendPasswordReset(ctx context.Context, to string, link string) error
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

// Sender delivers a composed message. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	from   string
	sender Sender
	logger *zerolog.Logger
}

func NewSMTPService(cfg config.SMTPConfig, logger *zerolog.Logger) Service {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewService(cfg.From, dialer, logger)
}

func NewService(from string, sender Sender, logger *zerolog.Logger) Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &smtpService{from: from, sender: sender, logger: logger}
}

func (s *smtpService) SendVerification(ctx context.Context, to string, link string) error {
	body := fmt.Sprintf(verificationTemplate, link, link)
	return s.send(ctx, to, "Confirm your email address", body)
}

func (s *smtpService) SendPasswordReset(ctx context.Context, to string, link string) error {
	body := fmt.Sprintf(resetTemplate, link, link)
	return s.send(ctx, to, "Reset your password", body)
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	return s.send(ctx, to, subject, content)
}

func (s *smtpService) send(ctx context.Context, to, subject, htmlBody string) error {
	if to == "" {
		return fmt.Errorf("no recipient specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := s.sender.DialAndSend(msg); err != nil {
		s.logger.Error().Err(err).Str("to", to).Str("subject", subject).Msg("failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Debug().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

const verificationTemplate = `<p>Welcome to the hospital staff portal.</p>
<p>Please confirm your email address by following <a href="%s">this link</a>.</p>
<p>If the link does not work, copy this address into your browser: %s</p>`

const resetTemplate = `<p>A password reset was requested for your account.</p>
<p>Follow <a href="%s">this link</a> to choose a new password.</p>
<p>If the link does not work, copy this address into your browser: %s</p>`
