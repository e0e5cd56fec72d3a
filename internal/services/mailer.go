package services

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/homegrid/backend/internal/config"
	"go.uber.org/zap"
)

// Mailer sends outbound email. Behind an interface so handlers and tests can
// stub delivery.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// smtpMailer implements Mailer over a plain SMTP relay
type smtpMailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

// NewSMTPMailer creates a mailer for the configured SMTP relay
func NewSMTPMailer(cfg config.SMTPConfig, logger *zap.Logger) *smtpMailer {
	return &smtpMailer{
		cfg:    cfg,
		logger: logger,
	}
}

// Send delivers one plain-text message to the given recipients
func (m *smtpMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, to, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	m.logger.Debug("mail sent", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}
