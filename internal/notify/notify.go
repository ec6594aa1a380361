// Package notify is the completion-time mailer named as an external
// collaborator in spec.md §1: the COMPLETION phase's SendThankYouEmail
// setting fires a best-effort outbound email, which this package
// delivers over SMTP. Client shape (component logger, ctx checked
// before each send, no per-call timeout) follows pkg/slack/client.go's
// wrapper style; no
// example repo imports a higher-level mailer library, so net/smtp is
// used directly (see DESIGN.md).
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
)

// Mailer is the boundary internal/runtime drives at COMPLETION.
type Mailer interface {
	SendThankYou(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends mail through a configured SMTP relay. net/smtp has no
// context-aware send call, so ctx cancellation is not honored mid-send —
// only checked before dialing.
type SMTPMailer struct {
	Host   string
	Port   string
	From   string
	auth   smtp.Auth
	logger *slog.Logger
}

func NewSMTPMailer(host, port, from, username, password string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{
		Host: host, Port: port, From: from, auth: auth,
		logger: slog.Default().With("component", "notify"),
	}
}

func (m *SMTPMailer) SendThankYou(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s\r\n", to, subject, body)
	addr := fmt.Sprintf("%s:%s", m.Host, m.Port)

	if err := smtp.SendMail(addr, m.auth, m.From, []string{to}, []byte(msg)); err != nil {
		m.logger.Warn("send thank-you email failed", "to", to, "error", err)
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// NoopMailer discards the message — used when no SMTP relay is
// configured, so completion never blocks on outbound mail.
type NoopMailer struct{}

func (NoopMailer) SendThankYou(ctx context.Context, to, subject, body string) error { return nil }
