// Package notify delivers reminder digests by email.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"

	"github.com/jordan-wright/email"

	"fintrack/internal/config"
	flog "fintrack/internal/log"
)

// Sender delivers one plain-text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends plain-text mail through an SMTP relay.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string

	send func(e *email.Email, addr string, auth smtp.Auth) error
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// FromConfig returns an SMTP sender, or a LogSender when SMTP_HOST is unset.
func FromConfig(cfg *config.Config) Sender {
	if cfg.SMTPHost == "" {
		return LogSender{}
	}
	return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SenderEmail)
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return errors.New("missing recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = s.from
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	addr := s.host + ":" + strconv.Itoa(s.port)
	if err := s.send(e, addr, auth); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	slog.InfoContext(ctx, "Email sent", flog.FieldOwner, to, "subject", subject, flog.FieldComponent, flog.ComponentReminder)
	return nil
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, subject, body string) error {
	slog.InfoContext(ctx, "Email delivery disabled, logging message",
		flog.FieldOwner, to, "subject", subject, "body", body, flog.FieldComponent, flog.ComponentReminder)
	return nil
}
