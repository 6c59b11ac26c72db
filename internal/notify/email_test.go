package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/jordan-wright/email"

	"fintrack/internal/config"
)

func TestSMTPSenderSend(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 2525, "user", "pass", "noreply@example.com")

	var (
		got     *email.Email
		gotAddr string
		gotAuth smtp.Auth
	)
	s.send = func(e *email.Email, addr string, auth smtp.Auth) error {
		got, gotAddr, gotAuth = e, addr, auth
		return nil
	}

	if err := s.Send(context.Background(), "ada@example.com", "2 open item(s)", "body"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "smtp.example.com:2525" || gotAuth == nil {
		t.Fatalf("unexpected addr %q auth %v", gotAddr, gotAuth)
	}
	if got.From != "noreply@example.com" || got.To[0] != "ada@example.com" || string(got.Text) != "body" {
		t.Fatalf("unexpected email %+v", got)
	}
}

func TestSMTPSenderErrors(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 25, "", "", "noreply@example.com")
	s.send = func(*email.Email, string, smtp.Auth) error { return errors.New("connection refused") }

	if err := s.Send(context.Background(), "", "s", "b"); err == nil {
		t.Fatal("expected missing recipient error")
	}
	if err := s.Send(context.Background(), "ada@example.com", "s", "b"); err == nil {
		t.Fatal("expected delivery error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, "ada@example.com", "s", "b"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Load()
	cfg.SMTPHost = ""
	if _, ok := FromConfig(cfg).(LogSender); !ok {
		t.Fatal("expected LogSender without SMTP host")
	}
	cfg.SMTPHost = "smtp.example.com"
	if _, ok := FromConfig(cfg).(*SMTPSender); !ok {
		t.Fatal("expected SMTPSender")
	}
}
