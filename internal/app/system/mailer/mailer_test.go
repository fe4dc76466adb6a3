package mailer

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSend_NoRecipient(t *testing.T) {
	m := New(Config{Host: "smtp.example.org"}, zap.NewNop())
	if err := m.Send(context.Background(), Email{Subject: "x"}); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("err = %v, want ErrNoRecipient", err)
	}
}

func TestSend_Unconfigured(t *testing.T) {
	m := New(Config{}, zap.NewNop())
	if err := m.Send(context.Background(), Email{To: "a@x.com", Subject: "x"}); err != nil {
		t.Fatalf("unconfigured mailer should drop silently, got %v", err)
	}
}

func TestSend_UsesSMTP(t *testing.T) {
	m := New(Config{Host: "smtp.example.org", User: "u", Password: "p", From: "hub@example.org"}, zap.NewNop())

	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}

	err := m.Send(context.Background(), Email{To: "a@x.com, b@x.com", Subject: "Hi", TextBody: "body", HTMLBody: "<p>body</p>"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.example.org:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if len(gotTo) != 2 || gotTo[1] != "b@x.com" {
		t.Errorf("to = %v", gotTo)
	}
	if !bytes.Contains(gotMsg, []byte("multipart/alternative")) {
		t.Error("expected multipart message when HTML body is set")
	}
}

func TestSend_TransportError(t *testing.T) {
	m := New(Config{Host: "smtp.example.org"}, zap.NewNop())
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }

	err := m.Send(context.Background(), Email{To: "a@x.com"})
	if err == nil || !strings.Contains(err.Error(), "refused") {
		t.Fatalf("err = %v", err)
	}
}

func TestBuild_PlainText(t *testing.T) {
	m := New(Config{From: "hub@example.org", FromName: "Hub"}, zap.NewNop())
	msg, err := m.build(Email{To: "a@x.com", Subject: "Héllo", TextBody: "plain"}, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	s := string(msg)
	if !strings.Contains(s, "Content-Type: text/plain") {
		t.Error("expected text/plain message")
	}
	if strings.Contains(s, "Héllo") {
		t.Error("non-ASCII subject should be encoded")
	}
	if !strings.Contains(s, `"Hub" <hub@example.org>`) {
		t.Errorf("from header wrong: %s", s)
	}
}
