package main

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

type capturingProvider struct {
	sent []MailMessage
	err  error
}

func (p *capturingProvider) Name() string { return "capture" }

func (p *capturingProvider) Send(msg MailMessage) (string, error) {
	p.sent = append(p.sent, msg)
	return "msg-1", p.err
}

func TestMailerAppliesDefaultFromAddress(t *testing.T) {
	provider := &capturingProvider{}
	mailer := NewMailer(provider, "noreply@taraweehfinder.org")

	if _, err := mailer.Send(MailMessage{To: []string{"admin@example.com"}, Subject: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(provider.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(provider.sent))
	}
	if provider.sent[0].From != "noreply@taraweehfinder.org" {
		t.Fatalf("expected default from address, got %q", provider.sent[0].From)
	}

	if _, err := mailer.Send(MailMessage{From: "other@taraweehfinder.org", To: []string{"admin@example.com"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.sent[1].From != "other@taraweehfinder.org" {
		t.Fatalf("explicit from address must win, got %q", provider.sent[1].From)
	}
}

func TestLogProviderReturnsFakeID(t *testing.T) {
	provider := NewLogProvider(slog.New(slog.NewTextHandler(io.Discard, nil)))

	id, err := provider.Send(MailMessage{To: []string{"admin@example.com"}, Subject: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a fake message id")
	}
}

func TestNotifySubmissionReceived(t *testing.T) {
	provider := &capturingProvider{}
	app := &App{
		cfg: &Config{
			NotifyEmailTo: "moderators@taraweehfinder.org",
			PublicBaseURL: "https://taraweehfinder.org",
		},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		mailer: NewMailer(provider, "noreply@taraweehfinder.org"),
	}

	app.notifySubmissionReceived(SubmissionRecord{
		Name:      "Masjid-e-Noor",
		Address:   "12 Charminar Road",
		City:      "Hyderabad",
		State:     "Telangana",
		SweetType: "Sheer Khurma",
		Coords:    &Coordinates{Latitude: 17.3616, Longitude: 78.4747},
	})

	if len(provider.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(provider.sent))
	}
	msg := provider.sent[0]
	if msg.To[0] != "moderators@taraweehfinder.org" {
		t.Fatalf("unexpected recipient: %v", msg.To)
	}
	if !strings.Contains(msg.Subject, "Masjid-e-Noor") {
		t.Fatalf("unexpected subject: %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "17.36160, 78.47470") {
		t.Fatalf("expected coordinates in body, got %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "https://taraweehfinder.org/admin/pending") {
		t.Fatalf("expected review link in body, got %q", msg.Text)
	}
}

func TestNotifySubmissionReceivedUnresolvedCoordinates(t *testing.T) {
	provider := &capturingProvider{}
	app := &App{
		cfg:    &Config{NotifyEmailTo: "moderators@taraweehfinder.org", PublicBaseURL: "https://taraweehfinder.org"},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		mailer: NewMailer(provider, "noreply@taraweehfinder.org"),
	}

	app.notifySubmissionReceived(SubmissionRecord{Name: "Masjid", Address: "Street 1", City: "Delhi", State: "Delhi", SweetType: "Dates"})

	if len(provider.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(provider.sent))
	}
	if !strings.Contains(provider.sent[0].Text, "unresolved") {
		t.Fatalf("expected unresolved marker, got %q", provider.sent[0].Text)
	}
}

func TestNotifySubmissionReceivedDisabledWithoutRecipient(t *testing.T) {
	provider := &capturingProvider{}
	app := &App{
		cfg:    &Config{},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		mailer: NewMailer(provider, "noreply@taraweehfinder.org"),
	}

	app.notifySubmissionReceived(SubmissionRecord{Name: "Masjid"})

	if len(provider.sent) != 0 {
		t.Fatalf("expected no messages, got %d", len(provider.sent))
	}
}
