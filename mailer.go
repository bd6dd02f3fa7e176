package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"
)

// MailMessage represents an email to send.
type MailMessage struct {
	From    string
	To      []string
	Subject string
	Text    string
}

// MailProvider sends emails via a specific backend.
type MailProvider interface {
	Name() string
	Send(msg MailMessage) (string, error)
}

// Mailer is the top-level entry point for sending emails.
type Mailer struct {
	provider    MailProvider
	fromAddress string
}

func NewMailer(provider MailProvider, fromAddress string) *Mailer {
	return &Mailer{provider: provider, fromAddress: fromAddress}
}

func (m *Mailer) Send(msg MailMessage) (string, error) {
	if msg.From == "" {
		msg.From = m.fromAddress
	}
	return m.provider.Send(msg)
}

// ResendProvider sends emails via the Resend API.
type ResendProvider struct {
	client *resend.Client
}

func NewResendProvider(apiKey string) *ResendProvider {
	return &ResendProvider{client: resend.NewClient(apiKey)}
}

func (r *ResendProvider) Name() string { return "resend" }

func (r *ResendProvider) Send(msg MailMessage) (string, error) {
	params := &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
	}

	sent, err := r.client.Emails.Send(params)
	if err != nil {
		return "", fmt.Errorf("resend send failed: %w", err)
	}
	return sent.Id, nil
}

// LogProvider is a fallback provider that logs emails instead of sending them.
type LogProvider struct {
	Logger *slog.Logger
}

func NewLogProvider(logger *slog.Logger) *LogProvider {
	return &LogProvider{Logger: logger}
}

func (l *LogProvider) Name() string { return "log" }

func (l *LogProvider) Send(msg MailMessage) (string, error) {
	fakeID := uuid.NewString()
	l.Logger.Info("mailer: email logged (not sent)",
		"provider", "log",
		"from", msg.From,
		"to", strings.Join(msg.To, ", "),
		"subject", msg.Subject,
		"text_length", len(msg.Text),
		"fake_message_id", fakeID,
	)
	return fakeID, nil
}

// notifySubmissionReceived mails the moderation inbox about a new pending
// submission. Send failures are logged and never surfaced to the submitter.
func (a *App) notifySubmissionReceived(rec SubmissionRecord) {
	if a.cfg.NotifyEmailTo == "" {
		return
	}

	location := "unresolved"
	if rec.Coords != nil {
		location = fmt.Sprintf("%.5f, %.5f", rec.Coords.Latitude, rec.Coords.Longitude)
	}

	msg := MailMessage{
		To:      []string{a.cfg.NotifyEmailTo},
		Subject: fmt.Sprintf("New mosque submission: %s", rec.Name),
		Text: fmt.Sprintf(
			"A new mosque submission is awaiting review.\n\nName: %s\nAddress: %s, %s, %s\nSweets: %s\nCoordinates: %s\n\nReview it in the admin dashboard: %s/admin/pending\n",
			rec.Name, rec.Address, rec.City, rec.State, rec.SweetType, location, a.cfg.PublicBaseURL,
		),
	}

	if _, err := a.mailer.Send(msg); err != nil {
		a.log.Error("failed to send submission notification", "err", err)
	}
}
