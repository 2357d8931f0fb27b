package mailer

import "log/slog"

// StubSender logs instead of sending; used when SMTP is not configured.
type StubSender struct{}

func (StubSender) Send(to, subject, body string) error {
	slog.Info("mail (stub)", "to", to, "subject", subject)
	return nil
}
