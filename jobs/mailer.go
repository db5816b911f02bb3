package jobs

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer sends plain-text notification mail.
type Mailer interface {
	Send(to []string, subject, body string) error
}

// SMTPMailer delivers through a plain SMTP relay (Mailpit in development).
type SMTPMailer struct {
	Addr string
	From string
}

// Send delivers one message.
func (m *SMTPMailer) Send(to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(m.Addr, nil, m.From, to, []byte(msg)); err != nil {
		return fmt.Errorf("jobs: send mail: %w", err)
	}
	return nil
}

// LogMailer writes mail to the log instead of sending it. Used when no SMTP
// relay is configured.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs the message.
func (m *LogMailer) Send(to []string, subject, body string) error {
	if m.Logger != nil {
		m.Logger.Info("mail (not sent)",
			slog.String("to", strings.Join(to, ", ")),
			slog.String("subject", subject))
	}
	return nil
}
