// Package mailer delivers approved outreach emails.
package mailer

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/logging"
)

// Sender delivers a plain-text email and returns a provider acknowledgement.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// New builds the Sender selected by cfg.Mode.
func New(ctx context.Context, cfg config.MailerConfig, paths config.Paths, log *logging.Logger) (Sender, error) {
	switch cfg.Mode {
	case "", "log":
		return NewLogSender(cfg.From, log), nil
	case "gmail":
		return NewGmailSender(ctx, cfg.Gmail, paths, log)
	case "imap":
		return NewIMAPDraftSender(cfg.IMAP, cfg.From, log), nil
	default:
		return nil, fmt.Errorf("unknown mailer mode %q", cfg.Mode)
	}
}

// BuildMessage renders an RFC 5322 plain-text message.
func BuildMessage(from, to, subject, body string, date time.Time) []byte {
	var msg strings.Builder
	if from != "" {
		msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	}
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", date.Format(time.RFC1123Z)))
	msg.WriteString(fmt.Sprintf("Message-ID: <%s@leadreach>\r\n", uuid.NewString()))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(msg.String())
}

// LogSender writes the email to the log instead of delivering it.
type LogSender struct {
	from string
	log  *logging.Logger
}

// NewLogSender creates a dry-run sender.
func NewLogSender(from string, log *logging.Logger) *LogSender {
	return &LogSender{from: from, log: log.Sub("mailer")}
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) (string, error) {
	if to == "" {
		return "", fmt.Errorf("recipient is required")
	}
	ack := "logged-" + uuid.NewString()[:8]
	s.log.Info().
		Str("from", s.from).
		Str("to", to).
		Str("subject", subject).
		Str("ack", ack).
		Str("body", preview(body, 200)).
		Msg("email not delivered (log mode)")
	return ack, nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
