package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/logging"
)

// IMAPDraftSender stores the email in a drafts mailbox for a person to send
// from their own mail client.
type IMAPDraftSender struct {
	cfg  config.IMAPConfig
	from string
	dial func(addr string) (*client.Client, error)
	log  *logging.Logger
}

// NewIMAPDraftSender creates a sender that connects over TLS.
func NewIMAPDraftSender(cfg config.IMAPConfig, from string, log *logging.Logger) *IMAPDraftSender {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "Drafts"
	}
	if from == "" {
		from = cfg.Username
	}
	return &IMAPDraftSender{
		cfg:  cfg,
		from: from,
		dial: func(addr string) (*client.Client, error) {
			return client.DialTLS(addr, &tls.Config{ServerName: cfg.Server})
		},
		log: log.Sub("mailer.imap"),
	}
}

func (s *IMAPDraftSender) connect() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)
	s.log.Debug().Str("addr", addr).Msg("connecting to IMAP server")

	c, err := s.dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return c, nil
}

func (s *IMAPDraftSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c, err := s.connect()
	if err != nil {
		return "", err
	}
	defer c.Logout()

	now := time.Now()
	msg := bytes.NewBuffer(BuildMessage(s.from, to, subject, body, now))
	if err := c.Append(s.cfg.Mailbox, []string{imap.DraftFlag}, now, msg); err != nil {
		return "", fmt.Errorf("append to %s: %w", s.cfg.Mailbox, err)
	}

	ack := fmt.Sprintf("draft:%s", s.cfg.Mailbox)
	s.log.Info().Str("to", to).Str("mailbox", s.cfg.Mailbox).Msg("draft stored")
	return ack, nil
}
