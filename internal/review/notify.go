package review

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"

	"github.com/lrstanley/girc"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/soyeahso/leadreach/internal/hooks"
	"github.com/soyeahso/leadreach/internal/logging"
)

// Notifier announces a pending review somewhere a person will see it.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// NotifyingBridge posts the review link through a Notifier after each
// successful submission.
type NotifyingBridge struct {
	next     Bridge
	notifier Notifier
	log      *logging.Logger
}

// NewNotifyingBridge decorates next with notifications.
func NewNotifyingBridge(next Bridge, notifier Notifier, log *logging.Logger) *NotifyingBridge {
	return &NotifyingBridge{next: next, notifier: notifier, log: log.Sub("review")}
}

func (b *NotifyingBridge) Raise(ctx context.Context, threadID string, payload domain.ReviewPayload) (string, error) {
	link, err := b.next.Raise(ctx, threadID, payload)
	if err != nil {
		return "", err
	}
	if err := b.notifier.Notify(ctx, reviewNotice(threadID, payload, link)); err != nil {
		b.log.Warn().Err(err).Str("thread", threadID).Msg("review notification failed")
	}
	return link, nil
}

func reviewNotice(threadID string, payload domain.ReviewPayload, link string) string {
	site := payload.WebsiteURL
	if site == "" {
		site = "no website"
	}
	return fmt.Sprintf("Draft for %s (%s) needs review [%s]: %s", payload.Email, site, threadID, link)
}

// AnnounceOutcomes posts sent emails and failed runs through n. Handlers run
// asynchronously so a slow network never holds up the workflow.
func AnnounceOutcomes(hm *hooks.Manager, n Notifier, log *logging.Logger) {
	log = log.Sub("review")
	announce := func(ctx context.Context, p hooks.Payload) error {
		text := outcomeNotice(p)
		if text == "" {
			return nil
		}
		return n.Notify(ctx, text)
	}
	hm.OnAsync(hooks.EventEmailSent, "review.notice", announce)
	hm.OnAsync(hooks.EventRunFailed, "review.notice", announce)
	log.Debug().Msg("announcing outcomes")
}

func outcomeNotice(p hooks.Payload) string {
	switch p.Event {
	case hooks.EventEmailSent:
		to, _ := p.Data["to"].(string)
		return fmt.Sprintf("Email sent to %s [%s]", to, p.ThreadID())
	case hooks.EventRunFailed:
		msg, _ := p.Data["error"].(string)
		return fmt.Sprintf("Run failed [%s]: %s", p.ThreadID(), msg)
	}
	return ""
}

// IRCNotifier posts notices to one IRC channel.
type IRCNotifier struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	mu      sync.RWMutex
	running bool
	lastErr string
}

// NewIRCNotifier creates a notifier. Call Start to connect.
func NewIRCNotifier(cfg config.IRCConfig, log *logging.Logger) *IRCNotifier {
	port := cfg.Port
	if port == 0 {
		if cfg.UseTLS {
			port = 6697
		} else {
			port = 6667
		}
	}

	gircCfg := girc.Config{
		Server:  cfg.Server,
		Port:    port,
		Nick:    cfg.Nick,
		User:    cfg.Nick,
		Name:    "leadreach review notifier",
		SSL:     cfg.UseTLS,
		Version: "leadreach/1.0",
	}
	if cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: cfg.Server}
	}
	if cfg.Password != "" {
		gircCfg.ServerPass = cfg.Password
	}

	n := &IRCNotifier{cfg: cfg, log: log.Sub("irc")}
	n.client = girc.New(gircCfg)
	n.client.Handlers.Add(girc.CONNECTED, n.onConnected)
	n.client.Handlers.Add(girc.DISCONNECTED, n.onDisconnected)
	n.cfg.Port = port
	return n
}

// Start connects in the background until ctx is canceled or Stop is called.
func (n *IRCNotifier) Start(ctx context.Context) {
	n.mu.Lock()
	n.running = true
	n.lastErr = ""
	n.mu.Unlock()

	n.log.Info().
		Str("server", n.cfg.Server).
		Int("port", n.cfg.Port).
		Str("nick", n.cfg.Nick).
		Str("channel", n.cfg.Channel).
		Bool("tls", n.cfg.UseTLS).
		Msg("connecting to IRC")

	go func() {
		err := n.client.Connect()
		n.mu.Lock()
		n.running = false
		if err != nil {
			n.lastErr = err.Error()
		}
		n.mu.Unlock()
		if err != nil {
			n.log.Error().Err(err).Msg("irc connection ended")
		}
	}()

	go func() {
		<-ctx.Done()
		n.Stop()
	}()
}

// Stop disconnects from the server.
func (n *IRCNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client.IsConnected() {
		n.log.Info().Msg("disconnecting from IRC")
		n.client.Quit("leadreach shutting down")
	}
	n.running = false
}

// Connected reports whether the client is registered with the server.
func (n *IRCNotifier) Connected() bool {
	return n.client.IsConnected()
}

// LastError returns the error that ended the last connection, if any.
func (n *IRCNotifier) LastError() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastErr
}

func (n *IRCNotifier) Notify(_ context.Context, text string) error {
	if !n.client.IsConnected() {
		return fmt.Errorf("irc: not connected")
	}
	if n.cfg.Channel == "" {
		return fmt.Errorf("irc: no channel configured")
	}
	lines := splitMessage(text, 400)
	for _, line := range lines {
		n.client.Cmd.Message(n.cfg.Channel, line)
	}
	n.log.Debug().Str("to", n.cfg.Channel).Int("lines", len(lines)).Msg("sent IRC notice")
	return nil
}

func (n *IRCNotifier) onConnected(c *girc.Client, _ girc.Event) {
	n.log.Info().Str("nick", c.GetNick()).Str("channel", n.cfg.Channel).Msg("connected to IRC")
	c.Cmd.Join(n.cfg.Channel)
}

func (n *IRCNotifier) onDisconnected(_ *girc.Client, _ girc.Event) {
	n.log.Warn().Msg("disconnected from IRC")
}

// splitMessage breaks text into IRC-sized lines. PRIVMSG cannot carry
// newlines, and each line is cut at maxLen bytes.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			chunks = append(chunks, line[:maxLen])
			line = line[maxLen:]
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
