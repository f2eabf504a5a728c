package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/logging"
)

// GmailSender sends through the Gmail API as the authenticated user.
type GmailSender struct {
	svc *gmail.Service
	log *logging.Logger
}

// GmailOAuthConfig loads the OAuth client from the credentials file.
func GmailOAuthConfig(cfg config.GmailConfig, paths config.Paths) (*oauth2.Config, error) {
	credentialsPath := gmailCredentialsPath(cfg, paths)
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file at %s: %w", credentialsPath, err)
	}
	oc, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	return oc, nil
}

// NewGmailSender authenticates with the cached token.
func NewGmailSender(ctx context.Context, cfg config.GmailConfig, paths config.Paths, log *logging.Logger) (*GmailSender, error) {
	oc, err := GmailOAuthConfig(cfg, paths)
	if err != nil {
		return nil, err
	}
	tokenPath := GmailTokenPath(cfg, paths)
	token, err := TokenFromFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("no auth token found at %s - run 'leadreach mailer auth' first", tokenPath)
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oc.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return NewGmailSenderWithService(svc, log), nil
}

// NewGmailSenderWithService wraps an existing Gmail service.
func NewGmailSenderWithService(svc *gmail.Service, log *logging.Logger) *GmailSender {
	return &GmailSender{svc: svc, log: log.Sub("mailer.gmail")}
}

func (s *GmailSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	raw := BuildMessage("", to, subject, body, time.Now())
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}

	sent, err := s.svc.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gmail send: %w", err)
	}
	s.log.Info().Str("to", to).Str("id", sent.Id).Msg("message sent")
	return sent.Id, nil
}

// GmailTokenPath returns where the OAuth token is cached.
func GmailTokenPath(cfg config.GmailConfig, paths config.Paths) string {
	if cfg.TokenFile != "" {
		return cfg.TokenFile
	}
	return paths.Credentials + "/gmail-token.json"
}

func gmailCredentialsPath(cfg config.GmailConfig, paths config.Paths) string {
	if cfg.CredentialsFile != "" {
		return cfg.CredentialsFile
	}
	return paths.Credentials + "/gmail-credentials.json"
}

// TokenFromFile reads a cached OAuth token.
func TokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// SaveToken caches an OAuth token with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
