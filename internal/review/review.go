// Package review connects suspended conversations to a human reviewer and
// turns the reviewer's answer back into an inbound event.
package review

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/soyeahso/leadreach/internal/hooks"
	"github.com/soyeahso/leadreach/internal/logging"
)

// Bridge submits a review request and returns a link to it.
type Bridge interface {
	Raise(ctx context.Context, threadID string, payload domain.ReviewPayload) (string, error)
}

// SubmitError reports that the review service rejected or never received a
// request. The conversation stays suspended and the submission can be retried.
type SubmitError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *SubmitError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("review submission failed (HTTP %d): %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("review submission failed: %v", e.Err)
	}
	return "review submission failed: " + e.Message
}

func (e *SubmitError) Unwrap() error { return e.Err }

// New builds the bridge selected by cfg.Provider. When IRC is configured the
// bridge announces each review request there and, if hm is set, the channel
// also hears about sent emails and failed runs. The returned stop function
// disconnects any notifier and is safe to call more than once.
func New(ctx context.Context, cfg config.ReviewConfig, hm *hooks.Manager, log *logging.Logger) (Bridge, func(), error) {
	var bridge Bridge
	switch cfg.Provider {
	case "", "log":
		bridge = NewLogBridge(cfg.BaseURL, log)
	case "gotohuman":
		bridge = NewGotoHumanBridge(cfg.Endpoint, cfg.APIKey, cfg.FormID, &http.Client{Timeout: 30 * time.Second}, log)
	default:
		return nil, nil, fmt.Errorf("unknown review provider %q", cfg.Provider)
	}

	if cfg.IRC == nil {
		return bridge, func() {}, nil
	}
	n := NewIRCNotifier(*cfg.IRC, log)
	n.Start(ctx)
	if hm != nil {
		AnnounceOutcomes(hm, n, log)
	}
	return NewNotifyingBridge(bridge, n, log), n.Stop, nil
}

// LogBridge logs review requests and links to the local conversation API.
// Reviewers answer through the CLI or by posting a review event.
type LogBridge struct {
	baseURL string
	log     *logging.Logger
}

// NewLogBridge creates a bridge for local development.
func NewLogBridge(baseURL string, log *logging.Logger) *LogBridge {
	return &LogBridge{baseURL: strings.TrimRight(baseURL, "/"), log: log.Sub("review")}
}

func (b *LogBridge) Raise(_ context.Context, threadID string, payload domain.ReviewPayload) (string, error) {
	link := b.baseURL + "/api/conversations/" + threadID
	b.log.Info().
		Str("thread", threadID).
		Str("email", payload.Email).
		Str("website", payload.WebsiteURL).
		Int("draftLen", len(payload.Draft)).
		Str("link", link).
		Msg("review requested")
	return link, nil
}
