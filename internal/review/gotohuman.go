package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/soyeahso/leadreach/internal/logging"
	"github.com/soyeahso/leadreach/internal/version"
)

const defaultGotoHumanEndpoint = "https://api.gotohuman.com/requestReview"

// GotoHumanBridge submits review requests to the gotoHuman API.
type GotoHumanBridge struct {
	endpoint string
	apiKey   string
	formID   string
	client   *http.Client
	log      *logging.Logger
}

// NewGotoHumanBridge creates a bridge for the given form.
func NewGotoHumanBridge(endpoint, apiKey, formID string, client *http.Client, log *logging.Logger) *GotoHumanBridge {
	if endpoint == "" {
		endpoint = defaultGotoHumanEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &GotoHumanBridge{
		endpoint: endpoint,
		apiKey:   apiKey,
		formID:   formID,
		client:   client,
		log:      log.Sub("review.gotohuman"),
	}
}

type gthLinkField struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

type gthFields struct {
	Email          string       `json:"email"`
	EmailDomain    gthLinkField `json:"emailDomain"`
	EmailDraft     string       `json:"emailDraft"`
	CompanySummary string       `json:"companySummary,omitempty"`
}

type gthRequest struct {
	FormID string            `json:"formId"`
	Fields gthFields         `json:"fields"`
	Meta   map[string]string `json:"meta"`
}

type gthResponse struct {
	ReviewID string `json:"reviewId"`
	GthLink  string `json:"gthLink"`
}

func (b *GotoHumanBridge) Raise(ctx context.Context, threadID string, payload domain.ReviewPayload) (string, error) {
	body, err := json.Marshal(gthRequest{
		FormID: b.formID,
		Fields: gthFields{
			Email:          payload.Email,
			EmailDomain:    gthLinkField{URL: payload.WebsiteURL, Label: "Website checked"},
			EmailDraft:     payload.Draft,
			CompanySummary: payload.CompanySummary,
		},
		Meta: map[string]string{"threadId": threadID},
	})
	if err != nil {
		return "", fmt.Errorf("encoding review request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := b.client.Do(req)
	if err != nil {
		return "", &SubmitError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &SubmitError{Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b.log.Warn().Int("status", resp.StatusCode).Str("thread", threadID).Msg("review request rejected")
		return "", &SubmitError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var out gthResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", &SubmitError{Err: fmt.Errorf("decoding response: %w", err)}
	}
	if out.GthLink == "" {
		return "", &SubmitError{Message: "response carried no review link"}
	}

	b.log.Info().Str("thread", threadID).Str("reviewId", out.ReviewID).Msg("review requested")
	return out.GthLink, nil
}
