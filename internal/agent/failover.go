package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/soyeahso/leadreach/internal/llm"
	"github.com/soyeahso/leadreach/internal/logging"
)

// Completer is the text-generation capability used by the agent node and
// the model-backed tools.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

const defaultRetryBackoff = 500 * time.Millisecond

// FailoverClient resolves models through an LLM registry. Transient errors
// are retried on the same model with exponential backoff; once retries run
// out, or the provider rejects the credentials, the next fallback model is
// tried.
type FailoverClient struct {
	registry *llm.Registry
	models   []string
	retries  int
	backoff  time.Duration
	log      *logging.Logger
}

// NewFailoverClient creates a client that tries primary first, then each
// fallback in order. Duplicate and empty model names are skipped.
func NewFailoverClient(registry *llm.Registry, primary string, fallbacks []string, log *logging.Logger) *FailoverClient {
	seen := map[string]bool{}
	var models []string
	for _, m := range append([]string{primary}, fallbacks...) {
		if m = strings.TrimSpace(m); m != "" && !seen[m] {
			seen[m] = true
			models = append(models, m)
		}
	}
	if len(models) == 0 {
		// let the registry fallback provider pick its default model
		models = []string{""}
	}
	return &FailoverClient{
		registry: registry,
		models:   models,
		backoff:  defaultRetryBackoff,
		log:      log.Sub("failover"),
	}
}

// WithRetry sets how many extra attempts a transient failure gets on the
// same model and the initial backoff between them.
func (f *FailoverClient) WithRetry(retries int, backoff time.Duration) *FailoverClient {
	if retries < 0 {
		retries = 0
	}
	f.retries = retries
	if backoff > 0 {
		f.backoff = backoff
	}
	return f
}

// Models returns the resolution order.
func (f *FailoverClient) Models() []string {
	return append([]string(nil), f.models...)
}

// Complete runs req against each model until one succeeds or a permanent
// error is returned.
func (f *FailoverClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var lastErr error
	for _, model := range f.models {
		client, err := f.registry.Resolve(model)
		if err != nil {
			f.log.Debug().Str("model", model).Err(err).Msg("no provider for model, skipping")
			lastErr = err
			continue
		}

		req.Model = model
		resp, err := f.completeWithRetry(ctx, client, model, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldFailOver(err) {
			return nil, err
		}
		f.log.Warn().Str("model", model).Err(err).Msg("provider failed, trying next model")
	}
	return nil, lastErr
}

func (f *FailoverClient) completeWithRetry(ctx context.Context, client llm.Client, model string, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	wait := f.backoff
	for attempt := 0; ; attempt++ {
		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if attempt >= f.retries || !isRetryable(err) || isAuthError(err) {
			return nil, err
		}
		f.log.Debug().
			Str("model", model).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Err(err).
			Msg("transient provider error, retrying")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, err
		case <-t.C:
		}
		wait *= 2
	}
}

// isRetryable reports whether err is transient: throttling, overload or a
// server-side failure.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 408, 429, 500, 502, 503, 504, 529:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "timeout")
}

func isAuthError(err error) bool {
	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code == 401 || provErr.Code == 403
	}
	return false
}

// shouldFailOver reports whether another model may succeed where this one
// failed.
func shouldFailOver(err error) bool {
	return isRetryable(err) || isAuthError(err)
}
