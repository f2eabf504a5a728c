package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response"}, nil
}

// ScriptedClient replays a fixed sequence of responses and records every
// request it receives.
type ScriptedClient struct {
	ProviderName string

	mu        sync.Mutex
	responses []*CompletionResponse
	errs      []error
	requests  []CompletionRequest
}

// NewScriptedClient creates a client that returns responses in order.
func NewScriptedClient(responses ...*CompletionResponse) *ScriptedClient {
	return &ScriptedClient{
		ProviderName: "scripted",
		responses:    responses,
		errs:         make([]error, len(responses)),
	}
}

// Push appends a response to the script.
func (s *ScriptedClient) Push(resp *CompletionResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	s.errs = append(s.errs, nil)
}

// PushError appends a failure to the script.
func (s *ScriptedClient) PushError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, nil)
	s.errs = append(s.errs, err)
}

func (s *ScriptedClient) Name() string { return s.ProviderName }

func (s *ScriptedClient) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("scripted client: no response queued for call %d", len(s.requests))
	}
	resp, err := s.responses[0], s.errs[0]
	s.responses, s.errs = s.responses[1:], s.errs[1:]
	return resp, err
}

// Requests returns a copy of the requests received so far.
func (s *ScriptedClient) Requests() []CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CompletionRequest(nil), s.requests...)
}

// Remaining reports how many scripted responses are unused.
func (s *ScriptedClient) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}
