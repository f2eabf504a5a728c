package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/soyeahso/leadreach/internal/hooks"
	"github.com/soyeahso/leadreach/internal/llm"
	"github.com/soyeahso/leadreach/internal/logging"
	"github.com/soyeahso/leadreach/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// --- fakes ---

type fakeScraper struct {
	mu   sync.Mutex
	urls []string
	text string
	err  error
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeScraper) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type sentMail struct {
	To, Subject, Body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeSender) mails() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}

type fakeReviewer struct {
	mu       sync.Mutex
	payloads []domain.ReviewPayload
	err      error
}

func (f *fakeReviewer) Raise(_ context.Context, threadID string, p domain.ReviewPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, p)
	return "https://review.test/" + threadID, nil
}

func (f *fakeReviewer) raised() []domain.ReviewPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ReviewPayload(nil), f.payloads...)
}

// toolModel answers the summarizer and drafter calls.
type toolModel struct {
	mu       sync.Mutex
	requests []llm.CompletionRequest
}

func (m *toolModel) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if req.System == summarizerPrompt {
		return &llm.CompletionResponse{Content: "Acme builds anvils for cartoon coyotes."}, nil
	}
	return &llm.CompletionResponse{Content: "Hi there, fresh fruit for your office?"}, nil
}

func (m *toolModel) userMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.requests {
		out = append(out, r.Messages[len(r.Messages)-1].Content)
	}
	return out
}

func callResp(id, name, input string) *llm.CompletionResponse {
	return &llm.CompletionResponse{ToolCalls: []llm.ToolCall{{ID: id, Name: name, Input: input}}}
}

func textResp(text string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: text}
}

type harness struct {
	engine   *Engine
	model    *llm.ScriptedClient
	tools    *toolModel
	scraper  *fakeScraper
	sender   *fakeSender
	reviewer *fakeReviewer
	store    *store.Memory
	hooks    *hooks.Manager
}

func newHarness(t *testing.T, cfg Config, script ...*llm.CompletionResponse) *harness {
	t.Helper()
	h := &harness{
		model:    llm.NewScriptedClient(script...),
		tools:    &toolModel{},
		scraper:  &fakeScraper{text: "Acme Corp. Anvils since 1949."},
		sender:   &fakeSender{},
		reviewer: &fakeReviewer{},
		store:    store.NewMemory(),
		hooks:    hooks.NewManager(silentLog()),
	}
	if cfg.Subject == "" {
		cfg.Subject = "Hello"
	}
	if cfg.Sender.Name == "" {
		cfg.Sender = SenderProfile{Name: "Jess", Company: "FreshFruits", CompanyDescription: "We deliver fruit."}
	}
	registry := DefaultTools(h.scraper, h.tools, cfg.Sender, 0)
	h.engine = NewEngine(cfg, h.model, registry, h.store, h.reviewer, h.sender, h.hooks, silentLog())
	return h
}

func janeScript() []*llm.CompletionResponse {
	return []*llm.CompletionResponse{
		callResp("c1", ToolScraper, `{"url":"https://acme.org"}`),
		callResp("c2", ToolSummarizer, `{"content":"Acme Corp. Anvils since 1949."}`),
		callResp("c3", ToolDrafter, `{"emailAddress":"jane@acme.org","companyDescription":"Acme builds anvils."}`),
		textResp("Hi Jane, fresh fruit for Acme?"),
	}
}

// --- end-to-end ---

func TestEngine_CompanyLeadApproveWithRevision(t *testing.T) {
	h := newHarness(t, Config{}, janeScript()...)
	ctx := context.Background()

	res, err := h.engine.Start(ctx, "t-jane", "jane@acme.org")
	require.NoError(t, err)
	assert.True(t, res.Suspended())
	assert.Equal(t, "https://review.test/t-jane", res.ReviewLink)
	assert.Equal(t, "https://acme.org", res.Domain)

	assert.Equal(t, []string{"https://acme.org"}, h.scraper.calls())
	assert.Empty(t, h.sender.mails(), "nothing is sent before approval")

	raised := h.reviewer.raised()
	require.Len(t, raised, 1)
	assert.Equal(t, "jane@acme.org", raised[0].Email)
	assert.Equal(t, "https://acme.org", raised[0].WebsiteURL)
	assert.Equal(t, "Acme builds anvils for cartoon coyotes.", raised[0].CompanySummary)
	assert.Equal(t, "Hi Jane, fresh fruit for Acme?", raised[0].Draft)

	conv, err := h.store.Load(ctx, "t-jane")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, conv.Status)
	assert.Equal(t, domain.NodeHumanReview, conv.NextNode)
	require.NotNil(t, conv.PendingReview)
	assert.NoError(t, conv.Validate())

	res, err = h.engine.Resume(ctx, "t-jane", domain.ReviewResponse{
		Decision:    domain.DecisionApprove,
		RevisedText: "Hi Jane, ...",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminal, res.Status)

	mails := h.sender.mails()
	require.Len(t, mails, 1)
	assert.Equal(t, "jane@acme.org", mails[0].To)
	assert.Equal(t, "Hi Jane, ...", mails[0].Body)
	assert.Equal(t, "Hello", mails[0].Subject)

	conv, err = h.store.Load(ctx, "t-jane")
	require.NoError(t, err)
	assert.True(t, conv.IsTerminal())
	assert.Equal(t, domain.NodeEnd, conv.NextNode)
	assert.Nil(t, conv.PendingReview)
	assert.Equal(t, "Hi Jane, ...", conv.EmailToSend)
	assert.Zero(t, h.model.Remaining())
}

func TestEngine_ConsumerLeadSkipsScrape(t *testing.T) {
	h := newHarness(t, Config{},
		callResp("c1", ToolDrafter, `{"emailAddress":"bob@gmail.com","companyDescription":""}`),
		textResp("Hi Bob, fruit?"),
	)
	ctx := context.Background()

	res, err := h.engine.Start(ctx, "t-bob", "bob@gmail.com")
	require.NoError(t, err)
	assert.True(t, res.Suspended())
	assert.Empty(t, res.Domain)

	assert.Empty(t, h.scraper.calls())
	raised := h.reviewer.raised()
	require.Len(t, raised, 1)
	assert.Empty(t, raised[0].WebsiteURL)
	assert.Empty(t, raised[0].CompanySummary)

	seed := h.model.Requests()[0].Messages[0].Content
	assert.Contains(t, seed, "bob@gmail.com")
	assert.NotContains(t, seed, "Scrape")

	assert.Equal(t, []string{"No additional information found about the prospect"}, h.tools.userMessages())
}

func TestEngine_RetryThenApprove(t *testing.T) {
	h := newHarness(t, Config{},
		textResp("draft one"),
		callResp("c1", ToolDrafter, `{"emailAddress":"bob@gmail.com"}`),
		textResp("draft two"),
	)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-retry", "bob@gmail.com")
	require.NoError(t, err)

	res, err := h.engine.Resume(ctx, "t-retry", domain.ReviewResponse{
		Decision: domain.DecisionRetry,
		Comment:  "mention bananas",
	})
	require.NoError(t, err)
	assert.True(t, res.Suspended())

	reqs := h.model.Requests()
	require.Len(t, reqs, 3)
	retryMsgs := reqs[1].Messages
	assert.Equal(t, llm.RoleUser, retryMsgs[len(retryMsgs)-1].Role)
	assert.Equal(t, "Please regenerate the email draft and consider the following: mention bananas",
		retryMsgs[len(retryMsgs)-1].Content)

	raised := h.reviewer.raised()
	require.Len(t, raised, 2)
	assert.Equal(t, "draft two", raised[1].Draft)

	_, err = h.engine.Resume(ctx, "t-retry", domain.ReviewResponse{Decision: domain.DecisionApprove})
	require.NoError(t, err)
	mails := h.sender.mails()
	require.Len(t, mails, 1)
	assert.Equal(t, "draft two", mails[0].Body, "latest draft is sent when no revision is given")
}

func TestEngine_RejectEndsWithoutSending(t *testing.T) {
	h := newHarness(t, Config{}, textResp("draft"))
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-rej", "bob@gmail.com")
	require.NoError(t, err)

	res, err := h.engine.Resume(ctx, "t-rej", domain.ReviewResponse{Decision: domain.DecisionReject})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminal, res.Status)
	assert.Empty(t, h.sender.mails())

	_, err = h.engine.Resume(ctx, "t-rej", domain.ReviewResponse{Decision: domain.DecisionApprove, RevisedText: "x"})
	assert.ErrorIs(t, err, domain.ErrNotSuspended)
}

func TestEngine_UnknownDecisionEndsWithoutSending(t *testing.T) {
	h := newHarness(t, Config{}, textResp("draft"))
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-odd", "bob@gmail.com")
	require.NoError(t, err)

	res, err := h.engine.Resume(ctx, "t-odd", domain.ReviewResponse{Decision: "escalate"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminal, res.Status)
	assert.Empty(t, h.sender.mails())
}

// --- error handling ---

func TestEngine_ResumeUnknownThread(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.engine.Resume(context.Background(), "missing", domain.ReviewResponse{Decision: domain.DecisionApprove, RevisedText: "x"})
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
	assert.Contains(t, err.Error(), "conversation not found: missing")

	list, err := h.store.List(context.Background(), store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_ResumeWhileRunning(t *testing.T) {
	h := newHarness(t, Config{})
	h.model.PushError(errors.New("model down"))
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-run", "bob@gmail.com")
	require.Error(t, err)

	_, err = h.engine.Resume(ctx, "t-run", domain.ReviewResponse{Decision: domain.DecisionRetry})
	assert.ErrorIs(t, err, domain.ErrNotSuspended)
}

func TestEngine_StartValidation(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "", "  ")
	assert.True(t, domain.IsValidation(err))

	_, err = h.engine.Start(ctx, "bad id", "a@b.com")
	assert.True(t, domain.IsValidation(err))
}

func TestEngine_GeneratesThreadID(t *testing.T) {
	h := newHarness(t, Config{}, textResp("draft"))
	res, err := h.engine.Start(context.Background(), "", "bob@gmail.com")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ThreadID)
	assert.NoError(t, domain.ValidateThreadID(res.ThreadID))
}

func TestEngine_ToolFailureBecomesToolResult(t *testing.T) {
	h := newHarness(t, Config{},
		callResp("c1", ToolScraper, `{"url":"https://acme.org"}`),
		callResp("c2", "fax-machine", `{}`),
		textResp("draft without context"),
	)
	h.scraper.err = errors.New("connection refused")
	ctx := context.Background()

	res, err := h.engine.Start(ctx, "t-fail", "jane@acme.org")
	require.NoError(t, err)
	assert.True(t, res.Suspended())

	conv, err := h.store.Load(ctx, "t-fail")
	require.NoError(t, err)
	var toolMsgs []domain.Message
	for _, m := range conv.Messages {
		if m.Role == domain.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	require.Len(t, toolMsgs, 2)
	assert.Equal(t, "c1", toolMsgs[0].ToolCallID)
	assert.Equal(t, "Error: connection refused", toolMsgs[0].Content)
	assert.Equal(t, "Error: unknown tool: fax-machine", toolMsgs[1].Content)
}

func TestEngine_MultipleCallsRunInOrder(t *testing.T) {
	h := newHarness(t, Config{},
		&llm.CompletionResponse{ToolCalls: []llm.ToolCall{
			{ID: "a", Name: ToolScraper, Input: `{"url":"https://acme.org"}`},
			{ID: "b", Name: ToolScraper, Input: `{"url":"https://acme.org/about"}`},
		}},
		textResp("draft"),
	)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-multi", "jane@acme.org")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.org", "https://acme.org/about"}, h.scraper.calls())

	conv, err := h.store.Load(ctx, "t-multi")
	require.NoError(t, err)
	// seed, assistant(calls), tool a, tool b, draft
	require.Len(t, conv.Messages, 5)
	assert.Equal(t, "a", conv.Messages[2].ToolCallID)
	assert.Equal(t, "b", conv.Messages[3].ToolCallID)

	// The model saw both results before drafting.
	reqs := h.model.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 4)
}

func TestEngine_DuplicateCallIDsAreReassigned(t *testing.T) {
	h := newHarness(t, Config{},
		&llm.CompletionResponse{ToolCalls: []llm.ToolCall{
			{ID: "call_0", Name: ToolScraper, Input: `{"url":"https://acme.org"}`},
			{ID: "call_0", Name: ToolScraper, Input: `{"url":"https://acme.org/about"}`},
			{ID: "", Name: ToolScraper, Input: `{"url":"https://acme.org/team"}`},
		}},
		callResp("call_0", ToolScraper, `{"url":"https://acme.org/jobs"}`),
		textResp("draft"),
	)
	ctx := context.Background()

	res, err := h.engine.Start(ctx, "t-dup", "jane@acme.org")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, res.Status)
	assert.Len(t, h.scraper.calls(), 4)

	conv, err := h.store.Load(ctx, "t-dup")
	require.NoError(t, err)
	require.NoError(t, conv.Validate())

	first := conv.Messages[1].ToolCalls
	require.Len(t, first, 3)
	assert.Equal(t, "call_0", first[0].ID)
	assert.NotEqual(t, "call_0", first[1].ID)
	assert.NotEmpty(t, first[2].ID)
	assert.NotEqual(t, first[1].ID, first[2].ID)

	second := conv.Messages[5].ToolCalls
	require.Len(t, second, 1)
	assert.NotEqual(t, "call_0", second[0].ID)
	assert.Equal(t, second[0].ID, conv.Messages[6].ToolCallID)
}

func TestEngine_LoopLimit(t *testing.T) {
	h := newHarness(t, Config{MaxToolRounds: 2})
	for i := 0; i < 3; i++ {
		h.model.Push(callResp(fmt.Sprintf("c%d", i), ToolScraper, `{"url":"https://acme.org"}`))
	}
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-loop", "jane@acme.org")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoopLimit)
	assert.Len(t, h.scraper.calls(), 2)

	conv, err := h.store.Load(ctx, "t-loop")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, conv.Status)
	assert.Equal(t, domain.NodeAgent, conv.NextNode)
	assert.Equal(t, 2, conv.Rounds)
}

func TestEngine_ModelFailureKeepsCheckpoint(t *testing.T) {
	h := newHarness(t, Config{})
	h.model.PushError(errors.New("model down"))
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-crash", "bob@gmail.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model down")

	conv, err := h.store.Load(ctx, "t-crash")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeAgent, conv.NextNode)
	require.Len(t, conv.Messages, 1)
	before := conv.Version

	// Redelivery continues from the last good checkpoint.
	h.model.Push(textResp("recovered draft"))
	res, err := h.engine.Start(ctx, "t-crash", "bob@gmail.com")
	require.NoError(t, err)
	assert.True(t, res.Suspended())

	conv, err = h.store.Load(ctx, "t-crash")
	require.NoError(t, err)
	assert.Greater(t, conv.Version, before)
	assert.Len(t, conv.Messages, 2, "seed message is not repeated")
}

func TestEngine_ReviewSubmitFailureStaysSuspended(t *testing.T) {
	h := newHarness(t, Config{}, textResp("draft"))
	h.reviewer.err = errors.New("review service unavailable")
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-gth", "bob@gmail.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review service unavailable")

	conv, err := h.store.Load(ctx, "t-gth")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, conv.Status)

	// A duplicate lead event raises the review again without re-running the model.
	h.reviewer.err = nil
	res, err := h.engine.Start(ctx, "t-gth", "bob@gmail.com")
	require.NoError(t, err)
	assert.True(t, res.Suspended())
	assert.Len(t, h.reviewer.raised(), 1)
	assert.Len(t, h.model.Requests(), 1)
}

func TestEngine_SendFailureIsResumable(t *testing.T) {
	h := newHarness(t, Config{}, textResp("draft"))
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-send", "bob@gmail.com")
	require.NoError(t, err)

	h.sender.err = errors.New("smtp down")
	_, err = h.engine.Resume(ctx, "t-send", domain.ReviewResponse{Decision: domain.DecisionApprove, RevisedText: "final"})
	require.Error(t, err)

	conv, err := h.store.Load(ctx, "t-send")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeSendEmail, conv.NextNode)
	assert.Equal(t, domain.StatusRunning, conv.Status)

	h.sender.err = nil
	res, err := h.engine.Start(ctx, "t-send", "bob@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminal, res.Status)
	require.Len(t, h.sender.mails(), 1)
	assert.Equal(t, "final", h.sender.mails()[0].Body)
}

func TestEngine_CompletedThreadIsNoOp(t *testing.T) {
	h := newHarness(t, Config{}, textResp("draft"))
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-done", "bob@gmail.com")
	require.NoError(t, err)
	_, err = h.engine.Resume(ctx, "t-done", domain.ReviewResponse{Decision: domain.DecisionApprove, RevisedText: "final"})
	require.NoError(t, err)

	before, err := h.store.Load(ctx, "t-done")
	require.NoError(t, err)

	res, err := h.engine.Start(ctx, "t-done", "bob@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminal, res.Status)
	assert.Equal(t, "draft", res.Answer)

	after, err := h.store.Load(ctx, "t-done")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, h.sender.mails(), 1)
}

func TestEngine_ThreadBelongsToOneLead(t *testing.T) {
	h := newHarness(t, Config{}, textResp("draft"))
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-own", "bob@gmail.com")
	require.NoError(t, err)

	_, err = h.engine.Start(ctx, "t-own", "eve@gmail.com")
	assert.True(t, domain.IsValidation(err))
}

func TestEngine_ConcurrentApprovalsSendOnce(t *testing.T) {
	h := newHarness(t, Config{}, textResp("draft"))
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-dup", "bob@gmail.com")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.engine.Resume(ctx, "t-dup", domain.ReviewResponse{Decision: domain.DecisionApprove, RevisedText: "final"})
		}(i)
	}
	wg.Wait()

	var ok, notSuspended int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrNotSuspended):
			notSuspended++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 3, notSuspended)
	assert.Len(t, h.sender.mails(), 1)
	assert.Zero(t, h.engine.locks.size())
}

func TestEngine_TextToolCallFallback(t *testing.T) {
	h := newHarness(t, Config{},
		textResp("Let me look.\n```tool_call\n{\"tool\": \"scraper\", \"input\": {\"url\": \"https://acme.org\"}}\n```\n"),
		textResp("draft"),
	)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "t-text", "jane@acme.org")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.org"}, h.scraper.calls())

	conv, err := h.store.Load(ctx, "t-text")
	require.NoError(t, err)
	assistant := conv.Messages[1]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "Let me look.", assistant.Content)
	assert.Equal(t, assistant.ToolCalls[0].ID, conv.Messages[2].ToolCallID)
}

func TestEngine_HooksAndCheckpoints(t *testing.T) {
	h := newHarness(t, Config{}, textResp("draft"))
	ctx := context.Background()

	var mu sync.Mutex
	var events []string
	var nodes []string
	h.hooks.OnAll("recorder", func(_ context.Context, p hooks.Payload) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p.Event)
		if p.Event == hooks.EventStepCommitted {
			nodes = append(nodes, p.Data["node"].(string))
		}
		return nil
	})

	_, err := h.engine.Start(ctx, "t-hooks", "bob@gmail.com")
	require.NoError(t, err)
	_, err = h.engine.Resume(ctx, "t-hooks", domain.ReviewResponse{Decision: domain.DecisionApprove, RevisedText: "final"})
	require.NoError(t, err)

	assert.Equal(t, []string{"extract-domain", "agent", "human-review", "human-review", "send-email"}, nodes)
	assert.Equal(t, hooks.EventRunStarted, events[0])
	assert.Contains(t, events, hooks.EventReviewRequested)
	assert.Contains(t, events, hooks.EventEmailSent)
	assert.Equal(t, hooks.EventRunCompleted, events[len(events)-1])

	conv, err := h.store.Load(ctx, "t-hooks")
	require.NoError(t, err)
	assert.EqualValues(t, 6, conv.Version, "initial save plus one checkpoint per step")
}

func TestEngine_Handle(t *testing.T) {
	h := newHarness(t, Config{}, textResp("draft"))
	ctx := context.Background()

	res, err := h.engine.Handle(ctx, domain.InboundEvent{Kind: domain.EventNewLead, ThreadID: "t-h", Email: "bob@gmail.com"})
	require.NoError(t, err)
	assert.True(t, res.Suspended())

	_, err = h.engine.Handle(ctx, domain.InboundEvent{Kind: domain.EventReview, ThreadID: "t-h"})
	assert.True(t, domain.IsValidation(err))

	res, err = h.engine.Handle(ctx, domain.InboundEvent{
		Kind:     domain.EventReview,
		ThreadID: "t-h",
		Review:   &domain.ReviewResponse{Decision: domain.DecisionReject},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminal, res.Status)

	_, err = h.engine.Handle(ctx, domain.InboundEvent{Kind: "bogus"})
	assert.True(t, domain.IsValidation(err))
}

func TestEngine_RunDeadline(t *testing.T) {
	h := newHarness(t, Config{}, textResp("draft"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.Start(ctx, "t-dead", "bob@gmail.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "canceled"))
}
