// Package agent implements the outreach workflow: a step graph over a
// checkpointed conversation that suspends for human review before any email
// is sent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/soyeahso/leadreach/internal/hooks"
	"github.com/soyeahso/leadreach/internal/leads"
	"github.com/soyeahso/leadreach/internal/llm"
	"github.com/soyeahso/leadreach/internal/logging"
	"github.com/soyeahso/leadreach/internal/store"
)

const (
	defaultMaxToolRounds  = 8
	defaultMaxRunDuration = 60 * time.Second
)

// ErrLoopLimit is returned when the model keeps requesting tools past the
// configured number of rounds.
var ErrLoopLimit = errors.New("tool loop limit exceeded")

// Reviewer submits a suspended draft for human review and returns a link.
type Reviewer interface {
	Raise(ctx context.Context, threadID string, payload domain.ReviewPayload) (string, error)
}

// Config configures the workflow engine.
type Config struct {
	MaxToolRounds  int
	MaxRunDuration time.Duration
	MaxTokens      int
	Temperature    *float64
	Subject        string
	Sender         SenderProfile
	ExtraPrompt    string
}

// Result is the outcome of one synchronous run.
type Result struct {
	ThreadID     string               `json:"threadId"`
	Status       domain.Status        `json:"status"`
	ReviewLink   string               `json:"reviewLink,omitempty"`
	Answer       string               `json:"answer,omitempty"`
	Domain       string               `json:"domain,omitempty"`
	Conversation *domain.Conversation `json:"-"`
}

// Suspended reports whether the run stopped at human review.
func (r *Result) Suspended() bool { return r.Status == domain.StatusSuspended }

// Engine drives conversations through the workflow graph. Every step is
// committed to the checkpointer before the next one runs.
type Engine struct {
	cfg      Config
	model    Completer
	tools    *ToolRegistry
	store    store.Checkpointer
	reviewer Reviewer
	sender   Sender
	hooks    *hooks.Manager
	locks    *threadLocks
	system   string
	log      *logging.Logger
}

// NewEngine creates a workflow engine. hooks may be nil.
func NewEngine(
	cfg Config,
	model Completer,
	tools *ToolRegistry,
	checkpoints store.Checkpointer,
	reviewer Reviewer,
	sender Sender,
	hm *hooks.Manager,
	log *logging.Logger,
) *Engine {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.MaxRunDuration <= 0 {
		cfg.MaxRunDuration = defaultMaxRunDuration
	}
	if cfg.Temperature == nil {
		cfg.Temperature = llm.Temperature(agentTemperature)
	}
	return &Engine{
		cfg:      cfg,
		model:    model,
		tools:    tools,
		store:    checkpoints,
		reviewer: reviewer,
		sender:   sender,
		hooks:    hm,
		locks:    newThreadLocks(),
		system: BuildSystemPrompt(PromptConfig{
			Sender:      cfg.Sender,
			Tools:       tools.Definitions(),
			ExtraPrompt: cfg.ExtraPrompt,
		}),
		log: log.Sub("agent"),
	}
}

// Handle dispatches an inbound event to Start or Resume.
func (e *Engine) Handle(ctx context.Context, ev domain.InboundEvent) (*Result, error) {
	switch ev.Kind {
	case domain.EventNewLead:
		return e.Start(ctx, ev.ThreadID, ev.Email)
	case domain.EventReview:
		if ev.Review == nil {
			return nil, &domain.ValidationError{Field: "response", Message: "required"}
		}
		return e.Resume(ctx, ev.ThreadID, *ev.Review)
	default:
		return nil, &domain.ValidationError{Field: "type", Message: fmt.Sprintf("unknown event kind %q", ev.Kind)}
	}
}

// Start handles a new-lead event. An empty threadID gets a generated one.
// An existing thread is continued rather than restarted: a suspended thread
// has its review raised again, a terminal thread returns its final result.
func (e *Engine) Start(ctx context.Context, threadID, email string) (*Result, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, &domain.ValidationError{Field: "email", Message: "required"}
	}
	if threadID == "" {
		threadID = uuid.NewString()
	} else if err := domain.ValidateThreadID(threadID); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(threadID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.MaxRunDuration)
	defer cancel()

	conv, err := e.store.Load(ctx, threadID)
	switch {
	case domain.IsNotFound(err):
		conv = domain.NewConversation(threadID, email)
		if err := e.store.Save(ctx, conv, 0); err != nil {
			return nil, fmt.Errorf("creating thread %s: %w", threadID, err)
		}
		e.log.Info().Str("threadId", threadID).Str("email", email).Msg("new lead")
	case err != nil:
		return nil, fmt.Errorf("loading thread %s: %w", threadID, err)
	case conv.LeadEmail != email:
		return nil, &domain.ValidationError{Field: "email", Message: fmt.Sprintf("thread %s belongs to a different lead", threadID)}
	case conv.IsTerminal():
		e.log.Info().Str("threadId", threadID).Msg("thread already completed")
		return e.result(conv), nil
	}

	e.emit(ctx, hooks.EventRunStarted, map[string]any{"threadId": threadID, "trigger": string(domain.EventNewLead)})
	return e.run(ctx, threadID)
}

// Resume applies a review response to a thread suspended at human review
// and runs it to the next suspend point or the end.
func (e *Engine) Resume(ctx context.Context, threadID string, resp domain.ReviewResponse) (*Result, error) {
	if threadID == "" {
		return nil, &domain.ValidationError{Field: "threadId", Message: "required"}
	}

	unlock := e.locks.lock(threadID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.MaxRunDuration)
	defer cancel()

	conv, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if conv.Status != domain.StatusSuspended || conv.NextNode != domain.NodeHumanReview {
		return nil, fmt.Errorf("thread %s is %s: %w", threadID, conv.Status, domain.ErrNotSuspended)
	}

	next := conv.Clone()
	applyReview(next, resp)
	if err := e.commit(ctx, next, conv.Version, domain.NodeHumanReview); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("threadId", threadID).
		Str("decision", string(resp.Decision)).
		Str("next", string(next.NextNode)).
		Msg("review applied")

	e.emit(ctx, hooks.EventRunStarted, map[string]any{
		"threadId": threadID,
		"trigger":  string(domain.EventReview),
		"decision": string(resp.Decision),
	})
	return e.run(ctx, threadID)
}

// applyReview resolves the suspend point with the reviewer's decision.
func applyReview(c *domain.Conversation, resp domain.ReviewResponse) {
	var draft string
	if c.PendingReview != nil {
		draft = c.PendingReview.Draft
	}
	c.PendingReview = nil
	c.Status = domain.StatusRunning
	c.NextNode = routeAfterReview(resp.Decision)

	switch c.NextNode {
	case domain.NodeAgent:
		c.Append(domain.Message{Role: domain.RoleUser, Content: RetryMessage(resp.Comment)})
		c.Rounds = 0
	case domain.NodeSendEmail:
		text := resp.RevisedText
		if strings.TrimSpace(text) == "" {
			text = draft
		}
		c.EmailToSend = text
	default:
		c.Status = domain.StatusTerminal
	}
}

// run executes steps until the thread suspends or ends, then raises the
// review when suspended.
func (e *Engine) run(ctx context.Context, threadID string) (*Result, error) {
	start := time.Now()
	log := e.log.Thread(threadID)

	var link string
	conv, err := e.advance(ctx, threadID)
	if err == nil && conv.Status == domain.StatusSuspended {
		link, err = e.raise(ctx, conv)
	}
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("run failed")
		e.emit(ctx, hooks.EventRunFailed, map[string]any{"threadId": threadID, "error": err.Error()})
		return nil, err
	}

	res := e.result(conv)
	res.ReviewLink = link
	if conv.IsTerminal() {
		e.emit(ctx, hooks.EventRunCompleted, map[string]any{
			"threadId": threadID,
			"sent":     conv.EmailToSend != "",
			"duration": time.Since(start).Seconds(),
		})
	}
	log.Info().
		Str("status", string(conv.Status)).
		Int64("version", conv.Version).
		Dur("duration", time.Since(start)).
		Msg("run finished")
	return res, nil
}

// advance loads the latest checkpoint before every step and stops once the
// thread is no longer running.
func (e *Engine) advance(ctx context.Context, threadID string) (*domain.Conversation, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run aborted: %w", err)
		}
		conv, err := e.store.Load(ctx, threadID)
		if err != nil {
			return nil, err
		}
		if conv.Status != domain.StatusRunning {
			return conv, nil
		}
		if err := e.step(ctx, conv); err != nil {
			return nil, err
		}
	}
}

// step executes conv.NextNode on a copy and commits the result. A failed
// node leaves the stored checkpoint untouched.
func (e *Engine) step(ctx context.Context, conv *domain.Conversation) error {
	node := conv.NextNode
	next := conv.Clone()

	if node == domain.NodeEnd {
		next.Status = domain.StatusTerminal
		return e.commit(ctx, next, conv.Version, node)
	}

	s, ok := graph[node]
	if !ok {
		return fmt.Errorf("thread %s: unknown node %q", conv.ThreadID, node)
	}
	if err := s.run(e, ctx, next); err != nil {
		return fmt.Errorf("%s: %w", node, err)
	}
	if next.Status == domain.StatusRunning {
		next.NextNode = s.next(next)
		if next.NextNode == domain.NodeEnd {
			next.Status = domain.StatusTerminal
		}
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%s: %w", node, err)
	}
	return e.commit(ctx, next, conv.Version, node)
}

func (e *Engine) commit(ctx context.Context, conv *domain.Conversation, expect int64, node domain.Node) error {
	if err := e.store.Save(ctx, conv, expect); err != nil {
		return fmt.Errorf("checkpoint after %s: %w", nodeLabel(node), err)
	}
	e.log.Debug().
		Str("threadId", conv.ThreadID).
		Str("node", nodeLabel(node)).
		Str("next", nodeLabel(conv.NextNode)).
		Int64("version", conv.Version).
		Msg("step committed")
	e.emit(ctx, hooks.EventStepCommitted, map[string]any{
		"threadId": conv.ThreadID,
		"node":     nodeLabel(node),
		"next":     nodeLabel(conv.NextNode),
		"status":   string(conv.Status),
		"version":  conv.Version,
	})
	return nil
}

func (e *Engine) raise(ctx context.Context, conv *domain.Conversation) (string, error) {
	if conv.PendingReview == nil {
		return "", fmt.Errorf("thread %s suspended without a review payload", conv.ThreadID)
	}
	link, err := e.reviewer.Raise(ctx, conv.ThreadID, *conv.PendingReview)
	if err != nil {
		return "", fmt.Errorf("raising review for %s: %w", conv.ThreadID, err)
	}
	e.emit(ctx, hooks.EventReviewRequested, map[string]any{
		"threadId":   conv.ThreadID,
		"email":      conv.LeadEmail,
		"reviewLink": link,
	})
	return link, nil
}

func (e *Engine) result(conv *domain.Conversation) *Result {
	res := &Result{
		ThreadID:     conv.ThreadID,
		Status:       conv.Status,
		Domain:       conv.WebsiteURL,
		Conversation: conv,
	}
	if last, ok := conv.LastMessage(); ok {
		res.Answer = last.Content
	}
	return res
}

func (e *Engine) emit(ctx context.Context, event string, data map[string]any) {
	if e.hooks == nil {
		return
	}
	e.hooks.Emit(context.WithoutCancel(ctx), event, data)
}

func nodeLabel(n domain.Node) string {
	if n == domain.NodeEnd {
		return "end"
	}
	return string(n)
}

// --- nodes ---

func (e *Engine) extractDomain(_ context.Context, c *domain.Conversation) error {
	url, ok := leads.ExtractDomain(c.LeadEmail)
	if !ok {
		url = ""
	}
	c.WebsiteURL = url
	c.Rounds = 0
	c.Append(domain.Message{Role: domain.RoleUser, Content: SeedMessage(c.LeadEmail, url)})
	e.log.Debug().Str("threadId", c.ThreadID).Str("websiteUrl", url).Msg("domain extracted")
	return nil
}

func (e *Engine) callModel(ctx context.Context, c *domain.Conversation) error {
	req := llm.CompletionRequest{
		System:      e.system,
		Messages:    toLLMMessages(c.Messages),
		Tools:       e.tools.Definitions(),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}
	if e.log.Enabled("debug") {
		chars := len(req.System)
		for _, m := range req.Messages {
			chars += len(m.Content)
		}
		e.log.Debug().
			Str("threadId", c.ThreadID).
			Int("messages", len(req.Messages)).
			Int("promptChars", chars).
			Strs("tools", e.tools.Names()).
			Msg("calling model")
	}
	resp, err := e.model.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("model call: %w", err)
	}

	content := resp.Content
	calls := make([]domain.ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		calls = append(calls, domain.ToolCall{ID: tc.ID, Name: tc.Name, Input: tc.Input})
	}
	if len(calls) == 0 {
		if parsed := parseToolCalls(content); len(parsed) > 0 {
			calls = parsed
			content = stripToolCalls(content, e.log)
		}
	}
	uniqueCallIDs(c, calls)

	if len(calls) > 0 {
		if c.Rounds >= e.cfg.MaxToolRounds {
			return fmt.Errorf("%w: %d rounds", ErrLoopLimit, c.Rounds)
		}
		c.Rounds++
	} else {
		calls = nil
	}

	c.Append(domain.Message{Role: domain.RoleAssistant, Content: content, ToolCalls: calls})

	e.log.Info().
		Str("threadId", c.ThreadID).
		Str("model", resp.Model).
		Int("toolCalls", len(calls)).
		Int("inputTokens", resp.Usage.InputTokens).
		Int("outputTokens", resp.Usage.OutputTokens).
		Dur("duration", resp.Duration).
		Msg("model responded")
	return nil
}

// uniqueCallIDs replaces empty call ids and ids already used in the
// conversation or earlier in the same turn, so each result pairs with
// exactly one call.
func uniqueCallIDs(c *domain.Conversation, calls []domain.ToolCall) {
	seen := make(map[string]bool)
	for _, m := range c.Messages {
		for _, tc := range m.ToolCalls {
			seen[tc.ID] = true
		}
	}
	for i := range calls {
		if calls[i].ID == "" || seen[calls[i].ID] {
			calls[i].ID = "call_" + uuid.NewString()
		}
		seen[calls[i].ID] = true
	}
}

func (e *Engine) runTools(ctx context.Context, c *domain.Conversation) error {
	for _, call := range c.UnansweredCalls() {
		out, err := e.dispatch(ctx, call)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			e.log.Warn().Err(err).Str("threadId", c.ThreadID).Str("tool", call.Name).Msg("tool failed")
			out = "Error: " + err.Error()
		}
		c.Append(domain.Message{
			Role:       domain.RoleTool,
			Content:    out,
			ToolCallID: call.ID,
			Name:       call.Name,
		})
		e.emit(ctx, hooks.EventToolExecuted, map[string]any{
			"threadId": c.ThreadID,
			"tool":     call.Name,
			"ok":       err == nil,
		})
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, call domain.ToolCall) (string, error) {
	tool, ok := e.tools.Get(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", call.Name)
	}
	e.log.Debug().Str("tool", call.Name).Str("callId", call.ID).Msg("executing tool")
	return tool.Execute(ctx, call.Input)
}

func (e *Engine) suspendForReview(_ context.Context, c *domain.Conversation) error {
	var draft string
	if last, ok := c.LastAssistant(); ok {
		draft = last.Content
	}
	c.PendingReview = &domain.ReviewPayload{
		Email:          c.LeadEmail,
		WebsiteURL:     c.WebsiteURL,
		CompanySummary: companySummary(c),
		Draft:          draft,
	}
	c.Status = domain.StatusSuspended
	return nil
}

// companySummary returns the latest successful summarizer output.
func companySummary(c *domain.Conversation) string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		m := c.Messages[i]
		if m.Role == domain.RoleTool && m.Name == ToolSummarizer && !strings.HasPrefix(m.Content, "Error: ") {
			return m.Content
		}
	}
	return ""
}

func (e *Engine) sendEmail(ctx context.Context, c *domain.Conversation) error {
	if strings.TrimSpace(c.EmailToSend) == "" {
		return errors.New("no approved email to send")
	}
	ack, err := e.sender.Send(ctx, c.LeadEmail, e.cfg.Subject, c.EmailToSend)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	e.log.Info().Str("threadId", c.ThreadID).Str("to", c.LeadEmail).Str("ack", ack).Msg("email sent")
	e.emit(ctx, hooks.EventEmailSent, map[string]any{"threadId": c.ThreadID, "to": c.LeadEmail, "ack": ack})
	return nil
}

func toLLMMessages(msgs []domain.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		lm := llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			lm.ToolCalls = append(lm.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Input: tc.Input})
		}
		out = append(out, lm)
	}
	return out
}
