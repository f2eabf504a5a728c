package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusTerminal  Status = "terminal"
)

// Node names a step in the outreach workflow graph.
type Node string

const (
	NodeExtractDomain Node = "extract-domain"
	NodeAgent         Node = "agent"
	NodeTools         Node = "tools"
	NodeHumanReview   Node = "human-review"
	NodeSendEmail     Node = "send-email"
	NodeEnd           Node = ""
)

// Conversation is the durable state of one outreach run, keyed by ThreadID.
type Conversation struct {
	ThreadID      string         `json:"threadId"`
	LeadEmail     string         `json:"leadEmail"`
	WebsiteURL    string         `json:"websiteUrl,omitempty"`
	EmailToSend   string         `json:"emailToSend,omitempty"`
	Messages      []Message      `json:"messages"`
	Status        Status         `json:"status"`
	NextNode      Node           `json:"nextNode,omitempty"`
	PendingReview *ReviewPayload `json:"pendingReview,omitempty"`
	Rounds        int            `json:"rounds"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// NewConversation creates the initial state for a fresh thread.
func NewConversation(threadID, email string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ThreadID:  threadID,
		LeadEmail: email,
		Status:    StatusRunning,
		NextNode:  NodeExtractDomain,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate it without aliasing
// stored state.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.ToolCalls != nil {
			m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
		cp.Messages[i] = m
	}
	if c.PendingReview != nil {
		p := *c.PendingReview
		cp.PendingReview = &p
	}
	return &cp
}

// Append adds messages to the history, stamping missing timestamps.
func (c *Conversation) Append(msgs ...Message) {
	now := time.Now().UTC()
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		c.Messages = append(c.Messages, m)
	}
}

// LastMessage returns the most recent message, if any.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// LastAssistant returns the most recent assistant message, if any.
func (c *Conversation) LastAssistant() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}

// IsTerminal reports whether the conversation has finished.
func (c *Conversation) IsTerminal() bool {
	return c.Status == StatusTerminal
}

// Validate checks that every tool result answers an outstanding tool call
// from an earlier assistant message.
func (c *Conversation) Validate() error {
	pending := map[string]bool{}
	for i, m := range c.Messages {
		switch m.Role {
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				pending[tc.ID] = true
			}
		case RoleTool:
			if !pending[m.ToolCallID] {
				return fmt.Errorf("message %d: tool result %q has no matching tool call", i, m.ToolCallID)
			}
			delete(pending, m.ToolCallID)
		}
	}
	return nil
}

// UnansweredCalls returns tool calls of the last assistant message that have
// no tool result yet.
func (c *Conversation) UnansweredCalls() []ToolCall {
	idx := -1
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	answered := map[string]bool{}
	for _, m := range c.Messages[idx+1:] {
		if m.Role == RoleTool {
			answered[m.ToolCallID] = true
		}
	}
	var out []ToolCall
	for _, tc := range c.Messages[idx].ToolCalls {
		if !answered[tc.ID] {
			out = append(out, tc)
		}
	}
	return out
}
