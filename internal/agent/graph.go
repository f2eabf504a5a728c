package agent

import (
	"context"

	"github.com/soyeahso/leadreach/internal/domain"
)

// stepFunc executes one node against a working copy of the conversation.
type stepFunc func(e *Engine, ctx context.Context, c *domain.Conversation) error

// edgeFunc picks the node that follows a successfully executed step.
type edgeFunc func(c *domain.Conversation) domain.Node

type step struct {
	run  stepFunc
	next edgeFunc
}

// graph is the outreach workflow. human-review has no outgoing edge: it
// suspends the run and the next node is chosen by the review decision.
var graph = map[domain.Node]step{
	domain.NodeExtractDomain: {run: (*Engine).extractDomain, next: goTo(domain.NodeAgent)},
	domain.NodeAgent:         {run: (*Engine).callModel, next: routeAfterAgent},
	domain.NodeTools:         {run: (*Engine).runTools, next: goTo(domain.NodeAgent)},
	domain.NodeHumanReview:   {run: (*Engine).suspendForReview, next: goTo(domain.NodeHumanReview)},
	domain.NodeSendEmail:     {run: (*Engine).sendEmail, next: goTo(domain.NodeEnd)},
}

func goTo(n domain.Node) edgeFunc {
	return func(*domain.Conversation) domain.Node { return n }
}

// routeAfterAgent sends pending tool calls to the tools node and anything
// else to human review.
func routeAfterAgent(c *domain.Conversation) domain.Node {
	if last, ok := c.LastMessage(); ok && last.HasToolCalls() {
		return domain.NodeTools
	}
	return domain.NodeHumanReview
}

// routeAfterReview maps a reviewer decision to the node that handles it.
func routeAfterReview(d domain.Decision) domain.Node {
	switch d {
	case domain.DecisionRetry:
		return domain.NodeAgent
	case domain.DecisionApprove:
		return domain.NodeSendEmail
	default:
		return domain.NodeEnd
	}
}
