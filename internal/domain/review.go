package domain

// Decision is a reviewer's verdict on a suspended draft.
type Decision string

const (
	DecisionRetry   Decision = "retry"
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ReviewPayload is the data surfaced to a human reviewer while a
// conversation is suspended.
type ReviewPayload struct {
	Email          string `json:"email"`
	WebsiteURL     string `json:"websiteUrl"`
	CompanySummary string `json:"companySummary,omitempty"`
	Draft          string `json:"draft"`
}

// ReviewResponse is the reviewer's structured answer to a review request.
type ReviewResponse struct {
	Decision    Decision `json:"decision"`
	RevisedText string   `json:"revisedText,omitempty"`
	Comment     string   `json:"comment,omitempty"`
}

// EventKind distinguishes inbound events.
type EventKind string

const (
	EventNewLead EventKind = "lead"
	EventReview  EventKind = "review"
)

// InboundEvent is a parsed, validated inbound request that identifies
// a conversation.
type InboundEvent struct {
	Kind     EventKind       `json:"kind"`
	ThreadID string          `json:"threadId,omitempty"`
	Email    string          `json:"email,omitempty"`
	Review   *ReviewResponse `json:"review,omitempty"`
}
