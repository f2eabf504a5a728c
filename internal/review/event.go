package review

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/soyeahso/leadreach/internal/domain"
)

// threadRef accepts a thread id sent either as a string or a number.
type threadRef string

func (t *threadRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = threadRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = threadRef(n.String())
	return nil
}

type formValue struct {
	Value json.RawMessage `json:"value"`
}

// text returns the value as a string. Non-string values are rendered as JSON.
func (f *formValue) text() string {
	if f == nil || len(f.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Value, &s); err == nil {
		return s
	}
	var b bool
	if err := json.Unmarshal(f.Value, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return string(f.Value)
}

type rawEvent struct {
	Type  string `json:"type"`
	Email string `json:"email"`
	Meta  struct {
		ThreadID threadRef `json:"threadId"`
	} `json:"meta"`
	Response *struct {
		Decision    string `json:"decision"`
		RevisedText string `json:"revisedText"`
		Comment     string `json:"comment"`
	} `json:"response"`
	ResponseValues map[string]*formValue `json:"responseValues"`
}

// ParseEvent decodes and validates an inbound request body. It accepts a
// new-lead event, a review event carrying a structured response, and the
// gotoHuman webhook shape whose answers sit under responseValues.
func ParseEvent(raw []byte) (domain.InboundEvent, error) {
	var re rawEvent
	if err := json.Unmarshal(raw, &re); err != nil {
		return domain.InboundEvent{}, &domain.ValidationError{Message: "malformed JSON: " + err.Error()}
	}
	threadID := strings.TrimSpace(string(re.Meta.ThreadID))

	switch {
	case re.Type == "review":
		return parseReview(&re, threadID)
	case re.Email != "" || re.Type == "trigger":
		email := re.Email
		if email == "" {
			email = re.ResponseValues["email"].text()
		}
		email = strings.TrimSpace(email)
		if email == "" {
			return domain.InboundEvent{}, &domain.ValidationError{Field: "email", Message: "is required"}
		}
		if threadID != "" {
			if err := domain.ValidateThreadID(threadID); err != nil {
				return domain.InboundEvent{}, err
			}
		}
		return domain.InboundEvent{Kind: domain.EventNewLead, ThreadID: threadID, Email: email}, nil
	default:
		return domain.InboundEvent{}, &domain.ValidationError{Message: "expected a lead email or a review response"}
	}
}

func parseReview(re *rawEvent, threadID string) (domain.InboundEvent, error) {
	if threadID == "" {
		return domain.InboundEvent{}, &domain.ValidationError{Field: "meta.threadId", Message: "is required for review events"}
	}
	if err := domain.ValidateThreadID(threadID); err != nil {
		return domain.InboundEvent{}, err
	}

	var resp domain.ReviewResponse
	switch {
	case re.Response != nil:
		resp = domain.ReviewResponse{
			Decision:    domain.Decision(strings.ToLower(strings.TrimSpace(re.Response.Decision))),
			RevisedText: re.Response.RevisedText,
			Comment:     re.Response.Comment,
		}
	case re.ResponseValues != nil:
		resp = domain.ReviewResponse{
			Decision:    domain.Decision(strings.ToLower(strings.TrimSpace(re.ResponseValues["emailApproval"].text()))),
			RevisedText: re.ResponseValues["emailDraft"].text(),
			Comment:     re.ResponseValues["retryComment"].text(),
		}
	default:
		return domain.InboundEvent{}, &domain.ValidationError{Field: "response", Message: "is required for review events"}
	}

	// Decisions other than retry and approve pass through; the workflow
	// ends the thread on them.
	switch resp.Decision {
	case "":
		return domain.InboundEvent{}, &domain.ValidationError{Field: "decision", Message: "is required"}
	case domain.DecisionApprove:
		if strings.TrimSpace(resp.RevisedText) == "" {
			return domain.InboundEvent{}, &domain.ValidationError{Field: "revisedText", Message: "must not be empty when approving"}
		}
	}

	return domain.InboundEvent{Kind: domain.EventReview, ThreadID: threadID, Review: &resp}, nil
}
