package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soyeahso/leadreach/internal/llm"
)

// Tool names exposed to the model.
const (
	ToolScraper    = "scraper"
	ToolSummarizer = "summarizer"
	ToolDrafter    = "email-drafter"
)

// Scraper fetches a web page and returns its readable text.
type Scraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// Sender delivers the approved email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// ScrapeArgs is the scraper tool input.
type ScrapeArgs struct {
	URL string `json:"url"`
}

// SummarizeArgs is the summarizer tool input.
type SummarizeArgs struct {
	Content string `json:"content"`
}

// DraftArgs is the email-drafter tool input.
type DraftArgs struct {
	EmailAddress       string `json:"emailAddress"`
	CompanyDescription string `json:"companyDescription"`
}

func decodeArgs(tool, input string, out any) error {
	if strings.TrimSpace(input) == "" {
		input = "{}"
	}
	if err := json.Unmarshal([]byte(input), out); err != nil {
		return fmt.Errorf("%s: invalid arguments: %w", tool, err)
	}
	return nil
}

// ScraperTool exposes a Scraper to the model.
type ScraperTool struct {
	Scraper Scraper
}

func (t *ScraperTool) Name() string        { return ToolScraper }
func (t *ScraperTool) Description() string { return "Call to scrape a website." }
func (t *ScraperTool) InputSchema() string {
	return `{"type":"object","properties":{"url":{"type":"string","description":"The website URL to scrape."}},"required":["url"]}`
}

func (t *ScraperTool) Execute(ctx context.Context, input string) (string, error) {
	var args ScrapeArgs
	if err := decodeArgs(t.Name(), input, &args); err != nil {
		return "", err
	}
	if args.URL == "" {
		return "", fmt.Errorf("scraper: url is required")
	}
	return t.Scraper.Scrape(ctx, args.URL)
}

// SummarizerTool condenses scraped website text with a single model call.
type SummarizerTool struct {
	Model     Completer
	MaxTokens int
}

func (t *SummarizerTool) Name() string        { return ToolSummarizer }
func (t *SummarizerTool) Description() string { return "Call to summarize scraped website content." }
func (t *SummarizerTool) InputSchema() string {
	return `{"type":"object","properties":{"content":{"type":"string","description":"The scraped website content that you want a summary of."}},"required":["content"]}`
}

func (t *SummarizerTool) Execute(ctx context.Context, input string) (string, error) {
	var args SummarizeArgs
	if err := decodeArgs(t.Name(), input, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Content) == "" {
		return "", fmt.Errorf("summarizer: content is empty")
	}
	resp, err := t.Model.Complete(ctx, llm.CompletionRequest{
		System:      summarizerPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: args.Content}},
		MaxTokens:   t.MaxTokens,
		Temperature: llm.Temperature(summarizerTemperature),
	})
	if err != nil {
		return "", fmt.Errorf("summarizer: %w", err)
	}
	return resp.Content, nil
}

// DrafterTool writes the outreach email with a single model call.
type DrafterTool struct {
	Model     Completer
	Sender    SenderProfile
	MaxTokens int
}

func (t *DrafterTool) Name() string        { return ToolDrafter }
func (t *DrafterTool) Description() string { return "Call to draft a sales email." }
func (t *DrafterTool) InputSchema() string {
	return `{"type":"object","properties":{` +
		`"emailAddress":{"type":"string","description":"The email address of the new lead that we want to reach out to."},` +
		`"companyDescription":{"type":"string","description":"A description of the company based on the content found on its website."}},` +
		`"required":["emailAddress"]}`
}

func (t *DrafterTool) Execute(ctx context.Context, input string) (string, error) {
	var args DraftArgs
	if err := decodeArgs(t.Name(), input, &args); err != nil {
		return "", err
	}
	if args.EmailAddress == "" {
		return "", fmt.Errorf("email-drafter: emailAddress is required")
	}
	system, user := DrafterPrompts(t.Sender, args.EmailAddress, args.CompanyDescription)
	resp, err := t.Model.Complete(ctx, llm.CompletionRequest{
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: user}},
		MaxTokens:   t.MaxTokens,
		Temperature: llm.Temperature(drafterTemperature),
	})
	if err != nil {
		return "", fmt.Errorf("email-drafter: %w", err)
	}
	return resp.Content, nil
}

// DefaultTools returns the model-facing tool set. Sending is not a tool;
// only the send-email node delivers mail.
func DefaultTools(scraper Scraper, model Completer, profile SenderProfile, maxTokens int) *ToolRegistry {
	return NewToolRegistry(
		&ScraperTool{Scraper: scraper},
		&SummarizerTool{Model: model, MaxTokens: maxTokens},
		&DrafterTool{Model: model, Sender: profile, MaxTokens: maxTokens},
	)
}
