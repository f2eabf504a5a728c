package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/leadreach/internal/llm"
)

const (
	agentTemperature      = 0.25
	summarizerTemperature = 0.5
	drafterTemperature    = 0.75

	retryPrefix = "Please regenerate the email draft and consider the following: "
)

const summarizerPrompt = "You are a helpful website content summarizer. You will be passed the content of a scraped " +
	"company website. Please summarize it in 250-300 words focusing on what kind of company this is, the services " +
	"they offer and how they operate."

// SenderProfile identifies who the outreach email is written for.
type SenderProfile struct {
	Name               string
	Company            string
	CompanyDescription string
}

// PromptConfig controls system prompt generation for the agent node.
type PromptConfig struct {
	Sender      SenderProfile
	Tools       []llm.ToolDefinition
	ExtraPrompt string
}

// BuildSystemPrompt constructs the system prompt for the agent node.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	// Date context
	b.WriteString(fmt.Sprintf("Current date: %s\n", time.Now().Format("2006-01-02")))
	if cfg.Sender.Name != "" {
		fmt.Fprintf(&b, "You prepare outreach emails for %s", cfg.Sender.Name)
		if cfg.Sender.Company != "" {
			fmt.Fprintf(&b, " at %s", cfg.Sender.Company)
		}
		b.WriteString(".\n")
	}

	b.WriteString("\n")

	// Guidelines
	b.WriteString("Guidelines:\n")
	b.WriteString("- Use the tools to gather context before drafting.\n")
	b.WriteString("- Always produce the draft with the email-drafter tool.\n")
	b.WriteString("- When the draft is ready, reply with the email body only.\n")

	if len(cfg.Tools) > 0 {
		b.WriteString("\n## Available Tools\n\n")
		for _, t := range cfg.Tools {
			fmt.Fprintf(&b, "### %s\n%s\n\n", t.Name, t.Description)
		}
	}

	// Extra/custom prompt
	if cfg.ExtraPrompt != "" {
		b.WriteString("\n")
		b.WriteString(cfg.ExtraPrompt)
		b.WriteString("\n")
	}

	return b.String()
}

// SeedMessage is the instruction that starts every conversation. The
// scrape and summarize directive is omitted when no website is known.
func SeedMessage(email, websiteURL string) string {
	scrape := ""
	if websiteURL != "" {
		scrape = fmt.Sprintf("Scrape the website of its' domain: %s . Then use the summarizer tool to describe it.", websiteURL)
	}
	return fmt.Sprintf("We got the email address of a new lead: %s. %s Then write an outreach email.", email, scrape)
}

// RetryMessage turns a reviewer comment into the follow-up instruction.
func RetryMessage(comment string) string {
	return retryPrefix + comment
}

// DrafterPrompts returns the system and user messages for the drafting call.
func DrafterPrompts(sender SenderProfile, email, companyDescription string) (system, user string) {
	noDomain := strings.TrimSpace(companyDescription) == ""

	var b strings.Builder
	b.WriteString("You are a helpful sales expert, great at writing enticing emails.\n")
	fmt.Fprintf(&b, "You will write an email for %s who wants to reach out to a new prospect who left their email address: %s . ", sender.Name, email)
	fmt.Fprintf(&b, "%s works for the following company:\n%s\n", sender.Name, sender.CompanyDescription)
	b.WriteString("Write no more than 300 words.\n")
	if !noDomain {
		b.WriteString("It must be tailored as much as possible to the prospect's company based on the website information we fetched. " +
			"Don't mention that we got the information from the website. Include no placeholders! " +
			"Your response should be nothing but the pure email body!\n")
	}

	if noDomain {
		return b.String(), "No additional information found about the prospect"
	}
	return b.String(), "#Company website summary:\n" + companyDescription
}
