package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const defaultCompanyDescription = "FreshFruits is a premier subscription-based delivery service dedicated to filling company offices " +
	"with a daily supply of fresh fruits and light, wholesome meals. Our mission is to enhance workplace wellness " +
	"and productivity by providing nourishing, convenient food solutions that promote healthy eating habits. " +
	"In addition to our daily deliveries, we offer exceptional catering services for business meetings, " +
	"ensuring your team is fueled and focused for every important discussion. Committed to quality and freshness, " +
	"FreshFruits sources only the finest ingredients from trusted local farmers and suppliers."

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Store: StoreConfig{
			Driver: "sqlite",
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 1024,
			Timeout:   120,
		},
		Agent: AgentConfig{
			MaxToolRounds:      8,
			MaxRunDuration:     60,
			SenderName:         "Jess",
			SenderCompany:      "FreshFruits",
			CompanyDescription: defaultCompanyDescription,
		},
		Review: ReviewConfig{
			Provider: "log",
			Endpoint: "https://api.gotohuman.com/requestReview",
		},
		Mailer: MailerConfig{
			Mode:    "log",
			Subject: "A fresh idea for your team",
			IMAP:    IMAPConfig{Port: 993, Mailbox: "Drafts"},
		},
		Scraper: ScraperConfig{
			UserAgent:     "Mozilla/5.0 (compatible; leadreach/1.0)",
			RatePerSecond: 2,
			Burst:         4,
			Timeout:       30,
			MaxChars:      20000,
		},
		Gateway: GatewayConfig{
			Port:      18790,
			Bind:      "loopback",
			RateLimit: 10,
			Auth: GatewayAuth{
				Mode: "none",
			},
		},
		Retention: RetentionConfig{
			Cron:       "0 2 * * *",
			MaxAgeDays: 30,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
