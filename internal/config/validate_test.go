package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	var paths []string
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidateValid(t *testing.T) {
	cfg := validDefaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidateMissingAPIKey(t *testing.T) {
	cfg := Defaults()
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "llm.apiKey", issues[0].Path)

	cfg.LLM.Provider = "ollama"
	assert.Empty(t, Validate(&cfg))
}

func TestValidateFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"store driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"llm provider", func(c *Config) { c.LLM.Provider = "bard" }, "llm.provider"},
		{"tool rounds", func(c *Config) { c.Agent.MaxToolRounds = 0 }, "agent.maxToolRounds"},
		{"run duration", func(c *Config) { c.Agent.MaxRunDuration = -1 }, "agent.maxRunDuration"},
		{"temperature", func(c *Config) { v := 3.0; c.Agent.Temperature = &v }, "agent.temperature"},
		{"review provider", func(c *Config) { c.Review.Provider = "slack" }, "review.provider"},
		{"gotohuman form", func(c *Config) { c.Review.Provider = "gotohuman"; c.Review.APIKey = "k" }, "review.formId"},
		{"irc channel", func(c *Config) { c.Review.IRC = &IRCConfig{Server: "s", Nick: "n"} }, "review.irc.channel"},
		{"mailer mode", func(c *Config) { c.Mailer.Mode = "smtp" }, "mailer.mode"},
		{"imap server", func(c *Config) { c.Mailer.Mode = "imap"; c.Mailer.IMAP.Username = "u" }, "mailer.imap.server"},
		{"gateway port", func(c *Config) { c.Gateway.Port = 99999 }, "gateway.port"},
		{"gateway bind", func(c *Config) { c.Gateway.Bind = "tailnet" }, "gateway.bind"},
		{"auth mode", func(c *Config) { c.Gateway.Auth.Mode = "oauth" }, "gateway.auth.mode"},
		{"retention cron", func(c *Config) { c.Retention.Enabled = true; c.Retention.Cron = "not cron" }, "retention.cron"},
		{"retention age", func(c *Config) { c.Retention.Enabled = true; c.Retention.MaxAgeDays = 0 }, "retention.maxAgeDays"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"console style", func(c *Config) { c.Logging.ConsoleStyle = "compact" }, "logging.consoleStyle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(&cfg)
			assert.Contains(t, issuePaths(Validate(&cfg)), tt.path)
		})
	}
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "gateway.port", Message: "bad"}
	assert.Equal(t, "gateway.port: bad", issue.String())
}
