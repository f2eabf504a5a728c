package config

import (
	"fmt"
	"slices"

	"github.com/adhocore/gronx"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Store validation
	validDrivers := []string{"sqlite", "pebble", "memory"}
	if !slices.Contains(validDrivers, cfg.Store.Driver) {
		add("store.driver", "must be one of %v, got %q", validDrivers, cfg.Store.Driver)
	}

	// LLM validation
	validProviders := []string{"openai", "ollama", "claude"}
	if !slices.Contains(validProviders, cfg.LLM.Provider) {
		add("llm.provider", "must be one of %v, got %q", validProviders, cfg.LLM.Provider)
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" && cfg.LLM.Endpoint == "" {
		add("llm.apiKey", "required for the openai provider unless a custom endpoint is set")
	}
	if cfg.LLM.Provider == "claude" && cfg.LLM.APIKey == "" {
		add("llm.apiKey", "required for the claude provider")
	}
	if cfg.LLM.Model == "" {
		add("llm.model", "model is required")
	}
	if cfg.LLM.MaxRetries != nil && *cfg.LLM.MaxRetries < 0 {
		add("llm.maxRetries", "must not be negative, got %d", *cfg.LLM.MaxRetries)
	}

	// Agent validation
	if cfg.Agent.MaxToolRounds < 1 {
		add("agent.maxToolRounds", "must be at least 1, got %d", cfg.Agent.MaxToolRounds)
	}
	if cfg.Agent.MaxRunDuration < 1 {
		add("agent.maxRunDuration", "must be at least 1 second, got %d", cfg.Agent.MaxRunDuration)
	}
	if t := cfg.Agent.Temperature; t != nil && (*t < 0 || *t > 2) {
		add("agent.temperature", "must be between 0 and 2, got %v", *t)
	}

	// Review validation
	validReview := []string{"gotohuman", "log"}
	if !slices.Contains(validReview, cfg.Review.Provider) {
		add("review.provider", "must be one of %v, got %q", validReview, cfg.Review.Provider)
	}
	if cfg.Review.Provider == "gotohuman" {
		if cfg.Review.APIKey == "" {
			add("review.apiKey", "required for the gotohuman provider")
		}
		if cfg.Review.FormID == "" {
			add("review.formId", "required for the gotohuman provider")
		}
	}
	if irc := cfg.Review.IRC; irc != nil {
		if irc.Server == "" {
			add("review.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("review.irc.nick", "nick is required")
		}
		if irc.Channel == "" {
			add("review.irc.channel", "channel is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("review.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
	}

	// Mailer validation
	validModes := []string{"log", "gmail", "imap"}
	if !slices.Contains(validModes, cfg.Mailer.Mode) {
		add("mailer.mode", "must be one of %v, got %q", validModes, cfg.Mailer.Mode)
	}
	if cfg.Mailer.Mode == "imap" {
		if cfg.Mailer.IMAP.Server == "" {
			add("mailer.imap.server", "server is required")
		}
		if cfg.Mailer.IMAP.Username == "" {
			add("mailer.imap.username", "username is required")
		}
	}

	// Scraper validation
	if cfg.Scraper.RatePerSecond < 0 {
		add("scraper.ratePerSecond", "must not be negative")
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	validAuthModes := []string{"none", "token", "password"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		add("gateway.auth.mode", "must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode)
	}

	// Retention validation
	if cfg.Retention.Enabled {
		if !gronx.IsValid(cfg.Retention.Cron) {
			add("retention.cron", "not a valid cron expression: %q", cfg.Retention.Cron)
		}
		if cfg.Retention.MaxAgeDays < 1 {
			add("retention.maxAgeDays", "must be at least 1, got %d", cfg.Retention.MaxAgeDays)
		}
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	return issues
}
