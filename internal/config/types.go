package config

// Config is the root configuration for leadreach.
type Config struct {
	Store     StoreConfig     `yaml:"store,omitempty"`
	LLM       LLMConfig       `yaml:"llm,omitempty"`
	Agent     AgentConfig     `yaml:"agent,omitempty"`
	Review    ReviewConfig    `yaml:"review,omitempty"`
	Mailer    MailerConfig    `yaml:"mailer,omitempty"`
	Scraper   ScraperConfig   `yaml:"scraper,omitempty"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Retention RetentionConfig `yaml:"retention,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// StoreConfig selects the conversation checkpoint backend.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "pebble" | "memory"
	DSN    string `yaml:"dsn,omitempty"`    // file path for sqlite, directory for pebble
}

// LLMConfig configures the text-generation provider.
type LLMConfig struct {
	Provider   string   `yaml:"provider,omitempty"` // "openai" | "ollama" | "claude"
	APIKey     string   `yaml:"apiKey,omitempty"`
	Model      string   `yaml:"model,omitempty"`
	Endpoint   string   `yaml:"endpoint,omitempty"`
	Fallbacks  []string `yaml:"fallbacks,omitempty"` // additional models tried on retryable errors
	MaxTokens  int      `yaml:"maxTokens,omitempty"`
	MaxRetries *int     `yaml:"maxRetries,omitempty"` // extra attempts per model on transient errors
	Timeout    int      `yaml:"timeout,omitempty"`    // seconds per request
}

// AgentConfig controls the outreach workflow.
type AgentConfig struct {
	MaxToolRounds      int      `yaml:"maxToolRounds,omitempty"`
	MaxRunDuration     int      `yaml:"maxRunDuration,omitempty"` // seconds per synchronous run
	Temperature        *float64 `yaml:"temperature,omitempty"`
	SenderName         string   `yaml:"senderName,omitempty"`
	SenderCompany      string   `yaml:"senderCompany,omitempty"`
	CompanyDescription string   `yaml:"companyDescription,omitempty"` // pitch used by the drafter
}

// ReviewConfig configures the human-review service.
type ReviewConfig struct {
	Provider string     `yaml:"provider,omitempty"` // "gotohuman" | "log"
	Endpoint string     `yaml:"endpoint,omitempty"`
	APIKey   string     `yaml:"apiKey,omitempty"`
	FormID   string     `yaml:"formId,omitempty"`
	BaseURL  string     `yaml:"baseUrl,omitempty"` // public URL used for log-mode review links
	IRC      *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines where review notifications are announced.
type IRCConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port,omitempty"`
	Nick     string `yaml:"nick"`
	Password string `yaml:"password,omitempty"`
	Channel  string `yaml:"channel"`
	UseTLS   bool   `yaml:"useTLS,omitempty"`
}

// MailerConfig selects how approved emails leave the system.
type MailerConfig struct {
	Mode    string      `yaml:"mode,omitempty"` // "log" | "gmail" | "imap"
	From    string      `yaml:"from,omitempty"`
	Subject string      `yaml:"subject,omitempty"`
	Gmail   GmailConfig `yaml:"gmail,omitempty"`
	IMAP    IMAPConfig  `yaml:"imap,omitempty"`
}

// GmailConfig points at OAuth client credentials and a cached token.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentialsFile,omitempty"`
	TokenFile       string `yaml:"tokenFile,omitempty"`
}

// IMAPConfig configures the IMAP drafts sender.
type IMAPConfig struct {
	Server   string `yaml:"server,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Mailbox  string `yaml:"mailbox,omitempty"`
}

// ScraperConfig tunes website fetching.
type ScraperConfig struct {
	UserAgent     string  `yaml:"userAgent,omitempty"`
	RatePerSecond float64 `yaml:"ratePerSecond,omitempty"`
	Burst         int     `yaml:"burst,omitempty"`
	Timeout       int     `yaml:"timeout,omitempty"` // seconds
	MaxChars      int     `yaml:"maxChars,omitempty"`
	AllowPrivate  bool    `yaml:"allowPrivate,omitempty"`
}

// GatewayConfig controls the HTTP server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	RateLimit      float64     `yaml:"rateLimit,omitempty"` // requests per second per client
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "none" | "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// RetentionConfig schedules purging of finished conversations.
type RetentionConfig struct {
	Enabled    bool   `yaml:"enabled,omitempty"`
	Cron       string `yaml:"cron,omitempty"`
	MaxAgeDays int    `yaml:"maxAgeDays,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
	File         bool   `yaml:"file,omitempty"`         // also append JSON lines to <home>/logs/leadreach.log
}
