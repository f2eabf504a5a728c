package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and passwords can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Store.DSN = expandEnvVars(cfg.Store.DSN)
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.Review.APIKey = expandEnvVars(cfg.Review.APIKey)
	cfg.Review.FormID = expandEnvVars(cfg.Review.FormID)
	cfg.Mailer.IMAP.Password = expandEnvVars(cfg.Mailer.IMAP.Password)
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	if cfg.Review.IRC != nil {
		cfg.Review.IRC.Password = expandEnvVars(cfg.Review.IRC.Password)
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are ignored and existing variables win.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = d.Store.Driver
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = d.LLM.Provider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = d.LLM.Model
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = d.LLM.Timeout
	}
	if cfg.Agent.MaxToolRounds == 0 {
		cfg.Agent.MaxToolRounds = d.Agent.MaxToolRounds
	}
	if cfg.Agent.MaxRunDuration == 0 {
		cfg.Agent.MaxRunDuration = d.Agent.MaxRunDuration
	}
	if cfg.Review.Provider == "" {
		cfg.Review.Provider = d.Review.Provider
	}
	if cfg.Review.Endpoint == "" {
		cfg.Review.Endpoint = d.Review.Endpoint
	}
	if cfg.Mailer.Mode == "" {
		cfg.Mailer.Mode = d.Mailer.Mode
	}
	if cfg.Scraper.Timeout == 0 {
		cfg.Scraper.Timeout = d.Scraper.Timeout
	}
	if cfg.Scraper.MaxChars == 0 {
		cfg.Scraper.MaxChars = d.Scraper.MaxChars
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = d.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = d.Gateway.Bind
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = d.Gateway.Auth.Mode
	}
	if cfg.Retention.Cron == "" {
		cfg.Retention.Cron = d.Retention.Cron
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = d.Logging.ConsoleStyle
	}
}

// applyEnvOverrides reads LEADREACH_* and well-known provider variables and
// overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEADREACH_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("LEADREACH_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("LEADREACH_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LEADREACH_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LEADREACH_LLM_ENDPOINT"); v != "" {
		cfg.LLM.Endpoint = v
	}
	if v := firstEnv("LEADREACH_LLM_API_KEY", "OPENAI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("GOTOHUMAN_API_KEY"); v != "" && cfg.Review.APIKey == "" {
		cfg.Review.APIKey = v
	}
	if v := os.Getenv("GOTOHUMAN_FORM_ID"); v != "" && cfg.Review.FormID == "" {
		cfg.Review.FormID = v
	}
	if v := os.Getenv("LEADREACH_MAILER_MODE"); v != "" {
		cfg.Mailer.Mode = v
	}
	if v := os.Getenv("LEADREACH_MAX_RUN_DURATION"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxRunDuration = secs
		}
	}
	if v := os.Getenv("LEADREACH_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("LEADREACH_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("LEADREACH_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Mode = "token"
		cfg.Gateway.Auth.Token = v
	}
	if v := os.Getenv("LEADREACH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
